// Copyright 2024 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kernel

import (
	"github.com/google/btree"
)

// SchedulerPolicy realizes spec.md §4.F's "build-time policy selection
// → runtime strategy object" design note: RR, FCFS and PBS are each a
// SchedulerPolicy, selected once at Kernel construction instead of by
// recompiling with a different #define.
type SchedulerPolicy interface {
	// Select scans the process table for the slot this policy would
	// run next, returning it with its lock already held; every other
	// slot's lock has been released by the time Select returns. ok is
	// false if no RUNNABLE slot exists.
	Select(k *Kernel, cpu *CPU) (*Proc, bool)

	// Preemptible reports whether the timer is allowed to call Yield
	// against a process running under this policy. FCFS is
	// non-preemptive by contract (spec.md §4.F).
	Preemptible() bool

	// Name identifies the policy for logging/procdump.
	Name() string
}

// RoundRobin is the default, fully preemptive policy: a linear scan of
// the process table from slot 0, returning the first RUNNABLE slot
// found (spec.md §4.F, "Linear scan").
type RoundRobin struct{}

func (RoundRobin) Name() string        { return "RR" }
func (RoundRobin) Preemptible() bool    { return true }

func (RoundRobin) Select(k *Kernel, cpu *CPU) (*Proc, bool) {
	n := len(k.proc)
	for i := 0; i < n; i++ {
		p := k.proc[i]
		p.mu.Lock()
		if p.State == Runnable {
			return p, true
		}
		p.mu.Unlock()
	}
	return nil, false
}

// fcfsItem and pbsItem are the btree.Item implementations backing
// FCFS/PBS candidate selection: an ordered set lets the policy find
// its winner in O(log n) rather than a linear rescan, the role
// pkg/sentry/pgalloc's reclaim set's google/btree.BTree plays for
// ordered page selection.
type fcfsItem struct {
	ctime int64
	index int
}

func (a fcfsItem) Less(than btree.Item) bool {
	b := than.(fcfsItem)
	if a.ctime != b.ctime {
		return a.ctime < b.ctime
	}
	return a.index < b.index
}

type pbsItem struct {
	dp    int
	index int
}

func (a pbsItem) Less(than btree.Item) bool {
	b := than.(pbsItem)
	if a.dp != b.dp {
		return a.dp < b.dp
	}
	return a.index < b.index
}

// FCFS selects the RUNNABLE slot with the smallest Ctime, ties broken
// by lower slot index, and never preempts a running process (spec.md
// §4.F).
type FCFS struct{}

func (FCFS) Name() string     { return "FCFS" }
func (FCFS) Preemptible() bool { return false }

func (FCFS) Select(k *Kernel, cpu *CPU) (*Proc, bool) {
	tr := btree.New(2)
	locked := make(map[int]*Proc, len(k.proc))

	for _, p := range k.proc {
		if len(locked) == 0 {
			p.mu.Lock()
		} else {
			p.mu.NestedLock()
		}
		if p.State != Runnable {
			p.mu.Unlock()
			continue
		}
		locked[p.index] = p
		tr.ReplaceOrInsert(fcfsItem{ctime: p.Ctime, index: p.index})
	}
	if tr.Len() == 0 {
		return nil, false
	}

	winner := tr.Min().(fcfsItem)
	for idx, p := range locked {
		if idx == winner.index {
			continue
		}
		p.mu.Unlock()
	}
	return locked[winner.index], true
}

// PBS selects the RUNNABLE slot with the lowest dynamic priority
// (recomputed fresh from each candidate's accounting fields at
// selection time), ties broken by lower slot index (spec.md §4.F).
type PBS struct{}

func (PBS) Name() string     { return "PBS" }
func (PBS) Preemptible() bool { return true }

func (PBS) Select(k *Kernel, cpu *CPU) (*Proc, bool) {
	tr := btree.New(2)
	locked := make(map[int]*Proc, len(k.proc))

	for _, p := range k.proc {
		if len(locked) == 0 {
			p.mu.Lock()
		} else {
			p.mu.NestedLock()
		}
		if p.State != Runnable {
			p.mu.Unlock()
			continue
		}
		p.Niceness = niceness(p)
		p.DynamicPriority = dynamicPriority(p)
		locked[p.index] = p
		tr.ReplaceOrInsert(pbsItem{dp: p.DynamicPriority, index: p.index})
	}
	if tr.Len() == 0 {
		return nil, false
	}

	winner := tr.Min().(pbsItem)
	for idx, p := range locked {
		if idx == winner.index {
			continue
		}
		p.mu.Unlock()
	}
	return locked[winner.index], true
}

// niceness returns floor(stime / (rtime+stime) * 10), or 0 when the
// process has accumulated no runtime or sleep time at all, exactly
// following the original's guard against a division by zero (spec.md
// §4.F, "PBS niceness formula").
func niceness(p *Proc) int {
	total := p.Rtime + p.Stime
	if total == 0 || p.Stime == 0 {
		return 0
	}
	return int((p.Stime * 10) / total)
}

// dynamicPriority computes clamp(priority - niceness + 5, 0, 100)
// (spec.md §4.F).
func dynamicPriority(p *Proc) int {
	dp := p.Priority - niceness(p) + 5
	if dp < 0 {
		dp = 0
	}
	if dp > 100 {
		dp = 100
	}
	return dp
}

// SetPriority implements the setpriority syscall (spec.md §4.D): it
// sets p's static Priority, resets Niceness to the default, and
// reports whether the new dynamic priority is more urgent than the old
// one (the caller yields in that case, matching the original's
// immediate-preemption behavior).
func (k *Kernel) SetPriority(pid uint64, priority int) (oldPriority int, shouldYield bool, err error) {
	for _, p := range k.proc {
		p.mu.Lock()
		if p.Pid != pid || p.State == Unused {
			p.mu.Unlock()
			continue
		}
		oldDP := dynamicPriority(p)
		oldPriority = p.Priority
		p.Priority = priority
		p.Niceness = defaultNiceness
		newDP := dynamicPriority(p)
		p.mu.Unlock()
		return oldPriority, newDP < oldDP, nil
	}
	return 0, false, ErrNoSuchPID
}

// SetPriority is Task's view of Kernel.SetPriority, scoped to the
// calling task's own pid. If the new dynamic priority is more urgent,
// the caller yields immediately, matching the original's
// setpriority() syscall calling yield() itself when appropriate.
func (t *Task) SetPriority(priority int) (oldPriority int, err error) {
	oldPriority, shouldYield, err := t.k.SetPriority(t.self.Pid, priority)
	if err != nil {
		return 0, err
	}
	if shouldYield {
		t.Yield()
	}
	return oldPriority, nil
}
