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

import "github.com/mohae/deepcopy"

// ProcSnapshot is one row of a procdump listing (spec.md §4.C
// procdump): the console-facing subset of a slot's fields, detached
// from the live Proc so a caller can print it without holding any
// lock for the duration.
type ProcSnapshot struct {
	Index           int
	Pid             uint64
	State           ProcState
	Name            string
	Priority        int
	Niceness        int
	DynamicPriority int
	Ctime           int64
	Rtime           int64
	Stime           int64
	NumOfRuns       int64
}

// Procdump returns a snapshot of every non-Unused slot. It is not
// lock-free: it takes each slot's lock in turn, holding it only long
// enough to deep-copy the slot's scalar fields out and never holding
// two at once. Lock waits, so a slot whose lock is held elsewhere
// delays the dump until that lock is released. Each row is consistent
// within its slot; the rows together are not one atomic view of the
// table.
func (k *Kernel) Procdump() []ProcSnapshot {
	out := make([]ProcSnapshot, 0, len(k.proc))
	for _, p := range k.proc {
		p.mu.Lock()
		if p.State == Unused {
			p.mu.Unlock()
			continue
		}
		snap := deepcopy.Copy(ProcSnapshot{
			Index:           p.index,
			Pid:             p.Pid,
			State:           p.State,
			Name:            p.Name,
			Priority:        p.Priority,
			Niceness:        p.Niceness,
			DynamicPriority: p.DynamicPriority,
			Ctime:           p.Ctime,
			Rtime:           p.Rtime,
			Stime:           p.Stime,
			NumOfRuns:       p.NumOfRuns,
		}).(ProcSnapshot)
		p.mu.Unlock()
		out = append(out, snap)
	}
	return out
}

// Procdump is Task's view of Kernel.Procdump.
func (t *Task) Procdump() []ProcSnapshot { return t.k.Procdump() }
