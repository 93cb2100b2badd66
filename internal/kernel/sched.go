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

// This file realizes spec.md §4.E, the context-switch contract, and
// §4.F's scheduler loop skeleton (policy selection itself lives in
// policy.go). The push_off/pop_off nesting counter is bracketed only
// around the lock/unlock pairs that actually cross a sched() call —
// the scheduler's own per-candidate lock and the running process's own
// lock in Yield/Sleep/Exit — since those are the only sites spec.md
// §4.E's panic conditions (wrong noff, called while RUNNING, called
// with interrupts enabled, called without the slot lock held) can ever
// observe. Other procMutex/waitMutex critical sections (wait's child
// scan, kill, reparent, setpriority) never call sched and so never
// touch this counter; threading it through every such call site would
// add bookkeeping with no externally observable effect here.

// pushOff disables cpu's interrupts and increments its nesting depth,
// saving the pre-push interrupt state the first time the nesting goes
// from zero to one.
func (k *Kernel) pushOff(cpu *CPU) {
	old := k.arch.IntrGet(cpu)
	k.arch.IntrOff(cpu)
	if cpu.noff == 0 {
		cpu.intena = old
	}
	cpu.noff++
}

// popOff reverses one pushOff, restoring interrupts once the nesting
// depth returns to zero and the pre-push state was enabled.
func (k *Kernel) popOff(cpu *CPU) {
	cpu.noff--
	if cpu.noff < 0 {
		k.console.Panic("popOff: unbalanced with pushOff")
	}
	if cpu.noff == 0 && cpu.intena {
		k.arch.IntrOn(cpu)
	}
}

// acquireOn locks p on behalf of code currently executing on cpu.
func (k *Kernel) acquireOn(cpu *CPU, p *Proc) {
	p.mu.Lock()
	k.pushOff(cpu)
}

// releaseOn unlocks p on behalf of code currently executing on cpu.
func (k *Kernel) releaseOn(cpu *CPU, p *Proc) {
	k.popOff(cpu)
	p.mu.Unlock()
}

// checkSchedInvariants enforces spec.md §4.E's four preconditions for
// calling sched: the slot's own lock held, exactly one pushOff
// outstanding, state already moved off Running, and interrupts
// disabled. A violation is a programming bug, not an expected failure,
// so it panics rather than returning an error.
func (k *Kernel) checkSchedInvariants(p *Proc) *CPU {
	cpu := p.runningOn
	if p.mu.TryLock() {
		p.mu.Unlock()
		k.console.Panic("sched: p.mu not held")
	}
	if cpu.noff != 1 {
		k.console.Panic("sched: noff %d, want 1", cpu.noff)
	}
	if p.State == Running {
		k.console.Panic("sched: process still RUNNING")
	}
	if k.arch.IntrGet(cpu) {
		k.console.Panic("sched: interrupts enabled")
	}
	return cpu
}

// sched may be called only with p.mu held, p.State already changed
// away from Running, and cpu interrupts disabled with exactly one lock
// outstanding (spec.md §4.E). It hands control back to the scheduler
// and blocks until some later Select picks this slot again, mirroring
// one swtch-out/swtch-in round trip.
func (k *Kernel) sched(p *Proc) {
	cpu := k.checkSchedInvariants(p)
	intena := cpu.intena
	p.parked <- struct{}{}
	<-p.resume
	p.runningOn.intena = intena
}

// schedExit is sched's terminal counterpart, used only by Exit once a
// slot has become a Zombie. It hands control back to the scheduler
// exactly like sched, but does not wait to be resumed: a Zombie slot
// is never selected again until it is reaped and reallocated under a
// new generation, so there is nothing to resume. This lets the
// goroutine backing an exited process actually return instead of
// blocking forever, which is what lets runProc's deferred cleanup run.
func (k *Kernel) schedExit(p *Proc) {
	k.checkSchedInvariants(p)
	p.parked <- struct{}{}
}

// Yield is the canonical preemption point (spec.md §4.E): acquire own
// slot lock, mark RUNNABLE, sched, release. It is unconditional — the
// policy-dependent decision of *whether* to call Yield belongs to the
// simulated timer/trap layer (see Task.TimerTick), not to Yield
// itself, exactly as the original's timer trap chooses whether to call
// yield() at all.
func (k *Kernel) Yield(self *Proc) {
	cpu := self.runningOn
	k.acquireOn(cpu, self)
	self.State = Runnable
	k.sched(self)
	k.releaseOn(self.runningOn, self)
}

// runProc is the body of the goroutine backing one process slot. It
// blocks until the scheduler's first Swtch, releases the lock the
// scheduler acquired before that Swtch (forkret's role in the
// original), runs fsinit exactly once across the kernel's lifetime,
// then runs workload to completion. A workload that returns without
// calling Task.Exit is exited with status 0 as a convenience so no
// goroutine or slot is ever leaked by an incomplete test workload.
// initproc is the exception, since Exit refuses it: when its workload
// returns, its goroutine ends without exiting, its slot stays Running,
// and the CPU that ran it stays blocked in Swtch.
func (k *Kernel) runProc(p *Proc, workload Workload) {
	<-p.resume
	pid := p.Pid
	k.releaseOn(p.runningOn, p)
	defer close(p.exited)

	if k.fsinitOnce.CompareAndSwap(false, true) {
		k.fs.Fsinit()
	}

	t := &Task{k: k, self: p}
	workload(t)

	if p == k.initproc {
		return
	}
	// A workload that called Exit may already have been reaped, and its
	// slot reused under a new pid, by the time control gets back here.
	p.mu.Lock()
	exited := p.Pid != pid || p.State == Zombie
	p.mu.Unlock()
	if !exited {
		t.Exit(0)
	}
}

// SchedulerLoop is the per-CPU scheduler driver (spec.md §4.F): it
// repeatedly asks the active policy for the next slot to run, resumes
// it, and waits for it to park again before releasing the lock the
// policy's Select acquired. SchedulerLoop runs until stop is closed, the
// natural shutdown path for a simulated kernel with no real power-off
// interrupt. stop is checked only between iterations, so a loop blocked
// in Swtch on a process that never parks again does not return.
func (k *Kernel) SchedulerLoop(cpu *CPU, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		p, ok := k.policy.Select(k, cpu)
		if !ok {
			continue
		}

		k.pushOff(cpu)
		p.runningOn = cpu
		p.State = Running
		p.NumOfRuns++
		cpu.current = p

		k.arch.Swtch(cpu, p)

		cpu.current = nil
		k.releaseOn(cpu, p)
	}
}

// Task bundles a Kernel and the Proc slot a workload is running as,
// mirroring the teacher's syscalls.linux functions taking a
// *kernel.Task receiver (pkg/sentry/syscalls/linux/sys_sched.go)
// rather than relying on goroutine-local "current process" lookup.
type Task struct {
	k    *Kernel
	self *Proc
}

// Workload is the function a forked process runs; it plays the role
// of "user code" between kernel entry and exit in the original.
type Workload func(t *Task)

// Proc returns the underlying process slot.
func (t *Task) Proc() *Proc { return t.self }

// Yield hands the CPU back to the scheduler for one round (spec.md
// §4.E).
func (t *Task) Yield() { t.k.Yield(t.self) }

// TimerTick simulates one timer interrupt while t is running: it
// always advances the global tick counter, then yields only if the
// active scheduling policy allows preemption (spec.md §4.F: "FCFS is
// non-preemptive by contract; the timer must not yield under FCFS").
// CPU-bound workloads call this once per simulated unit of work in
// place of a real timer trap.
func (t *Task) TimerTick() {
	t.k.Tick()
	if t.k.policy.Preemptible() {
		t.Yield()
	}
}

// Spin simulates n ticks of CPU-bound work, calling TimerTick once per
// tick.
func (t *Task) Spin(n int) {
	for i := 0; i < n; i++ {
		t.TimerTick()
	}
}
