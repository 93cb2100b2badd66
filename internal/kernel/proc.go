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

// Package kernel implements the process subsystem of a small teaching
// kernel: a fixed-size process table, process lifecycle, sleep/wakeup,
// and a per-CPU scheduler with three interchangeable policies.
package kernel

import "fmt"

// NOFILE is the number of open-file slots per process.
const NOFILE = 16

// PGSIZE is the page size userinit sizes initcode's address space and
// stack pointer against (spec.md §4.C, original proc.c:266 PGSIZE).
const PGSIZE = 4096

// ProcState is a process slot's lifecycle state (spec.md §3).
type ProcState int

const (
	// Unused marks a free slot.
	Unused ProcState = iota
	// Used marks a slot that has been allocated but is not yet
	// runnable (between allocproc and userinit/fork completing setup).
	Used
	// Sleeping marks a slot blocked on a channel.
	Sleeping
	// Runnable marks a slot ready to run but not currently scheduled.
	Runnable
	// Running marks a slot currently executing on some CPU.
	Running
	// Zombie marks a slot that has exited but not yet been reaped.
	Zombie
)

func (s ProcState) String() string {
	switch s {
	case Unused:
		return "unused"
	case Used:
		return "used"
	case Sleeping:
		return "sleeping"
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Zombie:
		return "zombie"
	default:
		return fmt.Sprintf("ProcState(%d)", int(s))
	}
}

// Default PBS fields (spec.md §3 "PBS fields").
const (
	defaultPriority = 60
	defaultNiceness = 5
)

// Proc is one process-table slot (spec.md §3). Every field that is
// read or written after the slot leaves Unused is guarded by mu,
// except Parent, which the Kernel's waitLock guards. Procdump also
// takes mu, one slot at a time.
type Proc struct {
	mu procMutex

	index      int    // slot index, stable for the slot's lifetime
	generation uint64 // bumped on every allocproc; see Design Notes

	Pid    uint64
	State  ProcState
	Parent *Proc

	AddrSpace AddressSpace
	Sz        uint64
	TrapFrame *TrapFrame
	Context   Context
	Kstack    uint64

	Ofile [NOFILE]File
	Cwd   Inode
	Name  string

	Xstate  int32
	Killed  bool
	Chan    uintptr
	Tracemask uint64

	// Timing fields (spec.md §3 "Timing fields").
	Ctime     int64
	Rtime     int64
	Stime     int64
	Etime     int64
	NumOfRuns int64

	// PBS fields (spec.md §3 "PBS fields").
	Priority         int
	Niceness         int
	DynamicPriority  int

	// resume/parked form the context-switch rendezvous described in
	// SPEC_FULL.md's Design Notes: the scheduler goroutine sends on
	// resume to hand control to this slot's backing goroutine, and
	// receives on parked once that goroutine has stopped running
	// (blocked in sched()). Both channels are capacity 1 so a send
	// never blocks on a receiver that hasn't reached its matching
	// rendezvous point yet.
	resume chan struct{}
	parked chan struct{}
	// exited is closed once the backing goroutine has returned (after
	// exit(), or for initproc once its workload returns), so callers
	// can observe that it finished.
	exited chan struct{}

	// runningOn is set by the scheduler immediately before resuming
	// this slot and cleared immediately after it parks again; it lets
	// sched() find "my CPU" without goroutine-local storage.
	runningOn *CPU
}

// Index returns the slot's stable table index.
func (p *Proc) Index() int { return p.index }

// Done returns a channel closed once this slot's backing goroutine has
// returned (after Exit, or for initproc once its workload returns),
// letting callers outside the package (tests,
// cmd/kctl) wait for a process to fully finish without polling State.
func (p *Proc) Done() <-chan struct{} { return p.exited }

// Generation returns the allocation generation stamped the last time
// this slot transitioned out of Unused. Parent back-references are
// kept as *Proc plus this counter so a debug assertion can detect a
// stale reference into a slot that has since been reused — belt and
// suspenders given PID non-reuse already rules out the case in
// practice (spec.md §9 Design Notes, "Parent back-reference").
func (p *Proc) Generation() uint64 { return p.generation }
