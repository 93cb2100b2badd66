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

import "sync/atomic"

// CPU is one per-hardware-thread descriptor (spec.md §3 "Global
// state"). Unlike the original's struct cpu, there is no saved
// scheduler Context field here: the scheduler loop runs on a real Go
// goroutine, so the call stack the Go runtime already maintains across
// the channel-based swtch (sched.go) is that saved context. Keeping a
// parallel register-context field around it would just be dead state.
type CPU struct {
	id      int
	current *Proc // the slot currently RUNNING on this CPU, or nil

	// noff/intena realize push_off/pop_off (spec.md §6 Trap/Arch):
	// device-interrupt state is a property of the physical CPU, since
	// exactly one kernel thread runs on a given CPU at a time both in
	// the original and in this model (the scheduler goroutine blocks
	// on the running slot's parked channel until it parks again).
	noff   int
	intena bool
	intrOn bool
}

// ID returns the CPU's identifier, the cpuid() of spec.md §6.
func (c *CPU) ID() int { return c.id }

// Current returns the slot currently RUNNING on this CPU, or nil.
func (c *CPU) Current() *Proc { return c.current }

// Kernel is the explicit context threading every process-subsystem
// operation: the single value that replaces the original's package
// globals (proc[], cpus[], initproc, nextpid, the locks, ticks), per
// spec.md §9 "Global mutable state → explicit context".
type Kernel struct {
	proc     []*Proc
	cpus     []*CPU
	initproc *Proc

	nextPID uint64
	pidLock pidMutex
	waitLock waitMutex

	ticks atomic.Int64

	mem     Memory
	fs      Filesystem
	console Console
	policy  SchedulerPolicy
	arch    Arch

	fsinitOnce atomic.Bool
}

// Config bundles the table-size and CPU-count parameters a Kernel is
// built with; the scheduling policy is passed to NewKernel separately
// (internal/kconfig.Config is the user-facing, flag-backed superset of
// these fields).
type Config struct {
	NPROC int
	NCPU  int
}

// NewKernel allocates an empty process table of cfg.NPROC slots and
// cfg.NCPU CPU descriptors, wired to the given collaborators and
// scheduling policy. No process is runnable until Userinit is called.
func NewKernel(cfg Config, mem Memory, fs Filesystem, console Console, policy SchedulerPolicy, arch Arch) *Kernel {
	k := &Kernel{
		proc:    make([]*Proc, cfg.NPROC),
		cpus:    make([]*CPU, cfg.NCPU),
		nextPID: 1,
		mem:     mem,
		fs:      fs,
		console: console,
		policy:  policy,
		arch:    arch,
	}
	for i := range k.proc {
		k.proc[i] = &Proc{index: i, State: Unused}
	}
	for i := range k.cpus {
		k.cpus[i] = &CPU{id: i}
	}
	return k
}

// NumSlots returns the size of the process table (NPROC).
func (k *Kernel) NumSlots() int { return len(k.proc) }

// CPUs returns the Kernel's CPU descriptors, for SchedulerLoop callers.
func (k *Kernel) CPUs() []*CPU { return k.cpus }

// Ticks returns the current tick count.
func (k *Kernel) Ticks() int64 { return k.ticks.Load() }

// Tick advances the tick counter by one and runs time accounting
// (spec.md §4.G update_time). It is the timer subsystem's single entry
// point into this package.
func (k *Kernel) Tick() {
	k.ticks.Add(1)
	k.updateTime()
}

// allocproc scans the table for an Unused slot, initializes it, and
// returns it with its lock still held (spec.md §4.A). It returns
// ErrTableFull if every slot is in use, or ErrOOM if a collaborator
// allocation fails partway through (the partially-built slot is freed
// before returning).
func (k *Kernel) allocproc() (*Proc, error) {
	for _, p := range k.proc {
		p.mu.Lock()
		if p.State != Unused {
			p.mu.Unlock()
			continue
		}

		p.Pid = k.allocpid()
		p.State = Used
		p.generation++

		p.TrapFrame = k.mem.AllocTrapFrame()
		if p.TrapFrame == nil {
			k.freeproc(p)
			p.mu.Unlock()
			return nil, ErrOOM
		}

		p.AddrSpace = k.mem.NewAddressSpace()
		if p.AddrSpace == nil {
			k.freeproc(p)
			p.mu.Unlock()
			return nil, ErrOOM
		}

		p.Context = Context{}
		p.Kstack = uint64(p.index) // stand-in for KSTACK(slot index)

		p.Ctime = k.ticks.Load()
		p.Rtime, p.Stime, p.Etime, p.NumOfRuns = 0, 0, 0, 0
		p.Priority = defaultPriority
		p.Niceness = defaultNiceness
		p.DynamicPriority = 0
		p.Xstate = 0
		p.Killed = false
		p.Chan = 0
		p.Name = ""
		p.Tracemask = 0
		p.Parent = nil

		p.resume = make(chan struct{}, 1)
		p.parked = make(chan struct{}, 1)
		p.exited = make(chan struct{})

		return p, nil
	}
	return nil, ErrTableFull
}

// freeproc releases a slot's collaborator-owned resources and returns
// it to Unused. The caller must hold p.mu (spec.md §4.A).
func (k *Kernel) freeproc(p *Proc) {
	if p.TrapFrame != nil {
		p.TrapFrame = nil
	}
	if p.AddrSpace != nil {
		p.AddrSpace.Destroy()
		p.AddrSpace = nil
	}
	for i := range p.Ofile {
		if p.Ofile[i] != nil {
			p.Ofile[i].Close()
			p.Ofile[i] = nil
		}
	}
	p.Sz = 0
	p.Pid = 0
	p.Parent = nil
	p.Name = ""
	p.Chan = 0
	p.Killed = false
	p.Xstate = 0
	p.Tracemask = 0
	p.Ctime, p.Rtime, p.Stime, p.Etime, p.NumOfRuns = 0, 0, 0, 0, 0
	p.Priority, p.Niceness, p.DynamicPriority = 0, 0, 0
	p.State = Unused
}
