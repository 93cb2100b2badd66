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

import "encoding/binary"

// This file realizes spec.md §4.C, the process lifecycle operations:
// userinit, fork, growproc, exit, wait, waitx, kill, and the reparent
// helper exit leans on.

// Userinit creates the very first process and makes it Runnable. It
// may be called exactly once per Kernel; calling it twice panics, the
// same invariant the original enforces by only ever calling userinit
// from main() before any CPU starts its scheduler loop.
func (k *Kernel) Userinit(workload Workload) *Proc {
	if k.initproc != nil {
		k.console.Panic("Userinit: already called")
	}

	p, err := k.allocproc()
	if err != nil {
		k.console.Panic("Userinit: allocproc: %v", err)
	}

	root, ok := k.fs.Namei("/")
	if !ok {
		k.console.Panic("Userinit: root inode missing")
	}
	p.Cwd = root
	p.Name = "initcode"
	p.Sz = PGSIZE
	p.TrapFrame.Epc = 0
	p.TrapFrame.Sp = PGSIZE
	p.State = Runnable

	k.initproc = p
	p.mu.Unlock()

	go k.runProc(p, workload)
	return p
}

// Fork creates a new process as a near-copy of parent: same address
// space contents, same open files and cwd, running workload from
// scratch rather than resuming parent's exact point of execution
// (spec.md Design Notes: "duplicate an execution point mid-function" →
// "supply a fresh entry point", since there is no saved register
// context to literally resume here). Its PPID is parent's and its
// priority/niceness reset to the slot defaults, matching allocproc.
func (k *Kernel) Fork(parent *Proc, workload Workload) (uint64, error) {
	child, err := k.allocproc()
	if err != nil {
		return 0, err
	}

	if !parent.AddrSpace.Copy(child.AddrSpace, parent.Sz) {
		k.freeproc(child)
		child.mu.Unlock()
		return 0, ErrOOM
	}
	child.Sz = parent.Sz
	*child.TrapFrame = *parent.TrapFrame
	child.TrapFrame.A0 = 0 // fork returns 0 in the child

	for i := range parent.Ofile {
		if parent.Ofile[i] != nil {
			child.Ofile[i] = parent.Ofile[i].Dup()
		}
	}
	if parent.Cwd != nil {
		child.Cwd = parent.Cwd.Dup()
	}
	child.Name = parent.Name

	pid := child.Pid
	child.mu.Unlock()

	k.waitLock.Lock()
	child.Parent = parent
	k.waitLock.Unlock()

	child.mu.Lock()
	child.State = Runnable
	child.mu.Unlock()

	go k.runProc(child, workload)
	return pid, nil
}

// GrowProc changes self's memory size by n bytes (n may be negative),
// implementing sbrk's underlying mechanism (spec.md §4.C growproc).
func (k *Kernel) GrowProc(self *Proc, n int64) error {
	oldSz := self.Sz
	var newSz uint64
	if n >= 0 {
		newSz = oldSz + uint64(n)
	} else {
		newSz = oldSz - uint64(-n)
	}
	sz, ok := self.AddrSpace.Grow(oldSz, newSz)
	self.Sz = sz
	if !ok {
		return ErrOOM
	}
	return nil
}

// reparent re-homes every child of p onto initproc and wakes initproc
// in case one of them is already a zombie awaiting reaping (spec.md
// §4.C). The caller must hold waitLock, which is the sole guard on the
// Parent field (lock.go), so reparent reads and writes it directly
// without touching any slot's own lock.
func (k *Kernel) reparent(p *Proc) {
	for _, pp := range k.proc {
		if pp.Parent == p {
			pp.Parent = k.initproc
			k.Wakeup(chanOf(k.initproc))
		}
	}
}

// Exit implements process termination (spec.md §4.C): children are
// reparented to initproc, the caller's parent is woken, and self
// becomes a Zombie carrying status until its parent reaps it via Wait
// or WaitX. The original never returns from exit once it calls sched,
// since a ZOMBIE slot is never scheduled again; here Exit returns
// after handing control back to the scheduler one last time
// (schedExit, which does not wait to be resumed), so the goroutine
// backing self can unwind and runProc's deferred cleanup can run. By
// the time Exit returns, self may already have been reaped and reused
// by a new process, so the calling goroutine must not operate on self
// again; runProc only reads its Pid and State, under its lock, to tell
// whether that happened.
func (k *Kernel) Exit(self *Proc, status int32) {
	if self == k.initproc {
		k.console.Panic("Exit: initproc exiting")
	}

	for i := range self.Ofile {
		if self.Ofile[i] != nil {
			self.Ofile[i].Close()
			self.Ofile[i] = nil
		}
	}
	if self.Cwd != nil {
		k.fs.BeginOp()
		self.Cwd.Put()
		k.fs.EndOp()
		self.Cwd = nil
	}

	k.waitLock.Lock()
	k.reparent(self)
	if self.Parent != nil {
		k.Wakeup(chanOf(self.Parent))
	}

	cpu := self.runningOn
	k.acquireOn(cpu, self)
	self.Xstate = status
	self.Etime = k.ticks.Load()
	self.State = Zombie
	k.waitLock.Unlock()

	k.schedExit(self)
}

// Wait blocks self until one of its children exits, reaps the first
// zombie child found, and returns its pid and exit status (spec.md
// §4.C). It returns ErrNoChildren if self has no children at all, or
// ErrKilled if self was killed while waiting. If addr is nonzero, the
// reaped child's exit status is also copied out to that user address
// in self's address space; a failed copy-out returns ErrBadAddr and
// leaves the zombie unreaped, matching the original's copyout-then-
// freeproc ordering in wait().
func (k *Kernel) Wait(self *Proc, addr uint64) (uint64, int32, error) {
	k.waitLock.Lock()
	for {
		haveKids := false
		for _, p := range k.proc {
			p.mu.Lock()
			if p.Parent == self {
				haveKids = true
				if p.State == Zombie {
					pid := p.Pid
					xstate := p.Xstate
					if addr != 0 {
						var buf [4]byte
						binary.LittleEndian.PutUint32(buf[:], uint32(xstate))
						if !self.AddrSpace.CopyOut(addr, buf[:]) {
							p.mu.Unlock()
							k.waitLock.Unlock()
							return 0, 0, ErrBadAddr
						}
					}
					k.freeproc(p)
					p.mu.Unlock()
					k.waitLock.Unlock()
					return pid, xstate, nil
				}
			}
			p.mu.Unlock()
		}

		if !haveKids {
			k.waitLock.Unlock()
			return 0, 0, ErrNoChildren
		}
		self.mu.Lock()
		killed := self.Killed
		self.mu.Unlock()
		if killed {
			k.waitLock.Unlock()
			return 0, 0, ErrKilled
		}

		k.Sleep(self, chanOf(self), &k.waitLock)
	}
}

// WaitX is Wait with the timing accounting spec.md §4.C calls for:
// rtime is the reaped child's total accumulated run time and wtime is
// its total wait time (the interval between creation and exit spent
// neither running nor accounted as rtime). This resolves the original
// source's waitx bug, where the reaped value assigned to *rtime was
// actually the child's pid; here rtime is always child.Rtime.
// addr carries the same copy-out-the-exit-status contract as Wait.
func (k *Kernel) WaitX(self *Proc, addr uint64) (pid uint64, status int32, rtime, wtime int64, err error) {
	k.waitLock.Lock()
	for {
		haveKids := false
		for _, p := range k.proc {
			p.mu.Lock()
			if p.Parent == self {
				haveKids = true
				if p.State == Zombie {
					pid = p.Pid
					status = p.Xstate
					rtime = p.Rtime
					wtime = p.Etime - p.Ctime - p.Rtime
					if addr != 0 {
						var buf [4]byte
						binary.LittleEndian.PutUint32(buf[:], uint32(status))
						if !self.AddrSpace.CopyOut(addr, buf[:]) {
							p.mu.Unlock()
							k.waitLock.Unlock()
							return 0, 0, 0, 0, ErrBadAddr
						}
					}
					k.freeproc(p)
					p.mu.Unlock()
					k.waitLock.Unlock()
					return pid, status, rtime, wtime, nil
				}
			}
			p.mu.Unlock()
		}

		if !haveKids {
			k.waitLock.Unlock()
			return 0, 0, 0, 0, ErrNoChildren
		}
		self.mu.Lock()
		killed := self.Killed
		self.mu.Unlock()
		if killed {
			k.waitLock.Unlock()
			return 0, 0, 0, 0, ErrKilled
		}

		k.Sleep(self, chanOf(self), &k.waitLock)
	}
}

// Kill marks the process identified by pid as killed and, if it is
// currently sleeping, promotes it straight to Runnable so it observes
// Killed the next time it would otherwise block (spec.md §4.C: "a
// killed process sleeping in wait/waitx wakes promptly rather than
// waiting for an unrelated wakeup").
func (k *Kernel) Kill(pid uint64) error {
	for _, p := range k.proc {
		p.mu.Lock()
		if p.Pid == pid {
			p.Killed = true
			if p.State == Sleeping {
				p.State = Runnable
			}
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()
	}
	return ErrNoSuchPID
}

// Exit is also exposed through Task for workloads running as self.
func (t *Task) Exit(status int32) { t.k.Exit(t.self, status) }

// Fork is exposed through Task so a workload can spawn a child without
// holding a *Kernel reference separately from its own Task.
func (t *Task) Fork(workload Workload) (uint64, error) { return t.k.Fork(t.self, workload) }

// Wait/WaitX/GrowProc/Sleep mirror the Kernel-level operations,
// scoped to the task's own process. addr is the user address to copy
// the reaped child's exit status out to; pass 0 to skip the copy-out,
// matching the original wait/waitx syscalls' addr==0 convention.
func (t *Task) Wait(addr uint64) (uint64, int32, error) { return t.k.Wait(t.self, addr) }

func (t *Task) WaitX(addr uint64) (pid uint64, status int32, rtime, wtime int64, err error) {
	return t.k.WaitX(t.self, addr)
}

func (t *Task) GrowProc(n int64) error { return t.k.GrowProc(t.self, n) }

func (t *Task) Sleep(ch waitChannel, lk sync_Locker) { t.k.Sleep(t.self, ch, lk) }
