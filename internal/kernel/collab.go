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

// This file defines the collaborator interfaces spec.md §6 calls out as
// out-of-scope for the process subsystem proper (memory, trap/arch,
// filesystem, console). The kernel package only depends on these
// interfaces; internal/memstore, internal/vfsstub and internal/klog
// provide the concrete stand-ins wired up in NewKernel.

// AddressSpace is a handle to one process's user memory, the
// pagetable of spec.md §3.
type AddressSpace interface {
	// Grow changes the mapped size from oldSz to newSz bytes, zero
	// filling newly mapped pages. It returns the new size; on failure
	// to grow it returns oldSz unchanged (spec.md §4.C growproc).
	Grow(oldSz, newSz uint64) (uint64, bool)

	// Copy duplicates the address space's mapped contents (up to sz
	// bytes) into dst, used by fork (spec.md §4.C).
	Copy(dst AddressSpace, sz uint64) bool

	// CopyOut writes len(p) bytes to user address addr. It reports
	// whether addr..addr+len(p) is mapped.
	CopyOut(addr uint64, p []byte) bool

	// Destroy releases all backing pages. Called from freeproc.
	Destroy()
}

// Memory is the memory collaborator (spec.md §6): it allocates pages
// and builds/destroys address spaces.
type Memory interface {
	// NewAddressSpace returns an empty user address space (no user
	// memory mapped beyond trampoline/trapframe bookkeeping, mirroring
	// proc_pagetable in the original source).
	NewAddressSpace() AddressSpace

	// AllocTrapFrame returns a fresh, page-backed trap frame.
	AllocTrapFrame() *TrapFrame
}

// TrapFrame is the architecture-dependent saved user register set on
// kernel entry (spec.md Glossary). Only the fields the process
// subsystem itself touches are modeled.
type TrapFrame struct {
	Epc uint64 // user program counter
	Sp  uint64 // user stack pointer
	A0  uint64 // first syscall argument / return value register
}

// Context is the saved kernel (callee-saved) register context spec.md
// §3 calls out: ra and sp are the only two fields any policy-neutral
// code needs to reason about.
type Context struct {
	Ra uint64
	Sp uint64
}

// Arch is the trap/arch collaborator (spec.md §6): swtch and interrupt
// control. CPU identification is not part of it; it is CPU.ID. The
// concrete implementation used by this repo (archStub, in archstub.go)
// realizes Swtch with goroutine
// parking rather than a register save/restore, since there is no real
// register file to swap — see the Design Notes in SPEC_FULL.md.
type Arch interface {
	// Swtch exchanges control between the scheduler loop running on
	// cpu and the process p has just been set to run; it returns once
	// p has parked again (spec.md §4.E).
	Swtch(cpu *CPU, p *Proc)

	// IntrOn/IntrOff/IntrGet model enabling, disabling, and querying a
	// CPU's device-interrupt line.
	IntrOn(cpu *CPU)
	IntrOff(cpu *CPU)
	IntrGet(cpu *CPU) bool
}

// File is the filesystem collaborator's per-descriptor handle
// (spec.md §6, "Filesystem": filedup/fileclose).
type File interface {
	Dup() File
	Close()
}

// Inode is the filesystem collaborator's cwd handle (idup/iput/namei).
type Inode interface {
	Dup() Inode
	Put()
}

// Filesystem is the filesystem collaborator (spec.md §6).
type Filesystem interface {
	Namei(path string) (Inode, bool)
	BeginOp()
	EndOp()
	// Fsinit runs one-shot filesystem initialization. Spec.md §4.E
	// requires this run from the very first process's context
	// (forkret), not from boot.
	Fsinit()
}

// Console is the console collaborator (spec.md §6): printf/panic.
type Console interface {
	Printf(format string, args ...any)
	// Panic logs a terminal, unrecoverable kernel error and never
	// returns (spec.md §7, "Programming invariants" row).
	Panic(format string, args ...any)
}
