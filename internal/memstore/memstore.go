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

// Package memstore is the teaching kernel's Memory collaborator
// (spec.md §6): it stands in for a real physical-page allocator and
// hardware page table with page-aligned byte slices, grown and copied
// a page at a time the way the original's uvmalloc/uvmcopy operate on
// PGSIZE-rounded ranges.
package memstore

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/talismancer/teachkernel/internal/kernel"
)

// pageSize is queried once from the host rather than hardcoded, the
// same role PGSIZE plays in the original but sized for whatever this
// process actually runs on.
var pageSize = uint64(unix.Getpagesize())

func roundUp(sz uint64) uint64 {
	if sz%pageSize == 0 {
		return sz
	}
	return (sz/pageSize + 1) * pageSize
}

// Store is a Memory collaborator backed by plain Go byte slices kept
// in the host process's own heap, budgeted by a page count so fork and
// growproc can still fail with ErrOOM the way a real allocator would
// once physical pages run out (spec.md §4.C).
type Store struct {
	mu          sync.Mutex
	maxPages    uint64
	usedPages   uint64
	trapFrames  int
	maxTrapFrames int
}

// NewStore returns a Memory collaborator budgeted to maxPages pages of
// user memory and maxTrapFrames trap frames.
func NewStore(maxPages, maxTrapFrames int) *Store {
	return &Store{maxPages: uint64(maxPages), maxTrapFrames: maxTrapFrames}
}

// AllocTrapFrame returns a fresh trap frame, or nil once maxTrapFrames
// outstanding frames are in use (spec.md §4.A allocproc: "OOM ->
// ErrOOM").
func (s *Store) AllocTrapFrame() *kernel.TrapFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trapFrames >= s.maxTrapFrames {
		return nil
	}
	s.trapFrames++
	return &kernel.TrapFrame{}
}

// NewAddressSpace returns an empty address space charged against s's
// page budget as it grows.
func (s *Store) NewAddressSpace() kernel.AddressSpace {
	return &addrSpace{store: s}
}

// addrSpace is one process's simulated user memory: a single
// contiguous byte slice, page-rounded, standing in for a multi-level
// page table (spec.md Glossary "AddressSpace").
type addrSpace struct {
	store *Store
	pages uint64 // pages currently charged to store
	mem   []byte
}

func (a *addrSpace) chargeDelta(oldPages, newPages uint64) bool {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if newPages > oldPages {
		delta := newPages - oldPages
		if a.store.usedPages+delta > a.store.maxPages {
			return false
		}
		a.store.usedPages += delta
	} else {
		a.store.usedPages -= oldPages - newPages
	}
	return true
}

// Grow implements uvmalloc/uvmdealloc (spec.md §4.C growproc): it
// resizes the backing slice to newSz bytes, page-rounded, zero-filling
// any newly mapped region. On failure to charge the larger size it
// leaves the address space unchanged and returns oldSz.
func (a *addrSpace) Grow(oldSz, newSz uint64) (uint64, bool) {
	oldPages := roundUp(oldSz) / pageSize
	newPages := roundUp(newSz) / pageSize

	if !a.chargeDelta(oldPages, newPages) {
		return oldSz, false
	}

	grown := make([]byte, newPages*pageSize)
	copy(grown, a.mem)
	a.mem = grown
	a.pages = newPages
	return newSz, true
}

// Copy duplicates up to sz bytes of a's mapped contents into dst,
// implementing uvmcopy (spec.md §4.C fork).
func (a *addrSpace) Copy(dst kernel.AddressSpace, sz uint64) bool {
	d, ok := dst.(*addrSpace)
	if !ok {
		return false
	}
	if _, ok := d.Grow(0, sz); !ok {
		return false
	}
	copy(d.mem, a.mem)
	return true
}

// CopyOut writes p into a's mapped memory at addr, reporting whether
// the whole range addr..addr+len(p) is mapped (either-copyout's role
// for kernel-to-user writes). Wait/WaitX use this to copy a reaped
// child's exit status out to a caller-supplied address (spec.md §4.C).
func (a *addrSpace) CopyOut(addr uint64, p []byte) bool {
	if addr+uint64(len(p)) > uint64(len(a.mem)) {
		return false
	}
	copy(a.mem[addr:], p)
	return true
}

// Destroy releases a's pages back to the store (spec.md §4.A
// freeproc).
func (a *addrSpace) Destroy() {
	a.chargeDelta(a.pages, 0)
	a.mem = nil
	a.pages = 0
}
