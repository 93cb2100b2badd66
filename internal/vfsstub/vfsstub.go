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

// Package vfsstub is the teaching kernel's Filesystem collaborator
// (spec.md §6): an in-memory directory of named inodes standing in for
// the original's on-disk log-structured filesystem, just deep enough
// to let fork/exit/fsinit exercise Cwd/Ofile handling.
package vfsstub

import (
	"sync"

	"github.com/talismancer/teachkernel/internal/kernel"
)

// FS is a minimal in-memory Filesystem collaborator.
type FS struct {
	mu        sync.Mutex
	inodes    map[string]*inode
	beginOps  int
	initDone  bool
}

// New returns an FS with a root directory already present.
func New() *FS {
	fs := &FS{inodes: make(map[string]*inode)}
	fs.inodes["/"] = &inode{path: "/", refs: 1}
	return fs
}

// Namei resolves path to an Inode, implementing the original's
// namei/namei-family lookups (spec.md §6 Filesystem).
func (fs *FS) Namei(path string) (kernel.Inode, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ino, ok := fs.inodes[path]
	if !ok {
		return nil, false
	}
	ino.refs++
	return ino, true
}

// BeginOp/EndOp bracket a filesystem transaction (log begin_op/end_op
// in the original). This in-memory stub needs no journal, so the only
// bookkeeping is beginOps; Exit brackets its cwd release with these
// (spec.md §4.C, matching the original's begin_op(); iput(cwd);
// end_op();).
func (fs *FS) BeginOp() {
	fs.mu.Lock()
	fs.beginOps++
	fs.mu.Unlock()
}

func (fs *FS) EndOp() {
	fs.mu.Lock()
	fs.beginOps--
	fs.mu.Unlock()
}

// Fsinit runs one-shot filesystem initialization from the first
// process's own context, matching the original's contract that fsinit
// must run from forkret rather than from boot (spec.md §4.E).
func (fs *FS) Fsinit() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.initDone = true
}

// inode is vfsstub's Inode implementation.
type inode struct {
	mu   sync.Mutex
	path string
	refs int
}

// Dup implements idup: bump the reference count and return self.
func (i *inode) Dup() kernel.Inode {
	i.mu.Lock()
	i.refs++
	i.mu.Unlock()
	return i
}

// Put implements iput: drop a reference.
func (i *inode) Put() {
	i.mu.Lock()
	i.refs--
	i.mu.Unlock()
}

// fileHandle is vfsstub's File implementation, a dup-able handle onto
// an inode (spec.md §6 Filesystem: filedup/fileclose).
type fileHandle struct {
	ino *inode
}

// NewFile wraps ino in a dup-able File handle, e.g. for populating a
// freshly allocated process's Ofile table.
func NewFile(ino kernel.Inode) kernel.File {
	i, _ := ino.(*inode)
	return &fileHandle{ino: i}
}

func (f *fileHandle) Dup() kernel.File {
	if f.ino != nil {
		f.ino.Dup()
	}
	return &fileHandle{ino: f.ino}
}

func (f *fileHandle) Close() {
	if f.ino != nil {
		f.ino.Put()
	}
}
