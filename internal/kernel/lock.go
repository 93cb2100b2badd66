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

import "sync"

// procMutex guards a single process-table slot. It is a thin wrapper
// around sync.Mutex, in the spirit of the teacher's generated per-type
// mutex wrappers: the wrapping exists so the acquisition order
// (waitMutex before any procMutex; several procMutexes are held at
// once only by FCFS/PBS selection, which takes them in ascending slot
// index order and keeps every RUNNABLE candidate's lock until the
// winner is known, so a losing candidate is not released before the
// next one is taken) has one place to be documented, rather than being
// left to convention across every call site. Nothing checks the order
// at run time.
type procMutex struct {
	mu sync.Mutex
}

// Lock acquires m.
func (m *procMutex) Lock() { m.mu.Lock() }

// Unlock releases m.
func (m *procMutex) Unlock() { m.mu.Unlock() }

// TryLock attempts to acquire m without blocking.
func (m *procMutex) TryLock() bool { return m.mu.TryLock() }

// NestedLock acquires m knowing that at least one other procMutex is
// already held by the caller (scheduler policy selection in policy.go
// holds every RUNNABLE candidate's lock at once while building its
// ordered set, releasing every loser only once the winner is known).
// It exists purely as a call-site marker; the actual exclusion is
// still a plain mutex.
func (m *procMutex) NestedLock() { m.mu.Lock() }

// NestedUnlock releases a lock acquired via NestedLock.
func (m *procMutex) NestedUnlock() { m.mu.Unlock() }

// waitMutex guards the parent/child graph (every Proc.parent field)
// and the PID-reuse-adjacent bookkeeping reparent/exit perform
// together. Acquisition order: waitMutex before any procMutex.
type waitMutex struct {
	mu sync.Mutex
}

func (m *waitMutex) Lock()   { m.mu.Lock() }
func (m *waitMutex) Unlock() { m.mu.Unlock() }

// pidMutex guards nextPID.
type pidMutex struct {
	mu sync.Mutex
}

func (m *pidMutex) Lock()   { m.mu.Lock() }
func (m *pidMutex) Unlock() { m.mu.Unlock() }
