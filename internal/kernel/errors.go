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

import "errors"

// Expected-failure sentinels (spec.md §7, "Expected failures" row).
// Every lifecycle operation that can fail for a reason outside a
// programming bug returns one of these rather than panicking.
var (
	// ErrTableFull is returned by allocproc when every slot is in use.
	ErrTableFull = errors.New("kernel: process table full")

	// ErrOOM is returned by fork/growproc when the memory collaborator
	// cannot satisfy an allocation.
	ErrOOM = errors.New("kernel: out of memory")

	// ErrNoChildren is returned by wait/waitx when the caller has no
	// children, live or zombie.
	ErrNoChildren = errors.New("kernel: no children")

	// ErrKilled is returned by wait/waitx when the caller was killed
	// while waiting.
	ErrKilled = errors.New("kernel: killed while waiting")

	// ErrNoSuchPID is returned by kill and setpriority when no slot
	// holds the given pid.
	ErrNoSuchPID = errors.New("kernel: no such pid")

	// ErrBadAddr is returned when copying xstate out to a user address
	// fails (the stand-in memory collaborator rejects the range).
	ErrBadAddr = errors.New("kernel: bad user address")
)
