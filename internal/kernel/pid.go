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

// allocpid returns a fresh, monotonically increasing PID. PIDs are
// never reused (spec.md §4.B): a 64-bit counter makes wraparound a
// non-concern even for a long-running teaching kernel, which the
// original's 32-bit int could not guarantee.
func (k *Kernel) allocpid() uint64 {
	k.pidLock.Lock()
	defer k.pidLock.Unlock()
	pid := k.nextPID
	k.nextPID++
	return pid
}
