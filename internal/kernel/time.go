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

// updateTime runs once per tick (spec.md §4.G): every RUNNING slot's
// Rtime advances by one, every SLEEPING slot's Stime advances by one.
// RUNNABLE and ZOMBIE slots are untouched, matching the original's
// update_time, which only ever examines p->state.
func (k *Kernel) updateTime() {
	for _, p := range k.proc {
		p.mu.Lock()
		switch p.State {
		case Running:
			p.Rtime++
		case Sleeping:
			p.Stime++
		}
		p.mu.Unlock()
	}
}
