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

import "unsafe"

// chanOf derives a rendezvous channel from a Proc's own identity, the
// same trick the original plays by sleeping on &p rather than a
// dedicated wait_lock-adjacent variable (spec.md §4.C wait/waitx both
// sleep the calling process on itself).
func chanOf(p *Proc) waitChannel { return uintptr(unsafe.Pointer(p)) }

// This file realizes spec.md §4.H, the sleep/wakeup rendezvous. A
// sleeping process records the channel it is waiting on in p.Chan;
// wakeup scans the table for Sleeping slots with a matching Chan and
// promotes them to Runnable. Sleep takes p.mu before it releases the
// caller-supplied lock and keeps p.mu held through the transition to
// Sleeping until sched has parked it; Wakeup takes each slot's mu
// before testing its state. That is what rules out the missed-wakeup
// race the original's sleep()/wakeup() pair is built to avoid: a
// wakeup issued once the caller's lock is released still cannot run
// between our decision to sleep and our actual parking.

// waitChannel identifies a rendezvous point. The original overloads an
// arbitrary kernel address for this; here any value unique to the
// condition being waited on works, so lifecycle.go uses a *Proc's own
// address (for wait/waitx, parents sleep on themselves) cast through
// uintptr.
type waitChannel = uintptr

// Sleep blocks the calling process on chan, releasing lk across the
// sleep and re-acquiring it before returning (spec.md §4.H). lk must
// already be held by the caller and must not be p.mu itself.
func (k *Kernel) Sleep(self *Proc, ch waitChannel, lk sync_Locker) {
	cpu := self.runningOn
	k.acquireOn(cpu, self)
	lk.Unlock()

	self.Chan = ch
	self.State = Sleeping

	k.sched(self)

	self.Chan = 0
	k.releaseOn(self.runningOn, self)

	lk.Lock()
}

// sync_Locker mirrors sync.Locker without importing sync here merely
// for the interface name; waitMutex and procMutex both already
// implement it via Lock/Unlock.
type sync_Locker interface {
	Lock()
	Unlock()
}

// Wakeup wakes every process sleeping on chan (spec.md §4.H). The
// caller must hold whatever lock it shares with the sleeper(s) for
// chan, exactly as Sleep requires of its own caller.
func (k *Kernel) Wakeup(ch waitChannel) {
	for _, p := range k.proc {
		if p == nil {
			continue
		}
		p.mu.Lock()
		if p.State == Sleeping && p.Chan == ch {
			p.State = Runnable
		}
		p.mu.Unlock()
	}
}

