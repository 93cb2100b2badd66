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

// archStub is the default Arch collaborator (spec.md §6). There is no
// real register file to save and restore here, so Swtch is realized as
// a two-channel rendezvous: handing control to p's backing goroutine
// and blocking until that goroutine parks again is exactly what a real
// swtch(&from, &to) accomplishes, just expressed with Go's own
// concurrency primitive instead of inline assembly.
type archStub struct{}

// NewArchStub returns the in-process Arch implementation used by every
// Kernel constructed outside of tests that supply their own fake.
func NewArchStub() Arch { return &archStub{} }

// Swtch hands control to p (which must already be marked RUNNING with
// p.mu held) and blocks until p parks again via sched().
func (*archStub) Swtch(cpu *CPU, p *Proc) {
	p.runningOn = cpu
	p.resume <- struct{}{}
	<-p.parked
}

func (*archStub) IntrOn(cpu *CPU)  { cpu.intrOn = true }
func (*archStub) IntrOff(cpu *CPU) { cpu.intrOn = false }
func (*archStub) IntrGet(cpu *CPU) bool { return cpu.intrOn }
