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

package main

import (
	"github.com/sirupsen/logrus"

	"github.com/talismancer/teachkernel/internal/kconfig"
	"github.com/talismancer/teachkernel/internal/kernel"
	"github.com/talismancer/teachkernel/internal/klog"
	"github.com/talismancer/teachkernel/internal/memstore"
	"github.com/talismancer/teachkernel/internal/vfsstub"
)

// demoKernel is a freshly booted Kernel plus its running SchedulerLoop
// goroutines, for subcommands that want to exercise the process
// subsystem end to end rather than just print static output. There is
// no persistent daemon in this CLI: every invocation boots its own
// kernel, the way a grader invoking the original's user-space test
// binaries boots a fresh xv6 instance each run.
type demoKernel struct {
	k     *kernel.Kernel
	stop  chan struct{}
	first *kernel.Proc
}

func bootDemoKernel(cfg kconfig.Config, workload kernel.Workload) (*demoKernel, error) {
	policy, err := cfg.SchedulerPolicy()
	if err != nil {
		return nil, err
	}

	console := klog.New(logrus.WarnLevel)
	mem := memstore.NewStore(cfg.MaxPages, cfg.MaxTrapFrames)
	fs := vfsstub.New()
	arch := kernel.NewArchStub()

	k := kernel.NewKernel(cfg.KernelConfig(), mem, fs, console, policy, arch)

	first := k.Userinit(workload)

	stop := make(chan struct{})
	for _, cpu := range k.CPUs() {
		go k.SchedulerLoop(cpu, stop)
	}

	return &demoKernel{k: k, stop: stop, first: first}, nil
}

func (d *demoKernel) waitInitDone() {
	<-d.first.Done()
}

func (d *demoKernel) shutdown() {
	close(d.stop)
}
