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
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/talismancer/teachkernel/internal/kconfig"
	"github.com/talismancer/teachkernel/internal/kernel"
)

// setPriorityCmd demonstrates the setpriority syscall against a
// freshly booted demo kernel's init process, reproducing
// setpriority.c's own argument validation: a priority outside 0-100 is
// rejected with the original's exact message rather than passed down.
type setPriorityCmd struct {
	cfg kconfig.Config
}

func (*setPriorityCmd) Name() string     { return "setpriority" }
func (*setPriorityCmd) Synopsis() string { return "set a process's static PBS priority" }
func (*setPriorityCmd) Usage() string {
	return "setpriority <priority>: set the demo kernel's init process priority (0-100).\n"
}

func (c *setPriorityCmd) SetFlags(f *flag.FlagSet) {
	c.cfg = kconfig.Default()
	c.cfg.Policy = kconfig.PolicyPBS
	c.cfg.Register(f)
}

func (c *setPriorityCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Println("Usage: setpriority <priority>")
		return subcommands.ExitUsageError
	}

	var priority int
	if _, err := fmt.Sscanf(f.Arg(0), "%d", &priority); err != nil {
		fmt.Println("Usage: setpriority <priority>")
		return subcommands.ExitUsageError
	}
	if priority < 0 || priority > 100 {
		fmt.Println("Invalid priority set a value from 0-100")
		return subcommands.ExitUsageError
	}

	var old int
	dk, err := bootDemoKernel(c.cfg, func(t *kernel.Task) {
		old, _ = t.SetPriority(priority)
	})
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitFailure
	}
	dk.waitInitDone()
	dk.shutdown()

	fmt.Printf("Old priority: %d\n", old)
	return subcommands.ExitSuccess
}
