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

// procdumpCmd forks a handful of demo children and prints a table of
// every live slot, reproducing the original's Ctrl-P procdump console
// command (spec.md §4.C procdump).
type procdumpCmd struct {
	cfg    kconfig.Config
	nForks int
}

func (*procdumpCmd) Name() string     { return "procdump" }
func (*procdumpCmd) Synopsis() string { return "print the process table of a short-lived demo kernel" }
func (*procdumpCmd) Usage() string {
	return "procdump [-forks=N]: boot a demo kernel, fork N children, print the process table.\n"
}

func (c *procdumpCmd) SetFlags(f *flag.FlagSet) {
	c.cfg = kconfig.Default()
	c.cfg.Register(f)
	f.IntVar(&c.nForks, "forks", 3, "number of children to fork before dumping")
}

func (c *procdumpCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	var snaps []kernel.ProcSnapshot
	dk, err := bootDemoKernel(c.cfg, func(t *kernel.Task) {
		for i := 0; i < c.nForks; i++ {
			t.Fork(func(ct *kernel.Task) {
				ct.Spin(50)
			})
		}
		snaps = t.Procdump()
	})
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitFailure
	}
	dk.waitInitDone()
	dk.shutdown()

	fmt.Printf("%-6s%-6s%-10s%-10s%-6s%-6s%-6s\n", "PID", "SLOT", "STATE", "NAME", "PRIO", "NICE", "DP")
	for _, s := range snaps {
		fmt.Printf("%-6d%-6d%-10s%-10s%-6d%-6d%-6d\n", s.Pid, s.Index, s.State, s.Name, s.Priority, s.Niceness, s.DynamicPriority)
	}
	return subcommands.ExitSuccess
}
