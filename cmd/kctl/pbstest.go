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
	"golang.org/x/sync/errgroup"

	"github.com/talismancer/teachkernel/internal/kconfig"
	"github.com/talismancer/teachkernel/internal/kernel"
)

// pbsTestCmd reproduces the original's PBStest.c: fork nForks children
// that each spin for a while, then wait for all of them in sequence,
// reporting each child's accumulated run/wait time. Defaulting to one
// fork when unset matches PBStest.c's own "argc<=1 -> n=1" fallback.
type pbsTestCmd struct {
	cfg    kconfig.Config
	nForks int
	spin   int
}

func (*pbsTestCmd) Name() string     { return "pbstest" }
func (*pbsTestCmd) Synopsis() string { return "fork a batch of CPU-bound children under PBS and report their timing" }
func (*pbsTestCmd) Usage() string {
	return "pbstest [-forks=N] [-spin=N]: exercise PBS scheduling with N CPU-bound children.\n"
}

func (c *pbsTestCmd) SetFlags(f *flag.FlagSet) {
	c.cfg = kconfig.Default()
	c.cfg.Policy = kconfig.PolicyPBS
	c.cfg.Register(f)
	f.IntVar(&c.nForks, "forks", 1, "number of children to fork")
	f.IntVar(&c.spin, "spin", 200, "simulated CPU-bound ticks per child")
}

func (c *pbsTestCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	var reaped []reapedChild
	dk, err := bootDemoKernel(c.cfg, func(t *kernel.Task) {
		var g errgroup.Group
		for i := 0; i < c.nForks; i++ {
			priority := 60 - 5*(i%3) // vary priority across children so PBS has something to differentiate
			g.Go(func() error {
				_, err := t.Fork(func(ct *kernel.Task) {
					ct.SetPriority(priority)
					ct.Spin(c.spin)
				})
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return
		}
		for i := 0; i < c.nForks; i++ {
			pid, status, rtime, wtime, err := t.WaitX(0)
			if err != nil {
				break
			}
			reaped = append(reaped, reapedChild{pid, status, rtime, wtime})
		}
	})
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitFailure
	}
	dk.waitInitDone()
	dk.shutdown()

	fmt.Printf("%-8s%-10s%-10s%-10s\n", "PID", "STATUS", "RTIME", "WTIME")
	for _, r := range reaped {
		fmt.Printf("%-8d%-10d%-10d%-10d\n", r.pid, r.status, r.rtime, r.wtime)
	}
	return subcommands.ExitSuccess
}

type reapedChild struct {
	pid    uint64
	status int32
	rtime  int64
	wtime  int64
}
