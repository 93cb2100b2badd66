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

// Package kconfig is the ambient configuration layer SPEC_FULL.md
// calls for: the process-table size, CPU count and scheduling policy
// are build-time #defines in the original (NPROC, NCPU, the
// SCHEDULER_* macros); here they are flag.FlagSet-backed fields a
// caller sets once at startup, following the teacher's convention of
// a small registerable flag set per subcommand rather than a global
// flag.CommandLine.
package kconfig

import (
	"flag"
	"fmt"

	"github.com/talismancer/teachkernel/internal/kernel"
)

// Policy names accepted by the Policy flag.
const (
	PolicyRR   = "rr"
	PolicyFCFS = "fcfs"
	PolicyPBS  = "pbs"
)

// Config is the user-facing configuration for a Kernel, registered
// against a flag.FlagSet so cmd/kctl subcommands share one definition
// of these flags instead of redeclaring them.
type Config struct {
	NPROC         int
	NCPU          int
	Policy        string
	MaxPages      int
	MaxTrapFrames int
}

// Default mirrors the original's xv6 defaults (NPROC 64, NCPU up to 8)
// scaled down for a teaching build, with RR as the default policy.
func Default() Config {
	return Config{
		NPROC:         64,
		NCPU:          4,
		Policy:        PolicyRR,
		MaxPages:      4096,
		MaxTrapFrames: 64,
	}
}

// Register binds c's fields to fs, so cmd/kctl's subcommands can each
// call this against their own *flag.FlagSet.
func (c *Config) Register(fs *flag.FlagSet) {
	fs.IntVar(&c.NPROC, "nproc", c.NPROC, "size of the process table")
	fs.IntVar(&c.NCPU, "ncpu", c.NCPU, "number of simulated CPUs")
	fs.StringVar(&c.Policy, "policy", c.Policy, "scheduling policy: rr, fcfs, pbs")
	fs.IntVar(&c.MaxPages, "max-pages", c.MaxPages, "page budget for the memory collaborator")
	fs.IntVar(&c.MaxTrapFrames, "max-trapframes", c.MaxTrapFrames, "trap frame budget")
}

// SchedulerPolicy resolves c.Policy into a kernel.SchedulerPolicy.
func (c *Config) SchedulerPolicy() (kernel.SchedulerPolicy, error) {
	switch c.Policy {
	case PolicyRR:
		return kernel.RoundRobin{}, nil
	case PolicyFCFS:
		return kernel.FCFS{}, nil
	case PolicyPBS:
		return kernel.PBS{}, nil
	default:
		return nil, fmt.Errorf("kconfig: unknown policy %q", c.Policy)
	}
}

// KernelConfig projects c onto the subset kernel.NewKernel takes.
func (c *Config) KernelConfig() kernel.Config {
	return kernel.Config{NPROC: c.NPROC, NCPU: c.NCPU}
}
