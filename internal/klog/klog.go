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

// Package klog is the teaching kernel's Console collaborator (spec.md
// §6): structured logging via logrus in place of the original's
// lock-protected printf/panic pair writing straight to the UART.
package klog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Console logs through a *logrus.Logger, serializing output the same
// way the original's console lock serializes concurrent printf calls
// from multiple CPUs (logrus's own Logger already does this
// internally).
type Console struct {
	log *logrus.Logger
}

// New returns a Console writing structured entries to stderr at the
// given level.
func New(level logrus.Level) *Console {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Console{log: l}
}

// Printf logs an informational kernel message.
func (c *Console) Printf(format string, args ...any) {
	c.log.Infof(format, args...)
}

// Panic logs a fatal kernel message and terminates the process, the
// same as the original's panic() spinning the offending CPU forever:
// spec.md §7 treats every invariant violation as unrecoverable, so
// there is no return path to preserve.
func (c *Console) Panic(format string, args ...any) {
	c.log.Panicf(format, args...)
}
