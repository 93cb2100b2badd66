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

package kernel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talismancer/teachkernel/internal/kernel"
)

func TestFCFSPicksEarliestCtimeThenLowestIndex(t *testing.T) {
	k, stop := newTestKernel(t, 8, 1, kernel.FCFS{})
	defer stop()

	order := make(chan uint64, 3)
	p := k.Userinit(func(t *kernel.Task) {
		for i := 0; i < 3; i++ {
			t.Fork(func(ct *kernel.Task) {
				order <- ct.Proc().Pid
				ct.Exit(0)
			})
			t.Yield()
		}
		for i := 0; i < 3; i++ {
			t.Wait(0)
		}
	})

	<-p.Done()
	var seen []uint64
	for i := 0; i < 3; i++ {
		seen = append(seen, <-order)
	}
	require.Len(t, seen, 3)
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i], "FCFS should run children in creation order")
	}
}

func TestPBSRunsLowerDynamicPriorityFirst(t *testing.T) {
	// spec.md §8 S4: priority(A)=60 (default), priority(B)=40, both
	// freshly forked. dp(A) and dp(B) both carry the same +5 constant
	// (DESIGN.md, "A spec.md internal inconsistency"), so B's lower
	// static priority still gives it the lower dp and it still runs
	// first; the exact dp values aren't what this test checks.
	k, stop := newTestKernel(t, 8, 1, kernel.PBS{})
	defer stop()

	order := make(chan uint64, 2)
	p := k.Userinit(func(tk *kernel.Task) {
		aPid, err := tk.Fork(func(ct *kernel.Task) {
			order <- ct.Proc().Pid
			ct.Exit(0)
		})
		require.NoError(t, err)

		bPid, err := tk.Fork(func(ct *kernel.Task) {
			order <- ct.Proc().Pid
			ct.Exit(0)
		})
		require.NoError(t, err)

		_, _, err = k.SetPriority(bPid, 40)
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			_, _, err := tk.Wait(0)
			require.NoError(t, err)
		}
		_ = aPid
	})

	<-p.Done()
	first := <-order
	second := <-order
	require.NotEqual(t, first, second)
	// B was forked second, so it holds the higher pid, but its lower
	// dynamic priority means it must be the one to run (and send to
	// order) first.
	require.Greater(t, first, second, "B (the higher pid, lower dp) should run before A")
}

func TestSetPriorityReportsOldValue(t *testing.T) {
	k, stop := newTestKernel(t, 4, 1, kernel.PBS{})
	defer stop()

	var oldPriority int
	var setErr error
	p := k.Userinit(func(t *kernel.Task) {
		oldPriority, setErr = t.SetPriority(10)
	})
	<-p.Done()
	require.NoError(t, setErr)
	require.Equal(t, 60, oldPriority) // defaultPriority from proc.go
}
