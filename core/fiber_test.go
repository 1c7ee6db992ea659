package core_test

import (
	"testing"

	"github.com/coro-project/coro/core"
)

func TestCreate_RejectsInvalidParams(t *testing.T) {
	if _, err := core.Create(0, func() {}); err == nil {
		t.Error("expected error for zero stack size")
	}
	if _, err := core.Create(4096, nil); err == nil {
		t.Error("expected error for nil entry")
	}
}

func TestSwitchTo_RunsEntryAndReturns(t *testing.T) {
	main := core.CreateFromThread()

	var ran bool
	fib, err := core.Create(4096, func() {
		ran = true
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	core.SwitchTo(main, fib)

	if !ran {
		t.Error("expected fiber entry to have run")
	}
}

func TestSwitchTo_RoundTrip(t *testing.T) {
	main := core.CreateFromThread()

	var steps []string
	var fib *core.Fiber
	var err error
	fib, err = core.Create(4096, func() {
		steps = append(steps, "fiber-start")
		core.SwitchTo(fib, main)
		steps = append(steps, "fiber-resumed")
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	steps = append(steps, "main-before")
	core.SwitchTo(main, fib)
	steps = append(steps, "main-after-first-switch")
	core.SwitchTo(main, fib)
	steps = append(steps, "main-after-second-switch")

	want := []string{
		"main-before",
		"fiber-start",
		"main-after-first-switch",
		"fiber-resumed",
		"main-after-second-switch",
	}
	if len(steps) != len(want) {
		t.Fatalf("got steps %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("got steps %v, want %v", steps, want)
		}
	}
}

func TestSwitchTo_SameFiberIsNoop(t *testing.T) {
	main := core.CreateFromThread()
	// Switching a fiber to itself must not deadlock.
	core.SwitchTo(main, main)
}
