package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tadiag/deltadiag/automaton"
	"github.com/tadiag/deltadiag/encode"
	"github.com/tadiag/deltadiag/solver/memsolver"
)

// noFaultAutomaton has a single observable transition and no FAULT edge at
// all - faultOccurs[i] is forced false at every step by induction, so no
// horizon can ever satisfy aFO (spec.md §8 seed scenario 6).
func noFaultAutomaton(t *testing.T) *automaton.Automaton {
	t.Helper()
	b := automaton.NewBuilder(0, 0)
	b.AddTransition(0, 1, automaton.FirstObservable, nil, nil)
	a, err := b.Build()
	if err != nil {
		t.Fatalf(`Build: %v`, err)
	}
	return a
}

func TestDriver_noFaultAlwaysUnsat(t *testing.T) {
	a := noFaultAutomaton(t)
	backend := memsolver.New(memsolver.Domain{MaxInt: 8})
	enc, err := encode.New(a, backend, nil)
	if err != nil {
		t.Fatalf(`encode.New: %v`, err)
	}
	d := NewDriver(enc, backend, Config{Bound: 3}, nil)

	res, err := d.Run(context.Background())
	if !errors.Is(err, ErrHorizonExhausted) {
		t.Fatalf(`Run() error = %v, want ErrHorizonExhausted`, err)
	}
	if res == nil || res.Sat {
		t.Fatalf(`Run() result = %+v, want a non-nil UNSAT result`, res)
	}
	if res.Horizon != 3 {
		t.Fatalf(`Run() horizon = %d, want 3 (the configured Bound)`, res.Horizon)
	}
}

func TestDriver_respectsContextCancellation(t *testing.T) {
	a := noFaultAutomaton(t)
	backend := memsolver.New(memsolver.Domain{MaxInt: 8})
	enc, err := encode.New(a, backend, nil)
	require.NoError(t, err)
	d := NewDriver(enc, backend, Config{Bound: 5}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Run(ctx)
	require.Error(t, err, `expected Run to observe a cancelled context`)
}

func TestDriver_zeroBoundExhaustsImmediately(t *testing.T) {
	a := noFaultAutomaton(t)
	backend := memsolver.New(memsolver.Domain{MaxInt: 8})
	enc, err := encode.New(a, backend, nil)
	require.NoError(t, err)

	// BOUND=0 means the round loop (cpt from 1 to BOUND) never runs at all,
	// so Run reports horizon exhaustion at horizon 0 without ever stepping.
	d := NewDriver(enc, backend, Config{Bound: 0}, nil)
	res, err := d.Run(context.Background())
	require.ErrorIs(t, err, ErrHorizonExhausted)
	require.NotNil(t, res)
	require.False(t, res.Sat)
	require.Equal(t, 0, res.Horizon)
}
