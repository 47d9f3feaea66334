package encode

import (
	"strconv"
	"testing"

	"github.com/tadiag/deltadiag/automaton"
	"github.com/tadiag/deltadiag/solver/memsolver"
)

func faultOnly(t *testing.T) *automaton.Automaton {
	t.Helper()
	b := automaton.NewBuilder(0, 0)
	b.AddTransition(0, 1, automaton.FAULT, nil, nil)
	a, err := b.Build()
	if err != nil {
		t.Fatalf(`Build: %v`, err)
	}
	return a
}

func newBackend() *memsolver.Backend {
	return memsolver.New(memsolver.Domain{MaxInt: 8})
}

func TestNew_rejectsNilAutomaton(t *testing.T) {
	if _, err := New(nil, newBackend(), nil); err == nil {
		t.Fatalf(`expected an error for a nil automaton`)
	}
}

func TestNew_rejectsInvalidAutomaton(t *testing.T) {
	a := &automaton.Automaton{
		States:  map[int]automaton.State{0: {ID: 0}},
		Initial: 0,
		Transitions: []automaton.Transition{
			{ID: 0, Source: 0, Target: 99, Event: automaton.FAULT},
		},
	}
	if _, err := New(a, newBackend(), nil); err == nil {
		t.Fatalf(`expected Validate's error to propagate`)
	}
}

func TestEncoder_next_matchesFollower(t *testing.T) {
	a := faultOnly(t)
	enc, err := New(a, newBackend(), nil)
	if err != nil {
		t.Fatalf(`New: %v`, err)
	}
	want := automaton.Follower(a)
	got := enc.Next()
	if len(got) != len(want) {
		t.Fatalf(`Next() has %d entries, want %d`, len(got), len(want))
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf(`Next()[%d] = %v, want %v`, i, got[i], want[i])
		}
	}
}

func TestEncoder_stepBeforeInitErrors(t *testing.T) {
	a := faultOnly(t)
	enc, err := New(a, newBackend(), nil)
	if err != nil {
		t.Fatalf(`New: %v`, err)
	}
	if err := enc.Step(1); err == nil {
		t.Fatalf(`expected Step before Init to error`)
	}
}

func TestEncoder_stepOutOfOrderErrors(t *testing.T) {
	a := faultOnly(t)
	enc, err := New(a, newBackend(), nil)
	if err != nil {
		t.Fatalf(`New: %v`, err)
	}
	if err := enc.Init(); err != nil {
		t.Fatalf(`Init: %v`, err)
	}
	if err := enc.Step(2); err == nil {
		t.Fatalf(`expected Step(2) immediately after Init to error (expected Step(1))`)
	}
	if err := enc.Step(1); err != nil {
		t.Fatalf(`Step(1): %v`, err)
	}
	if err := enc.Step(1); err == nil {
		t.Fatalf(`expected a repeated Step(1) to error`)
	}
	if err := enc.Step(2); err != nil {
		t.Fatalf(`Step(2): %v`, err)
	}
	if got := enc.LastStep(); got != 2 {
		t.Fatalf(`LastStep() = %d, want 2`, got)
	}
}

func TestEncoder_initIsIdempotent(t *testing.T) {
	a := faultOnly(t)
	enc, err := New(a, newBackend(), nil)
	if err != nil {
		t.Fatalf(`New: %v`, err)
	}
	if err := enc.Init(); err != nil {
		t.Fatalf(`first Init: %v`, err)
	}
	if err := enc.Init(); err != nil {
		t.Fatalf(`second Init: %v`, err)
	}
	if got := enc.LastStep(); got != 0 {
		t.Fatalf(`LastStep() = %d, want 0`, got)
	}
}

func TestEncoder_observableAssumptionPolarity(t *testing.T) {
	a := faultOnly(t)
	enc, err := New(a, newBackend(), nil)
	if err != nil {
		t.Fatalf(`New: %v`, err)
	}
	// NOP is transition a.NopIndex, event NoObs - ObservableAssumption must
	// negate it, matching Init's hard Eq(isObservable[NopIndex], false).
	term := enc.ObservableAssumption(a.NopIndex)
	if term.String() != `(not isObservable_`+strconv.Itoa(a.NopIndex)+`)` {
		t.Fatalf(`ObservableAssumption(NopIndex) = %s, want a negated term`, term.String())
	}
	// The FAULT transition (index 0) is also not observable (FAULT <= NoObs).
	term = enc.ObservableAssumption(0)
	if term.String() != `(not isObservable_0)` {
		t.Fatalf(`ObservableAssumption(0) = %s, want a negated term (FAULT is not observable)`, term.String())
	}
}
