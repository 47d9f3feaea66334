package diagnoser

import (
	"testing"

	"github.com/tadiag/deltadiag/automaton"
)

func buildChain(t *testing.T) *automaton.Automaton {
	t.Helper()
	b := automaton.NewBuilder(0, 0)
	b.AddTransition(0, 1, automaton.FAULT, nil, nil)           // idx 0
	b.AddTransition(1, 2, automaton.FirstObservable, nil, nil) // idx 1
	b.AddTransition(0, 2, automaton.FirstObservable, nil, nil) // idx 2
	a, err := b.Build()
	if err != nil {
		t.Fatalf(`Build: %v`, err)
	}
	return a
}

func TestClassify_faultAndNormalSets(t *testing.T) {
	a := buildChain(t)
	next := automaton.Follower(a)

	c := Classify(a, next, nil)

	if !c.Fault[0] {
		t.Fatalf(`Fault set must contain the FAULT transition itself, got %v`, c.Fault)
	}
	if !c.Fault[1] {
		t.Fatalf(`Fault set must contain transition 1 (reachable forward from the fault), got %v`, c.Fault)
	}
	if c.Fault[2] {
		t.Fatalf(`Fault set must not contain transition 2 (q0->q2, unrelated to the fault chain), got %v`, c.Fault)
	}

	if !c.Normal[2] {
		t.Fatalf(`Normal set must contain transition 2 (leaves the initial state, not a FAULT edge), got %v`, c.Normal)
	}
	if c.Normal[0] {
		t.Fatalf(`Normal set must not contain the FAULT transition itself, got %v`, c.Normal)
	}
}

func TestClassify_noCycleInAcyclicChain(t *testing.T) {
	a := buildChain(t)
	next := automaton.Follower(a)
	c := Classify(a, next, nil)
	if c.FaultHasCycle {
		t.Fatalf(`FaultHasCycle = true, want false: the chain q0->q1->q2 has no cycle`)
	}
}

func TestClassify_detectsCycleBackToFault(t *testing.T) {
	// q0 -f-> q1 -a-> q0: the fault subgraph cycles back to the fault
	// transition itself once q1's observable edge returns to q0.
	b := automaton.NewBuilder(0, 0)
	b.AddTransition(0, 1, automaton.FAULT, nil, nil)           // idx 0
	b.AddTransition(1, 0, automaton.FirstObservable, nil, nil) // idx 1
	a, err := b.Build()
	if err != nil {
		t.Fatalf(`Build: %v`, err)
	}
	next := automaton.Follower(a)

	c := Classify(a, next, nil)
	if !c.FaultHasCycle {
		t.Fatalf(`FaultHasCycle = false, want true: fault subgraph %v over next=%v should cycle`, c.Fault, next)
	}
}
