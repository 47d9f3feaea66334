package automaton

import "testing"

func buildChain(t *testing.T) *Automaton {
	t.Helper()
	b := NewBuilder(0, 1)
	b.AddTransition(0, 1, FAULT, nil, nil)           // idx 0
	b.AddTransition(1, 2, FirstObservable, nil, nil) // idx 1
	b.AddTransition(0, 2, FirstObservable, nil, nil) // idx 2
	a, err := b.Build()
	if err != nil {
		t.Fatalf(`Build: %v`, err)
	}
	return a
}

func TestFollower_chain(t *testing.T) {
	a := buildChain(t)
	next := Follower(a)

	contains := func(list []int, v int) bool {
		for _, x := range list {
			if x == v {
				return true
			}
		}
		return false
	}

	// next[0] (q0->q1, fault) must admit NOP and whatever leaves q1 (idx 1).
	if !contains(next[0], a.NopIndex) || !contains(next[0], 1) {
		t.Fatalf(`next[0] = %v, want NOP and 1`, next[0])
	}
	if len(next[0]) != 2 {
		t.Fatalf(`next[0] = %v, want exactly 2 entries`, next[0])
	}

	// next[1] and next[2] both target q2, which has no outgoing transitions:
	// only NOP is legal.
	if len(next[1]) != 1 || next[1][0] != a.NopIndex {
		t.Fatalf(`next[1] = %v, want [NopIndex]`, next[1])
	}
	if len(next[2]) != 1 || next[2][0] != a.NopIndex {
		t.Fatalf(`next[2] = %v, want [NopIndex]`, next[2])
	}

	// next[NopIndex] must admit stuttering again and every transition
	// leaving the initial state (idx 0 and idx 2).
	nopNext := next[a.NopIndex]
	if !contains(nopNext, a.NopIndex) || !contains(nopNext, 0) || !contains(nopNext, 2) {
		t.Fatalf(`next[NopIndex] = %v, want NOP, 0 and 2`, nopNext)
	}
}
