package automaton

// GenTransition is one declarative transition for Generate: guard atoms are
// given as the same human-readable "cN <op> bound" strings ParseGuards
// accepts, rather than pre-parsed GuardAtom values.
type GenTransition struct {
	Source, Target int
	Event          EventLabel
	Guard          []string
	Reset          []int
}

// GenState augments a state with a textual invariant, for the same reason.
type GenState struct {
	ID        int
	Invariant []string
}

// GenSpec is the input to Generate: a whole automaton written in the
// textual guard/invariant language, without hand-building GuardAtom values.
type GenSpec struct {
	Initial     int
	ClockNum    int
	States      []GenState
	Transitions []GenTransition
}

// Generate builds an Automaton from a GenSpec, parsing every guard and
// invariant through ParseGuards and assembling the result via Builder. It
// exists so tests can write seed-suite automata (spec.md §8) the way the
// textual format would describe them, instead of constructing GuardAtom
// struct literals by hand.
func Generate(spec GenSpec) (*Automaton, error) {
	rawGuards := make(map[int][]string, len(spec.Transitions))
	for i, t := range spec.Transitions {
		if len(t.Guard) > 0 {
			rawGuards[i] = t.Guard
		}
	}
	rawInvariants := make(map[int][]string, len(spec.States))
	for _, s := range spec.States {
		if len(s.Invariant) > 0 {
			rawInvariants[s.ID] = s.Invariant
		}
	}
	guards, invariants, err := ParseGuards(rawGuards, rawInvariants)
	if err != nil {
		return nil, err
	}

	b := NewBuilder(spec.Initial, spec.ClockNum)
	for _, s := range spec.States {
		b.AddState(s.ID, invariants[s.ID])
	}
	for i, t := range spec.Transitions {
		b.AddTransition(t.Source, t.Target, t.Event, guards[i], t.Reset)
	}
	return b.Build()
}
