package automaton

// Builder assembles an Automaton one state/transition at a time, mirroring
// the incremental addState/appendTransition API of the original
// implementation's Automaton class (consumed there by a line-oriented
// parser, here by tests assembling the spec's seed scenarios without
// hand-building the Transitions slice and States map directly).
type Builder struct {
	a Automaton
}

// NewBuilder starts a builder for an automaton with the given initial
// state id and clock count.
func NewBuilder(initial, clockNum int) *Builder {
	b := &Builder{a: Automaton{
		States:   make(map[int]State),
		Initial:  initial,
		ClockNum: clockNum,
	}}
	b.AddState(initial, nil)
	return b
}

// AddState registers (or overwrites the invariant of) a state. Safe to
// call more than once for the same id, matching automaton.py's addState
// ("if stateId not in self.mapState").
func (b *Builder) AddState(id int, invariant []GuardAtom) *Builder {
	if existing, ok := b.a.States[id]; !ok {
		b.a.States[id] = State{ID: id, Invariant: invariant}
	} else if invariant != nil {
		existing.Invariant = invariant
		b.a.States[id] = existing
	}
	return b
}

// AddTransition appends a transition, creating its endpoints (with a
// trivial invariant) if they weren't already added.
func (b *Builder) AddTransition(source, target int, event EventLabel, guard []GuardAtom, reset []int) *Builder {
	b.AddState(source, nil)
	b.AddState(target, nil)
	id := len(b.a.Transitions)
	b.a.Transitions = append(b.a.Transitions, Transition{
		ID:     id,
		Source: source,
		Target: target,
		Event:  event,
		Guard:  guard,
		Reset:  reset,
	})
	if event == FAULT {
		// nothing extra to track; Validate rejects more than one fault edge.
	} else if event != NOP && event > NoObs {
		b.a.Observable++
	} else if event == NoObs {
		b.a.Unobservable++
	}
	return b
}

// Build validates and prepares the automaton (synthesizing the stutter
// state and NOP transition), returning it ready for Follower/encoding.
func (b *Builder) Build() (*Automaton, error) {
	if err := b.a.Prepare(); err != nil {
		return nil, err
	}
	return &b.a, nil
}
