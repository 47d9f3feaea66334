// Package automaton models a timed automaton with silent, fault and
// observable events, and the preprocessing steps (stutter-state synthesis,
// follower precomputation) that the constraint encoder depends on.
package automaton

import (
	"errors"
	"fmt"
	"math/big"
)

type (
	// EventLabel is the closed set of event kinds a transition may carry.
	EventLabel int

	// GuardOp is one of the four relational operators the guard/invariant
	// language supports. Equality is deliberately absent.
	GuardOp int

	// GuardAtom is a single parsed predicate "clock <op> bound".
	GuardAtom struct {
		Clock int
		Op    GuardOp
		Bound *big.Rat
	}

	// State is a location of the automaton, with an optional invariant
	// (upper-bound-only guard atoms).
	State struct {
		ID        int
		Invariant []GuardAtom
	}

	// Transition is identified by its index into Automaton.Transitions,
	// never by pointer identity (spec design note: index-based adjacency,
	// no reference cycles between states and transitions).
	Transition struct {
		ID     int
		Source int
		Target int
		Event  EventLabel
		Guard  []GuardAtom
		Reset  []int
	}

	// Automaton is the in-memory model the encoder operates on. It is built
	// externally (by the out-of-scope textual parser, by Builder, or by
	// Generate) and finalized by Prepare.
	Automaton struct {
		Transitions []Transition
		States      map[int]State
		Initial     int
		ClockNum    int

		// Unobservable/Observable record the distinct event counts, per the
		// taxonomy resolved in spec.md §9: every silent event aliases to
		// NoObs, every observable event keeps a unique id >= FirstObservable.
		Unobservable int
		Observable   int

		// StutterState and NopIndex are populated by Prepare.
		StutterState int
		NopIndex     int
		prepared     bool
	}
)

const (
	// NOP is the synthetic stutter event label. It is also (confusingly, by
	// design per spec.md §9) distinct from the NOP transition *index* -
	// Automaton.NopIndex - which is what callers must use as the stutter
	// sentinel. NOP the EventLabel is never assigned to a real transition;
	// the synthetic self-loop's event label is NoObs, not NOP.
	NOP EventLabel = 0
	// FAULT is the distinguished fault event, always label 1.
	FAULT EventLabel = 1
	// NoObs is the event label every silent (unobservable) transition
	// shares, including the synthetic stutter self-loop.
	NoObs EventLabel = 2
	// FirstObservable is the first id available to observable events.
	FirstObservable EventLabel = 3
)

const (
	OpGT GuardOp = iota
	OpGE
	OpLT
	OpLE
)

var ErrInvalidModel = errors.New(`automaton: invalid model`)

func (op GuardOp) String() string {
	switch op {
	case OpGT:
		return `>`
	case OpGE:
		return `>=`
	case OpLT:
		return `<`
	case OpLE:
		return `<=`
	default:
		return `?`
	}
}

// Validate checks the structural invariants of spec.md §3: every
// transition must reference states present in the automaton, and at most
// one transition may carry the FAULT label (an automaton with no fault edge
// is accepted). Prepare runs Validate before adding the stutter machinery.
func (a *Automaton) Validate() error {
	if a == nil {
		return fmt.Errorf(`%w: nil automaton`, ErrInvalidModel)
	}
	if _, ok := a.States[a.Initial]; !ok {
		return fmt.Errorf(`%w: initial state %d not present`, ErrInvalidModel, a.Initial)
	}
	if a.ClockNum < 0 {
		return fmt.Errorf(`%w: negative clock count`, ErrInvalidModel)
	}
	faults := 0
	for i, t := range a.Transitions {
		if t.ID != i {
			return fmt.Errorf(`%w: transition %d has mismatched id %d`, ErrInvalidModel, i, t.ID)
		}
		if _, ok := a.States[t.Source]; !ok {
			return fmt.Errorf(`%w: transition %d references missing source state %d`, ErrInvalidModel, i, t.Source)
		}
		if _, ok := a.States[t.Target]; !ok {
			return fmt.Errorf(`%w: transition %d references missing target state %d`, ErrInvalidModel, i, t.Target)
		}
		for _, c := range t.Reset {
			if c < 0 || c >= a.ClockNum {
				return fmt.Errorf(`%w: transition %d resets unknown clock %d`, ErrInvalidModel, i, c)
			}
		}
		for _, g := range t.Guard {
			if g.Clock < 0 || g.Clock >= a.ClockNum {
				return fmt.Errorf(`%w: transition %d guards unknown clock %d`, ErrInvalidModel, i, g.Clock)
			}
		}
		if t.Event == FAULT {
			faults++
		}
	}
	if faults > 1 {
		return fmt.Errorf(`%w: more than one fault-labeled transition`, ErrInvalidModel)
	}
	for id, s := range a.States {
		if s.ID != id {
			return fmt.Errorf(`%w: state %d stored under mismatched key`, ErrInvalidModel, id)
		}
		for _, inv := range s.Invariant {
			if inv.Op != OpLE && inv.Op != OpLT {
				return fmt.Errorf(`%w: state %d invariant is not an upper bound`, ErrInvalidModel, id)
			}
		}
	}
	return nil
}

// Prepare finalizes the automaton: it appends the synthetic stutter state
// and the NOP transition (source = stutter state, target = initial state,
// event = NoObs, guard "cI = 0"-equivalent via two atoms per clock since
// equality isn't in the guard language, reset = all clocks), placed at the
// last transition index. That index becomes NopIndex, the stutter
// sentinel used throughout the encoder. Prepare is idempotent.
func (a *Automaton) Prepare() error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.prepared {
		return nil
	}

	maxState := a.Initial
	for id := range a.States {
		if id > maxState {
			maxState = id
		}
	}
	stutter := maxState + 1

	a.States[stutter] = State{ID: stutter}
	a.StutterState = stutter

	reset := make([]int, a.ClockNum)
	guard := make([]GuardAtom, 0, a.ClockNum*2)
	for i := 0; i < a.ClockNum; i++ {
		reset[i] = i
		// "cI = 0" restated as the conjunction of two non-strict bounds,
		// since the guard language has no equality operator.
		guard = append(guard,
			GuardAtom{Clock: i, Op: OpGE, Bound: big.NewRat(0, 1)},
			GuardAtom{Clock: i, Op: OpLE, Bound: big.NewRat(0, 1)},
		)
	}

	nopIndex := len(a.Transitions)
	a.Transitions = append(a.Transitions, Transition{
		ID:     nopIndex,
		Source: stutter,
		Target: a.Initial,
		Event:  NoObs,
		Guard:  guard,
		Reset:  reset,
	})
	a.NopIndex = nopIndex
	a.prepared = true
	return nil
}

// MaxLabel returns the highest event label in use, counting the synthetic
// NOP transition's NoObs label. Used by the encoder to bound
// labelTransition[j] (spec.md §4.3, "0 <= labelTransition[j] <= maxLabel").
func (a *Automaton) MaxLabel() EventLabel {
	max := NoObs
	for _, t := range a.Transitions {
		if t.Event > max {
			max = t.Event
		}
	}
	return max
}

// AssignEventIDs implements the taxonomy spec.md §9 resolves: every
// unobservable event name aliases to NoObs, every observable event name
// gets a unique id starting at FirstObservable. It is a pure function over
// name lists - not a file-format parser - so an external textual parser
// (or a test) can reuse it without this module reading any file itself.
func AssignEventIDs(observable, unobservable []string) (ids map[string]EventLabel, numObservable, numUnobservable int) {
	ids = make(map[string]EventLabel, len(observable)+len(unobservable)+1)
	ids[`f`] = FAULT
	for _, name := range unobservable {
		if name == `` {
			continue
		}
		if _, ok := ids[name]; !ok {
			ids[name] = NoObs
			numUnobservable++
		}
	}
	next := FirstObservable
	for _, name := range observable {
		if name == `` {
			continue
		}
		if _, ok := ids[name]; ok {
			continue
		}
		ids[name] = next
		next++
		numObservable++
	}
	return
}
