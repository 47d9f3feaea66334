// Package diagnostics turns a search.Result into human-facing output:
// DecodeWitness walks a SAT model into a step-by-step report with the
// self-checks spec.md §4.6 requires; Suggest maps an UNSAT core's literal
// names to hints, by prefix, per spec.md's naming discipline (§9).
package diagnostics

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/tadiag/deltadiag/automaton"
	"github.com/tadiag/deltadiag/solver"
)

// ErrWitnessInconsistent marks an internal-assertion-failure class error
// (spec.md §7): the witness decoder detected something the encoder should
// never have allowed, signalling an encoder bug rather than a model error.
var ErrWitnessInconsistent = errors.New(`diagnostics: witness inconsistent`)

type (
	// StepWitness is one decoded step of a critical pair (spec.md §4.6).
	StepWitness struct {
		Index int

		Fp, Np           int
		IdtFp, IdtNp     int64
		NopFp, NopNp     bool
		CheckSynchro     bool
		GFp, GNp         *big.Rat
		DelayFp, DelayNp *big.Rat
		CptFault         *big.Rat
	}

	// Witness is the full decoded critical pair, step 0 through the
	// horizon at which SAT was reported.
	Witness struct {
		Steps []StepWitness
	}

	// Hint is one suggestion derived from an UNSAT core literal or class
	// of literals.
	Hint struct {
		Literal string
		Message string
	}
)

func intOf(model map[string]solver.Value, name string) (int64, error) {
	v, ok := model[name]
	if !ok {
		return 0, fmt.Errorf(`%w: model missing %s`, ErrWitnessInconsistent, name)
	}
	return v.Int, nil
}

func boolOf(model map[string]solver.Value, name string) (bool, error) {
	v, ok := model[name]
	if !ok {
		return false, fmt.Errorf(`%w: model missing %s`, ErrWitnessInconsistent, name)
	}
	return v.Bool, nil
}

func realOf(model map[string]solver.Value, name string) (*big.Rat, error) {
	v, ok := model[name]
	if !ok {
		return nil, fmt.Errorf(`%w: model missing %s`, ErrWitnessInconsistent, name)
	}
	if v.Real == nil {
		return new(big.Rat), nil
	}
	return v.Real, nil
}

// DecodeWitness decodes a SAT model (as produced by search.Result.Model)
// into a Witness, running the two self-checks spec.md §4.6 names:
// contiguity of successive non-NOP transitions, and lfp/lnp tracking the
// last non-NOP transition correctly.
func DecodeWitness(a *automaton.Automaton, model map[string]solver.Value, horizon int) (*Witness, error) {
	w := &Witness{Steps: make([]StepWitness, 0, horizon+1)}

	for i := 0; i <= horizon; i++ {
		fp, err := intOf(model, fmt.Sprintf(`fp_%d`, i))
		if err != nil {
			return nil, err
		}
		np, err := intOf(model, fmt.Sprintf(`np_%d`, i))
		if err != nil {
			return nil, err
		}
		idtFp, err := intOf(model, fmt.Sprintf(`idt_fp_%d`, i))
		if err != nil {
			return nil, err
		}
		idtNp, err := intOf(model, fmt.Sprintf(`idt_np_%d`, i))
		if err != nil {
			return nil, err
		}
		nopFp, err := boolOf(model, fmt.Sprintf(`nop_fp_%d`, i))
		if err != nil {
			return nil, err
		}
		nopNp, err := boolOf(model, fmt.Sprintf(`nop_np_%d`, i))
		if err != nil {
			return nil, err
		}
		sync, err := boolOf(model, fmt.Sprintf(`checkSynchro_%d`, i))
		if err != nil {
			return nil, err
		}
		gFp, err := realOf(model, fmt.Sprintf(`g_fp_%d`, i))
		if err != nil {
			return nil, err
		}
		gNp, err := realOf(model, fmt.Sprintf(`g_np_%d`, i))
		if err != nil {
			return nil, err
		}
		delayFp, err := realOf(model, fmt.Sprintf(`delay_fp_%d`, i))
		if err != nil {
			return nil, err
		}
		delayNp, err := realOf(model, fmt.Sprintf(`delay_np_%d`, i))
		if err != nil {
			return nil, err
		}
		cptFault, err := realOf(model, fmt.Sprintf(`cptFault_%d`, i))
		if err != nil {
			return nil, err
		}

		w.Steps = append(w.Steps, StepWitness{
			Index: i,
			Fp:    int(fp), Np: int(np),
			IdtFp: idtFp, IdtNp: idtNp,
			NopFp: nopFp, NopNp: nopNp,
			CheckSynchro: sync,
			GFp:          gFp, GNp: gNp,
			DelayFp: delayFp, DelayNp: delayNp,
			CptFault: cptFault,
		})
	}

	if err := checkContiguity(a, w, model); err != nil {
		return nil, err
	}
	if err := checkLastActive(a, w, model); err != nil {
		return nil, err
	}

	return w, nil
}

// checkContiguity verifies that whenever a run takes a non-NOP transition
// at step i, its source matches the target of the last non-NOP transition
// taken by that same run (spec.md §8 testable property 6).
func checkContiguity(a *automaton.Automaton, w *Witness, model map[string]solver.Value) error {
	lastFp, lastNp := -1, -1
	for _, s := range w.Steps {
		if s.Fp != a.NopIndex {
			if lastFp >= 0 {
				prevTarget := a.Transitions[lastFp].Target
				curSource := a.Transitions[s.Fp].Source
				if prevTarget != curSource {
					return fmt.Errorf(`%w: faulty run step %d: transition %d source %d does not follow transition %d target %d`,
						ErrWitnessInconsistent, s.Index, s.Fp, curSource, lastFp, prevTarget)
				}
			}
			lastFp = s.Fp
		}
		if s.Np != a.NopIndex {
			if lastNp >= 0 {
				prevTarget := a.Transitions[lastNp].Target
				curSource := a.Transitions[s.Np].Source
				if prevTarget != curSource {
					return fmt.Errorf(`%w: normal run step %d: transition %d source %d does not follow transition %d target %d`,
						ErrWitnessInconsistent, s.Index, s.Np, curSource, lastNp, prevTarget)
				}
			}
			lastNp = s.Np
		}
	}
	return nil
}

// checkLastActive verifies lfp/lnp track the last non-NOP transition
// index correctly, by recomputing them independently of the model and
// comparing against the model's own lfp_i/lnp_i values.
func checkLastActive(a *automaton.Automaton, w *Witness, model map[string]solver.Value) error {
	lastFp, lastNp := int64(a.NopIndex), int64(a.NopIndex)
	for _, s := range w.Steps {
		if s.Fp != a.NopIndex {
			lastFp = int64(s.Fp)
		}
		if s.Np != a.NopIndex {
			lastNp = int64(s.Np)
		}
		gotFp, err := intOf(model, fmt.Sprintf(`lfp_%d`, s.Index))
		if err != nil {
			return err
		}
		gotNp, err := intOf(model, fmt.Sprintf(`lnp_%d`, s.Index))
		if err != nil {
			return err
		}
		if s.Index > 0 && gotFp != lastFp {
			return fmt.Errorf(`%w: step %d: lfp=%d, expected last non-NOP transition %d`, ErrWitnessInconsistent, s.Index, gotFp, lastFp)
		}
		if s.Index > 0 && gotNp != lastNp {
			return fmt.Errorf(`%w: step %d: lnp=%d, expected last non-NOP transition %d`, ErrWitnessInconsistent, s.Index, gotNp, lastNp)
		}
	}
	return nil
}

// Suggest maps an UNSAT core's literal names to hints, inspecting each
// literal's symbolic name prefix per spec.md §4.6's table, plus two cases
// supplemented from the original Python tool's richer unsat-core handling
// (original_source/suggestion.py only covers the six mandated prefixes;
// an empty core and a reset*-dominated core are common enough in practice
// to warrant their own messages rather than falling through to "raw
// literal").
func Suggest(core []string) []Hint {
	if len(core) == 0 {
		return []Hint{{Message: `no UNSAT core was returned; the instance may be infeasible independent of BOUND/DELTA - check the automaton for a fault-reachability or observability gap`}}
	}

	hints := make([]Hint, 0, len(core))
	resetCount := 0
	for _, lit := range core {
		switch {
		case strings.HasPrefix(lit, `length_`):
			hints = append(hints, Hint{Literal: lit, Message: `increase BOUND`})
		case strings.HasPrefix(lit, `delay_`):
			hints = append(hints, Hint{Literal: lit, Message: `delays over-constrained`})
		case strings.HasPrefix(lit, `constraint_`):
			hints = append(hints, Hint{Literal: lit, Message: `clock guards may be contradictory`})
		case strings.HasPrefix(lit, `cptFault`):
			hints = append(hints, Hint{Literal: lit, Message: `DELTA timing may be unreachable`})
		case strings.HasPrefix(lit, `bound`):
			hints = append(hints, Hint{Literal: lit, Message: `raise BOUND`})
		case strings.HasPrefix(lit, `delta`):
			hints = append(hints, Hint{Literal: lit, Message: `DELTA inconsistent`})
		case strings.HasPrefix(lit, `reset`):
			resetCount++
			hints = append(hints, Hint{Literal: lit, Message: `clock reset assignment may be structurally overconstrained`})
		default:
			hints = append(hints, Hint{Literal: lit, Message: lit})
		}
	}

	if resetCount > 0 && resetCount == len(core) {
		hints = append(hints, Hint{Message: `every core literal concerns clock resets - check whether the guard language's reset sets are mutually exclusive with the invariants they feed`})
	}

	sort.SliceStable(hints, func(i, j int) bool { return hints[i].Literal < hints[j].Literal })
	return hints
}
