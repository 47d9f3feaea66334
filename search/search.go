// Package search is the incremental bounded search driver (spec.md §4.4):
// the outer horizon loop, the only package permitted to call
// solver.Backend.CheckSatAssuming. It mints per-round assumption literals
// so bound/DELTA/faultOccurs goals are retractable rather than hardened,
// preserving learned solver state across rounds (spec.md §9, "Assumption
// literals are mandatory").
package search

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/tadiag/deltadiag/encode"
	"github.com/tadiag/deltadiag/log"
	"github.com/tadiag/deltadiag/solver"
)

// ErrHorizonExhausted is returned when no satisfying pair of runs is found
// up to Bound - a recoverable, expected outcome (spec.md §7), not a bug.
var ErrHorizonExhausted = errors.New(`search: horizon exhausted without a satisfying witness`)

type (
	// Config parameterizes a search: the time horizon and the diagnosability
	// tolerance.
	Config struct {
		Bound int
		Delta *big.Rat
	}

	// Result is what Run returns. Model is non-nil only on SAT; Core holds
	// the last round's UNSAT core otherwise, consumed by diagnostics.Suggest.
	Result struct {
		Sat     bool
		Horizon int
		Model   map[string]solver.Value
		Core    []string
	}

	// Driver owns the persistent bound_var/delta_var globals and the
	// assumption-literal implications, and runs the round loop against one
	// encoder/backend pair.
	Driver struct {
		enc     *encode.Encoder
		backend solver.Backend
		cfg     Config
		logger  log.Logger

		boundVar solver.Term
		deltaVar solver.Term
		aD       solver.Term
	}
)

// NewDriver declares the persistent bound/delta globals and the one
// persistent assumption literal aD (spec.md §4.4: "plus one persistent aD
// implying delta_var = DELTA").
func NewDriver(enc *encode.Encoder, backend solver.Backend, cfg Config, logger log.Logger) *Driver {
	if logger == nil {
		logger = log.Discard{}
	}
	if cfg.Delta == nil {
		cfg.Delta = new(big.Rat)
	}
	d := &Driver{
		enc:      enc,
		backend:  backend,
		cfg:      cfg,
		logger:   logger,
		boundVar: backend.DeclareInt(`bound`),
		deltaVar: backend.DeclareReal(`delta`),
	}
	d.aD = backend.DeclareBool(`aD`)
	backend.Assert(solver.Implies(d.aD, solver.Eq(d.deltaVar, solver.RealLit(cfg.Delta))))
	return d
}

// Run is the outer loop: Init, then Step(1..Bound), checking satisfiability
// under fresh per-round assumption literals after each step.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	if err := d.enc.Init(); err != nil {
		return nil, err
	}

	var lastCore []string
	for cpt := 1; cpt <= d.cfg.Bound; cpt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := d.enc.Step(cpt); err != nil {
			return nil, fmt.Errorf(`search: step %d: %w`, cpt, err)
		}

		last := d.enc.Factory().Step(cpt)

		aB := d.backend.DeclareBool(fmt.Sprintf(`aB_%d`, cpt))
		d.backend.Assert(solver.Implies(aB, solver.Eq(d.boundVar, solver.IntLit(int64(cpt)))))

		aF := d.backend.DeclareBool(fmt.Sprintf(`aF_%d`, cpt))
		d.backend.Assert(solver.Implies(aF, solver.Eq(last.CptFault, solver.RealLit(d.cfg.Delta))))

		aFO := d.backend.DeclareBool(fmt.Sprintf(`aFO_%d`, cpt))
		d.backend.Assert(solver.Implies(aFO, solver.Eq(last.FaultOccurs, solver.BoolLit(true))))

		numT := d.enc.Factory().NumTransitions()
		assumptions := make([]solver.Term, 0, 4+numT)
		assumptions = append(assumptions, aB, aF, aFO, d.aD)
		for j := 0; j < numT; j++ {
			assumptions = append(assumptions, d.enc.ObservableAssumption(j))
		}

		status, err := d.backend.CheckSatAssuming(ctx, assumptions)
		if err != nil {
			return nil, fmt.Errorf(`search: round %d: %w`, cpt, err)
		}

		switch status {
		case solver.StatusSat:
			model, err := d.decodeModel(cpt)
			if err != nil {
				return nil, err
			}
			return &Result{Sat: true, Horizon: cpt, Model: model}, nil
		case solver.StatusUnsat:
			lastCore = d.backend.UnsatCore()
			d.logger.WithField(`round`, cpt).Info(`search: increase the bound`)
		default:
			// unknown/timeout is treated conservatively as "increase the bound".
			lastCore = d.backend.UnsatCore()
			d.logger.WithField(`round`, cpt).WithError(solver.ErrUnknown).Warn(`search: solver returned unknown, increase the bound`)
		}
	}

	return &Result{Sat: false, Horizon: d.cfg.Bound, Core: lastCore}, ErrHorizonExhausted
}

// decodeModel collects, from step 0 through the final horizon, every term
// the diagnostics witness decoder needs, named by the same scheme
// symbol.Factory uses.
func (d *Driver) decodeModel(horizon int) (map[string]solver.Value, error) {
	model := make(map[string]solver.Value)
	for i := 0; i <= horizon; i++ {
		s := d.enc.Factory().Step(i)
		terms := map[string]solver.Term{
			fmt.Sprintf(`fp_%d`, i):           s.Fp,
			fmt.Sprintf(`np_%d`, i):           s.Np,
			fmt.Sprintf(`idt_fp_%d`, i):       s.IdtFp,
			fmt.Sprintf(`idt_np_%d`, i):       s.IdtNp,
			fmt.Sprintf(`nop_fp_%d`, i):       s.NopFp,
			fmt.Sprintf(`nop_np_%d`, i):       s.NopNp,
			fmt.Sprintf(`checkSynchro_%d`, i): s.CheckSynchro,
			fmt.Sprintf(`g_fp_%d`, i):         s.GFp,
			fmt.Sprintf(`g_np_%d`, i):         s.GNp,
			fmt.Sprintf(`delay_fp_%d`, i):     s.DelayFp,
			fmt.Sprintf(`delay_np_%d`, i):     s.DelayNp,
			fmt.Sprintf(`cptFault_%d`, i):     s.CptFault,
			fmt.Sprintf(`lfp_%d`, i):          s.Lfp,
			fmt.Sprintf(`lnp_%d`, i):          s.Lnp,
		}
		for name, t := range terms {
			v, err := d.backend.Eval(t)
			if err != nil {
				return nil, fmt.Errorf(`search: decoding %s: %w`, name, err)
			}
			model[name] = v
		}
	}
	return model, nil
}
