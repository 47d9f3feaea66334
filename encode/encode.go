// Package encode is the constraint encoder (spec.md §4.3) - the heart of
// the system. Encoder.Init emits the special-cased step-0 constraints;
// Encoder.Step(i) emits the general per-step conjunction for i>=1,
// including the forward references into step i+1 that spec.md's ordering
// note describes ("constraints emitted for step i always reference
// variables for steps <= i+1").
package encode

import (
	"fmt"
	"math/big"

	"github.com/tadiag/deltadiag/automaton"
	"github.com/tadiag/deltadiag/log"
	"github.com/tadiag/deltadiag/solver"
	"github.com/tadiag/deltadiag/symbol"
)

// Encoder binds an automaton, its precomputed follower relation, a
// symbolic variable factory and a solver backend together. It never calls
// backend.CheckSatAssuming - spec.md §4.4 reserves that to the search
// driver.
type Encoder struct {
	a        *automaton.Automaton
	next     [][]int
	backend  solver.Backend
	factory  *symbol.Factory
	logger   log.Logger
	maxLabel automaton.EventLabel

	initialized bool
	lastStep    int
}

// New builds an Encoder for an already-Prepare()'d automaton.
func New(a *automaton.Automaton, backend solver.Backend, logger log.Logger) (*Encoder, error) {
	if a == nil {
		return nil, fmt.Errorf(`encode: nil automaton`)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Discard{}
	}
	return &Encoder{
		a:        a,
		next:     automaton.Follower(a),
		backend:  backend,
		factory:  symbol.NewFactory(backend, a.ClockNum, len(a.Transitions)),
		logger:   logger,
		maxLabel: a.MaxLabel(),
	}, nil
}

// Factory exposes the underlying variable factory, used by the search
// driver to reach the last step's terms when building assumption literals,
// and by diagnostics to decode a model.
func (e *Encoder) Factory() *symbol.Factory { return e.factory }

// Next returns the precomputed transition-follower relation.
func (e *Encoder) Next() [][]int { return e.next }

// ObservableAssumption returns transition j's isObservable term, polarized
// to match its permanent Init-time definition (Eq(isObservable[j],
// event(j) > NoObs)). The search driver passes these as per-round
// assumption literals (spec.md §4.4, "together with the entire
// isObservable[·] list as assumptions") - using the already-true polarity
// keeps the assumption consistent with the hard assertion instead of
// contradicting it, while still letting the UNSAT core name which
// transitions' observability participated in a round's infeasibility.
func (e *Encoder) ObservableAssumption(j int) solver.Term {
	if e.a.Transitions[j].Event > automaton.NoObs {
		return e.factory.IsObservable(j)
	}
	return solver.Not(e.factory.IsObservable(j))
}

func (e *Encoder) assert(t solver.Term) { e.backend.Assert(t) }

// Init emits the step-0 special case (spec.md §4.3, "Initial step"). It is
// idempotent and must be called before the first Step.
func (e *Encoder) Init() error {
	if e.initialized {
		return nil
	}
	e.logger.Debug(`encode: emitting step 0`)

	// labelTransition[j] pinned to its true event id, plus the universal
	// range assertion, once, for every transition.
	for j, t := range e.a.Transitions {
		e.assert(solver.Eq(e.factory.LabelTransition(j), solver.IntLit(int64(t.Event))))
		e.assert(solver.And(
			solver.Le(solver.IntLit(0), e.factory.LabelTransition(j)),
			solver.Le(e.factory.LabelTransition(j), solver.IntLit(int64(e.maxLabel))),
		))
		e.assert(solver.Eq(e.factory.IsObservable(j), solver.BoolLit(t.Event > automaton.NoObs)))
	}

	s0 := e.factory.Step(0)
	nop := solver.IntLit(int64(e.a.NopIndex))

	e.assert(solver.Eq(s0.Fp, nop))
	e.assert(solver.Eq(s0.Np, nop))
	e.assert(solver.Eq(s0.Lfp, nop))
	e.assert(solver.Eq(s0.Lnp, nop))

	// nop_fp[0] = nop_np[0] = false is the literal-as-written initial
	// override: the sentinel step is not itself treated as a "stutter"
	// for the anti-deadlock/no-stutter-forever rules.
	e.assert(solver.Eq(s0.NopFp, solver.BoolLit(false)))
	e.assert(solver.Eq(s0.NopNp, solver.BoolLit(false)))

	for k := 0; k < e.a.ClockNum; k++ {
		e.assert(solver.Eq(s0.ClockFp[k], solver.RealLit(big.NewRat(0, 1))))
		e.assert(solver.Eq(s0.ClockNp[k], solver.RealLit(big.NewRat(0, 1))))
		// the synthetic NOP transition resets every clock (automaton.Prepare),
		// and fp[0]=np[0]=NopIndex always - so step 0's reset flags are true,
		// not free variables.
		e.assert(solver.Eq(s0.ResetFp[k], solver.BoolLit(true)))
		e.assert(solver.Eq(s0.ResetNp[k], solver.BoolLit(true)))
	}
	e.assert(solver.Eq(s0.GFp, solver.RealLit(big.NewRat(0, 1))))
	e.assert(solver.Eq(s0.GNp, solver.RealLit(big.NewRat(0, 1))))
	e.assert(solver.Eq(s0.DelayFp, solver.RealLit(big.NewRat(0, 1))))
	e.assert(solver.Eq(s0.DelayNp, solver.RealLit(big.NewRat(0, 1))))
	e.assert(solver.Eq(s0.LengthFp, solver.IntLit(0)))
	e.assert(solver.Eq(s0.LengthNp, solver.IntLit(0)))
	e.assert(solver.Eq(s0.CptFault, solver.RealLit(big.NewRat(0, 1))))

	e.assert(solver.Eq(s0.IdtFp, e.factory.LabelTransition(e.a.NopIndex)))
	e.assert(solver.Eq(s0.IdtNp, e.factory.LabelTransition(e.a.NopIndex)))
	e.assert(solver.Eq(s0.ConstraintFp, solver.BoolLit(true)))
	e.assert(solver.Eq(s0.ConstraintNp, solver.BoolLit(true)))

	// faultOccurs[0] = (idt_fp[0] = FAULT); the NOP sentinel's event is
	// NoObs, so this is false at step 0 for every well-formed automaton,
	// but is expressed via the general rule rather than hardcoded.
	e.assert(solver.Eq(s0.FaultOccurs, solver.Eq(s0.IdtFp, solver.IntLit(int64(automaton.FAULT)))))
	e.assert(solver.Eq(s0.CheckSynchro, solver.BoolLit(false)))

	// the three i+1-referencing rules (clock update, NOP neutrality, fault
	// counter) are otherwise only emitted by Step(i) for i>=1; without this
	// call here, step 1's clocks/delay/cptFault would be left as free
	// variables instead of following from step 0.
	e.emitForward(s0, e.factory.Step(1))

	e.initialized = true
	e.lastStep = 0
	return nil
}

// Step emits the general step-i conjunction for i >= 1. i must be exactly
// one more than the last step processed (Init counts as step 0).
func (e *Encoder) Step(i int) error {
	if !e.initialized {
		return fmt.Errorf(`encode: Init must run before Step`)
	}
	if i != e.lastStep+1 {
		return fmt.Errorf(`encode: Step(%d) out of order, expected %d`, i, e.lastStep+1)
	}
	e.logger.WithField(`step`, i).Debug(`encode: emitting step`)

	cur := e.factory.Step(i)
	prev := e.factory.Step(i - 1)
	nxt := e.factory.Step(i + 1) // forward reference: resulting clocks/delay/cptFault

	e.emitIdentityAndDischarge(i, cur, nxt)
	e.emitForward(cur, nxt)
	e.emitGeneral(i, cur, prev)

	e.lastStep = i
	return nil
}

// LastStep returns the highest step index processed so far via Step (or 0
// if only Init has run).
func (e *Encoder) LastStep() int { return e.lastStep }

// emitIdentityAndDischarge is spec.md's "Identity binding" and
// "Guard/invariant discharge" bullets: per transition j, force the
// selector-guarded facts to hold for whichever transition fp[i]/np[i]
// actually picked.
func (e *Encoder) emitIdentityAndDischarge(i int, cur, nxt *symbol.Step) {
	for j, t := range e.a.Transitions {
		jLit := solver.IntLit(int64(j))
		guard := guardTerm(t.Guard, cur.ClockFp)
		guardNp := guardTerm(t.Guard, cur.ClockNp)

		selFp := solver.Eq(cur.Fp, jLit)
		e.assert(solver.Implies(selFp, solver.Eq(cur.IdtFp, e.factory.LabelTransition(j))))
		e.assert(solver.Implies(selFp, solver.Eq(cur.ConstraintFp, guard)))

		selNp := solver.Eq(cur.Np, jLit)
		e.assert(solver.Implies(selNp, solver.Eq(cur.IdtNp, e.factory.LabelTransition(j))))
		e.assert(solver.Implies(selNp, solver.Eq(cur.ConstraintNp, guardNp)))

		source := e.a.States[t.Source]
		target := e.a.States[t.Target]
		for k := 0; k < e.a.ClockNum; k++ {
			reset := solver.BoolLit(isReset(t, k))
			e.assert(solver.Implies(selFp, solver.Eq(cur.ResetFp[k], reset)))
			e.assert(solver.Implies(selNp, solver.Eq(cur.ResetNp[k], reset)))

			srcInvFp := invariantTermForClock(source.Invariant, k, cur.ClockFp)
			srcInvNp := invariantTermForClock(source.Invariant, k, cur.ClockNp)
			e.assert(solver.Implies(selFp, solver.Eq(cur.SourceInvFp[k], srcInvFp)))
			e.assert(solver.Implies(selNp, solver.Eq(cur.SourceInvNp[k], srcInvNp)))

			finInvFp := invariantTermForClock(target.Invariant, k, nxt.ClockFp)
			finInvNp := invariantTermForClock(target.Invariant, k, nxt.ClockNp)
			e.assert(solver.Implies(selFp, solver.Eq(cur.FinalInvFp[k], finInvFp)))
			e.assert(solver.Implies(selNp, solver.Eq(cur.FinalInvNp[k], finInvNp)))
		}
	}

	// force the selector-guarded facts to actually hold.
	e.assert(cur.ConstraintFp)
	e.assert(cur.ConstraintNp)
	for k := 0; k < e.a.ClockNum; k++ {
		e.assert(cur.SourceInvFp[k])
		e.assert(cur.SourceInvNp[k])
		e.assert(cur.FinalInvFp[k])
		e.assert(cur.FinalInvNp[k])
	}

	// observable synchronization: checkSynchro[i] = (idt_fp[i] > NO_OBS v
	// idt_np[i] > NO_OBS) ^ isObservable[transition chosen]. "transition
	// chosen" is whichever of fp[i]/np[i] fired the observable event, so
	// isObservable is looked up per-run and OR'd: checkSynchro[i] holds as
	// soon as either run's chosen transition is observable, and the rule
	// below then requires both runs to fire the same event at the same time.
	noObs := solver.IntLit(int64(automaton.NoObs))
	fpObservable := solver.Gt(cur.IdtFp, noObs)
	npObservable := solver.Gt(cur.IdtNp, noObs)
	var fpSelIsObs, npSelIsObs solver.Term = solver.BoolLit(false), solver.BoolLit(false)
	for j := range e.a.Transitions {
		jLit := solver.IntLit(int64(j))
		fpSelIsObs = solver.Or(fpSelIsObs, solver.And(solver.Eq(cur.Fp, jLit), e.factory.IsObservable(j)))
		npSelIsObs = solver.Or(npSelIsObs, solver.And(solver.Eq(cur.Np, jLit), e.factory.IsObservable(j)))
	}
	e.assert(solver.Eq(cur.CheckSynchro, solver.And(
		solver.Or(fpObservable, npObservable),
		solver.Or(fpSelIsObs, npSelIsObs),
	)))
	e.assert(solver.Implies(cur.CheckSynchro, solver.And(
		solver.Eq(cur.IdtFp, cur.IdtNp),
		solver.Eq(cur.GFp, cur.GNp),
	)))
}

// emitForward is the three i+1-referencing rules: clock update, NOP
// neutrality and the fault counter.
func (e *Encoder) emitForward(cur, nxt *symbol.Step) {
	e.assert(solver.Ge(nxt.DelayFp, solver.RealLit(big.NewRat(0, 1))))
	e.assert(solver.Ge(nxt.DelayNp, solver.RealLit(big.NewRat(0, 1))))

	for k := 0; k < e.a.ClockNum; k++ {
		e.assert(solver.Implies(cur.ResetFp[k], solver.Eq(nxt.ClockFp[k], nxt.DelayFp)))
		e.assert(solver.Implies(solver.Not(cur.ResetFp[k]), solver.Eq(nxt.ClockFp[k], solver.Add(cur.ClockFp[k], nxt.DelayFp))))
		e.assert(solver.Implies(cur.ResetNp[k], solver.Eq(nxt.ClockNp[k], nxt.DelayNp)))
		e.assert(solver.Implies(solver.Not(cur.ResetNp[k]), solver.Eq(nxt.ClockNp[k], solver.Add(cur.ClockNp[k], nxt.DelayNp))))
	}

	nopIdx := solver.IntLit(int64(e.a.NopIndex))
	isNopFp := solver.Eq(cur.Fp, nopIdx)
	isNopNp := solver.Eq(cur.Np, nopIdx)
	e.assert(solver.Implies(isNopFp, solver.Eq(nxt.DelayFp, solver.RealLit(big.NewRat(0, 1)))))
	e.assert(solver.Implies(isNopNp, solver.Eq(nxt.DelayNp, solver.RealLit(big.NewRat(0, 1)))))

	// fault counter bookkeeping: note cptFault[i+1] accumulates
	// delay_fp[i+1] even on the step that transitions into the fault -
	// preserved exactly as spec.md §9 directs.
	e.assert(solver.Implies(solver.Not(cur.FaultOccurs), solver.Eq(nxt.CptFault, solver.RealLit(big.NewRat(0, 1)))))
	e.assert(solver.Implies(cur.FaultOccurs, solver.Eq(nxt.CptFault, solver.Add(cur.CptFault, nxt.DelayFp))))
}

// emitGeneral is every step-i-only rule (optionally referencing i-1):
// nop_*[i] binding, last-active propagation, global clock, length
// counters, legal successor, faultOccurs, normal-path exclusion, stutter
// anti-deadlock and no-stutter-forever.
func (e *Encoder) emitGeneral(i int, cur, prev *symbol.Step) {
	nopIdx := solver.IntLit(int64(e.a.NopIndex))
	e.assert(solver.Eq(cur.NopFp, solver.Eq(cur.Fp, nopIdx)))
	e.assert(solver.Eq(cur.NopNp, solver.Eq(cur.Np, nopIdx)))

	e.assert(solver.Implies(cur.NopFp, solver.Eq(cur.Lfp, prev.Lfp)))
	e.assert(solver.Implies(solver.Not(cur.NopFp), solver.Eq(cur.Lfp, cur.Fp)))
	e.assert(solver.Implies(cur.NopNp, solver.Eq(cur.Lnp, prev.Lnp)))
	e.assert(solver.Implies(solver.Not(cur.NopNp), solver.Eq(cur.Lnp, cur.Np)))

	e.assert(solver.Eq(cur.GFp, solver.Add(prev.GFp, cur.DelayFp)))
	e.assert(solver.Eq(cur.GNp, solver.Add(prev.GNp, cur.DelayNp)))

	e.assert(solver.Implies(cur.NopFp, solver.Eq(cur.LengthFp, prev.LengthFp)))
	e.assert(solver.Implies(solver.Not(cur.NopFp), solver.Eq(cur.LengthFp, solver.Add(prev.LengthFp, solver.IntLit(1)))))
	e.assert(solver.Implies(cur.NopNp, solver.Eq(cur.LengthNp, prev.LengthNp)))
	e.assert(solver.Implies(solver.Not(cur.NopNp), solver.Eq(cur.LengthNp, solver.Add(prev.LengthNp, solver.IntLit(1)))))

	for j := range e.a.Transitions {
		jLit := solver.IntLit(int64(j))
		e.assert(solver.Implies(solver.Eq(prev.Lfp, jLit), successorTerm(cur.Fp, e.next[j])))
		e.assert(solver.Implies(solver.Eq(prev.Lnp, jLit), successorTerm(cur.Np, e.next[j])))
	}

	e.assert(solver.Eq(cur.FaultOccurs, solver.Or(prev.FaultOccurs, solver.Eq(cur.IdtFp, solver.IntLit(int64(automaton.FAULT))))))
	e.assert(solver.Not(solver.Eq(cur.IdtNp, solver.IntLit(int64(automaton.FAULT)))))

	e.assert(solver.Or(solver.Not(cur.NopFp), solver.Not(cur.NopNp)))

	noObs := solver.IntLit(int64(automaton.NoObs))
	e.assert(solver.Implies(prev.NopFp, solver.Or(cur.NopFp, solver.Gt(cur.IdtFp, noObs))))
	e.assert(solver.Implies(prev.NopNp, solver.Or(cur.NopNp, solver.Gt(cur.IdtNp, noObs))))
}

func successorTerm(choice solver.Term, allowed []int) solver.Term {
	if len(allowed) == 0 {
		return solver.BoolLit(false)
	}
	var acc solver.Term = solver.BoolLit(false)
	for _, k := range allowed {
		acc = solver.Or(acc, solver.Eq(choice, solver.IntLit(int64(k))))
	}
	return acc
}

func isReset(t automaton.Transition, clock int) bool {
	for _, c := range t.Reset {
		if c == clock {
			return true
		}
	}
	return false
}

func atomTerm(v solver.Term, atom automaton.GuardAtom) solver.Term {
	b := solver.RealLit(atom.Bound)
	switch atom.Op {
	case automaton.OpGT:
		return solver.Gt(v, b)
	case automaton.OpGE:
		return solver.Ge(v, b)
	case automaton.OpLT:
		return solver.Lt(v, b)
	default:
		return solver.Le(v, b)
	}
}

// guardTerm conjoins every atom of a transition's guard, evaluated against
// clocks (indexed by GuardAtom.Clock). An empty guard is trivially true.
func guardTerm(atoms []automaton.GuardAtom, clocks []solver.Term) solver.Term {
	if len(atoms) == 0 {
		return solver.BoolLit(true)
	}
	var acc solver.Term = solver.BoolLit(true)
	for _, a := range atoms {
		acc = solver.And(acc, atomTerm(clocks[a.Clock], a))
	}
	return acc
}

// invariantTermForClock conjoins only the atoms of a state's invariant
// that mention clock k; no atom for k means the invariant is trivially
// true for that clock.
func invariantTermForClock(atoms []automaton.GuardAtom, k int, clocks []solver.Term) solver.Term {
	var acc solver.Term = solver.BoolLit(true)
	found := false
	for _, a := range atoms {
		if a.Clock != k {
			continue
		}
		found = true
		acc = solver.And(acc, atomTerm(clocks[k], a))
	}
	if !found {
		return solver.BoolLit(true)
	}
	return acc
}
