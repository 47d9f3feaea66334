// Package symbol is the symbolic variable factory (spec.md §4.2): it lazily
// allocates, per step, every SMT variable the constraint encoder needs,
// under a deterministic i-indexed naming scheme so repeated incremental
// declarations dedupe exactly the way the backend contract (solver.Backend)
// requires - declarations are never retracted, only grown.
package symbol

import (
	"fmt"

	"github.com/tadiag/deltadiag/solver"
)

type (
	// Step is the bundle of per-step variables spec.md §3 lists for step
	// index i. Per-clock slices are indexed 0..ClockNum-1.
	Step struct {
		Index int

		Fp, Np   solver.Term // Int: chosen transition index
		Lfp, Lnp solver.Term // Int: last non-NOP transition index

		IdtFp, IdtNp solver.Term // Int: event label of the chosen transition
		NopFp, NopNp solver.Term // Bool: this step is a stutter

		ClockFp, ClockNp []solver.Term // Real, one per clock
		DelayFp, DelayNp solver.Term   // Real >= 0
		GFp, GNp         solver.Term   // Real: global clock (sum of delays)

		ResetFp, ResetNp           []solver.Term // Bool, one per clock
		SourceInvFp, SourceInvNp   []solver.Term // Bool, one per clock
		FinalInvFp, FinalInvNp     []solver.Term // Bool, one per clock
		ConstraintFp, ConstraintNp solver.Term   // Bool: whole-guard discharge flag

		FaultOccurs  solver.Term // Bool
		CptFault     solver.Term // Real
		CheckSynchro solver.Term // Bool

		LengthFp, LengthNp solver.Term // Int
	}

	// Factory allocates and caches Step values and the per-transition
	// globals (isObservable[j], labelTransition[j]), declaring each
	// variable with backend exactly once.
	Factory struct {
		backend  solver.Backend
		clockNum int

		steps map[int]*Step

		isObservable    []solver.Term // Bool, one per transition
		labelTransition []solver.Term // Int, one per transition
	}
)

// NewFactory allocates the per-transition globals immediately (spec.md
// §4.2: "globals allocated once") and is ready to serve Step(i) calls
// thereafter.
func NewFactory(backend solver.Backend, clockNum, numTransitions int) *Factory {
	f := &Factory{
		backend:  backend,
		clockNum: clockNum,
		steps:    make(map[int]*Step),
	}
	f.isObservable = make([]solver.Term, numTransitions)
	f.labelTransition = make([]solver.Term, numTransitions)
	for j := 0; j < numTransitions; j++ {
		f.isObservable[j] = backend.DeclareBool(fmt.Sprintf(`isObservable_%d`, j))
		f.labelTransition[j] = backend.DeclareInt(fmt.Sprintf(`labelTransition_%d`, j))
	}
	return f
}

// IsObservable returns the isObservable[j] global.
func (f *Factory) IsObservable(j int) solver.Term { return f.isObservable[j] }

// LabelTransition returns the labelTransition[j] global.
func (f *Factory) LabelTransition(j int) solver.Term { return f.labelTransition[j] }

// NumTransitions returns the number of per-transition globals allocated.
func (f *Factory) NumTransitions() int { return len(f.isObservable) }

// Step returns (allocating on first access) the variable bundle for step i.
// Declarations go through backend exactly once per name, matching
// solver.Backend's "declared names dedupe" contract.
func (f *Factory) Step(i int) *Step {
	if s, ok := f.steps[i]; ok {
		return s
	}

	n := func(stem string) string { return fmt.Sprintf(`%s_%d`, stem, i) }
	clockVec := func(stem, run string) []solver.Term {
		v := make([]solver.Term, f.clockNum)
		for k := 0; k < f.clockNum; k++ {
			v[k] = f.backend.DeclareReal(fmt.Sprintf(`%s%d_%s_%d`, stem, k, run, i))
		}
		return v
	}
	boolVec := func(stem, run string) []solver.Term {
		v := make([]solver.Term, f.clockNum)
		for k := 0; k < f.clockNum; k++ {
			v[k] = f.backend.DeclareBool(fmt.Sprintf(`%s%d_%s_%d`, stem, k, run, i))
		}
		return v
	}

	s := &Step{
		Index: i,

		Fp: f.backend.DeclareInt(n(`fp`)),
		Np: f.backend.DeclareInt(n(`np`)),

		Lfp: f.backend.DeclareInt(n(`lfp`)),
		Lnp: f.backend.DeclareInt(n(`lnp`)),

		IdtFp: f.backend.DeclareInt(n(`idt_fp`)),
		IdtNp: f.backend.DeclareInt(n(`idt_np`)),

		NopFp: f.backend.DeclareBool(n(`nop_fp`)),
		NopNp: f.backend.DeclareBool(n(`nop_np`)),

		ClockFp: clockVec(`clock`, `fp`),
		ClockNp: clockVec(`clock`, `np`),

		DelayFp: f.backend.DeclareReal(n(`delay_fp`)),
		DelayNp: f.backend.DeclareReal(n(`delay_np`)),

		GFp: f.backend.DeclareReal(n(`g_fp`)),
		GNp: f.backend.DeclareReal(n(`g_np`)),

		ResetFp: boolVec(`reset`, `fp`),
		ResetNp: boolVec(`reset`, `np`),

		SourceInvFp: boolVec(`sourceInv`, `fp`),
		SourceInvNp: boolVec(`sourceInv`, `np`),

		FinalInvFp: boolVec(`finalInv`, `fp`),
		FinalInvNp: boolVec(`finalInv`, `np`),

		ConstraintFp: f.backend.DeclareBool(n(`constraint_fp`)),
		ConstraintNp: f.backend.DeclareBool(n(`constraint_np`)),

		FaultOccurs: f.backend.DeclareBool(n(`faultOccurs`)),
		CptFault:    f.backend.DeclareReal(n(`cptFault`)),

		CheckSynchro: f.backend.DeclareBool(n(`checkSynchro`)),

		LengthFp: f.backend.DeclareInt(n(`length_fp`)),
		LengthNp: f.backend.DeclareInt(n(`length_np`)),
	}

	f.steps[i] = s
	return s
}

// HasStep reports whether step i has already been allocated, without
// allocating it.
func (f *Factory) HasStep(i int) bool {
	_, ok := f.steps[i]
	return ok
}
