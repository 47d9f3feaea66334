package diagnostics

import (
	"errors"
	"math/big"
	"strconv"
	"testing"

	"github.com/go-test/deep"

	"github.com/tadiag/deltadiag/automaton"
	"github.com/tadiag/deltadiag/solver"
)

func intVal(v int64) solver.Value { return solver.Value{Sort: solver.SortInt, Int: v} }
func boolVal(v bool) solver.Value { return solver.Value{Sort: solver.SortBool, Bool: v} }
func realVal(r int64) solver.Value {
	return solver.Value{Sort: solver.SortReal, Real: big.NewRat(r, 1)}
}

func faultOnlyAutomaton(t *testing.T) *automaton.Automaton {
	t.Helper()
	b := automaton.NewBuilder(0, 0)
	b.AddTransition(0, 1, automaton.FAULT, nil, nil)
	a, err := b.Build()
	if err != nil {
		t.Fatalf(`Build: %v`, err)
	}
	return a
}

func chainAutomaton(t *testing.T) *automaton.Automaton {
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

func stepModel(i int, fp, np int64, idtFp, idtNp int64, nopFp, nopNp bool, lfp, lnp int64) map[string]solver.Value {
	return map[string]solver.Value{
		key(`fp`, i):           intVal(fp),
		key(`np`, i):           intVal(np),
		key(`idt_fp`, i):       intVal(idtFp),
		key(`idt_np`, i):       intVal(idtNp),
		key(`nop_fp`, i):       boolVal(nopFp),
		key(`nop_np`, i):       boolVal(nopNp),
		key(`checkSynchro`, i): boolVal(false),
		key(`g_fp`, i):         realVal(0),
		key(`g_np`, i):         realVal(0),
		key(`delay_fp`, i):     realVal(0),
		key(`delay_np`, i):     realVal(0),
		key(`cptFault`, i):     realVal(0),
		key(`lfp`, i):          intVal(lfp),
		key(`lnp`, i):          intVal(lnp),
	}
}

func key(stem string, i int) string {
	return stem + `_` + strconv.Itoa(i)
}

func merge(maps ...map[string]solver.Value) map[string]solver.Value {
	out := make(map[string]solver.Value)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func TestDecodeWitness_consistent(t *testing.T) {
	a := faultOnlyAutomaton(t) // NopIndex = 1
	model := merge(
		stepModel(0, 1, 1, 2, 2, true, true, 1, 1),
		stepModel(1, 0, 1, 1, 2, false, true, 0, 1),
	)
	w, err := DecodeWitness(a, model, 1)
	if err != nil {
		t.Fatalf(`DecodeWitness: %v`, err)
	}
	if len(w.Steps) != 2 {
		t.Fatalf(`len(w.Steps) = %d, want 2`, len(w.Steps))
	}
	if w.Steps[1].Fp != 0 || w.Steps[1].IdtFp != int64(automaton.FAULT) {
		t.Fatalf(`w.Steps[1] = %+v, want the FAULT transition fired`, w.Steps[1])
	}

	want := &Witness{Steps: []StepWitness{
		{
			Index: 0, Fp: 1, Np: 1,
			IdtFp: 2, IdtNp: 2,
			NopFp: true, NopNp: true,
			CheckSynchro: false,
			GFp:          big.NewRat(0, 1), GNp: big.NewRat(0, 1),
			DelayFp: big.NewRat(0, 1), DelayNp: big.NewRat(0, 1),
			CptFault: big.NewRat(0, 1),
		},
		{
			Index: 1, Fp: 0, Np: 1,
			IdtFp: int64(automaton.FAULT), IdtNp: 2,
			NopFp: false, NopNp: true,
			CheckSynchro: false,
			GFp:          big.NewRat(0, 1), GNp: big.NewRat(0, 1),
			DelayFp: big.NewRat(0, 1), DelayNp: big.NewRat(0, 1),
			CptFault: big.NewRat(0, 1),
		},
	}}
	// big.Rat stores its numerator/denominator in unexported fields; deep's
	// default skips those, which would make every non-nil *big.Rat compare
	// equal regardless of value, so enable unexported-field comparison for
	// this one assertion.
	old := deep.CompareUnexportedFields
	deep.CompareUnexportedFields = true
	defer func() { deep.CompareUnexportedFields = old }()
	if diff := deep.Equal(w, want); diff != nil {
		t.Fatalf(`decoded witness differs from expected:\n%v`, diff)
	}
}

func TestDecodeWitness_rejectsBrokenContiguity(t *testing.T) {
	a := chainAutomaton(t) // NopIndex = 3
	model := merge(
		stepModel(0, 3, 3, 2, 2, true, true, 3, 3),
		stepModel(1, 0, 3, 1, 2, false, true, 0, 3),
		// transition 2 (q0->q2) does not follow transition 0's target (q1).
		stepModel(2, 2, 3, 3, 2, false, true, 2, 3),
	)
	_, err := DecodeWitness(a, model, 2)
	if !errors.Is(err, ErrWitnessInconsistent) {
		t.Fatalf(`DecodeWitness error = %v, want ErrWitnessInconsistent`, err)
	}
}

func TestDecodeWitness_rejectsLastActiveMismatch(t *testing.T) {
	a := faultOnlyAutomaton(t)
	model := merge(
		stepModel(0, 1, 1, 2, 2, true, true, 1, 1),
		stepModel(1, 0, 1, 1, 2, false, true, 1 /* wrong: should be 0 */, 1),
	)
	_, err := DecodeWitness(a, model, 1)
	if !errors.Is(err, ErrWitnessInconsistent) {
		t.Fatalf(`DecodeWitness error = %v, want ErrWitnessInconsistent`, err)
	}
}

func TestDecodeWitness_missingModelKey(t *testing.T) {
	a := faultOnlyAutomaton(t)
	model := map[string]solver.Value{} // empty: fp_0 is missing
	if _, err := DecodeWitness(a, model, 0); !errors.Is(err, ErrWitnessInconsistent) {
		t.Fatalf(`DecodeWitness error = %v, want ErrWitnessInconsistent`, err)
	}
}

func TestSuggest_emptyCore(t *testing.T) {
	hints := Suggest(nil)
	if len(hints) != 1 || hints[0].Literal != `` {
		t.Fatalf(`Suggest(nil) = %+v`, hints)
	}
}

func TestSuggest_prefixDispatch(t *testing.T) {
	core := []string{`length_fp_3`, `delay_fp_2`, `constraint_np_1`, `cptFault_4`, `bound`, `delta`, `some_unknown_literal`}
	hints := Suggest(core)
	want := map[string]string{
		`length_fp_3`:          `increase BOUND`,
		`delay_fp_2`:           `delays over-constrained`,
		`constraint_np_1`:      `clock guards may be contradictory`,
		`cptFault_4`:           `DELTA timing may be unreachable`,
		`bound`:                `raise BOUND`,
		`delta`:                `DELTA inconsistent`,
		`some_unknown_literal`: `some_unknown_literal`,
	}
	if len(hints) != len(want) {
		t.Fatalf(`Suggest(core) returned %d hints, want %d`, len(hints), len(want))
	}
	for _, h := range hints {
		if msg, ok := want[h.Literal]; !ok || msg != h.Message {
			t.Errorf(`hint for %q = %q, want %q`, h.Literal, h.Message, want[h.Literal])
		}
	}
}

func TestSuggest_sortedByLiteral(t *testing.T) {
	hints := Suggest([]string{`delta`, `bound`, `cptFault_1`})
	for i := 1; i < len(hints); i++ {
		if hints[i-1].Literal > hints[i].Literal {
			t.Fatalf(`hints not sorted: %+v`, hints)
		}
	}
}

func TestSuggest_resetDominatedCore(t *testing.T) {
	hints := Suggest([]string{`reset0_fp_1`, `reset1_np_2`})
	if len(hints) != 3 {
		t.Fatalf(`Suggest(reset-only core) returned %d hints, want 3 (2 literals + 1 summary)`, len(hints))
	}
	foundSummary := false
	for _, h := range hints {
		if h.Literal == `` {
			foundSummary = true
		}
	}
	if !foundSummary {
		t.Fatalf(`expected a reset-dominated summary hint, got %+v`, hints)
	}
}
