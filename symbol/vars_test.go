package symbol

import (
	"strconv"
	"testing"

	"github.com/tadiag/deltadiag/solver/memsolver"
)

func TestFactory_globalsDeclaredOnce(t *testing.T) {
	b := memsolver.New(memsolver.Domain{})
	f := NewFactory(b, 2, 3)

	if got := f.NumTransitions(); got != 3 {
		t.Fatalf(`NumTransitions() = %d, want 3`, got)
	}
	for j := 0; j < 3; j++ {
		if got := f.IsObservable(j).Name(); got != `isObservable_`+strconv.Itoa(j) {
			t.Fatalf(`IsObservable(%d).Name() = %q`, j, got)
		}
		if got := f.LabelTransition(j).Name(); got != `labelTransition_`+strconv.Itoa(j) {
			t.Fatalf(`LabelTransition(%d).Name() = %q`, j, got)
		}
	}
}

func TestFactory_stepNaming(t *testing.T) {
	b := memsolver.New(memsolver.Domain{})
	f := NewFactory(b, 2, 1)

	if f.HasStep(3) {
		t.Fatalf(`HasStep(3) = true before any access`)
	}
	s3 := f.Step(3)
	if !f.HasStep(3) {
		t.Fatalf(`HasStep(3) = false after access`)
	}

	cases := map[string]string{
		`fp_3`:            s3.Fp.Name(),
		`np_3`:            s3.Np.Name(),
		`lfp_3`:           s3.Lfp.Name(),
		`lnp_3`:           s3.Lnp.Name(),
		`idt_fp_3`:        s3.IdtFp.Name(),
		`idt_np_3`:        s3.IdtNp.Name(),
		`nop_fp_3`:        s3.NopFp.Name(),
		`nop_np_3`:        s3.NopNp.Name(),
		`delay_fp_3`:      s3.DelayFp.Name(),
		`delay_np_3`:      s3.DelayNp.Name(),
		`g_fp_3`:          s3.GFp.Name(),
		`g_np_3`:          s3.GNp.Name(),
		`constraint_fp_3`: s3.ConstraintFp.Name(),
		`constraint_np_3`: s3.ConstraintNp.Name(),
		`faultOccurs_3`:   s3.FaultOccurs.Name(),
		`cptFault_3`:      s3.CptFault.Name(),
		`checkSynchro_3`:  s3.CheckSynchro.Name(),
		`length_fp_3`:     s3.LengthFp.Name(),
		`length_np_3`:     s3.LengthNp.Name(),
		`clock0_fp_3`:     s3.ClockFp[0].Name(),
		`clock1_fp_3`:     s3.ClockFp[1].Name(),
		`clock0_np_3`:     s3.ClockNp[0].Name(),
		`reset0_fp_3`:     s3.ResetFp[0].Name(),
		`sourceInv0_fp_3`: s3.SourceInvFp[0].Name(),
		`finalInv0_fp_3`:  s3.FinalInvFp[0].Name(),
	}
	for want, got := range cases {
		if got != want {
			t.Errorf(`got name %q, want %q`, got, want)
		}
	}
}

func TestFactory_stepIsCachedNotReallocated(t *testing.T) {
	b := memsolver.New(memsolver.Domain{})
	f := NewFactory(b, 1, 1)

	a := f.Step(5)
	c := f.Step(5)
	if a.Fp.Name() != c.Fp.Name() {
		t.Fatalf(`Step(5) called twice produced different variables`)
	}
}
