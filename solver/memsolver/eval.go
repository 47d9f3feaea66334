package memsolver

import (
	"math/big"

	"github.com/tadiag/deltadiag/solver"
)

// evalTerm ground-evaluates t given a complete assignment of every variable
// t references. Panics (via nil map lookups returning zero Values) are not
// possible here because the search in memsolver.go only ever calls evalTerm
// on constraints bucketed at a point where all of their variables are
// already assigned.
func evalTerm(t solver.Term, assign map[string]solver.Value) solver.Value {
	if t.IsVar() {
		return assign[t.Name()]
	}

	if t.IsLit() {
		return t.LitValue()
	}

	op, args, _ := t.App()
	vals := make([]solver.Value, len(args))
	for i, a := range args {
		vals[i] = evalTerm(a, assign)
	}

	switch op {
	case `=`:
		return boolVal(valuesEqual(vals[0], vals[1]))
	case `>`:
		return boolVal(compareValues(vals[0], vals[1]) > 0)
	case `>=`:
		return boolVal(compareValues(vals[0], vals[1]) >= 0)
	case `<`:
		return boolVal(compareValues(vals[0], vals[1]) < 0)
	case `<=`:
		return boolVal(compareValues(vals[0], vals[1]) <= 0)
	case `+`:
		return addValues(vals[0], vals[1])
	case `not`:
		return boolVal(!vals[0].Bool)
	case `=>`:
		return boolVal(!vals[0].Bool || vals[1].Bool)
	case `and`:
		for _, v := range vals {
			if !v.Bool {
				return boolVal(false)
			}
		}
		return boolVal(true)
	case `or`:
		for _, v := range vals {
			if v.Bool {
				return boolVal(true)
			}
		}
		return boolVal(false)
	case `ite`:
		if vals[0].Bool {
			return vals[1]
		}
		return vals[2]
	case `to_real`:
		return toReal(vals[0])
	default:
		panic(`memsolver: unknown operator ` + op)
	}
}

func boolVal(b bool) solver.Value { return solver.Value{Sort: solver.SortBool, Bool: b} }

func valuesEqual(a, b solver.Value) bool {
	if a.Sort == solver.SortBool {
		return a.Bool == b.Bool
	}
	return compareValues(a, b) == 0
}

func compareValues(a, b solver.Value) int {
	ar, br := asRat(a), asRat(b)
	return ar.Cmp(br)
}

func asRat(v solver.Value) *big.Rat {
	if v.Sort == solver.SortReal {
		if v.Real == nil {
			return new(big.Rat)
		}
		return v.Real
	}
	return new(big.Rat).SetInt64(v.Int)
}

func addValues(a, b solver.Value) solver.Value {
	if a.Sort == solver.SortReal || b.Sort == solver.SortReal {
		return solver.Value{Sort: solver.SortReal, Real: new(big.Rat).Add(asRat(a), asRat(b))}
	}
	return solver.Value{Sort: solver.SortInt, Int: a.Int + b.Int}
}

func toReal(v solver.Value) solver.Value {
	if v.Sort == solver.SortReal {
		return v
	}
	return solver.Value{Sort: solver.SortReal, Real: new(big.Rat).SetInt64(v.Int)}
}
