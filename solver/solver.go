// Package solver defines the external SMT backend contract (spec.md §4.5):
// a combined theory of integers, booleans and linear real arithmetic, with
// incremental check-sat-assuming and UNSAT-core extraction. No
// implementation detail of a concrete backend leaks past this contract -
// the encoder and search driver only ever see Term/Backend/Status/Value.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// ErrUnknown marks a CheckSatAssuming round that came back StatusUnknown
// (spec.md §7): the solver gave up rather than proving sat or unsat, a
// distinct outcome from exhausting the configured bound.
var ErrUnknown = errors.New(`solver: check-sat-assuming returned unknown`)

type (
	// Sort is one of the three theories spec.md §1 names.
	Sort int

	termKind int

	// Term is an opaque handle to either a declared variable or a composed
	// expression. It is intentionally a value type (not an interface) so it
	// can be composed with the package-level builder functions regardless
	// of which Backend eventually asserts or evaluates it.
	Term struct {
		kind termKind
		name string // declared variable name, or operator symbol for an app
		sort Sort
		args []Term

		intVal  int64
		realVal *big.Rat
		boolVal bool
	}

	// Status is the three-way outcome of a solver round: sat, unsat, or
	// unknown (spec.md §7: treated conservatively as "increase the bound").
	Status int

	// Value is a decoded model value for a single term.
	Value struct {
		Sort Sort
		Int  int64
		Real *big.Rat
		Bool bool
	}

	// Backend is the one contract every SMT integration must satisfy.
	// Declarations, assertions and the growing symbolic-variable tables are
	// never retracted (spec.md §5) - only the per-round assumptions passed
	// to CheckSatAssuming are transient.
	Backend interface {
		DeclareInt(name string) Term
		DeclareBool(name string) Term
		DeclareReal(name string) Term

		Assert(t Term)

		// CheckSatAssuming is the sole blocking/suspension point (spec.md
		// §5). assumptions are Boolean terms pushed for this round only.
		CheckSatAssuming(ctx context.Context, assumptions []Term) (Status, error)

		// Eval returns the model value of t after a SAT result.
		Eval(t Term) (Value, error)

		// UnsatCore returns the declared names of the assumption literals
		// implicated in the most recent UNSAT result. Only assumptions that
		// are declared variables appear, under the names they were declared
		// with (the search driver's are aB_k, aF_k, aFO_k, aD and
		// isObservable_j).
		UnsatCore() []string

		// Close releases any external resources (e.g. a solver process).
		Close() error
	}
)

const (
	SortInt Sort = iota
	SortBool
	SortReal
)

const (
	StatusSat Status = iota
	StatusUnsat
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusSat:
		return `sat`
	case StatusUnsat:
		return `unsat`
	default:
		return `unknown`
	}
}

const (
	kindVar termKind = iota
	kindApp
	kindIntLit
	kindRealLit
	kindBoolLit
)

// Name returns the declared variable name of t, or "" for a composed term.
// Used by UNSAT-core-to-suggestion mapping, which inspects assumption
// literal names, not arbitrary sub-expressions.
func (t Term) Name() string {
	if t.kind == kindVar {
		return t.name
	}
	return ``
}

func (t Term) Sort_() Sort { return t.sort }

func (t Term) IsVar() bool { return t.kind == kindVar }

// IsLit reports whether t is an int/real/bool literal (as opposed to a
// variable or an operator application).
func (t Term) IsLit() bool {
	switch t.kind {
	case kindIntLit, kindRealLit, kindBoolLit:
		return true
	default:
		return false
	}
}

// LitValue returns the constant value of a literal term. Only meaningful
// when IsLit() is true; used by backends (e.g. memsolver) that ground-
// evaluate a Term tree without re-parsing its String() form.
func (t Term) LitValue() Value {
	switch t.kind {
	case kindIntLit:
		return Value{Sort: SortInt, Int: t.intVal}
	case kindRealLit:
		return Value{Sort: SortReal, Real: t.realVal}
	case kindBoolLit:
		return Value{Sort: SortBool, Bool: t.boolVal}
	default:
		return Value{}
	}
}

// App returns the operator symbol and operands of a composed term. ok is
// false for variables and literals.
func (t Term) App() (op string, args []Term, ok bool) {
	if t.kind != kindApp {
		return ``, nil, false
	}
	return t.name, t.args, true
}

// --- literal and composition builders: solver-agnostic, pure syntax. ---

func IntLit(v int64) Term { return Term{kind: kindIntLit, sort: SortInt, intVal: v} }
func BoolLit(v bool) Term { return Term{kind: kindBoolLit, sort: SortBool, boolVal: v} }
func RealLit(v *big.Rat) Term {
	if v == nil {
		v = new(big.Rat)
	}
	return Term{kind: kindRealLit, sort: SortReal, realVal: v}
}

// Var reconstructs a variable handle from a previously declared name and
// sort. Backend implementations declare variables through DeclareInt/
// DeclareBool/DeclareReal; Var exists so a Backend can hand back the same
// Term shape without this package exposing its unexported fields directly.
func Var(name string, sort Sort) Term { return Term{kind: kindVar, sort: sort, name: name} }

func app(sort Sort, op string, args ...Term) Term {
	return Term{kind: kindApp, sort: sort, name: op, args: args}
}

func Eq(a, b Term) Term      { return app(SortBool, `=`, a, b) }
func Gt(a, b Term) Term      { return app(SortBool, `>`, a, b) }
func Ge(a, b Term) Term      { return app(SortBool, `>=`, a, b) }
func Lt(a, b Term) Term      { return app(SortBool, `<`, a, b) }
func Le(a, b Term) Term      { return app(SortBool, `<=`, a, b) }
func Add(a, b Term) Term     { return app(a.sort, `+`, a, b) }
func Not(a Term) Term        { return app(SortBool, `not`, a) }
func Implies(a, b Term) Term { return app(SortBool, `=>`, a, b) }

func And(terms ...Term) Term {
	if len(terms) == 0 {
		return BoolLit(true)
	}
	return app(SortBool, `and`, terms...)
}

func Or(terms ...Term) Term {
	if len(terms) == 0 {
		return BoolLit(false)
	}
	return app(SortBool, `or`, terms...)
}

func Ite(cond, then, els Term) Term { return app(then.sort, `ite`, cond, then, els) }

// ToReal is a convenience cast used when mixing delay (real) and
// length/count (int) arithmetic in the same expression.
func ToReal(t Term) Term { return app(SortReal, `to_real`, t) }

func (t Term) String() string {
	switch t.kind {
	case kindVar:
		return t.name
	case kindIntLit:
		return fmt.Sprintf(`%d`, t.intVal)
	case kindRealLit:
		return t.realVal.RatString()
	case kindBoolLit:
		if t.boolVal {
			return `true`
		}
		return `false`
	default:
		s := `(` + t.name
		for _, a := range t.args {
			s += ` ` + a.String()
		}
		return s + `)`
	}
}

// Walk calls visit for t and every sub-term, depth first. Used by backends
// that need to discover/declare variables referenced inside an asserted
// expression tree.
func (t Term) Walk(visit func(Term)) {
	visit(t)
	for _, a := range t.args {
		a.Walk(visit)
	}
}
