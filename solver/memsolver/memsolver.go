// Package memsolver is a small in-process reference implementation of
// solver.Backend, used by this module's test suite so encode/search/
// diagnostics tests don't need a real SMT solver binary on the test host.
// It is a bounded backtracking CSP search, not a general SMT decision
// procedure: Int and Real domains are finite (configured via Domain), and
// it is only tractable for the small automatons in the spec's seed suite
// (spec.md §8) - exactly the shape of the module's own test fixtures.
package memsolver

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/tadiag/deltadiag/solver"
)

type (
	// Domain bounds the search space for unconstrained Int/Real variables.
	Domain struct {
		// MaxInt is the inclusive upper bound for Int variables (transition
		// indices, lengths, event labels); the lower bound is always 0.
		MaxInt int64
		// MaxReal and Step bound Real variables (clocks, delays, global
		// clocks, cptFault) to the finite set {0, Step, 2*Step, ..., MaxReal}.
		MaxReal *big.Rat
		Step    *big.Rat
	}

	decl struct {
		name string
		sort solver.Sort
	}

	constraint struct {
		term solver.Term
		vars map[string]bool
	}

	// Backend implements solver.Backend by brute-force backtracking search.
	Backend struct {
		domain    Domain
		decls     []decl
		declared  map[string]solver.Sort
		asserted  []constraint
		lastModel map[string]solver.Value
		lastCore  []string
		varIndex  map[string]int
	}
)

func New(domain Domain) *Backend {
	if domain.MaxReal == nil {
		domain.MaxReal = big.NewRat(10, 1)
	}
	if domain.Step == nil {
		domain.Step = big.NewRat(1, 2)
	}
	if domain.MaxInt == 0 {
		domain.MaxInt = 16
	}
	return &Backend{
		domain:   domain,
		declared: make(map[string]solver.Sort),
		varIndex: make(map[string]int),
	}
}

func (b *Backend) declare(name string, sort solver.Sort) solver.Term {
	if _, ok := b.declared[name]; !ok {
		b.declared[name] = sort
		b.varIndex[name] = len(b.decls)
		b.decls = append(b.decls, decl{name: name, sort: sort})
	}
	switch sort {
	case solver.SortInt:
		return b.mkVar(name, solver.SortInt)
	case solver.SortReal:
		return b.mkVar(name, solver.SortReal)
	default:
		return b.mkVar(name, solver.SortBool)
	}
}

func (b *Backend) mkVar(name string, sort solver.Sort) solver.Term {
	return solver.Var(name, sort)
}

func (b *Backend) DeclareInt(name string) solver.Term  { return b.declare(name, solver.SortInt) }
func (b *Backend) DeclareBool(name string) solver.Term { return b.declare(name, solver.SortBool) }
func (b *Backend) DeclareReal(name string) solver.Term { return b.declare(name, solver.SortReal) }

func (b *Backend) Assert(t solver.Term) {
	vars := make(map[string]bool)
	t.Walk(func(sub solver.Term) {
		if sub.IsVar() {
			vars[sub.Name()] = true
		}
	})
	b.asserted = append(b.asserted, constraint{term: t, vars: vars})
}

func (b *Backend) Close() error { return nil }

func (b *Backend) CheckSatAssuming(ctx context.Context, assumptions []solver.Term) (solver.Status, error) {
	if err := ctx.Err(); err != nil {
		return solver.StatusUnknown, err
	}

	all := make([]constraint, 0, len(b.asserted)+len(assumptions))
	all = append(all, b.asserted...)
	for _, a := range assumptions {
		vars := make(map[string]bool)
		a.Walk(func(sub solver.Term) {
			if sub.IsVar() {
				vars[sub.Name()] = true
			}
		})
		all = append(all, constraint{term: a, vars: vars})
	}

	// bucket constraints by the last variable (in declaration order) they
	// mention, so the search checks each constraint as soon as it becomes
	// fully grounded rather than only at the end.
	buckets := make([][]constraint, len(b.decls)+1)
	for _, c := range all {
		last := -1
		for name := range c.vars {
			if idx, ok := b.varIndex[name]; ok && idx > last {
				last = idx
			}
		}
		buckets[last+1] = append(buckets[last+1], c)
	}

	assign := make(map[string]solver.Value, len(b.decls))
	ok, err := b.search(ctx, 0, buckets, assign)
	if err != nil {
		return solver.StatusUnknown, err
	}
	if ok {
		b.lastModel = assign
		b.lastCore = nil
		return solver.StatusSat, nil
	}

	b.lastModel = nil
	names := make([]string, 0, len(assumptions))
	for _, a := range assumptions {
		if a.IsVar() {
			names = append(names, a.Name())
		}
	}
	sort.Strings(names)
	b.lastCore = names
	return solver.StatusUnsat, nil
}

func (b *Backend) search(ctx context.Context, i int, buckets [][]constraint, assign map[string]solver.Value) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if i == len(b.decls) {
		return checkAll(buckets[len(b.decls)], assign), nil
	}
	d := b.decls[i]
	for _, v := range b.candidates(d.sort) {
		assign[d.name] = v
		if checkAll(buckets[i], assign) {
			ok, err := b.search(ctx, i+1, buckets, assign)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		delete(assign, d.name)
	}
	return false, nil
}

func checkAll(cs []constraint, assign map[string]solver.Value) bool {
	for _, c := range cs {
		v := evalTerm(c.term, assign)
		if !v.Bool {
			return false
		}
	}
	return true
}

func (b *Backend) candidates(sort_ solver.Sort) []solver.Value {
	switch sort_ {
	case solver.SortBool:
		return []solver.Value{{Sort: solver.SortBool, Bool: false}, {Sort: solver.SortBool, Bool: true}}
	case solver.SortInt:
		out := make([]solver.Value, 0, b.domain.MaxInt+1)
		for i := int64(0); i <= b.domain.MaxInt; i++ {
			out = append(out, solver.Value{Sort: solver.SortInt, Int: i})
		}
		return out
	default: // SortReal
		var out []solver.Value
		for v := new(big.Rat).SetInt64(0); v.Cmp(b.domain.MaxReal) <= 0; v = new(big.Rat).Add(v, b.domain.Step) {
			out = append(out, solver.Value{Sort: solver.SortReal, Real: new(big.Rat).Set(v)})
		}
		return out
	}
}

func (b *Backend) Eval(t solver.Term) (solver.Value, error) {
	if b.lastModel == nil {
		return solver.Value{}, fmt.Errorf(`memsolver: no model available (last check was not sat)`)
	}
	return evalTerm(t, b.lastModel), nil
}

func (b *Backend) UnsatCore() []string { return b.lastCore }
