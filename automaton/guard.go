package automaton

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	"github.com/pingcap/tidb/parser/opcode"
)

// guardParser wraps a tidb SQL parser instance. Parsers aren't safe for
// concurrent use (same caveat as export/mysql.Parser), so callers should
// keep one per goroutine; Prepare-time parsing is single-threaded anyway.
type guardParser struct {
	p *parser.Parser
}

func newGuardParser() *guardParser {
	return &guardParser{p: parser.New()}
}

// ParseGuard parses a single guard/invariant atom of the shape
// "c<N> <op> <rational>" (op in {>,>=,<,<=}; no equality - spec.md §4.3,
// "Guard language (external contract)"). Rather than hand-rolling a second
// grammar, the atom is parsed once as a SQL boolean expression
// ("SELECT 1 FROM dual WHERE c1>=2") with the tidb parser already used by the
// teacher's mysql.Parser, walking the resulting *ast.BinaryOperationExpr
// the same way mysql.Parser.parseFilters walks query.Where.
func (g *guardParser) ParseGuard(atom string) (GuardAtom, error) {
	var zero GuardAtom

	stmt, err := g.p.ParseOneStmt(`SELECT 1 FROM dual WHERE `+atom, ``, ``)
	if err != nil {
		return zero, fmt.Errorf(`automaton: guard atom %q: %w`, atom, err)
	}
	sel, ok := stmt.(*ast.SelectStmt)
	if !ok || sel.Where == nil {
		return zero, fmt.Errorf(`automaton: guard atom %q: not a boolean expression`, atom)
	}

	bin, ok := sel.Where.(*ast.BinaryOperationExpr)
	if !ok {
		return zero, fmt.Errorf(`automaton: guard atom %q: expected a single comparison`, atom)
	}

	var op GuardOp
	switch bin.Op {
	case opcode.GT:
		op = OpGT
	case opcode.GE:
		op = OpGE
	case opcode.LT:
		op = OpLT
	case opcode.LE:
		op = OpLE
	default:
		return zero, fmt.Errorf(`automaton: guard atom %q: unsupported operator %s (equality is not part of the guard language)`, atom, bin.Op)
	}

	clock, err := parseClockName(bin.L)
	if err != nil {
		return zero, fmt.Errorf(`automaton: guard atom %q: %w`, atom, err)
	}

	bound, err := parseRationalLiteral(bin.R)
	if err != nil {
		return zero, fmt.Errorf(`automaton: guard atom %q: %w`, atom, err)
	}

	return GuardAtom{Clock: clock, Op: op, Bound: bound}, nil
}

// ParseInvariant is ParseGuard restricted to upper bounds only (spec.md
// §4.3: "Invariants use only upper bounds").
func (g *guardParser) ParseInvariant(atom string) (GuardAtom, error) {
	a, err := g.ParseGuard(atom)
	if err != nil {
		return a, err
	}
	if a.Op != OpLE && a.Op != OpLT {
		return GuardAtom{}, fmt.Errorf(`automaton: invariant atom %q: must be an upper bound`, atom)
	}
	return a, nil
}

func parseClockName(expr ast.ExprNode) (int, error) {
	col, ok := expr.(*ast.ColumnNameExpr)
	if !ok || col.Name == nil || col.Name.Name.O == `` {
		return 0, errors.New(`left-hand side must be a clock name`)
	}
	name := col.Name.Name.O
	if !strings.HasPrefix(name, `c`) {
		return 0, fmt.Errorf(`clock name %q must be of the form cN`, name)
	}
	var n int
	if _, err := fmt.Sscanf(name[1:], `%d`, &n); err != nil || n <= 0 {
		return 0, fmt.Errorf(`clock name %q must be of the form cN`, name)
	}
	return n - 1, nil
}

func parseRationalLiteral(expr ast.ExprNode) (*big.Rat, error) {
	ve, ok := expr.(ast.ValueExpr)
	if !ok {
		return nil, errors.New(`right-hand side must be a numeric literal`)
	}
	v := ve.GetValue()
	r := new(big.Rat)
	switch n := v.(type) {
	case int64:
		r.SetInt64(n)
	case uint64:
		r.SetUint64(n)
	case float64:
		r.SetFloat64(n)
	default:
		// decimal/string literals (e.g. *types.MyDecimal) print as a plain
		// base-10 string, which big.Rat can parse directly.
		s := fmt.Sprint(v)
		if _, ok := r.SetString(s); !ok {
			return nil, fmt.Errorf(`unparseable numeric literal %q`, s)
		}
	}
	return r, nil
}

// ParseGuards parses the guard/invariant atoms of every transition and
// state invariant given in rawGuards/rawInvariants, exactly once (spec.md
// §9, "Textual guards ... a rewrite should hoist this"). The two maps provide the not-yet-typed
// atom strings per transition index and per state id, since Transition and
// State themselves only ever hold the already-parsed GuardAtom form.
func ParseGuards(rawGuards map[int][]string, rawInvariants map[int][]string) (guards map[int][]GuardAtom, invariants map[int][]GuardAtom, err error) {
	g := newGuardParser()

	guards = make(map[int][]GuardAtom, len(rawGuards))
	for id, atoms := range rawGuards {
		parsed := make([]GuardAtom, 0, len(atoms))
		for _, atom := range atoms {
			a, err := g.ParseGuard(atom)
			if err != nil {
				return nil, nil, err
			}
			parsed = append(parsed, a)
		}
		guards[id] = parsed
	}

	invariants = make(map[int][]GuardAtom, len(rawInvariants))
	for id, atoms := range rawInvariants {
		parsed := make([]GuardAtom, 0, len(atoms))
		for _, atom := range atoms {
			a, err := g.ParseInvariant(atom)
			if err != nil {
				return nil, nil, err
			}
			parsed = append(parsed, a)
		}
		invariants[id] = parsed
	}

	return guards, invariants, nil
}
