// Package smtlib is the one Backend implementation that genuinely talks to
// the external SMT solver process named in spec.md's Non-goals ("the SMT
// solver itself is treated as an external collaborator"). It speaks the
// SMT-LIB2 text protocol over the child process's stdin/stdout, the same
// way the teacher repo's exec-command example drives a bash subprocess
// (prompt/_example/exec-command/main.go) - one Cmd, piped stdin/stdout,
// scanned line by line.
//
// Process plumbing is stdlib (os/exec, bufio) because there is no
// third-party client for an arbitrary SMT-LIB2-speaking binary anywhere in
// the example corpus, and the solver is explicitly out of scope to
// reimplement (spec.md §1 Non-goals); this is documented in DESIGN.md as
// the module's one deliberate stdlib boundary.
package smtlib

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/big"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/tadiag/deltadiag/log"
	"github.com/tadiag/deltadiag/solver"
)

// Backend drives a single long-lived solver process (e.g. z3 -in, or any
// other SMT-LIB2-compliant binary started with -in/--interactive semantics)
// across the whole incremental session: declarations and assertions
// accumulate for the process's lifetime, and CheckSatAssuming wraps each
// round in (push)/(check-sat-assuming ...)/(pop).
type Backend struct {
	logger log.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu       sync.Mutex
	declared map[string]solver.Sort
	lastCore []string
}

// Options configures the external process. Command/Args name the binary
// (e.g. "z3", []string{"-in"}); Logger defaults to log.Discard.
type Options struct {
	Command string
	Args    []string
	Logger  log.Logger
}

// preambleLines is the fixed SMT-LIB2 setup sequence every process-backed
// session opens with, pulled out as data (rather than inlined in Start) so
// it can be asserted on in tests without spawning a process.
func preambleLines() []string {
	return []string{
		`(set-option :produce-unsat-cores true)`,
		`(set-logic QF_LIRA)`,
	}
}

// checkSatCommand formats the single command CheckSatAssuming sends to
// request a check: "(check-sat)" with no names, "(check-sat-assuming (...))"
// otherwise. Pulled out as a pure function for the same reason as
// preambleLines.
func checkSatCommand(names []string) string {
	if len(names) == 0 {
		return `(check-sat)`
	}
	return `(check-sat-assuming (` + strings.Join(names, ` `) + `))`
}

// Start launches the solver process and performs the SMT-LIB2 preamble
// (set-logic / set-option :produce-unsat-cores).
func Start(opts Options) (*Backend, error) {
	if opts.Command == `` {
		opts.Command = `z3`
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard{}
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf(`smtlib: stdin pipe: %w`, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf(`smtlib: stdout pipe: %w`, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf(`smtlib: starting %s: %w`, opts.Command, err)
	}

	b := &Backend{
		logger:   opts.Logger,
		cmd:      cmd,
		stdin:    stdin,
		stdout:   bufio.NewReader(stdout),
		declared: make(map[string]solver.Sort),
	}

	for _, line := range preambleLines() {
		if err := b.send(line); err != nil {
			_ = b.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *Backend) send(line string) error {
	b.logger.WithField(`sexpr`, line).Debug(`smtlib: send`)
	_, err := io.WriteString(b.stdin, line+"\n")
	return err
}

// readLine reads one logical response line, skipping blanks. The SMT-LIB2
// responses this backend parses (sat/unsat/unknown, a single model value,
// or a parenthesised unsat-core list) are each emitted by solvers as one
// line; multi-line pretty-printing is not something this module requests.
func (b *Backend) readLine() (string, error) {
	for {
		line, err := b.stdout.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != `` {
			return line, nil
		}
		if err != nil {
			return ``, err
		}
	}
}

func sortKeyword(s solver.Sort) string {
	switch s {
	case solver.SortInt:
		return `Int`
	case solver.SortReal:
		return `Real`
	default:
		return `Bool`
	}
}

func (b *Backend) declare(name string, sort solver.Sort) solver.Term {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.declared[name]; !ok {
		b.declared[name] = sort
		_ = b.send(fmt.Sprintf(`(declare-const %s %s)`, name, sortKeyword(sort)))
	}
	return solver.Var(name, sort)
}

func (b *Backend) DeclareInt(name string) solver.Term  { return b.declare(name, solver.SortInt) }
func (b *Backend) DeclareBool(name string) solver.Term { return b.declare(name, solver.SortBool) }
func (b *Backend) DeclareReal(name string) solver.Term { return b.declare(name, solver.SortReal) }

func (b *Backend) Assert(t solver.Term) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.send(`(assert ` + t.String() + `)`)
}

// CheckSatAssuming issues a fresh (push), names every assumption so it can
// be referenced by the unsat core, checks, reads the model or core, then
// (pop)s - so declarations/assertions from prior rounds persist (spec.md
// §5: "never retracted") while each round's assumption literals don't leak
// into the next.
func (b *Backend) CheckSatAssuming(ctx context.Context, assumptions []solver.Term) (solver.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return solver.StatusUnknown, err
	}

	names := make([]string, 0, len(assumptions))
	for _, a := range assumptions {
		if !a.IsVar() {
			return solver.StatusUnknown, fmt.Errorf(`smtlib: assumption terms must be named Boolean literals`)
		}
		names = append(names, a.Name())
	}

	_ = b.send(`(push 1)`)
	_ = b.send(checkSatCommand(names))

	line, err := b.readLine()
	if err != nil {
		return solver.StatusUnknown, fmt.Errorf(`smtlib: reading check-sat response: %w`, err)
	}

	var status solver.Status
	switch line {
	case `sat`:
		status = solver.StatusSat
	case `unsat`:
		status = solver.StatusUnsat
		core, err := b.readUnsatCore()
		if err != nil {
			return solver.StatusUnknown, err
		}
		b.lastCore = core
	default:
		status = solver.StatusUnknown
	}

	_ = b.send(`(pop 1)`)
	return status, nil
}

func (b *Backend) readUnsatCore() ([]string, error) {
	if err := b.send(`(get-unsat-core)`); err != nil {
		return nil, err
	}
	line, err := b.readLine()
	if err != nil {
		return nil, fmt.Errorf(`smtlib: reading unsat core: %w`, err)
	}
	line = strings.TrimPrefix(line, `(`)
	line = strings.TrimSuffix(line, `)`)
	line = strings.TrimSpace(line)
	if line == `` {
		return nil, nil
	}
	return strings.Fields(line), nil
}

func (b *Backend) Eval(t solver.Term) (solver.Value, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.send(`(eval ` + t.String() + `)`); err != nil {
		return solver.Value{}, err
	}
	line, err := b.readLine()
	if err != nil {
		return solver.Value{}, fmt.Errorf(`smtlib: reading eval response: %w`, err)
	}
	return parseValue(t.Sort_(), line)
}

func parseValue(sort solver.Sort, text string) (solver.Value, error) {
	text = strings.TrimSpace(text)
	switch sort {
	case solver.SortBool:
		return solver.Value{Sort: solver.SortBool, Bool: text == `true`}, nil
	case solver.SortInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return solver.Value{}, fmt.Errorf(`smtlib: parsing int value %q: %w`, text, err)
		}
		return solver.Value{Sort: solver.SortInt, Int: n}, nil
	default:
		r, err := parseSExprRational(text)
		if err != nil {
			return solver.Value{}, fmt.Errorf(`smtlib: parsing real value %q: %w`, text, err)
		}
		return solver.Value{Sort: solver.SortReal, Real: r}, nil
	}
}

// parseSExprRational accepts plain decimals ("1.5"), integer literals
// ("3"), and SMT-LIB2's "(/ a b)" and "(- x)" forms, which solvers commonly
// use to print exact rationals and negative numbers respectively.
func parseSExprRational(text string) (*big.Rat, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, `(`) {
		inner := strings.TrimSuffix(strings.TrimPrefix(text, `(`), `)`)
		fields := strings.Fields(inner)
		switch {
		case len(fields) == 2 && fields[0] == `-`:
			r, err := parseSExprRational(fields[1])
			if err != nil {
				return nil, err
			}
			return new(big.Rat).Neg(r), nil
		case len(fields) == 3 && fields[0] == `/`:
			num, err := parseSExprRational(fields[1])
			if err != nil {
				return nil, err
			}
			den, err := parseSExprRational(fields[2])
			if err != nil {
				return nil, err
			}
			if den.Sign() == 0 {
				return nil, fmt.Errorf(`division by zero in %q`, text)
			}
			return new(big.Rat).Quo(num, den), nil
		default:
			return nil, fmt.Errorf(`unsupported s-expression %q`, text)
		}
	}
	r := new(big.Rat)
	if _, ok := r.SetString(text); !ok {
		return nil, fmt.Errorf(`unparseable rational %q`, text)
	}
	return r, nil
}

func (b *Backend) UnsatCore() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastCore
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.send(`(exit)`)
	_ = b.stdin.Close()
	err := b.cmd.Wait()
	if err != nil {
		b.logger.WithError(err).Debug(`smtlib: solver process exit`)
	}
	return nil
}
