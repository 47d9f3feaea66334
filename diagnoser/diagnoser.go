// Package diagnoser computes the fault/normal diagnoser classification
// (spec.md §4.7): two set-reachability fixed points over the transition-
// follower graph, consumed only by reporting - they never feed the SMT
// encoding. Grounded on original_source/automaton.py's
// getFaultDiagnoser/getNormalDiagnoser, and on the teacher's
// export/collection.go dependencyCycle helper for the informational
// cycle check, reusing the same go-detect-cycle dependency.
package diagnoser

import (
	cycle "github.com/joeycumines/go-detect-cycle/floyds"

	"github.com/tadiag/deltadiag/automaton"
	"github.com/tadiag/deltadiag/log"
)

// Classification is the result of classifying a prepared automaton's
// transitions against its follower relation.
type Classification struct {
	// Fault is the fixed point starting from every FAULT-labeled
	// transition, grown forward and backward along next[].
	Fault map[int]bool
	// Normal is the fixed point starting from every non-fault transition
	// leaving the initial state, grown forward along next[] restricted to
	// non-fault transitions.
	Normal map[int]bool
	// FaultHasCycle is true if the fault diagnoser subgraph contains a
	// cycle - informational only (spec.md §4.7).
	FaultHasCycle bool
}

// Classify runs both fixed-point passes and the informational cycle
// check. next is automaton.Follower(a)'s output.
func Classify(a *automaton.Automaton, next [][]int, logger log.Logger) *Classification {
	if logger == nil {
		logger = log.Discard{}
	}

	reverse := make([][]int, len(a.Transitions))
	for t, succs := range next {
		for _, s := range succs {
			reverse[s] = append(reverse[s], t)
		}
	}

	fault := make(map[int]bool)
	var faultSeed []int
	for i, t := range a.Transitions {
		if t.Event == automaton.FAULT {
			faultSeed = append(faultSeed, i)
		}
	}
	growFixedPoint(fault, faultSeed, next, reverse)

	normal := make(map[int]bool)
	var normalSeed []int
	for i, t := range a.Transitions {
		if t.Source == a.Initial && t.Event != automaton.FAULT {
			normalSeed = append(normalSeed, i)
		}
	}
	growForwardNonFault(normal, normalSeed, next, a)

	hasCycle := subgraphHasCycle(fault, next, a.NopIndex)
	if hasCycle {
		logger.WithField(`faultTransitions`, len(fault)).Info(`diagnoser: fault diagnoser subgraph contains a cycle`)
	}

	return &Classification{Fault: fault, Normal: normal, FaultHasCycle: hasCycle}
}

func growFixedPoint(set map[int]bool, seed []int, next, reverse [][]int) {
	queue := append([]int(nil), seed...)
	for _, s := range seed {
		set[s] = true
	}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		for _, adj := range [][][]int{next, reverse} {
			for _, s := range adj[t] {
				if !set[s] {
					set[s] = true
					queue = append(queue, s)
				}
			}
		}
	}
}

func growForwardNonFault(set map[int]bool, seed []int, next [][]int, a *automaton.Automaton) {
	queue := append([]int(nil), seed...)
	for _, s := range seed {
		set[s] = true
	}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		for _, s := range next[t] {
			if a.Transitions[s].Event == automaton.FAULT {
				continue
			}
			if !set[s] {
				set[s] = true
				queue = append(queue, s)
			}
		}
	}
}

// subgraphHasCycle adapts the teacher's dependencyCycle helper
// (export/collection.go) from a generic dependency map to the fault
// diagnoser's transition-index subgraph. The NOP sentinel is excluded:
// every transition's successor set always contains it (stuttering is
// always legal), so it would otherwise manufacture a trivial cycle through
// any two transitions, independent of whether the automaton itself loops.
func subgraphHasCycle(fault map[int]bool, next [][]int, nopIndex int) bool {
	deps := make(map[int][]int, len(fault))
	for t := range fault {
		if t == nopIndex {
			continue
		}
		for _, s := range next[t] {
			if s != nopIndex && fault[s] {
				deps[t] = append(deps[t], s)
			}
		}
	}

	var check func(k int, f cycle.BranchingDetector) bool
	check = func(k int, f cycle.BranchingDetector) bool {
		for _, v := range deps[k] {
			if func() bool {
				nf := f.Hare(v)
				defer nf.Clear()
				if !f.Ok() {
					return true
				}
				return check(v, nf)
			}() {
				return true
			}
		}
		return false
	}
	for k := range deps {
		if check(k, cycle.NewBranchingDetector(k, nil)) {
			return true
		}
	}
	return false
}
