package automaton

// Follower computes, for each transition index, the set of transitions
// that may legally fire next (spec.md §4.1). next[t] always contains the
// NOP sentinel (stuttering is always legal), and next[NopIndex] additionally
// contains every transition leaving the initial state, so a run may begin.
//
// a must already have been Prepare()'d.
func Follower(a *Automaton) [][]int {
	next := make([][]int, len(a.Transitions))

	bySource := make(map[int][]int, len(a.States))
	for i, t := range a.Transitions {
		bySource[t.Source] = append(bySource[t.Source], i)
	}

	for i, t := range a.Transitions {
		follow := make([]int, 0, len(bySource[t.Target])+1)
		follow = append(follow, a.NopIndex)
		follow = append(follow, bySource[t.Target]...)
		next[i] = follow
	}

	// next[NopIndex] already admits every transition leaving the initial
	// state via the loop above, since the NOP transition's target is the
	// initial state (so the unrolling may begin after the initial stutter).

	return next
}
