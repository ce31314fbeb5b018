package cache

import (
	"fmt"
	"math/rand/v2"
)

// A victimFinder carries out a replacement policy. It decides which line of a
// candidate set receives a missing block, and keeps the per-line auxiliary
// state of the policy up to date:
//
//   - FIFO: the insertion stamp of the line.
//   - LFU: the number of times the line was touched since it was loaded.
//   - LRU: the stamp of the last touch.
//   - Random: unused, always zero.
//
// The FIFO stamp and the LRU clock share the counter field, since a finder
// only runs one policy.
type victimFinder struct {
	policy  Policy
	seed    uint64
	counter uint64
	pcg     rand.PCG
	rng     *rand.Rand
	aux     []uint64
}

func newVictimFinder(policy Policy, numLines int, seed uint64) *victimFinder {
	f := &victimFinder{
		policy: policy,
		seed:   seed,
		aux:    make([]uint64, numLines),
	}

	f.reset()

	return f
}

func (f *victimFinder) reset() {
	f.counter = 1
	f.pcg.Seed(f.seed, f.seed^0x9e3779b97f4a7c15)
	f.rng = rand.New(&f.pcg)

	for i := range f.aux {
		f.aux[i] = 0
	}
}

// randState returns the state of the random source, so that a victim choice
// can be taken back with restoreRandState.
func (f *victimFinder) randState() rand.PCG {
	return f.pcg
}

func (f *victimFinder) restoreRandState(state rand.PCG) {
	f.pcg = state
}

// findVictim picks the line of the set that receives the next block. Empty
// lines are always used before any resident block is displaced.
func (f *victimFinder) findVictim(lines []line, set []int) (int, error) {
	if len(set) == 0 {
		return -1, fmt.Errorf("%w: victim requested from an empty set",
			ErrInvariantViolation)
	}

	switch f.policy {
	case Random:
		return f.randomVictim(lines, set), nil
	case FIFO, LFU, LRU:
		return f.leastAuxVictim(lines, set), nil
	default:
		return -1, fmt.Errorf("%w: unknown replacement policy %d",
			ErrInvariantViolation, int(f.policy))
	}
}

func (f *victimFinder) randomVictim(lines []line, set []int) int {
	empty := make([]int, 0, len(set))

	for _, lineID := range set {
		if !lines[lineID].valid {
			empty = append(empty, lineID)
		}
	}

	if len(empty) > 0 {
		return empty[f.rng.IntN(len(empty))]
	}

	return set[f.rng.IntN(len(set))]
}

// leastAuxVictim returns the lowest-indexed empty line, or else the line with
// the smallest auxiliary value. Ties go to the lowest index.
func (f *victimFinder) leastAuxVictim(lines []line, set []int) int {
	victim := -1

	for _, lineID := range set {
		if !lines[lineID].valid {
			return lineID
		}

		if victim < 0 || f.aux[lineID] < f.aux[victim] {
			victim = lineID
		}
	}

	return victim
}

// visit updates the state of a line that was hit.
func (f *victimFinder) visit(lineID int) {
	switch f.policy {
	case LFU:
		f.aux[lineID]++
	case LRU:
		f.stamp(lineID)
	case Random, FIFO:
	}
}

// load updates the state of a line that just received a block.
func (f *victimFinder) load(lineID int) {
	switch f.policy {
	case FIFO, LRU:
		f.stamp(lineID)
	case LFU:
		f.aux[lineID] = 1
	case Random:
	}
}

func (f *victimFinder) stamp(lineID int) {
	f.aux[lineID] = f.counter
	f.counter++
}
