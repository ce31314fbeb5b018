package cache

import "fmt"

// A line is a slot of the cache. It holds at most one block.
type line struct {
	valid bool
	block uint64
}

// A directory records which block every line holds and how lines are grouped
// into sets.
type directory struct {
	numSets      int
	numWays      int
	wordsPerLine uint64
	lines        []line
	sets         [][]int
}

func newDirectory(config Config) *directory {
	numSets, numWays := config.geometry()

	d := &directory{
		numSets:      numSets,
		numWays:      numWays,
		wordsPerLine: uint64(config.WordsPerLine),
		lines:        make([]line, config.NumLines),
		sets:         make([][]int, numSets),
	}

	for setID := 0; setID < numSets; setID++ {
		d.sets[setID] = make([]int, numWays)
		for wayID := 0; wayID < numWays; wayID++ {
			d.sets[setID][wayID] = setID*numWays + wayID
		}
	}

	return d
}

// decompose splits an address into its block number and the offset of the
// word within the block.
func (d *directory) decompose(address uint64) (block, offset uint64) {
	return address / d.wordsPerLine, address % d.wordsPerLine
}

// getSet returns the candidate lines that may hold the block.
func (d *directory) getSet(block uint64) (setID int, lineIDs []int) {
	setID = int(block % uint64(d.numSets))

	return setID, d.sets[setID]
}

// lookup searches the candidate set of the block.
func (d *directory) lookup(block uint64) (setID, lineID int, found bool) {
	setID, lineIDs := d.getSet(block)
	for _, lineID := range lineIDs {
		l := d.lines[lineID]
		if l.valid && l.block == block {
			return setID, lineID, true
		}
	}

	return setID, -1, false
}

// fill places the block in the line and returns what the line held before.
func (d *directory) fill(
	lineID int,
	block uint64,
) (evicted bool, evictedBlock uint64) {
	old := d.lines[lineID]
	d.lines[lineID] = line{valid: true, block: block}

	return old.valid, old.block
}

func (d *directory) reset() {
	for i := range d.lines {
		d.lines[i] = line{}
	}
}

// check verifies that no block is resident twice and that every block sits
// in its own candidate set.
func (d *directory) check() error {
	owners := make(map[uint64]int)

	for lineID, l := range d.lines {
		if !l.valid {
			continue
		}

		if other, ok := owners[l.block]; ok {
			return fmt.Errorf("%w: block %d is resident in lines %d and %d",
				ErrInvariantViolation, l.block, other, lineID)
		}

		owners[l.block] = lineID

		setID, _ := d.getSet(l.block)
		if lineID/d.numWays != setID {
			return fmt.Errorf("%w: block %d of set %d is held by line %d",
				ErrInvariantViolation, l.block, setID, lineID)
		}
	}

	return nil
}
