package cache

// LineState is a copy of the state of one line.
type LineState struct {
	Index int  `json:"index"`
	SetID int  `json:"set_id"`
	Valid bool `json:"valid"`

	// Block and FirstAddress are only meaningful when Valid is set.
	Block        uint64 `json:"block"`
	FirstAddress uint64 `json:"first_address"`

	// Aux is the bookkeeping value of the replacement policy.
	Aux uint64 `json:"aux"`
}

// A Snapshot is a read-only copy of the state of a cache. Changing it does
// not change the cache.
type Snapshot struct {
	Name       string      `json:"name"`
	Config     Config      `json:"config"`
	Lines      []LineState `json:"lines"`
	Statistics Statistics  `json:"statistics"`
}

// Snapshot copies the state of every line.
func (c *Comp) Snapshot() Snapshot {
	c.lock.RLock()
	defer c.lock.RUnlock()

	d := c.directory
	lines := make([]LineState, len(d.lines))

	for i, l := range d.lines {
		lines[i] = LineState{
			Index: i,
			SetID: i / d.numWays,
			Valid: l.valid,
		}

		if l.valid {
			lines[i].Block = l.block
			lines[i].FirstAddress = l.block * d.wordsPerLine
		}

		if c.victimFinder != nil {
			lines[i].Aux = c.victimFinder.aux[i]
		}
	}

	return Snapshot{
		Name:       c.name,
		Config:     c.config,
		Lines:      lines,
		Statistics: c.stats,
	}
}
