package cache

// Statistics counts what the cache has done since it was built or reset.
type Statistics struct {
	Accesses  uint64 `json:"accesses"`
	Reads     uint64 `json:"reads"`
	Writes    uint64 `json:"writes"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Statistics returns the counters of the cache.
func (c *Comp) Statistics() Statistics {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.stats
}

// History returns the outcome of every access, in order.
func (c *Comp) History() []Outcome {
	c.lock.RLock()
	defer c.lock.RUnlock()

	history := make([]Outcome, len(c.history))
	copy(history, c.history)

	return history
}

// HitRatio returns the percentage of accesses that hit, in [0, 100]. It
// returns ErrNoAccessesYet if nothing was accessed.
func (c *Comp) HitRatio() (float64, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if len(c.history) == 0 {
		return 0, ErrNoAccessesYet
	}

	hits := 0
	for _, o := range c.history {
		if o == Hit {
			hits++
		}
	}

	return float64(hits) * 100 / float64(len(c.history)), nil
}
