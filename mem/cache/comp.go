// Package cache models which blocks of the main memory a cache holds, and
// which block a miss displaces.
//
// The cache does not model timing or hold data. Every read is served by the
// main memory and every write goes through to it. The cache only decides
// hits and misses, and tracks the bookkeeping of the replacement policy.
package cache

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/sarchlab/cachesim/mem"
	"github.com/sarchlab/cachesim/sim/hooking"
)

// A Comp is a cache in front of a main memory.
type Comp struct {
	hooking.HookableBase

	name   string
	config Config
	memory mem.Memory

	lock         sync.RWMutex
	directory    *directory
	victimFinder *victimFinder
	history      []Outcome
	stats        Statistics
}

// New creates a cache with the given configuration. The memory is used, not
// owned, by the cache.
func New(name string, config Config, memory mem.Memory) (*Comp, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if memory == nil {
		return nil, fmt.Errorf("%w: cache %s has no memory",
			ErrConfiguration, name)
	}

	c := &Comp{
		name:      name,
		config:    config,
		memory:    memory,
		directory: newDirectory(config),
	}

	// Direct mapping has a single candidate line per block, so there is
	// nothing for a policy to decide.
	if config.Mapping != Direct {
		c.victimFinder = newVictimFinder(
			config.Policy, config.NumLines, config.RandSeed)
	}

	return c, nil
}

// Name returns the name of the cache.
func (c *Comp) Name() string {
	return c.name
}

// Config returns the configuration of the cache.
func (c *Comp) Config() Config {
	return c.config
}

// Read loads the word at address.
func (c *Comp) Read(address uint64) (AccessResult, error) {
	return c.Access(Read, address, 0)
}

// Write stores value at address.
func (c *Comp) Write(address, value uint64) (AccessResult, error) {
	return c.Access(Write, address, value)
}

// Access performs a read or a write. The value is ignored by reads.
//
// On a miss the receiving line is chosen before the memory is accessed. If
// either step fails, for example because the address is out of range, the
// error is returned, nothing is written to the memory by the cache, and the
// cache is left unchanged.
//
// Hooks are invoked after the cache is unlocked. Accesses from concurrent
// goroutines are applied one at a time, but their hooks may then run in an
// order different from Seq, and may observe the effects of later accesses.
// Callers that need ordered hooks drive the cache from a single goroutine.
func (c *Comp) Access(
	mode AccessMode,
	address, value uint64,
) (AccessResult, error) {
	c.lock.Lock()
	result, err := c.access(mode, address, value)
	c.lock.Unlock()

	if err != nil {
		return AccessResult{}, err
	}

	c.traceAccess(result)

	return result, nil
}

func (c *Comp) access(
	mode AccessMode,
	address, value uint64,
) (AccessResult, error) {
	block, offset := c.directory.decompose(address)
	setID, lineID, found := c.directory.lookup(block)

	result := AccessResult{
		Mode:    mode,
		Address: address,
		Block:   block,
		Offset:  offset,
		SetID:   setID,
	}

	var randState rand.PCG
	if c.victimFinder != nil {
		randState = c.victimFinder.randState()
	}

	if !found {
		var err error

		lineID, err = c.findVictim(block)
		if err != nil {
			return AccessResult{}, err
		}
	}

	value, err := c.accessMemory(mode, address, value)
	if err != nil {
		if c.victimFinder != nil {
			c.victimFinder.restoreRandState(randState)
		}

		return AccessResult{}, err
	}

	result.Value = value

	if found {
		c.hit(&result, lineID)
	} else {
		c.miss(&result, lineID)
	}

	c.countMode(mode)
	result.Seq = uint64(len(c.history))

	return result, nil
}

func (c *Comp) accessMemory(
	mode AccessMode,
	address, value uint64,
) (uint64, error) {
	switch mode {
	case Read:
		return c.memory.GetContent(address)
	case Write:
		return value, c.memory.SetContent(address, value)
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownAccessMode, int(mode))
	}
}

func (c *Comp) hit(result *AccessResult, lineID int) {
	result.Outcome = Hit
	result.Line = lineID

	if c.victimFinder != nil {
		c.victimFinder.visit(lineID)
	}

	c.history = append(c.history, Hit)
	c.stats.Hits++
}

func (c *Comp) miss(result *AccessResult, lineID int) {
	evicted, evictedBlock := c.directory.fill(lineID, result.Block)
	if c.victimFinder != nil {
		c.victimFinder.load(lineID)
	}

	result.Outcome = Miss
	result.Line = lineID
	result.Evicted = evicted
	result.EvictedBlock = evictedBlock

	c.history = append(c.history, Miss)
	c.stats.Misses++

	if evicted {
		c.stats.Evictions++
	}
}

func (c *Comp) findVictim(block uint64) (int, error) {
	_, set := c.directory.getSet(block)

	if c.victimFinder == nil {
		if len(set) != 1 {
			return -1, fmt.Errorf("%w: direct mapped set has %d lines",
				ErrInvariantViolation, len(set))
		}

		return set[0], nil
	}

	return c.victimFinder.findVictim(c.directory.lines, set)
}

func (c *Comp) countMode(mode AccessMode) {
	c.stats.Accesses++

	if mode == Write {
		c.stats.Writes++
	} else {
		c.stats.Reads++
	}
}

func (c *Comp) traceAccess(result AccessResult) {
	if c.NumHooks() == 0 {
		return
	}

	if result.Evicted {
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosEvict,
			Item:   result,
		})
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosAccess,
		Item:   result,
	})
}

// CheckInvariants verifies that no block is resident in two lines and that
// every resident block is in its candidate set.
func (c *Comp) CheckInvariants() error {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.directory.check()
}

// Reset empties all the lines and clears the history, as if the cache was
// just built. The memory is not touched.
func (c *Comp) Reset() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.directory.reset()

	if c.victimFinder != nil {
		c.victimFinder.reset()
	}

	c.history = nil
	c.stats = Statistics{}
}
