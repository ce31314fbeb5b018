package cache

import (
	"fmt"

	"github.com/sarchlab/cachesim/sim/hooking"
)

// AccessMode tells whether an access loads or stores a word.
type AccessMode int

// The access modes.
const (
	Read AccessMode = iota
	Write
)

// String returns "read" or "write".
func (m AccessMode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(m))
	}
}

// MarshalText encodes the mode as its name.
func (m AccessMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Outcome is the result of looking a block up in its candidate set.
type Outcome int

// The outcomes recorded in the access history.
const (
	Miss Outcome = iota
	Hit
)

// String returns "hit" or "miss".
func (o Outcome) String() string {
	if o == Hit {
		return "hit"
	}

	return "miss"
}

// MarshalText encodes the outcome as its name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// AccessResult describes what a single access did to the cache.
type AccessResult struct {
	// Seq is the 1-based position of the access in the history.
	Seq     uint64     `json:"seq"`
	Mode    AccessMode `json:"mode"`
	Address uint64     `json:"address"`

	// Value is the word read from memory, or the word written through.
	Value uint64 `json:"value"`

	Block   uint64  `json:"block"`
	Offset  uint64  `json:"offset"`
	SetID   int     `json:"set_id"`
	Line    int     `json:"line"`
	Outcome Outcome `json:"outcome"`

	// Evicted is set when a miss displaced a resident block. A miss that
	// filled an empty line leaves it unset.
	Evicted      bool   `json:"evicted"`
	EvictedBlock uint64 `json:"evicted_block"`
}

// IsHit returns true if the block was resident.
func (r AccessResult) IsHit() bool {
	return r.Outcome == Hit
}

// The hook positions of a cache. Both carry the AccessResult as the item.
var (
	// HookPosAccess is invoked after every access.
	HookPosAccess = &hooking.HookPos{Name: "CacheAccess"}

	// HookPosEvict is invoked after a miss displaced a resident block, before
	// HookPosAccess of the same access.
	HookPosEvict = &hooking.HookPos{Name: "CacheEvict"}
)
