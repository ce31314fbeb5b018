package cache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration is returned when a cache cannot be built from the
	// given parameters.
	ErrConfiguration = errors.New("invalid cache configuration")

	// ErrInvariantViolation reports a broken internal contract. It indicates
	// a bug and is never expected under a valid configuration.
	ErrInvariantViolation = errors.New("cache invariant violated")

	// ErrNoAccessesYet is returned by HitRatio before the first access.
	ErrNoAccessesYet = errors.New("no accesses recorded yet")

	// ErrUnknownAccessMode is returned when Access receives a mode that is
	// neither Read nor Write.
	ErrUnknownAccessMode = errors.New("unknown access mode")
)

// Mapping decides which lines may hold a given block.
type Mapping int

// The supported mappings.
const (
	Direct Mapping = iota
	FullyAssociative
	SetAssociative
	numMappings
)

var mappingNames = map[Mapping]string{
	Direct:           "direct",
	FullyAssociative: "fully-associative",
	SetAssociative:   "set-associative",
}

// String returns the name of the mapping.
func (m Mapping) String() string {
	if name, ok := mappingNames[m]; ok {
		return name
	}

	return fmt.Sprintf("Mapping(%d)", int(m))
}

// MarshalText encodes the mapping as its name.
func (m Mapping) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mapping name.
func (m *Mapping) UnmarshalText(text []byte) error {
	parsed, err := ParseMapping(string(text))
	if err != nil {
		return err
	}

	*m = parsed

	return nil
}

// ParseMapping converts a name into a Mapping. Besides the names, the menu
// numbers 1 (direct), 2 (fully associative) and 3 (set associative) are
// accepted.
func ParseMapping(s string) (Mapping, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct", "1":
		return Direct, nil
	case "fully-associative", "fully_associative", "full", "fa", "2":
		return FullyAssociative, nil
	case "set-associative", "set_associative", "set", "sa", "3":
		return SetAssociative, nil
	}

	return 0, fmt.Errorf("%w: unknown mapping %q", ErrConfiguration, s)
}

// Policy selects the victim when a miss finds its candidate set full.
type Policy int

// The supported replacement policies.
const (
	Random Policy = iota
	FIFO
	LFU
	LRU
	numPolicies
)

var policyNames = map[Policy]string{
	Random: "random",
	FIFO:   "fifo",
	LFU:    "lfu",
	LRU:    "lru",
}

// String returns the name of the policy.
func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}

	return fmt.Sprintf("Policy(%d)", int(p))
}

// MarshalText encodes the policy as its name.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a policy name.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}

	*p = parsed

	return nil
}

// ParsePolicy converts a name into a Policy. The menu numbers 1 (random),
// 2 (FIFO), 3 (LFU) and 4 (LRU) are accepted too.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "random", "1":
		return Random, nil
	case "fifo", "2":
		return FIFO, nil
	case "lfu", "3":
		return LFU, nil
	case "lru", "4":
		return LRU, nil
	}

	return 0, fmt.Errorf("%w: unknown replacement policy %q",
		ErrConfiguration, s)
}

// Config holds the parameters of a cache. It cannot change after the cache
// is built.
type Config struct {
	// NumLines is the number of lines in the cache.
	NumLines int `json:"num_lines"`

	// WordsPerLine is the block size, in words.
	WordsPerLine int `json:"words_per_line"`

	Mapping Mapping `json:"mapping"`

	// Associativity is the number of lines per set. It is only used by
	// SetAssociative and must divide NumLines.
	Associativity int `json:"associativity"`

	// Policy is ignored by Direct, where the only candidate line is always
	// replaced.
	Policy Policy `json:"policy"`

	// RandSeed seeds the Random policy.
	RandSeed uint64 `json:"rand_seed"`
}

// Validate reports whether the configuration can build a cache.
func (c Config) Validate() error {
	if c.NumLines < 1 {
		return fmt.Errorf("%w: number of lines must be at least 1, got %d",
			ErrConfiguration, c.NumLines)
	}

	if c.WordsPerLine < 1 {
		return fmt.Errorf("%w: words per line must be at least 1, got %d",
			ErrConfiguration, c.WordsPerLine)
	}

	if c.Mapping < 0 || c.Mapping >= numMappings {
		return fmt.Errorf("%w: unknown mapping %d",
			ErrConfiguration, int(c.Mapping))
	}

	if c.Policy < 0 || c.Policy >= numPolicies {
		return fmt.Errorf("%w: unknown replacement policy %d",
			ErrConfiguration, int(c.Policy))
	}

	if c.Mapping == SetAssociative {
		if c.Associativity < 1 {
			return fmt.Errorf("%w: associativity must be at least 1, got %d",
				ErrConfiguration, c.Associativity)
		}

		if c.NumLines%c.Associativity != 0 {
			return fmt.Errorf(
				"%w: associativity %d does not divide %d lines",
				ErrConfiguration, c.Associativity, c.NumLines)
		}
	}

	return nil
}

// geometry returns how the lines are grouped into sets. Direct mapping is a
// cache of one-line sets and full associativity is a single set holding
// every line.
func (c Config) geometry() (numSets, numWays int) {
	switch c.Mapping {
	case Direct:
		return c.NumLines, 1
	case FullyAssociative:
		return 1, c.NumLines
	case SetAssociative:
		return c.NumLines / c.Associativity, c.Associativity
	default:
		panic(fmt.Sprintf("unknown mapping %d", int(c.Mapping)))
	}
}
