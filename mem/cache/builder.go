package cache

import (
	"github.com/sarchlab/cachesim/mem"
	"github.com/sarchlab/cachesim/sim/hooking"
)

// Builder can build caches.
type Builder struct {
	numLines      int
	wordsPerLine  int
	mapping       Mapping
	associativity int
	policy        Policy
	randSeed      uint64
	memory        mem.Memory
	hooks         []hooking.Hook
}

// MakeBuilder creates a new builder with a 4-line, 4-word, 2-way set
// associative LRU cache as default.
func MakeBuilder() Builder {
	return Builder{
		numLines:      4,
		wordsPerLine:  4,
		mapping:       SetAssociative,
		associativity: 2,
		policy:        LRU,
		randSeed:      1,
	}
}

// WithNumLines sets the number of lines of the cache.
func (b Builder) WithNumLines(numLines int) Builder {
	b.numLines = numLines
	return b
}

// WithWordsPerLine sets the number of words held by a line.
func (b Builder) WithWordsPerLine(wordsPerLine int) Builder {
	b.wordsPerLine = wordsPerLine
	return b
}

// WithMapping sets how blocks are mapped to lines.
func (b Builder) WithMapping(mapping Mapping) Builder {
	b.mapping = mapping
	return b
}

// WithAssociativity sets the number of lines per set. It only matters for
// set associative caches.
func (b Builder) WithAssociativity(associativity int) Builder {
	b.associativity = associativity
	return b
}

// WithPolicy sets the replacement policy.
func (b Builder) WithPolicy(policy Policy) Builder {
	b.policy = policy
	return b
}

// WithRandSeed sets the seed used by the random replacement policy.
func (b Builder) WithRandSeed(seed uint64) Builder {
	b.randSeed = seed
	return b
}

// WithMemory sets the main memory behind the cache.
func (b Builder) WithMemory(memory mem.Memory) Builder {
	b.memory = memory
	return b
}

// WithConfig overrides every cache parameter with the ones in config.
func (b Builder) WithConfig(config Config) Builder {
	b.numLines = config.NumLines
	b.wordsPerLine = config.WordsPerLine
	b.mapping = config.Mapping
	b.associativity = config.Associativity
	b.policy = config.Policy
	b.randSeed = config.RandSeed

	return b
}

// WithHook registers a hook on the cache when it is built.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	b.hooks = append(b.hooks[:len(b.hooks):len(b.hooks)], hook)
	return b
}

// Build builds a cache.
func (b Builder) Build(name string) (*Comp, error) {
	comp, err := New(name, b.config(), b.memory)
	if err != nil {
		return nil, err
	}

	for _, hook := range b.hooks {
		comp.AcceptHook(hook)
	}

	return comp, nil
}

func (b Builder) config() Config {
	return Config{
		NumLines:      b.numLines,
		WordsPerLine:  b.wordsPerLine,
		Mapping:       b.mapping,
		Associativity: b.associativity,
		Policy:        b.policy,
		RandSeed:      b.randSeed,
	}
}
