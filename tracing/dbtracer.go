package tracing

import (
	"sync"

	"github.com/rs/xid"

	"github.com/sarchlab/cachesim/datarecording"
	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/sim/hooking"
)

const (
	cacheTableName  = "cache_configs"
	accessTableName = "cache_accesses"
)

type cacheTableEntry struct {
	Name          string
	NumLines      int
	WordsPerLine  int
	Mapping       string
	Associativity int
	Policy        string
}

type accessTableEntry struct {
	ID           string
	Cache        string
	Seq          uint64
	Mode         string
	Address      uint64
	Value        uint64
	Block        uint64
	SetID        int
	Line         int
	Outcome      string
	Evicted      bool
	EvictedBlock uint64
}

// A configuredCache can tell the tracer its configuration.
type configuredCache interface {
	Name() string
	Config() cache.Config
}

// DBTracer is a hook that stores every cache access into a data recorder. It
// writes one row per access into the cache_accesses table and one row per
// traced cache into the cache_configs table.
type DBTracer struct {
	mu      sync.Mutex
	backend datarecording.DataRecorder
	known   map[string]bool
}

// NewDBTracer creates a DBTracer and the tables it writes to.
func NewDBTracer(backend datarecording.DataRecorder) *DBTracer {
	t := &DBTracer{
		backend: backend,
		known:   make(map[string]bool),
	}

	t.backend.CreateTable(cacheTableName, cacheTableEntry{})
	t.backend.CreateTable(accessTableName, accessTableEntry{})

	return t
}

// Func records the access carried by a HookPosAccess context. Other positions
// are ignored.
func (t *DBTracer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != cache.HookPosAccess {
		return
	}

	result, ok := ctx.Item.(cache.AccessResult)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	name := t.recordCache(ctx.Domain)

	t.backend.InsertData(accessTableName, accessTableEntry{
		ID:           xid.New().String(),
		Cache:        name,
		Seq:          result.Seq,
		Mode:         result.Mode.String(),
		Address:      result.Address,
		Value:        result.Value,
		Block:        result.Block,
		SetID:        result.SetID,
		Line:         result.Line,
		Outcome:      result.Outcome.String(),
		Evicted:      result.Evicted,
		EvictedBlock: result.EvictedBlock,
	})
}

func (t *DBTracer) recordCache(domain hooking.Hookable) string {
	c, ok := domain.(configuredCache)
	if !ok {
		return ""
	}

	name := c.Name()
	if t.known[name] {
		return name
	}

	t.known[name] = true
	config := c.Config()

	t.backend.InsertData(cacheTableName, cacheTableEntry{
		Name:          name,
		NumLines:      config.NumLines,
		WordsPerLine:  config.WordsPerLine,
		Mapping:       config.Mapping.String(),
		Associativity: config.Associativity,
		Policy:        config.Policy.String(),
	})

	return name
}
