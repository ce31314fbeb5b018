package tracing

import (
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/sim/hooking"
)

type namedDomain interface {
	Name() string
}

// LogTracer is a hook that narrates every cache access into a logger.
type LogTracer struct {
	logger *logrus.Logger
	level  logrus.Level
}

// NewLogTracer creates a LogTracer that logs at info level.
func NewLogTracer(logger *logrus.Logger) *LogTracer {
	return &LogTracer{
		logger: logger,
		level:  logrus.InfoLevel,
	}
}

// WithLevel sets the level of the access messages.
func (t *LogTracer) WithLevel(level logrus.Level) *LogTracer {
	t.level = level
	return t
}

// Func logs the access carried by a HookPosAccess context.
func (t *LogTracer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != cache.HookPosAccess {
		return
	}

	result, ok := ctx.Item.(cache.AccessResult)
	if !ok {
		return
	}

	fields := logrus.Fields{
		"mode":    result.Mode.String(),
		"address": result.Address,
		"block":   result.Block,
		"line":    result.Line,
		"outcome": result.Outcome.String(),
	}

	if d, ok := ctx.Domain.(namedDomain); ok {
		fields["cache"] = d.Name()
	}

	if result.Mode == cache.Write {
		fields["value"] = result.Value
	}

	entry := t.logger.WithFields(fields)

	switch {
	case result.IsHit():
		entry.Logf(t.level, "HIT line %d", result.Line)
	case result.Evicted:
		entry.WithField("evicted_block", result.EvictedBlock).
			Logf(t.level, "MISS -> placed at line %d -> block %d replaced",
				result.Line, result.EvictedBlock)
	default:
		entry.Logf(t.level, "MISS -> placed at empty line %d", result.Line)
	}
}
