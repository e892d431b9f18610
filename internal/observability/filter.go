package observability

import (
	"slices"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ProbeFilterMinLevel is the lowest severity that always passes the probe
// filter, so failing probes and unhandled failures on probe paths are logged.
const ProbeFilterMinLevel = zapcore.ErrorLevel

// probeFilterCore drops entries below ProbeFilterMinLevel whose message
// contains any of its filters.
type probeFilterCore struct {
	zapcore.Core
	filters []string
}

// NewProbeFilter wraps core so that entries below ProbeFilterMinLevel whose
// message contains one of filters are never written. Returns core unchanged
// if filters is empty.
func NewProbeFilter(core zapcore.Core, filters []string) zapcore.Core {
	if len(filters) == 0 {
		return core
	}
	return &probeFilterCore{Core: core, filters: slices.Clone(filters)}
}

func (c *probeFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &probeFilterCore{Core: c.Core.With(fields), filters: c.filters}
}

func (c *probeFilterCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) || c.drops(ent) {
		return ce
	}
	return ce.AddCore(ent, c)
}

func (c *probeFilterCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if c.drops(ent) {
		return nil
	}
	return c.Core.Write(ent, fields)
}

func (c *probeFilterCore) drops(ent zapcore.Entry) bool {
	return ent.Level < ProbeFilterMinLevel && MatchesProbe(ent.Message, c.filters)
}

// MatchesProbe reports whether msg contains any of filters.
func MatchesProbe(msg string, filters []string) bool {
	for _, filter := range filters {
		if strings.Contains(msg, filter) {
			return true
		}
	}
	return false
}
