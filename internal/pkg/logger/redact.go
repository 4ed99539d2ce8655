package logger

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// Redacted replaces the value of any field whose key names secret material.
const Redacted = "[REDACTED]"

var sensitiveKeys = map[string]bool{
	"password":      true,
	"passphrase":    true,
	"secret":        true,
	"apikey":        true,
	"mfaseed":       true,
	"token":         true,
	"authorization": true,
}

func sensitive(key string) bool {
	k := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
	return sensitiveKeys[k]
}

type redactingCore struct {
	zapcore.Core
}

func redact(c zapcore.Core) zapcore.Core {
	return &redactingCore{Core: c}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(scrub(fields))}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, scrub(fields))
}

// scrub returns fields with sensitive values masked. The input slice is
// never modified.
func scrub(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if !sensitive(f.Key) {
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, len(fields))
			copy(out, fields)
		}
		out[i] = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: Redacted}
	}
	if out == nil {
		return fields
	}
	return out
}
