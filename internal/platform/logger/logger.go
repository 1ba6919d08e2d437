package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.SugaredLogger with key/value sanitization so that
// secrets never reach the sink and high-cardinality identifiers are
// hashed instead of logged raw.
type Logger struct {
	s *zap.SugaredLogger
}

// New builds a logger for the given mode ("production" or anything else,
// which is treated as development).
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	if strings.EqualFold(strings.TrimSpace(mode), "production") {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap: %w", err)
	}
	return &Logger{s: base.Sugar()}, nil
}

// NewNop returns a logger that discards everything. Handy in tests.
func NewNop() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

func (l *Logger) With(kvs ...any) *Logger {
	if l == nil || l.s == nil {
		return l
	}
	return &Logger{s: l.s.With(sanitizeKVs(kvs)...)}
}

func (l *Logger) Debug(msg string, kvs ...any) { l.s.Debugw(msg, sanitizeKVs(kvs)...) }
func (l *Logger) Info(msg string, kvs ...any)  { l.s.Infow(msg, sanitizeKVs(kvs)...) }
func (l *Logger) Warn(msg string, kvs ...any)  { l.s.Warnw(msg, sanitizeKVs(kvs)...) }
func (l *Logger) Error(msg string, kvs ...any) { l.s.Errorw(msg, sanitizeKVs(kvs)...) }

func (l *Logger) Sync() {
	if l == nil || l.s == nil {
		return
	}
	_ = l.s.Sync()
}

var redactedKeys = map[string]struct{}{
	"api_key":       {},
	"apikey":        {},
	"authorization": {},
	"password":      {},
	"secret":        {},
	"token":         {},
	"dsn":           {},
}

var hashedKeys = map[string]struct{}{
	"session_id": {},
	"user_id":    {},
}

func sanitizeKVs(kvs []any) []any {
	if len(kvs) == 0 {
		return kvs
	}
	out := make([]any, len(kvs))
	copy(out, kvs)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		norm := strings.ToLower(strings.TrimSpace(key))
		if _, redact := redactedKeys[norm]; redact {
			out[i+1] = "[redacted]"
			continue
		}
		if _, hash := hashedKeys[norm]; hash {
			out[i+1] = hashValue(out[i+1])
		}
	}
	return out
}

// hashValue keeps identifiers correlatable across log lines without
// exposing the raw value.
func hashValue(v any) string {
	raw := fmt.Sprintf("%v", v)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(raw))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}
