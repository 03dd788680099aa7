package zap

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	ubzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/observability"
)

const (
	formatJSON    = "json"
	formatConsole = "console"
)

func normalizeLoggerConfig(config observability.LoggerConfig) observability.LoggerConfig {
	cfg := config
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if cfg.Format == "" {
		cfg.Format = formatConsole
		if stacktheory.IsLambda() {
			cfg.Format = formatJSON
		}
	}
	if strings.TrimSpace(cfg.Level) == "" {
		cfg.Level = "info"
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return cfg
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "warning":
		return zapcore.WarnLevel, nil
	case "debug", "info", "warn", "error":
		return zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	default:
		return 0, fmt.Errorf("observability/zap: unsupported log level %q", level)
	}
}

// newBaseLogger encodes json with RFC3339 timestamps for log pipelines, and
// console with capitalized levels for terminals.
func newBaseLogger(cfg observability.LoggerConfig, out zapcore.WriteSyncer) (*ubzap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if cfg.EnableCaller {
		enc.CallerKey = "caller"
		enc.EncodeCaller = zapcore.ShortCallerEncoder
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case formatJSON:
		enc.EncodeTime = zapcore.RFC3339TimeEncoder
		enc.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoder = zapcore.NewJSONEncoder(enc)
	case formatConsole:
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(enc)
	default:
		return nil, fmt.Errorf("observability/zap: unsupported log format %q", cfg.Format)
	}

	if out == nil {
		out = zapcore.Lock(os.Stdout)
	}
	var zopts []ubzap.Option
	if cfg.EnableCaller {
		zopts = append(zopts, ubzap.AddCaller(), ubzap.AddCallerSkip(2))
	}
	if cfg.EnableStack {
		zopts = append(zopts, ubzap.AddStacktrace(zapcore.ErrorLevel))
	}
	return ubzap.New(zapcore.NewCore(encoder, out, level), zopts...), nil
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
