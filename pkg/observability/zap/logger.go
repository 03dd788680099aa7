// Package zap implements observability.StructuredLogger on go.uber.org/zap.
package zap

import (
	"context"
	"io"
	"maps"
	"sync/atomic"
	"time"

	ubzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theory-cloud/stacktheory/pkg/observability"
	"github.com/theory-cloud/stacktheory/pkg/sanitization"
)

type Option func(*loggerOptions)

type loggerOptions struct {
	initErr error

	zapLogger *ubzap.Logger
	output    zapcore.WriteSyncer
	sanitizer observability.SanitizerFunc
	notifier  observability.ErrorNotifier
}

// WithZapLogger logs through an existing zap logger; level, format and output
// settings are then ignored.
func WithZapLogger(logger *ubzap.Logger) Option {
	return func(opts *loggerOptions) {
		opts.zapLogger = logger
	}
}

// WithOutput redirects the encoded stream, which defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(opts *loggerOptions) {
		if w != nil {
			opts.output = zapcore.AddSync(w)
		}
	}
}

func WithSanitizer(fn observability.SanitizerFunc) Option {
	return func(opts *loggerOptions) {
		opts.sanitizer = fn
	}
}

// WithErrorNotifier forwards error-level entries, with their deployment
// scope, to notifier in the background.
func WithErrorNotifier(notifier observability.ErrorNotifier) Option {
	return func(opts *loggerOptions) {
		opts.notifier = notifier
	}
}

// scope is the deployment context an entry belongs to. It is rendered as
// fields at write time so re-scoping replaces values instead of repeating keys.
type scope struct {
	deploymentID string
	stack        string
	nodeID       string
}

func (s scope) fields() []ubzap.Field {
	out := make([]ubzap.Field, 0, 3)
	for _, f := range []struct{ key, value string }{
		{"deployment_id", s.deploymentID},
		{"stack", s.stack},
		{"node_id", s.nodeID},
	} {
		if f.value != "" {
			out = append(out, ubzap.String(f.key, sanitization.SanitizeLogString(f.value)))
		}
	}
	return out
}

// sink is shared by a logger and everything derived from it.
type sink struct {
	base      *ubzap.Logger
	sanitize  observability.SanitizerFunc
	dispatch  *dispatcher
	closed    atomic.Bool
	logged    atomic.Int64
	flushes   atomic.Int64
	flushTime atomic.Int64
	lastFlush atomic.Int64
	syncErrs  atomic.Int64
	lastErr   atomic.Value
}

type Logger struct {
	sink   *sink
	fields map[string]any
	scope  scope
}

var _ observability.StructuredLogger = (*Logger)(nil)

// NewZapLogger builds a logger from config. Format defaults to json inside
// Lambda and console elsewhere; level defaults to info.
func NewZapLogger(config observability.LoggerConfig, options ...Option) (observability.StructuredLogger, error) {
	cfg := normalizeLoggerConfig(config)

	opts := &loggerOptions{sanitizer: sanitization.SanitizeFieldValue}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	if opts.initErr != nil {
		return nil, opts.initErr
	}
	if opts.sanitizer == nil {
		opts.sanitizer = sanitization.SanitizeFieldValue
	}

	base := opts.zapLogger
	if base == nil {
		var err error
		if base, err = newBaseLogger(cfg, opts.output); err != nil {
			return nil, err
		}
	}

	s := &sink{base: base, sanitize: opts.sanitizer}
	s.lastErr.Store("")
	if opts.notifier != nil {
		s.dispatch = newDispatcher(opts.notifier, cfg.BufferSize, cfg.MaxRetries, cfg.RetryDelay)
	}
	return &Logger{sink: s, fields: map[string]any{}}, nil
}

func (l *Logger) Debug(message string, fields ...map[string]any) {
	l.write(zapcore.DebugLevel, message, fields)
}

func (l *Logger) Info(message string, fields ...map[string]any) {
	l.write(zapcore.InfoLevel, message, fields)
}

func (l *Logger) Warn(message string, fields ...map[string]any) {
	l.write(zapcore.WarnLevel, message, fields)
}

func (l *Logger) Error(message string, fields ...map[string]any) {
	l.write(zapcore.ErrorLevel, message, fields)
}

func (l *Logger) WithField(key string, value any) observability.StructuredLogger {
	return l.WithFields(map[string]any{key: value})
}

func (l *Logger) WithFields(fields map[string]any) observability.StructuredLogger {
	next := l.derive()
	maps.Copy(next.fields, fields)
	return next
}

func (l *Logger) WithDeploymentID(deploymentID string) observability.StructuredLogger {
	next := l.derive()
	next.scope.deploymentID = deploymentID
	return next
}

func (l *Logger) WithStack(stack string) observability.StructuredLogger {
	next := l.derive()
	next.scope.stack = stack
	return next
}

func (l *Logger) WithNodeID(nodeID string) observability.StructuredLogger {
	next := l.derive()
	next.scope.nodeID = nodeID
	return next
}

// Flush syncs the zap core and waits, bounded by ctx, for queued
// notifications to be delivered.
func (l *Logger) Flush(ctx context.Context) error {
	if l == nil || l.sink == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	err := l.sink.sync()
	if l.sink.dispatch != nil {
		l.sink.dispatch.wait(ctx)
	}
	l.sink.flushes.Add(1)
	l.sink.flushTime.Add(time.Since(start).Nanoseconds())
	l.sink.lastFlush.Store(time.Now().UnixNano())
	return err
}

// Close drains pending notifications and syncs. Later entries are discarded.
func (l *Logger) Close() error {
	if l == nil || l.sink == nil || !l.sink.closed.CompareAndSwap(false, true) {
		return nil
	}
	if l.sink.dispatch != nil {
		l.sink.dispatch.close()
	}
	return l.sink.sync()
}

func (l *Logger) IsHealthy() bool {
	if l == nil || l.sink == nil || l.sink.closed.Load() {
		return false
	}
	return l.sink.lastError() == ""
}

func (l *Logger) GetStats() observability.LoggerStats {
	if l == nil || l.sink == nil {
		return observability.LoggerStats{}
	}
	s := l.sink
	stats := observability.LoggerStats{
		LastFlush:     time.Unix(0, s.lastFlush.Load()),
		LastError:     s.lastError(),
		EntriesLogged: s.logged.Load(),
		FlushCount:    s.flushes.Load(),
		ErrorCount:    s.syncErrs.Load(),
	}
	if stats.FlushCount > 0 {
		stats.AverageFlush = time.Duration(s.flushTime.Load() / stats.FlushCount)
	}
	if d := s.dispatch; d != nil {
		stats.EntriesDropped = d.dropped.Load()
		stats.ErrorCount += d.failures.Load()
		if stats.LastError == "" {
			stats.LastError = d.lastError()
		}
	}
	return stats
}

func (l *Logger) derive() *Logger {
	if l == nil {
		return &Logger{fields: map[string]any{}}
	}
	return &Logger{sink: l.sink, fields: maps.Clone(l.fields), scope: l.scope}
}

func (l *Logger) write(level zapcore.Level, message string, callFields []map[string]any) {
	if l == nil || l.sink == nil || l.sink.closed.Load() {
		return
	}
	message = sanitization.SanitizeLogString(message)

	merged := maps.Clone(l.fields)
	if merged == nil {
		merged = map[string]any{}
	}
	for _, set := range callFields {
		maps.Copy(merged, set)
	}
	sanitized := make(map[string]any, len(merged))
	for k, v := range merged {
		sanitized[k] = l.sink.sanitize(k, v)
	}

	if ce := l.sink.base.Check(level, message); ce != nil {
		zfields := l.scope.fields()
		for _, k := range sortedKeys(sanitized) {
			zfields = append(zfields, ubzap.Any(k, sanitized[k]))
		}
		ce.Write(zfields...)
		l.sink.logged.Add(1)
	}

	if level >= zapcore.ErrorLevel && l.sink.dispatch != nil {
		l.sink.dispatch.enqueue(observability.LogEntry{
			Timestamp:    time.Now(),
			Level:        level.String(),
			Message:      message,
			Fields:       sanitized,
			DeploymentID: l.scope.deploymentID,
			Stack:        l.scope.stack,
			NodeID:       l.scope.nodeID,
		})
	}
}

func (s *sink) sync() error {
	err := s.base.Sync()
	if err != nil {
		s.syncErrs.Add(1)
		s.lastErr.Store(err.Error())
	}
	return err
}

func (s *sink) lastError() string {
	v, _ := s.lastErr.Load().(string)
	return v
}
