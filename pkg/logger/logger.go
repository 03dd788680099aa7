package logger

import (
	"sync"

	"github.com/theory-cloud/stacktheory/pkg/observability"
	"github.com/theory-cloud/stacktheory/pkg/sanitization"
)

var (
	globalMu     sync.RWMutex
	globalLogger observability.StructuredLogger = observability.NewNoOpLogger()
)

// Logger returns the global structured logger singleton.
func Logger() observability.StructuredLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetLogger replaces the global structured logger singleton.
//
// Passing nil resets the logger to a no-op implementation.
func SetLogger(next observability.StructuredLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if next == nil {
		globalLogger = observability.NewNoOpLogger()
		return
	}
	globalLogger = next
}

// ForDeployment returns the global logger scoped to a stack and deployment.
func ForDeployment(stack, deploymentID string) observability.StructuredLogger {
	return Logger().WithStack(stack).WithDeploymentID(deploymentID)
}

// SanitizeLogString removes control characters that could enable log forging.
func SanitizeLogString(value string) string {
	return sanitization.SanitizeLogString(value)
}

// SanitizeFieldValue applies deterministic redaction rules to a field value.
func SanitizeFieldValue(key string, value any) any {
	return sanitization.SanitizeFieldValue(key, value)
}

// SanitizeJSON returns a sanitized JSON string for safe logging.
func SanitizeJSON(jsonBytes []byte) string {
	return sanitization.SanitizeJSON(jsonBytes)
}

// SanitizeProperties redacts sensitive values in a resource property bag.
func SanitizeProperties(props map[string]any) map[string]any {
	return sanitization.SanitizeProperties(props)
}
