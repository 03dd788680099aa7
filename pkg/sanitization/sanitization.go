package sanitization

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

const redactedValue = "[REDACTED]"

const emptyMaskedValue = "(empty)"

// AllowedFields are normalized field names that bypass redaction.
var AllowedFields = map[string]bool{
	"secretname": true,
}

// SanitizationType defines how to sanitize a field.
type SanitizationType int

const (
	FullyRedact SanitizationType = iota
	PartialMask
)

// SensitiveFields is keyed by normalized field name: lowercase with dashes and
// underscores removed, so "secret_string" and "secretString" share an entry.
var SensitiveFields = map[string]SanitizationType{
	"secretstring":       FullyRedact,
	"secretvalue":        FullyRedact,
	"secret":             FullyRedact,
	"password":           FullyRedact,
	"privatekey":         FullyRedact,
	"secretaccesskey":    FullyRedact,
	"awssecretaccesskey": FullyRedact,
	"sessiontoken":       FullyRedact,
	"awssessiontoken":    FullyRedact,
	"connectionstring":   FullyRedact,
	"authorization":      FullyRedact,

	"accountid":      PartialMask,
	"awsaccountid":   PartialMask,
	"accesskeyid":    PartialMask,
	"awsaccesskeyid": PartialMask,
	"apikeyid":       PartialMask,
}

var blockedSubstrings = []string{
	"secret",
	"token",
	"password",
	"privatekey",
	"apikey",
	"authorization",
	"credential",
}

// SanitizeLogString removes control characters that could enable log forging.
func SanitizeLogString(value string) string {
	if value == "" {
		return value
	}
	value = strings.ReplaceAll(value, "\r", "")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

// SanitizeFieldValue sanitizes a field value based on its key name.
//
// Keys ending in "arn" keep their value with the account segment masked.
func SanitizeFieldValue(key string, value any) any {
	normalized := normalizeKey(key)
	if normalized == "" || AllowedFields[normalized] {
		return sanitizeValue(value)
	}

	if typ, ok := SensitiveFields[normalized]; ok {
		switch typ {
		case FullyRedact:
			return redactedValue
		case PartialMask:
			return maskRestrictedValue(value)
		default:
			return redactedValue
		}
	}

	if strings.HasSuffix(normalized, "arn") {
		if s, ok := value.(string); ok {
			return MaskARN(SanitizeLogString(s))
		}
	}

	for _, substr := range blockedSubstrings {
		if strings.Contains(normalized, substr) {
			return redactedValue
		}
	}

	return sanitizeValue(value)
}

// SanitizeProperties returns a copy of a resource property bag with sensitive
// values redacted, suitable for display or logging.
func SanitizeProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = SanitizeFieldValue(k, v)
	}
	return out
}

// MaskARN masks the account segment of an ARN, keeping its last four digits.
// Values that are not ARNs are returned unchanged.
func MaskARN(arn string) string {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) < 6 || parts[0] != "arn" || parts[4] == "" {
		return arn
	}
	parts[4] = maskRestrictedString(parts[4])
	return strings.Join(parts, ":")
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, "_", "")
	key = strings.ReplaceAll(key, "-", "")
	return key
}

// sanitizeValue strips log-forging characters from text and recurses into
// containers. Booleans, numbers and self-encoding values such as unresolved
// placeholders keep their type so sanitized plans encode like the originals.
func sanitizeValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return typed
	case string:
		return SanitizeLogString(typed)
	case []byte:
		return SanitizeLogString(string(typed))
	case map[string]any:
		return SanitizeProperties(typed)
	case map[string]string:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k], _ = SanitizeFieldValue(k, v).(string)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = sanitizeValue(typed[i])
		}
		return out
	case []string:
		out := make([]string, len(typed))
		for i := range typed {
			out[i] = SanitizeLogString(typed[i])
		}
		return out
	case json.Marshaler:
		return typed
	case fmt.Stringer:
		return SanitizeLogString(typed.String())
	default:
		return SanitizeLogString(fmt.Sprintf("%v", typed))
	}
}

func maskRestrictedValue(value any) string {
	switch v := value.(type) {
	case string:
		return maskRestrictedString(v)
	case []byte:
		return maskRestrictedString(string(v))
	default:
		return redactedValue
	}
}

func maskRestrictedString(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return redactedValue
	}

	// Numeric-ish strings keep their last 4 digits.
	cleaned := stripNonDigits(value)
	if len(cleaned) >= 4 {
		if len(cleaned) == 4 {
			return strings.Repeat("*", 4)
		}
		return strings.Repeat("*", len(cleaned)-4) + cleaned[len(cleaned)-4:]
	}

	if len(value) >= 4 {
		return "..." + value[len(value)-4:]
	}
	return redactedValue
}

func stripNonDigits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
