package naming

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

var (
	nonAlnum  = regexp.MustCompile(`[^a-z0-9-]+`)
	multiDash = regexp.MustCompile(`-+`)
)

func sanitizePart(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "_", "-")
	value = strings.ReplaceAll(value, " ", "-")
	value = nonAlnum.ReplaceAllString(value, "-")
	value = multiDash.ReplaceAllString(value, "-")
	value = strings.Trim(value, "-")
	return value
}

// NormalizeStage maps stage aliases to canonical values.
//
// Canonical stages are lowercased and safe for typical resource naming schemes.
func NormalizeStage(stage string) string {
	stage = strings.ToLower(strings.TrimSpace(stage))
	switch stage {
	case "prod", "production", "live":
		return "live"
	case "dev", "development":
		return "dev"
	case "stg", "stage", "staging":
		return "stage"
	case "test", "testing":
		return "test"
	case "local":
		return "local"
	default:
		return sanitizePart(stage)
	}
}

// BaseName returns a deterministic base name:
// - <app>-<stage>
// - <app>-<tenant>-<stage> (when tenant is provided)
func BaseName(appName, stage, tenant string) string {
	app := sanitizePart(appName)
	tenant = sanitizePart(tenant)
	stage = NormalizeStage(stage)

	parts := []string{app}
	if tenant != "" {
		parts = append(parts, tenant)
	}
	if stage != "" {
		parts = append(parts, stage)
	}
	return strings.Join(parts, "-")
}

// ResourceName returns a deterministic resource name:
// - <app>-<resource>-<stage>
// - <app>-<tenant>-<resource>-<stage> (when tenant is provided)
func ResourceName(appName, resource, stage, tenant string) string {
	app := sanitizePart(appName)
	tenant = sanitizePart(tenant)
	resource = sanitizePart(resource)
	stage = NormalizeStage(stage)

	parts := []string{app}
	if tenant != "" {
		parts = append(parts, tenant)
	}
	if resource != "" {
		parts = append(parts, resource)
	}
	if stage != "" {
		parts = append(parts, stage)
	}
	return strings.Join(parts, "-")
}

const (
	maxBucketName   = 63
	maxFunctionName = 64
	maxTableName    = 255
	maxSecretName   = 512
)

// BucketName returns a DNS-safe bucket name no longer than 63 characters.
// Longer names are truncated and suffixed with a short hash of the full name.
func BucketName(appName, resource, stage, tenant string) string {
	name := ResourceName(appName, resource, stage, tenant)
	name = strings.ReplaceAll(name, ".", "-")
	return truncateWithHash(name, maxBucketName)
}

// FunctionName returns a Lambda function name no longer than 64 characters.
func FunctionName(appName, resource, stage, tenant string) string {
	return truncateWithHash(ResourceName(appName, resource, stage, tenant), maxFunctionName)
}

// TableName returns a DynamoDB table name.
func TableName(appName, resource, stage, tenant string) string {
	return truncateWithHash(ResourceName(appName, resource, stage, tenant), maxTableName)
}

// SecretName returns a hierarchical secret name: <app>/<stage>/<resource>, with
// the tenant inserted after the app when provided.
func SecretName(appName, resource, stage, tenant string) string {
	parts := []string{sanitizePart(appName)}
	if t := sanitizePart(tenant); t != "" {
		parts = append(parts, t)
	}
	if s := NormalizeStage(stage); s != "" {
		parts = append(parts, s)
	}
	if r := sanitizePart(resource); r != "" {
		parts = append(parts, r)
	}
	return truncateWithHash(strings.Join(parts, "/"), maxSecretName)
}

// LogicalID converts a node id such as "site-bucket" into a PascalCase
// construct id ("SiteBucket").
func LogicalID(id string) string {
	var b strings.Builder
	upper := true
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
			if upper {
				r -= 'a' - 'A'
			}
			b.WriteRune(r)
			upper = false
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			upper = false
		default:
			upper = true
		}
	}
	out := b.String()
	if out == "" {
		return "Resource"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "R" + out
	}
	return out
}

func truncateWithHash(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	suffix := fmt.Sprintf("%08x", h.Sum32())
	prefix := strings.TrimRight(name[:limit-len(suffix)-1], "-/")
	return prefix + "-" + suffix
}
