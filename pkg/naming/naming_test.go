package naming

import (
	"strings"
	"testing"
)

func TestNormalizeStage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"prod", "live"},
		{"production", "live"},
		{"live", "live"},
		{"dev", "dev"},
		{"development", "dev"},
		{"stg", "stage"},
		{"staging", "stage"},
		{"stage", "stage"},
		{"test", "test"},
		{"testing", "test"},
		{"Local", "local"},
		{"My Env!", "my-env"},
	}
	for _, tt := range tests {
		if got := NormalizeStage(tt.in); got != tt.want {
			t.Fatalf("NormalizeStage(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBaseName(t *testing.T) {
	if got := BaseName("MyApp", "prod", ""); got != "myapp-live" {
		t.Fatalf("BaseName app-stage: %q", got)
	}
	if got := BaseName("MyApp", "prod", "Acme"); got != "myapp-acme-live" {
		t.Fatalf("BaseName app-tenant-stage: %q", got)
	}
}

func TestResourceName(t *testing.T) {
	if got := ResourceName("MyApp", "Table", "stg", ""); got != "myapp-table-stage" {
		t.Fatalf("ResourceName app-resource-stage: %q", got)
	}
	if got := ResourceName("MyApp", "Table", "stg", "Acme"); got != "myapp-acme-table-stage" {
		t.Fatalf("ResourceName app-tenant-resource-stage: %q", got)
	}
}

func TestBucketName(t *testing.T) {
	if got := BucketName("MyApp", "Site", "prod", ""); got != "myapp-site-live" {
		t.Fatalf("BucketName: %q", got)
	}

	long := BucketName(strings.Repeat("a", 80), "site", "dev", "")
	if len(long) > 63 {
		t.Fatalf("expected bucket name to fit 63 chars, got %d", len(long))
	}
	if long != BucketName(strings.Repeat("a", 80), "site", "dev", "") {
		t.Fatal("expected truncated bucket names to be deterministic")
	}
	if long == BucketName(strings.Repeat("a", 80), "logs", "dev", "") {
		t.Fatal("expected distinct truncated names for distinct inputs")
	}
}

func TestFunctionTableAndSecretNames(t *testing.T) {
	if got := FunctionName("MyApp", "api", "dev", "acme"); got != "myapp-acme-api-dev" {
		t.Fatalf("FunctionName: %q", got)
	}
	if got := len(FunctionName(strings.Repeat("x", 100), "api", "dev", "")); got > 64 {
		t.Fatalf("expected function name to fit 64 chars, got %d", got)
	}
	if got := TableName("MyApp", "events", "stg", ""); got != "myapp-events-stage" {
		t.Fatalf("TableName: %q", got)
	}
	if got := SecretName("MyApp", "api keys", "prod", "Acme"); got != "myapp/acme/live/api-keys" {
		t.Fatalf("SecretName: %q", got)
	}
}

func TestLogicalID(t *testing.T) {
	tests := map[string]string{
		"site-bucket":     "SiteBucket",
		"api_function":    "ApiFunction",
		"alias.record":    "AliasRecord",
		"restAPI":         "RestAPI",
		"2nd-zone":        "R2ndZone",
		"---":             "Resource",
		"worker-function": "WorkerFunction",
	}
	for in, want := range tests {
		if got := LogicalID(in); got != want {
			t.Fatalf("LogicalID(%q)=%q, want %q", in, got, want)
		}
	}
}
