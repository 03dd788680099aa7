package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	stacktheory "github.com/theory-cloud/stacktheory"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, keys := range envKeys {
		for _, key := range keys {
			t.Setenv(key, "")
		}
	}
}

func TestFromEnv_PrefersStackTheoryVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("STACKTHEORY_APP_NAME", "site")
	t.Setenv("STACKTHEORY_STAGE", "production")
	t.Setenv("AWS_REGION", "us-west-2")
	t.Setenv("AWS_DEFAULT_REGION", "eu-west-1")
	t.Setenv("DOMAIN_NAME", "Example.COM.")
	t.Setenv("STACKTHEORY_STATE_TABLE", "  ")

	cfg := FromEnv()
	require.Equal(t, "site", cfg.AppName)
	require.Equal(t, "live", cfg.Stage)
	require.Equal(t, "us-west-2", cfg.Region)
	require.Equal(t, "example.com", cfg.DomainName)
	require.Equal(t, DefaultStateTable, cfg.StateTable)
	require.Equal(t, "site-live", cfg.StackName())
}

func TestLoadFile_OverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_name: docs\ndomain_name: docs.example.com\nhosted_zone_id: Z1\n"), 0o600))

	cfg, err := LoadFile(path, Config{AppName: "site", Stage: "dev", Region: "us-east-1"})
	require.NoError(t, err)
	require.Equal(t, "docs", cfg.AppName)
	require.Equal(t, "dev", cfg.Stage)
	require.Equal(t, "us-east-1", cfg.Region)
	require.Equal(t, "Z1", cfg.HostedZoneID)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"), Config{})
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("app_name: [unterminated"), 0o600))
	_, err = LoadFile(path, Config{})
	require.Error(t, err)
}

func TestRequire_AggregatesMissingKeys(t *testing.T) {
	cfg := Config{DomainName: "example.com"}

	require.NoError(t, cfg.Require(KeyDomainName))

	err := cfg.Require(KeyDomainName, KeyHostedZoneID, "accountId")
	require.Error(t, err)
	require.Equal(t, stacktheory.ErrorCodeMissingConfig, stacktheory.ErrorCode(err))

	var missing *stacktheory.MissingConfigError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, KeyHostedZoneID, missing.Key)
	require.Contains(t, err.Error(), "account_id is required")
}

func TestGetSetLookup(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.Set("certificate-arn", "arn:aws:acm:us-east-1:1:certificate/x"))
	require.NoError(t, cfg.Set("hostedZoneId", "Z9"))
	require.Error(t, cfg.Set("nope", "x"))

	require.Equal(t, "arn:aws:acm:us-east-1:1:certificate/x", cfg.Get(KeyCertificateARN))
	v, ok := cfg.Lookup(KeyHostedZoneID)
	require.True(t, ok)
	require.Equal(t, "Z9", v)
	_, ok = cfg.Lookup("nope")
	require.False(t, ok)

	require.Equal(t, map[string]string{
		KeyCertificateARN: "arn:aws:acm:us-east-1:1:certificate/x",
		KeyHostedZoneID:   "Z9",
	}, cfg.Values())
}

func TestMerge_KeepsBaseWhenOverrideEmpty(t *testing.T) {
	merged := Merge(Default(), Config{Tenant: "acme"})
	require.Equal(t, DefaultAppName, merged.AppName)
	require.Equal(t, "acme", merged.Tenant)
	require.Equal(t, "stacktheory-acme-dev", merged.StackName())
}

func TestWithAWSDefaults(t *testing.T) {
	cfg, err := Config{Region: "ap-south-1"}.WithAWSDefaults(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ap-south-1", cfg.Region)

	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))
	t.Setenv("AWS_PROFILE", "")
	cfg, err = Config{}.WithAWSDefaults(context.Background())
	require.NoError(t, err)
	require.Equal(t, "eu-central-1", cfg.Region)
}
