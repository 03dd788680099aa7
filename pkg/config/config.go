package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/naming"
)

// Canonical configuration keys, as used by Get, Require and topology sources.
const (
	KeyAppName        = "app_name"
	KeyStage          = "stage"
	KeyTenant         = "tenant"
	KeyAccountID      = "account_id"
	KeyRegion         = "region"
	KeyDomainName     = "domain_name"
	KeyHostedZoneID   = "hosted_zone_id"
	KeyCertificateARN = "certificate_arn"
	KeyStateTable     = "state_table"
	KeyErrorTopicARN  = "error_topic_arn"
	KeyEventTopicARN  = "event_topic_arn"
	KeyEventQueueURL  = "event_queue_url"
	KeyLogLevel       = "log_level"
	KeyLogFormat      = "log_format"
)

const (
	DefaultAppName    = "stacktheory"
	DefaultStage      = "dev"
	DefaultStateTable = "stacktheory-state"
)

// Config carries the process-wide values topology sources and the deployment
// layers consume. Topology code receives it explicitly.
type Config struct {
	AppName        string `yaml:"app_name" json:"app_name,omitempty"`
	Stage          string `yaml:"stage" json:"stage,omitempty"`
	Tenant         string `yaml:"tenant" json:"tenant,omitempty"`
	AccountID      string `yaml:"account_id" json:"account_id,omitempty"`
	Region         string `yaml:"region" json:"region,omitempty"`
	DomainName     string `yaml:"domain_name" json:"domain_name,omitempty"`
	HostedZoneID   string `yaml:"hosted_zone_id" json:"hosted_zone_id,omitempty"`
	CertificateARN string `yaml:"certificate_arn" json:"certificate_arn,omitempty"`
	StateTable     string `yaml:"state_table" json:"state_table,omitempty"`
	ErrorTopicARN  string `yaml:"error_topic_arn" json:"error_topic_arn,omitempty"`
	EventTopicARN  string `yaml:"event_topic_arn" json:"event_topic_arn,omitempty"`
	EventQueueURL  string `yaml:"event_queue_url" json:"event_queue_url,omitempty"`
	LogLevel       string `yaml:"log_level" json:"log_level,omitempty"`
	LogFormat      string `yaml:"log_format" json:"log_format,omitempty"`
}

var envKeys = map[string][]string{
	KeyAppName:        {"STACKTHEORY_APP_NAME", "APP_NAME"},
	KeyStage:          {"STACKTHEORY_STAGE", "STAGE"},
	KeyTenant:         {"STACKTHEORY_TENANT"},
	KeyAccountID:      {"STACKTHEORY_ACCOUNT_ID", "CDK_DEFAULT_ACCOUNT", "AWS_ACCOUNT_ID"},
	KeyRegion:         {"STACKTHEORY_REGION", "AWS_REGION", "AWS_DEFAULT_REGION", "CDK_DEFAULT_REGION"},
	KeyDomainName:     {"STACKTHEORY_DOMAIN_NAME", "DOMAIN_NAME"},
	KeyHostedZoneID:   {"STACKTHEORY_HOSTED_ZONE_ID", "HOSTED_ZONE_ID"},
	KeyCertificateARN: {"STACKTHEORY_CERTIFICATE_ARN", "CERTIFICATE_ARN"},
	KeyStateTable:     {"STACKTHEORY_STATE_TABLE"},
	KeyErrorTopicARN:  {"STACKTHEORY_ERROR_TOPIC_ARN"},
	KeyEventTopicARN:  {"STACKTHEORY_EVENT_TOPIC_ARN"},
	KeyEventQueueURL:  {"STACKTHEORY_EVENT_QUEUE_URL"},
	KeyLogLevel:       {"STACKTHEORY_LOG_LEVEL", "LOG_LEVEL"},
	KeyLogFormat:      {"STACKTHEORY_LOG_FORMAT", "LOG_FORMAT"},
}

// Keys returns every canonical key.
func Keys() []string {
	return []string{
		KeyAppName, KeyStage, KeyTenant, KeyAccountID, KeyRegion, KeyDomainName,
		KeyHostedZoneID, KeyCertificateARN, KeyStateTable, KeyErrorTopicARN,
		KeyEventTopicARN, KeyEventQueueURL, KeyLogLevel, KeyLogFormat,
	}
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		AppName:    DefaultAppName,
		Stage:      DefaultStage,
		StateTable: DefaultStateTable,
	}
}

// FromEnv reads configuration from STACKTHEORY_* variables, falling back to
// common AWS and CDK variables, over Default.
func FromEnv() Config {
	cfg := Default()
	for _, key := range Keys() {
		if value := firstEnvValue(envKeys[key]...); value != "" {
			_ = cfg.Set(key, value)
		}
	}
	return cfg
}

// LoadFile overlays the YAML file at path onto base.
func LoadFile(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var file Config
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return Merge(base, file), nil
}

// Merge returns base with every non-empty value of override applied.
func Merge(base, override Config) Config {
	out := base
	for _, key := range Keys() {
		if value := override.Get(key); value != "" {
			_ = out.Set(key, value)
		}
	}
	return out
}

// WithAWSDefaults fills the region from the shared AWS configuration when it
// is unset.
func (c Config) WithAWSDefaults(ctx context.Context) (Config, error) {
	if strings.TrimSpace(c.Region) != "" {
		return c, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return c, fmt.Errorf("load aws config: %w", err)
	}
	c.Region = awsCfg.Region
	return c, nil
}

// Get returns the value for a canonical key, or "" for unknown keys.
func (c Config) Get(key string) string {
	switch normalizeKey(key) {
	case KeyAppName:
		return c.AppName
	case KeyStage:
		return c.Stage
	case KeyTenant:
		return c.Tenant
	case KeyAccountID:
		return c.AccountID
	case KeyRegion:
		return c.Region
	case KeyDomainName:
		return c.DomainName
	case KeyHostedZoneID:
		return c.HostedZoneID
	case KeyCertificateARN:
		return c.CertificateARN
	case KeyStateTable:
		return c.StateTable
	case KeyErrorTopicARN:
		return c.ErrorTopicARN
	case KeyEventTopicARN:
		return c.EventTopicARN
	case KeyEventQueueURL:
		return c.EventQueueURL
	case KeyLogLevel:
		return c.LogLevel
	case KeyLogFormat:
		return c.LogFormat
	default:
		return ""
	}
}

// Lookup is Get with a presence flag; unknown and empty keys report false.
func (c Config) Lookup(key string) (string, bool) {
	value := strings.TrimSpace(c.Get(key))
	return value, value != ""
}

// Set assigns a canonical key.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch normalizeKey(key) {
	case KeyAppName:
		c.AppName = value
	case KeyStage:
		c.Stage = naming.NormalizeStage(value)
	case KeyTenant:
		c.Tenant = value
	case KeyAccountID:
		c.AccountID = value
	case KeyRegion:
		c.Region = value
	case KeyDomainName:
		c.DomainName = strings.TrimSuffix(strings.ToLower(value), ".")
	case KeyHostedZoneID:
		c.HostedZoneID = value
	case KeyCertificateARN:
		c.CertificateARN = value
	case KeyStateTable:
		c.StateTable = value
	case KeyErrorTopicARN:
		c.ErrorTopicARN = value
	case KeyEventTopicARN:
		c.EventTopicARN = value
	case KeyEventQueueURL:
		c.EventQueueURL = value
	case KeyLogLevel:
		c.LogLevel = value
	case KeyLogFormat:
		c.LogFormat = value
	default:
		return fmt.Errorf("unknown configuration key %q", key)
	}
	return nil
}

// Require checks that every key is present. All missing keys are reported
// together as *stacktheory.MissingConfigError values.
func (c Config) Require(keys ...string) error {
	var result *multierror.Error
	for _, key := range keys {
		if _, ok := c.Lookup(key); !ok {
			result = multierror.Append(result, &stacktheory.MissingConfigError{Key: normalizeKey(key)})
		}
	}
	return result.ErrorOrNil()
}

// StackName is the deterministic name of the stack this configuration
// describes.
func (c Config) StackName() string {
	return naming.BaseName(c.AppName, c.Stage, c.Tenant)
}

// Values returns every non-empty key as a map.
func (c Config) Values() map[string]string {
	out := map[string]string{}
	for _, key := range Keys() {
		if value := c.Get(key); value != "" {
			out[key] = value
		}
	}
	return out
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, "-", "_")
	switch key {
	case "appname":
		return KeyAppName
	case "accountid":
		return KeyAccountID
	case "domainname":
		return KeyDomainName
	case "hostedzoneid":
		return KeyHostedZoneID
	case "certificatearn":
		return KeyCertificateARN
	}
	return key
}

func firstEnvValue(keys ...string) string {
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}
