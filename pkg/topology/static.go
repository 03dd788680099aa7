package topology

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/config"
	"github.com/theory-cloud/stacktheory/pkg/naming"
)

// Node ids of the static site topology.
const (
	SiteBucket     = "site-bucket"
	Certificate    = "certificate"
	HostedZone     = "hosted-zone"
	Distribution   = "distribution"
	AliasRecord    = "alias-record"
	Table          = "table"
	Secret         = "secret"
	APIFunction    = "api-function"
	WorkerFunction = "worker-function"
	RestAPI        = "rest-api"
)

const functionRuntime = "provided.al2023"

// StaticSite returns the static website topology: a bucket fronted by a
// distribution on a custom domain, plus an API backed by two functions, a
// table and a secret. cfg must carry a domain name and hosted zone id; a
// certificate ARN, when set, is imported instead of issuing a certificate.
func StaticSite(cfg config.Config) ([]*stacktheory.Node, error) {
	if err := cfg.Require(config.KeyDomainName, config.KeyHostedZoneID); err != nil {
		return nil, err
	}
	domain := cfg.DomainName
	app, stage, tenant := cfg.AppName, cfg.Stage, cfg.Tenant

	certificate := stacktheory.Properties{
		"domainName":              domain,
		"subjectAlternativeNames": []any{"www." + domain},
	}
	if arn, ok := cfg.Lookup(config.KeyCertificateARN); ok {
		certificate["certificateArn"] = arn
	} else {
		certificate["validation"] = "DNS"
		certificate["zoneId"] = stacktheory.RefTo(HostedZone, "id")
	}

	tableName := naming.TableName(app, "data", stage, tenant)

	return []*stacktheory.Node{
		stacktheory.NewNode(SiteBucket, stacktheory.KindBucket, stacktheory.Properties{
			"bucketName":           naming.BucketName(app, "site", stage, tenant),
			"websiteIndexDocument": "index.html",
			"websiteErrorDocument": "error.html",
			"blockPublicAccess":    true,
		}),
		stacktheory.NewNode(Certificate, stacktheory.KindCertificate, certificate),
		stacktheory.NewNode(HostedZone, stacktheory.KindHostedZone, stacktheory.Properties{
			"zoneName":     domain,
			"hostedZoneId": cfg.HostedZoneID,
		}),
		stacktheory.NewNode(Distribution, stacktheory.KindDistribution, stacktheory.Properties{
			"origins":           []any{stacktheory.RefTo(SiteBucket, "regionalDomainName")},
			"certificate":       stacktheory.RefTo(Certificate, "arn"),
			"aliases":           []any{domain, "www." + domain},
			"defaultRootObject": "index.html",
			"apiOrigin":         stacktheory.RefTo(RestAPI, "url"),
		}),
		stacktheory.NewNode(AliasRecord, stacktheory.KindRecord, stacktheory.Properties{
			"zoneId":     stacktheory.RefTo(HostedZone, "id"),
			"recordName": domain,
			"recordType": "A",
			"target":     stacktheory.RefTo(Distribution, "domainName"),
		}),
		stacktheory.NewNode(Table, stacktheory.KindTable, stacktheory.Properties{
			"tableName":    tableName,
			"partitionKey": "pk",
			"sortKey":      "sk",
			"billingMode":  "PAY_PER_REQUEST",
			"stream":       "NEW_AND_OLD_IMAGES",
		}),
		stacktheory.NewNode(Secret, stacktheory.KindSecret, stacktheory.Properties{
			"name":        naming.SecretName(app, "api", stage, tenant),
			"description": "API credentials for " + naming.BaseName(app, stage, tenant),
		}),
		stacktheory.NewNode(APIFunction, stacktheory.KindFunction, stacktheory.Properties{
			"functionName": naming.FunctionName(app, "api", stage, tenant),
			"handler":      "bootstrap",
			"runtime":      functionRuntime,
			"memorySize":   256,
			"timeout":      30,
			"environment": map[string]any{
				"TABLE_NAME":  stacktheory.RefTo(Table, "name"),
				"SECRET_ARN":  stacktheory.RefTo(Secret, "arn"),
				"DOMAIN_NAME": domain,
			},
		}),
		stacktheory.NewNode(WorkerFunction, stacktheory.KindFunction, stacktheory.Properties{
			"functionName": naming.FunctionName(app, "worker", stage, tenant),
			"handler":      "bootstrap",
			"runtime":      functionRuntime,
			"memorySize":   512,
			"timeout":      300,
			"eventSource":  stacktheory.RefTo(Table, "streamArn"),
			"environment": map[string]any{
				"TABLE_NAME": stacktheory.RefTo(Table, "name"),
			},
		}),
		stacktheory.NewNode(RestAPI, stacktheory.KindRestAPI, stacktheory.Properties{
			"name":        naming.ResourceName(app, "api", stage, tenant),
			"stageName":   naming.NormalizeStage(stage),
			"integration": stacktheory.RefTo(APIFunction, "invokeArn"),
			"handlerArn":  stacktheory.RefTo(APIFunction, "arn"),
		}),
	}, nil
}

type builtinFunc func(config.Config) ([]*stacktheory.Node, error)

var builtins = map[string]builtinFunc{
	"static-site": StaticSite,
}

// Builtins returns the names accepted by Builtin.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Builtin returns a named built-in topology.
func Builtin(name string, cfg config.Config) ([]*stacktheory.Node, error) {
	fn, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown topology %q (available: %s)", name, strings.Join(Builtins(), ", "))
	}
	return fn(cfg)
}

// Load resolves a topology argument: a built-in name or a file path.
func Load(source string, cfg config.Config) ([]*stacktheory.Node, error) {
	if _, ok := builtins[strings.ToLower(strings.TrimSpace(source))]; ok {
		return Builtin(source, cfg)
	}
	return LoadFile(source, cfg)
}

// LoadFile reads a topology file, choosing the format by extension.
func LoadFile(path string, cfg config.Config) ([]*stacktheory.Node, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAMLFile(path, cfg)
	case ".hcl":
		return loadHCLFile(path, cfg)
	default:
		return nil, fmt.Errorf("unsupported topology file %q: expected .yaml, .yml or .hcl", path)
	}
}
