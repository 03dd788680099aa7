package stacktheory

import (
	"fmt"
	"strings"
)

// Kind tags the managed service a node stands for.
type Kind string

const (
	KindBucket       Kind = "Bucket"
	KindDistribution Kind = "Distribution"
	KindCertificate  Kind = "Certificate"
	KindHostedZone   Kind = "HostedZone"
	KindRecord       Kind = "Record"
	KindFunction     Kind = "Function"
	KindRestAPI      Kind = "RestApi"
	KindTable        Kind = "Table"
	KindSecret       Kind = "Secret"
)

// Schema lists the properties a kind requires and the outputs it produces
// once provisioned.
type Schema struct {
	Required []string
	Outputs  []string
}

// HasOutput reports whether name is one of the schema's outputs.
func (s Schema) HasOutput(name string) bool {
	for _, out := range s.Outputs {
		if out == name {
			return true
		}
	}
	return false
}

var schemas = map[Kind]Schema{
	KindBucket: {
		Required: []string{"bucketName"},
		Outputs:  []string{"arn", "bucketName", "domainName", "regionalDomainName", "websiteUrl"},
	},
	KindDistribution: {
		Required: []string{"origins"},
		Outputs:  []string{"id", "arn", "domainName"},
	},
	KindCertificate: {
		Required: []string{"domainName"},
		Outputs:  []string{"arn"},
	},
	KindHostedZone: {
		Required: []string{"zoneName"},
		Outputs:  []string{"id", "zoneName", "nameServers"},
	},
	KindRecord: {
		Required: []string{"zoneId", "recordName", "target"},
		Outputs:  []string{"fqdn"},
	},
	KindFunction: {
		Required: []string{"handler", "runtime"},
		Outputs:  []string{"arn", "name", "invokeArn"},
	},
	KindRestAPI: {
		Required: []string{"name"},
		Outputs:  []string{"id", "arn", "url", "rootResourceId"},
	},
	KindTable: {
		Required: []string{"partitionKey"},
		Outputs:  []string{"arn", "name", "streamArn"},
	},
	KindSecret: {
		Required: []string{"name"},
		Outputs:  []string{"arn", "name"},
	},
}

var kindOrder = []Kind{
	KindBucket,
	KindDistribution,
	KindCertificate,
	KindHostedZone,
	KindRecord,
	KindFunction,
	KindRestAPI,
	KindTable,
	KindSecret,
}

// Kinds returns every supported kind.
func Kinds() []Kind {
	return append([]Kind(nil), kindOrder...)
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	_, ok := schemas[k]
	return ok
}

func (k Kind) String() string {
	return string(k)
}

// SchemaFor returns the schema of k.
func SchemaFor(k Kind) (Schema, bool) {
	s, ok := schemas[k]
	return s, ok
}

// ParseKind maps a kind name to a Kind. Matching ignores case, dashes and
// underscores, so "rest_api" and "restapi" both yield KindRestAPI.
func ParseKind(name string) (Kind, error) {
	want := normalizeKindName(name)
	for _, k := range kindOrder {
		if normalizeKindName(string(k)) == want {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown resource kind %q", name)
}

func normalizeKindName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "")
	name = strings.ReplaceAll(name, "-", "")
	return name
}
