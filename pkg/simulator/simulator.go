// Package simulator provisions plans in process, producing the outputs a
// real provider would report without calling one.
package simulator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/deploy"
)

const (
	DefaultAccount = "000000000000"
	DefaultRegion  = "us-east-1"
)

// Simulator implements deploy.Backend. Outputs are a pure function of the
// node id, its resolved properties, the account and the region.
type Simulator struct {
	account string
	region  string
	latency time.Duration

	mu        sync.Mutex
	failures  map[string]error
	resources map[string]stacktheory.Kind
	calls     int
}

var _ deploy.Backend = (*Simulator)(nil)

type Option func(*Simulator)

func WithAccount(account string) Option {
	return func(s *Simulator) {
		if account = strings.TrimSpace(account); account != "" {
			s.account = account
		}
	}
}

func WithRegion(region string) Option {
	return func(s *Simulator) {
		if region = strings.TrimSpace(region); region != "" {
			s.region = region
		}
	}
}

// WithFailure makes every operation on nodeID fail with err.
func WithFailure(nodeID string, err error) Option {
	return func(s *Simulator) {
		if err == nil {
			err = fmt.Errorf("simulated failure of %s", nodeID)
		}
		s.failures[nodeID] = err
	}
}

// WithLatency delays each operation, honoring context cancellation.
func WithLatency(d time.Duration) Option {
	return func(s *Simulator) {
		s.latency = d
	}
}

func New(opts ...Option) *Simulator {
	s := &Simulator{
		account:   DefaultAccount,
		region:    DefaultRegion,
		failures:  map[string]error{},
		resources: map[string]stacktheory.Kind{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

func (s *Simulator) Provision(ctx context.Context, op stacktheory.ProvisionOperation) (map[string]any, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if err, ok := s.failures[op.NodeID]; ok {
		return nil, err
	}

	if op.Operation == stacktheory.OperationDelete {
		delete(s.resources, op.NodeID)
		return nil, nil
	}

	if stacktheory.ContainsUnknown(op.ResolvedProperties) {
		return nil, &stacktheory.ValidationError{
			NodeID:  op.NodeID,
			Field:   "properties",
			Message: "properties still hold unresolved placeholders",
		}
	}

	outputs, err := s.outputs(op)
	if err != nil {
		return nil, err
	}
	s.resources[op.NodeID] = op.Kind
	return outputs, nil
}

// Exists reports whether a node is currently provisioned.
func (s *Simulator) Exists(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.resources[nodeID]
	return ok
}

// Calls returns how many operations were received.
func (s *Simulator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Simulator) outputs(op stacktheory.ProvisionOperation) (map[string]any, error) {
	props := op.ResolvedProperties
	seed := digest(s.account, s.region, op.NodeID)

	switch op.Kind {
	case stacktheory.KindBucket:
		name, err := requireString(op, "bucketName")
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"arn":                "arn:aws:s3:::" + name,
			"bucketName":         name,
			"domainName":         name + ".s3.amazonaws.com",
			"regionalDomainName": fmt.Sprintf("%s.s3.%s.amazonaws.com", name, s.region),
			"websiteUrl":         fmt.Sprintf("http://%s.s3-website-%s.amazonaws.com", name, s.region),
		}, nil

	case stacktheory.KindDistribution:
		id := "E" + strings.ToUpper(seed[:13])
		return map[string]any{
			"id":         id,
			"arn":        fmt.Sprintf("arn:aws:cloudfront::%s:distribution/%s", s.account, id),
			"domainName": "d" + seed[:13] + ".cloudfront.net",
		}, nil

	case stacktheory.KindCertificate:
		if arn := stringProp(props, "certificateArn"); arn != "" {
			return map[string]any{"arn": arn}, nil
		}
		if _, err := requireString(op, "domainName"); err != nil {
			return nil, err
		}
		return map[string]any{
			"arn": fmt.Sprintf("arn:aws:acm:us-east-1:%s:certificate/%s-%s-%s-%s-%s",
				s.account, seed[0:8], seed[8:12], seed[12:16], seed[16:20], seed[20:32]),
		}, nil

	case stacktheory.KindHostedZone:
		zone, err := requireString(op, "zoneName")
		if err != nil {
			return nil, err
		}
		id := stringProp(props, "hostedZoneId")
		if id == "" {
			id = "Z" + strings.ToUpper(seed[:13])
		}
		return map[string]any{
			"id":       id,
			"zoneName": strings.TrimSuffix(zone, "."),
			"nameServers": []any{
				"ns-" + seed[0:3] + ".awsdns-01.org",
				"ns-" + seed[3:6] + ".awsdns-02.co.uk",
				"ns-" + seed[6:9] + ".awsdns-03.com",
				"ns-" + seed[9:12] + ".awsdns-04.net",
			},
		}, nil

	case stacktheory.KindRecord:
		name, err := requireString(op, "recordName")
		if err != nil {
			return nil, err
		}
		return map[string]any{"fqdn": strings.TrimSuffix(name, ".") + "."}, nil

	case stacktheory.KindFunction:
		name := stringProp(props, "functionName")
		if name == "" {
			name = op.NodeID
		}
		arn := fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", s.region, s.account, name)
		return map[string]any{
			"arn":       arn,
			"name":      name,
			"invokeArn": fmt.Sprintf("arn:aws:apigateway:%s:lambda:path/2015-03-31/functions/%s/invocations", s.region, arn),
		}, nil

	case stacktheory.KindRestAPI:
		id := seed[:10]
		stage := stringProp(props, "stageName")
		if stage == "" {
			stage = "prod"
		}
		return map[string]any{
			"id":             id,
			"arn":            fmt.Sprintf("arn:aws:apigateway:%s::/restapis/%s", s.region, id),
			"url":            fmt.Sprintf("https://%s.execute-api.%s.amazonaws.com/%s/", id, s.region, stage),
			"rootResourceId": seed[10:20],
		}, nil

	case stacktheory.KindTable:
		name := stringProp(props, "tableName")
		if name == "" {
			name = op.NodeID
		}
		arn := fmt.Sprintf("arn:aws:dynamodb:%s:%s:table/%s", s.region, s.account, name)
		return map[string]any{
			"arn":       arn,
			"name":      name,
			"streamArn": arn + "/stream/" + seed[:16],
		}, nil

	case stacktheory.KindSecret:
		name, err := requireString(op, "name")
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"arn":  fmt.Sprintf("arn:aws:secretsmanager:%s:%s:secret:%s-%s", s.region, s.account, name, seed[:6]),
			"name": name,
		}, nil
	}

	return nil, &stacktheory.ValidationError{NodeID: op.NodeID, Field: "kind", Message: fmt.Sprintf("unsupported kind %q", op.Kind)}
}

func requireString(op stacktheory.ProvisionOperation, key string) (string, error) {
	v := stringProp(op.ResolvedProperties, key)
	if v == "" {
		return "", &stacktheory.ValidationError{NodeID: op.NodeID, Field: key, Message: "must be a non-empty string"}
	}
	return v, nil
}

func stringProp(props stacktheory.Properties, key string) string {
	v, _ := props[key].(string)
	return strings.TrimSpace(v)
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
