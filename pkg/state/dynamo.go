package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	tablecore "github.com/theory-cloud/tabletheory/pkg/core"
	tableerrors "github.com/theory-cloud/tabletheory/pkg/errors"

	stacktheory "github.com/theory-cloud/stacktheory"
)

// resourceRecord is the DynamoDB representation of a stored resource.
// Property and output bags are stored as JSON so arbitrary nesting survives.
type resourceRecord struct {
	Stack        string    `theorydb:"pk" json:"stack"`
	NodeID       string    `theorydb:"sk" json:"nodeId"`
	Kind         string    `json:"kind"`
	Properties   string    `json:"properties,omitempty"`
	Outputs      string    `json:"outputs,omitempty"`
	Dependencies []string  `json:"dependencies,omitempty"`
	DeploymentID string    `json:"deploymentId,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (resourceRecord) TableName() string {
	if name := os.Getenv("STACKTHEORY_STATE_TABLE"); name != "" {
		return name
	}
	return "stacktheory-state"
}

// DynamoStore implements Store using DynamoDB via TableTheory.
type DynamoStore struct {
	db tablecore.DB
}

var _ Store = (*DynamoStore)(nil)

func NewDynamoStore(db tablecore.DB) *DynamoStore {
	return &DynamoStore{db: db}
}

// Load pages through every record of the stack.
func (d *DynamoStore) Load(ctx context.Context, stack string) ([]Resource, error) {
	if strings.TrimSpace(stack) == "" {
		return nil, ErrStackRequired
	}

	var out []Resource
	cursor := ""
	for {
		q := d.db.Model(&resourceRecord{}).
			WithContext(ctx).
			Where("Stack", "=", stack)
		if cursor != "" {
			q = q.Cursor(cursor)
		}

		var page []resourceRecord
		result, err := q.AllPaginated(&page)
		if err != nil {
			return nil, fmt.Errorf("load state for %s: %w", stack, err)
		}
		for i := range page {
			r, err := recordToResource(&page[i])
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}

		if result == nil || !result.HasMore || strings.TrimSpace(result.NextCursor) == "" {
			break
		}
		cursor = result.NextCursor
	}

	sortResources(out)
	return out, nil
}

// Put stores a resource, overwriting any existing record for the node.
func (d *DynamoStore) Put(ctx context.Context, resource Resource) error {
	if strings.TrimSpace(resource.Stack) == "" {
		return ErrStackRequired
	}
	record, err := resourceToRecord(resource)
	if err != nil {
		return err
	}
	return d.db.Model(record).WithContext(ctx).Create()
}

func (d *DynamoStore) Delete(ctx context.Context, stack, nodeID string) error {
	if strings.TrimSpace(stack) == "" {
		return ErrStackRequired
	}
	err := d.db.Model(&resourceRecord{}).
		WithContext(ctx).
		Where("Stack", "=", stack).
		Where("NodeID", "=", nodeID).
		Delete()
	if err != nil && !tableerrors.IsNotFound(err) {
		return fmt.Errorf("delete %s/%s: %w", stack, nodeID, err)
	}
	return nil
}

func resourceToRecord(r Resource) (*resourceRecord, error) {
	props, err := encodeBag(r.Properties)
	if err != nil {
		return nil, fmt.Errorf("encode properties of %s: %w", r.NodeID, err)
	}
	outputs, err := encodeBag(r.Outputs)
	if err != nil {
		return nil, fmt.Errorf("encode outputs of %s: %w", r.NodeID, err)
	}
	return &resourceRecord{
		Stack:        r.Stack,
		NodeID:       r.NodeID,
		Kind:         string(r.Kind),
		Properties:   props,
		Outputs:      outputs,
		Dependencies: r.Dependencies,
		DeploymentID: r.DeploymentID,
		UpdatedAt:    r.UpdatedAt.UTC(),
	}, nil
}

func recordToResource(rec *resourceRecord) (Resource, error) {
	props, err := decodeBag(rec.Properties)
	if err != nil {
		return Resource{}, fmt.Errorf("decode properties of %s: %w", rec.NodeID, err)
	}
	outputs, err := decodeBag(rec.Outputs)
	if err != nil {
		return Resource{}, fmt.Errorf("decode outputs of %s: %w", rec.NodeID, err)
	}
	return Resource{
		Stack:        rec.Stack,
		NodeID:       rec.NodeID,
		Kind:         stacktheory.Kind(rec.Kind),
		Properties:   props,
		Outputs:      outputs,
		Dependencies: rec.Dependencies,
		DeploymentID: rec.DeploymentID,
		UpdatedAt:    rec.UpdatedAt,
	}, nil
}

func encodeBag[M ~map[string]any](bag M) (string, error) {
	if len(bag) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(bag)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeBag(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
