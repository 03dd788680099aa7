package deploy

import (
	"fmt"
	"slices"
	"time"

	stacktheory "github.com/theory-cloud/stacktheory"
)

// Status is the lifecycle state of a deployment.
type Status string

const (
	StatusPending      Status = "pending"
	StatusPlanned      Status = "planned"
	StatusProvisioning Status = "provisioning"
	StatusDone         Status = "done"
	StatusFailed       Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending:      {StatusPlanned, StatusFailed},
	StatusPlanned:      {StatusProvisioning, StatusFailed},
	StatusProvisioning: {StatusDone, StatusFailed},
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// TransitionError is returned for a move the lifecycle does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("deploy: illegal transition %s -> %s", e.From, e.To)
}

// Deployment tracks one execution of a plan.
type Deployment struct {
	ID         string            `json:"id"`
	Stack      string            `json:"stack"`
	Status     Status            `json:"status"`
	Plan       *stacktheory.Plan `json:"plan,omitempty"`
	Results    []Result          `json:"results,omitempty"`
	StartedAt  time.Time         `json:"started_at,omitzero"`
	FinishedAt time.Time         `json:"finished_at,omitzero"`
}

func NewDeployment(id, stack string) *Deployment {
	return &Deployment{ID: id, Stack: stack, Status: StatusPending}
}

// Transition moves the deployment to the given status.
func (d *Deployment) Transition(to Status) error {
	if !slices.Contains(transitions[d.Status], to) {
		return &TransitionError{From: d.Status, To: to}
	}
	d.Status = to
	return nil
}

// Failed returns the results that did not succeed.
func (d *Deployment) Failed() []Result {
	var out []Result
	for _, r := range d.Results {
		if r.Status == NodeFailed || r.Status == NodeSkipped {
			out = append(out, r)
		}
	}
	return out
}
