package stacktheory

import (
	"errors"
	"fmt"
	"strings"
)

type coder interface {
	Code() string
}

// ErrorCode returns the stable code of the first coded error in err's chain,
// or "" when none is present.
func ErrorCode(err error) string {
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// DuplicateIDError reports a node id that is already registered in the graph.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s: node %q is already declared", ErrorCodeDuplicateID, e.ID)
}

func (e *DuplicateIDError) Code() string { return ErrorCodeDuplicateID }

// CyclicDependencyError reports a dependency cycle. Path lists node ids in
// dependency direction and ends with its first element.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrorCodeCyclicDependency, strings.Join(e.Path, " -> "))
}

func (e *CyclicDependencyError) Code() string { return ErrorCodeCyclicDependency }

// UnresolvedReferenceError reports a reference to a node that does not exist
// or to an output that is not available at that point of the plan.
type UnresolvedReferenceError struct {
	From   string
	Ref    Ref
	Reason string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("%s: %s references %s: %s", ErrorCodeUnresolvedReference, e.From, e.Ref, e.Reason)
}

func (e *UnresolvedReferenceError) Code() string { return ErrorCodeUnresolvedReference }

// DependencyFailedError marks a node that was not provisioned because one of
// its prerequisites failed.
type DependencyFailedError struct {
	NodeID     string
	Dependency string
	Cause      error
}

func (e *DependencyFailedError) Error() string {
	msg := fmt.Sprintf("%s: %s skipped because %s failed", ErrorCodeDependencyFailed, e.NodeID, e.Dependency)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DependencyFailedError) Code() string { return ErrorCodeDependencyFailed }

func (e *DependencyFailedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// MissingConfigError reports a configuration value that must be present.
type MissingConfigError struct {
	Key string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("%s: %s is required", ErrorCodeMissingConfig, e.Key)
}

func (e *MissingConfigError) Code() string { return ErrorCodeMissingConfig }

// ValidationError reports a node that does not satisfy its kind's schema.
type ValidationError struct {
	NodeID  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrorCodeValidationFailed)
	b.WriteString(": ")
	if e.NodeID != "" {
		b.WriteString(e.NodeID)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *ValidationError) Code() string { return ErrorCodeValidationFailed }
