package logging

import (
	"fmt"
	"strings"
)

// OperationError records which step of which feature failed.
type OperationError struct {
	Operation string
	Feature   string
	RequestID string
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	var tags []string
	if e.Feature != "" {
		tags = append(tags, "feature="+e.Feature)
	}
	if e.RequestID != "" {
		tags = append(tags, "request_id="+e.RequestID)
	}
	if len(tags) == 0 {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Operation, strings.Join(tags, " "), e.Err)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps err; a nil err stays nil.
func NewOperationError(operation, feature, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, Feature: feature, RequestID: requestID, Err: err}
}
