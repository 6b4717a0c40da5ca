// Package grading turns a project analysis and a rubric into a GradeResult
// using one configured AI vendor.
package grading

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable reports that a backend cannot serve requests, usually
// because its credentials are missing or were rejected.
var ErrUnavailable = errors.New("grading backend unavailable")

// Request is the rendered grading request sent to a backend.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Backend dispatches a rendered request to one vendor and returns the
// generated text.
type Backend interface {
	Name() string
	Available() bool
	Complete(ctx context.Context, req Request) (string, error)
}

// DispatchError is returned when a grading request fails at the HTTP or
// transport level. StatusCode is zero for transport failures.
type DispatchError struct {
	Backend    string
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s dispatch failed (HTTP %d): %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s dispatch failed: %v", e.Backend, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// dispatchError builds a DispatchError. Credential rejections also match
// ErrUnavailable.
func dispatchError(backend string, status int, err error) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &DispatchError{Backend: backend, StatusCode: status, Err: err}
}
