package workflow

import (
	"errors"
	"fmt"

	"github.com/dukex/flowline/pkg/graph"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/protocol"
)

var (
	// ErrNotFound is returned for operations on a workflow id that was never registered.
	ErrNotFound = errors.New("workflow not found")
	// ErrInactive is returned when an event arrives for a registered but inactive workflow.
	ErrInactive = errors.New("workflow is not active")
	// ErrMissingCredentials is returned when activation lacks a required credential.
	ErrMissingCredentials = errors.New("missing required credentials")
	// ErrRunCancelled is recorded when a run is interrupted by context cancellation.
	ErrRunCancelled = errors.New("run cancelled")
	// ErrInvalidPayload is returned when a trigger adapter rejects an inbound payload.
	ErrInvalidPayload = errors.New("invalid trigger payload")
	// ErrStopped is returned when an event arrives after the manager started shutting down.
	ErrStopped = errors.New("workflow manager stopped")
)

// NodeExecutionError wraps a failure raised by a node during a run.
type NodeExecutionError struct {
	NodeID string
	Kind   models.NodeKind
	Err    error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.Kind, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the workflow id is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidGraph reports whether err is a structural or configuration problem of the graph.
func IsInvalidGraph(err error) bool {
	return graph.IsInvalidGraph(err)
}

// IsMissingCredentials reports whether activation failed for lack of credentials.
func IsMissingCredentials(err error) bool {
	return errors.Is(err, ErrMissingCredentials)
}

// IsInvalidPayload reports whether an inbound event was rejected before a run started.
func IsInvalidPayload(err error) bool {
	return errors.Is(err, ErrInvalidPayload)
}

// IsStop reports whether err was raised by a stopAndError node.
func IsStop(err error) bool {
	var stop *protocol.StopError

	return errors.As(err, &stop)
}

// runError returns the message recorded on a failed run. A stop keeps its message verbatim.
func runError(err error) string {
	var stop *protocol.StopError
	if errors.As(err, &stop) {
		return stop.Message
	}

	return err.Error()
}
