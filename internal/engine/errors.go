package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateTask rejects a second create with a previously used
	// transaction id. Raised before any ledger call.
	ErrDuplicateTask = errors.New("task with this transaction id already exists")
	ErrTaskNotFound  = errors.New("task not found")
	ErrUserNotFound  = errors.New("user not found")
	// ErrInvalidStateForExecution rejects execution of blocked or
	// cancelled tasks. Stored and executed both allow execution; the
	// latter only appends proofs.
	ErrInvalidStateForExecution = errors.New("task state does not allow execution")
	ErrNoProofsProvided         = errors.New("at least one execution proof is required")
	ErrInvalidModerationState   = errors.New("moderation state must be blocked or cancelled")
)

// InvalidPayloadError reports a variant-specific shape violation, rejected
// before the repository or ledger are touched.
type InvalidPayloadError struct {
	TaskType string
	Field    string
	Reason   string
}

func (e *InvalidPayloadError) Error() string {
	if e.TaskType == "" {
		return fmt.Sprintf("invalid payload: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s payload: %s %s", e.TaskType, e.Field, e.Reason)
}

func payloadErr(taskType, field, reason string) error {
	return &InvalidPayloadError{TaskType: taskType, Field: field, Reason: reason}
}
