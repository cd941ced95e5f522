package apperrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrUnsupportedFile     = errors.New("unsupported file")
	ErrFileTooLarge        = errors.New("file too large")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// DefaultDisplayLimit is how many validation messages Error() spells out.
const DefaultDisplayLimit = 10

// ValidationError carries every row-level problem found while ingesting a
// spreadsheet. Messages always holds the complete list.
type ValidationError struct {
	Messages     []string
	DisplayLimit int
}

// NewValidationError creates a ValidationError with the default display limit.
func NewValidationError(messages []string) *ValidationError {
	return &ValidationError{Messages: messages, DisplayLimit: DefaultDisplayLimit}
}

func (e *ValidationError) Error() string {
	shown, hidden := e.Display()
	msg := "validation failed: " + strings.Join(shown, "; ")
	if hidden > 0 {
		msg += fmt.Sprintf(" (and %d more)", hidden)
	}
	return msg
}

// Display returns the messages to show to a user and how many were left out.
func (e *ValidationError) Display() ([]string, int) {
	limit := e.DisplayLimit
	if limit <= 0 {
		limit = DefaultDisplayLimit
	}
	if len(e.Messages) <= limit {
		return e.Messages, 0
	}
	return e.Messages[:limit], len(e.Messages) - limit
}

// MalformedInputError means the uploaded file could not be read as a
// spreadsheet at all, or its shape does not match the column template.
type MalformedInputError struct {
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed input: %s: %v", e.Reason, e.Err)
	}
	return "malformed input: " + e.Reason
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// PersistenceError wraps a failure of the storage collaborator.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UnbalancedChangesError rejects a confirmed change set whose impacts do not
// net to zero within tolerance. Alerts explain how to rebalance.
type UnbalancedChangesError struct {
	Balance decimal.Decimal
	Alerts  []string
}

func (e *UnbalancedChangesError) Error() string {
	return fmt.Sprintf("confirmed changes are unbalanced by S/ %s", e.Balance.StringFixed(2))
}
