package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")

	ErrEmptyText       = errors.New("lesson text cannot be empty")
	ErrInvalidDateTime = errors.New("invalid date/time, expected YYYY-MM-DD HH:MM")
	ErrInvalidTopic    = errors.New("topic id must be a non-negative integer")
	ErrInvalidFormat   = errors.New("invalid format")
	ErrUnknownField    = errors.New("unknown lesson field")

	// ErrPersistence is wrapped by every PersistenceError.
	ErrPersistence = errors.New("persistence failed")

	// ErrDelivery is wrapped by every DeliveryError.
	ErrDelivery = errors.New("delivery failed")

	// ErrNoDestination means neither the lesson nor the process has a group chat.
	ErrNoDestination = errors.New("no destination chat configured")

	ErrNotFound = errors.New("lesson not found")
)

// ValidationError is a rejected user input. It is reported back to the
// user and never persisted.
type ValidationError struct {
	Field string
	Err   error
}

func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %v", ErrValidation, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrValidation, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error { return []error{ErrValidation, e.Err} }

// PersistenceError is an I/O failure loading or saving a collection.
type PersistenceError struct {
	Op         string // "load" or "save"
	Collection string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%v: %s %s: %v", ErrPersistence, e.Op, e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// DeliveryError is a failed send of a due lesson. The lesson stays pending.
type DeliveryError struct {
	LessonID string
	ChatID   int64
	TopicID  int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%v: lesson %s to chat %d topic %d: %v", ErrDelivery, e.LessonID, e.ChatID, e.TopicID, e.Err)
}

func (e *DeliveryError) Unwrap() []error { return []error{ErrDelivery, e.Err} }
