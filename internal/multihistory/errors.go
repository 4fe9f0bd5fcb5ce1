package multihistory

import (
	"errors"
	"fmt"
	"strings"
)

// Registry errors.
var (
	// ErrInvalidConfiguration indicates options that failed validation.
	ErrInvalidConfiguration = errors.New("invalid history configuration")

	// ErrUnknownHistoryKey indicates a key that has no registered ledger.
	ErrUnknownHistoryKey = errors.New("unknown history key")

	// ErrAlreadyBound indicates a second Bind on the same registry.
	ErrAlreadyBound = errors.New("registry is already bound")

	// ErrHistoryExists indicates AddHistory for a key that is registered.
	ErrHistoryExists = errors.New("history already exists")
)

// Violation is a single failed option check.
type Violation struct {
	Field   string
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("'%s' %s", v.Field, v.Message)
}

// ConfigError lists every violation found while validating Options.
type ConfigError struct {
	Violations []Violation
}

func (e *ConfigError) add(field, message string) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: message})
}

// asError returns nil if nothing was collected.
func (e *ConfigError) asError() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

func (e *ConfigError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("the following errors occurred when validating the options:\n  - %s",
		strings.Join(msgs, "\n  - "))
}

// Is reports whether target is ErrInvalidConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// UnknownKeyError names a key with no ledger and the keys that have one.
type UnknownKeyError struct {
	Key   string
	Valid []string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("%q is not a valid history key, valid keys are [%s]",
		e.Key, strings.Join(e.Valid, ", "))
}

// Is reports whether target is ErrUnknownHistoryKey.
func (e *UnknownKeyError) Is(target error) bool {
	return target == ErrUnknownHistoryKey
}
