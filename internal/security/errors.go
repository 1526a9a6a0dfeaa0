package security

import (
	"errors"
	"fmt"
)

// ErrViolation is matched by every scan rejection.
var ErrViolation = errors.New("security violation")

// ViolationError describes why a payload was rejected.
type ViolationError struct {
	// Rule is the rule name or the built-in check that fired.
	Rule string
	// Path locates the offending value, e.g. "data.items[2].name".
	Path    string
	Message string
}

// Error implements error. The path is omitted so that the message can be
// returned to clients unchanged.
func (e *ViolationError) Error() string {
	return e.Message
}

// Is matches ErrViolation.
func (e *ViolationError) Is(target error) bool {
	return target == ErrViolation
}

// Detail includes the location of the violation, for logs.
func (e *ViolationError) Detail() string {
	if e.Path == "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Rule)
	}
	return fmt.Sprintf("%s at %s (%s)", e.Message, e.Path, e.Rule)
}

func violation(rule, path, message string) *ViolationError {
	return &ViolationError{Rule: rule, Path: path, Message: message}
}
