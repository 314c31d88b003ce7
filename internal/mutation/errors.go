package mutation

import (
	"errors"
	"fmt"
)

// ContractViolation reports an edit-script the machine refuses to apply.
// Every violation means the upstream diff engine emitted a malformed
// script; none is recoverable.
type ContractViolation struct {
	// Code identifies the violation category.
	Code ViolationCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying error, if one caused the violation.
	Err error
}

// ViolationCode categorizes contract violations.
type ViolationCode string

const (
	// ErrCodeStackNotEmpty indicates nodes were left on the stack at the end of a script.
	ErrCodeStackNotEmpty ViolationCode = "STACK_NOT_EMPTY"

	// ErrCodeStackUnderflow indicates an op needed more stack entries than exist.
	ErrCodeStackUnderflow ViolationCode = "STACK_UNDERFLOW"

	// ErrCodeUnsupportedOp indicates an op outside the vocabulary.
	ErrCodeUnsupportedOp ViolationCode = "UNSUPPORTED_OP"

	// ErrCodeInvalidPath indicates a child-index path left the live tree.
	ErrCodeInvalidPath ViolationCode = "INVALID_PATH"

	// ErrCodeNoParent indicates a splice target has no parent to splice into.
	ErrCodeNoParent ViolationCode = "NO_PARENT"

	// ErrCodeRootAnchor indicates an op tried to rebind, replace or remove id 0.
	ErrCodeRootAnchor ViolationCode = "ROOT_ANCHOR"

	// ErrCodeBadHandle indicates the handle attribute carried something other than a handle.
	ErrCodeBadHandle ViolationCode = "BAD_HANDLE"

	// ErrCodeUnknownTemplate indicates LoadTemplate named an unregistered template.
	ErrCodeUnknownTemplate ViolationCode = "UNKNOWN_TEMPLATE"

	// ErrCodeAttribute indicates the adapter rejected an attribute.
	ErrCodeAttribute ViolationCode = "ATTRIBUTE"
)

// Error implements the error interface.
func (e *ContractViolation) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ContractViolation) Unwrap() error {
	return e.Err
}

// ApplyError locates a failure inside a script.
type ApplyError struct {
	Index int
	Op    Op
	Err   error
}

func (e *ApplyError) Error() string {
	if e.Op == nil {
		return fmt.Sprintf("op %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("op %d %s: %v", e.Index, Format(e.Op), e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// IsContractViolation returns true if err wraps a *ContractViolation.
func IsContractViolation(err error) bool {
	var cv *ContractViolation
	return errors.As(err, &cv)
}

// ViolationCodeOf returns the code of the first *ContractViolation in err's
// chain, or "" if there is none.
func ViolationCodeOf(err error) ViolationCode {
	var cv *ContractViolation
	if errors.As(err, &cv) {
		return cv.Code
	}
	return ""
}

func violation(code ViolationCode, format string, args ...any) *ContractViolation {
	return &ContractViolation{Code: code, Message: fmt.Sprintf(format, args...)}
}
