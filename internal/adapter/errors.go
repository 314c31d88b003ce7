package adapter

import (
	"errors"
	"fmt"
)

// AttributeErrorCode categorizes adapter boundary errors.
type AttributeErrorCode string

const (
	ErrCodeUnknownKind      AttributeErrorCode = "UNKNOWN_KIND"
	ErrCodeUnknownAttribute AttributeErrorCode = "UNKNOWN_ATTRIBUTE"
	ErrCodeTypeMismatch     AttributeErrorCode = "TYPE_MISMATCH"
)

// AttributeError is returned when a description or attribute write falls
// outside the schema.
type AttributeError struct {
	Code    AttributeErrorCode
	Kind    string
	Attr    string
	Message string
}

func (e *AttributeError) Error() string {
	switch {
	case e.Attr != "":
		return fmt.Sprintf("%s: %s.%s: %s", e.Code, e.Kind, e.Attr, e.Message)
	case e.Kind != "":
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Kind, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsAttributeError returns true if err wraps an *AttributeError.
func IsAttributeError(err error) bool {
	var ae *AttributeError
	return errors.As(err, &ae)
}
