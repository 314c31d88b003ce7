package template

import (
	"errors"
	"fmt"
)

// UnknownTemplateError is returned when a template name or root index is
// not registered.
type UnknownTemplateError struct {
	Name  string
	Index int
	Roots int // 0 when the name itself is unknown
}

func (e *UnknownTemplateError) Error() string {
	if e.Roots > 0 {
		return fmt.Sprintf("template %q has %d roots, index %d out of range", e.Name, e.Roots, e.Index)
	}
	return fmt.Sprintf("template %q is not registered", e.Name)
}

// MismatchError is returned when different content is registered under a
// name that is already taken.
type MismatchError struct {
	Name       string
	Registered string
	Offered    string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("template %q already registered with hash %s, refusing %s",
		e.Name, short(e.Registered), short(e.Offered))
}

// IsUnknownTemplate returns true if err wraps an *UnknownTemplateError.
func IsUnknownTemplate(err error) bool {
	var ut *UnknownTemplateError
	return errors.As(err, &ut)
}

// IsMismatch returns true if err wraps a *MismatchError.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
