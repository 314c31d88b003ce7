package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/nodesync/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// KindSpec errors (E101-E109)
	ErrKindNameEmpty     = "E101" // kind name is required
	ErrInvalidAttrType   = "E102" // invalid attribute type string
	ErrDuplicateName     = "E103" // duplicate kind, attribute or template name
	ErrDefaultMismatch   = "E104" // default value does not match declared type
	ErrReservedAttribute = "E105" // attribute name collides with the handle attribute

	// Template errors (E110-E119)
	ErrTemplateNoRoots       = "E110" // template has no roots
	ErrUnknownKind           = "E111" // template node references an undeclared kind
	ErrUnknownAttribute      = "E112" // template node sets an undeclared attribute
	ErrAttributeTypeMismatch = "E113" // template attribute value has the wrong type
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Bundle is the compiled content of a definitions directory.
type Bundle struct {
	Kinds     []ir.KindSpec `json:"kinds"`
	Templates []ir.Template `json:"templates"`
}

// Kind returns the kind with the given name.
func (b *Bundle) Kind(name string) (*ir.KindSpec, bool) {
	for i := range b.Kinds {
		if b.Kinds[i].Name == name {
			return &b.Kinds[i], true
		}
	}
	return nil, false
}

// Validate checks a bundle and returns all errors found (does not fail-fast).
// reserved is the back-reference attribute name; kinds may not declare it.
func Validate(b *Bundle, reserved string) []ValidationError {
	var errs []ValidationError

	kindNames := make(map[string]bool)
	for i := range b.Kinds {
		k := &b.Kinds[i]
		if kindNames[k.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("kinds[%d].name", i),
				Message: fmt.Sprintf("duplicate kind name: %q", k.Name),
				Code:    ErrDuplicateName,
			})
		}
		kindNames[k.Name] = true
		errs = append(errs, validateKind(k, fmt.Sprintf("kinds[%d]", i), reserved)...)
	}

	tmplNames := make(map[string]bool)
	for i := range b.Templates {
		t := &b.Templates[i]
		field := fmt.Sprintf("templates[%d]", i)
		if tmplNames[t.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate template name: %q", t.Name),
				Code:    ErrDuplicateName,
			})
		}
		tmplNames[t.Name] = true

		if len(t.Roots) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".roots",
				Message: fmt.Sprintf("template %q has no roots", t.Name),
				Code:    ErrTemplateNoRoots,
			})
		}
		for j, root := range t.Roots {
			errs = append(errs, validateTemplateNode(b, root, fmt.Sprintf("%s.roots[%d]", field, j))...)
		}
	}

	return errs
}

func validateKind(k *ir.KindSpec, field, reserved string) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(k.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".name",
			Message: "kind name is required and must be non-empty",
			Code:    ErrKindNameEmpty,
		})
	}

	attrNames := make(map[string]bool)
	for i, a := range k.Attrs {
		attrField := fmt.Sprintf("%s.attrs[%d]", field, i)

		if attrNames[a.Name] {
			errs = append(errs, ValidationError{
				Field:   attrField,
				Message: fmt.Sprintf("duplicate attribute name: %q", a.Name),
				Code:    ErrDuplicateName,
			})
		}
		attrNames[a.Name] = true

		if reserved != "" && a.Name == reserved {
			errs = append(errs, ValidationError{
				Field:   attrField,
				Message: fmt.Sprintf("attribute %q is reserved for back-reference handles", a.Name),
				Code:    ErrReservedAttribute,
			})
		}

		if !ir.ValidAttrTypes[a.Type] {
			errs = append(errs, ValidationError{
				Field:   attrField + ".type",
				Message: fmt.Sprintf("invalid type %q for attribute %q", a.Type, a.Name),
				Code:    ErrInvalidAttrType,
			})
			continue
		}

		if a.Default != nil && !a.Type.Accepts(a.Default) {
			errs = append(errs, ValidationError{
				Field:   attrField + ".default",
				Message: fmt.Sprintf("default for %q is %s, want %s", a.Name, ir.TypeOf(a.Default), a.Type),
				Code:    ErrDefaultMismatch,
			})
		}
	}

	return errs
}

func validateTemplateNode(b *Bundle, n ir.TemplateNode, field string) []ValidationError {
	var errs []ValidationError

	kind, ok := b.Kind(n.Kind)
	if !ok {
		errs = append(errs, ValidationError{
			Field:   field + ".kind",
			Message: fmt.Sprintf("unknown kind %q", n.Kind),
			Code:    ErrUnknownKind,
		})
	} else {
		for _, name := range n.Attrs.SortedKeys() {
			value := n.Attrs[name]
			spec, declared := kind.Attr(name)
			if !declared {
				errs = append(errs, ValidationError{
					Field:   field + ".attrs." + name,
					Message: fmt.Sprintf("kind %q has no attribute %q", kind.Name, name),
					Code:    ErrUnknownAttribute,
				})
				continue
			}
			if !spec.Type.Accepts(value) {
				errs = append(errs, ValidationError{
					Field:   field + ".attrs." + name,
					Message: fmt.Sprintf("attribute %q is %s, want %s", name, ir.TypeOf(value), spec.Type),
					Code:    ErrAttributeTypeMismatch,
				})
			}
		}
	}

	for i, c := range n.Children {
		errs = append(errs, validateTemplateNode(b, c, fmt.Sprintf("%s.children[%d]", field, i))...)
	}

	return errs
}
