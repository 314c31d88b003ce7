package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/nodesync/internal/ir"
	"github.com/roach88/nodesync/internal/mutation"
)

// marshalTemplate converts a template to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalTemplate(t ir.Template) (string, error) {
	data, err := ir.MarshalCanonical(ir.TemplateValue(t))
	if err != nil {
		return "", fmt.Errorf("marshal template %q: %w", t.Name, err)
	}
	return string(data), nil
}

// unmarshalTemplate parses canonical JSON TEXT back into a template.
// Integers survive as ir.Int via json.Number.
func unmarshalTemplate(data string) (ir.Template, error) {
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return ir.Template{}, fmt.Errorf("unmarshal template: %w", err)
	}
	return ir.TemplateFromValue(v)
}

// marshalOp renders one op as canonical JSON TEXT and extracts its element
// operand, if it has one.
func marshalOp(o mutation.Op) (string, *int64, error) {
	fields := mutation.Fields(o)
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", nil, fmt.Errorf("marshal op %s: %w", o.Kind(), err)
	}
	var element *int64
	if id, ok := fields["id"].(ir.Int); ok {
		e := int64(id)
		element = &e
	}
	return string(data), element, nil
}

// marshalRoots stores the observed root names as a JSON array.
func marshalRoots(roots []string) (string, error) {
	if roots == nil {
		roots = []string{}
	}
	data, err := json.Marshal(roots)
	if err != nil {
		return "", fmt.Errorf("marshal roots: %w", err)
	}
	return string(data), nil
}

func unmarshalRoots(data string) ([]string, error) {
	var roots []string
	if err := json.Unmarshal([]byte(data), &roots); err != nil {
		return nil, fmt.Errorf("unmarshal roots: %w", err)
	}
	return roots, nil
}
