package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/nodesync/internal/ir"
)

// CompileTemplate parses a CUE value into a Template.
// The template name is the last selector of the value's path.
func CompileTemplate(v cue.Value) (*ir.Template, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	tmpl := &ir.Template{Name: lastLabel(v)}

	rootsVal := v.LookupPath(cue.ParsePath("roots"))
	if !rootsVal.Exists() {
		return nil, &CompileError{
			Field:   "roots",
			Message: "roots is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := rootsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		node, err := compileTemplateNode(iter.Value(), fmt.Sprintf("roots[%d]", i))
		if err != nil {
			return nil, err
		}
		tmpl.Roots = append(tmpl.Roots, node)
	}

	if len(tmpl.Roots) == 0 {
		return nil, &CompileError{
			Field:   "roots",
			Message: "at least one root is required",
			Pos:     rootsVal.Pos(),
		}
	}

	return tmpl, nil
}

func compileTemplateNode(v cue.Value, field string) (ir.TemplateNode, error) {
	var node ir.TemplateNode

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return node, &CompileError{
			Field:   field + ".kind",
			Message: "kind is required",
			Pos:     v.Pos(),
		}
	}
	kind, err := kindVal.String()
	if err != nil {
		return node, formatCUEError(err)
	}
	node.Kind = kind

	attrsVal := v.LookupPath(cue.ParsePath("attrs"))
	if attrsVal.Exists() {
		attrs, err := compileValue(attrsVal)
		if err != nil {
			return node, err
		}
		m, ok := attrs.(ir.Map)
		if !ok {
			return node, &CompileError{
				Field:   field + ".attrs",
				Message: "attrs must be a struct",
				Pos:     attrsVal.Pos(),
			}
		}
		node.Attrs = m
	}

	childrenVal := v.LookupPath(cue.ParsePath("children"))
	if childrenVal.Exists() {
		iter, err := childrenVal.List()
		if err != nil {
			return node, formatCUEError(err)
		}
		for i := 0; iter.Next(); i++ {
			child, err := compileTemplateNode(iter.Value(), fmt.Sprintf("%s.children[%d]", field, i))
			if err != nil {
				return node, err
			}
			node.Children = append(node.Children, child)
		}
	}

	return node, nil
}
