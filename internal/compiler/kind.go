package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/nodesync/internal/ir"
)

// CompileKind parses a CUE value into a KindSpec.
// The kind name is the last selector of the value's path.
//
// Attributes may be declared in long form ({type: "int", default: 0}) or
// short form ("int"). Declaration order is preserved.
func CompileKind(v cue.Value) (*ir.KindSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.KindSpec{Name: lastLabel(v)}

	attrsVal := v.LookupPath(cue.ParsePath("attrs"))
	if !attrsVal.Exists() {
		return spec, nil
	}

	iter, err := attrsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		attr, err := compileAttr(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Attrs = append(spec.Attrs, attr)
	}

	return spec, nil
}

func compileAttr(name string, v cue.Value) (ir.AttrSpec, error) {
	attr := ir.AttrSpec{Name: name}

	// Short form: gap: "int"
	if s, err := v.String(); err == nil {
		attr.Type = ir.AttrType(s)
		return attr, nil
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return attr, &CompileError{
			Field:   "attrs." + name + ".type",
			Message: "attribute type is required",
			Pos:     v.Pos(),
		}
	}
	typ, err := typeVal.String()
	if err != nil {
		return attr, formatCUEError(err)
	}
	attr.Type = ir.AttrType(typ)

	defVal := v.LookupPath(cue.ParsePath("default"))
	if defVal.Exists() {
		def, err := compileValue(defVal)
		if err != nil {
			return attr, err
		}
		attr.Default = def
	}

	return attr, nil
}

// compileValue converts a concrete CUE value to an ir.Value.
func compileValue(v cue.Value) (ir.Value, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	switch v.IncompleteKind() {
	case cue.NullKind:
		return ir.None{}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Text(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Float(f), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var list ir.List
		for iter.Next() {
			elem, err := compileValue(iter.Value())
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		if list == nil {
			list = ir.List{}
		}
		return list, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		m := ir.Map{}
		for iter.Next() {
			elem, err := compileValue(iter.Value())
			if err != nil {
				return nil, err
			}
			m[iter.Selector().Unquoted()] = elem
		}
		return m, nil
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func lastLabel(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return sels[len(sels)-1].Unquoted()
}
