package mutation

import (
	"fmt"
	"strings"

	"github.com/roach88/nodesync/internal/ir"
)

// Kind names one op of the wire vocabulary.
type Kind string

const (
	KindCreatePlaceholder  Kind = "CreatePlaceholder"
	KindLoadTemplate       Kind = "LoadTemplate"
	KindAssignID           Kind = "AssignId"
	KindAppendChildren     Kind = "AppendChildren"
	KindReplaceWith        Kind = "ReplaceWith"
	KindReplacePlaceholder Kind = "ReplacePlaceholder"
	KindInsertAfter        Kind = "InsertAfter"
	KindInsertBefore       Kind = "InsertBefore"
	KindSetAttribute       Kind = "SetAttribute"
	KindRemoveNode         Kind = "RemoveNode"
	KindPushRoot           Kind = "PushRoot"
)

// Kinds lists the vocabulary in wire order.
var Kinds = []Kind{
	KindCreatePlaceholder,
	KindLoadTemplate,
	KindAssignID,
	KindAppendChildren,
	KindReplaceWith,
	KindReplacePlaceholder,
	KindInsertAfter,
	KindInsertBefore,
	KindSetAttribute,
	KindRemoveNode,
	KindPushRoot,
}

// Op is a sealed interface over the edit-script vocabulary.
type Op interface {
	Kind() Kind
	op() // Sealed - only the types below implement it
}

// Script is one ordered edit-script.
type Script []Op

// CreatePlaceholder spawns an empty node, pushes it and registers ID.
type CreatePlaceholder struct {
	ID ir.ElementID
}

// LoadTemplate instantiates root Index of template Name, pushes it and
// registers ID.
type LoadTemplate struct {
	Name  string
	Index int
	ID    ir.ElementID
}

// AssignID registers the node reached by walking Path from the top of the
// stack. The stack is unchanged.
type AssignID struct {
	Path []uint8
	ID   ir.ElementID
}

// AppendChildren pops M nodes and appends them, in push order, to ID.
type AppendChildren struct {
	ID ir.ElementID
	M  int
}

// ReplaceWith pops M nodes, splices them where ID sits and removes ID.
type ReplaceWith struct {
	ID ir.ElementID
	M  int
}

// ReplacePlaceholder pops M nodes and splices them where the node reached
// by walking Path from the entry below them sits. The placeholder is removed.
type ReplacePlaceholder struct {
	Path []uint8
	M    int
}

// InsertAfter pops M nodes and splices them in as siblings following ID.
type InsertAfter struct {
	ID ir.ElementID
	M  int
}

// InsertBefore pops M nodes and splices them in as siblings preceding ID.
type InsertBefore struct {
	ID ir.ElementID
	M  int
}

// SetAttribute sets Name on ID. The reserved handle attribute binds a
// back-reference handle instead of reaching the adapter.
type SetAttribute struct {
	ID    ir.ElementID
	Name  string
	Value ir.Value
}

// RemoveNode removes ID and its subtree.
type RemoveNode struct {
	ID ir.ElementID
}

// PushRoot pushes the node registered as ID.
type PushRoot struct {
	ID ir.ElementID
}

func (CreatePlaceholder) Kind() Kind  { return KindCreatePlaceholder }
func (LoadTemplate) Kind() Kind       { return KindLoadTemplate }
func (AssignID) Kind() Kind           { return KindAssignID }
func (AppendChildren) Kind() Kind     { return KindAppendChildren }
func (ReplaceWith) Kind() Kind        { return KindReplaceWith }
func (ReplacePlaceholder) Kind() Kind { return KindReplacePlaceholder }
func (InsertAfter) Kind() Kind        { return KindInsertAfter }
func (InsertBefore) Kind() Kind       { return KindInsertBefore }
func (SetAttribute) Kind() Kind       { return KindSetAttribute }
func (RemoveNode) Kind() Kind         { return KindRemoveNode }
func (PushRoot) Kind() Kind           { return KindPushRoot }

func (CreatePlaceholder) op()  {}
func (LoadTemplate) op()       {}
func (AssignID) op()           {}
func (AppendChildren) op()     {}
func (ReplaceWith) op()        {}
func (ReplacePlaceholder) op() {}
func (InsertAfter) op()        {}
func (InsertBefore) op()       {}
func (SetAttribute) op()       {}
func (RemoveNode) op()         {}
func (PushRoot) op()           {}

// Fields renders op as a flat map: "op" holds the kind, the remaining keys
// hold its operands. This is the form journaled per op and hashed per script.
func Fields(o Op) ir.Map {
	m := ir.Map{"op": ir.Text(o.Kind())}
	switch v := o.(type) {
	case CreatePlaceholder:
		m["id"] = idValue(v.ID)
	case LoadTemplate:
		m["name"] = ir.Text(v.Name)
		m["idx"] = ir.Int(v.Index)
		m["id"] = idValue(v.ID)
	case AssignID:
		m["path"] = pathValue(v.Path)
		m["id"] = idValue(v.ID)
	case AppendChildren:
		m["id"] = idValue(v.ID)
		m["m"] = ir.Int(v.M)
	case ReplaceWith:
		m["id"] = idValue(v.ID)
		m["m"] = ir.Int(v.M)
	case ReplacePlaceholder:
		m["path"] = pathValue(v.Path)
		m["m"] = ir.Int(v.M)
	case InsertAfter:
		m["id"] = idValue(v.ID)
		m["m"] = ir.Int(v.M)
	case InsertBefore:
		m["id"] = idValue(v.ID)
		m["m"] = ir.Int(v.M)
	case SetAttribute:
		m["id"] = idValue(v.ID)
		m["name"] = ir.Text(v.Name)
		m["value"] = valueOrNone(v.Value)
	case RemoveNode:
		m["id"] = idValue(v.ID)
	case PushRoot:
		m["id"] = idValue(v.ID)
	}
	return m
}

// FromFields is the inverse of Fields. A missing "value" decodes as None.
// An op name outside the vocabulary is an UNSUPPORTED_OP violation.
func FromFields(m ir.Map) (Op, error) {
	f := fieldReader{m: m}
	kind := Kind(f.text("op"))
	var o Op
	switch kind {
	case KindCreatePlaceholder:
		o = CreatePlaceholder{ID: f.id("id")}
	case KindLoadTemplate:
		o = LoadTemplate{Name: f.text("name"), Index: f.num("idx"), ID: f.id("id")}
	case KindAssignID:
		o = AssignID{Path: f.path("path"), ID: f.id("id")}
	case KindAppendChildren:
		o = AppendChildren{ID: f.id("id"), M: f.num("m")}
	case KindReplaceWith:
		o = ReplaceWith{ID: f.id("id"), M: f.num("m")}
	case KindReplacePlaceholder:
		o = ReplacePlaceholder{Path: f.path("path"), M: f.num("m")}
	case KindInsertAfter:
		o = InsertAfter{ID: f.id("id"), M: f.num("m")}
	case KindInsertBefore:
		o = InsertBefore{ID: f.id("id"), M: f.num("m")}
	case KindSetAttribute:
		o = SetAttribute{ID: f.id("id"), Name: f.text("name"), Value: f.value("value")}
	case KindRemoveNode:
		o = RemoveNode{ID: f.id("id")}
	case KindPushRoot:
		o = PushRoot{ID: f.id("id")}
	default:
		return nil, &ContractViolation{
			Code:    ErrCodeUnsupportedOp,
			Message: fmt.Sprintf("op %q is not part of the vocabulary", kind),
		}
	}
	if f.err != nil {
		return nil, fmt.Errorf("%s: %w", kind, f.err)
	}
	return o, nil
}

// Format renders op as Kind(key=value ...) with keys in canonical order.
func Format(o Op) string {
	fields := Fields(o)
	var b strings.Builder
	b.WriteString(string(o.Kind()))
	b.WriteByte('(')
	first := true
	for _, k := range fields.SortedKeys() {
		if k == "op" {
			continue
		}
		if !first {
			b.WriteByte(' ')
		}
		first = false
		b.WriteString(k)
		b.WriteByte('=')
		if text, ok := fields[k].(ir.Text); ok && k == "name" {
			b.WriteString(string(text))
			continue
		}
		enc, err := ir.MarshalCanonical(fields[k])
		if err != nil {
			enc = []byte("?")
		}
		b.Write(enc)
	}
	b.WriteByte(')')
	return b.String()
}

// Canonical returns the canonical JSON of a script as a list of Fields.
func Canonical(s Script) ([]byte, error) {
	list := make(ir.List, len(s))
	for i, o := range s {
		list[i] = Fields(o)
	}
	return ir.MarshalCanonical(list)
}

// Hash returns the content hash of a script.
func Hash(s Script) (string, error) {
	canonical, err := Canonical(s)
	if err != nil {
		return "", err
	}
	return ir.ScriptHash(canonical), nil
}

func idValue(e ir.ElementID) ir.Int {
	return ir.Int(e)
}

func pathValue(p []uint8) ir.List {
	out := make(ir.List, len(p))
	for i, step := range p {
		out[i] = ir.Int(step)
	}
	return out
}

func valueOrNone(v ir.Value) ir.Value {
	if v == nil {
		return ir.None{}
	}
	return v
}

// fieldReader collects the first decoding error so FromFields can read
// operands without checking each one.
type fieldReader struct {
	m   ir.Map
	err error
}

func (f *fieldReader) fail(format string, args ...any) {
	if f.err == nil {
		f.err = fmt.Errorf(format, args...)
	}
}

func (f *fieldReader) text(key string) string {
	v, ok := f.m[key].(ir.Text)
	if !ok {
		f.fail("field %q: want text, got %s", key, typeName(f.m[key]))
	}
	return string(v)
}

func (f *fieldReader) num(key string) int {
	v, ok := f.m[key].(ir.Int)
	if !ok {
		f.fail("field %q: want int, got %s", key, typeName(f.m[key]))
		return 0
	}
	if v < 0 {
		f.fail("field %q: negative value %d", key, v)
		return 0
	}
	return int(v)
}

func (f *fieldReader) id(key string) ir.ElementID {
	n := f.num(key)
	if n > int(^uint32(0)) {
		f.fail("field %q: id %d out of range", key, n)
		return 0
	}
	return ir.ElementID(n)
}

func (f *fieldReader) path(key string) []uint8 {
	raw, ok := f.m[key]
	if !ok {
		return nil
	}
	list, ok := raw.(ir.List)
	if !ok {
		f.fail("field %q: want list, got %s", key, typeName(raw))
		return nil
	}
	out := make([]uint8, len(list))
	for i, step := range list {
		n, ok := step.(ir.Int)
		if !ok || n < 0 || n > 255 {
			f.fail("field %q: step %d is not a child index", key, i)
			return nil
		}
		out[i] = uint8(n)
	}
	return out
}

func (f *fieldReader) value(key string) ir.Value {
	v, ok := f.m[key]
	if !ok || v == nil {
		return ir.None{}
	}
	return v
}

func typeName(v ir.Value) string {
	if v == nil {
		return "nothing"
	}
	return ir.TypeOf(v)
}
