package ir

import "strconv"

// ElementID is an identifier issued by the diff engine, scoped to one root.
// ID 0 is reserved for the root anchor.
type ElementID uint32

// RootElement is the reserved id of a root's anchor node.
const RootElement ElementID = 0

func (id ElementID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// AttrType is the declared dynamic type of an attribute.
type AttrType string

const (
	AttrText  AttrType = "text"
	AttrInt   AttrType = "int"
	AttrFloat AttrType = "float"
	AttrBool  AttrType = "bool"
	AttrList  AttrType = "list"
	AttrMap   AttrType = "map"
	AttrAny   AttrType = "any"
)

// ValidAttrTypes defines the allowed attribute types.
var ValidAttrTypes = map[AttrType]bool{
	AttrText:  true,
	AttrInt:   true,
	AttrFloat: true,
	AttrBool:  true,
	AttrList:  true,
	AttrMap:   true,
	AttrAny:   true,
}

// Accepts reports whether v is a legal value for an attribute of type t.
// None is always accepted: it clears the attribute.
func (t AttrType) Accepts(v Value) bool {
	if _, ok := v.(None); ok {
		return true
	}
	switch t {
	case AttrText:
		_, ok := v.(Text)
		return ok
	case AttrInt:
		_, ok := v.(Int)
		return ok
	case AttrFloat:
		_, ok := v.(Float)
		return ok
	case AttrBool:
		_, ok := v.(Bool)
		return ok
	case AttrList:
		_, ok := v.(List)
		return ok
	case AttrMap:
		_, ok := v.(Map)
		return ok
	case AttrAny:
		_, ok := v.(Any)
		return ok
	default:
		return false
	}
}

// AttrSpec declares one attribute of a node kind.
type AttrSpec struct {
	Name    string   `json:"name"`
	Type    AttrType `json:"type"`
	Default Value    `json:"default,omitempty"` // nil when the kind declares no default
}

// KindSpec represents a compiled node kind definition.
// The set of kinds is closed once an adapter is built from it.
type KindSpec struct {
	Name  string     `json:"name"`
	Attrs []AttrSpec `json:"attrs"`
}

// Attr returns the attribute declaration with the given name.
func (k *KindSpec) Attr(name string) (AttrSpec, bool) {
	for _, a := range k.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return AttrSpec{}, false
}

// TemplateNode is one node in an immutable template description.
type TemplateNode struct {
	Kind     string         `json:"kind"`
	Attrs    Map            `json:"attrs,omitempty"`
	Children []TemplateNode `json:"children,omitempty"`
}

// Template represents a compiled, named template.
// Roots are instantiated individually by index.
type Template struct {
	Name  string         `json:"name"`
	Roots []TemplateNode `json:"roots"`
}
