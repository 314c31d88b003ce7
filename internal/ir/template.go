package ir

import "fmt"

// TemplateValue renders a template as a Value tree:
// {"name": ..., "roots": [{"kind": ..., "attrs": {...}, "children": [...]}]}.
// Empty attrs and children are omitted. TemplateHash hashes this form and
// the journal stores it.
func TemplateValue(t Template) Map {
	roots := make(List, len(t.Roots))
	for i, r := range t.Roots {
		roots[i] = templateNodeValue(r)
	}
	return Map{"name": Text(t.Name), "roots": roots}
}

func templateNodeValue(n TemplateNode) Map {
	m := Map{"kind": Text(n.Kind)}
	if len(n.Attrs) > 0 {
		m["attrs"] = n.Attrs
	}
	if len(n.Children) > 0 {
		children := make(List, len(n.Children))
		for i, c := range n.Children {
			children[i] = templateNodeValue(c)
		}
		m["children"] = children
	}
	return m
}

// TemplateFromValue is the inverse of TemplateValue.
func TemplateFromValue(v Value) (Template, error) {
	m, ok := v.(Map)
	if !ok {
		return Template{}, fmt.Errorf("template: want map, got %s", TypeOf(v))
	}
	name, ok := m["name"].(Text)
	if !ok {
		return Template{}, fmt.Errorf("template: missing name")
	}
	roots, ok := m["roots"].(List)
	if !ok {
		return Template{}, fmt.Errorf("template %q: missing roots", name)
	}
	t := Template{Name: string(name), Roots: make([]TemplateNode, len(roots))}
	for i, r := range roots {
		n, err := templateNodeFromValue(r)
		if err != nil {
			return Template{}, fmt.Errorf("template %q root %d: %w", name, i, err)
		}
		t.Roots[i] = n
	}
	return t, nil
}

func templateNodeFromValue(v Value) (TemplateNode, error) {
	m, ok := v.(Map)
	if !ok {
		return TemplateNode{}, fmt.Errorf("want map, got %s", TypeOf(v))
	}
	kind, ok := m["kind"].(Text)
	if !ok {
		return TemplateNode{}, fmt.Errorf("missing kind")
	}
	n := TemplateNode{Kind: string(kind)}
	if raw, ok := m["attrs"]; ok {
		attrs, ok := raw.(Map)
		if !ok {
			return TemplateNode{}, fmt.Errorf("%s attrs: want map, got %s", kind, TypeOf(raw))
		}
		n.Attrs = attrs
	}
	if raw, ok := m["children"]; ok {
		children, ok := raw.(List)
		if !ok {
			return TemplateNode{}, fmt.Errorf("%s children: want list, got %s", kind, TypeOf(raw))
		}
		for i, c := range children {
			child, err := templateNodeFromValue(c)
			if err != nil {
				return TemplateNode{}, fmt.Errorf("%s child %d: %w", kind, i, err)
			}
			n.Children = append(n.Children, child)
		}
	}
	return n, nil
}
