package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/nodesync/internal/adapter"
	"github.com/roach88/nodesync/internal/compiler"
	"github.com/roach88/nodesync/internal/ir"
)

// defs is a compiled and validated definitions directory, ready to drive
// an engine.
type defs struct {
	Bundle   *compiler.Bundle
	Schema   *adapter.Schema
	KindHash string
}

// loadDefs compiles dir in fail-fast mode and validates it against the
// handle attribute.
func loadDefs(dir, handleAttr string) (*defs, error) {
	loaded, errs := compiler.LoadDir(dir, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if verrs := compiler.Validate(&loaded.Bundle, handleAttr); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, e := range verrs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid definitions: %s", strings.Join(msgs, "; "))
	}

	schema, err := adapter.NewSchema(loaded.Bundle.Kinds)
	if err != nil {
		return nil, fmt.Errorf("build adapter: %w", err)
	}
	hash, err := ir.KindHash(loaded.Bundle.Kinds)
	if err != nil {
		return nil, err
	}
	return &defs{Bundle: &loaded.Bundle, Schema: schema, KindHash: hash}, nil
}
