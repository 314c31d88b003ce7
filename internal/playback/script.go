package playback

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Script is a complete playback description.
type Script struct {
	Roots map[string]RootSpec `yaml:"roots" json:"roots"`
	Ticks []TickSpec          `yaml:"ticks" json:"ticks"`
}

// RootSpec describes the content of every root with a given descriptor.
type RootSpec struct {
	Build  []OpSpec    `yaml:"build" json:"build"`
	Scopes []ScopeSpec `yaml:"scopes,omitempty" json:"scopes,omitempty"`
}

// ScopeSpec describes one reactive scope: what it reads and the diffs it
// emits, one per dirty tick.
type ScopeSpec struct {
	ID        uint64     `yaml:"id" json:"id"`
	World     bool       `yaml:"world,omitempty" json:"world,omitempty"`
	Queries   []string   `yaml:"queries,omitempty" json:"queries,omitempty"`
	Resources []string   `yaml:"resources,omitempty" json:"resources,omitempty"`
	Events    []string   `yaml:"events,omitempty" json:"events,omitempty"`
	Diffs     [][]OpSpec `yaml:"diffs,omitempty" json:"diffs,omitempty"`

	// Teardown drops the scope once its last diff has been emitted.
	Teardown bool `yaml:"teardown,omitempty" json:"teardown,omitempty"`
}

// TickSpec is one tick: host state changes first, then the observation.
type TickSpec struct {
	Set         map[string]any `yaml:"set,omitempty" json:"set,omitempty"`
	Touch       []string       `yaml:"touch,omitempty" json:"touch,omitempty"`
	Emit        []string       `yaml:"emit,omitempty" json:"emit,omitempty"`
	Despawn     []string       `yaml:"despawn,omitempty" json:"despawn,omitempty"`
	DeferRemove []RemoveSpec   `yaml:"defer_remove,omitempty" json:"defer_remove,omitempty"`
	Observe     []string       `yaml:"observe" json:"observe"`
}

// RemoveSpec queues removal of a root's element for the start of the
// following tick. Root is the journal name of the root.
type RemoveSpec struct {
	Root string `yaml:"root" json:"root"`
	ID   uint32 `yaml:"id" json:"id"`
}

// OpSpec is one op in its flat field form (see mutation.Fields).
type OpSpec map[string]any

// LoadScript reads and validates a playback script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playback %s: %w", path, err)
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("playback %s: %w", path, err)
	}
	return s, nil
}

// ParseScript decodes a playback script. Unknown fields are errors.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse playback: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every op decodes and every observed descriptor is
// described.
func (s *Script) Validate() error {
	if len(s.Ticks) == 0 {
		return fmt.Errorf("playback has no ticks")
	}
	scratch := NewHandles()
	for _, desc := range s.descriptors() {
		spec := s.Roots[desc]
		if _, err := compileOps(spec.Build, scratch); err != nil {
			return fmt.Errorf("root %s build: %w", desc, err)
		}
		seen := make(map[uint64]bool, len(spec.Scopes))
		for _, sc := range spec.Scopes {
			if seen[sc.ID] {
				return fmt.Errorf("root %s: duplicate scope %d", desc, sc.ID)
			}
			seen[sc.ID] = true
			for i, d := range sc.Diffs {
				if _, err := compileOps(d, scratch); err != nil {
					return fmt.Errorf("root %s scope %d diff %d: %w", desc, sc.ID, i, err)
				}
			}
		}
	}
	for i, t := range s.Ticks {
		for _, obs := range t.Observe {
			desc, _ := splitObserve(obs)
			if _, ok := s.Roots[desc]; !ok {
				return fmt.Errorf("tick %d: observes undescribed root %q", i+1, desc)
			}
		}
	}
	return nil
}

func (s *Script) descriptors() []string {
	out := make([]string, 0, len(s.Roots))
	for desc := range s.Roots {
		out = append(out, desc)
	}
	slices.Sort(out)
	return out
}

// splitObserve parses "descriptor" or "descriptor@anchor".
func splitObserve(obs string) (desc, anchor string) {
	desc, anchor, ok := strings.Cut(obs, "@")
	if !ok || anchor == "" {
		return desc, desc
	}
	return desc, anchor
}
