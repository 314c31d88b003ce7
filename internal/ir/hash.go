package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTemplate = "nodesync/template/v1"
	DomainKind     = "nodesync/kind/v1"
	DomainScript   = "nodesync/script/v1"
	DomainGraph    = "nodesync/graph/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TemplateHash computes the content hash of a template.
// Two registrations with the same hash describe the same tree.
func TemplateHash(t Template) (string, error) {
	canonical, err := MarshalCanonical(TemplateValue(t))
	if err != nil {
		return "", fmt.Errorf("TemplateHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTemplate, canonical), nil
}

// KindHash computes the content hash of a set of kinds, in the given order.
func KindHash(kinds []KindSpec) (string, error) {
	list := make(List, len(kinds))
	for i, k := range kinds {
		attrs := make(List, len(k.Attrs))
		for j, a := range k.Attrs {
			m := Map{"name": Text(a.Name), "type": Text(a.Type)}
			if a.Default != nil {
				m["default"] = a.Default
			}
			attrs[j] = m
		}
		list[i] = Map{"name": Text(k.Name), "attrs": attrs}
	}

	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("KindHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainKind, canonical), nil
}

// ScriptHash hashes the canonical form of an edit-script.
// Callers pass the canonical bytes; ir does not know the op vocabulary.
func ScriptHash(canonical []byte) string {
	return hashWithDomain(DomainScript, canonical)
}

// GraphHash hashes a textual graph dump.
func GraphHash(dump string) string {
	return hashWithDomain(DomainGraph, []byte(dump))
}

