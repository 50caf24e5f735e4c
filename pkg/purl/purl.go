// Package purl decodes and encodes package URL references.
//
// A Purl is the value form of one package reference: type, optional
// namespace, name, version and a qualifier set. Qualifier order is never
// significant; encoding always emits the canonical (key-sorted) form, so
// String() is usable as a deduplication key.
package purl

import (
	"sort"
	"strings"

	packageurl "github.com/package-url/packageurl-go"

	"github.com/exploopio/vulngraph/pkg/errors"
)

// Purl is a decoded package reference.
type Purl struct {
	// Type is the package type/protocol (e.g., "maven", "npm").
	Type string

	// Namespace is the type-specific namespace (e.g., Maven group id).
	// Empty means absent; the purl grammar cannot express an empty
	// non-absent namespace.
	Namespace string

	// Name is the package name.
	Name string

	// Version is the package version.
	Version string

	// Qualifiers refine the reference (e.g., type=jar). Compared as an
	// unordered set.
	Qualifiers map[string]string
}

// Parse decodes a package URL string.
func Parse(ref string) (Purl, error) {
	decoded, err := packageurl.FromString(ref)
	if err != nil {
		return Purl{}, errors.InvalidReference("purl.Parse", ref, err)
	}

	p := Purl{
		Type:      decoded.Type,
		Namespace: decoded.Namespace,
		Name:      decoded.Name,
		Version:   decoded.Version,
	}
	if len(decoded.Qualifiers) > 0 {
		p.Qualifiers = decoded.Qualifiers.Map()
	}
	return p, nil
}

// MustParse is Parse for tests and static references; it panics on error.
func MustParse(ref string) Purl {
	p, err := Parse(ref)
	if err != nil {
		panic(err)
	}
	return p
}

// String re-encodes the reference in canonical form, preserving type,
// namespace, name, version and the full qualifier set.
func (p Purl) String() string {
	encoded := packageurl.NewPackageURL(
		p.Type,
		p.Namespace,
		p.Name,
		p.Version,
		packageurl.QualifiersFromMap(p.Qualifiers),
		"",
	)
	return encoded.ToString()
}

// NamespaceOrNil returns a pointer to the namespace, or nil when absent.
// Storage predicates distinguish a null namespace from an empty string.
func (p Purl) NamespaceOrNil() *string {
	if p.Namespace == "" {
		return nil
	}
	ns := p.Namespace
	return &ns
}

// QualifiersEqual reports unordered set equality between two qualifier maps.
// An empty set only matches another empty set.
func QualifiersEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// EncodeQualifiers renders a qualifier set in canonical text form
// (key-sorted, "k=v" joined by "&"). Empty sets encode as "".
func EncodeQualifiers(qualifiers map[string]string) string {
	if len(qualifiers) == 0 {
		return ""
	}
	keys := make([]string, 0, len(qualifiers))
	for k := range qualifiers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(qualifiers[k])
	}
	return sb.String()
}
