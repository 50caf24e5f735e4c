package graph

import (
	"fmt"
	"strings"

	"github.com/exploopio/vulngraph/pkg/errors"
)

// Relationship is the closed set of typed edges an SBOM can assert between
// two packages. Values are persisted as their integer codes; do not reorder.
type Relationship int

const (
	ContainedBy Relationship = iota
	DependencyOf
	DevDependencyOf
	OptionalDependencyOf
	ProvidedDependencyOf
	TestDependencyOf
	RuntimeDependencyOf
	ExampleOf
	GeneratedFrom
	AncestorOf
	VariantOf
	BuildToolOf
	DevToolOf
	DescribedBy
	PackageOf
)

func (r Relationship) String() string {
	switch r {
	case ContainedBy:
		return "contained_by"
	case DependencyOf:
		return "dependency_of"
	case DevDependencyOf:
		return "dev_dependency_of"
	case OptionalDependencyOf:
		return "optional_dependency_of"
	case ProvidedDependencyOf:
		return "provided_dependency_of"
	case TestDependencyOf:
		return "test_dependency_of"
	case RuntimeDependencyOf:
		return "runtime_dependency_of"
	case ExampleOf:
		return "example_of"
	case GeneratedFrom:
		return "generated_from"
	case AncestorOf:
		return "ancestor_of"
	case VariantOf:
		return "variant_of"
	case BuildToolOf:
		return "build_tool_of"
	case DevToolOf:
		return "dev_tool_of"
	case DescribedBy:
		return "described_by"
	case PackageOf:
		return "package_of"
	default:
		return "unknown"
	}
}

// ParseRelationship maps a relationship name back to its code. Both
// snake_case names and the case-insensitive variants are accepted.
func ParseRelationship(name string) (Relationship, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for r := ContainedBy; r <= PackageOf; r++ {
		if r.String() == normalized {
			return r, nil
		}
	}
	return 0, errors.E(errors.KindInvalidReference, "graph.ParseRelationship",
		fmt.Sprintf("unknown relationship %q", name))
}

func relationshipCodes(relationships []Relationship) []int {
	codes := make([]int, len(relationships))
	for i, r := range relationships {
		codes[i] = int(r)
	}
	return codes
}
