package graph

import (
	"context"

	"github.com/exploopio/vulngraph/pkg/errors"
	"github.com/exploopio/vulngraph/pkg/retry"
)

// Assertion is one vulnerability statement about a package, as reported by
// an external source. The graph treats it as an opaque record.
type Assertion struct {
	ID       string
	Severity string
	Source   string
}

// AssertionSource answers vulnerability queries for a single package
// identity. Implementations typically front an advisory database or a
// remote analysis service.
type AssertionSource interface {
	AssertionsFor(ctx context.Context, pkg *Package) ([]Assertion, error)
}

// PackageAssertions pairs one package with the assertions that apply to it.
type PackageAssertions struct {
	Package    *Package
	Assertions []Assertion
}

// assertionRelationships are the relationship types whose edges carry
// vulnerability exposure from a component to the package containing or
// depending on it.
var assertionRelationships = []Relationship{DependencyOf, ContainedBy}

// VulnerabilityAssertions propagates vulnerability statements across this
// SBOM. It collects every package reachable from the described packages
// through dependency-of or contained-by edges, queries the source for each
// distinct identity, and reports the packages with at least one assertion.
// The described roots themselves are not queried; only the components
// related to them carry exposure. Packages without assertions are omitted.
func (c *SbomContext) VulnerabilityAssertions(ctx context.Context, source AssertionSource) ([]PackageAssertions, error) {
	const op = "graph.SbomContext.VulnerabilityAssertions"

	roots, err := c.DescribedPackages(ctx)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	seen := make(map[int64]bool)
	var candidates []*Package
	for _, root := range roots {
		reachable, err := c.RelatedTransitively(ctx, assertionRelationships, root.Purl)
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		for _, pkg := range reachable {
			if !seen[pkg.ID] {
				seen[pkg.ID] = true
				candidates = append(candidates, pkg)
			}
		}
	}

	var results []PackageAssertions
	for _, pkg := range candidates {
		if c.graph.assertLim != nil {
			if err := c.graph.assertLim.Wait(ctx); err != nil {
				return nil, errors.Wrap(err, op)
			}
		}
		var assertions []Assertion
		err := retry.Do(ctx, c.graph.assertBackoff, c.graph.assertAttempts, func(ctx context.Context) error {
			var sourceErr error
			assertions, sourceErr = source.AssertionsFor(ctx, pkg)
			return sourceErr
		})
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		if len(assertions) == 0 {
			continue
		}
		results = append(results, PackageAssertions{Package: pkg, Assertions: assertions})
	}

	c.graph.log.Debug("assertion propagation over sbom %d covered %d packages, %d affected",
		c.sbom.ID, len(candidates), len(results))
	return results, nil
}
