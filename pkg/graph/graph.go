// Package graph implements the package identity and relationship graph
// engine: canonical package identity resolution, the directed dependency
// graph with transitive closure, SBOM-scoped typed relationships, and
// propagation of vulnerability assertions across the closure.
//
// All graph state lives in the durable store; a Graph is a stateless handle
// scoped to the store plus ambient logging/metrics.
package graph

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/exploopio/vulngraph/pkg/cache"
	"github.com/exploopio/vulngraph/pkg/errors"
	"github.com/exploopio/vulngraph/pkg/logging"
	"github.com/exploopio/vulngraph/pkg/metrics"
	"github.com/exploopio/vulngraph/pkg/purl"
	"github.com/exploopio/vulngraph/pkg/retry"
	"github.com/exploopio/vulngraph/pkg/storage"
)

// Package is one resolved canonical package identity. The id is assigned on
// first insertion and immutable; identities are never deleted.
type Package struct {
	ID   int64
	Purl purl.Purl
}

// Graph is the engine handle.
type Graph struct {
	store          *storage.Store
	log            logging.Logger
	metrics        metrics.Collector
	assertLim      *rate.Limiter
	assertBackoff  *retry.BackoffConfig
	assertAttempts int
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(g *Graph) {
		g.log = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(g *Graph) {
		g.metrics = c
	}
}

// WithAssertionRateLimit throttles calls to the external vulnerability
// assertion source during propagation.
func WithAssertionRateLimit(limit rate.Limit, burst int) Option {
	return func(g *Graph) {
		g.assertLim = rate.NewLimiter(limit, burst)
	}
}

// WithAssertionRetry retries failed assertion source calls up to attempts
// times with the given backoff.
func WithAssertionRetry(attempts int, backoff *retry.BackoffConfig) Option {
	return func(g *Graph) {
		g.assertAttempts = attempts
		g.assertBackoff = backoff
	}
}

// New creates a Graph over the given store.
func New(store *storage.Store, opts ...Option) *Graph {
	g := &Graph{
		store:          store,
		log:            &logging.NopLogger{},
		metrics:        &metrics.NopCollector{},
		assertAttempts: 1,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// =============================================================================
// Package identity resolution
// =============================================================================

// ResolveOrCreate canonicalizes a reference into a stable identity,
// inserting a new record only when no existing identity matches.
//
// Matching is the coordinate quadruple (type, namespace-or-null, name,
// version) plus unordered qualifier-set equality; an empty qualifier set
// matches only an empty set. A lost insert race is resolved by re-querying,
// never surfaced.
//
// A reference without a version cannot name a unique identity and is
// rejected as invalid.
func (g *Graph) ResolveOrCreate(ctx context.Context, p purl.Purl) (*Package, error) {
	const op = "graph.ResolveOrCreate"

	if p.Version == "" {
		return nil, errors.E(errors.KindInvalidReference, op,
			fmt.Sprintf("reference %q has no version", p.String()))
	}

	if found, err := g.lookup(ctx, p); err != nil || found != nil {
		if found != nil {
			g.metrics.CounterInc(metrics.ResolverPackagesTotal.Name, "status", "matched")
		}
		return found, err
	}

	inserted, err := g.store.InsertPackage(ctx, p.Type, p.NamespaceOrNil(), p.Name, p.Version, p.Qualifiers)
	if errors.IsConflict(err) {
		// Another operation created the identity first; the re-query
		// must find it.
		found, err := g.lookup(ctx, p)
		if err != nil {
			return nil, err
		}
		if found == nil {
			return nil, errors.E(errors.KindStorage, op, "identity vanished after insert conflict")
		}
		g.metrics.CounterInc(metrics.ResolverPackagesTotal.Name, "status", "matched")
		return found, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	g.metrics.CounterInc(metrics.ResolverPackagesTotal.Name, "status", "created")
	return packageFromRow(inserted), nil
}

// ResolveOrCreateRef is ResolveOrCreate over an encoded reference string.
func (g *Graph) ResolveOrCreateRef(ctx context.Context, ref string) (*Package, error) {
	p, err := purl.Parse(ref)
	if err != nil {
		return nil, err
	}
	return g.ResolveOrCreate(ctx, p)
}

// GetPackage fetches an existing identity without side effects, nil when no
// exact match (quadruple plus qualifier set) exists.
func (g *Graph) GetPackage(ctx context.Context, p purl.Purl) (*Package, error) {
	return g.lookup(ctx, p)
}

// lookup applies the identity matching algorithm over the stored candidates.
func (g *Graph) lookup(ctx context.Context, p purl.Purl) (*Package, error) {
	candidates, err := g.store.FindPackages(ctx, p.Type, p.NamespaceOrNil(), p.Name, p.Version)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		if purl.QualifiersEqual(p.Qualifiers, candidate.Qualifiers) {
			return packageFromRow(candidate), nil
		}
	}
	return nil, nil
}

// Packages returns every persisted identity.
func (g *Graph) Packages(ctx context.Context) ([]*Package, error) {
	rows, err := g.store.ListPackages(ctx)
	if err != nil {
		return nil, err
	}
	packages := make([]*Package, 0, len(rows))
	for _, row := range rows {
		packages = append(packages, packageFromRow(row))
	}
	return packages, nil
}

// PackageTypes returns the distinct package types observed in the store.
func (g *Graph) PackageTypes(ctx context.Context) ([]string, error) {
	return g.store.PackageTypes(ctx)
}

// PackageNamespaces returns the distinct namespaces observed in the store.
func (g *Graph) PackageNamespaces(ctx context.Context) ([]string, error) {
	return g.store.PackageNamespaces(ctx)
}

// NewResolutionCache creates an operation-scoped resolution cache bound to
// this graph, keyed by canonical reference string.
func (g *Graph) NewResolutionCache(capacity int) *cache.Cache[*Package] {
	return cache.New(capacity, func(ctx context.Context, ref string) (*Package, error) {
		return g.ResolveOrCreateRef(ctx, ref)
	}, cache.WithMetrics[*Package](g.metrics))
}

func packageFromRow(row *storage.PackageRow) *Package {
	p := purl.Purl{
		Type:    row.Type,
		Name:    row.Name,
		Version: row.Version,
	}
	if row.Namespace.Valid {
		p.Namespace = row.Namespace.String
	}
	if len(row.Qualifiers) > 0 {
		p.Qualifiers = row.Qualifiers
	}
	return &Package{ID: row.ID, Purl: p}
}

// =============================================================================
// Dependency graph
// =============================================================================

// PackageTree is the reachability tree of one transitive closure. A package
// reachable through several parents appears once under each parent; back
// edges to an ancestor are cut rather than descended.
type PackageTree struct {
	ID           int64
	Purl         purl.Purl
	Dependencies []*PackageTree
}

// IngestDependency records that dependent depends on dependency, resolving
// (or creating) both identities first. Re-ingesting an edge is a no-op.
func (g *Graph) IngestDependency(ctx context.Context, dependent, dependency purl.Purl) error {
	const op = "graph.IngestDependency"

	dependentPkg, err := g.ResolveOrCreate(ctx, dependent)
	if err != nil {
		return errors.Wrap(err, op)
	}
	dependencyPkg, err := g.ResolveOrCreate(ctx, dependency)
	if err != nil {
		return errors.Wrap(err, op)
	}

	inserted, err := g.store.InsertDependencyEdge(ctx, dependentPkg.ID, dependencyPkg.ID)
	if err != nil {
		return errors.Wrap(err, op)
	}
	if inserted {
		g.metrics.CounterInc(metrics.DependencyEdgesTotal.Name)
	}
	return nil
}

// IngestDependencyRefs is IngestDependency over encoded reference strings.
func (g *Graph) IngestDependencyRefs(ctx context.Context, dependent, dependency string) error {
	dependentPurl, err := purl.Parse(dependent)
	if err != nil {
		return err
	}
	dependencyPurl, err := purl.Parse(dependency)
	if err != nil {
		return err
	}
	return g.IngestDependency(ctx, dependentPurl, dependencyPurl)
}

// DirectDependencies returns the identities the root directly depends on.
func (g *Graph) DirectDependencies(ctx context.Context, root purl.Purl) ([]*Package, error) {
	const op = "graph.DirectDependencies"

	rootPkg, err := g.ResolveOrCreate(ctx, root)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	ids, err := g.store.DirectDependencyIDs(ctx, rootPkg.ID)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return g.packagesByIDs(ctx, ids)
}

// TransitiveDependencies computes the full reachability tree rooted at
// root, following dependency edges forward. The closure is one recursive
// query against the store; the tree is assembled in memory from the flat
// edge relation.
func (g *Graph) TransitiveDependencies(ctx context.Context, root purl.Purl) (*PackageTree, error) {
	const op = "graph.TransitiveDependencies"

	start := time.Now()
	defer func() {
		g.metrics.HistogramObserve(metrics.ClosureDuration.Name,
			time.Since(start).Seconds(), "graph", "dependency")
	}()

	rootPkg, err := g.ResolveOrCreate(ctx, root)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	edges, err := g.store.DependencyClosure(ctx, rootPkg.ID)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	children := make(map[int64][]int64)
	participants := map[int64]bool{rootPkg.ID: true}
	for _, e := range edges {
		participants[e.DependentID] = true
		participants[e.DependencyID] = true
		children[e.DependentID] = append(children[e.DependentID], e.DependencyID)
	}

	ids := make([]int64, 0, len(participants))
	for id := range participants {
		ids = append(ids, id)
	}
	rows, err := g.store.GetPackagesByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	packages := make(map[int64]*Package, len(rows))
	for id, row := range rows {
		packages[id] = packageFromRow(row)
	}

	ancestors := make(map[int64]bool)
	return buildTree(rootPkg.ID, children, packages, ancestors), nil
}

// buildTree assembles the closure tree from the flat parent->children map.
// ancestors is the per-path visited set; a child already on the current
// path is a cycle back edge and is not descended into.
func buildTree(id int64, children map[int64][]int64, packages map[int64]*Package, ancestors map[int64]bool) *PackageTree {
	node := &PackageTree{ID: id}
	if pkg, ok := packages[id]; ok {
		node.Purl = pkg.Purl
	}

	ancestors[id] = true
	for _, childID := range children[id] {
		if ancestors[childID] {
			continue
		}
		node.Dependencies = append(node.Dependencies, buildTree(childID, children, packages, ancestors))
	}
	delete(ancestors, id)

	return node
}

func (g *Graph) packagesByIDs(ctx context.Context, ids []int64) ([]*Package, error) {
	rows, err := g.store.GetPackagesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	packages := make([]*Package, 0, len(ids))
	for _, id := range ids {
		if row, ok := rows[id]; ok {
			packages = append(packages, packageFromRow(row))
		}
	}
	return packages, nil
}

// nullableString converts sql null text to a plain optional.
func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// nullableTime converts sql null time to a plain optional.
func nullableTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
