package graph

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/exploopio/vulngraph/pkg/cache"
	"github.com/exploopio/vulngraph/pkg/cpe"
	"github.com/exploopio/vulngraph/pkg/errors"
	"github.com/exploopio/vulngraph/pkg/metrics"
	"github.com/exploopio/vulngraph/pkg/purl"
	"github.com/exploopio/vulngraph/pkg/storage"
)

// Sbom is one ingested SBOM document record. Its identity is the
// (location, sha256) pair; document ids distinguish re-publications of the
// same logical document.
type Sbom struct {
	ID         int64
	DocumentID string
	Location   string
	Sha256     string
	Title      *string
	Published  *time.Time
}

// SbomInfo carries the optional document metadata supplied at ingest time.
type SbomInfo struct {
	DocumentID string
	Title      *string
	Published  *time.Time
}

// SbomContext scopes describes edges and relates-to edges to one SBOM.
// Edges recorded through one context are invisible through any other.
type SbomContext struct {
	graph *Graph
	sbom  *Sbom
}

// Sbom returns the document record this context is scoped to.
func (c *SbomContext) Sbom() *Sbom {
	return c.sbom
}

// =============================================================================
// Document ingest and lookup
// =============================================================================

// IngestSbom registers an SBOM document, returning a context scoped to it.
// Ingesting the same (location, sha256) pair again returns the existing
// record unchanged. A missing document id gets a freshly generated one.
func (g *Graph) IngestSbom(ctx context.Context, location, sha256 string, info SbomInfo) (*SbomContext, error) {
	const op = "graph.IngestSbom"

	existing, err := g.store.GetSbom(ctx, location, sha256)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	if existing != nil {
		return &SbomContext{graph: g, sbom: sbomFromRow(existing)}, nil
	}

	documentID := info.DocumentID
	if documentID == "" {
		documentID = uuid.New().String()
	}

	row, err := g.store.InsertSbom(ctx, documentID, location, sha256, info.Title, info.Published)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	g.log.Info("ingested sbom location=%s sha256=%s document_id=%s", location, sha256, documentID)
	return &SbomContext{graph: g, sbom: sbomFromRow(row)}, nil
}

// GetSbom fetches an existing SBOM context by its (location, sha256)
// identity, nil when absent.
func (g *Graph) GetSbom(ctx context.Context, location, sha256 string) (*SbomContext, error) {
	row, err := g.store.GetSbom(ctx, location, sha256)
	if err != nil || row == nil {
		return nil, err
	}
	return &SbomContext{graph: g, sbom: sbomFromRow(row)}, nil
}

// SbomsByLocation returns every SBOM ingested from one source location.
func (g *Graph) SbomsByLocation(ctx context.Context, location string) ([]*Sbom, error) {
	rows, err := g.store.SbomsByLocation(ctx, location)
	if err != nil {
		return nil, err
	}
	return sbomsFromRows(rows), nil
}

// SbomsBySha256 returns every SBOM with the given document digest.
func (g *Graph) SbomsBySha256(ctx context.Context, sha256 string) ([]*Sbom, error) {
	rows, err := g.store.SbomsBySha256(ctx, sha256)
	if err != nil {
		return nil, err
	}
	return sbomsFromRows(rows), nil
}

// SbomsDescribingPackage returns the SBOMs that describe the given package
// identity. An unknown identity yields an empty result.
func (g *Graph) SbomsDescribingPackage(ctx context.Context, p purl.Purl) ([]*Sbom, error) {
	pkg, err := g.GetPackage(ctx, p)
	if err != nil || pkg == nil {
		return nil, err
	}
	rows, err := g.store.SbomsByDescribedPackage(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}
	return sbomsFromRows(rows), nil
}

// SbomsDescribingCpe returns the SBOMs that describe the given CPE.
func (g *Graph) SbomsDescribingCpe(ctx context.Context, c cpe.CPE) ([]*Sbom, error) {
	row, err := g.store.GetCpe(ctx, c.URI())
	if err != nil || row == nil {
		return nil, err
	}
	rows, err := g.store.SbomsByDescribedCpe(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	return sbomsFromRows(rows), nil
}

// =============================================================================
// Describes edges
// =============================================================================

// DescribesPackage records the package the document primarily describes.
// Only the first description per SBOM is kept; later calls are no-ops.
func (c *SbomContext) DescribesPackage(ctx context.Context, p purl.Purl) error {
	const op = "graph.SbomContext.DescribesPackage"

	described, err := c.graph.store.HasDescribesPackage(ctx, c.sbom.ID)
	if err != nil {
		return errors.Wrap(err, op)
	}
	if described {
		c.graph.log.Debug("sbom %d already has a described package, keeping the first", c.sbom.ID)
		return nil
	}

	pkg, err := c.graph.ResolveOrCreate(ctx, p)
	if err != nil {
		return errors.Wrap(err, op)
	}
	return c.graph.store.InsertDescribesPackage(ctx, c.sbom.ID, pkg.ID)
}

// DescribesCpe records a CPE the document describes. Unlike the package
// description, an SBOM may describe any number of CPEs.
func (c *SbomContext) DescribesCpe(ctx context.Context, cp cpe.CPE) error {
	const op = "graph.SbomContext.DescribesCpe"

	row, err := c.graph.store.ResolveCpe(ctx, cp.URI())
	if err != nil {
		return errors.Wrap(err, op)
	}
	return c.graph.store.InsertDescribesCpe(ctx, c.sbom.ID, row.ID)
}

// DescribedPackages returns the package identities this SBOM describes.
func (c *SbomContext) DescribedPackages(ctx context.Context) ([]*Package, error) {
	ids, err := c.graph.store.DescribedPackageIDs(ctx, c.sbom.ID)
	if err != nil {
		return nil, err
	}
	return c.graph.packagesByIDs(ctx, ids)
}

// DescribedCpes returns the CPEs this SBOM describes.
func (c *SbomContext) DescribedCpes(ctx context.Context) ([]cpe.CPE, error) {
	rows, err := c.graph.store.DescribedCpes(ctx, c.sbom.ID)
	if err != nil {
		return nil, err
	}
	cpes := make([]cpe.CPE, 0, len(rows))
	for _, row := range rows {
		parsed, err := cpe.Parse(row.URI)
		if err != nil {
			return nil, err
		}
		cpes = append(cpes, parsed)
	}
	return cpes, nil
}

// =============================================================================
// Relates-to edges
// =============================================================================

// Relate records one typed relationship edge between two referenced
// packages within this SBOM. Identities are resolved through the supplied
// cache so repeated references within one ingest hit the store once.
//
// A reference that fails to resolve is logged and skipped rather than
// aborting the ingest; the remaining document still lands.
func (c *SbomContext) Relate(ctx context.Context, resolver *cache.Cache[*Package], left string, rel Relationship, right string) error {
	const op = "graph.SbomContext.Relate"

	leftPkg, err := resolver.Lookup(ctx, left)
	if err != nil {
		c.graph.log.Warn("skipping relationship, unresolvable left ref %q: %v", left, err)
		c.graph.metrics.CounterInc(metrics.RelationshipsTotal.Name, "status", "skipped")
		return nil
	}
	rightPkg, err := resolver.Lookup(ctx, right)
	if err != nil {
		c.graph.log.Warn("skipping relationship, unresolvable right ref %q: %v", right, err)
		c.graph.metrics.CounterInc(metrics.RelationshipsTotal.Name, "status", "skipped")
		return nil
	}

	_, err = c.graph.store.UpsertRelationship(ctx, c.sbom.ID, leftPkg.ID, int(rel), rightPkg.ID)
	if err != nil {
		return errors.Wrap(err, op)
	}
	c.graph.metrics.CounterInc(metrics.RelationshipsTotal.Name, "status", "ingested")
	return nil
}

// Related returns the packages standing in the given relationship to the
// right-hand package, within this SBOM only. An unknown right-hand identity
// yields an empty result.
func (c *SbomContext) Related(ctx context.Context, rel Relationship, right purl.Purl) ([]*Package, error) {
	const op = "graph.SbomContext.Related"

	rightPkg, err := c.graph.GetPackage(ctx, right)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	if rightPkg == nil {
		return nil, nil
	}

	ids, err := c.graph.store.RelatedLeftIDs(ctx, c.sbom.ID, int(rel), rightPkg.ID)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return c.graph.packagesByIDs(ctx, ids)
}

// RelatedTransitively returns every package reachable from the root by
// repeatedly following any of the given relationship types right to left,
// within this SBOM only. The root itself is not included unless a cycle
// reaches back to it.
func (c *SbomContext) RelatedTransitively(ctx context.Context, rels []Relationship, root purl.Purl) ([]*Package, error) {
	const op = "graph.SbomContext.RelatedTransitively"

	start := time.Now()
	defer func() {
		c.graph.metrics.HistogramObserve(metrics.ClosureDuration.Name,
			time.Since(start).Seconds(), "graph", "sbom")
	}()

	rootPkg, err := c.graph.GetPackage(ctx, root)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	if rootPkg == nil {
		return nil, nil
	}

	ids, err := c.graph.store.RelationshipClosure(ctx, c.sbom.ID, relationshipCodes(rels), rootPkg.ID)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return c.graph.packagesByIDs(ctx, ids)
}

func sbomFromRow(row *storage.SbomRow) *Sbom {
	return &Sbom{
		ID:         row.ID,
		DocumentID: row.DocumentID,
		Location:   row.Location,
		Sha256:     row.Sha256,
		Title:      nullableString(row.Title),
		Published:  nullableTime(row.Published),
	}
}

func sbomsFromRows(rows []*storage.SbomRow) []*Sbom {
	sboms := make([]*Sbom, 0, len(rows))
	for _, row := range rows {
		sboms = append(sboms, sbomFromRow(row))
	}
	return sboms
}
