package graph

import (
	"context"
	"testing"

	"github.com/exploopio/vulngraph/pkg/cpe"
	"github.com/exploopio/vulngraph/pkg/logging"
	"github.com/exploopio/vulngraph/pkg/metrics"
	"github.com/exploopio/vulngraph/pkg/purl"
)

func ingestTestSbom(t *testing.T, g *Graph, location string) *SbomContext {
	t.Helper()
	sbom, err := g.IngestSbom(context.Background(), location, "8675309", SbomInfo{})
	if err != nil {
		t.Fatalf("IngestSbom(%q): %v", location, err)
	}
	return sbom
}

func TestIngestSbom_Idempotent(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	first, err := g.IngestSbom(ctx, "http://example.com/sbom.json", "8675309", SbomInfo{})
	if err != nil {
		t.Fatalf("first IngestSbom: %v", err)
	}
	second, err := g.IngestSbom(ctx, "http://example.com/sbom.json", "8675309", SbomInfo{})
	if err != nil {
		t.Fatalf("second IngestSbom: %v", err)
	}

	if first.Sbom().ID != second.Sbom().ID {
		t.Errorf("re-ingest created a new record: %d vs %d", first.Sbom().ID, second.Sbom().ID)
	}
	if first.Sbom().DocumentID == "" {
		t.Error("document id should be generated when absent")
	}
	if second.Sbom().DocumentID != first.Sbom().DocumentID {
		t.Errorf("re-ingest changed document id: %q vs %q",
			second.Sbom().DocumentID, first.Sbom().DocumentID)
	}

	// Same location, different digest is a distinct document.
	other, err := g.IngestSbom(ctx, "http://example.com/sbom.json", "other-digest", SbomInfo{})
	if err != nil {
		t.Fatalf("other IngestSbom: %v", err)
	}
	if other.Sbom().ID == first.Sbom().ID {
		t.Error("distinct digest should create a distinct record")
	}
}

func TestSbomLocators(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	sbom := ingestTestSbom(t, g, "http://example.com/app.json")
	described := mustPurl(t, "pkg:maven/com.example/app@1.0.0")
	if err := sbom.DescribesPackage(ctx, described); err != nil {
		t.Fatalf("DescribesPackage: %v", err)
	}
	theCpe, err := cpe.Parse("cpe:/a:example:app:1.0.0")
	if err != nil {
		t.Fatalf("cpe.Parse: %v", err)
	}
	if err := sbom.DescribesCpe(ctx, theCpe); err != nil {
		t.Fatalf("DescribesCpe: %v", err)
	}

	byLocation, err := g.SbomsByLocation(ctx, "http://example.com/app.json")
	if err != nil {
		t.Fatalf("SbomsByLocation: %v", err)
	}
	if len(byLocation) != 1 || byLocation[0].ID != sbom.Sbom().ID {
		t.Errorf("SbomsByLocation = %+v", byLocation)
	}

	bySha, err := g.SbomsBySha256(ctx, "8675309")
	if err != nil {
		t.Fatalf("SbomsBySha256: %v", err)
	}
	if len(bySha) != 1 {
		t.Errorf("SbomsBySha256 returned %d records, want 1", len(bySha))
	}

	byPackage, err := g.SbomsDescribingPackage(ctx, described)
	if err != nil {
		t.Fatalf("SbomsDescribingPackage: %v", err)
	}
	if len(byPackage) != 1 || byPackage[0].ID != sbom.Sbom().ID {
		t.Errorf("SbomsDescribingPackage = %+v", byPackage)
	}

	byCpe, err := g.SbomsDescribingCpe(ctx, theCpe)
	if err != nil {
		t.Fatalf("SbomsDescribingCpe: %v", err)
	}
	if len(byCpe) != 1 {
		t.Errorf("SbomsDescribingCpe returned %d records, want 1", len(byCpe))
	}

	// Unknown package or CPE yields empty, not an error.
	none, err := g.SbomsDescribingPackage(ctx, mustPurl(t, "pkg:npm/unknown@0.0.1"))
	if err != nil {
		t.Fatalf("SbomsDescribingPackage unknown: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unknown package matched %d sboms", len(none))
	}
}

func TestDescribesPackage_FirstWins(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	sbom := ingestTestSbom(t, g, "http://example.com/app.json")

	first := mustPurl(t, "pkg:maven/com.example/app@1.0.0")
	second := mustPurl(t, "pkg:maven/com.example/other@2.0.0")

	if err := sbom.DescribesPackage(ctx, first); err != nil {
		t.Fatalf("first DescribesPackage: %v", err)
	}
	if err := sbom.DescribesPackage(ctx, second); err != nil {
		t.Fatalf("second DescribesPackage: %v", err)
	}

	described, err := sbom.DescribedPackages(ctx)
	if err != nil {
		t.Fatalf("DescribedPackages: %v", err)
	}
	if len(described) != 1 {
		t.Fatalf("described = %d packages, want 1", len(described))
	}
	if described[0].Purl.Name != "app" {
		t.Errorf("described = %q, the first description must win", described[0].Purl.Name)
	}
}

func TestRelate_AndRelated(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	sbom := ingestTestSbom(t, g, "http://example.com/app.json")
	resolver := g.NewResolutionCache(16)

	app := "pkg:maven/com.example/app@1.0.0"
	libA := "pkg:maven/com.example/lib-a@1.0.0"
	libB := "pkg:maven/com.example/lib-b@1.0.0"

	for _, left := range []string{libA, libB} {
		if err := sbom.Relate(ctx, resolver, left, DependencyOf, app); err != nil {
			t.Fatalf("Relate(%q): %v", left, err)
		}
	}
	// Re-recording the same edge is a no-op.
	if err := sbom.Relate(ctx, resolver, libA, DependencyOf, app); err != nil {
		t.Fatalf("repeat Relate: %v", err)
	}

	related, err := sbom.Related(ctx, DependencyOf, mustPurl(t, app))
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(related) != 2 {
		t.Fatalf("related = %d packages, want 2", len(related))
	}

	// Other relationship types on the same pair are independent edges.
	if err := sbom.Relate(ctx, resolver, libA, ContainedBy, app); err != nil {
		t.Fatalf("Relate contained-by: %v", err)
	}
	contained, err := sbom.Related(ctx, ContainedBy, mustPurl(t, app))
	if err != nil {
		t.Fatalf("Related contained-by: %v", err)
	}
	if len(contained) != 1 {
		t.Errorf("contained = %d packages, want 1", len(contained))
	}
}

func TestRelate_ScopedToSbom(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()

	one := ingestTestSbom(t, g, "http://example.com/one.json")
	two := ingestTestSbom(t, g, "http://example.com/two.json")
	resolver := g.NewResolutionCache(16)

	app := "pkg:npm/app@1.0.0"
	lib := "pkg:npm/lib@1.0.0"
	if err := one.Relate(ctx, resolver, lib, DependencyOf, app); err != nil {
		t.Fatalf("Relate: %v", err)
	}

	visible, err := two.Related(ctx, DependencyOf, mustPurl(t, app))
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(visible) != 0 {
		t.Errorf("edges leaked across sbom contexts: %d visible", len(visible))
	}
}

func TestRelate_SkipsUnresolvableRefs(t *testing.T) {
	collector := metrics.NewInMemoryCollector()
	g := newTestGraph(t, WithLogger(&logging.NopLogger{}), WithMetrics(collector))
	ctx := context.Background()
	sbom := ingestTestSbom(t, g, "http://example.com/partial.json")
	resolver := g.NewResolutionCache(32)

	app := "pkg:npm/app@1.0.0"
	refs := []string{
		"pkg:npm/dep-0@1.0.0",
		"pkg:npm/dep-1@1.0.0",
		"this is not a purl",
		"pkg:npm/dep-2@1.0.0",
		"pkg:npm/dep-3@1.0.0",
		"also::broken",
		"pkg:npm/dep-4@1.0.0",
		"pkg:npm/dep-5@1.0.0",
		"pkg:npm/dep-6@1.0.0",
		"pkg:npm/dep-7@1.0.0",
	}
	for _, left := range refs {
		if err := sbom.Relate(ctx, resolver, left, DependencyOf, app); err != nil {
			t.Fatalf("Relate(%q) must tolerate bad refs, got %v", left, err)
		}
	}

	related, err := sbom.Related(ctx, DependencyOf, mustPurl(t, app))
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(related) != 8 {
		t.Errorf("edges = %d, want 8 (2 malformed refs skipped)", len(related))
	}
	if got := collector.CounterValue(metrics.RelationshipsTotal.Name, "status", "skipped"); got != 2 {
		t.Errorf("skipped counter = %v, want 2", got)
	}
	if got := collector.CounterValue(metrics.RelationshipsTotal.Name, "status", "ingested"); got != 8 {
		t.Errorf("ingested counter = %v, want 8", got)
	}
}

func TestRelate_SkipsVersionlessRefs(t *testing.T) {
	collector := metrics.NewInMemoryCollector()
	g := newTestGraph(t, WithMetrics(collector))
	ctx := context.Background()
	sbom := ingestTestSbom(t, g, "http://example.com/app.json")
	resolver := g.NewResolutionCache(16)

	app := "pkg:npm/app@1.0.0"

	// Well-formed but version-less: cannot name a unique identity, so the
	// edge is skipped like any other unresolvable reference.
	if err := sbom.Relate(ctx, resolver, "pkg:npm/no-version", DependencyOf, app); err != nil {
		t.Fatalf("Relate must tolerate version-less left ref, got %v", err)
	}
	if err := sbom.Relate(ctx, resolver, "pkg:npm/lib@1.0.0", DependencyOf, "pkg:npm/no-version"); err != nil {
		t.Fatalf("Relate must tolerate version-less right ref, got %v", err)
	}

	related, err := sbom.Related(ctx, DependencyOf, mustPurl(t, app))
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(related) != 0 {
		t.Errorf("version-less edges persisted: %d visible", len(related))
	}
	if got := collector.CounterValue(metrics.RelationshipsTotal.Name, "status", "skipped"); got != 2 {
		t.Errorf("skipped counter = %v, want 2", got)
	}

	pkg, err := g.GetPackage(ctx, purl.Purl{Type: "npm", Name: "no-version"})
	if err != nil {
		t.Fatalf("GetPackage: %v", err)
	}
	if pkg != nil {
		t.Errorf("version-less identity was created: id %d", pkg.ID)
	}
}

func TestRelatedTransitively(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	sbom := ingestTestSbom(t, g, "http://example.com/app.json")
	resolver := g.NewResolutionCache(16)

	// direct <- DependencyOf <- app, nested <- ContainedBy <- direct.
	app := "pkg:npm/app@1.0.0"
	direct := "pkg:npm/direct@1.0.0"
	nested := "pkg:npm/nested@1.0.0"
	unrelated := "pkg:npm/unrelated@1.0.0"

	if err := sbom.Relate(ctx, resolver, direct, DependencyOf, app); err != nil {
		t.Fatalf("Relate direct: %v", err)
	}
	if err := sbom.Relate(ctx, resolver, nested, ContainedBy, direct); err != nil {
		t.Fatalf("Relate nested: %v", err)
	}
	if err := sbom.Relate(ctx, resolver, unrelated, DevDependencyOf, app); err != nil {
		t.Fatalf("Relate unrelated: %v", err)
	}

	reachable, err := sbom.RelatedTransitively(ctx,
		[]Relationship{DependencyOf, ContainedBy}, mustPurl(t, app))
	if err != nil {
		t.Fatalf("RelatedTransitively: %v", err)
	}

	names := make(map[string]bool)
	for _, pkg := range reachable {
		names[pkg.Purl.Name] = true
	}
	if len(names) != 2 || !names["direct"] || !names["nested"] {
		t.Errorf("reachable = %v, want {direct, nested}", names)
	}
}
