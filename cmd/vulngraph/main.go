// Vulngraph - Package identity and relationship graph engine
//
// Typical usage:
//
//	RESOLVE A PACKAGE IDENTITY:
//	  vulngraph -resolve "pkg:maven/io.quarkus/quarkus-core@1.9.3?type=jar"
//
//	INGEST DEPENDENCY EDGES (one "dependent dependency" pair per line):
//	  vulngraph -deps edges.txt
//
//	PRINT A TRANSITIVE DEPENDENCY TREE:
//	  vulngraph -tree "pkg:npm/app@1.0.0"
//
//	INGEST SBOM RELATIONSHIPS (one "left RELATIONSHIP right" triple per line):
//	  vulngraph -sbom-location http://example.com/sbom.json -sbom-sha256 8675309 \
//	    -describes "pkg:maven/com.example/app@1.0.0" -relate edges.txt
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/exploopio/vulngraph/pkg/graph"
	"github.com/exploopio/vulngraph/pkg/logging"
	"github.com/exploopio/vulngraph/pkg/metrics"
	"github.com/exploopio/vulngraph/pkg/storage"
)

const (
	appName    = "vulngraph"
	appVersion = "1.0.0"
)

// Config is the engine configuration file.
type Config struct {
	Database struct {
		Path        string        `yaml:"path"`
		BusyTimeout time.Duration `yaml:"busy_timeout"`
	} `yaml:"database"`

	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func loadConfig(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
		version    = flag.Bool("version", false, "print version and exit")

		resolveRef = flag.String("resolve", "", "resolve (or create) a package identity from a purl")
		depsFile   = flag.String("deps", "", "ingest dependency edges from file, one 'dependent dependency' pair per line")
		treeRef    = flag.String("tree", "", "print the transitive dependency tree of a purl")
		listTypes  = flag.Bool("list-types", false, "list distinct package types")
		listNs     = flag.Bool("list-namespaces", false, "list distinct package namespaces")

		sbomLocation = flag.String("sbom-location", "", "SBOM source location for relationship ingest")
		sbomSha256   = flag.String("sbom-sha256", "", "SBOM document sha256 for relationship ingest")
		describesRef = flag.String("describes", "", "purl the SBOM describes")
		relateFile   = flag.String("relate", "", "ingest relationship edges from file, one 'left RELATIONSHIP right' triple per line")

		metricsListen = flag.String("metrics-listen", "", "serve Prometheus metrics on this address (overrides config)")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s %s\n", appName, appVersion)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("%v", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *metricsListen != "" {
		cfg.Metrics.Listen = *metricsListen
	}

	logger := logging.NewDefaultLogger("[vulngraph] ", logging.LevelInfo)
	if *verbose || strings.EqualFold(cfg.Logging.Level, "debug") {
		logger.SetLevel(logging.LevelDebug)
	}

	storeCfg := storage.DefaultConfig()
	if cfg.Database.Path != "" {
		storeCfg.DatabasePath = cfg.Database.Path
	}
	if cfg.Database.BusyTimeout > 0 {
		storeCfg.BusyTimeout = cfg.Database.BusyTimeout
	}

	store, err := storage.New(storeCfg)
	if err != nil {
		fatal("open store: %v", err)
	}
	defer store.Close()

	collector := metrics.Collector(&metrics.NopCollector{})
	if cfg.Metrics.Listen != "" {
		prom := metrics.NewPrometheusCollector(&metrics.PrometheusConfig{
			Namespace:              "vulngraph",
			RegisterDefaultMetrics: true,
		})
		collector = prom
		go serveMetrics(cfg.Metrics.Listen, prom, logger)
	}

	g := graph.New(store, graph.WithLogger(logger), graph.WithMetrics(collector))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *resolveRef != "":
		err = runResolve(ctx, g, *resolveRef)
	case *depsFile != "":
		err = runIngestDeps(ctx, g, *depsFile)
	case *treeRef != "":
		err = runTree(ctx, g, *treeRef)
	case *listTypes:
		err = runList(ctx, g.PackageTypes)
	case *listNs:
		err = runList(ctx, g.PackageNamespaces)
	case *relateFile != "" || *describesRef != "":
		err = runSbomIngest(ctx, g, *sbomLocation, *sbomSha256, *describesRef, *relateFile)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fatal("%v", err)
	}
}

func runResolve(ctx context.Context, g *graph.Graph, ref string) error {
	pkg, err := g.ResolveOrCreateRef(ctx, ref)
	if err != nil {
		return err
	}
	fmt.Printf("%d\t%s\n", pkg.ID, pkg.Purl.String())
	return nil
}

func runIngestDeps(ctx context.Context, g *graph.Graph, path string) error {
	return eachLine(path, func(line string) error {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return fmt.Errorf("malformed edge line %q, want 'dependent dependency'", line)
		}
		return g.IngestDependencyRefs(ctx, fields[0], fields[1])
	})
}

func runTree(ctx context.Context, g *graph.Graph, ref string) error {
	p, err := g.ResolveOrCreateRef(ctx, ref)
	if err != nil {
		return err
	}
	tree, err := g.TransitiveDependencies(ctx, p.Purl)
	if err != nil {
		return err
	}
	printTree(tree, 0)
	return nil
}

func printTree(node *graph.PackageTree, depth int) {
	fmt.Printf("%s%s\n", strings.Repeat("  ", depth), node.Purl.String())
	for _, dep := range node.Dependencies {
		printTree(dep, depth+1)
	}
}

func runList(ctx context.Context, list func(context.Context) ([]string, error)) error {
	values, err := list(ctx)
	if err != nil {
		return err
	}
	for _, v := range values {
		fmt.Println(v)
	}
	return nil
}

func runSbomIngest(ctx context.Context, g *graph.Graph, location, sha256, describes, relatePath string) error {
	if location == "" || sha256 == "" {
		return fmt.Errorf("relationship ingest requires -sbom-location and -sbom-sha256")
	}

	sbom, err := g.IngestSbom(ctx, location, sha256, graph.SbomInfo{})
	if err != nil {
		return err
	}

	if describes != "" {
		pkg, err := g.ResolveOrCreateRef(ctx, describes)
		if err != nil {
			return err
		}
		if err := sbom.DescribesPackage(ctx, pkg.Purl); err != nil {
			return err
		}
	}

	if relatePath == "" {
		return nil
	}

	resolver := g.NewResolutionCache(1024)
	return eachLine(relatePath, func(line string) error {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return fmt.Errorf("malformed relationship line %q, want 'left RELATIONSHIP right'", line)
		}
		rel, err := graph.ParseRelationship(fields[1])
		if err != nil {
			return err
		}
		return sbom.Relate(ctx, resolver, fields[0], rel, fields[2])
	})
}

// eachLine applies fn to every non-empty, non-comment line of the file.
// "-" reads standard input.
func eachLine(path string, fn func(line string) error) error {
	var file *os.File
	if path == "-" {
		file = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		file = f
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func serveMetrics(addr string, prom *metrics.PrometheusCollector, logger logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	logger.Info("serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server: %v", err)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, appName+": "+format+"\n", args...)
	os.Exit(1)
}
