// skillgraph — job-description → skill-graph pipeline.
//
// Ingests job postings, extracts skill mentions with an LLM, normalizes
// them into canonical skills via embedding clustering, infers a skill
// hierarchy, and loads everything into a graph store that serves
// search and matching queries.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/skillgraph/skillgraph/internal/cache"
	"github.com/skillgraph/skillgraph/internal/config"
	"github.com/skillgraph/skillgraph/internal/extract"
	"github.com/skillgraph/skillgraph/internal/graph"
	"github.com/skillgraph/skillgraph/internal/hierarchy"
	"github.com/skillgraph/skillgraph/internal/metrics"
	"github.com/skillgraph/skillgraph/internal/normalize"
	"github.com/skillgraph/skillgraph/internal/pipeline"
	"github.com/skillgraph/skillgraph/internal/provider"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	switch os.Args[1] {
	case "ingest":
		err = runIngest(ctx, cfg, os.Args[2:])
	case "search":
		err = runSearch(ctx, cfg, os.Args[2:])
	case "match":
		err = runMatch(ctx, cfg, os.Args[2:])
	case "title-skills":
		err = runTitleSkills(ctx, cfg, os.Args[2:])
	case "stats":
		err = runStats(ctx, cfg)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", slog.String("command", os.Args[1]), slog.Any("error", err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: skillgraph <command> [flags]

commands:
  ingest <jobs.json>   extract, normalize, and load a job file
  search <query>       search skills (exact, alias, semantic)
  match <skill,...>    find jobs requiring the given skills
  title-skills <title,...>  aggregate skills across job titles
  stats                print graph counts and process metrics`)
}

func runIngest(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	checkpoint := fs.String("checkpoint", cfg.Checkpoint, "checkpoint file for resumable runs")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("ingest: expected one jobs file, got %d args", fs.NArg())
	}

	jobs, err := readJobs(fs.Arg(0))
	if err != nil {
		return err
	}

	client := newProvider(cfg)
	store, err := openStore(ctx, cfg, client)
	if err != nil {
		return err
	}
	defer store.Close()

	dedup := cache.New[[]extract.Mention]("extract", filepath.Join(cfg.CacheDir, "extract.json"))
	hcache := cache.New[[]graph.HierarchyPair]("hierarchy", filepath.Join(cfg.CacheDir, "hierarchy.json"))
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		dedup.WithRedis(rdb)
		hcache.WithRedis(rdb)
	}
	if err := dedup.Load(); err != nil {
		slog.Warn("dedup cache load failed, starting empty", slog.Any("error", err))
	}
	if err := hcache.Load(); err != nil {
		slog.Warn("hierarchy cache load failed, starting empty", slog.Any("error", err))
	}
	// Saved even when the run fails partway: extraction results cached so
	// far are exactly what makes the retry cheap.
	defer saveCaches(dedup, hcache)

	extractor := extract.New(client, extract.Config{
		BatchSize:   cfg.BatchSize,
		MaxInFlight: cfg.MaxInFlight,
	}).WithDedupCache(dedup)
	if *checkpoint != "" {
		cp := extract.NewCheckpoint(*checkpoint)
		if err := cp.Load(); err != nil {
			slog.Warn("checkpoint load failed, starting fresh", slog.Any("error", err))
		}
		extractor.WithCheckpoint(cp)
	}

	p := pipeline.New(
		extractor,
		normalize.New(client, normalize.Config{Eps: cfg.ClusterEps, MinPts: cfg.ClusterMinPts}),
		hierarchy.New(client).WithCache(hcache),
		store,
	)
	report, err := p.Run(ctx, jobs)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func saveCaches(dedup *cache.FileCache[[]extract.Mention], hcache *cache.FileCache[[]graph.HierarchyPair]) {
	if err := dedup.Save(); err != nil {
		slog.Warn("dedup cache save failed", slog.Any("error", err))
	}
	if err := hcache.Save(); err != nil {
		slog.Warn("hierarchy cache save failed", slog.Any("error", err))
	}
}

func runSearch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	topK := fs.Int("top", 10, "max results")
	minSim := fs.Float64("min-similarity", 0.5, "semantic similarity floor")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("search: expected one query, got %d args", fs.NArg())
	}

	store, err := openStore(ctx, cfg, newProvider(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	hits, err := store.SearchSkills(ctx, fs.Arg(0), *topK, *minSim, graph.SearchOptions{})
	if err != nil {
		return err
	}
	return printJSON(hits)
}

func runMatch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	matchAll := fs.Bool("all", false, "require every queried skill")
	includeParents := fs.Bool("parents", true, "count descendant skills toward queried ancestors")
	limit := fs.Int("limit", 20, "max results")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("match: expected a comma-separated skill list")
	}

	store, err := openStore(ctx, cfg, newProvider(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	matches, err := store.JobsRequiringSkills(ctx, splitList(fs.Arg(0)), *matchAll, *includeParents, *limit)
	if err != nil {
		return err
	}
	return printJSON(matches)
}

func runTitleSkills(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("title-skills", flag.ExitOnError)
	includeChildren := fs.Bool("children", false, "include descendant skills as weak signals")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("title-skills: expected a comma-separated title list")
	}

	store, err := openStore(ctx, cfg, newProvider(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	skills, err := store.SkillsForJobTitles(ctx, splitList(fs.Arg(0)), *includeChildren)
	if err != nil {
		return err
	}
	return printJSON(skills)
}

func runStats(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg, newProvider(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(stats); err != nil {
		return err
	}
	fmt.Fprint(os.Stderr, metrics.Format())
	return nil
}

func newProvider(cfg *config.Config) *provider.Client {
	return provider.NewClient(provider.Options{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		EmbedModel:  cfg.EmbedModel,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		EmbedRPS:    cfg.EmbedRPS,
	})
}

// openStore connects to Postgres when a database URL is configured and
// falls back to the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, embedder graph.Embedder) (graph.Store, error) {
	if cfg.DatabaseURL == "" {
		slog.Info("no database configured, using in-memory store")
		return graph.NewMemory(embedder), nil
	}
	return graph.ConnectPostgres(ctx, cfg.DatabaseURL, embedder)
}

func readJobs(path string) ([]graph.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs: %w", err)
	}
	var jobs []graph.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parse jobs: %w", err)
	}
	return jobs, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
