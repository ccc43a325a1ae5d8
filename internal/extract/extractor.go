package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skillgraph/skillgraph/internal/cache"
	"github.com/skillgraph/skillgraph/internal/graph"
	"github.com/skillgraph/skillgraph/internal/metrics"
	"github.com/skillgraph/skillgraph/internal/provider"
)

// Config bounds batching and concurrency.
type Config struct {
	BatchSize   int // descriptions per provider call
	MaxInFlight int // concurrent batch calls
}

// Extractor orchestrates LLM skill extraction. Provider failures stay
// local to the smallest unit that failed: a failed batch call degrades
// to per-job calls, and a job that still fails carries an error marker
// instead of aborting its siblings.
type Extractor struct {
	llm         provider.Completer
	dedup       *cache.FileCache[[]Mention] // nil disables deduplication
	checkpoint  *Checkpoint                 // nil disables resume
	batchSize   int
	maxInFlight int
}

// New creates an Extractor. Zero config fields get defaults.
func New(llm provider.Completer, cfg Config) *Extractor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 3
	}
	return &Extractor{llm: llm, batchSize: cfg.BatchSize, maxInFlight: cfg.MaxInFlight}
}

// WithDedupCache attaches a content-hash cache: descriptions already
// extracted in a previous run (or earlier in this one) skip the
// provider entirely.
func (e *Extractor) WithDedupCache(c *cache.FileCache[[]Mention]) *Extractor {
	e.dedup = c
	return e
}

// WithCheckpoint attaches a checkpoint: jobs already present in it are
// skipped and their stored results returned unchanged, and every
// completed batch is flushed to it.
func (e *Extractor) WithCheckpoint(cp *Checkpoint) *Extractor {
	e.checkpoint = cp
	return e
}

// Extract pulls skill mentions out of a single description. Malformed
// provider output yields an empty list, not an error; the returned
// error is a provider failure that survived retries.
func (e *Extractor) Extract(ctx context.Context, description string) ([]Mention, error) {
	key := dedupKey(description)
	if e.dedup != nil {
		if mentions, ok := e.dedup.Get(ctx, key); ok {
			return mentions, nil
		}
	}
	mentions, err := e.extractUncached(ctx, description)
	if err != nil {
		return nil, err
	}
	if e.dedup != nil {
		e.dedup.Put(ctx, key, mentions)
	}
	return mentions, nil
}

func (e *Extractor) extractUncached(ctx context.Context, description string) ([]Mention, error) {
	raw, err := e.llm.Complete(ctx, systemMessage, fmt.Sprintf(singlePrompt, description))
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return parseMentions(raw), nil
}

// parseMentions decodes and sanitizes a mention array. Anything
// unparseable counts as "no skills found".
func parseMentions(raw string) []Mention {
	var decoded []Mention
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		slog.Warn("unparseable extraction output, treating as empty",
			slog.Any("error", err), slog.Int("len", len(raw)))
		return []Mention{}
	}
	out := make([]Mention, 0, len(decoded))
	for _, m := range decoded {
		if m.sanitize() {
			out = append(out, m)
		}
	}
	return out
}

// ExtractBatch processes jobs in provider batches and returns exactly
// one result per input job, in input order, regardless of batch
// completion order.
func (e *Extractor) ExtractBatch(ctx context.Context, jobs []graph.Job) []JobResult {
	results := make([]JobResult, len(jobs))
	for i, job := range jobs {
		results[i] = JobResult{JobID: job.ID, Mentions: []Mention{}}
	}

	// Resolve jobs from the checkpoint and the dedup cache first; only
	// the remainder goes to the provider.
	var pending []int
	for i, job := range jobs {
		if e.checkpoint != nil {
			if stored, ok := e.checkpoint.Get(job.ID); ok {
				results[i] = stored
				continue
			}
		}
		if e.dedup != nil {
			if mentions, ok := e.dedup.Get(ctx, dedupKey(job.Description)); ok {
				results[i] = JobResult{JobID: job.ID, Mentions: mentions}
				e.checkpointBatch(results[i])
				continue
			}
		}
		pending = append(pending, i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxInFlight)
	for start := 0; start < len(pending); start += e.batchSize {
		end := min(start+e.batchSize, len(pending))
		indexes := pending[start:end]
		g.Go(func() error {
			began := time.Now()
			e.processBatch(gctx, jobs, indexes, results)
			metrics.ExtractDuration.Observe(time.Since(began).Seconds())

			batchResults := make([]JobResult, 0, len(indexes))
			for _, i := range indexes {
				batchResults = append(batchResults, results[i])
				if e.dedup != nil && !results[i].Failed() {
					e.dedup.Put(gctx, dedupKey(jobs[i].Description), results[i].Mentions)
				}
			}
			e.checkpointBatch(batchResults...)
			return nil
		})
	}
	_ = g.Wait() // batch workers never return errors; failures degrade per job

	// Only jobs the provider processed this run count as work done;
	// checkpoint- and dedup-resolved slots were counted when first
	// extracted.
	for _, i := range pending {
		if results[i].Failed() {
			metrics.JobsFailed.Inc()
		} else {
			metrics.JobsExtracted.Inc()
		}
	}
	return results
}

// processBatch issues one provider call for a set of job indexes and
// demultiplexes the response strictly by the index field the model
// emitted — providers may reorder. Slots the response never mentions
// stay empty.
func (e *Extractor) processBatch(ctx context.Context, jobs []graph.Job, indexes []int, results []JobResult) {
	var sb strings.Builder
	for local, i := range indexes {
		fmt.Fprintf(&sb, "\n[%d]\n%s\n", local, jobs[i].Description)
	}

	raw, err := e.llm.Complete(ctx, systemMessage, fmt.Sprintf(batchPrompt, sb.String()))
	if err != nil {
		slog.Warn("batch extraction failed, falling back to per-job calls",
			slog.Int("jobs", len(indexes)), slog.Any("error", err))
		metrics.BatchFallbacks.Inc()
		e.fallback(ctx, jobs, indexes, results)
		return
	}

	type batchSlot struct {
		Index  int       `json:"index"`
		Skills []Mention `json:"skills"`
	}
	var slots []batchSlot
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		slog.Warn("unparseable batch output, treating all slots as empty",
			slog.Int("jobs", len(indexes)), slog.Any("error", err))
		return
	}

	for _, slot := range slots {
		if slot.Index < 0 || slot.Index >= len(indexes) {
			slog.Warn("batch slot index out of range", slog.Int("index", slot.Index))
			continue
		}
		mentions := make([]Mention, 0, len(slot.Skills))
		for _, m := range slot.Skills {
			if m.sanitize() {
				mentions = append(mentions, m)
			}
		}
		results[indexes[slot.Index]].Mentions = mentions
	}
}

// fallback re-runs each job of a failed batch individually and
// sequentially, best effort. A job that still fails gets an error
// marker, never an exception.
func (e *Extractor) fallback(ctx context.Context, jobs []graph.Job, indexes []int, results []JobResult) {
	for _, i := range indexes {
		mentions, err := e.extractUncached(ctx, jobs[i].Description)
		if err != nil {
			results[i] = JobResult{JobID: jobs[i].ID, Mentions: []Mention{}, Err: err.Error()}
			continue
		}
		results[i] = JobResult{JobID: jobs[i].ID, Mentions: mentions}
	}
}

// checkpointBatch records completed results and flushes the checkpoint
// file. Persistence failures cost the resume benefit, not the run.
func (e *Extractor) checkpointBatch(results ...JobResult) {
	if e.checkpoint == nil {
		return
	}
	e.checkpoint.Put(results...)
	if err := e.checkpoint.Save(); err != nil {
		slog.Warn("checkpoint save failed, continuing", slog.Any("error", err))
	}
}

func dedupKey(description string) string {
	return cache.Key("extract", description)
}

// Report aggregates a run's per-job outcomes for operational
// visibility.
type Report struct {
	Total             int     `json:"total"`
	Succeeded         int     `json:"succeeded"`
	Failed            int     `json:"failed"`
	TotalMentions     int     `json:"total_mentions"`
	AvgMentionsPerJob float64 `json:"avg_mentions_per_job"`
}

// Summarize computes the aggregate report for a result set.
func Summarize(results []JobResult) Report {
	r := Report{Total: len(results)}
	for _, res := range results {
		if res.Failed() {
			r.Failed++
			continue
		}
		r.Succeeded++
		r.TotalMentions += len(res.Mentions)
	}
	if r.Succeeded > 0 {
		r.AvgMentionsPerJob = float64(r.TotalMentions) / float64(r.Succeeded)
	}
	return r
}
