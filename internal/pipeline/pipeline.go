// Package pipeline wires extraction, normalization, hierarchy
// inference, and graph loading into one ingest run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/skillgraph/skillgraph/internal/extract"
	"github.com/skillgraph/skillgraph/internal/graph"
	"github.com/skillgraph/skillgraph/internal/hierarchy"
	"github.com/skillgraph/skillgraph/internal/normalize"
)

type Pipeline struct {
	extractor  *extract.Extractor
	normalizer *normalize.Normalizer
	builder    *hierarchy.Builder
	store      graph.Store
}

func New(e *extract.Extractor, n *normalize.Normalizer, b *hierarchy.Builder, store graph.Store) *Pipeline {
	return &Pipeline{extractor: e, normalizer: n, builder: b, store: store}
}

// Report summarizes one ingest run.
type Report struct {
	RunID          string         `json:"run_id"`
	Duration       time.Duration  `json:"duration"`
	Extraction     extract.Report `json:"extraction"`
	Skills         int            `json:"skills"`
	Requirements   int            `json:"requirements"`
	HierarchyPairs int            `json:"hierarchy_pairs"`
}

// Run ingests a set of jobs end to end. Extraction failures stay
// per-job (reflected in the report); normalization or store failures
// abort the run.
func (p *Pipeline) Run(ctx context.Context, jobs []graph.Job) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	began := time.Now()
	log := slog.With(slog.String("run_id", report.RunID))
	log.Info("pipeline run starting", slog.Int("jobs", len(jobs)))

	results := p.extractor.ExtractBatch(ctx, jobs)
	report.Extraction = extract.Summarize(results)

	perJob := make([][]extract.Mention, len(results))
	for i, r := range results {
		perJob[i] = r.Mentions
	}

	skills, err := p.normalizer.Normalize(ctx, perJob)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	report.Skills = len(skills)

	pairs := p.builder.Infer(ctx, skills)
	report.HierarchyPairs = len(pairs)

	requirements := resolveRequirements(results, normalize.AliasIndex(skills))
	report.Requirements = len(requirements)

	if err := p.store.UpsertJobs(ctx, jobs); err != nil {
		return nil, fmt.Errorf("pipeline: upsert jobs: %w", err)
	}
	if err := p.store.UpsertSkills(ctx, skills); err != nil {
		return nil, fmt.Errorf("pipeline: upsert skills: %w", err)
	}
	if err := p.store.UpsertRequirements(ctx, requirements); err != nil {
		return nil, fmt.Errorf("pipeline: upsert requirements: %w", err)
	}
	if err := p.store.UpsertHierarchy(ctx, pairs); err != nil {
		return nil, fmt.Errorf("pipeline: upsert hierarchy: %w", err)
	}

	report.Duration = time.Since(began)
	log.Info("pipeline run complete",
		slog.Int("extracted", report.Extraction.Succeeded),
		slog.Int("failed", report.Extraction.Failed),
		slog.Int("skills", report.Skills),
		slog.Int("requirements", report.Requirements),
		slog.Int("hierarchy_pairs", report.HierarchyPairs),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// resolveRequirements maps each mention's raw name to its canonical
// skill and keeps one REQUIRES edge per (job, canonical skill). When
// several mentions of a job collapse onto the same canonical skill,
// the highest-confidence mention wins.
func resolveRequirements(results []extract.JobResult, canonicalOf map[string]string) []graph.Requirement {
	var out []graph.Requirement
	index := make(map[string]int) // jobID + "\x00" + skill -> position in out

	for _, r := range results {
		for _, m := range r.Mentions {
			canonical, ok := canonicalOf[m.Name]
			if !ok {
				continue
			}
			req := graph.Requirement{
				JobID:      r.JobID,
				SkillName:  canonical,
				Confidence: m.Confidence,
				Required:   m.Required,
				Level:      m.Level,
			}
			key := r.JobID + "\x00" + canonical
			if at, dup := index[key]; dup {
				if req.Confidence > out[at].Confidence {
					out[at] = req
				}
				continue
			}
			index[key] = len(out)
			out = append(out, req)
		}
	}
	return out
}
