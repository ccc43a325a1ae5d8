package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillgraph/skillgraph/internal/extract"
	"github.com/skillgraph/skillgraph/internal/graph"
	"github.com/skillgraph/skillgraph/internal/hierarchy"
	"github.com/skillgraph/skillgraph/internal/normalize"
)

// scriptedProvider answers extraction and hierarchy prompts with canned
// JSON and serves fixed embedding vectors.
type scriptedProvider struct {
	extraction string
	pairs      string
	vectors    map[string][]float32
}

func (s *scriptedProvider) Complete(_ context.Context, _, prompt string) (string, error) {
	if strings.Contains(prompt, `"parent"`) {
		return s.pairs, nil
	}
	return s.extraction, nil
}

func (s *scriptedProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := s.vectors[text]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", text)
		}
		out[i] = v
	}
	return out, nil
}

func TestPipelineRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	p := &scriptedProvider{
		extraction: `[
			{"index": 0, "skills": [
				{"skill": "Python", "category": "technical", "confidence": 0.5, "required": true},
				{"skill": "Python", "category": "technical", "confidence": 0.9, "required": true},
				{"skill": "Django", "category": "technical", "confidence": 0.8, "required": true}
			]},
			{"index": 1, "skills": [
				{"skill": "Python", "category": "technical", "confidence": 0.7},
				{"skill": "Postgres", "category": "technical", "confidence": 0.6}
			]}
		]`,
		pairs: `[]`,
		vectors: map[string][]float32{
			"Python":   {1, 0, 0},
			"Django":   {0, 1, 0},
			"Postgres": {0, 0, 1},
		},
	}
	store := graph.NewMemory(p)

	pipe := New(
		extract.New(p, extract.Config{BatchSize: 10}),
		normalize.New(p, normalize.Config{}),
		hierarchy.New(p),
		store,
	)

	jobs := []graph.Job{
		{ID: "j1", Title: "Backend Engineer", Description: "build Django services"},
		{ID: "j2", Title: "Data Engineer", Description: "Python pipelines on Postgres"},
	}
	report, err := pipe.Run(ctx, jobs)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Extraction.Succeeded)
	assert.Zero(t, report.Extraction.Failed)
	assert.Equal(t, 3, report.Skills)
	assert.Equal(t, 4, report.Requirements)
	// Static taxonomy links Python -> Django within this skill set.
	assert.Equal(t, 1, report.HierarchyPairs)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, graph.Stats{Jobs: 2, Skills: 3, Requirements: 4, HierarchyEdges: 1}, stats)

	// Duplicate Python mentions on j1 collapsed onto one edge keeping
	// the highest confidence.
	titleSkills, err := store.SkillsForJobTitles(ctx, []string{"Backend Engineer"}, false)
	require.NoError(t, err)
	require.NotEmpty(t, titleSkills)
	for _, ts := range titleSkills {
		if ts.Name == "Python" {
			assert.Equal(t, 0.9, ts.AvgConfidence)
			assert.Equal(t, 1, ts.Frequency)
		}
	}

	// Descendant matching works over the loaded hierarchy.
	matches, err := store.JobsRequiringSkills(ctx, []string{"Python"}, false, true, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "j1", matches[0].Job.ID)
	assert.Equal(t, 1.0, matches[0].Coverage)
}

func TestResolveRequirementsKeepsHighestConfidence(t *testing.T) {
	results := []extract.JobResult{
		{JobID: "j1", Mentions: []extract.Mention{
			{Name: "JS", Confidence: 0.4, Required: false},
			{Name: "JavaScript", Confidence: 0.9, Required: true, Level: "senior"},
			{Name: "Unknown", Confidence: 0.8},
		}},
		{JobID: "j2", Err: "provider down"},
	}
	index := map[string]string{"JS": "JavaScript", "JavaScript": "JavaScript"}

	reqs := resolveRequirements(results, index)
	require.Len(t, reqs, 1)
	assert.Equal(t, graph.Requirement{
		JobID:      "j1",
		SkillName:  "JavaScript",
		Confidence: 0.9,
		Required:   true,
		Level:      "senior",
	}, reqs[0])
}
