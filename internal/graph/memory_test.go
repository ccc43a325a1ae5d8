package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, s := range texts {
		v, ok := f.vectors[s]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", s)
		}
		out[i] = v
	}
	return out, nil
}

// seededStore loads a small backend-engineering corpus shared by the
// query tests.
func seededStore(t *testing.T, embedder Embedder) *Memory {
	t.Helper()
	ctx := context.Background()
	m := NewMemory(embedder)

	require.NoError(t, m.UpsertJobs(ctx, []Job{
		{ID: "j1", Title: "Backend Engineer", Description: "Django and PostgreSQL services"},
		{ID: "j2", Title: "Backend Engineer", Description: "Python tooling, some Go"},
		{ID: "j3", Title: "Data Engineer", Description: "Python pipelines"},
	}))
	require.NoError(t, m.UpsertSkills(ctx, []Skill{
		{CanonicalName: "Python", Category: "technical", Aliases: []string{"py"}, Embedding: []float32{1, 0}},
		{CanonicalName: "Django", Category: "technical", Embedding: []float32{0.9, 0.1}},
		{CanonicalName: "Flask", Category: "technical", Embedding: []float32{0.85, 0.15}},
		{CanonicalName: "Go", Category: "technical", Aliases: []string{"golang"}, Embedding: []float32{0, 1}},
		{CanonicalName: "PostgreSQL", Category: "technical", Aliases: []string{"postgres"}, Embedding: []float32{0.2, 0.8}},
	}))
	require.NoError(t, m.UpsertRequirements(ctx, []Requirement{
		{JobID: "j1", SkillName: "Django", Confidence: 0.9, Required: true},
		{JobID: "j1", SkillName: "PostgreSQL", Confidence: 0.8, Required: true},
		{JobID: "j2", SkillName: "Python", Confidence: 0.8, Required: true},
		{JobID: "j2", SkillName: "Go", Confidence: 0.7},
		{JobID: "j3", SkillName: "Python", Confidence: 0.9, Required: true},
	}))
	require.NoError(t, m.UpsertHierarchy(ctx, []HierarchyPair{
		{Parent: "Python", Child: "Django"},
		{Parent: "Python", Child: "Flask"},
	}))
	return m
}

func TestUpsertsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, nil)

	before, err := m.Stats(ctx)
	require.NoError(t, err)

	// Re-applying the same batches must not grow the graph.
	require.NoError(t, m.UpsertJobs(ctx, []Job{{ID: "j1", Title: "Backend Engineer"}}))
	require.NoError(t, m.UpsertSkills(ctx, []Skill{{CanonicalName: "Python", Category: "technical"}}))
	require.NoError(t, m.UpsertRequirements(ctx, []Requirement{
		{JobID: "j1", SkillName: "Django", Confidence: 0.95, Required: false},
	}))
	require.NoError(t, m.UpsertHierarchy(ctx, []HierarchyPair{{Parent: "Python", Child: "Django"}}))

	after, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpsertRequirementOverwritesEdgeProperties(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, nil)

	require.NoError(t, m.UpsertRequirements(ctx, []Requirement{
		{JobID: "j2", SkillName: "Go", Confidence: 0.95, Required: true},
	}))

	matches, err := m.JobsRequiringSkills(ctx, []string{"Go"}, false, false, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "j2", matches[0].Job.ID)
}

func TestUpsertHierarchyRejectsSelfLoops(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	require.NoError(t, m.UpsertHierarchy(ctx, []HierarchyPair{{Parent: "Python", Child: "python"}}))
	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.HierarchyEdges)
}

func TestSearchSkillsExactAndAlias(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, nil)

	tests := []struct {
		query     string
		wantSkill string
		wantType  string
	}{
		{"python", "Python", MatchExact},
		{"PYTHON", "Python", MatchExact},
		{"py", "Python", MatchAlias},
		{"golang", "Go", MatchAlias},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			hits, err := m.SearchSkills(ctx, tt.query, 5, 0, SearchOptions{})
			require.NoError(t, err)
			require.NotEmpty(t, hits)
			assert.Equal(t, tt.wantSkill, hits[0].Skill.CanonicalName)
			assert.Equal(t, tt.wantType, hits[0].MatchType)
			assert.Equal(t, 1.0, hits[0].Similarity)
		})
	}
}

func TestSearchSkillsSemanticRankedBelowExact(t *testing.T) {
	ctx := context.Background()
	embedder := fakeEmbedder{vectors: map[string][]float32{"python": {1, 0}}}
	m := seededStore(t, embedder)

	hits, err := m.SearchSkills(ctx, "python", 3, 0.7, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	// Exact hit leads even though Django's similarity is below 1.0 and
	// the semantic section would rank Python itself highest.
	assert.Equal(t, "Python", hits[0].Skill.CanonicalName)
	assert.Equal(t, MatchExact, hits[0].MatchType)
	assert.Equal(t, MatchSemantic, hits[1].MatchType)
	assert.Equal(t, "Django", hits[1].Skill.CanonicalName)
	assert.Equal(t, "Flask", hits[2].Skill.CanonicalName)
	assert.Greater(t, hits[1].Similarity, hits[2].Similarity)
}

func TestSearchSkillsAliasOutranksCloserSemanticHit(t *testing.T) {
	ctx := context.Background()
	// The query embedding sits right on Kafka, far from Kubernetes; the
	// alias hit must still lead with similarity 1.
	embedder := fakeEmbedder{vectors: map[string][]float32{"k8s": {1, 0}}}
	m := NewMemory(embedder)

	require.NoError(t, m.UpsertSkills(ctx, []Skill{
		{CanonicalName: "Kubernetes", Category: "technical", Aliases: []string{"K8s"}, Embedding: []float32{0, 1}},
		{CanonicalName: "Kafka", Category: "technical", Embedding: []float32{1, 0}},
	}))

	hits, err := m.SearchSkills(ctx, "k8s", 5, 0, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "Kubernetes", hits[0].Skill.CanonicalName)
	assert.Equal(t, MatchAlias, hits[0].MatchType)
	assert.Equal(t, 1.0, hits[0].Similarity)
	assert.Equal(t, "Kafka", hits[1].Skill.CanonicalName)
	assert.Equal(t, MatchSemantic, hits[1].MatchType)
	assert.Greater(t, hits[1].Similarity, 0.99, "Kafka is the semantically closer skill yet ranks below the alias hit")
}

func TestSearchSkillsMinSimilarityFilter(t *testing.T) {
	ctx := context.Background()
	embedder := fakeEmbedder{vectors: map[string][]float32{"snake": {1, 0}}}
	m := seededStore(t, embedder)

	hits, err := m.SearchSkills(ctx, "snake", 10, 0.999, SearchOptions{Semantic: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Python", hits[0].Skill.CanonicalName)
}

func TestSearchSkillsStrategyFlags(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, nil)

	hits, err := m.SearchSkills(ctx, "py", 5, 0, SearchOptions{Exact: true})
	require.NoError(t, err)
	assert.Empty(t, hits, "alias lookup disabled")

	hits, err = m.SearchSkills(ctx, "py", 5, 0, SearchOptions{Alias: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, MatchAlias, hits[0].MatchType)
}

func TestSearchSkillsEmbedderFailureKeepsExactResults(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, fakeEmbedder{}) // no vectors: every embed fails

	hits, err := m.SearchSkills(ctx, "python", 5, 0, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, MatchExact, hits[0].MatchType)
}

func TestJobsRequiringSkillsDescendantsCountForAncestor(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, nil)

	matches, err := m.JobsRequiringSkills(ctx, []string{"Python"}, false, true, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	// j3: 1/1 coverage; j1 and j2 tie at 1/2 and fall back to ID order.
	// j1 matches through Django, a descendant of the queried Python.
	assert.Equal(t, "j3", matches[0].Job.ID)
	assert.Equal(t, "j1", matches[1].Job.ID)
	assert.Equal(t, "j2", matches[2].Job.ID)
	assert.Equal(t, 1.0, matches[0].Coverage)
	assert.Equal(t, 0.5, matches[1].Coverage)
	assert.Equal(t, []string{"Python"}, matches[1].MatchedSkills)
}

func TestJobsRequiringSkillsWithoutParentInclusion(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, nil)

	matches, err := m.JobsRequiringSkills(ctx, []string{"Python"}, false, false, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, match := range matches {
		assert.NotEqual(t, "j1", match.Job.ID, "j1 only requires Django")
	}
}

func TestJobsRequiringSkillsMatchAll(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, nil)

	matches, err := m.JobsRequiringSkills(ctx, []string{"Python", "Go"}, true, false, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "j2", matches[0].Job.ID)
	assert.ElementsMatch(t, []string{"Python", "Go"}, matches[0].MatchedSkills)
	assert.Equal(t, 1.0, matches[0].Coverage)
}

func TestJobsRequiringSkillsLimit(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, nil)

	matches, err := m.JobsRequiringSkills(ctx, []string{"Python"}, false, true, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "j3", matches[0].Job.ID)
}

func TestSkillsForJobTitlesAggregates(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, nil)

	skills, err := m.SkillsForJobTitles(ctx, []string{"backend engineer"}, false)
	require.NoError(t, err)
	require.Len(t, skills, 4)

	// Equal frequency everywhere, so confidence then name decides.
	assert.Equal(t, "Django", skills[0].Name)
	assert.Equal(t, "PostgreSQL", skills[1].Name)
	assert.Equal(t, "Python", skills[2].Name)
	assert.Equal(t, "Go", skills[3].Name)
	assert.Equal(t, 0.9, skills[0].AvgConfidence)
	assert.Equal(t, 1, skills[0].RequiredCount)
	assert.Equal(t, 0, skills[3].RequiredCount)
}

func TestSkillsForJobTitlesInheritedChildren(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, nil)

	skills, err := m.SkillsForJobTitles(ctx, []string{"Data Engineer"}, true)
	require.NoError(t, err)
	require.Len(t, skills, 3)

	assert.Equal(t, "Python", skills[0].Name)
	assert.False(t, skills[0].Inherited)

	// Django and Flask arrive as weak signals at half of Python's
	// aggregate confidence.
	for _, ts := range skills[1:] {
		assert.True(t, ts.Inherited)
		assert.InDelta(t, 0.45, ts.AvgConfidence, 1e-9)
	}
}

func TestSkillsForJobTitlesExactTitleOnly(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, nil)

	skills, err := m.SkillsForJobTitles(ctx, []string{"Engineer"}, false)
	require.NoError(t, err)
	assert.Empty(t, skills, "substring titles must not match")
}

func TestFullTextSearchJobs(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, nil)

	t.Run("title substring", func(t *testing.T) {
		jobs, err := m.FullTextSearchJobs(ctx, "engineer", 10, false)
		require.NoError(t, err)
		assert.Len(t, jobs, 3)
	})

	t.Run("exact title outranks substring", func(t *testing.T) {
		jobs, err := m.FullTextSearchJobs(ctx, "Data Engineer", 10, false)
		require.NoError(t, err)
		require.NotEmpty(t, jobs)
		assert.Equal(t, "j3", jobs[0].ID)
	})

	t.Run("description only with flag", func(t *testing.T) {
		jobs, err := m.FullTextSearchJobs(ctx, "pipelines", 10, false)
		require.NoError(t, err)
		assert.Empty(t, jobs)

		jobs, err = m.FullTextSearchJobs(ctx, "pipelines", 10, true)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "j3", jobs[0].ID)
	})

	t.Run("topK truncates", func(t *testing.T) {
		jobs, err := m.FullTextSearchJobs(ctx, "engineer", 2, false)
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
	})
}

func TestStatsCounts(t *testing.T) {
	ctx := context.Background()
	m := seededStore(t, nil)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Jobs: 3, Skills: 5, Requirements: 5, HierarchyEdges: 2}, stats)
}
