package graph

import (
	"context"
	"sort"
	"strings"
)

// Embedder produces one vector per input text. Semantic skill search is
// disabled when the store has no embedder.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the graph persistence and query surface. All writes are
// bulk-oriented and idempotent: applying the same batch twice leaves
// the graph in the same state as applying it once.
type Store interface {
	UpsertJobs(ctx context.Context, jobs []Job) error
	UpsertSkills(ctx context.Context, skills []Skill) error
	UpsertRequirements(ctx context.Context, reqs []Requirement) error
	UpsertHierarchy(ctx context.Context, pairs []HierarchyPair) error

	// SearchSkills tries exact canonical match, then alias match, then
	// semantic nearest-neighbor search, deduplicated by canonical name.
	// Exact and alias hits always outrank semantic ones.
	SearchSkills(ctx context.Context, query string, topK int, minSimilarity float64, opts SearchOptions) ([]SkillHit, error)

	// JobsRequiringSkills returns jobs matching the given skill names,
	// ranked by matched-skill count then coverage. With includeParents,
	// a job requiring a descendant of a queried skill also matches.
	JobsRequiringSkills(ctx context.Context, skillNames []string, matchAll, includeParents bool, limit int) ([]JobMatch, error)

	// SkillsForJobTitles aggregates REQUIRES edges across all jobs whose
	// title matches one of titles. With includeChildren, descendants of
	// each matched skill are appended as weak (inherited) signals.
	SkillsForJobTitles(ctx context.Context, titles []string, includeChildren bool) ([]TitleSkill, error)

	// FullTextSearchJobs matches the query against job titles, and
	// optionally descriptions. Title hits rank above description hits.
	FullTextSearchJobs(ctx context.Context, query string, topK int, searchDescription bool) ([]Job, error)

	Stats(ctx context.Context) (Stats, error)
	Close()
}

// normalized expands the zero value, which selects no strategy
// explicitly, into all strategies enabled.
func (o SearchOptions) normalized() SearchOptions {
	if !o.Exact && !o.Alias && !o.Semantic {
		return SearchOptions{Exact: true, Alias: true, Semantic: true}
	}
	return o
}

// foldName is the case-insensitive lookup key for canonical names,
// aliases and titles.
func foldName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// descendantsOf walks parent->children edges transitively from each
// root. Roots themselves are not included. Cycles are tolerated: each
// node is visited once.
func descendantsOf(children map[string][]string, roots ...string) map[string]struct{} {
	out := make(map[string]struct{})
	stack := make([]string, 0, len(roots))
	for _, r := range roots {
		stack = append(stack, foldName(r))
	}
	seen := make(map[string]struct{}, len(stack))
	for _, r := range stack {
		seen[r] = struct{}{}
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, ch := range children[cur] {
			key := foldName(ch)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out[key] = struct{}{}
			stack = append(stack, key)
		}
	}
	return out
}

// rankJobMatches orders matches by matched-skill count desc, coverage
// desc, then job ID asc so equal scores stay stable across runs.
func rankJobMatches(matches []JobMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if len(matches[i].MatchedSkills) != len(matches[j].MatchedSkills) {
			return len(matches[i].MatchedSkills) > len(matches[j].MatchedSkills)
		}
		if matches[i].Coverage != matches[j].Coverage {
			return matches[i].Coverage > matches[j].Coverage
		}
		return matches[i].Job.ID < matches[j].Job.ID
	})
}
