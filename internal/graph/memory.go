package graph

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store. It backs tests and DB-less runs and
// implements the same upsert and query semantics as Postgres.
type Memory struct {
	mu       sync.RWMutex
	embedder Embedder

	jobs     map[string]Job                    // job ID -> node
	skills   map[string]Skill                  // folded canonical name -> node
	aliases  map[string]string                 // folded alias -> folded canonical
	reqs     map[string]map[string]Requirement // job ID -> folded skill -> edge
	childSet map[string]map[string]struct{}    // folded parent -> folded children
}

// NewMemory creates an empty in-memory store. embedder may be nil, in
// which case semantic search silently yields no results.
func NewMemory(embedder Embedder) *Memory {
	return &Memory{
		embedder: embedder,
		jobs:     make(map[string]Job),
		skills:   make(map[string]Skill),
		aliases:  make(map[string]string),
		reqs:     make(map[string]map[string]Requirement),
		childSet: make(map[string]map[string]struct{}),
	}
}

func (m *Memory) UpsertJobs(ctx context.Context, jobs []Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range jobs {
		if j.ID == "" {
			continue
		}
		m.jobs[j.ID] = j
	}
	return nil
}

func (m *Memory) UpsertSkills(ctx context.Context, skills []Skill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range skills {
		key := foldName(s.CanonicalName)
		if key == "" {
			continue
		}
		m.skills[key] = s
		for _, a := range s.Aliases {
			m.aliases[foldName(a)] = key
		}
	}
	return nil
}

func (m *Memory) UpsertRequirements(ctx context.Context, reqs []Requirement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range reqs {
		key := foldName(r.SkillName)
		if r.JobID == "" || key == "" {
			continue
		}
		edges, ok := m.reqs[r.JobID]
		if !ok {
			edges = make(map[string]Requirement)
			m.reqs[r.JobID] = edges
		}
		edges[key] = r
	}
	return nil
}

func (m *Memory) UpsertHierarchy(ctx context.Context, pairs []HierarchyPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range pairs {
		parent, child := foldName(p.Parent), foldName(p.Child)
		if parent == "" || child == "" || parent == child {
			continue
		}
		set, ok := m.childSet[parent]
		if !ok {
			set = make(map[string]struct{})
			m.childSet[parent] = set
		}
		set[child] = struct{}{}
	}
	return nil
}

func (m *Memory) SearchSkills(ctx context.Context, query string, topK int, minSimilarity float64, opts SearchOptions) ([]SkillHit, error) {
	if topK <= 0 {
		topK = 10
	}
	opts = opts.normalized()
	key := foldName(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []SkillHit
	seen := make(map[string]struct{})

	if opts.Exact {
		if s, ok := m.skills[key]; ok {
			hits = append(hits, SkillHit{Skill: s, MatchType: MatchExact, Similarity: 1})
			seen[key] = struct{}{}
		}
	}
	if opts.Alias {
		if canonical, ok := m.aliases[key]; ok {
			if _, dup := seen[canonical]; !dup {
				if s, ok := m.skills[canonical]; ok {
					hits = append(hits, SkillHit{Skill: s, MatchType: MatchAlias, Similarity: 1})
					seen[canonical] = struct{}{}
				}
			}
		}
	}
	if !opts.Semantic || len(hits) >= topK || m.embedder == nil {
		return truncateHits(hits, topK), nil
	}

	vecs, err := m.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		// Semantic search is best-effort on top of exact/alias results.
		return truncateHits(hits, topK), nil
	}
	qv := vecs[0]

	var semantic []SkillHit
	for k, s := range m.skills {
		if _, dup := seen[k]; dup || len(s.Embedding) == 0 {
			continue
		}
		sim := Cosine(qv, s.Embedding)
		if sim < minSimilarity {
			continue
		}
		semantic = append(semantic, SkillHit{Skill: s, MatchType: MatchSemantic, Similarity: sim})
	}
	sort.Slice(semantic, func(i, j int) bool {
		if semantic[i].Similarity != semantic[j].Similarity {
			return semantic[i].Similarity > semantic[j].Similarity
		}
		return semantic[i].Skill.CanonicalName < semantic[j].Skill.CanonicalName
	})
	hits = append(hits, semantic...)
	return truncateHits(hits, topK), nil
}

func truncateHits(hits []SkillHit, topK int) []SkillHit {
	if len(hits) > topK {
		return hits[:topK]
	}
	return hits
}

func (m *Memory) JobsRequiringSkills(ctx context.Context, skillNames []string, matchAll, includeParents bool, limit int) ([]JobMatch, error) {
	if limit <= 0 {
		limit = 20
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	children := m.childrenIndex()

	// Each queried skill matches itself plus, with parent inclusion, all
	// of its descendants.
	type querySkill struct {
		display string
		accept  map[string]struct{}
	}
	queries := make([]querySkill, 0, len(skillNames))
	for _, name := range skillNames {
		key := foldName(name)
		if key == "" {
			continue
		}
		accept := map[string]struct{}{key: {}}
		if includeParents {
			for d := range descendantsOf(children, key) {
				accept[d] = struct{}{}
			}
		}
		queries = append(queries, querySkill{display: name, accept: accept})
	}
	if len(queries) == 0 {
		return nil, nil
	}

	var matches []JobMatch
	for jobID, edges := range m.reqs {
		job, ok := m.jobs[jobID]
		if !ok {
			continue
		}
		var matched []string
		covered := make(map[string]struct{})
		for _, q := range queries {
			hit := false
			for skillKey := range edges {
				if _, ok := q.accept[skillKey]; ok {
					hit = true
					covered[skillKey] = struct{}{}
				}
			}
			if hit {
				matched = append(matched, q.display)
			}
		}
		if len(matched) == 0 || (matchAll && len(matched) < len(queries)) {
			continue
		}
		matches = append(matches, JobMatch{
			Job:           job,
			MatchedSkills: matched,
			Coverage:      float64(len(covered)) / float64(len(edges)),
		})
	}

	rankJobMatches(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (m *Memory) SkillsForJobTitles(ctx context.Context, titles []string, includeChildren bool) ([]TitleSkill, error) {
	titleSet := make(map[string]struct{}, len(titles))
	for _, t := range titles {
		titleSet[foldName(t)] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type agg struct {
		sumConfidence float64
		frequency     int
		requiredCount int
	}
	aggs := make(map[string]*agg)
	for jobID, edges := range m.reqs {
		job, ok := m.jobs[jobID]
		if !ok {
			continue
		}
		if _, ok := titleSet[foldName(job.Title)]; !ok {
			continue
		}
		for skillKey, edge := range edges {
			a, ok := aggs[skillKey]
			if !ok {
				a = &agg{}
				aggs[skillKey] = a
			}
			a.sumConfidence += edge.Confidence
			a.frequency++
			if edge.Required {
				a.requiredCount++
			}
		}
	}

	out := make([]TitleSkill, 0, len(aggs))
	for skillKey, a := range aggs {
		out = append(out, TitleSkill{
			Name:          m.displayName(skillKey),
			Category:      m.skills[skillKey].Category,
			AvgConfidence: a.sumConfidence / float64(a.frequency),
			Frequency:     a.frequency,
			RequiredCount: a.requiredCount,
		})
	}

	if includeChildren {
		children := m.childrenIndex()
		inherited := make(map[string]TitleSkill)
		for skillKey, a := range aggs {
			avg := a.sumConfidence / float64(a.frequency)
			for d := range descendantsOf(children, skillKey) {
				if _, direct := aggs[d]; direct {
					continue
				}
				// Descendants count as weak signals: half the parent's
				// confidence, frequency carried over.
				candidate := TitleSkill{
					Name:          m.displayName(d),
					Category:      m.skills[d].Category,
					AvgConfidence: avg / 2,
					Frequency:     a.frequency,
					Inherited:     true,
				}
				if prev, ok := inherited[d]; !ok || candidate.AvgConfidence > prev.AvgConfidence {
					inherited[d] = candidate
				}
			}
		}
		for _, ts := range inherited {
			out = append(out, ts)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Inherited != out[j].Inherited {
			return !out[i].Inherited
		}
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		if out[i].AvgConfidence != out[j].AvgConfidence {
			return out[i].AvgConfidence > out[j].AvgConfidence
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) FullTextSearchJobs(ctx context.Context, query string, topK int, searchDescription bool) ([]Job, error) {
	if topK <= 0 {
		topK = 20
	}
	q := foldName(query)
	if q == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		job   Job
		score int
	}
	var results []scored
	for _, job := range m.jobs {
		score := 0
		title := foldName(job.Title)
		switch {
		case title == q:
			score = 3
		case strings.Contains(title, q):
			score = 2
		case searchDescription && strings.Contains(strings.ToLower(job.Description), q):
			score = 1
		}
		if score > 0 {
			results = append(results, scored{job: job, score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].job.ID < results[j].job.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	out := make([]Job, len(results))
	for i, r := range results {
		out[i] = r.job
	}
	return out, nil
}

func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{Jobs: len(m.jobs), Skills: len(m.skills)}
	for _, edges := range m.reqs {
		s.Requirements += len(edges)
	}
	for _, set := range m.childSet {
		s.HierarchyEdges += len(set)
	}
	return s, nil
}

func (m *Memory) Close() {}

// childrenIndex materializes the child sets as slices for traversal.
// Callers must hold at least the read lock.
func (m *Memory) childrenIndex() map[string][]string {
	children := make(map[string][]string, len(m.childSet))
	for parent, set := range m.childSet {
		for child := range set {
			children[parent] = append(children[parent], child)
		}
	}
	return children
}

// displayName prefers the stored canonical spelling over the folded key.
// Callers must hold at least the read lock.
func (m *Memory) displayName(skillKey string) string {
	if s, ok := m.skills[skillKey]; ok {
		return s.CanonicalName
	}
	return skillKey
}
