// Package normalize collapses raw skill mentions into canonical Skill
// nodes by clustering name embeddings.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/skillgraph/skillgraph/internal/extract"
	"github.com/skillgraph/skillgraph/internal/graph"
	"github.com/skillgraph/skillgraph/internal/provider"
)

// Config tunes the clustering pass. Zero fields get defaults.
type Config struct {
	Eps    float64 // max cosine distance between cluster neighbors
	MinPts int     // min neighborhood size to seed a cluster
}

// Normalizer owns the embed-and-cluster pipeline stage.
type Normalizer struct {
	embedder provider.Embedder
	eps      float64
	minPts   int
}

func New(embedder provider.Embedder, cfg Config) *Normalizer {
	if cfg.Eps <= 0 {
		cfg.Eps = 0.25
	}
	if cfg.MinPts <= 0 {
		cfg.MinPts = 2
	}
	return &Normalizer{embedder: embedder, eps: cfg.Eps, minPts: cfg.MinPts}
}

type nameStat struct {
	category  string // first-seen wins
	frequency int
}

// Normalize embeds every unique raw name across all jobs, clusters the
// vectors, and returns one Skill per cluster plus one per noise point.
// Alias sets are disjoint and cover every input name exactly once.
func (n *Normalizer) Normalize(ctx context.Context, perJob [][]extract.Mention) ([]graph.Skill, error) {
	names, stats := collectNames(perJob)
	if len(names) == 0 {
		return []graph.Skill{}, nil
	}

	vectors, err := n.embedder.Embed(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("normalize: embed %d names: %w", len(names), err)
	}

	labels := dbscan(vectors, n.eps, n.minPts)
	skills := assemble(names, stats, vectors, labels)

	slog.Info("normalized skill mentions",
		slog.Int("raw_names", len(names)), slog.Int("skills", len(skills)))
	return skills, nil
}

// collectNames returns unique raw names in first-seen order with their
// mention frequency. Names are case-sensitive here; case folding is
// the graph store's concern.
func collectNames(perJob [][]extract.Mention) ([]string, map[string]*nameStat) {
	var names []string
	stats := make(map[string]*nameStat)
	for _, mentions := range perJob {
		for _, m := range mentions {
			if st, ok := stats[m.Name]; ok {
				st.frequency++
				continue
			}
			stats[m.Name] = &nameStat{category: m.Category, frequency: 1}
			names = append(names, m.Name)
		}
	}
	return names, stats
}

// assemble turns cluster labels into Skill nodes. The canonical member
// of a cluster is the most frequently mentioned name; ties break to the
// shortest string, then lexicographically, so runs are reproducible.
func assemble(names []string, stats map[string]*nameStat, vectors [][]float32, labels []int) []graph.Skill {
	clusters := make(map[int][]int)
	var skills []graph.Skill

	for i, label := range labels {
		if label == noiseLabel {
			skills = append(skills, graph.Skill{
				CanonicalName: names[i],
				Category:      stats[names[i]].category,
				Embedding:     vectors[i],
			})
			continue
		}
		clusters[label] = append(clusters[label], i)
	}

	labelOrder := make([]int, 0, len(clusters))
	for label := range clusters {
		labelOrder = append(labelOrder, label)
	}
	sort.Ints(labelOrder)

	for _, label := range labelOrder {
		members := clusters[label]
		canonical := members[0]
		for _, i := range members[1:] {
			if betterCanonical(names[i], names[canonical], stats) {
				canonical = i
			}
		}

		aliases := make([]string, 0, len(members)-1)
		for _, i := range members {
			if i != canonical {
				aliases = append(aliases, names[i])
			}
		}
		sort.Strings(aliases)

		id := label
		skills = append(skills, graph.Skill{
			CanonicalName: names[canonical],
			Category:      stats[names[canonical]].category,
			Aliases:       aliases,
			Embedding:     vectors[canonical],
			ClusterID:     &id,
		})
	}

	sort.Slice(skills, func(i, j int) bool {
		return skills[i].CanonicalName < skills[j].CanonicalName
	})
	return skills
}

func betterCanonical(a, b string, stats map[string]*nameStat) bool {
	if stats[a].frequency != stats[b].frequency {
		return stats[a].frequency > stats[b].frequency
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// AliasIndex maps every raw name (canonical or alias) to its canonical
// name, for resolving extraction mentions against the normalized set.
func AliasIndex(skills []graph.Skill) map[string]string {
	index := make(map[string]string, len(skills))
	for _, s := range skills {
		index[s.CanonicalName] = s.CanonicalName
		for _, a := range s.Aliases {
			index[a] = s.CanonicalName
		}
	}
	return index
}

// FindSimilar embeds the query and ranks candidates by cosine
// similarity against their stored embeddings, filtered by threshold
// and truncated to topK.
func (n *Normalizer) FindSimilar(ctx context.Context, query string, candidates []graph.Skill, topK int, threshold float64) ([]graph.SkillHit, error) {
	vectors, err := n.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("normalize: embed query: %w", err)
	}

	var hits []graph.SkillHit
	for _, s := range candidates {
		sim := graph.Cosine(vectors[0], s.Embedding)
		if sim < threshold {
			continue
		}
		hits = append(hits, graph.SkillHit{Skill: s, MatchType: graph.MatchSemantic, Similarity: sim})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Skill.CanonicalName < hits[j].Skill.CanonicalName
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
