package hierarchy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/skillgraph/skillgraph/internal/cache"
	"github.com/skillgraph/skillgraph/internal/graph"
	"github.com/skillgraph/skillgraph/internal/provider"
)

// sampleSize bounds how many taxonomy rows the inference prompt shows
// as in-context examples.
const sampleSize = 8

// Builder produces PARENT_OF pairs for a normalized skill set.
type Builder struct {
	llm   provider.Completer                      // nil: static taxonomy only
	cache *cache.FileCache[[]graph.HierarchyPair] // nil: no inference caching
}

func New(llm provider.Completer) *Builder {
	return &Builder{llm: llm}
}

// WithCache attaches a disk cache for LLM-inferred pairs, keyed by the
// sorted input name set so an unchanged skill universe never re-asks
// the provider.
func (b *Builder) WithCache(c *cache.FileCache[[]graph.HierarchyPair]) *Builder {
	b.cache = c
	return b
}

// Infer unions static-taxonomy and LLM-inferred pairs. Both endpoints
// of every returned pair resolve to canonical names present in the
// input set, self pairs are dropped, and output order is deterministic.
// Inference failures degrade to the static result, never an error.
func (b *Builder) Infer(ctx context.Context, skills []graph.Skill) []graph.HierarchyPair {
	resolve := resolver(skills)

	seen := make(map[graph.HierarchyPair]struct{})
	var pairs []graph.HierarchyPair
	add := func(parent, child string) {
		p, okP := resolve[fold(parent)]
		c, okC := resolve[fold(child)]
		if !okP || !okC || p == c {
			return
		}
		pair := graph.HierarchyPair{Parent: p, Child: c}
		if _, dup := seen[pair]; dup {
			return
		}
		seen[pair] = struct{}{}
		pairs = append(pairs, pair)
	}

	for _, row := range taxonomy {
		add(row[0], row[1])
	}
	staticCount := len(pairs)

	for _, pair := range b.inferred(ctx, skills) {
		add(pair.Parent, pair.Child)
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Parent != pairs[j].Parent {
			return pairs[i].Parent < pairs[j].Parent
		}
		return pairs[i].Child < pairs[j].Child
	})

	slog.Info("built skill hierarchy",
		slog.Int("static", staticCount), slog.Int("total", len(pairs)))
	return pairs
}

// inferred returns the raw LLM proposal for this skill universe, from
// cache when possible. Callers re-validate every pair.
func (b *Builder) inferred(ctx context.Context, skills []graph.Skill) []graph.HierarchyPair {
	if b.llm == nil || len(skills) == 0 {
		return nil
	}

	names := make([]string, 0, len(skills))
	for _, s := range skills {
		names = append(names, s.CanonicalName)
	}
	sort.Strings(names)
	key := cache.Key(append([]string{"hierarchy"}, names...)...)

	if b.cache != nil {
		if pairs, ok := b.cache.Get(ctx, key); ok {
			return pairs
		}
	}

	raw, err := b.llm.Complete(ctx, systemMessage, fmt.Sprintf(inferPrompt, examplePairs(), strings.Join(names, "\n")))
	if err != nil {
		slog.Warn("hierarchy inference failed, using static taxonomy only", slog.Any("error", err))
		return nil
	}

	var pairs []graph.HierarchyPair
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		slog.Warn("unparseable hierarchy output, using static taxonomy only", slog.Any("error", err))
		return nil
	}

	if b.cache != nil {
		b.cache.Put(ctx, key, pairs)
	}
	return pairs
}

func examplePairs() string {
	var sb strings.Builder
	for _, row := range taxonomy[:sampleSize] {
		fmt.Fprintf(&sb, "- %s -> %s\n", row[0], row[1])
	}
	return sb.String()
}

// resolver maps every folded canonical name and alias to its canonical
// form among the input skills.
func resolver(skills []graph.Skill) map[string]string {
	out := make(map[string]string, len(skills))
	for _, s := range skills {
		out[fold(s.CanonicalName)] = s.CanonicalName
		for _, a := range s.Aliases {
			out[fold(a)] = s.CanonicalName
		}
	}
	return out
}

func fold(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
