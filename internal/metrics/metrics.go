// Package metrics exposes Prometheus counters and histograms for the
// extraction pipeline and its provider calls.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "skillgraph"

// registry is process-local so tests never trip duplicate-registration
// panics against the global default registry.
var registry = prometheus.NewRegistry()

var (
	LLMCalls = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "llm_calls_total",
		Help: "Chat-completion calls issued to the LLM provider.",
	})
	LLMErrors = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "llm_errors_total",
		Help: "Chat-completion calls that failed after retries.",
	})
	EmbedCalls = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "embed_calls_total",
		Help: "Embedding batch requests issued to the provider.",
	})
	EmbedErrors = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "embed_errors_total",
		Help: "Embedding batch requests that failed after retries.",
	})
	CacheHits = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "cache_hits_total",
		Help: "Cache hits by cache name.",
	}, []string{"cache"})
	CacheMisses = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "cache_misses_total",
		Help: "Cache misses by cache name.",
	}, []string{"cache"})
	JobsExtracted = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "jobs_extracted_total",
		Help: "Job descriptions with a completed extraction result.",
	})
	JobsFailed = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "jobs_failed_total",
		Help: "Job descriptions whose extraction degraded to an error marker.",
	})
	BatchFallbacks = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "batch_fallbacks_total",
		Help: "Extraction batches that fell back to per-job calls.",
	})
	ExtractDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "extract_batch_seconds",
		Help:    "Wall time per extraction batch.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

// Format renders all counters as plain text, one metric per line, for
// the stats CLI verb and logs.
func Format() string {
	families, err := registry.Gather()
	if err != nil {
		return fmt.Sprintf("gather metrics: %v\n", err)
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })

	var sb strings.Builder
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += fmt.Sprintf("{%s=%q}", lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(&sb, "%s %g\n", name, m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Fprintf(&sb, "%s_count %d\n", name, h.GetSampleCount())
				fmt.Fprintf(&sb, "%s_sum %g\n", name, h.GetSampleSum())
			}
		}
	}
	return sb.String()
}
