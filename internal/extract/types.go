// Package extract turns job descriptions into structured skill mentions
// via the LLM provider, with batching, content-hash deduplication,
// checkpointing and per-job fallback.
package extract

import "strings"

// Skill mention categories.
const (
	CategoryTechnical = "technical"
	CategoryDomain    = "domain"
	CategorySoft      = "soft"
)

// Seniority levels. An empty level means "not stated".
const (
	LevelEntry  = "entry"
	LevelMid    = "mid"
	LevelSenior = "senior"
	LevelExpert = "expert"
)

// Mention is one skill occurrence extracted from a single job
// description. Mentions are working state: they feed the normalizer and
// are never persisted as graph nodes.
type Mention struct {
	Name       string  `json:"skill"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Required   bool    `json:"required"`
	Level      string  `json:"level,omitempty"`
}

// JobResult is the guaranteed per-job outcome of an extraction run:
// either a mention list (possibly empty) or an error marker, never
// silence.
type JobResult struct {
	JobID    string    `json:"job_id"`
	Mentions []Mention `json:"mentions"`
	Err      string    `json:"error,omitempty"`
}

// Failed reports whether the job degraded to an error marker.
func (r JobResult) Failed() bool { return r.Err != "" }

// sanitize clamps a raw mention into the schema: confidence into [0,1],
// category into the known set (defaulting to technical), level into the
// known set (defaulting to unstated). Returns false for unusable
// mentions (empty name).
func (m *Mention) sanitize() bool {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return false
	}
	if m.Confidence < 0 {
		m.Confidence = 0
	}
	if m.Confidence > 1 {
		m.Confidence = 1
	}
	switch strings.ToLower(m.Category) {
	case CategoryTechnical, CategoryDomain, CategorySoft:
		m.Category = strings.ToLower(m.Category)
	default:
		m.Category = CategoryTechnical
	}
	switch strings.ToLower(m.Level) {
	case LevelEntry, LevelMid, LevelSenior, LevelExpert:
		m.Level = strings.ToLower(m.Level)
	default:
		m.Level = ""
	}
	return true
}
