// Package graph stores Job and Skill nodes with REQUIRES and PARENT_OF
// edges, and serves the read-side query surface (skill search, job
// matching, title aggregation, full-text job search).
package graph

// Job is a single ingested job posting. ID is the stable external
// identifier; re-upserting the same ID overwrites the node.
type Job struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Company     string `json:"company,omitempty"`
	Location    string `json:"location,omitempty"`
	Salary      string `json:"salary,omitempty"`
}

// Skill is a canonical skill node. CanonicalName is the unique key;
// Aliases holds every raw variant that normalizes to it (excluding the
// canonical name itself). ClusterID is nil for singleton/noise skills.
type Skill struct {
	CanonicalName string    `json:"canonical_name"`
	Category      string    `json:"category"`
	Aliases       []string  `json:"aliases,omitempty"`
	Embedding     []float32 `json:"embedding,omitempty"`
	ClusterID     *int      `json:"cluster_id,omitempty"`
}

// Requirement is a REQUIRES edge from a job to a canonical skill.
// At most one edge exists per (JobID, SkillName); upserts overwrite
// the edge properties.
type Requirement struct {
	JobID      string  `json:"job_id"`
	SkillName  string  `json:"skill_name"`
	Confidence float64 `json:"confidence"`
	Required   bool    `json:"required"`
	Level      string  `json:"level,omitempty"`
}

// HierarchyPair is a PARENT_OF edge between two canonical skills.
type HierarchyPair struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// SearchOptions selects which skill search strategies run. The zero
// value means "all strategies".
type SearchOptions struct {
	Exact    bool
	Alias    bool
	Semantic bool
}

// Match type reported by SearchSkills, in rank order.
const (
	MatchExact    = "exact"
	MatchAlias    = "alias"
	MatchSemantic = "semantic"
)

// SkillHit is one ranked result from SearchSkills. Similarity is set
// only for semantic hits; exact and alias hits carry 1.0.
type SkillHit struct {
	Skill      Skill   `json:"skill"`
	MatchType  string  `json:"match_type"`
	Similarity float64 `json:"similarity"`
}

// JobMatch is one ranked result from JobsRequiringSkills.
// MatchedSkills lists the queried skills the job satisfies (directly or
// via a descendant when parent inclusion is on). Coverage is the
// fraction of the job's required skills covered by the query set.
type JobMatch struct {
	Job           Job      `json:"job"`
	MatchedSkills []string `json:"matched_skills"`
	Coverage      float64  `json:"coverage"`
}

// TitleSkill is one aggregated skill from SkillsForJobTitles.
// Inherited marks descendant skills pulled in by includeChildren.
type TitleSkill struct {
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	AvgConfidence float64 `json:"avg_confidence"`
	Frequency     int     `json:"frequency"`
	RequiredCount int     `json:"required_count"`
	Inherited     bool    `json:"inherited,omitempty"`
}

// Stats summarizes graph size for operational visibility.
type Stats struct {
	Jobs           int `json:"jobs"`
	Skills         int `json:"skills"`
	Requirements   int `json:"requirements"`
	HierarchyEdges int `json:"hierarchy_edges"`
}
