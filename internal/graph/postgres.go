package graph

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Postgres is the production Store backed by a pgx pool. Skill
// embeddings live in a pgvector column, so semantic search runs as a
// cosine KNN inside the database.
type Postgres struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

// ConnectPostgres creates a pgx pool, pings it and runs the embedded
// schema migrations. embedder may be nil to disable semantic search.
func ConnectPostgres(ctx context.Context, databaseURL string, embedder Embedder) (*Postgres, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	// Migrations run on a dedicated connection before the pool opens so
	// the vector extension exists when pool connections register its type.
	migConn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := runMigrations(ctx, migConn); err != nil {
		_ = migConn.Close(ctx)
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := migConn.Close(ctx); err != nil {
		return nil, fmt.Errorf("close migration connection: %w", err)
	}

	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("graph postgres connected", slog.String("host", config.ConnConfig.Host))
	return &Postgres{pool: pool, embedder: embedder}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func runMigrations(ctx context.Context, conn *pgx.Conn) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := conn.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (p *Postgres) UpsertJobs(ctx context.Context, jobs []Job) error {
	batch := &pgx.Batch{}
	for _, j := range jobs {
		if j.ID == "" {
			continue
		}
		batch.Queue(`
			INSERT INTO jobs (id, title, description, company, location, salary, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title, description = EXCLUDED.description,
				company = EXCLUDED.company, location = EXCLUDED.location,
				salary = EXCLUDED.salary, updated_at = now()`,
			j.ID, j.Title, j.Description, j.Company, j.Location, j.Salary)
	}
	return p.sendBatch(ctx, batch, "upsert jobs")
}

func (p *Postgres) UpsertSkills(ctx context.Context, skills []Skill) error {
	batch := &pgx.Batch{}
	for _, s := range skills {
		key := foldName(s.CanonicalName)
		if key == "" {
			continue
		}
		var embedding any
		if len(s.Embedding) > 0 {
			embedding = pgvector.NewVector(s.Embedding)
		}
		aliases := s.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		batch.Queue(`
			INSERT INTO skills (name, display, category, aliases, cluster_id, embedding, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (name) DO UPDATE SET
				display = EXCLUDED.display, category = EXCLUDED.category,
				aliases = EXCLUDED.aliases, cluster_id = EXCLUDED.cluster_id,
				embedding = EXCLUDED.embedding, updated_at = now()`,
			key, s.CanonicalName, s.Category, aliases, s.ClusterID, embedding)
		for _, a := range s.Aliases {
			alias := foldName(a)
			if alias == "" || alias == key {
				continue
			}
			batch.Queue(`
				INSERT INTO skill_aliases (alias, skill_name) VALUES ($1, $2)
				ON CONFLICT (alias) DO UPDATE SET skill_name = EXCLUDED.skill_name`,
				alias, key)
		}
	}
	return p.sendBatch(ctx, batch, "upsert skills")
}

func (p *Postgres) UpsertRequirements(ctx context.Context, reqs []Requirement) error {
	batch := &pgx.Batch{}
	for _, r := range reqs {
		key := foldName(r.SkillName)
		if r.JobID == "" || key == "" {
			continue
		}
		// Edges referencing an unknown skill are dropped, not errors.
		batch.Queue(`
			INSERT INTO job_skills (job_id, skill_name, confidence, required, level)
			SELECT $1, $2, $3, $4, $5
			WHERE EXISTS (SELECT 1 FROM jobs WHERE id = $1)
			  AND EXISTS (SELECT 1 FROM skills WHERE name = $2)
			ON CONFLICT (job_id, skill_name) DO UPDATE SET
				confidence = EXCLUDED.confidence, required = EXCLUDED.required,
				level = EXCLUDED.level`,
			r.JobID, key, r.Confidence, r.Required, r.Level)
	}
	return p.sendBatch(ctx, batch, "upsert requirements")
}

func (p *Postgres) UpsertHierarchy(ctx context.Context, pairs []HierarchyPair) error {
	batch := &pgx.Batch{}
	for _, pair := range pairs {
		parent, child := foldName(pair.Parent), foldName(pair.Child)
		if parent == "" || child == "" || parent == child {
			continue
		}
		batch.Queue(`
			INSERT INTO skill_hierarchy (parent, child) VALUES ($1, $2)
			ON CONFLICT (parent, child) DO NOTHING`,
			parent, child)
	}
	return p.sendBatch(ctx, batch, "upsert hierarchy")
}

func (p *Postgres) sendBatch(ctx context.Context, batch *pgx.Batch, op string) error {
	if batch.Len() == 0 {
		return nil
	}
	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

const skillColumns = `name, display, category, aliases, cluster_id, embedding`

func scanSkill(row pgx.Row) (Skill, error) {
	var (
		s         Skill
		key       string
		embedding *pgvector.Vector
	)
	if err := row.Scan(&key, &s.CanonicalName, &s.Category, &s.Aliases, &s.ClusterID, &embedding); err != nil {
		return Skill{}, err
	}
	if embedding != nil {
		s.Embedding = embedding.Slice()
	}
	return s, nil
}

func (p *Postgres) SearchSkills(ctx context.Context, query string, topK int, minSimilarity float64, opts SearchOptions) ([]SkillHit, error) {
	if topK <= 0 {
		topK = 10
	}
	opts = opts.normalized()
	key := foldName(query)

	var hits []SkillHit
	seen := make(map[string]struct{})

	if opts.Exact {
		row := p.pool.QueryRow(ctx, `SELECT `+skillColumns+` FROM skills WHERE name = $1`, key)
		s, err := scanSkill(row)
		switch {
		case err == nil:
			hits = append(hits, SkillHit{Skill: s, MatchType: MatchExact, Similarity: 1})
			seen[foldName(s.CanonicalName)] = struct{}{}
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("exact skill search: %w", err)
		}
	}
	if opts.Alias {
		row := p.pool.QueryRow(ctx, `
			SELECT `+prefixedSkillColumns("s")+`
			FROM skills s JOIN skill_aliases a ON a.skill_name = s.name
			WHERE a.alias = $1`, key)
		s, err := scanSkill(row)
		switch {
		case err == nil:
			if _, dup := seen[foldName(s.CanonicalName)]; !dup {
				hits = append(hits, SkillHit{Skill: s, MatchType: MatchAlias, Similarity: 1})
				seen[foldName(s.CanonicalName)] = struct{}{}
			}
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("alias skill search: %w", err)
		}
	}
	if !opts.Semantic || len(hits) >= topK || p.embedder == nil {
		return truncateHits(hits, topK), nil
	}

	vecs, err := p.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		// Semantic search degrades silently on embedding failure.
		slog.Warn("semantic search skipped", slog.Any("error", err))
		return truncateHits(hits, topK), nil
	}

	exclude := make([]string, 0, len(seen))
	for k := range seen {
		exclude = append(exclude, k)
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+skillColumns+`, 1 - (embedding <=> $1) AS similarity
		FROM skills
		WHERE embedding IS NOT NULL AND NOT (name = ANY($2))
		ORDER BY embedding <=> $1, name
		LIMIT $3`,
		pgvector.NewVector(vecs[0]), exclude, topK-len(hits))
	if err != nil {
		return nil, fmt.Errorf("semantic skill search: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s          Skill
			key        string
			embedding  *pgvector.Vector
			similarity float64
		)
		if err := rows.Scan(&key, &s.CanonicalName, &s.Category, &s.Aliases, &s.ClusterID, &embedding, &similarity); err != nil {
			return nil, fmt.Errorf("scan semantic hit: %w", err)
		}
		if similarity < minSimilarity {
			continue
		}
		if embedding != nil {
			s.Embedding = embedding.Slice()
		}
		hits = append(hits, SkillHit{Skill: s, MatchType: MatchSemantic, Similarity: similarity})
	}
	return truncateHits(hits, topK), rows.Err()
}

func prefixedSkillColumns(alias string) string {
	cols := strings.Split(skillColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func (p *Postgres) JobsRequiringSkills(ctx context.Context, skillNames []string, matchAll, includeParents bool, limit int) ([]JobMatch, error) {
	if limit <= 0 {
		limit = 20
	}

	var children map[string][]string
	if includeParents {
		var err error
		children, err = p.loadHierarchy(ctx)
		if err != nil {
			return nil, err
		}
	}

	type querySkill struct {
		display string
		accept  map[string]struct{}
	}
	queries := make([]querySkill, 0, len(skillNames))
	union := make(map[string]struct{})
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
		for k := range accept {
			union[k] = struct{}{}
		}
		queries = append(queries, querySkill{display: name, accept: accept})
	}
	if len(queries) == 0 {
		return nil, nil
	}
	unionList := make([]string, 0, len(union))
	for k := range union {
		unionList = append(unionList, k)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT job_id, skill_name FROM job_skills WHERE skill_name = ANY($1)`, unionList)
	if err != nil {
		return nil, fmt.Errorf("query matching edges: %w", err)
	}
	jobEdges := make(map[string]map[string]struct{})
	for rows.Next() {
		var jobID, skillName string
		if err := rows.Scan(&jobID, &skillName); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan matching edge: %w", err)
		}
		if jobEdges[jobID] == nil {
			jobEdges[jobID] = make(map[string]struct{})
		}
		jobEdges[jobID][skillName] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(jobEdges) == 0 {
		return nil, nil
	}

	jobIDs := make([]string, 0, len(jobEdges))
	for id := range jobEdges {
		jobIDs = append(jobIDs, id)
	}

	totals := make(map[string]int, len(jobIDs))
	rows, err = p.pool.Query(ctx,
		`SELECT job_id, COUNT(*) FROM job_skills WHERE job_id = ANY($1) GROUP BY job_id`, jobIDs)
	if err != nil {
		return nil, fmt.Errorf("query edge totals: %w", err)
	}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan edge total: %w", err)
		}
		totals[id] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	jobNodes, err := p.loadJobs(ctx, jobIDs)
	if err != nil {
		return nil, err
	}

	var matches []JobMatch
	for jobID, edgeSet := range jobEdges {
		job, ok := jobNodes[jobID]
		if !ok {
			continue
		}
		var matched []string
		covered := make(map[string]struct{})
		for _, q := range queries {
			hit := false
			for skillKey := range edgeSet {
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
		coverage := 0.0
		if totals[jobID] > 0 {
			coverage = float64(len(covered)) / float64(totals[jobID])
		}
		matches = append(matches, JobMatch{Job: job, MatchedSkills: matched, Coverage: coverage})
	}

	rankJobMatches(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (p *Postgres) SkillsForJobTitles(ctx context.Context, titles []string, includeChildren bool) ([]TitleSkill, error) {
	folded := make([]string, 0, len(titles))
	for _, t := range titles {
		if ft := foldName(t); ft != "" {
			folded = append(folded, ft)
		}
	}
	if len(folded) == 0 {
		return nil, nil
	}

	rows, err := p.pool.Query(ctx, `
		SELECT js.skill_name, COALESCE(s.display, js.skill_name), COALESCE(s.category, ''),
		       js.confidence, js.required
		FROM job_skills js
		JOIN jobs j ON j.id = js.job_id
		LEFT JOIN skills s ON s.name = js.skill_name
		WHERE lower(j.title) = ANY($1)`, folded)
	if err != nil {
		return nil, fmt.Errorf("query title skills: %w", err)
	}
	defer rows.Close()

	type agg struct {
		display       string
		category      string
		sumConfidence float64
		frequency     int
		requiredCount int
	}
	aggs := make(map[string]*agg)
	for rows.Next() {
		var (
			key, display, category string
			confidence             float64
			required               bool
		)
		if err := rows.Scan(&key, &display, &category, &confidence, &required); err != nil {
			return nil, fmt.Errorf("scan title skill: %w", err)
		}
		a, ok := aggs[key]
		if !ok {
			a = &agg{display: display, category: category}
			aggs[key] = a
		}
		a.sumConfidence += confidence
		a.frequency++
		if required {
			a.requiredCount++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]TitleSkill, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, TitleSkill{
			Name:          a.display,
			Category:      a.category,
			AvgConfidence: a.sumConfidence / float64(a.frequency),
			Frequency:     a.frequency,
			RequiredCount: a.requiredCount,
		})
	}

	if includeChildren && len(aggs) > 0 {
		children, err := p.loadHierarchy(ctx)
		if err != nil {
			return nil, err
		}
		inherited := make(map[string]TitleSkill)
		for key, a := range aggs {
			avg := a.sumConfidence / float64(a.frequency)
			for d := range descendantsOf(children, key) {
				if _, direct := aggs[d]; direct {
					continue
				}
				candidate := TitleSkill{
					Name:          d,
					AvgConfidence: avg / 2,
					Frequency:     a.frequency,
					Inherited:     true,
				}
				if prev, ok := inherited[d]; !ok || candidate.AvgConfidence > prev.AvgConfidence {
					inherited[d] = candidate
				}
			}
		}
		if len(inherited) > 0 {
			keys := make([]string, 0, len(inherited))
			for k := range inherited {
				keys = append(keys, k)
			}
			display, err := p.loadSkillDisplay(ctx, keys)
			if err != nil {
				return nil, err
			}
			for key, ts := range inherited {
				if d, ok := display[key]; ok {
					ts.Name = d.name
					ts.Category = d.category
				}
				out = append(out, ts)
			}
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

func (p *Postgres) FullTextSearchJobs(ctx context.Context, query string, topK int, searchDescription bool) ([]Job, error) {
	if topK <= 0 {
		topK = 20
	}
	q := foldName(query)
	if q == "" {
		return nil, nil
	}
	pattern := "%" + q + "%"

	where := `lower(title) LIKE $2`
	if searchDescription {
		where += ` OR lower(description) LIKE $2`
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, title, description, company, location, salary,
		       CASE
		           WHEN lower(title) = $1 THEN 3
		           WHEN lower(title) LIKE $2 THEN 2
		           ELSE 1
		       END AS score
		FROM jobs
		WHERE `+where+`
		ORDER BY score DESC, id
		LIMIT $3`, q, pattern, topK)
	if err != nil {
		return nil, fmt.Errorf("full-text job search: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		var score int
		if err := rows.Scan(&j.ID, &j.Title, &j.Description, &j.Company, &j.Location, &j.Salary, &score); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := p.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM jobs),
		       (SELECT COUNT(*) FROM skills),
		       (SELECT COUNT(*) FROM job_skills),
		       (SELECT COUNT(*) FROM skill_hierarchy)`).
		Scan(&s.Jobs, &s.Skills, &s.Requirements, &s.HierarchyEdges)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return s, nil
}

func (p *Postgres) loadHierarchy(ctx context.Context) (map[string][]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT parent, child FROM skill_hierarchy`)
	if err != nil {
		return nil, fmt.Errorf("load hierarchy: %w", err)
	}
	defer rows.Close()

	children := make(map[string][]string)
	for rows.Next() {
		var parent, child string
		if err := rows.Scan(&parent, &child); err != nil {
			return nil, fmt.Errorf("scan hierarchy edge: %w", err)
		}
		children[parent] = append(children[parent], child)
	}
	return children, rows.Err()
}

func (p *Postgres) loadJobs(ctx context.Context, ids []string) (map[string]Job, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, title, description, company, location, salary
		FROM jobs WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Job, len(ids))
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Title, &j.Description, &j.Company, &j.Location, &j.Salary); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out[j.ID] = j
	}
	return out, rows.Err()
}

type skillDisplay struct {
	name     string
	category string
}

func (p *Postgres) loadSkillDisplay(ctx context.Context, keys []string) (map[string]skillDisplay, error) {
	rows, err := p.pool.Query(ctx, `SELECT name, display, category FROM skills WHERE name = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("load skill names: %w", err)
	}
	defer rows.Close()

	out := make(map[string]skillDisplay, len(keys))
	for rows.Next() {
		var key string
		var d skillDisplay
		if err := rows.Scan(&key, &d.name, &d.category); err != nil {
			return nil, fmt.Errorf("scan skill name: %w", err)
		}
		out[key] = d
	}
	return out, rows.Err()
}
