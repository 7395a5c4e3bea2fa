package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/maruonline/leadgen/internal/db"
	"github.com/maruonline/leadgen/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close does not close it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that share it,
// such as the rate limiter.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// input_data is JSON rather than JSONB so the submitted bytes are kept as-is.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                 TEXT PRIMARY KEY,
	email              TEXT NOT NULL UNIQUE,
	first_name         TEXT,
	last_name          TEXT,
	phone              TEXT,
	company_name       TEXT,
	website_url        TEXT,
	industry           TEXT,
	company_size       TEXT,
	lead_score         INTEGER,
	hubspot_contact_id TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assessments (
	id              TEXT PRIMARY KEY,
	lead_id         TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	app_type        TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'in_progress',
	input_data      JSON NOT NULL,
	analysis_data   JSONB,
	score           INTEGER,
	recommendations JSONB,
	error           TEXT,
	completed_at    TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lead_activities (
	id            TEXT PRIMARY KEY,
	lead_id       TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	activity_type TEXT NOT NULL,
	metadata      JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analytics_events (
	id              TEXT PRIMARY KEY,
	event_type      TEXT NOT NULL,
	page_path       TEXT NOT NULL,
	assessment_type TEXT,
	step            TEXT,
	metadata        JSONB NOT NULL DEFAULT '{}',
	user_agent      TEXT,
	ip_address      TEXT,
	timestamp       TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at);
CREATE INDEX IF NOT EXISTS idx_leads_lead_score ON leads(lead_score);
CREATE INDEX IF NOT EXISTS idx_assessments_lead_id ON assessments(lead_id);
CREATE INDEX IF NOT EXISTS idx_assessments_created_at ON assessments(created_at);
CREATE INDEX IF NOT EXISTS idx_assessments_app_type ON assessments(app_type);
CREATE INDEX IF NOT EXISTS idx_lead_activities_lead_id ON lead_activities(lead_id, created_at);
CREATE INDEX IF NOT EXISTS idx_analytics_events_timestamp ON analytics_events(timestamp);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const pgLeadColumns = `l.id, l.email, COALESCE(l.first_name, ''), COALESCE(l.last_name, ''),
	COALESCE(l.phone, ''), COALESCE(l.company_name, ''), COALESCE(l.website_url, ''),
	COALESCE(l.industry, ''), COALESCE(l.company_size, ''), l.lead_score,
	COALESCE(l.hubspot_contact_id, ''),
	(SELECT count(*) FROM assessments a WHERE a.lead_id = l.id),
	l.created_at, l.updated_at`

// mergeColumns are the lead columns a submission may fill in.
var mergeColumns = []string{
	"first_name", "last_name", "phone", "company_name", "website_url", "industry", "company_size",
}

// upsertLeadSQL inserts a lead or merges non-null values into the existing
// row. updated_at only moves when a column actually changes.
var upsertLeadSQL = func() string {
	var set, changed []string
	for _, c := range mergeColumns {
		set = append(set, fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, l.%s)", c, c, c))
		changed = append(changed, fmt.Sprintf("(EXCLUDED.%s IS NOT NULL AND EXCLUDED.%s IS DISTINCT FROM l.%s)", c, c, c))
	}
	return `INSERT INTO leads AS l (id, email, ` + strings.Join(mergeColumns, ", ") + `, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (email) DO UPDATE SET
	` + strings.Join(set, ",\n\t") + `,
	updated_at = CASE WHEN ` + strings.Join(changed, "\n\t\tOR ") + `
		THEN EXCLUDED.updated_at ELSE l.updated_at END
RETURNING ` + pgLeadColumns
}()

func scanPgLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	err := row.Scan(&l.ID, &l.Email, &l.FirstName, &l.LastName, &l.Phone, &l.CompanyName,
		&l.WebsiteURL, &l.Industry, &l.CompanySize, &l.LeadScore, &l.HubSpotContactID,
		&l.AssessmentCount, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func upsertPgLead(ctx context.Context, q querier, email string, f model.LeadFields) (*model.Lead, error) {
	row := q.QueryRow(ctx, upsertLeadSQL,
		uuid.New().String(), email,
		nullIfEmpty(f.FirstName), nullIfEmpty(f.LastName), nullIfEmpty(f.Phone),
		nullIfEmpty(f.CompanyName), nullIfEmpty(f.WebsiteURL), nullIfEmpty(f.Industry),
		nullIfEmpty(f.CompanySize), time.Now().UTC(),
	)
	lead, err := scanPgLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert lead %s", email)
	}
	return lead, nil
}

func (s *PostgresStore) UpsertLead(ctx context.Context, email string, fields model.LeadFields) (*model.Lead, error) {
	return upsertPgLead(ctx, s.pool, email, fields)
}

func (s *PostgresStore) getLead(ctx context.Context, where string, arg string) (*model.Lead, error) {
	lead, err := scanPgLead(s.pool.QueryRow(ctx,
		`SELECT `+pgLeadColumns+` FROM leads l WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: lead %s", arg)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", arg)
	}
	return lead, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	return s.getLead(ctx, "l.id = $1", id)
}

func (s *PostgresStore) GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error) {
	return s.getLead(ctx, "l.email = $1", email)
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, int, error) {
	where := ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Search != "" {
		where += fmt.Sprintf(` AND (l.email ILIKE $%d OR l.company_name ILIKE $%d OR l.first_name ILIKE $%d OR l.last_name ILIKE $%d)`,
			argIdx, argIdx, argIdx, argIdx)
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		argIdx++
	}
	if filter.MinScore != nil {
		where += fmt.Sprintf(` AND l.lead_score >= $%d`, argIdx)
		args = append(args, *filter.MinScore)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		where += fmt.Sprintf(` AND l.created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	if !filter.CreatedBefore.IsZero() {
		where += fmt.Sprintf(` AND l.created_at <= $%d`, argIdx)
		args = append(args, filter.CreatedBefore)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM leads l`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count leads")
	}

	query := `SELECT ` + pgLeadColumns + ` FROM leads l` + where +
		fmt.Sprintf(` ORDER BY l.%s DESC NULLS LAST, l.id LIMIT $%d OFFSET $%d`, filter.sortColumn(), argIdx, argIdx+1)
	args = append(args, clampLimit(filter.Limit), max(0, filter.Offset))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		l, err := scanPgLead(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: iterate leads")
	}
	return leads, total, nil
}

func (s *PostgresStore) SetLeadCRMContact(ctx context.Context, leadID, contactID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET hubspot_contact_id = $1, updated_at = $2 WHERE id = $3`,
		contactID, time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set crm contact %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: lead %s", leadID)
	}
	return nil
}

const recomputeScoreSQL = `UPDATE leads SET
	lead_score = (
		SELECT ROUND(AVG(score))::int FROM assessments
		WHERE lead_id = $1 AND status = 'completed' AND score IS NOT NULL
	),
	updated_at = $2
WHERE id = $1
RETURNING lead_score`

func recomputePgScore(ctx context.Context, q querier, leadID string) (*int, error) {
	var score *int
	err := q.QueryRow(ctx, recomputeScoreSQL, leadID, time.Now().UTC()).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: lead %s", leadID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: recompute lead score %s", leadID)
	}
	return score, nil
}

func (s *PostgresStore) RecomputeLeadScore(ctx context.Context, leadID string) (*int, error) {
	return recomputePgScore(ctx, s.pool, leadID)
}

const pgAssessmentColumns = `id, lead_id, app_type, status, input_data, analysis_data, score,
	recommendations, COALESCE(error, ''), completed_at, created_at`

func scanPgAssessment(row pgx.Row) (*model.Assessment, error) {
	var (
		a        model.Assessment
		input    []byte
		analysis []byte
		recs     []byte
	)
	err := row.Scan(&a.ID, &a.LeadID, &a.AppType, &a.Status, &input, &analysis, &a.Score,
		&recs, &a.Error, &a.CompletedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.InputData = input
	if len(analysis) > 0 {
		a.AnalysisData = analysis
	}
	if a.Recommendations, err = unmarshalStrings(recs); err != nil {
		return nil, err
	}
	return &a, nil
}

func insertPgActivity(ctx context.Context, q querier, leadID string, typ model.ActivityType, metadata map[string]any) (*model.LeadActivity, error) {
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	act := &model.LeadActivity{
		ID:           uuid.New().String(),
		LeadID:       leadID,
		ActivityType: typ,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = q.Exec(ctx,
		`INSERT INTO lead_activities (id, lead_id, activity_type, metadata, created_at) VALUES ($1, $2, $3, $4, $5)`,
		act.ID, act.LeadID, string(act.ActivityType), meta, act.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert %s activity", typ)
	}
	return act, nil
}

func (s *PostgresStore) BeginAssessment(ctx context.Context, sub Submission) (*model.Lead, *model.Assessment, error) {
	var (
		lead *model.Lead
		a    *model.Assessment
	)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		if lead, err = upsertPgLead(ctx, tx, sub.Email, sub.Fields); err != nil {
			return err
		}

		a = &model.Assessment{
			ID:        uuid.New().String(),
			LeadID:    lead.ID,
			AppType:   sub.AppType,
			Status:    model.AssessmentInProgress,
			InputData: sub.InputData,
			CreatedAt: time.Now().UTC(),
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO assessments (id, lead_id, app_type, status, input_data, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			a.ID, a.LeadID, string(a.AppType), string(a.Status), rawOrNull(a.InputData), a.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert assessment")
		}

		_, err = insertPgActivity(ctx, tx, lead.ID, model.ActivityAssessmentStart, map[string]any{
			"app_type":      string(sub.AppType),
			"assessment_id": a.ID,
		})
		return err
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "postgres: begin assessment")
	}
	lead.AssessmentCount++
	return lead, a, nil
}

func (s *PostgresStore) CompleteAssessment(ctx context.Context, id string, c Completion) (*model.Assessment, error) {
	recs, err := marshalStrings(c.Recommendations)
	if err != nil {
		return nil, err
	}

	var a *model.Assessment
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		a, err = scanPgAssessment(tx.QueryRow(ctx,
			`UPDATE assessments SET status = $1, score = $2, recommendations = $3, analysis_data = $4,
	error = NULL, completed_at = $5
WHERE id = $6
RETURNING `+pgAssessmentColumns,
			string(model.AssessmentCompleted), c.Score, recs, rawOrNull(c.AnalysisData), time.Now().UTC(), id,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: assessment %s", id)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: update assessment %s", id)
		}

		if _, err := recomputePgScore(ctx, tx, a.LeadID); err != nil {
			return err
		}
		_, err = insertPgActivity(ctx, tx, a.LeadID, model.ActivityAssessmentComplete, map[string]any{
			"app_type":      string(a.AppType),
			"assessment_id": a.ID,
			"score":         c.Score,
		})
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: complete assessment")
	}
	return a, nil
}

func (s *PostgresStore) FailAssessment(ctx context.Context, id string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE assessments SET status = $1, error = $2, completed_at = $3 WHERE id = $4 AND status = $5`,
		string(model.AssessmentFailed), reason, time.Now().UTC(), id, string(model.AssessmentInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail assessment %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: in-progress assessment %s", id)
	}
	return nil
}

func (s *PostgresStore) GetAssessment(ctx context.Context, id string) (*model.Assessment, error) {
	a, err := scanPgAssessment(s.pool.QueryRow(ctx,
		`SELECT `+pgAssessmentColumns+` FROM assessments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: assessment %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get assessment %s", id)
	}
	return a, nil
}

func (s *PostgresStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error) {
	query := `SELECT ` + pgAssessmentColumns + ` FROM assessments WHERE true`
	args := []any{}
	argIdx := 1

	if filter.LeadID != "" {
		query += fmt.Sprintf(` AND lead_id = $%d`, argIdx)
		args = append(args, filter.LeadID)
		argIdx++
	}
	if filter.AppType != "" {
		query += fmt.Sprintf(` AND app_type = $%d`, argIdx)
		args = append(args, string(filter.AppType))
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	if !filter.CreatedBefore.IsZero() {
		query += fmt.Sprintf(` AND created_at <= $%d`, argIdx)
		args = append(args, filter.CreatedBefore)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, clampLimit(filter.Limit), max(0, filter.Offset))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assessments")
	}
	defer rows.Close()

	out := []model.Assessment{}
	for rows.Next() {
		a, err := scanPgAssessment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan assessment")
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate assessments")
	}
	return out, nil
}

func (s *PostgresStore) TrackActivity(ctx context.Context, leadID string, typ model.ActivityType, metadata map[string]any) (*model.LeadActivity, error) {
	return insertPgActivity(ctx, s.pool, leadID, typ, metadata)
}

func (s *PostgresStore) ListActivities(ctx context.Context, leadID string, limit int) ([]model.LeadActivity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lead_id, activity_type, metadata, created_at FROM lead_activities
WHERE lead_id = $1 ORDER BY created_at DESC, id LIMIT $2`,
		leadID, clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list activities")
	}
	defer rows.Close()

	out := []model.LeadActivity{}
	for rows.Next() {
		var (
			act  model.LeadActivity
			meta []byte
		)
		if err := rows.Scan(&act.ID, &act.LeadID, &act.ActivityType, &meta, &act.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		if act.Metadata, err = unmarshalMetadata(meta); err != nil {
			return nil, err
		}
		out = append(out, act)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate activities")
	}
	return out, nil
}

func prepareEvent(ev *model.AnalyticsEvent) ([]byte, error) {
	now := time.Now().UTC()
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	ev.CreatedAt = now
	return marshalMetadata(ev.Metadata)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, ev *model.AnalyticsEvent) error {
	meta, err := prepareEvent(ev)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analytics_events (id, event_type, page_path, assessment_type, step, metadata, user_agent, ip_address, timestamp, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.ID, ev.EventType, ev.PagePath, nullIfEmpty(ev.AssessmentType), nullIfEmpty(ev.Step), meta,
		nullIfEmpty(ev.UserAgent), nullIfEmpty(ev.IPAddress), ev.Timestamp, ev.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert analytics event")
}

func (s *PostgresStore) CountEvents(ctx context.Context, since, until time.Time) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_type, count(*) FROM analytics_events WHERE timestamp >= $1 AND timestamp <= $2 GROUP BY event_type`,
		since, until,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count events")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event count")
		}
		counts[typ] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate event counts")
}
