package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/maruonline/leadgen/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS assessments (
	id              TEXT PRIMARY KEY,
	lead_id         TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	app_type        TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'in_progress',
	input_data      TEXT NOT NULL,
	analysis_data   TEXT,
	score           INTEGER,
	recommendations TEXT,
	error           TEXT,
	completed_at    DATETIME,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lead_activities (
	id            TEXT PRIMARY KEY,
	lead_id       TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	activity_type TEXT NOT NULL,
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analytics_events (
	id              TEXT PRIMARY KEY,
	event_type      TEXT NOT NULL,
	page_path       TEXT NOT NULL,
	assessment_type TEXT,
	step            TEXT,
	metadata        TEXT NOT NULL DEFAULT '{}',
	user_agent      TEXT,
	ip_address      TEXT,
	timestamp       DATETIME NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at);
CREATE INDEX IF NOT EXISTS idx_leads_lead_score ON leads(lead_score);
CREATE INDEX IF NOT EXISTS idx_assessments_lead_id ON assessments(lead_id);
CREATE INDEX IF NOT EXISTS idx_assessments_created_at ON assessments(created_at);
CREATE INDEX IF NOT EXISTS idx_assessments_app_type ON assessments(app_type);
CREATE INDEX IF NOT EXISTS idx_lead_activities_lead_id ON lead_activities(lead_id, created_at);
CREATE INDEX IF NOT EXISTS idx_analytics_events_timestamp ON analytics_events(timestamp);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqlExecer is satisfied by both *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

const sqliteLeadColumns = `l.id, l.email, COALESCE(l.first_name, ''), COALESCE(l.last_name, ''),
	COALESCE(l.phone, ''), COALESCE(l.company_name, ''), COALESCE(l.website_url, ''),
	COALESCE(l.industry, ''), COALESCE(l.company_size, ''), l.lead_score,
	COALESCE(l.hubspot_contact_id, ''),
	(SELECT count(*) FROM assessments a WHERE a.lead_id = l.id),
	l.created_at, l.updated_at`

func scanLead(row scannable) (*model.Lead, error) {
	var (
		l     model.Lead
		score sql.NullInt64
	)
	err := row.Scan(&l.ID, &l.Email, &l.FirstName, &l.LastName, &l.Phone, &l.CompanyName,
		&l.WebsiteURL, &l.Industry, &l.CompanySize, &score, &l.HubSpotContactID,
		&l.AssessmentCount, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.LeadScore = intPtr(score)
	return &l, nil
}

func leadByEmail(ctx context.Context, q sqlExecer, email string) (*model.Lead, error) {
	lead, err := scanLead(q.QueryRowContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads l WHERE l.email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: lead %s", email)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", email)
	}
	return lead, nil
}

// upsertLead claims the email row first so the transaction holds the write
// lock before it reads.
func upsertLead(ctx context.Context, tx *sql.Tx, email string, f model.LeadFields) (*model.Lead, error) {
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO leads (id, email, created_at, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(email) DO NOTHING`,
		uuid.New().String(), email, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert lead %s", email)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}

	lead, err := leadByEmail(ctx, tx, email)
	if err != nil {
		return nil, err
	}
	if !f.Apply(lead) && inserted == 0 {
		return lead, nil
	}

	lead.UpdatedAt = now
	_, err = tx.ExecContext(ctx,
		`UPDATE leads SET first_name = ?, last_name = ?, phone = ?, company_name = ?,
	website_url = ?, industry = ?, company_size = ?, updated_at = ?
WHERE id = ?`,
		nullIfEmpty(lead.FirstName), nullIfEmpty(lead.LastName), nullIfEmpty(lead.Phone),
		nullIfEmpty(lead.CompanyName), nullIfEmpty(lead.WebsiteURL), nullIfEmpty(lead.Industry),
		nullIfEmpty(lead.CompanySize), now, lead.ID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update lead %s", email)
	}
	return lead, nil
}

func (s *SQLiteStore) UpsertLead(ctx context.Context, email string, fields model.LeadFields) (*model.Lead, error) {
	var lead *model.Lead
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		lead, err = upsertLead(ctx, tx, email, fields)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	lead, err := scanLead(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads l WHERE l.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: lead %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return lead, nil
}

func (s *SQLiteStore) GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error) {
	return leadByEmail(ctx, s.db, email)
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, int, error) {
	where := ` WHERE 1=1`
	args := []any{}

	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		where += ` AND (l.email LIKE ? ESCAPE '\' OR l.company_name LIKE ? ESCAPE '\' OR l.first_name LIKE ? ESCAPE '\' OR l.last_name LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if filter.MinScore != nil {
		where += ` AND l.lead_score >= ?`
		args = append(args, *filter.MinScore)
	}
	if !filter.CreatedAfter.IsZero() {
		where += ` AND l.created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	if !filter.CreatedBefore.IsZero() {
		where += ` AND l.created_at <= ?`
		args = append(args, filter.CreatedBefore.UTC())
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM leads l`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count leads")
	}

	query := `SELECT ` + sqliteLeadColumns + ` FROM leads l` + where +
		fmt.Sprintf(` ORDER BY l.%s DESC NULLS LAST, l.id LIMIT ? OFFSET ?`, filter.sortColumn())
	args = append(args, clampLimit(filter.Limit), max(0, filter.Offset))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: iterate leads")
	}
	return leads, total, nil
}

func (s *SQLiteStore) SetLeadCRMContact(ctx context.Context, leadID, contactID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET hubspot_contact_id = ?, updated_at = ? WHERE id = ?`,
		contactID, time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set crm contact %s", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

func recomputeScore(ctx context.Context, q sqlExecer, leadID string) (*int, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE leads SET
	lead_score = (
		SELECT CAST(ROUND(AVG(score)) AS INTEGER) FROM assessments
		WHERE lead_id = ? AND status = 'completed' AND score IS NOT NULL
	),
	updated_at = ?
WHERE id = ?`,
		leadID, time.Now().UTC(), leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: recompute lead score %s", leadID)
	}
	if err := checkRowsAffected(res, "lead", leadID); err != nil {
		return nil, err
	}

	var score sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT lead_score FROM leads WHERE id = ?`, leadID).Scan(&score); err != nil {
		return nil, eris.Wrapf(err, "sqlite: read lead score %s", leadID)
	}
	return intPtr(score), nil
}

func (s *SQLiteStore) RecomputeLeadScore(ctx context.Context, leadID string) (*int, error) {
	return recomputeScore(ctx, s.db, leadID)
}

const sqliteAssessmentColumns = `id, lead_id, app_type, status, input_data, analysis_data, score,
	recommendations, COALESCE(error, ''), completed_at, created_at`

func scanAssessment(row scannable) (*model.Assessment, error) {
	var (
		a         model.Assessment
		input     string
		analysis  sql.NullString
		score     sql.NullInt64
		recs      sql.NullString
		completed sql.NullTime
	)
	err := row.Scan(&a.ID, &a.LeadID, &a.AppType, &a.Status, &input, &analysis, &score,
		&recs, &a.Error, &completed, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.InputData = []byte(input)
	if analysis.Valid && analysis.String != "" {
		a.AnalysisData = []byte(analysis.String)
	}
	a.Score = intPtr(score)
	if completed.Valid {
		a.CompletedAt = &completed.Time
	}
	if a.Recommendations, err = unmarshalStrings([]byte(recs.String)); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteStore) getAssessment(ctx context.Context, q sqlExecer, id string) (*model.Assessment, error) {
	a, err := scanAssessment(q.QueryRowContext(ctx,
		`SELECT `+sqliteAssessmentColumns+` FROM assessments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: assessment %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get assessment %s", id)
	}
	return a, nil
}

func insertActivity(ctx context.Context, q sqlExecer, leadID string, typ model.ActivityType, metadata map[string]any) (*model.LeadActivity, error) {
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
	_, err = q.ExecContext(ctx,
		`INSERT INTO lead_activities (id, lead_id, activity_type, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		act.ID, act.LeadID, string(act.ActivityType), string(meta), act.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert %s activity", typ)
	}
	return act, nil
}

func (s *SQLiteStore) BeginAssessment(ctx context.Context, sub Submission) (*model.Lead, *model.Assessment, error) {
	var (
		lead *model.Lead
		a    *model.Assessment
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if lead, err = upsertLead(ctx, tx, sub.Email, sub.Fields); err != nil {
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
		_, err = tx.ExecContext(ctx,
			`INSERT INTO assessments (id, lead_id, app_type, status, input_data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, a.LeadID, string(a.AppType), string(a.Status), string(a.InputData), a.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert assessment")
		}

		_, err = insertActivity(ctx, tx, lead.ID, model.ActivityAssessmentStart, map[string]any{
			"app_type":      string(sub.AppType),
			"assessment_id": a.ID,
		})
		return err
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: begin assessment")
	}
	lead.AssessmentCount++
	return lead, a, nil
}

func (s *SQLiteStore) CompleteAssessment(ctx context.Context, id string, c Completion) (*model.Assessment, error) {
	recs, err := marshalStrings(c.Recommendations)
	if err != nil {
		return nil, err
	}

	var a *model.Assessment
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var analysis any
		if raw := rawOrNull(c.AnalysisData); raw != nil {
			analysis = string(raw)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE assessments SET status = ?, score = ?, recommendations = ?, analysis_data = ?,
	error = NULL, completed_at = ?
WHERE id = ?`,
			string(model.AssessmentCompleted), c.Score, string(recs), analysis, time.Now().UTC(), id,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update assessment %s", id)
		}
		if n, err := res.RowsAffected(); err != nil {
			return eris.Wrap(err, "sqlite: rows affected")
		} else if n == 0 {
			return eris.Wrapf(ErrNotFound, "sqlite: assessment %s", id)
		}

		if a, err = s.getAssessment(ctx, tx, id); err != nil {
			return err
		}
		if _, err := recomputeScore(ctx, tx, a.LeadID); err != nil {
			return err
		}
		_, err = insertActivity(ctx, tx, a.LeadID, model.ActivityAssessmentComplete, map[string]any{
			"app_type":      string(a.AppType),
			"assessment_id": a.ID,
			"score":         c.Score,
		})
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: complete assessment")
	}
	return a, nil
}

func (s *SQLiteStore) FailAssessment(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assessments SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(model.AssessmentFailed), reason, time.Now().UTC(), id, string(model.AssessmentInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail assessment %s", id)
	}
	return checkRowsAffected(res, "in-progress assessment", id)
}

func (s *SQLiteStore) GetAssessment(ctx context.Context, id string) (*model.Assessment, error) {
	return s.getAssessment(ctx, s.db, id)
}

func (s *SQLiteStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error) {
	query := `SELECT ` + sqliteAssessmentColumns + ` FROM assessments WHERE 1=1`
	args := []any{}

	if filter.LeadID != "" {
		query += ` AND lead_id = ?`
		args = append(args, filter.LeadID)
	}
	if filter.AppType != "" {
		query += ` AND app_type = ?`
		args = append(args, string(filter.AppType))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	if !filter.CreatedBefore.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, filter.CreatedBefore.UTC())
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, clampLimit(filter.Limit), max(0, filter.Offset))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assessments")
	}
	defer rows.Close()

	out := []model.Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assessment")
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate assessments")
	}
	return out, nil
}

func (s *SQLiteStore) TrackActivity(ctx context.Context, leadID string, typ model.ActivityType, metadata map[string]any) (*model.LeadActivity, error) {
	return insertActivity(ctx, s.db, leadID, typ, metadata)
}

func (s *SQLiteStore) ListActivities(ctx context.Context, leadID string, limit int) ([]model.LeadActivity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, activity_type, metadata, created_at FROM lead_activities
WHERE lead_id = ? ORDER BY created_at DESC, id LIMIT ?`,
		leadID, clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list activities")
	}
	defer rows.Close()

	out := []model.LeadActivity{}
	for rows.Next() {
		var (
			act  model.LeadActivity
			meta string
		)
		if err := rows.Scan(&act.ID, &act.LeadID, &act.ActivityType, &meta, &act.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		if act.Metadata, err = unmarshalMetadata([]byte(meta)); err != nil {
			return nil, err
		}
		out = append(out, act)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate activities")
	}
	return out, nil
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, ev *model.AnalyticsEvent) error {
	meta, err := prepareEvent(ev)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analytics_events (id, event_type, page_path, assessment_type, step, metadata, user_agent, ip_address, timestamp, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.EventType, ev.PagePath, nullIfEmpty(ev.AssessmentType), nullIfEmpty(ev.Step), string(meta),
		nullIfEmpty(ev.UserAgent), nullIfEmpty(ev.IPAddress), ev.Timestamp.UTC(), ev.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert analytics event")
}

func (s *SQLiteStore) CountEvents(ctx context.Context, since, until time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, count(*) FROM analytics_events WHERE timestamp >= ? AND timestamp <= ? GROUP BY event_type`,
		since.UTC(), until.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count events")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event count")
		}
		counts[typ] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate event counts")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
