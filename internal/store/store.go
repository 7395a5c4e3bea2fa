package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/maruonline/leadgen/internal/model"
)

// ErrNotFound is returned when a lead or assessment does not exist.
var ErrNotFound = eris.New("store: not found")

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// LeadSortColumns are the columns ListLeads may order by. Every sort is
// descending.
var LeadSortColumns = map[string]bool{
	"created_at":   true,
	"updated_at":   true,
	"lead_score":   true,
	"email":        true,
	"company_name": true,
}

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	// Search matches email, company and name case-insensitively.
	Search        string    `json:"search,omitempty"`
	MinScore      *int      `json:"min_score,omitempty"`
	Sort          string    `json:"sort,omitempty"`
	CreatedAfter  time.Time `json:"created_after,omitempty"`
	CreatedBefore time.Time `json:"created_before,omitempty"`
	Limit         int       `json:"limit,omitempty"`
	Offset        int       `json:"offset,omitempty"`
}

func (f LeadFilter) sortColumn() string {
	if LeadSortColumns[f.Sort] {
		return f.Sort
	}
	return "created_at"
}

// AssessmentFilter specifies criteria for listing assessments.
type AssessmentFilter struct {
	LeadID        string                 `json:"lead_id,omitempty"`
	AppType       model.AppType          `json:"app_type,omitempty"`
	Status        model.AssessmentStatus `json:"status,omitempty"`
	CreatedAfter  time.Time              `json:"created_after,omitempty"`
	CreatedBefore time.Time              `json:"created_before,omitempty"`
	Limit         int                    `json:"limit,omitempty"`
	Offset        int                    `json:"offset,omitempty"`
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

// Submission is the write set of BeginAssessment.
type Submission struct {
	Email     string
	Fields    model.LeadFields
	AppType   model.AppType
	InputData json.RawMessage
}

// Completion is the write set of CompleteAssessment.
type Completion struct {
	Score           int
	Recommendations []string
	AnalysisData    json.RawMessage
}

// Store persists leads, assessments and tracking data.
type Store interface {
	// Leads
	UpsertLead(ctx context.Context, email string, fields model.LeadFields) (*model.Lead, error)
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, int, error)
	SetLeadCRMContact(ctx context.Context, leadID, contactID string) error
	RecomputeLeadScore(ctx context.Context, leadID string) (*int, error)

	// Assessments
	BeginAssessment(ctx context.Context, sub Submission) (*model.Lead, *model.Assessment, error)
	CompleteAssessment(ctx context.Context, id string, c Completion) (*model.Assessment, error)
	FailAssessment(ctx context.Context, id string, reason string) error
	GetAssessment(ctx context.Context, id string) (*model.Assessment, error)
	ListAssessments(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, error)

	// Tracking
	TrackActivity(ctx context.Context, leadID string, typ model.ActivityType, metadata map[string]any) (*model.LeadActivity, error)
	ListActivities(ctx context.Context, leadID string, limit int) ([]model.LeadActivity, error)
	RecordEvent(ctx context.Context, ev *model.AnalyticsEvent) error
	CountEvents(ctx context.Context, since, until time.Time) (map[string]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal metadata")
	}
	return b, nil
}

func unmarshalMetadata(b []byte) (map[string]any, error) {
	if len(b) == 0 || string(b) == "{}" || string(b) == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal metadata")
	}
	return m, nil
}

func marshalStrings(s []string) ([]byte, error) {
	if s == nil {
		s = []string{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal recommendations")
	}
	return b, nil
}

func unmarshalStrings(b []byte) ([]string, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var s []string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal recommendations")
	}
	return s, nil
}

// rawOrNull keeps empty JSON out of NOT NULL checks and jsonb casts.
func rawOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
