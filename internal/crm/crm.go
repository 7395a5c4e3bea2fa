// Package crm pushes leads to external CRMs after an assessment.
package crm

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/validate"
)

// ErrNotConfigured is returned when no CRM credentials are present.
var ErrNotConfigured = eris.New("crm: not configured")

// Syncer upserts a contact into one CRM.
type Syncer interface {
	Name() string
	Sync(ctx context.Context, c Contact) (Result, error)
}

// Result describes the outcome of one sync.
type Result struct {
	Provider  string `json:"provider"`
	ContactID string `json:"contactId"`
	Created   bool   `json:"created"`
}

// Assessment summarises the assessment that triggered a sync.
type Assessment struct {
	AppType model.AppType
	Score   *int
}

// scoreKeys names the field of a tool's result that carries its headline score.
var scoreKeys = map[model.AppType]string{
	model.AppTypeLeadScore:    "score",
	model.AppTypePipelineLeak: "leakScore",
	model.AppTypeTechAudit:    "efficiencyScore",
}

// AssessmentFromData reads the headline score out of a client-supplied result
// payload. Unknown tools and missing scores yield a nil Score.
func AssessmentFromData(appType model.AppType, data map[string]any) Assessment {
	a := Assessment{AppType: appType}
	key, ok := scoreKeys[appType]
	if !ok {
		return a
	}
	switch v := data[key].(type) {
	case float64:
		s := int(math.Round(v))
		a.Score = &s
	case int:
		a.Score = &v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			a.Score = &n
		}
	}
	return a
}

// Contact is the CRM-neutral view of a lead.
type Contact struct {
	Email              string
	FirstName          string
	LastName           string
	Company            string
	Website            string
	Phone              string
	Industry           string
	LeadScore          *int
	AssessmentCount    int
	LastAssessmentDate time.Time
	Assessment         *Assessment
}

// ContactFromLead builds a Contact from a stored lead and the assessment that
// triggered the sync, which may be nil.
func ContactFromLead(lead *model.Lead, a *Assessment, now time.Time) Contact {
	return Contact{
		Email:              lead.Email,
		FirstName:          validate.Plain(lead.FirstName),
		LastName:           validate.Plain(lead.LastName),
		Company:            validate.Plain(lead.CompanyName),
		Website:            lead.WebsiteURL,
		Phone:              validate.Plain(lead.Phone),
		Industry:           validate.Plain(lead.Industry),
		LeadScore:          lead.LeadScore,
		AssessmentCount:    lead.AssessmentCount,
		LastAssessmentDate: now,
		Assessment:         a,
	}
}

// AssessmentProperties returns the tool-specific custom properties of the
// triggering assessment.
func (c Contact) AssessmentProperties() map[string]string {
	props := map[string]string{}
	if c.Assessment == nil {
		return props
	}
	score := func(key string) {
		if c.Assessment.Score != nil {
			props[key] = strconv.Itoa(*c.Assessment.Score)
		}
	}
	switch c.Assessment.AppType {
	case model.AppTypeLeadScore:
		score("lead_score_predictor")
	case model.AppTypePipelineLeak:
		score("pipeline_leak_score")
	case model.AppTypeProposal:
		props["proposal_generated"] = "true"
	case model.AppTypeTechAudit:
		score("tech_audit_score")
	}
	return props
}

// Multi fans a contact out to every configured syncer. A failing CRM does not
// stop the others; the failures are joined into the returned error.
type Multi struct {
	syncers []Syncer
}

// NewMulti returns a Multi over the given syncers, skipping nils.
func NewMulti(syncers ...Syncer) *Multi {
	m := &Multi{}
	for _, s := range syncers {
		if s != nil {
			m.syncers = append(m.syncers, s)
		}
	}
	return m
}

// Enabled reports whether at least one CRM is configured.
func (m *Multi) Enabled() bool { return m != nil && len(m.syncers) > 0 }

// Names lists the configured providers.
func (m *Multi) Names() []string {
	names := make([]string, 0, len(m.syncers))
	for _, s := range m.syncers {
		names = append(names, s.Name())
	}
	return names
}

// Get returns the syncer with the given provider name.
func (m *Multi) Get(name string) (Syncer, bool) {
	if m == nil {
		return nil, false
	}
	for _, s := range m.syncers {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Sync pushes c to every syncer in order.
func (m *Multi) Sync(ctx context.Context, c Contact) ([]Result, error) {
	if !m.Enabled() {
		return nil, ErrNotConfigured
	}
	var (
		results []Result
		errs    []error
	)
	for _, s := range m.syncers {
		res, err := s.Sync(ctx, c)
		if err != nil {
			zap.L().Warn("crm: sync failed",
				zap.String("provider", s.Name()),
				zap.String("email", c.Email),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
