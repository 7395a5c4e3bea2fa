// Package pipeline runs an assessment submission end to end: validation,
// persistence, scoring, notification and CRM sync.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maruonline/leadgen/internal/assessment"
	"github.com/maruonline/leadgen/internal/crm"
	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/notify"
	"github.com/maruonline/leadgen/internal/store"
	"github.com/maruonline/leadgen/internal/validate"
)

// ErrInvalidInput marks processing failures caused by the submitted data.
var ErrInvalidInput = assessment.ErrInvalidInput

// persistTimeout bounds each store write made after processing. Those writes
// run detached from the request so a slow upstream cannot strand a row
// in_progress.
const persistTimeout = 5 * time.Second

// ValidationError carries field-level problems with a submission.
type ValidationError struct {
	Fields validate.Errors
}

func (e *ValidationError) Error() string {
	return "pipeline: validation failed: " + e.Fields.Error()
}

// InputError is a processing failure the client can fix by resubmitting
// different data. It unwraps to ErrInvalidInput.
type InputError struct {
	Reason string
	err    error
}

func (e *InputError) Error() string { return e.Reason }
func (e *InputError) Unwrap() error { return e.err }

// Mailer sends the results email of a finished assessment.
type Mailer interface {
	AssessmentComplete(ctx context.Context, e notify.AssessmentEmail) (notify.Delivery, error)
}

// CRM pushes a lead to the configured CRMs.
type CRM interface {
	Enabled() bool
	Sync(ctx context.Context, c crm.Contact) ([]crm.Result, error)
}

// Submission is the result of a processed assessment.
type Submission struct {
	AssessmentID    string              `json:"assessment_id"`
	LeadID          string              `json:"lead_id"`
	AppType         model.AppType       `json:"app_type"`
	Score           int                 `json:"score"`
	Recommendations []string            `json:"recommendations"`
	Analysis        any                 `json:"analysis,omitempty"`
	LeadScore       *int                `json:"lead_score"`
	Degraded        []model.Degradation `json:"degraded,omitempty"`
	Email           *notify.Delivery    `json:"email,omitempty"`
	CRM             []crm.Result        `json:"crm,omitempty"`
}

// Pipeline processes assessment submissions.
type Pipeline struct {
	store    store.Store
	registry *assessment.Registry
	mailer   Mailer
	crm      CRM
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMailer sends a results email after each completed assessment.
func WithMailer(m Mailer) Option {
	return func(p *Pipeline) { p.mailer = m }
}

// WithCRM syncs the lead after each completed assessment.
func WithCRM(c CRM) Option {
	return func(p *Pipeline) { p.crm = c }
}

// WithClock overrides the time source used for CRM timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline over a store and a processor registry.
func New(st store.Store, registry *assessment.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{store: st, registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse validates and sanitizes a raw submission body.
func Parse(raw []byte) (*validate.Submission, error) {
	sub, err := validate.ParseSubmission(raw)
	if err != nil {
		if fields, ok := validate.AsErrors(err); ok {
			return nil, &ValidationError{Fields: fields}
		}
		return nil, &ValidationError{Fields: validate.Errors{{Field: "body", Message: err.Error()}}}
	}
	sub.Email = validate.Email(sub.Email)
	if err := validate.Payload(sub.Payload); err != nil {
		if errors.Is(err, validate.ErrInvalidURL) {
			return nil, &ValidationError{Fields: validate.Errors{{Field: "input_data.website_url", Message: validate.ErrInvalidURL.Error()}}}
		}
		return nil, eris.Wrap(err, "pipeline: sanitize")
	}
	return sub, nil
}

// Submit runs one submission through every stage. Only validation,
// invalid input and persistence failures are returned; notification and CRM
// problems are logged and the submission still succeeds.
func (p *Pipeline) Submit(ctx context.Context, raw []byte) (*Submission, error) {
	sub, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("app_type", string(sub.AppType)))

	lead, a, err := p.store.BeginAssessment(ctx, store.Submission{
		Email:     sub.Email,
		Fields:    sub.Payload.LeadFields(),
		AppType:   sub.AppType,
		InputData: sub.InputData,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: begin assessment")
	}
	log = log.With(zap.String("assessment_id", a.ID), zap.String("lead_id", lead.ID))

	start := time.Now()
	outcome, err := p.registry.Process(ctx, sub.Payload)
	if err != nil {
		p.fail(ctx, log, a.ID, err)
		if errors.Is(err, ErrInvalidInput) {
			log.Info("pipeline: rejected assessment input", zap.Error(err))
			return nil, &InputError{Reason: inputReason(err), err: err}
		}
		return nil, eris.Wrap(err, "pipeline: process")
	}
	for _, d := range outcome.Degraded {
		log.Warn("pipeline: stage degraded", zap.String("stage", d.Stage), zap.String("reason", d.Reason))
	}

	var analysis json.RawMessage
	if outcome.Analysis != nil {
		if analysis, err = json.Marshal(outcome.Analysis); err != nil {
			p.fail(ctx, log, a.ID, err)
			return nil, eris.Wrap(err, "pipeline: encode analysis")
		}
	}

	pctx, cancel := persistContext(ctx)
	defer cancel()
	done, err := p.store.CompleteAssessment(pctx, a.ID, store.Completion{
		Score:           outcome.Score,
		Recommendations: outcome.Recommendations,
		AnalysisData:    analysis,
	})
	if err != nil {
		p.fail(ctx, log, a.ID, err)
		return nil, eris.Wrap(err, "pipeline: complete assessment")
	}

	if updated, err := p.store.GetLead(pctx, lead.ID); err == nil {
		lead = updated
	} else {
		log.Warn("pipeline: reload lead", zap.Error(err))
	}

	log.Info("pipeline: assessment completed",
		zap.Int("score", outcome.Score),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	res := &Submission{
		AssessmentID:    done.ID,
		LeadID:          lead.ID,
		AppType:         sub.AppType,
		Score:           outcome.Score,
		Recommendations: outcome.Recommendations,
		Analysis:        outcome.Analysis,
		LeadScore:       lead.LeadScore,
		Degraded:        outcome.Degraded,
	}
	if res.Recommendations == nil {
		res.Recommendations = []string{}
	}

	p.fanOut(ctx, log, lead, sub.AppType, outcome, res)
	return res, nil
}

// persistContext keeps ctx values but drops its cancellation, so writes
// after processing land even when the request deadline has passed.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

// fail marks the assessment failed with the reason.
func (p *Pipeline) fail(ctx context.Context, log *zap.Logger, id string, cause error) {
	pctx, cancel := persistContext(ctx)
	defer cancel()
	if err := p.store.FailAssessment(pctx, id, cause.Error()); err != nil {
		log.Error("pipeline: failed to record assessment failure", zap.Error(err))
	}
}

// fanOut runs the results email and CRM sync concurrently. Neither can fail
// the submission.
func (p *Pipeline) fanOut(ctx context.Context, log *zap.Logger, lead *model.Lead, appType model.AppType, outcome model.Outcome, res *Submission) {
	var g errgroup.Group

	if p.mailer != nil {
		g.Go(func() error {
			email := notify.AssessmentEmail{
				To: lead.Email,
				Contact: notify.Contact{
					FirstName:   lead.FirstName,
					LastName:    lead.LastName,
					CompanyName: lead.CompanyName,
				},
				AppType:         appType,
				Score:           outcome.Score,
				Recommendations: outcome.Recommendations,
			}
			switch an := outcome.Analysis.(type) {
			case assessment.PipelineLeakResult:
				email.RevenueAtRisk = an.RevenueAtRisk
				email.StalledDeals = an.LeaksDetected.StalledDeals
			case *assessment.PipelineLeakResult:
				email.RevenueAtRisk = an.RevenueAtRisk
				email.StalledDeals = an.LeaksDetected.StalledDeals
			}
			d, err := p.mailer.AssessmentComplete(ctx, email)
			if err != nil {
				log.Warn("pipeline: results email failed", zap.Error(err))
				return nil
			}
			res.Email = &d
			return nil
		})
	}

	if p.crm != nil && p.crm.Enabled() {
		g.Go(func() error {
			score := outcome.Score
			contact := crm.ContactFromLead(lead, &crm.Assessment{AppType: appType, Score: &score}, p.now())
			results, err := p.crm.Sync(ctx, contact)
			if err != nil {
				log.Warn("pipeline: crm sync incomplete", zap.Error(err))
			}
			res.CRM = results
			for _, r := range results {
				if r.Provider != "hubspot" || r.ContactID == "" || r.ContactID == lead.HubSpotContactID {
					continue
				}
				if err := p.store.SetLeadCRMContact(ctx, lead.ID, r.ContactID); err != nil {
					log.Warn("pipeline: store crm contact id", zap.Error(err))
				}
			}
			return nil
		})
	}

	_ = g.Wait()
}

// inputReason strips the sentinel suffix from a processor's invalid input
// error, leaving the message meant for the submitter.
func inputReason(err error) string {
	msg := err.Error()
	if trimmed := strings.TrimSuffix(msg, ": "+ErrInvalidInput.Error()); trimmed != "" {
		return trimmed
	}
	return msg
}
