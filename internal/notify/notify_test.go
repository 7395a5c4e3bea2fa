package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/validate"
	"github.com/maruonline/leadgen/pkg/resend"
)

type recordingSender struct {
	sent []Message
	err  error
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func TestAssessmentComplete_Highlights(t *testing.T) {
	tests := []struct {
		name     string
		email    AssessmentEmail
		subject  string
		contains []string
	}{
		{
			name: "lead score",
			email: AssessmentEmail{
				To:              "jane@acme.com",
				Contact:         Contact{FirstName: "Jane", CompanyName: "Acme"},
				AppType:         model.AppTypeLeadScore,
				Score:           64,
				Recommendations: []string{"Add a lead magnet"},
			},
			subject:  "Your Lead Score Predictor Results - Acme",
			contains: []string{"Hi Jane,", "64/100", "Add a lead magnet"},
		},
		{
			name: "pipeline leak",
			email: AssessmentEmail{
				To:            "ops@acme.com",
				AppType:       model.AppTypePipelineLeak,
				RevenueAtRisk: 12500,
				StalledDeals:  3,
			},
			subject:  "Your Pipeline Leak Detector Results - Your Company",
			contains: []string{"Hi there,", "$12,500", "3 deals need attention"},
		},
		{
			name:     "other tools",
			email:    AssessmentEmail{To: "cto@acme.com", AppType: model.AppTypeTechAudit},
			subject:  "Your Tech Stack Auditor Results - Your Company",
			contains: []string{"ready for review"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingSender{}
			n := New(rec, Config{SiteURL: "https://maruonline.com"})

			d, err := n.AssessmentComplete(context.Background(), tt.email)
			require.NoError(t, err)
			assert.Equal(t, "recording", d.Provider)
			assert.False(t, d.Simulated)

			require.Len(t, rec.sent, 1)
			msg := rec.sent[0]
			assert.Equal(t, []string{tt.email.To}, msg.To)
			assert.Equal(t, tt.subject, msg.Subject)
			assert.Contains(t, msg.HTML, "https://maruonline.com/contact")
			for _, want := range tt.contains {
				assert.Contains(t, msg.HTML, want)
			}
		})
	}
}

func TestNotifier_EscapesUserInput(t *testing.T) {
	rec := &recordingSender{}
	n := New(rec, Config{})

	_, err := n.LeadScoreResults(context.Background(), LeadScoreEmail{
		To:        "x@acme.com",
		Name:      `<script>alert(1)</script> Smith`,
		Score:     40,
		Strengths: []string{`<img src=x onerror=alert(1)>`},
		Gaps:      []string{"Slow site"},
		Phase1:    []string{"Fix CTA"},
	})
	require.NoError(t, err)

	html := rec.sent[0].HTML
	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "<img src=x")
	assert.Contains(t, html, "&lt;img src=x onerror=alert(1)&gt;")
	assert.Equal(t, "🎯 Your Lead Score Results - 40/100", rec.sent[0].Subject)
}

func TestNotifier_SanitizedInputEscapedOnce(t *testing.T) {
	rec := &recordingSender{}
	n := New(rec, Config{})

	_, err := n.AssessmentComplete(context.Background(), AssessmentEmail{
		To:              "pat@att.com",
		Contact:         Contact{FirstName: validate.String("O'Brien"), CompanyName: validate.String("AT&T")},
		AppType:         model.AppTypeLeadScore,
		Score:           70,
		Recommendations: []string{validate.String("Fix Q&A page")},
	})
	require.NoError(t, err)

	msg := rec.sent[0]
	assert.Equal(t, "Your Lead Score Predictor Results - AT&T", msg.Subject)
	assert.Contains(t, msg.HTML, "Hi O&#39;Brien,")
	assert.Contains(t, msg.HTML, "Fix Q&amp;A page")
	assert.NotContains(t, msg.HTML, "&amp;#39;")
	assert.NotContains(t, msg.HTML, "&amp;amp;")

	_, err = n.LeadScoreResults(context.Background(), LeadScoreEmail{
		To:        "pat@att.com",
		Name:      validate.String("Pat O'Brien"),
		Score:     70,
		Strengths: []string{validate.String("R&D blog")},
	})
	require.NoError(t, err)
	assert.Contains(t, rec.sent[1].HTML, "R&amp;D blog")
	assert.NotContains(t, rec.sent[1].HTML, "&amp;amp;")
	assert.NotContains(t, rec.sent[1].HTML, "&amp;#39;")

	_, err = n.FormSubmission(context.Background(), validate.String("Q&A"), map[string]any{
		"name": validate.String("O'Brien"),
	})
	require.NoError(t, err)
	assert.Equal(t, "New Submission: Q&A", rec.sent[2].Subject)
	assert.NotContains(t, rec.sent[2].HTML, "&amp;#39;")
}

func TestLeadScoreResults_Plan(t *testing.T) {
	rec := &recordingSender{}
	n := New(rec, Config{AppURL: "https://app.maruonline.com"})

	_, err := n.LeadScoreResults(context.Background(), LeadScoreEmail{
		To:                   "jane@acme.com",
		Name:                 "Jane Doe",
		AnalysisID:           "a-1",
		Score:                58,
		PotentialImprovement: 42,
		ExpectedIncrease:     "1.5-2x more leads",
		Phase1:               []string{"Quick win"},
		Phase2:               []string{"Optimise forms"},
		Phase3:               []string{"Launch nurture"},
	})
	require.NoError(t, err)

	html := rec.sent[0].HTML
	for _, want := range []string{
		"Personalized analysis for Jane", "+42 points", "1.5-2x more leads",
		"Quick win", "Optimise forms", "Launch nurture",
		"https://app.maruonline.com/lead-score-predictor/results?id=a-1",
		"https://calendly.com/maruonline/strategy-call",
	} {
		assert.Contains(t, html, want)
	}
}

func TestFormSubmission(t *testing.T) {
	rec := &recordingSender{}
	n := New(rec, Config{OperatorAddress: "ops@maruonline.com"})

	_, err := n.FormSubmission(context.Background(), "Contact Form", map[string]any{
		"client_email": "lead@acme.com",
		"full_name":    "Lead Person",
		"services":     []any{"CRM", "Automation"},
		"newsletter":   false,
		"notes":        "",
	})
	require.NoError(t, err)

	msg := rec.sent[0]
	assert.Equal(t, []string{"ops@maruonline.com"}, msg.To)
	assert.Equal(t, "lead@acme.com", msg.ReplyTo)
	assert.Equal(t, "New Submission: Contact Form", msg.Subject)
	assert.Contains(t, msg.HTML, "Client Email")
	assert.Contains(t, msg.HTML, "CRM, Automation")
	assert.NotContains(t, msg.HTML, "Newsletter")
	assert.NotContains(t, msg.HTML, "Notes")
}

func TestFollowUp(t *testing.T) {
	rec := &recordingSender{}
	_, err := New(rec, Config{}).FollowUp(context.Background(), FollowUpEmail{
		To:      "jane@acme.com",
		Contact: Contact{CompanyName: "Acme\r\nBcc: evil@x.com"},
		AppType: model.AppTypeProposal,
	})
	require.NoError(t, err)
	assert.NotContains(t, rec.sent[0].Subject, "\n")
	assert.Contains(t, rec.sent[0].HTML, "Proposal Accelerator")
}

func TestNotifier_SendFailure(t *testing.T) {
	rec := &recordingSender{err: errors.New("smtp down")}
	_, err := New(rec, Config{}).FollowUp(context.Background(), FollowUpEmail{To: "a@b.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify: send follow_up")
}

func TestNotifier_Simulated(t *testing.T) {
	n := New(nil, Config{})
	d, err := n.FollowUp(context.Background(), FollowUpEmail{To: "a@b.com"})
	require.NoError(t, err)
	assert.True(t, d.Simulated)
	assert.Equal(t, "simulated", d.Provider)
	assert.Equal(t, "simulated", n.SenderName())
}

func TestNewSender(t *testing.T) {
	assert.IsType(t, &ResendSender{}, NewSender(SenderConfig{ResendAPIKey: "re_1", SMTPUser: "u", SMTPPass: "p"}))
	assert.IsType(t, &SMTPSender{}, NewSender(SenderConfig{SMTPUser: "u", SMTPPass: "p"}))
	assert.IsType(t, SimulatedSender{}, NewSender(SenderConfig{SMTPUser: "u"}))

	s := NewSMTPSender(SenderConfig{SMTPUser: "bot@maruonline.com", SMTPPass: "p"})
	assert.Equal(t, "smtp.gmail.com", s.host)
	assert.Equal(t, 587, s.port)
	assert.Equal(t, "bot@maruonline.com", s.from)
}

func TestSMTPSender_RejectsBadAddress(t *testing.T) {
	s := NewSMTPSender(SenderConfig{SMTPUser: "bot@maruonline.com", SMTPPass: "p", FromName: "Maru Website"})
	_, err := s.message(Message{To: []string{"not an address"}, Subject: "x", HTML: "<p>x</p>"})
	assert.Error(t, err)

	m, err := s.message(Message{To: []string{"ok@acme.com"}, ReplyTo: "client@acme.com", Subject: "x", HTML: "<p>x</p>"})
	require.NoError(t, err)
	assert.NotNil(t, m)
}

type fakeResend struct {
	got resend.SendRequest
}

func (f *fakeResend) Send(_ context.Context, req resend.SendRequest) (*resend.SendResponse, error) {
	f.got = req
	return &resend.SendResponse{ID: "email_1"}, nil
}

func TestResendSender(t *testing.T) {
	fake := &fakeResend{}
	s := NewResendSender(fake, "Maru Online <noreply@maruonline.com>")

	err := s.Send(context.Background(), Message{To: []string{"a@b.com"}, Subject: "Hi", HTML: "<p>hi</p>", ReplyTo: "c@d.com"})
	require.NoError(t, err)
	assert.Equal(t, "Maru Online <noreply@maruonline.com>", fake.got.From)
	assert.Equal(t, "c@d.com", fake.got.ReplyTo)
	assert.Equal(t, "resend", s.Name())
}
