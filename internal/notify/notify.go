// Package notify renders the outbound emails and hands them to a Sender.
package notify

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/validate"
)

//go:embed templates/*.html
var templateFS embed.FS

// Message is a rendered email ready for delivery.
type Message struct {
	To      []string
	Subject string
	HTML    string
	ReplyTo string
}

// Sender delivers a rendered message.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Delivery reports how a message left the process.
type Delivery struct {
	Provider  string `json:"provider"`
	Simulated bool   `json:"simulated"`
}

// Config holds addresses and links used by the templates.
type Config struct {
	// OperatorAddress receives form submissions.
	OperatorAddress string
	SiteURL         string
	AppURL          string
	BookingURL      string
}

// Notifier renders templates and sends them through its Sender.
type Notifier struct {
	sender Sender
	cfg    Config
	tmpl   *template.Template
}

var (
	titleCaser = cases.Title(language.English)
	printer    = message.NewPrinter(language.English)
)

// New creates a Notifier. A nil sender falls back to SimulatedSender.
func New(sender Sender, cfg Config) *Notifier {
	if sender == nil {
		sender = SimulatedSender{}
	}
	if cfg.OperatorAddress == "" {
		cfg.OperatorAddress = "hello@maruonline.com"
	}
	if cfg.BookingURL == "" {
		cfg.BookingURL = "https://calendly.com/maruonline/strategy-call"
	}
	tmpl := template.Must(template.New("notify").Funcs(template.FuncMap{
		"title": titleCaser.String,
		"money": func(v float64) string { return printer.Sprintf("%.0f", v) },
	}).ParseFS(templateFS, "templates/*.html"))

	return &Notifier{sender: sender, cfg: cfg, tmpl: tmpl}
}

// SenderName returns the configured delivery provider.
func (n *Notifier) SenderName() string {
	return n.sender.Name()
}

// Contact is the recipient's contact information.
type Contact struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

func (c Contact) greeting() string {
	if c.FirstName != "" {
		return plain(c.FirstName)
	}
	return "there"
}

func (c Contact) company() string {
	if c.CompanyName != "" {
		return plain(c.CompanyName)
	}
	return "Your Company"
}

// plain undoes the sanitizer's escaping so html/template escapes each value
// exactly once.
func plain(s string) string {
	return validate.Plain(s)
}

func plainAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = plain(s)
	}
	return out
}

// AssessmentEmail is the data of the assessment_complete template.
type AssessmentEmail struct {
	To              string
	Contact         Contact
	AppType         model.AppType
	Score           int
	Recommendations []string
	RevenueAtRisk   float64
	StalledDeals    int
}

// AssessmentComplete sends the results summary for a finished assessment.
func (n *Notifier) AssessmentComplete(ctx context.Context, e AssessmentEmail) (Delivery, error) {
	var keyOpportunity string
	if len(e.Recommendations) > 0 {
		keyOpportunity = plain(e.Recommendations[0])
	}
	body, err := n.render("assessment_complete.html", map[string]any{
		"Greeting":       e.Contact.greeting(),
		"ToolName":       e.AppType.DisplayName(),
		"AppType":        string(e.AppType),
		"Score":          e.Score,
		"KeyOpportunity": keyOpportunity,
		"RevenueAtRisk":  e.RevenueAtRisk,
		"StalledDeals":   e.StalledDeals,
		"SiteURL":        n.cfg.SiteURL,
	})
	if err != nil {
		return Delivery{}, err
	}
	return n.send(ctx, "assessment_complete", Message{
		To:      []string{e.To},
		Subject: "Your " + e.AppType.DisplayName() + " Results - " + e.Contact.company(),
		HTML:    body,
	})
}

// FollowUpEmail is the data of the follow_up template.
type FollowUpEmail struct {
	To      string
	Contact Contact
	AppType model.AppType
}

// FollowUp sends the nudge to book a strategy session.
func (n *Notifier) FollowUp(ctx context.Context, e FollowUpEmail) (Delivery, error) {
	body, err := n.render("follow_up.html", map[string]any{
		"Greeting": e.Contact.greeting(),
		"ToolName": e.AppType.DisplayName(),
		"SiteURL":  n.cfg.SiteURL,
	})
	if err != nil {
		return Delivery{}, err
	}
	return n.send(ctx, "follow_up", Message{
		To:      []string{e.To},
		Subject: "Ready to implement your recommendations? - " + e.Contact.company(),
		HTML:    body,
	})
}

// LeadScoreEmail is the data of the lead_score_results template.
type LeadScoreEmail struct {
	To                   string
	Name                 string
	AnalysisID           string
	Score                int
	PotentialImprovement int
	ExpectedIncrease     string
	Strengths            []string
	Gaps                 []string
	Phase1               []string
	Phase2               []string
	Phase3               []string
}

// LeadScoreResults sends the detailed lead score report with its 90-day plan.
func (n *Notifier) LeadScoreResults(ctx context.Context, e LeadScoreEmail) (Delivery, error) {
	e.Name = plain(e.Name)
	e.ExpectedIncrease = plain(e.ExpectedIncrease)
	e.Strengths = plainAll(e.Strengths)
	e.Gaps = plainAll(e.Gaps)
	e.Phase1 = plainAll(e.Phase1)
	e.Phase2 = plainAll(e.Phase2)
	e.Phase3 = plainAll(e.Phase3)

	firstName := "there"
	if parts := strings.Fields(e.Name); len(parts) > 0 {
		firstName = parts[0]
	}
	body, err := n.render("lead_score_results.html", map[string]any{
		"FirstName":  firstName,
		"Email":      e,
		"AppURL":     n.cfg.AppURL,
		"BookingURL": n.cfg.BookingURL,
	})
	if err != nil {
		return Delivery{}, err
	}
	return n.send(ctx, "lead_score_results", Message{
		To:      []string{e.To},
		Subject: printer.Sprintf("🎯 Your Lead Score Results - %d/100", e.Score),
		HTML:    body,
	})
}

type formRow struct {
	Label string
	Value string
}

// FormSubmission forwards a website form to the operator inbox. Replies go to
// the submitter.
func (n *Notifier) FormSubmission(ctx context.Context, formType string, fields map[string]any) (Delivery, error) {
	formType = plain(formType)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]formRow, 0, len(keys))
	for _, k := range keys {
		v := formValue(fields[k])
		if v == "" {
			continue
		}
		rows = append(rows, formRow{Label: titleCaser.String(strings.ReplaceAll(k, "_", " ")), Value: v})
	}

	body, err := n.render("form_submission.html", map[string]any{
		"FormType": formType,
		"Rows":     rows,
	})
	if err != nil {
		return Delivery{}, err
	}

	replyTo := formValue(fields["client_email"])
	if replyTo == "" {
		replyTo = formValue(fields["email"])
	}
	return n.send(ctx, "form_submission", Message{
		To:      []string{n.cfg.OperatorAddress},
		Subject: "New Submission: " + formType,
		HTML:    body,
		ReplyTo: replyTo,
	})
}

func formValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(plain(t))
	case bool:
		if t {
			return "Yes"
		}
		return ""
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := formValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	default:
		return printer.Sprint(t)
	}
}

func (n *Notifier) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := n.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", eris.Wrapf(err, "notify: render %s", name)
	}
	return buf.String(), nil
}

func (n *Notifier) send(ctx context.Context, kind string, msg Message) (Delivery, error) {
	msg.Subject = strings.NewReplacer("\r", " ", "\n", " ").Replace(msg.Subject)

	d := Delivery{Provider: n.sender.Name()}
	if _, ok := n.sender.(SimulatedSender); ok {
		d.Simulated = true
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		zap.L().Error("notify: send failed",
			zap.String("kind", kind),
			zap.String("provider", d.Provider),
			zap.Error(err),
		)
		return d, eris.Wrapf(err, "notify: send %s", kind)
	}
	zap.L().Info("notify: email sent",
		zap.String("kind", kind),
		zap.String("provider", d.Provider),
		zap.Bool("simulated", d.Simulated),
	)
	return d, nil
}
