package validate

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"

	"github.com/maruonline/leadgen/internal/model"
)

// ErrInvalidURL is returned for URLs that do not parse or use a scheme other
// than http/https.
var ErrInvalidURL = eris.New("Invalid URL format")

// strict drops every tag and the contents of script and style elements. Its
// output escapes < > & " ' in the remaining text.
var strict = bluemonday.StrictPolicy()

// String strips markup from s and escapes what is left so it can be placed
// into an HTML body verbatim.
func String(s string) string {
	return strings.TrimSpace(strict.Sanitize(s))
}

// Plain reverses the escaping String applies. Use it where text leaves as
// plain text (subjects, exports) or goes through an escaping template.
func Plain(s string) string {
	return html.UnescapeString(s)
}

// Email lower-cases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// URL re-serializes s, rejecting anything but absolute http(s) URLs.
func URL(s string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", ErrInvalidURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}

func sanitizeAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if c := String(s); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func optionalURL(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	return URL(s)
}

// Payload sanitizes the free-text fields of p in place. CSV data is left
// untouched because escaping would corrupt its quoting.
func Payload(p model.Payload) error {
	var err error
	switch p := p.(type) {
	case *model.LeadScorePayload:
		if p.WebsiteURL, err = URL(p.WebsiteURL); err != nil {
			return err
		}
		p.CompanyName = String(p.CompanyName)
		p.Industry = String(p.Industry)
		p.CompanySize = String(p.CompanySize)
		p.FirstName = String(p.FirstName)
		p.LastName = String(p.LastName)
		p.Phone = String(p.Phone)
		p.MonthlyVisitors = String(p.MonthlyVisitors)
		p.Budget = String(p.Budget)
		p.LeadGenMethods = sanitizeAll(p.LeadGenMethods)
		p.Challenges = sanitizeAll(p.Challenges)
	case *model.PipelineLeakPayload:
		if p.WebsiteURL, err = optionalURL(p.WebsiteURL); err != nil {
			return err
		}
		p.CompanyName = String(p.CompanyName)
		p.Industry = String(p.Industry)
		p.CompanySize = String(p.CompanySize)
	case *model.ProposalPayload:
		if p.WebsiteURL, err = optionalURL(p.WebsiteURL); err != nil {
			return err
		}
		p.CompanyName = String(p.CompanyName)
		p.Industry = String(p.Industry)
		p.CompanySize = String(p.CompanySize)
		p.ProjectDescription = String(p.ProjectDescription)
		p.CompanyInfo.Name = String(p.CompanyInfo.Name)
		p.CompanyInfo.Industry = String(p.CompanyInfo.Industry)
		p.CompanyInfo.Size = String(p.CompanyInfo.Size)
		p.CompanyInfo.Challenges = sanitizeAll(p.CompanyInfo.Challenges)
		p.ProjectScope.Services = sanitizeAll(p.ProjectScope.Services)
		p.ProjectScope.Timeline = String(p.ProjectScope.Timeline)
		p.ProjectScope.BudgetRange = String(p.ProjectScope.BudgetRange)
		p.DecisionMakers.PrimaryContact = String(p.DecisionMakers.PrimaryContact)
		p.DecisionMakers.Stakeholders = sanitizeAll(p.DecisionMakers.Stakeholders)
	case *model.TechAuditPayload:
		if p.WebsiteURL, err = optionalURL(p.WebsiteURL); err != nil {
			return err
		}
		p.CompanyName = String(p.CompanyName)
		p.Industry = String(p.Industry)
		p.CompanySize = String(p.CompanySize)
		for i := range p.SelectedTools {
			p.SelectedTools[i].ToolID = strings.TrimSpace(p.SelectedTools[i].ToolID)
		}
	default:
		return eris.Errorf("validate: unsupported payload %T", p)
	}
	return nil
}
