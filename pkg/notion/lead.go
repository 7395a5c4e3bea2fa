package notion

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Property names of the lead mirror database.
const (
	PropName           = "Name"
	PropEmail          = "Email"
	PropCompany        = "Company"
	PropWebsite        = "Website"
	PropPhone          = "Phone"
	PropIndustry       = "Industry"
	PropLeadScore      = "Lead Score"
	PropAssessments    = "Assessments"
	PropLastAssessment = "Last Assessment"
	PropLastActivity   = "Last Activity"
)

// LeadPage is one row of the lead mirror database.
type LeadPage struct {
	Name           string
	Email          string
	Company        string
	Website        string
	Phone          string
	Industry       string
	LeadScore      *int
	Assessments    int
	LastAssessment string
	LastActivityAt time.Time
}

func richText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
		},
	}
}

// Properties renders the page as Notion properties. Empty optional values
// are left out so an update never blanks a column edited in Notion.
func (p LeadPage) Properties() notionapi.Properties {
	name := p.Name
	if name == "" {
		name = p.Email
	}
	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: name}},
			},
		},
		PropEmail:       richText(p.Email),
		PropAssessments: notionapi.NumberProperty{Number: float64(p.Assessments)},
	}
	if p.Company != "" {
		props[PropCompany] = richText(p.Company)
	}
	if p.Website != "" {
		props[PropWebsite] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: p.Website}
	}
	if p.Phone != "" {
		props[PropPhone] = richText(p.Phone)
	}
	if p.Industry != "" {
		props[PropIndustry] = richText(p.Industry)
	}
	if p.LeadScore != nil {
		props[PropLeadScore] = notionapi.NumberProperty{Number: float64(*p.LeadScore)}
	}
	if p.LastAssessment != "" {
		props[PropLastAssessment] = notionapi.SelectProperty{Select: notionapi.Option{Name: p.LastAssessment}}
	}
	if !p.LastActivityAt.IsZero() {
		d := notionapi.Date(p.LastActivityAt)
		props[PropLastActivity] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
	}
	return props
}

// UpsertLeadPage updates the row matching the lead's email or creates one.
// It returns the page ID and whether the row was created.
func UpsertLeadPage(ctx context.Context, c Client, dbID string, lead LeadPage) (string, bool, error) {
	if lead.Email == "" {
		return "", false, eris.New("notion: lead email is required")
	}

	existing, err := c.FindLeadPage(ctx, dbID, lead.Email)
	if err != nil {
		return "", false, err
	}

	if existing != nil {
		pageID := string(existing.ID)
		if _, err := c.UpdateLeadPage(ctx, pageID, lead.Properties()); err != nil {
			return "", false, err
		}
		return pageID, false, nil
	}

	page, err := c.CreateLeadPage(ctx, dbID, lead.Properties())
	if err != nil {
		return "", false, err
	}
	return string(page.ID), true, nil
}
