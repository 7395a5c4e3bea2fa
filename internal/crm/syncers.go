package crm

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/maruonline/leadgen/pkg/hubspot"
	"github.com/maruonline/leadgen/pkg/notion"
	"github.com/maruonline/leadgen/pkg/salesforce"
)

// HubSpotSyncer upserts contacts keyed by email.
type HubSpotSyncer struct {
	client hubspot.Client
}

// NewHubSpotSyncer wraps a HubSpot client.
func NewHubSpotSyncer(client hubspot.Client) *HubSpotSyncer {
	return &HubSpotSyncer{client: client}
}

func (s *HubSpotSyncer) Name() string { return "hubspot" }

// Properties renders the contact in HubSpot's property vocabulary. Empty
// values are left out so a sync never blanks a field edited in HubSpot.
func (s *HubSpotSyncer) Properties(c Contact) map[string]string {
	props := map[string]string{
		"email":                c.Email,
		"assessment_count":     strconv.Itoa(c.AssessmentCount),
		"last_assessment_date": c.LastAssessmentDate.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
	for k, v := range map[string]string{
		"firstname": c.FirstName,
		"lastname":  c.LastName,
		"company":   c.Company,
		"website":   c.Website,
		"phone":     c.Phone,
	} {
		if v != "" {
			props[k] = v
		}
	}
	for k, v := range c.AssessmentProperties() {
		props[k] = v
	}
	return props
}

func (s *HubSpotSyncer) Sync(ctx context.Context, c Contact) (Result, error) {
	res := Result{Provider: s.Name()}
	props := s.Properties(c)

	existing, err := s.client.SearchContactByEmail(ctx, c.Email)
	if err != nil {
		return res, eris.Wrap(err, "crm: hubspot search")
	}

	if existing != nil {
		if _, err := s.client.UpdateContact(ctx, existing.ID, props); err != nil {
			return res, eris.Wrap(err, "crm: hubspot update")
		}
		res.ContactID = existing.ID
		zap.L().Info("crm: hubspot contact updated", zap.String("contact_id", existing.ID))
		return res, nil
	}

	created, err := s.client.CreateContact(ctx, props)
	if err != nil {
		return res, eris.Wrap(err, "crm: hubspot create")
	}
	res.ContactID = created.ID
	res.Created = true
	zap.L().Info("crm: hubspot contact created", zap.String("contact_id", created.ID))
	return res, nil
}

// SalesforceSyncer upserts Lead records keyed by email.
type SalesforceSyncer struct {
	client salesforce.Client
}

// NewSalesforceSyncer wraps a Salesforce client.
func NewSalesforceSyncer(client salesforce.Client) *SalesforceSyncer {
	return &SalesforceSyncer{client: client}
}

func (s *SalesforceSyncer) Name() string { return "salesforce" }

// Rating maps a lead score onto Salesforce's Lead rating picklist.
func Rating(score *int) string {
	switch {
	case score == nil:
		return ""
	case *score >= 70:
		return "Hot"
	case *score >= 40:
		return "Warm"
	default:
		return "Cold"
	}
}

// Fields renders the contact as Lead fields, leaving out empty values.
func (s *SalesforceSyncer) Fields(c Contact) map[string]any {
	fields := map[string]any{"Email": c.Email}
	set := func(key, v string) {
		if v != "" {
			fields[key] = v
		}
	}
	set("FirstName", c.FirstName)
	set("LastName", c.LastName)
	set("Company", c.Company)
	set("Website", c.Website)
	set("Phone", c.Phone)
	set("Industry", c.Industry)
	set("Rating", Rating(c.LeadScore))
	return fields
}

func (s *SalesforceSyncer) Sync(ctx context.Context, c Contact) (Result, error) {
	res := Result{Provider: s.Name()}
	fields := s.Fields(c)

	existing, err := salesforce.FindLeadByEmail(ctx, s.client, c.Email)
	if err != nil {
		return res, eris.Wrap(err, "crm: salesforce lookup")
	}
	if existing != nil {
		delete(fields, "Email")
		res.ContactID = existing.ID
		if len(fields) == 0 {
			return res, nil
		}
		if err := salesforce.UpdateLead(ctx, s.client, existing.ID, fields); err != nil {
			return res, eris.Wrap(err, "crm: salesforce update")
		}
		return res, nil
	}

	id, err := salesforce.CreateLead(ctx, s.client, fields)
	if err != nil {
		return res, eris.Wrap(err, "crm: salesforce create")
	}
	res.ContactID = id
	res.Created = true
	return res, nil
}

// NotionSyncer mirrors leads into a Notion database.
type NotionSyncer struct {
	client notion.Client
	dbID   string
}

// NewNotionSyncer wraps a Notion client and the lead database ID.
func NewNotionSyncer(client notion.Client, dbID string) *NotionSyncer {
	return &NotionSyncer{client: client, dbID: dbID}
}

func (s *NotionSyncer) Name() string { return "notion" }

// Page renders the contact as a lead database row.
func (s *NotionSyncer) Page(c Contact) notion.LeadPage {
	name := c.FirstName
	if c.LastName != "" {
		if name != "" {
			name += " "
		}
		name += c.LastName
	}
	page := notion.LeadPage{
		Name:           name,
		Email:          c.Email,
		Company:        c.Company,
		Website:        c.Website,
		Phone:          c.Phone,
		Industry:       c.Industry,
		LeadScore:      c.LeadScore,
		Assessments:    c.AssessmentCount,
		LastActivityAt: c.LastAssessmentDate,
	}
	if c.Assessment != nil && c.Assessment.AppType != "" {
		page.LastAssessment = c.Assessment.AppType.DisplayName()
	}
	return page
}

func (s *NotionSyncer) Sync(ctx context.Context, c Contact) (Result, error) {
	id, created, err := notion.UpsertLeadPage(ctx, s.client, s.dbID, s.Page(c))
	if err != nil {
		return Result{Provider: s.Name()}, eris.Wrap(err, "crm: notion upsert")
	}
	return Result{Provider: s.Name(), ContactID: id, Created: created}, nil
}
