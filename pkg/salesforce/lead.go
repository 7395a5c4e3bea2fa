package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Lead represents a Salesforce Lead record.
type Lead struct {
	ID        string `json:"Id" salesforce:"Id"`
	Email     string `json:"Email" salesforce:"Email"`
	FirstName string `json:"FirstName" salesforce:"FirstName"`
	LastName  string `json:"LastName" salesforce:"LastName"`
	Company   string `json:"Company" salesforce:"Company"`
	Website   string `json:"Website" salesforce:"Website"`
	Phone     string `json:"Phone" salesforce:"Phone"`
	Industry  string `json:"Industry" salesforce:"Industry"`
	Rating    string `json:"Rating" salesforce:"Rating"`
}

var leadFields = []string{
	"Id", "Email", "FirstName", "LastName", "Company", "Website", "Phone", "Industry", "Rating",
}

// FindLeadByEmail queries Salesforce for a Lead with the given email.
// Returns nil if no lead is found.
func FindLeadByEmail(ctx context.Context, c Client, email string) (*Lead, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Lead WHERE Email = '%s' ORDER BY CreatedDate DESC LIMIT 1",
		strings.Join(leadFields, ", "),
		escapeSoql(email),
	)

	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find lead by email %s", email))
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

// CreateLead creates a Lead. Salesforce requires LastName and Company, so
// placeholders fill them when absent.
func CreateLead(ctx context.Context, c Client, fields map[string]any) (string, error) {
	if fields["Email"] == nil || fields["Email"] == "" {
		return "", eris.New("sf: lead Email is required")
	}
	if v, _ := fields["LastName"].(string); v == "" {
		fields["LastName"] = "[not provided]"
	}
	if v, _ := fields["Company"].(string); v == "" {
		fields["Company"] = "[not provided]"
	}
	id, err := c.InsertOne(ctx, "Lead", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create lead")
	}
	return id, nil
}

// UpdateLead updates a Lead record with the given fields.
func UpdateLead(ctx context.Context, c Client, leadID string, fields map[string]any) error {
	if leadID == "" {
		return eris.New("sf: lead id is required")
	}
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, "Lead", leadID, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update lead %s", leadID))
	}
	return nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
