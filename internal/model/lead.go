package model

import "time"

// Lead aggregates every assessment submitted under one email address.
type Lead struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	FirstName        string    `json:"first_name,omitempty"`
	LastName         string    `json:"last_name,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	CompanyName      string    `json:"company_name,omitempty"`
	WebsiteURL       string    `json:"website_url,omitempty"`
	Industry         string    `json:"industry,omitempty"`
	CompanySize      string    `json:"company_size,omitempty"`
	LeadScore        *int      `json:"lead_score"`
	HubSpotContactID string    `json:"hubspot_contact_id,omitempty"`
	AssessmentCount  int       `json:"assessment_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// FullName joins first and last name, falling back to the email.
func (l *Lead) FullName() string {
	switch {
	case l.FirstName != "" && l.LastName != "":
		return l.FirstName + " " + l.LastName
	case l.FirstName != "":
		return l.FirstName
	case l.LastName != "":
		return l.LastName
	}
	return l.Email
}

// LeadFields is a partial update for a lead. Empty values mean "not provided"
// and never clear a populated column.
type LeadFields struct {
	FirstName   string
	LastName    string
	Phone       string
	CompanyName string
	WebsiteURL  string
	Industry    string
	CompanySize string
}

// Apply merges f into l and reports whether any column changed.
func (f LeadFields) Apply(l *Lead) bool {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&l.FirstName, f.FirstName)
	set(&l.LastName, f.LastName)
	set(&l.Phone, f.Phone)
	set(&l.CompanyName, f.CompanyName)
	set(&l.WebsiteURL, f.WebsiteURL)
	set(&l.Industry, f.Industry)
	set(&l.CompanySize, f.CompanySize)
	return changed
}

// ActivityType classifies entries of the lead activity log.
type ActivityType string

const (
	ActivityPageView           ActivityType = "page_view"
	ActivityAssessmentStart    ActivityType = "assessment_start"
	ActivityAssessmentComplete ActivityType = "assessment_complete"
	ActivityReportDownload     ActivityType = "report_download"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityPageView, ActivityAssessmentStart, ActivityAssessmentComplete, ActivityReportDownload:
		return true
	}
	return false
}

// LeadActivity is an append-only event in a lead's history.
type LeadActivity struct {
	ID           string         `json:"id"`
	LeadID       string         `json:"lead_id"`
	ActivityType ActivityType   `json:"activity_type"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AnalyticsEvent is a page-level tracking event posted by the website.
type AnalyticsEvent struct {
	ID             string         `json:"id"`
	EventType      string         `json:"event_type"`
	PagePath       string         `json:"page_path"`
	AssessmentType string         `json:"assessment_type,omitempty"`
	Step           string         `json:"step,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	IPAddress      string         `json:"ip_address,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	CreatedAt      time.Time      `json:"created_at"`
}
