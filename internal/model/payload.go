package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Payload is the typed form of an assessment's input_data. The concrete type
// is chosen by the submission's app_type.
type Payload interface {
	AppType() AppType
	LeadFields() LeadFields
}

// LeadScorePayload is the input of the website lead score predictor.
type LeadScorePayload struct {
	WebsiteURL      string   `json:"website_url" validate:"required,max=500,http_url"`
	CompanyName     string   `json:"company_name,omitempty" validate:"max=200"`
	Industry        string   `json:"industry,omitempty" validate:"max=100"`
	CompanySize     string   `json:"company_size,omitempty" validate:"max=100"`
	FirstName       string   `json:"first_name,omitempty" validate:"max=100"`
	LastName        string   `json:"last_name,omitempty" validate:"max=100"`
	Phone           string   `json:"phone,omitempty" validate:"max=20"`
	MonthlyVisitors string   `json:"monthly_visitors,omitempty" validate:"max=50"`
	LeadGenMethods  []string `json:"lead_gen_methods,omitempty" validate:"max=20,dive,max=100"`
	Challenges      []string `json:"challenges,omitempty" validate:"max=20,dive,max=200"`
	Budget          string   `json:"budget,omitempty" validate:"max=50"`
}

func (p *LeadScorePayload) AppType() AppType { return AppTypeLeadScore }

func (p *LeadScorePayload) LeadFields() LeadFields {
	return LeadFields{
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Phone:       p.Phone,
		CompanyName: p.CompanyName,
		WebsiteURL:  p.WebsiteURL,
		Industry:    p.Industry,
		CompanySize: p.CompanySize,
	}
}

// PipelineLeakPayload carries a CRM deal export to analyse.
type PipelineLeakPayload struct {
	CSVData     string `json:"csv_data" validate:"required,max=1000000"`
	CompanyName string `json:"company_name,omitempty" validate:"max=200"`
	WebsiteURL  string `json:"website_url,omitempty" validate:"omitempty,max=500,http_url"`
	Industry    string `json:"industry,omitempty" validate:"max=100"`
	CompanySize string `json:"company_size,omitempty" validate:"max=100"`
}

func (p *PipelineLeakPayload) AppType() AppType { return AppTypePipelineLeak }

func (p *PipelineLeakPayload) LeadFields() LeadFields {
	return LeadFields{
		CompanyName: p.CompanyName,
		WebsiteURL:  p.WebsiteURL,
		Industry:    p.Industry,
		CompanySize: p.CompanySize,
	}
}

// ProposalCompany describes the prospect a proposal is written for.
type ProposalCompany struct {
	Name       string   `json:"name,omitempty" validate:"max=200"`
	Industry   string   `json:"industry,omitempty" validate:"max=100"`
	Size       string   `json:"size,omitempty" validate:"max=100"`
	Challenges []string `json:"challenges,omitempty" validate:"max=20,dive,max=200"`
}

// ProposalScope is the requested engagement.
type ProposalScope struct {
	Services    []string `json:"services,omitempty" validate:"max=20,dive,max=200"`
	Timeline    string   `json:"timeline,omitempty" validate:"max=100"`
	BudgetRange string   `json:"budget_range,omitempty" validate:"max=50"`
}

// DecisionMakers names the people the proposal is addressed to.
type DecisionMakers struct {
	PrimaryContact string   `json:"primary_contact,omitempty" validate:"max=100"`
	Stakeholders   []string `json:"stakeholders,omitempty" validate:"max=20,dive,max=100"`
}

// ProposalPayload is the input of the proposal accelerator.
type ProposalPayload struct {
	CompanyInfo        ProposalCompany `json:"company_info"`
	ProjectScope       ProposalScope   `json:"project_scope"`
	DecisionMakers     DecisionMakers  `json:"decision_makers"`
	ProjectDescription string          `json:"project_description,omitempty" validate:"omitempty,min=10,max=2000"`
	CompanyName        string          `json:"company_name,omitempty" validate:"max=200"`
	WebsiteURL         string          `json:"website_url,omitempty" validate:"omitempty,max=500,http_url"`
	Industry           string          `json:"industry,omitempty" validate:"max=100"`
	CompanySize        string          `json:"company_size,omitempty" validate:"max=100"`
}

func (p *ProposalPayload) AppType() AppType { return AppTypeProposal }

// Company returns the prospect's name from either the nested or flat field.
func (p *ProposalPayload) Company() string {
	if p.CompanyInfo.Name != "" {
		return p.CompanyInfo.Name
	}
	return p.CompanyName
}

func (p *ProposalPayload) LeadFields() LeadFields {
	f := LeadFields{
		CompanyName: p.Company(),
		WebsiteURL:  p.WebsiteURL,
		Industry:    p.Industry,
		CompanySize: p.CompanySize,
	}
	if f.Industry == "" {
		f.Industry = p.CompanyInfo.Industry
	}
	if f.CompanySize == "" {
		f.CompanySize = p.CompanyInfo.Size
	}
	return f
}

// SelectedTool is one subscription in a tech stack audit.
type SelectedTool struct {
	ToolID      string  `json:"tool_id" validate:"required,max=100"`
	MonthlyCost float64 `json:"monthly_cost" validate:"gte=0"`
	UsersCount  int     `json:"users_count" validate:"gte=0,lte=10000"`
}

// TechAuditPayload is the input of the tech stack auditor.
type TechAuditPayload struct {
	SelectedTools []SelectedTool `json:"selected_tools" validate:"required,min=1,max=50,dive"`
	TeamSize      int            `json:"team_size,omitempty" validate:"omitempty,min=1,max=10000"`
	CompanyName   string         `json:"company_name,omitempty" validate:"max=200"`
	WebsiteURL    string         `json:"website_url,omitempty" validate:"omitempty,max=500,http_url"`
	Industry      string         `json:"industry,omitempty" validate:"max=100"`
	CompanySize   string         `json:"company_size,omitempty" validate:"max=100"`
}

func (p *TechAuditPayload) AppType() AppType { return AppTypeTechAudit }

func (p *TechAuditPayload) LeadFields() LeadFields {
	return LeadFields{
		CompanyName: p.CompanyName,
		WebsiteURL:  p.WebsiteURL,
		Industry:    p.Industry,
		CompanySize: p.CompanySize,
	}
}

// NewPayload returns an empty payload for the given tool.
func NewPayload(t AppType) (Payload, error) {
	switch t {
	case AppTypeLeadScore:
		return &LeadScorePayload{}, nil
	case AppTypePipelineLeak:
		return &PipelineLeakPayload{}, nil
	case AppTypeProposal:
		return &ProposalPayload{}, nil
	case AppTypeTechAudit:
		return &TechAuditPayload{}, nil
	}
	return nil, eris.Errorf("model: unknown app type %q", t)
}

// DecodePayload decodes raw input_data into the payload for t. Unknown fields
// are ignored here; callers persist raw unchanged.
func DecodePayload(t AppType, raw json.RawMessage) (Payload, error) {
	p, err := NewPayload(t)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, eris.Wrapf(err, "model: decode %s input", t)
	}
	return p, nil
}
