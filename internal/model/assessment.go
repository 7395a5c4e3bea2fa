package model

import (
	"encoding/json"
	"time"
)

// AppType identifies which assessment tool produced an assessment.
type AppType string

const (
	AppTypeLeadScore    AppType = "lead_score"
	AppTypePipelineLeak AppType = "pipeline_leak"
	AppTypeProposal     AppType = "proposal"
	AppTypeTechAudit    AppType = "tech_audit"
)

// AppTypes lists every supported assessment tool.
var AppTypes = []AppType{AppTypeLeadScore, AppTypePipelineLeak, AppTypeProposal, AppTypeTechAudit}

// Valid reports whether t is a known assessment tool.
func (t AppType) Valid() bool {
	switch t {
	case AppTypeLeadScore, AppTypePipelineLeak, AppTypeProposal, AppTypeTechAudit:
		return true
	}
	return false
}

// DisplayName returns the marketing name of the tool.
func (t AppType) DisplayName() string {
	switch t {
	case AppTypeLeadScore:
		return "Lead Score Predictor"
	case AppTypePipelineLeak:
		return "Pipeline Leak Detector"
	case AppTypeProposal:
		return "Proposal Accelerator"
	case AppTypeTechAudit:
		return "Tech Stack Auditor"
	default:
		return "Assessment"
	}
}

// AssessmentStatus is the lifecycle state of an assessment row.
type AssessmentStatus string

const (
	AssessmentInProgress AssessmentStatus = "in_progress"
	AssessmentCompleted  AssessmentStatus = "completed"
	AssessmentFailed     AssessmentStatus = "failed"
)

// Assessment is one run of an assessment tool against one set of inputs.
type Assessment struct {
	ID              string           `json:"id"`
	LeadID          string           `json:"lead_id"`
	AppType         AppType          `json:"app_type"`
	Status          AssessmentStatus `json:"status"`
	InputData       json.RawMessage  `json:"input_data"`
	AnalysisData    json.RawMessage  `json:"analysis_data,omitempty"`
	Score           *int             `json:"score,omitempty"`
	Recommendations []string         `json:"recommendations,omitempty"`
	Error           string           `json:"error,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Degradation records that a stage served fallback data instead of a live result.
type Degradation struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Outcome is what an assessment processor hands back to the pipeline.
type Outcome struct {
	Score           int
	Recommendations []string
	Analysis        any
	Degraded        []Degradation
}
