package api

import (
	"math"
	"net/http"
	"strings"

	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/narrative"
	"github.com/maruonline/leadgen/internal/notify"
	"github.com/maruonline/leadgen/internal/validate"
)

type leadScoreResults struct {
	AnalysisID           string           `json:"analysisId"`
	Score                int              `json:"score" validate:"min=0,max=100"`
	Strengths            []string         `json:"strengths"`
	Gaps                 []string         `json:"gaps"`
	Recommendations      narrative.Phases `json:"recommendations"`
	PotentialImprovement int              `json:"potentialImprovement"`
	ExpectedIncrease     string           `json:"expectedIncrease"`
}

type sendResultsRequest struct {
	Email   string           `json:"email" validate:"required,email"`
	Name    string           `json:"name"`
	Results leadScoreResults `json:"results"`
}

// handleSendResults mails the detailed lead score report.
func (h *Handler) handleSendResults(w http.ResponseWriter, r *http.Request) {
	var req sendResultsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		errs, _ := validate.AsErrors(err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: errs.Strings()})
		return
	}

	res := req.Results
	d, err := h.Notifier.LeadScoreResults(r.Context(), notify.LeadScoreEmail{
		To:                   validate.Email(req.Email),
		Name:                 validate.String(req.Name),
		AnalysisID:           res.AnalysisID,
		Score:                res.Score,
		PotentialImprovement: res.PotentialImprovement,
		ExpectedIncrease:     res.ExpectedIncrease,
		Strengths:            res.Strengths,
		Gaps:                 res.Gaps,
		Phase1:               res.Recommendations.Phase1,
		Phase2:               res.Recommendations.Phase2,
		Phase3:               res.Recommendations.Phase3,
	})
	if err != nil {
		writeInternal(w, r, "send results email", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Results email sent successfully",
		"delivery": d,
	})
}

type emailSendRequest struct {
	Type           string         `json:"type" validate:"required"`
	Email          string         `json:"email" validate:"required,email,max=255"`
	ContactInfo    notify.Contact `json:"contactInfo"`
	AssessmentType model.AppType  `json:"assessmentType"`
	AssessmentData map[string]any `json:"assessmentData"`
}

// handleEmailSend sends one of the lead lifecycle templates.
func (h *Handler) handleEmailSend(w http.ResponseWriter, r *http.Request) {
	var req emailSendRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "Email and type required")
		return
	}
	if err := validate.Struct(&req); err != nil {
		errs, _ := validate.AsErrors(err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: errs.Strings()})
		return
	}
	to := validate.Email(req.Email)

	contact := notify.Contact{
		FirstName:   validate.String(req.ContactInfo.FirstName),
		LastName:    validate.String(req.ContactInfo.LastName),
		CompanyName: validate.String(req.ContactInfo.CompanyName),
	}

	var (
		d   notify.Delivery
		err error
	)
	switch req.Type {
	case "assessment_complete":
		d, err = h.Notifier.AssessmentComplete(r.Context(), notify.AssessmentEmail{
			To:              to,
			Contact:         contact,
			AppType:         req.AssessmentType,
			Score:           int(math.Round(numberField(req.AssessmentData, "score"))),
			Recommendations: stringsField(req.AssessmentData, "recommendations"),
			RevenueAtRisk:   numberField(req.AssessmentData, "revenueAtRisk"),
			StalledDeals:    int(numberField(req.AssessmentData, "stalledDeals")),
		})
	case "follow_up":
		d, err = h.Notifier.FollowUp(r.Context(), notify.FollowUpEmail{
			To:      to,
			Contact: contact,
			AppType: req.AssessmentType,
		})
	default:
		writeError(w, http.StatusBadRequest, "Invalid email type")
		return
	}
	if err != nil {
		writeInternal(w, r, "send "+req.Type+" email", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Email sent successfully",
		"delivery": d,
	})
}

type sendEmailRequest struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// handleSendEmail forwards a website form to the operator inbox.
func (h *Handler) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	formType := validate.String(req.Type)
	if formType == "" {
		writeError(w, http.StatusBadRequest, "Form type required")
		return
	}

	fields := make(map[string]any, len(req.Data))
	for k, v := range req.Data {
		if s, ok := v.(string); ok {
			v = validate.String(s)
		}
		fields[k] = v
	}

	d, err := h.Notifier.FormSubmission(r.Context(), formType, fields)
	if err != nil {
		writeInternal(w, r, "send form email", err)
		return
	}
	msg := "Email sent successfully"
	if d.Simulated {
		msg = "Mock success (SMTP not configured)"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  msg,
		"delivery": d,
	})
}

func numberField(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func stringsField(data map[string]any, key string) []string {
	raw, _ := data[key].([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
