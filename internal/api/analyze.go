package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maruonline/leadgen/internal/assessment"
	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/narrative"
	"github.com/maruonline/leadgen/internal/notify"
	"github.com/maruonline/leadgen/internal/scorer"
	"github.com/maruonline/leadgen/internal/scrape"
	"github.com/maruonline/leadgen/internal/validate"
)

type analyzeWebsiteRequest struct {
	URL string `json:"url"`
}

// withScheme defaults bare hostnames to https. Other schemes are kept so
// validation can reject them.
func withScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

// handleAnalyzeWebsite grades a live page. Unlike /scrape-website it never
// serves the fallback snapshot: the audit is only meaningful on real HTML.
func (h *Handler) handleAnalyzeWebsite(w http.ResponseWriter, r *http.Request) {
	var req analyzeWebsiteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "Valid URL is required")
		return
	}
	target, err := validate.URL(withScheme(req.URL))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid URL format")
		return
	}

	res, err := h.Fetcher.Page(r.Context(), target)
	if err != nil {
		zap.L().Warn("api: website audit fetch failed", zap.String("url", target), zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusRequestTimeout, "Request timeout - website took too long to respond")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to fetch website")
		return
	}
	writeJSON(w, http.StatusOK, scrape.Audit(target, res))
}

type analyzeLeadGenRequest struct {
	Email           string   `json:"email" validate:"required,email,max=255"`
	WebsiteURL      string   `json:"website_url" validate:"required,max=2048"`
	CompanyName     string   `json:"company_name" validate:"max=200"`
	Industry        string   `json:"industry" validate:"max=100"`
	CompanySize     string   `json:"company_size" validate:"max=50"`
	MonthlyVisitors string   `json:"monthly_visitors" validate:"max=50"`
	LeadGenMethods  []string `json:"lead_gen_methods" validate:"max=20,dive,max=100"`
	Budget          string   `json:"budget" validate:"max=50"`
	HasCRM          string   `json:"has_crm" validate:"max=20"`
	HasStrategy     string   `json:"has_strategy" validate:"max=20"`
	ReviewFrequency string   `json:"review_frequency" validate:"max=20"`
	MainChallenge   string   `json:"main_challenge" validate:"max=500"`
}

// answers folds the quick-check questions into the scorer's challenge list.
func (req analyzeLeadGenRequest) answers() scorer.Answers {
	var challenges []string
	if c := validate.String(req.MainChallenge); c != "" {
		challenges = append(challenges, c)
	}
	if strings.EqualFold(req.HasCRM, "no") {
		challenges = append(challenges, "No CRM in place")
	}
	if strings.EqualFold(req.HasStrategy, "no") {
		challenges = append(challenges, "No documented lead generation strategy")
	}
	switch strings.ToLower(req.ReviewFrequency) {
	case "never", "yearly":
		challenges = append(challenges, "Lead performance rarely reviewed")
	}

	methods := make([]string, 0, len(req.LeadGenMethods))
	for _, m := range req.LeadGenMethods {
		if m = validate.String(m); m != "" {
			methods = append(methods, m)
		}
	}
	return scorer.Answers{
		MonthlyVisitors: validate.String(req.MonthlyVisitors),
		LeadGenMethods:  methods,
		Challenges:      challenges,
		Budget:          validate.String(req.Budget),
	}
}

// handleAnalyzeLeadGen runs the quick lead score check and emails the report.
// Nothing is persisted; /assessments is the recorded path.
func (h *Handler) handleAnalyzeLeadGen(w http.ResponseWriter, r *http.Request) {
	var req analyzeLeadGenRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.WebsiteURL) == "" {
		writeError(w, http.StatusBadRequest, "Email and Website URL are required")
		return
	}
	if err := validate.Struct(&req); err != nil {
		errs, _ := validate.AsErrors(err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: errs.Strings()})
		return
	}
	target, err := validate.URL(withScheme(req.WebsiteURL))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid URL format")
		return
	}

	company := validate.String(req.CompanyName)
	res := h.Analyzer.Analyze(r.Context(), assessment.LeadScoreInput{
		URL:         target,
		Company:     company,
		Industry:    validate.String(req.Industry),
		CompanySize: validate.String(req.CompanySize),
		Answers:     req.answers(),
	})

	name := company
	if name == "" {
		name = "Business Owner"
	}
	analysisID := uuid.New().String()
	if _, err := h.Notifier.LeadScoreResults(r.Context(), notify.LeadScoreEmail{
		To:                   validate.Email(req.Email),
		Name:                 name,
		AnalysisID:           analysisID,
		Score:                res.Score,
		PotentialImprovement: res.PotentialImprovement,
		ExpectedIncrease:     res.ExpectedIncrease,
		Strengths:            res.Strengths,
		Gaps:                 res.Gaps,
		Phase1:               res.Recommendations.Phase1,
		Phase2:               res.Recommendations.Phase2,
		Phase3:               res.Recommendations.Phase3,
	}); err != nil {
		zap.L().Warn("api: lead gen results email failed",
			zap.String("analysis_id", analysisID),
			zap.Error(err),
		)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"analysisId": analysisID,
		"score":      res.Score,
		"results":    res,
	})
}

type chatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=4000"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages" validate:"required,min=1,max=50,dive"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil || req.Messages == nil {
		writeError(w, http.StatusBadRequest, "Messages array is required")
		return
	}
	if err := validate.Struct(&req); err != nil {
		errs, _ := validate.AsErrors(err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: errs.Strings()})
		return
	}

	history := make([]narrative.ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		history[i] = narrative.ChatMessage{Role: m.Role, Content: strings.TrimSpace(m.Content)}
	}
	res := h.Narrator.Chat(r.Context(), history)
	degraded := res.Degraded
	if degraded == nil {
		degraded = []model.Degradation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"response": res.Reply,
		"provider": res.Provider,
		"degraded": degraded,
	})
}
