package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/pipeline"
	"github.com/maruonline/leadgen/internal/scorer"
	"github.com/maruonline/leadgen/internal/validate"
)

func (h *Handler) handleAssessment(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.Pipeline.Submit(r.Context(), body)
	if err != nil {
		var verr *pipeline.ValidationError
		var inErr *pipeline.InputError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Details: verr.Fields.Strings(),
			})
		case errors.As(err, &inErr):
			writeError(w, http.StatusBadRequest, inErr.Reason)
		default:
			writeInternal(w, r, "assessment submission failed", err)
		}
		return
	}

	data, err := submissionData(res)
	if err != nil {
		writeInternal(w, r, "encode assessment response", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
	})
}

// submissionData lifts the analysis keys to the top level of the response
// data, next to assessment_id. Analysis keys win on collisions.
func submissionData(res *pipeline.Submission) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	data := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	if res.Analysis == nil {
		return data, nil
	}

	analysis := data["analysis"]
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(analysis, &fields); err != nil {
		// Not an object; leave it nested.
		return data, nil
	}
	delete(data, "analysis")
	for k, v := range fields {
		if k == "assessment_id" {
			continue
		}
		data[k] = v
	}
	return data, nil
}

type scrapeRequest struct {
	URL string `json:"url"`
}

// handleScrapeWebsite always answers 200 once the URL is valid: a failed
// scrape serves the fallback snapshot.
func (h *Handler) handleScrapeWebsite(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}
	target, err := validate.URL(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid URL format")
		return
	}

	res := h.Fetcher.Fetch(r.Context(), target)
	degraded := res.Degraded
	if degraded == nil {
		degraded = []model.Degradation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"data":     res.Snapshot,
		"source":   res.Source,
		"degraded": degraded,
	})
}

type calculateScoreRequest struct {
	ScrapeData     *model.ScrapeSnapshot `json:"scrapeData"`
	AssessmentData scorer.Answers        `json:"assessmentData"`
}

func (h *Handler) handleCalculateScore(w http.ResponseWriter, r *http.Request) {
	var req calculateScoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ScrapeData == nil {
		writeError(w, http.StatusBadRequest, "scrapeData is required")
		return
	}

	res := scorer.Score(*req.ScrapeData, req.AssessmentData)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"score":       res.Score,
		"subscores":   res.Subscores,
		"bonusPoints": res.BonusPoints,
		"breakdown":   res.Breakdown,
	})
}

func (h *Handler) handleTools(w http.ResponseWriter, _ *http.Request) {
	tools := h.Catalog.Tools()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    tools,
	})
}
