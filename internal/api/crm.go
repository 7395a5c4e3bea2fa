package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/maruonline/leadgen/internal/crm"
	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/store"
	"github.com/maruonline/leadgen/internal/validate"
)

type hubSpotSyncRequest struct {
	LeadID         string         `json:"leadId"`
	Email          string         `json:"email"`
	AssessmentType model.AppType  `json:"assessmentType"`
	AssessmentData map[string]any `json:"assessmentData"`
}

// handleHubSpotSync pushes one lead to HubSpot and remembers the contact ID.
func (h *Handler) handleHubSpotSync(w http.ResponseWriter, r *http.Request) {
	var req hubSpotSyncRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	email := validate.Email(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	syncer, ok := h.CRM.Get("hubspot")
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"message": "HubSpot API not configured",
		})
		return
	}

	lead, err := h.findLead(r.Context(), req.LeadID, email)
	if err != nil {
		writeInternal(w, r, "hubspot sync lead lookup", err)
		return
	}

	var a *crm.Assessment
	if req.AssessmentType != "" {
		found := crm.AssessmentFromData(req.AssessmentType, req.AssessmentData)
		a = &found
	}
	contact := crm.Contact{
		Email:              email,
		AssessmentCount:    1,
		LastAssessmentDate: h.now(),
		Assessment:         a,
	}
	if lead != nil {
		contact = crm.ContactFromLead(lead, a, h.now())
	}

	res, err := syncer.Sync(r.Context(), contact)
	if err != nil {
		zap.L().Error("api: hubspot sync failed", zap.String("email", email), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "Failed to sync contact",
		})
		return
	}

	if lead != nil && res.ContactID != "" && res.ContactID != lead.HubSpotContactID {
		if err := h.Store.SetLeadCRMContact(r.Context(), lead.ID, res.ContactID); err != nil {
			zap.L().Warn("api: store hubspot contact id", zap.String("lead_id", lead.ID), zap.Error(err))
		}
	}

	msg := "Contact updated successfully"
	if res.Created {
		msg = "Contact created successfully"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   msg,
		"contactId": res.ContactID,
	})
}

// findLead resolves a lead by ID, then by email. A lead that does not exist
// yet is not an error.
func (h *Handler) findLead(ctx context.Context, id, email string) (*model.Lead, error) {
	if id != "" {
		lead, err := h.Store.GetLead(ctx, id)
		if err == nil {
			return lead, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	lead, err := h.Store.GetLeadByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return lead, err
}
