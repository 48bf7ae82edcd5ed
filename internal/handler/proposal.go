package handler

import (
	"net/http"
	"time"

	"github.com/efreitasn/feeschedule/internal/domain"
	"github.com/efreitasn/feeschedule/internal/service"
	"github.com/go-chi/chi/v5"
)

// ProposalHandler handles HTTP requests for proposal endpoints.
type ProposalHandler struct {
	scheduleSvc *service.ScheduleService
}

// NewProposalHandler creates a new ProposalHandler.
func NewProposalHandler(scheduleSvc *service.ScheduleService) *ProposalHandler {
	return &ProposalHandler{scheduleSvc: scheduleSvc}
}

// submitProposalRequest is the JSON request body for
// POST /markets/{market}/proposals.
type submitProposalRequest struct {
	FeeStructure feeStructureRequest `json:"fee_structure"`
	EffectiveAt  *string             `json:"effective_at"`
}

type proposalResponse struct {
	ProposalID   string               `json:"proposal_id"`
	Market       string               `json:"market"`
	Status       string               `json:"status"`
	Version      *uint64              `json:"version"`
	EffectiveAt  *string              `json:"effective_at"`
	SubmittedAt  string               `json:"submitted_at"`
	ActivatedAt  *string              `json:"activated_at"`
	CancelledAt  *string              `json:"cancelled_at"`
	FeeStructure feeStructureResponse `json:"fee_structure"`
}

// proposalListResponse is the JSON response for
// GET /markets/{market}/proposals.
type proposalListResponse struct {
	Proposals []proposalResponse `json:"proposals"`
	Total     int                `json:"total"`
	Page      int                `json:"page"`
	Limit     int                `json:"limit"`
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format("2006-01-02T15:04:05Z")
	return &s
}

func newProposalResponse(p *domain.Proposal) proposalResponse {
	resp := proposalResponse{
		ProposalID:   p.ProposalID,
		Market:       string(p.Market),
		Status:       string(p.Status),
		EffectiveAt:  formatOptionalTime(p.EffectiveAt),
		SubmittedAt:  p.SubmittedAt.UTC().Format("2006-01-02T15:04:05Z"),
		ActivatedAt:  formatOptionalTime(p.ActivatedAt),
		CancelledAt:  formatOptionalTime(p.CancelledAt),
		FeeStructure: newFeeStructureResponse(p.Structure),
	}
	if p.Version != 0 {
		v := p.Version
		resp.Version = &v
	}
	return resp
}

// Submit handles POST /markets/{market}/proposals.
func (h *ProposalHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitProposalRequest
	if err := ParseJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var effectiveAt *time.Time
	if req.EffectiveAt != nil {
		t, err := time.Parse(time.RFC3339, *req.EffectiveAt)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "effective_at must be a valid ISO 8601 timestamp")
			return
		}
		t = t.UTC()
		effectiveAt = &t
	}

	fs, err := req.FeeStructure.toDomain()
	if err != nil {
		mapScheduleError(w, err)
		return
	}

	p, err := h.scheduleSvc.Propose(service.ProposeRequest{
		Market:      chi.URLParam(r, "market"),
		Structure:   fs,
		EffectiveAt: effectiveAt,
	})
	if err != nil {
		mapScheduleError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, newProposalResponse(p))
}

// Get handles GET /proposals/{proposal_id}.
func (h *ProposalHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.scheduleSvc.GetProposal(chi.URLParam(r, "proposal_id"))
	if err != nil {
		mapScheduleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, newProposalResponse(p))
}

// Cancel handles DELETE /proposals/{proposal_id}.
func (h *ProposalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, err := h.scheduleSvc.Cancel(chi.URLParam(r, "proposal_id"))
	if err != nil {
		mapScheduleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, newProposalResponse(p))
}

// List handles GET /markets/{market}/proposals.
func (h *ProposalHandler) List(w http.ResponseWriter, r *http.Request) {
	var statusFilter *domain.ProposalStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.ProposalStatus(s)
		statusFilter = &status
	}

	page, limit, ok := parsePage(w, r)
	if !ok {
		return
	}

	proposals, total, err := h.scheduleSvc.ListProposals(chi.URLParam(r, "market"), statusFilter, page, limit)
	if err != nil {
		mapScheduleError(w, err)
		return
	}

	resp := make([]proposalResponse, len(proposals))
	for i, p := range proposals {
		resp[i] = newProposalResponse(p)
	}
	WriteJSON(w, http.StatusOK, proposalListResponse{
		Proposals: resp,
		Total:     total,
		Page:      page,
		Limit:     limit,
	})
}
