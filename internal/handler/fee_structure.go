package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/efreitasn/feeschedule/internal/domain"
	"github.com/efreitasn/feeschedule/internal/service"
	"github.com/go-chi/chi/v5"
)

// FeeStructureHandler handles HTTP requests for fee structure endpoints.
type FeeStructureHandler struct {
	scheduleSvc *service.ScheduleService
}

// NewFeeStructureHandler creates a new FeeStructureHandler.
func NewFeeStructureHandler(scheduleSvc *service.ScheduleService) *FeeStructureHandler {
	return &FeeStructureHandler{scheduleSvc: scheduleSvc}
}

// rateJSON is a rate as sent by clients.
type rateJSON struct {
	Numerator   uint32 `json:"numerator"`
	Denominator uint32 `json:"denominator"`
}

func (r rateJSON) toDomain() domain.Rate {
	return domain.Rate{Numerator: r.Numerator, Denominator: r.Denominator}
}

type tierJSON struct {
	Fee             rateJSON `json:"fee"`
	MakerRebate     rateJSON `json:"maker_rebate"`
	RefereeDiscount rateJSON `json:"referee_discount"`
	ReferrerReward  rateJSON `json:"referrer_reward"`
}

// feeStructureRequest is the JSON form of a fee structure. FlatFillerFee
// is a decimal quote amount such as "0.01".
type feeStructureRequest struct {
	Tiers         []tierJSON `json:"tiers"`
	FillerReward  rateJSON   `json:"filler_reward"`
	FlatFillerFee string     `json:"flat_filler_fee"`
}

// toDomain rejects an empty tier table as a request error even though the
// validator itself accepts one.
func (req feeStructureRequest) toDomain() (domain.FeeStructure, error) {
	if len(req.Tiers) == 0 {
		return domain.FeeStructure{}, &domain.ValidationError{Message: "tiers must be a non-empty array"}
	}
	if req.FlatFillerFee == "" {
		return domain.FeeStructure{}, &domain.ValidationError{Message: "flat_filler_fee is required"}
	}
	flat, err := domain.ParseQuote(req.FlatFillerFee)
	if err != nil {
		return domain.FeeStructure{}, &domain.ValidationError{Message: "flat_filler_fee: " + err.Error()}
	}

	tiers := make([]domain.FeeTier, len(req.Tiers))
	for i, t := range req.Tiers {
		tiers[i] = domain.FeeTier{
			FeeRate:             t.Fee.toDomain(),
			MakerRebateRate:     t.MakerRebate.toDomain(),
			RefereeDiscountRate: t.RefereeDiscount.toDomain(),
			ReferrerRewardRate:  t.ReferrerReward.toDomain(),
		}
	}

	return domain.FeeStructure{
		Tiers:         tiers,
		FillerReward:  domain.FillerRewardStructure{RewardRate: req.FillerReward.toDomain()},
		FlatFillerFee: flat,
	}, nil
}

// rateResponse adds a human-readable rendering to a rate.
type rateResponse struct {
	Numerator   uint32 `json:"numerator"`
	Denominator uint32 `json:"denominator"`
	Display     string `json:"display"`
}

func newRateResponse(r domain.Rate, kind domain.DenominatorKind) rateResponse {
	return rateResponse{
		Numerator:   r.Numerator,
		Denominator: r.Denominator,
		Display:     r.Display(kind),
	}
}

type tierResponse struct {
	Fee             rateResponse `json:"fee"`
	MakerRebate     rateResponse `json:"maker_rebate"`
	RefereeDiscount rateResponse `json:"referee_discount"`
	ReferrerReward  rateResponse `json:"referrer_reward"`
}

type feeStructureResponse struct {
	Tiers              []tierResponse `json:"tiers"`
	FillerReward       rateResponse   `json:"filler_reward"`
	FlatFillerFee      string         `json:"flat_filler_fee"`
	FlatFillerFeeUnits uint64         `json:"flat_filler_fee_units"`
}

func newFeeStructureResponse(fs domain.FeeStructure) feeStructureResponse {
	tiers := make([]tierResponse, len(fs.Tiers))
	for i, t := range fs.Tiers {
		tiers[i] = tierResponse{
			Fee:             newRateResponse(t.FeeRate, domain.BasisPoints),
			MakerRebate:     newRateResponse(t.MakerRebateRate, domain.BasisPoints),
			RefereeDiscount: newRateResponse(t.RefereeDiscountRate, domain.Percentage),
			ReferrerReward:  newRateResponse(t.ReferrerRewardRate, domain.Percentage),
		}
	}
	return feeStructureResponse{
		Tiers:              tiers,
		FillerReward:       newRateResponse(fs.FillerReward.RewardRate, domain.Percentage),
		FlatFillerFee:      domain.FormatQuote(fs.FlatFillerFee),
		FlatFillerFeeUnits: fs.FlatFillerFee,
	}
}

// scheduleVersionResponse is the JSON form of one version of a market's
// fee structure.
type scheduleVersionResponse struct {
	Market       string               `json:"market"`
	Version      uint64               `json:"version"`
	ProposalID   string               `json:"proposal_id"`
	ActivatedAt  string               `json:"activated_at"`
	FeeStructure feeStructureResponse `json:"fee_structure"`
}

func newScheduleVersionResponse(v *domain.ScheduleVersion) scheduleVersionResponse {
	return scheduleVersionResponse{
		Market:       string(v.Market),
		Version:      v.Version,
		ProposalID:   v.ProposalID,
		ActivatedAt:  v.ActivatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		FeeStructure: newFeeStructureResponse(v.Structure),
	}
}

// versionListResponse is the JSON response for
// GET /markets/{market}/fee-structure/versions.
type versionListResponse struct {
	Versions []scheduleVersionResponse `json:"versions"`
	Total    int                       `json:"total"`
	Page     int                       `json:"page"`
	Limit    int                       `json:"limit"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

// Validate handles POST /fee-structures/validate.
func (h *FeeStructureHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req feeStructureRequest
	if err := ParseJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	fs, err := req.toDomain()
	if err != nil {
		mapScheduleError(w, err)
		return
	}

	if err := h.scheduleSvc.Validate(fs); err != nil {
		mapScheduleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, validateResponse{Valid: true})
}

// GetCurrent handles GET /markets/{market}/fee-structure.
func (h *FeeStructureHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	v, err := h.scheduleSvc.Current(chi.URLParam(r, "market"))
	if err != nil {
		mapScheduleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, newScheduleVersionResponse(v))
}

// GetVersion handles GET /markets/{market}/fee-structure/versions/{version}.
func (h *FeeStructureHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseUint(chi.URLParam(r, "version"), 10, 64)
	if err != nil || version == 0 {
		WriteError(w, http.StatusBadRequest, "validation_error", "version must be a positive integer")
		return
	}

	v, err := h.scheduleSvc.Version(chi.URLParam(r, "market"), version)
	if err != nil {
		mapScheduleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, newScheduleVersionResponse(v))
}

// ListVersions handles GET /markets/{market}/fee-structure/versions.
func (h *FeeStructureHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := parsePage(w, r)
	if !ok {
		return
	}

	versions, total, err := h.scheduleSvc.History(chi.URLParam(r, "market"), page, limit)
	if err != nil {
		mapScheduleError(w, err)
		return
	}

	resp := make([]scheduleVersionResponse, len(versions))
	for i, v := range versions {
		resp[i] = newScheduleVersionResponse(v)
	}
	WriteJSON(w, http.StatusOK, versionListResponse{
		Versions: resp,
		Total:    total,
		Page:     page,
		Limit:    limit,
	})
}

// parsePage reads the page and limit query parameters, writing a 400 and
// returning ok=false if either is malformed.
func parsePage(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	page = 1
	if p := r.URL.Query().Get("page"); p != "" {
		var err error
		page, err = strconv.Atoi(p)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "page must be a valid integer")
			return 0, 0, false
		}
	}

	limit = 20
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a valid integer")
			return 0, 0, false
		}
	}

	return page, limit, true
}

// mapScheduleError maps domain errors to HTTP responses for fee structure
// and proposal endpoints.
func mapScheduleError(w http.ResponseWriter, err error) {
	var feeErr *domain.InvalidFeeStructureError
	if errors.As(err, &feeErr) {
		WriteInvalidFeeStructure(w, feeErr)
		return
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrMarketNotFound):
		WriteError(w, http.StatusNotFound, "market_not_found", err.Error())
	case errors.Is(err, domain.ErrVersionNotFound):
		WriteError(w, http.StatusNotFound, "version_not_found", err.Error())
	case errors.Is(err, domain.ErrProposalNotFound):
		WriteError(w, http.StatusNotFound, "proposal_not_found", err.Error())
	case errors.Is(err, domain.ErrProposalNotPending):
		WriteError(w, http.StatusConflict, "proposal_not_pending", "Proposal is no longer pending")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
