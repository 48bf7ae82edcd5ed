package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/efreitasn/feeschedule/internal/domain"
)

// maxBodyBytes bounds request bodies. A fee structure with a few hundred
// tiers fits comfortably.
const maxBodyBytes = 1 << 20

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// invalidFeeStructureResponse extends the standard error format with the
// failing check and the offending pair.
type invalidFeeStructureResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Check       string `json:"check"`
	TierIndex   *int   `json:"tier_index,omitempty"`
	Numerator   uint64 `json:"numerator"`
	Denominator uint64 `json:"denominator"`
	Value       *int64 `json:"value,omitempty"`
}

// WriteInvalidFeeStructure writes a 422 response describing a validator
// failure.
func WriteInvalidFeeStructure(w http.ResponseWriter, e *domain.InvalidFeeStructureError) {
	resp := invalidFeeStructureResponse{
		Error:       domain.ErrInvalidFeeStructure.Error(),
		Message:     e.Message,
		Check:       string(e.Check),
		Numerator:   e.Numerator,
		Denominator: e.Denominator,
	}
	if e.HasTier() {
		idx := e.TierIndex
		resp.TierIndex = &idx
	}
	if e.Check == domain.CheckFeeToMarket {
		v := e.Value
		resp.Value = &v
	}
	WriteJSON(w, http.StatusUnprocessableEntity, resp)
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(w http.ResponseWriter, r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}
