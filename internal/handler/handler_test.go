package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/efreitasn/feeschedule/internal/domain"
	"github.com/efreitasn/feeschedule/internal/service"
	"github.com/efreitasn/feeschedule/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

// testEnv bundles all dependencies for handler integration tests.
type testEnv struct {
	router      http.Handler
	scheduleSvc *service.ScheduleService
	notifySvc   *service.NotifyService
}

func newTestEnv() *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()
	metrics := service.NewMetrics(registry)

	notifySvc := service.NewNotifyService(store.NewSubscriptionStore(), 5*time.Second, metrics, logger)
	scheduleSvc := service.NewScheduleService(store.NewScheduleStore(), store.NewProposalStore(), notifySvc, metrics, logger)

	return &testEnv{
		router:      NewRouter(scheduleSvc, notifySvc, registry, logger),
		scheduleSvc: scheduleSvc,
		notifySvc:   notifySvc,
	}
}

// newSeededEnv returns an env with both markets seeded from the shipped
// defaults.
func newSeededEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv()
	err := env.scheduleSvc.Seed(map[domain.MarketType]domain.FeeStructure{
		domain.MarketPerp: domain.PerpsDefault(),
		domain.MarketSpot: domain.SpotDefault(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return env
}

// doJSON sends a JSON request and returns the recorder.
func (env *testEnv) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// doRaw sends a raw request with optional content-type override.
func (env *testEnv) doRaw(t *testing.T, method, path, contentType, rawBody string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(rawBody))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// decodeJSON decodes the response body into v.
func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

func rateBody(r domain.Rate) map[string]any {
	return map[string]any{"numerator": r.Numerator, "denominator": r.Denominator}
}

// structureBody renders fs in the request JSON shape.
func structureBody(fs domain.FeeStructure) map[string]any {
	tiers := make([]map[string]any, len(fs.Tiers))
	for i, t := range fs.Tiers {
		tiers[i] = map[string]any{
			"fee":              rateBody(t.FeeRate),
			"maker_rebate":     rateBody(t.MakerRebateRate),
			"referee_discount": rateBody(t.RefereeDiscountRate),
			"referrer_reward":  rateBody(t.ReferrerRewardRate),
		}
	}
	return map[string]any{
		"tiers":           tiers,
		"filler_reward":   rateBody(fs.FillerReward.RewardRate),
		"flat_filler_fee": domain.FormatQuote(fs.FlatFillerFee),
	}
}

// submitProposal posts a proposal and returns the decoded response.
func (env *testEnv) submitProposal(t *testing.T, market string, fs domain.FeeStructure, effectiveAt string) map[string]any {
	t.Helper()
	body := map[string]any{"fee_structure": structureBody(fs)}
	if effectiveAt != "" {
		body["effective_at"] = effectiveAt
	}
	rr := env.doJSON(t, "POST", "/markets/"+market+"/proposals", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit proposal: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	return resp
}

// --- Healthz ---

func TestHealthz(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected application/json, got %s", ct)
	}
}

func TestMetrics_Exposed(t *testing.T) {
	env := newSeededEnv(t)
	rr := env.doJSON(t, "GET", "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `fee_structure_activations_total{market="perp"} 1`) {
		t.Fatalf("expected perp activation counter in: %s", rr.Body.String())
	}
}

// --- Validate ---

func TestValidate_Defaults(t *testing.T) {
	env := newTestEnv()
	for _, fs := range []domain.FeeStructure{domain.PerpsDefault(), domain.SpotDefault()} {
		rr := env.doJSON(t, "POST", "/fee-structures/validate", structureBody(fs))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp map[string]any
		decodeJSON(t, rr, &resp)
		if resp["valid"] != true {
			t.Fatalf("expected valid=true, got %v", resp["valid"])
		}
	}
}

func TestValidate_FeeAboveMax(t *testing.T) {
	env := newTestEnv()
	fs := domain.PerpsDefault()
	fs.Tiers[4].FeeRate = domain.FeeRate(101)

	rr := env.doJSON(t, "POST", "/fee-structures/validate", structureBody(fs))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["error"] != "invalid_fee_structure" {
		t.Fatalf("expected invalid_fee_structure, got %v", resp["error"])
	}
	if resp["message"] != "invalid fee numerator (101) or denominator (100000) for tier 4" {
		t.Fatalf("unexpected message %v", resp["message"])
	}
	if resp["check"] != "fee" || resp["tier_index"] != float64(4) {
		t.Fatalf("expected check=fee tier_index=4, got %v %v", resp["check"], resp["tier_index"])
	}
}

func TestValidate_FillerRewardDenominatorMismatch(t *testing.T) {
	env := newTestEnv()
	fs := domain.PerpsDefault()
	fs.FillerReward.RewardRate = domain.Rate{Numerator: 10, Denominator: 1000}

	rr := env.doJSON(t, "POST", "/fee-structures/validate", structureBody(fs))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["check"] != "filler_reward" {
		t.Fatalf("expected check=filler_reward, got %v", resp["check"])
	}
	if _, ok := resp["tier_index"]; ok {
		t.Fatalf("expected no tier_index, got %v", resp["tier_index"])
	}
}

func TestValidate_RequestErrors(t *testing.T) {
	env := newTestEnv()
	valid := structureBody(domain.PerpsDefault())

	noTiers := structureBody(domain.PerpsDefault())
	noTiers["tiers"] = []any{}

	badFlat := structureBody(domain.PerpsDefault())
	badFlat["flat_filler_fee"] = "0.0000001"

	exponent := structureBody(domain.PerpsDefault())
	exponent["flat_filler_fee"] = "1e2000000000"

	unknown := structureBody(domain.PerpsDefault())
	unknown["maker_fee"] = 1

	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"empty tiers", noTiers, "validation_error"},
		{"too many decimals", badFlat, "validation_error"},
		{"exponent notation", exponent, "validation_error"},
		{"unknown field", unknown, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.doJSON(t, "POST", "/fee-structures/validate", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			var resp map[string]any
			decodeJSON(t, rr, &resp)
			if resp["error"] != tt.want {
				t.Fatalf("expected error %s, got %v", tt.want, resp["error"])
			}
		})
	}

	rr := env.doJSON(t, "POST", "/fee-structures/validate", valid)
	if rr.Code != http.StatusOK {
		t.Fatalf("control request: expected 200, got %d", rr.Code)
	}
}

// --- Fee structure reads ---

func TestGetCurrent_Success(t *testing.T) {
	env := newSeededEnv(t)

	rr := env.doJSON(t, "GET", "/markets/perp/fee-structure", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Market       string `json:"market"`
		Version      uint64 `json:"version"`
		FeeStructure struct {
			Tiers []struct {
				Fee struct {
					Numerator   uint32 `json:"numerator"`
					Denominator uint32 `json:"denominator"`
					Display     string `json:"display"`
				} `json:"fee"`
				ReferrerReward struct {
					Display string `json:"display"`
				} `json:"referrer_reward"`
			} `json:"tiers"`
			FlatFillerFee      string `json:"flat_filler_fee"`
			FlatFillerFeeUnits uint64 `json:"flat_filler_fee_units"`
		} `json:"fee_structure"`
	}
	decodeJSON(t, rr, &resp)

	if resp.Market != "perp" || resp.Version != 1 {
		t.Fatalf("expected perp v1, got %s v%d", resp.Market, resp.Version)
	}
	if len(resp.FeeStructure.Tiers) != 6 {
		t.Fatalf("expected 6 tiers, got %d", len(resp.FeeStructure.Tiers))
	}
	first := resp.FeeStructure.Tiers[0]
	if first.Fee.Numerator != 100 || first.Fee.Denominator != 100000 || first.Fee.Display != "10 bps" {
		t.Fatalf("unexpected tier 0 fee %+v", first.Fee)
	}
	if first.ReferrerReward.Display != "15%" {
		t.Fatalf("expected referrer reward 15%%, got %s", first.ReferrerReward.Display)
	}
	if resp.FeeStructure.FlatFillerFee != "0.01" || resp.FeeStructure.FlatFillerFeeUnits != 10000 {
		t.Fatalf("unexpected flat filler fee %s (%d)", resp.FeeStructure.FlatFillerFee, resp.FeeStructure.FlatFillerFeeUnits)
	}
}

func TestGetCurrent_NotFound(t *testing.T) {
	env := newTestEnv()

	rr := env.doJSON(t, "GET", "/markets/perp/fee-structure", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unseeded market, got %d", rr.Code)
	}
	rr = env.doJSON(t, "GET", "/markets/options/fee-structure", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown market, got %d", rr.Code)
	}
}

func TestVersions_ListAndGet(t *testing.T) {
	env := newSeededEnv(t)
	env.submitProposal(t, "spot", domain.SpotDefault(), "")

	rr := env.doJSON(t, "GET", "/markets/spot/fee-structure/versions?limit=1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var list struct {
		Versions []struct {
			Version uint64 `json:"version"`
		} `json:"versions"`
		Total int `json:"total"`
		Page  int `json:"page"`
		Limit int `json:"limit"`
	}
	decodeJSON(t, rr, &list)
	if list.Total != 2 || list.Limit != 1 || len(list.Versions) != 1 || list.Versions[0].Version != 2 {
		t.Fatalf("unexpected listing %+v", list)
	}

	rr = env.doJSON(t, "GET", "/markets/spot/fee-structure/versions/1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = env.doJSON(t, "GET", "/markets/spot/fee-structure/versions/9", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = env.doJSON(t, "GET", "/markets/spot/fee-structure/versions/zero", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = env.doJSON(t, "GET", "/markets/spot/fee-structure/versions?limit=500", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=500, got %d", rr.Code)
	}
}

// --- Proposals ---

func TestProposal_Submit_Immediate(t *testing.T) {
	env := newSeededEnv(t)

	resp := env.submitProposal(t, "perp", domain.PerpsDefault(), "")
	if resp["status"] != "active" {
		t.Fatalf("expected active, got %v", resp["status"])
	}
	if resp["version"] != float64(2) {
		t.Fatalf("expected version 2, got %v", resp["version"])
	}
	if resp["effective_at"] != nil {
		t.Fatalf("expected null effective_at, got %v", resp["effective_at"])
	}
}

func TestProposal_Submit_ScheduledThenCancel(t *testing.T) {
	env := newSeededEnv(t)
	effectiveAt := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)

	resp := env.submitProposal(t, "perp", domain.PerpsDefault(), effectiveAt)
	if resp["status"] != "pending" {
		t.Fatalf("expected pending, got %v", resp["status"])
	}
	if resp["version"] != nil {
		t.Fatalf("expected null version, got %v", resp["version"])
	}
	if resp["effective_at"] != effectiveAt {
		t.Fatalf("expected effective_at %s, got %v", effectiveAt, resp["effective_at"])
	}
	id := resp["proposal_id"].(string)

	rr := env.doJSON(t, "GET", "/markets/perp/proposals?status=pending", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list struct {
		Total int `json:"total"`
	}
	decodeJSON(t, rr, &list)
	if list.Total != 1 {
		t.Fatalf("expected 1 pending proposal, got %d", list.Total)
	}

	rr = env.doJSON(t, "DELETE", "/proposals/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var cancelled map[string]any
	decodeJSON(t, rr, &cancelled)
	if cancelled["status"] != "cancelled" || cancelled["cancelled_at"] == nil {
		t.Fatalf("unexpected cancel response %v", cancelled)
	}

	rr = env.doJSON(t, "DELETE", "/proposals/"+id, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second cancel, got %d", rr.Code)
	}

	rr = env.doJSON(t, "GET", "/proposals/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestProposal_Submit_InvalidNotStored(t *testing.T) {
	env := newSeededEnv(t)
	fs := domain.PerpsDefault()
	fs.Tiers[0].ReferrerRewardRate = domain.PercentRate(21)

	rr := env.doJSON(t, "POST", "/markets/perp/proposals", map[string]any{"fee_structure": structureBody(fs)})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["check"] != "referrer_reward" {
		t.Fatalf("expected check=referrer_reward, got %v", resp["check"])
	}

	rr = env.doJSON(t, "GET", "/markets/perp/fee-structure", nil)
	var cur map[string]any
	decodeJSON(t, rr, &cur)
	if cur["version"] != float64(1) {
		t.Fatalf("expected version to stay at 1, got %v", cur["version"])
	}
}

func TestProposal_Submit_ValidationErrors(t *testing.T) {
	env := newSeededEnv(t)

	rr := env.doJSON(t, "POST", "/markets/perp/proposals", map[string]any{
		"fee_structure": structureBody(domain.PerpsDefault()),
		"effective_at":  "tomorrow",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad effective_at, got %d", rr.Code)
	}

	rr = env.doJSON(t, "POST", "/markets/options/proposals", map[string]any{
		"fee_structure": structureBody(domain.PerpsDefault()),
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown market, got %d", rr.Code)
	}

	rr = env.doJSON(t, "GET", "/markets/perp/proposals?status=expired", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
}

func TestProposal_Get_NotFound(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/proposals/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

// --- Subscriptions ---

func TestSubscription_Upsert_Success(t *testing.T) {
	env := newTestEnv()
	body := map[string]any{
		"subscriber": "settlement",
		"url":        "https://example.com/hooks",
		"events":     []string{"fee_structure.activated"},
	}

	rr := env.doJSON(t, "POST", "/subscriptions", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Subscriptions []map[string]any `json:"subscriptions"`
	}
	decodeJSON(t, rr, &resp)
	if len(resp.Subscriptions) != 1 || resp.Subscriptions[0]["subscription_id"] == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	rr = env.doJSON(t, "POST", "/subscriptions", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on re-registration, got %d", rr.Code)
	}
}

func TestSubscription_Upsert_HTTPRejected(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "POST", "/subscriptions", map[string]any{
		"subscriber": "settlement",
		"url":        "http://example.com/hooks",
		"events":     []string{"fee_structure.activated"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSubscription_ListAndDelete(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "POST", "/subscriptions", map[string]any{
		"subscriber": "matching",
		"url":        "https://example.com/hooks",
		"events":     []string{"proposal.scheduled", "proposal.cancelled"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}

	rr = env.doJSON(t, "GET", "/subscriptions?subscriber=matching", nil)
	var list struct {
		Subscriptions []struct {
			SubscriptionID string `json:"subscription_id"`
		} `json:"subscriptions"`
	}
	decodeJSON(t, rr, &list)
	if len(list.Subscriptions) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(list.Subscriptions))
	}

	rr = env.doJSON(t, "DELETE", "/subscriptions/"+list.Subscriptions[0].SubscriptionID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	rr = env.doJSON(t, "DELETE", "/subscriptions/"+list.Subscriptions[0].SubscriptionID, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = env.doJSON(t, "GET", "/subscriptions", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without subscriber, got %d", rr.Code)
	}
}

// --- Content-Type Validation ---

func TestContentType_MissingOnPost(t *testing.T) {
	env := newTestEnv()
	rr := env.doRaw(t, "POST", "/fee-structures/validate", "", `{"tiers":[]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing Content-Type, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestContentType_WrongOnPost(t *testing.T) {
	env := newTestEnv()
	rr := env.doRaw(t, "POST", "/fee-structures/validate", "text/plain", `{"tiers":[]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong Content-Type, got %d: %s", rr.Code, rr.Body.String())
	}
}

// --- Response Format Validation ---

func TestResponseFormat_SnakeCaseFields(t *testing.T) {
	env := newSeededEnv(t)

	rr := env.doJSON(t, "GET", "/markets/spot/fee-structure", nil)
	body := rr.Body.String()

	for _, field := range []string{"proposal_id", "activated_at", "fee_structure", "maker_rebate", "referee_discount", "filler_reward", "flat_filler_fee"} {
		if !strings.Contains(body, fmt.Sprintf(`"%s"`, field)) {
			t.Fatalf("response missing snake_case field %q: %s", field, body)
		}
	}
	for _, bad := range []string{"proposalId", "activatedAt", "makerRebate", "flatFillerFee"} {
		if strings.Contains(body, bad) {
			t.Fatalf("response contains camelCase field %q: %s", bad, body)
		}
	}
}

func TestResponseFormat_TimestampRFC3339(t *testing.T) {
	env := newSeededEnv(t)
	resp := env.submitProposal(t, "spot", domain.SpotDefault(), "")

	for _, field := range []string{"submitted_at", "activated_at"} {
		s, ok := resp[field].(string)
		if !ok {
			t.Fatalf("%s should be a string", field)
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			t.Fatalf("%s not RFC 3339: %s", field, s)
		}
	}
}
