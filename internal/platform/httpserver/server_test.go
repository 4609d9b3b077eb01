package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	abtestengine "newsfinder/contexts/experimentation/abtest-engine"
	"newsfinder/contexts/experimentation/abtest-engine/application/policy"
	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	abtesthttp "newsfinder/contexts/experimentation/abtest-engine/transport/http"
	"newsfinder/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	module, err := abtestengine.NewInMemoryModule([]entities.Campaign{{
		CampaignID: "home_layout",
		Name:       "Test Homepage",
		Prior:      entities.UniformPrior,
		Variants: []entities.Variant{
			{VariantID: "a", Template: "home_a.html"},
			{VariantID: "b", Template: "home_b.html"},
		},
	}, {
		CampaignID: "three_way",
		Prior:      entities.UniformPrior,
		Variants:   []entities.Variant{{VariantID: "a"}, {VariantID: "b"}, {VariantID: "c"}},
	}}, policy.NewSeededRandom(4), logger)
	if err != nil {
		t.Fatalf("build module: %v", err)
	}
	return New(module, prometheus.NewRegistry(), logger, "")
}

func serve(server *Server, method string, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return payload
}

func TestAbtestAssignIsStickyOverHTTP(t *testing.T) {
	server := newTestServer(t)

	first := serve(server, http.MethodPost, "/v1/abtest/campaigns/home_layout/assignments", `{"user_id":"u1"}`, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", first.Code, first.Body.String())
	}
	assigned := decode[abtesthttp.AssignmentResponse](t, first)
	if !assigned.Created || assigned.Template == "" {
		t.Fatalf("expected a created assignment with template, got %+v", assigned)
	}

	// Header identity with an empty body resolves to the same user.
	second := serve(server, http.MethodPost, "/v1/abtest/campaigns/home_layout/assignments", "", map[string]string{"X-User-Id": "u1"})
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", second.Code, second.Body.String())
	}
	again := decode[abtesthttp.AssignmentResponse](t, second)
	if again.VariantID != assigned.VariantID || again.Created {
		t.Fatalf("expected sticky %s, got %+v", assigned.VariantID, again)
	}

	lookup := serve(server, http.MethodGet, "/v1/abtest/campaigns/home_layout/assignments/u1", "", nil)
	if lookup.Code != http.StatusOK || decode[abtesthttp.AssignmentResponse](t, lookup).VariantID != assigned.VariantID {
		t.Fatalf("lookup mismatch: %d %s", lookup.Code, lookup.Body.String())
	}
}

func TestAbtestAssignErrors(t *testing.T) {
	server := newTestServer(t)
	for _, tc := range []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"missing user", "/v1/abtest/campaigns/home_layout/assignments", `{}`, http.StatusBadRequest, "missing_user"},
		{"bad json", "/v1/abtest/campaigns/home_layout/assignments", `{"user_id":`, http.StatusBadRequest, "invalid_json"},
		{"unknown campaign", "/v1/abtest/campaigns/checkout/assignments", `{"user_id":"u1"}`, http.StatusNotFound, "campaign_not_found"},
		{"three variants", "/v1/abtest/campaigns/three_way/assignments", `{"user_id":"u1"}`, http.StatusUnprocessableEntity, "unsupported_variant_count"},
	} {
		rr := serve(server, http.MethodPost, tc.target, tc.body, nil)
		if rr.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d body=%s", tc.name, tc.status, rr.Code, rr.Body.String())
		}
		if got := decode[abtesthttp.ErrorResponse](t, rr).Code; got != tc.code {
			t.Fatalf("%s: expected code %s, got %s", tc.name, tc.code, got)
		}
	}

	missing := serve(server, http.MethodGet, "/v1/abtest/campaigns/home_layout/assignments/nobody", "", nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unassigned user, got %d", missing.Code)
	}
}

func TestAbtestOutcomeFlow(t *testing.T) {
	server := newTestServer(t)

	early := serve(server, http.MethodPost, "/v1/abtest/campaigns/home_layout/outcomes", `{"user_id":"u2","success":true}`, nil)
	if early.Code != http.StatusConflict || decode[abtesthttp.ErrorResponse](t, early).Code != "no_assignment" {
		t.Fatalf("expected 409 no_assignment, got %d body=%s", early.Code, early.Body.String())
	}

	if rr := serve(server, http.MethodPost, "/v1/abtest/campaigns/home_layout/assignments", `{"user_id":"u2"}`, nil); rr.Code != http.StatusOK {
		t.Fatalf("assign: %d %s", rr.Code, rr.Body.String())
	}
	missingFlag := serve(server, http.MethodPost, "/v1/abtest/campaigns/home_layout/outcomes", `{"user_id":"u2"}`, nil)
	if missingFlag.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without success flag, got %d", missingFlag.Code)
	}

	headers := map[string]string{"Idempotency-Key": "conv-1"}
	first := serve(server, http.MethodPost, "/v1/abtest/campaigns/home_layout/outcomes", `{"user_id":"u2","success":true}`, headers)
	if first.Code != http.StatusOK {
		t.Fatalf("record outcome: %d %s", first.Code, first.Body.String())
	}
	recorded := decode[abtesthttp.OutcomeResponse](t, first)
	if recorded.Alpha != 2 || recorded.Beta != 1 || recorded.Replayed {
		t.Fatalf("unexpected outcome %+v", recorded)
	}
	replay := decode[abtesthttp.OutcomeResponse](t, serve(server, http.MethodPost, "/v1/abtest/campaigns/home_layout/outcomes", `{"user_id":"u2","success":true}`, headers))
	if !replay.Replayed || replay.Alpha != 2 {
		t.Fatalf("replay double counted: %+v", replay)
	}
	conflict := serve(server, http.MethodPost, "/v1/abtest/campaigns/home_layout/outcomes", `{"user_id":"u2","success":false}`, headers)
	if conflict.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reused key, got %d", conflict.Code)
	}

	estimateRR := serve(server, http.MethodGet, "/v1/abtest/campaigns/home_layout/estimate", "", nil)
	if estimateRR.Code != http.StatusOK {
		t.Fatalf("estimate: %d %s", estimateRR.Code, estimateRR.Body.String())
	}
	estimate := decode[abtesthttp.EstimateResponse](t, estimateRR)
	if len(estimate.Variants) != 2 || estimate.Comparison == nil {
		t.Fatalf("unexpected estimate %+v", estimate)
	}
	observed := 0.0
	for _, variant := range estimate.Variants {
		observed += variant.Observations
	}
	if observed != 1 {
		t.Fatalf("expected exactly one observation, got %f", observed)
	}
}

func TestAbtestListCampaignsAndHealth(t *testing.T) {
	server := newTestServer(t)
	rr := serve(server, http.MethodGet, "/v1/abtest/campaigns", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list campaigns: %d", rr.Code)
	}
	list := decode[abtesthttp.CampaignListResponse](t, rr)
	if len(list.Items) != 2 || list.Items[0].CampaignID != "home_layout" || len(list.Items[0].Variants) != 2 {
		t.Fatalf("unexpected campaigns %+v", list)
	}
	if health := serve(server, http.MethodGet, "/healthz", "", nil); health.Code != http.StatusOK {
		t.Fatalf("healthz: %d", health.Code)
	}
}

func TestMetricsEndpointExposesExperimentCounters(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()
	observer := metrics.NewExperimentMetrics(registry)
	observer.AssignmentResolved("home_layout", "a", "created")
	observer.OutcomeRecorded("home_layout", "a", true, false)

	server := New(abtestengine.Module{}, registry, logger, "")
	rr := serve(server, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`newsfinder_abtest_assignments_total{campaign_id="home_layout",resolution="created",variant_id="a"} 1`,
		`newsfinder_abtest_outcomes_total{campaign_id="home_layout",replayed="false",success="true",variant_id="a"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}
