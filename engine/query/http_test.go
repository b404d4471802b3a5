package query

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/varikb/varikb/engine/domain"
	"github.com/varikb/varikb/engine/graph"
	"github.com/varikb/varikb/pkg/metrics"
)

func newTestServer(repo *fakeRepo) *httptest.Server {
	svc, _, _ := newTestService(repo)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(svc, log, metrics.New())
	return httptest.NewServer(srv.Handler())
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, wantStatus, body)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestSearchEndpointRequiresFilter(t *testing.T) {
	ts := newTestServer(&fakeRepo{})
	defer ts.Close()

	getJSON(t, ts.URL+"/search/statements", http.StatusUnprocessableEntity)
}

func TestSearchEndpointRejectsNegativePagination(t *testing.T) {
	ts := newTestServer(&fakeRepo{})
	defer ts.Close()

	getJSON(t, ts.URL+"/search/statements?gene=BRAF&start=-1", http.StatusUnprocessableEntity)
	getJSON(t, ts.URL+"/search/statements?gene=BRAF&limit=-1", http.StatusUnprocessableEntity)
	getJSON(t, ts.URL+"/search/statements?gene=BRAF&limit=abc", http.StatusUnprocessableEntity)
}

func TestSearchEndpointHappyPath(t *testing.T) {
	repo := &fakeRepo{
		search: func(graph.StatementFilter) []string { return []string{"civic.eid:1"} },
		statements: map[string]domain.Statement{
			"civic.eid:1": statement("civic.eid:1", domain.PropositionTherapeuticResponse),
		},
	}
	ts := newTestServer(repo)
	defer ts.Close()

	body := getJSON(t, ts.URL+"/search/statements?gene=BRAF", http.StatusOK)
	if _, ok := body["duration_s"]; !ok {
		t.Error("response missing duration_s")
	}
	ids, _ := body["statement_ids"].([]any)
	if len(ids) != 1 || ids[0] != "civic.eid:1" {
		t.Errorf("statement_ids = %v", body["statement_ids"])
	}
	if _, ok := body["therapeutic_response_statements"]; !ok {
		t.Error("response missing proposition grouping")
	}
}

func TestBatchEndpointRequiresVariations(t *testing.T) {
	ts := newTestServer(&fakeRepo{})
	defer ts.Close()

	getJSON(t, ts.URL+"/batch_search/statements", http.StatusUnprocessableEntity)
	getJSON(t, ts.URL+"/batch_search/statements?variations=", http.StatusUnprocessableEntity)
}

func TestBatchEndpointHappyPath(t *testing.T) {
	repo := &fakeRepo{
		search: func(f graph.StatementFilter) []string {
			if f.VariationID == "ga4gh:VA.v600e" {
				return []string{"civic.eid:1"}
			}
			return nil
		},
		statements: map[string]domain.Statement{
			"civic.eid:1": statement("civic.eid:1", domain.PropositionTherapeuticResponse),
		},
	}
	ts := newTestServer(repo)
	defer ts.Close()

	body := getJSON(t, ts.URL+"/batch_search/statements?variations=BRAF+V600E,ga4gh:VA.v600e", http.StatusOK)
	terms, _ := body["search_terms"].([]any)
	if len(terms) != 2 {
		t.Errorf("search_terms = %v", body["search_terms"])
	}
	ids, _ := body["statement_ids"].([]any)
	if len(ids) != 1 {
		t.Errorf("statement_ids = %v", body["statement_ids"])
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	ts := newTestServer(&fakeRepo{})
	defer ts.Close()

	body := getJSON(t, ts.URL+"/health", http.StatusOK)
	if body["status"] != "ok" {
		t.Errorf("health = %v", body)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}
