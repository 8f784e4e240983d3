package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"pkt.systems/pslog"

	"pkt.systems/sift"
	"pkt.systems/sift/schema"
	"pkt.systems/sift/store"
	"pkt.systems/sift/store/memstore"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	reg, err := schema.Build(map[string]schema.Entity{
		"article": {Fields: map[string]schema.Field{
			"title":  {Type: schema.FieldText, Indexed: true, Sortable: true},
			"status": {Type: schema.FieldKeyword, Indexed: true, Sortable: true},
			"age":    {Type: schema.FieldNumber, Indexed: true, Sortable: true},
		}},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	st := memstore.New()
	st.Seed(
		store.Record{Entity: "article", ID: "a1", Doc: map[string]any{"title": "go concurrency", "status": "published", "age": 5}},
		store.Record{Entity: "article", ID: "a2", Doc: map[string]any{"title": "go generics", "status": "draft", "age": 12}},
		store.Record{Entity: "article", ID: "a3", Doc: map[string]any{"title": "rust borrowing", "status": "published", "age": 30}},
	)
	ss, err := sift.New(sift.Config{
		Store:          st,
		Registry:       reg,
		IndexInMemory:  true,
		IndexOnStartup: true,
	}, sift.WithLogger(pslog.NewStructured(io.Discard)))
	if err != nil {
		t.Fatalf("new search store: %v", err)
	}
	t.Cleanup(func() {
		ss.Close()
		st.Close()
	})
	return newQueryHandler(ss, pslog.NewStructured(io.Discard))
}

func doQuery(t *testing.T, handler http.Handler, entity string, params url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/query/"+entity+"?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestQueryEndpointRoutesAndPaginates(t *testing.T) {
	handler := newTestHandler(t)
	rec := doQuery(t, handler, "article", url.Values{
		"filter": {"status==published"},
		"sort":   {"age:desc"},
		"limit":  {"1"},
		"totals": {"true"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Records) != 1 || resp.Records[0].ID != "a3" {
		t.Fatalf("unexpected records: %+v", resp.Records)
	}
	if resp.Total == nil || *resp.Total != 2 {
		t.Fatalf("expected total 2, got %v", resp.Total)
	}
}

func TestQueryEndpointWithoutFilterListsAll(t *testing.T) {
	handler := newTestHandler(t)
	rec := doQuery(t, handler, "article", url.Values{})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(resp.Records))
	}
	if resp.Total != nil {
		t.Fatalf("expected no total without totals param, got %v", resp.Total)
	}
}

func TestQueryEndpointRejectsBadInput(t *testing.T) {
	handler := newTestHandler(t)
	cases := []struct {
		name   string
		params url.Values
	}{
		{name: "malformed filter", params: url.Values{"filter": {"age>"}}},
		{name: "malformed sort", params: url.Values{"sort": {"age:sideways"}}},
		{name: "malformed offset", params: url.Values{"offset": {"x"}}},
		{name: "malformed limit", params: url.Values{"limit": {"x"}}},
		{name: "malformed totals", params: url.Values{"totals": {"x"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doQuery(t, handler, "article", tc.params)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Error == "" {
				t.Fatal("expected an error message")
			}
		})
	}
}

func TestQueryEndpointSurfacesTranslationFaults(t *testing.T) {
	handler := newTestHandler(t)
	// Null checks pass eligibility on indexed fields but have no
	// index-side mapping, so they fail translation.
	rec := doQuery(t, handler, "article", url.Values{"filter": {"status==null"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if rec.Body.String() != "ok\n" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestResolveOTLPTarget(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		protocol string
		endpoint string
		insecure bool
		wantErr  bool
	}{
		{name: "bare host", raw: "localhost", protocol: "grpc", endpoint: "localhost:4317", insecure: true},
		{name: "bare host port", raw: "otel:5000", protocol: "grpc", endpoint: "otel:5000", insecure: true},
		{name: "grpc scheme", raw: "grpc://otel:4317", protocol: "grpc", endpoint: "otel:4317", insecure: true},
		{name: "grpcs scheme", raw: "grpcs://otel:4317", protocol: "grpc", endpoint: "otel:4317", insecure: false},
		{name: "http default port", raw: "http://otel", protocol: "http", endpoint: "otel:4318", insecure: true},
		{name: "https", raw: "https://otel:4318", protocol: "http", endpoint: "otel:4318", insecure: false},
		{name: "unknown scheme", raw: "ftp://otel", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target, err := resolveOTLPTarget(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve %q: %v", tc.raw, err)
			}
			if target.protocol != tc.protocol || target.endpoint != tc.endpoint || target.insecure != tc.insecure {
				t.Fatalf("unexpected target %+v", target)
			}
		})
	}
}
