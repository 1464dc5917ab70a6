package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"risk-sentinel/internal/alerting"
	"risk-sentinel/internal/disclosure"
	"risk-sentinel/internal/registry"
)

func testServer(t *testing.T, verify VerifyFunc) (*Server, *alerting.Store, *disclosure.Log) {
	t.Helper()
	alerts := alerting.NewStore()
	log, err := disclosure.Open("", zerolog.Nop())
	if err != nil {
		t.Fatalf("open disclosure log: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	status := func() Status {
		return Status{Status: "ok", CycleCount: 3, AlertCount: alerts.GetStats().Total, SigningMode: "read-only"}
	}
	return NewServer(":0", alerts, log, verify, status, zerolog.Nop()), alerts, log
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := testServer(t, nil)
	rec := get(t, server.Handler(), "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "ok" || status.CycleCount != 3 {
		t.Fatalf("unexpected status payload: %+v", status)
	}
	if status.Version == "" {
		t.Fatal("health must report a version")
	}
}

func TestAlertEndpoints(t *testing.T) {
	server, alerts, _ := testServer(t, nil)
	handler := server.Handler()

	alerts.Add(alerting.Alert{Address: "0xAAAA", RiskScore: 85, RiskLevel: "Very High"})
	alerts.Add(alerting.Alert{Address: "0xbbbb", RiskScore: 45, RiskLevel: "Medium"})
	alerts.Add(alerting.Alert{Address: "0xaaaa", RiskScore: 90, RiskLevel: "Very High"})

	rec := get(t, handler, "/alerts?limit=2")
	var listed []alerting.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 2 || listed[0].Address != "0xaaaa" {
		t.Fatalf("unexpected alert list: %+v", listed)
	}

	rec = get(t, handler, "/alerts?level=very+high")
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("level filter returned %d alerts", len(listed))
	}

	rec = get(t, handler, "/alerts/stats")
	var stats alerting.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 3 || stats.HighRisk != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	rec = get(t, handler, "/alerts/high")
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("high filter returned %d alerts", len(listed))
	}

	rec = get(t, handler, "/alerts/0xAAAA")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("address lookup returned %d alerts", len(listed))
	}

	rec = get(t, handler, "/alerts/0xdead")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown address should 404, got %d", rec.Code)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	verify := func(ctx context.Context, address string) (registry.VerificationResult, error) {
		if address == "0xbad" {
			return registry.VerificationResult{}, errors.New("rpc down")
		}
		return registry.VerificationResult{Address: address, Verified: true}, nil
	}
	server, _, _ := testServer(t, verify)
	handler := server.Handler()

	rec := get(t, handler, "/verify/0xaaaa")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result registry.VerificationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Verified || result.Address != "0xaaaa" {
		t.Fatalf("unexpected result: %+v", result)
	}

	rec = get(t, handler, "/verify/0xbad")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("verification failure should 502, got %d", rec.Code)
	}
}

func TestVerifyEndpointUnconfigured(t *testing.T) {
	server, _, _ := testServer(t, nil)
	rec := get(t, server.Handler(), "/verify/0xaaaa")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestDisclosureEndpoint(t *testing.T) {
	server, _, log := testServer(t, nil)
	handler := server.Handler()

	log.Append(disclosure.Entry{CycleID: 1, Address: "0xaaaa", Action: disclosure.ActionOnChainSubmission, Autonomous: true})
	log.Append(disclosure.Entry{CycleID: 1, Address: "0xbbbb", Action: disclosure.ActionSkipThreshold, Autonomous: true})

	rec := get(t, handler, "/disclosure?limit=1")
	var entries []disclosure.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Address != "0xbbbb" {
		t.Fatalf("unexpected disclosure page: %+v", entries)
	}

	rec = get(t, handler, "/disclosure")
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}
