package server

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestHealthEndpoint(t *testing.T) {
	st := newFakeStore()
	srv := newTestServer(st, 0)
	router := srv.Router()

	rec := doRequest(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["status"] != "ok" || body["database"] != "connected" {
		t.Fatalf("health body = %v", body)
	}
	ts, err := time.Parse(time.RFC3339, body["timestamp"])
	if err != nil {
		t.Fatalf("timestamp not RFC3339: %v", err)
	}
	if ts.Location() != time.UTC {
		t.Fatalf("timestamp not UTC: %v", ts)
	}
}

func TestHealthEndpointDatabaseDown(t *testing.T) {
	st := newFakeStore()
	st.pingErr = errors.New("connection refused")
	srv := newTestServer(st, 0)
	router := srv.Router()

	rec := doRequest(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["database"] != "disconnected" {
		t.Fatalf("health body = %v", body)
	}
	if body["error"] == "" {
		t.Fatal("expected the ping error to be reported")
	}
}
