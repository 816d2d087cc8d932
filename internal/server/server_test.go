package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/upmon/upmon/internal/availability"
	"github.com/upmon/upmon/internal/config"
	"github.com/upmon/upmon/internal/monitor"
	"github.com/upmon/upmon/internal/store"
)

// fakeStore backs handler tests with in-memory state. It also satisfies the
// availability and snapshot store interfaces so one fake serves the whole
// server.
type fakeStore struct {
	mu        sync.Mutex
	pingErr   error
	nextID    int64
	targets   map[int64]monitor.Target
	checks    map[int64][]monitor.CheckResult
	incidents map[int64]monitor.Incident
	channels  map[int64]monitor.NotificationChannel

	lastCheckLimit     int
	prevStatus         *monitor.Status
	windowChecks       []monitor.CheckResult
	checksBetweenCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		targets:   make(map[int64]monitor.Target),
		checks:    make(map[int64][]monitor.CheckResult),
		incidents: make(map[int64]monitor.Incident),
		channels:  make(map[int64]monitor.NotificationChannel),
	}
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) CreateTarget(_ context.Context, t monitor.Target) (monitor.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.targets {
		if existing.URL == t.URL {
			return monitor.Target{}, store.ErrDuplicateURL
		}
	}
	f.nextID++
	t.ID = f.nextID
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	f.targets[t.ID] = t
	return t, nil
}

func (f *fakeStore) GetTarget(_ context.Context, id int64) (monitor.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.targets[id]
	if !ok {
		return monitor.Target{}, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) ListTargets(_ context.Context, onlyActive bool) ([]monitor.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []monitor.Target
	for _, t := range f.targets {
		if onlyActive && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateTarget(_ context.Context, t monitor.Target) (monitor.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.targets[t.ID]; !ok {
		return monitor.Target{}, store.ErrNotFound
	}
	for _, existing := range f.targets {
		if existing.ID != t.ID && existing.URL == t.URL {
			return monitor.Target{}, store.ErrDuplicateURL
		}
	}
	t.UpdatedAt = time.Now().UTC()
	f.targets[t.ID] = t
	return t, nil
}

func (f *fakeStore) DeleteTarget(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.targets[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.targets, id)
	return nil
}

func (f *fakeStore) ListChecks(_ context.Context, targetID int64, limit int) ([]monitor.CheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCheckLimit = limit
	checks := f.checks[targetID]
	if len(checks) > limit {
		checks = checks[:limit]
	}
	return checks, nil
}

func (f *fakeStore) LatestCheck(_ context.Context, targetID int64) (monitor.CheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	checks := f.checks[targetID]
	if len(checks) == 0 {
		return monitor.CheckResult{}, store.ErrNotFound
	}
	return checks[0], nil
}

func (f *fakeStore) GetIncident(_ context.Context, id int64) (monitor.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[id]
	if !ok {
		return monitor.Incident{}, store.ErrNotFound
	}
	return inc, nil
}

func (f *fakeStore) ListIncidents(_ context.Context, targetID *int64, resolved *bool, limit int) ([]monitor.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []monitor.Incident
	for _, inc := range f.incidents {
		if targetID != nil && inc.TargetID != *targetID {
			continue
		}
		if resolved != nil && inc.Resolved != *resolved {
			continue
		}
		out = append(out, inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListChannels(context.Context) ([]monitor.NotificationChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []monitor.NotificationChannel
	for _, ch := range f.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) CreateChannel(_ context.Context, ch monitor.NotificationChannel) (monitor.NotificationChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ch.ID = f.nextID
	ch.CreatedAt = time.Now().UTC()
	if ch.Config == nil {
		ch.Config = map[string]string{}
	}
	f.channels[ch.ID] = ch
	return ch, nil
}

func (f *fakeStore) DeleteChannel(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.channels, id)
	return nil
}

func (f *fakeStore) LastStatusBefore(context.Context, int64, time.Time) (*monitor.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prevStatus, nil
}

func (f *fakeStore) ChecksBetween(context.Context, int64, time.Time, time.Time) ([]monitor.CheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checksBetweenCalls++
	return f.windowChecks, nil
}

func (f *fakeStore) FleetSnapshot(context.Context) (*store.FleetSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := &store.FleetSnapshot{
		GeneratedAt:  time.Now().UTC(),
		TotalTargets: len(f.targets),
		Targets:      []store.TargetStatus{},
	}
	for _, t := range f.targets {
		if t.IsActive {
			snap.ActiveTargets++
		}
		snap.Targets = append(snap.Targets, store.TargetStatus{
			TargetID: t.ID, Name: t.Name, URL: t.URL, IsActive: t.IsActive,
		})
	}
	return snap, nil
}

func newTestServer(st *fakeStore, cacheTTL time.Duration) *Server {
	cfg := &config.Config{APIAddr: ":0", ShutdownTimeout: time.Second}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := availability.NewEngine(st, cacheTTL)
	return New(cfg, st, engine, NewHub(st, logger), logger)
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func validTargetBody() map[string]any {
	return map[string]any{
		"name":               "api gateway",
		"url":                "https://api.example.com/health",
		"check_interval_sec": 60,
		"timeout_ms":         5000,
		"retry_count":        2,
		"retry_backoff_ms":   500,
	}
}

func statusPtr(s monitor.Status) *monitor.Status { return &s }
