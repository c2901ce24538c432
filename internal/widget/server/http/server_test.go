package http

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bestk/zeeho-widgets/internal/telemetry/model"
	"github.com/bestk/zeeho-widgets/internal/telemetry/poller"
	"github.com/bestk/zeeho-widgets/pkg/options"
)

type fakeSource struct {
	mu        sync.Mutex
	latest    *poller.Snapshot
	status    poller.Status
	refreshes int
	events    chan poller.Event
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan poller.Event, 4)}
}

func (f *fakeSource) Latest() *poller.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

func (f *fakeSource) Status() poller.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSource) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *fakeSource) set(latest *poller.Snapshot, status poller.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = latest
	f.status = status
}

func (f *fakeSource) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeSource) Subscribe() (<-chan poller.Event, func()) {
	return f.events, func() {}
}

func snapshot() *poller.Snapshot {
	return &poller.Snapshot{
		Data:      &model.VehicleData{VehicleName: "ZEEHO AE8", Bmssoc: "87"},
		FetchedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newTestServer(src Source) *httptest.Server {
	return httptest.NewServer(NewServer(options.NewHttpOptions(), src).Handler())
}

func TestVehicleEndpoint(t *testing.T) {
	src := newFakeSource()
	src.set(nil, poller.Status{State: poller.StateFetching})
	ts := newTestServer(src)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/vehicle")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status before first snapshot = %d, want 404", resp.StatusCode)
	}

	src.set(snapshot(), poller.Status{State: poller.StateBackoff})

	resp, err = http.Get(ts.URL + "/api/v1/vehicle")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Data  map[string]any `json:"data"`
		State string         `json:"state"`
		Stale bool           `json:"stale"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Data["vehicleName"] != "ZEEHO AE8" || body.Data["bmssoc"] != "87" {
		t.Errorf("unexpected data: %v", body.Data)
	}
	if body.State != "backoff" || !body.Stale {
		t.Errorf("state = %q stale = %v, want backoff and stale", body.State, body.Stale)
	}
}

func TestReadyz(t *testing.T) {
	src := newFakeSource()
	ts := newTestServer(src)
	defer ts.Close()

	for _, tc := range []struct {
		name   string
		latest *poller.Snapshot
		want   int
	}{
		{"before first snapshot", nil, http.StatusServiceUnavailable},
		{"after first snapshot", snapshot(), http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src.set(tc.latest, poller.Status{})
			resp, err := http.Get(ts.URL + "/readyz")
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	src := newFakeSource()
	src.status = poller.Status{
		State:     poller.StateBackoff,
		LastError: errors.New("upstream returned 500"),
		Failures:  2,
	}
	ts := newTestServer(src)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.State != poller.StateBackoff || body.Failures != 2 || body.LastError != "upstream returned 500" {
		t.Errorf("unexpected status: %+v", body)
	}
	if body.LastSuccess != nil {
		t.Errorf("lastSuccess = %v, want omitted", body.LastSuccess)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(newFakeSource())
	defer ts.Close()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/refresh", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/v1/vehicle", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/v1/status", http.StatusMethodNotAllowed},
		{http.MethodPost, "/healthz", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRefreshEndpoint(t *testing.T) {
	src := newFakeSource()
	ts := newTestServer(src)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/refresh", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if n := src.refreshCount(); n != 1 {
		t.Errorf("refreshes = %d, want 1", n)
	}

	resp, err = http.Get(ts.URL + "/api/v1/refresh")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", resp.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	src := newFakeSource()
	src.latest = snapshot()
	ts := newTestServer(src)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	src.events <- poller.Event{State: poller.StateBackoff, Snapshot: src.Latest(), Err: errors.New("timeout")}
	close(src.events)

	var names []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			names = append(names, name)
		}
	}

	want := []string{"snapshot", "error"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", names, want)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(newFakeSource())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
