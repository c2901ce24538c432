package poller

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/bestk/zeeho-widgets/internal/telemetry"
	"github.com/bestk/zeeho-widgets/internal/telemetry/fetcher"
	"github.com/bestk/zeeho-widgets/internal/telemetry/mapper"
	"github.com/bestk/zeeho-widgets/internal/telemetry/model"
)

var testConfig = telemetry.Config{Token: "abc", VehicleID: "358122500002456", UpdateInterval: 5 * time.Second}

const minimalPayload = `{"vehicleName":"MyBike","bmssoc":"87","hmiRidableMile":"42","location":{"longitude":120.1,"latitude":30.2}}`

func payload(t *testing.T, s string) *model.RawPayload {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		t.Fatal(err)
	}
	return &model.RawPayload{StatusCode: 200, Code: model.SuccessCode, Data: data}
}

// scriptedFetcher replays results in order, repeating the last one.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []func(ctx context.Context) (*model.RawPayload, error)
	calls   atomic.Int32

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *scriptedFetcher) Fetch(ctx context.Context, _ telemetry.Config) (*model.RawPayload, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	i := int(f.calls.Add(1)) - 1

	f.mu.Lock()
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	fn := f.results[i]
	f.mu.Unlock()

	return fn(ctx)
}

func ok(p *model.RawPayload) func(context.Context) (*model.RawPayload, error) {
	return func(context.Context) (*model.RawPayload, error) { return p, nil }
}

func fail(err error) func(context.Context) (*model.RawPayload, error) {
	return func(context.Context) (*model.RawPayload, error) { return nil, err }
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

type harness struct {
	p     *Poller
	clock *testingclock.FakeClock
	done  chan error
}

func start(t *testing.T, f Fetcher, opts ...Option) *harness {
	t.Helper()

	clk := testingclock.NewFakeClock(time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC))
	p, err := New(testConfig, f, mapper.New(), append([]Option{WithClock(clk)}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	h := &harness{p: p, clock: clk, done: make(chan error, 1)}
	go func() { h.done <- p.Run(context.Background()) }()

	t.Cleanup(func() {
		p.Stop()
		select {
		case <-h.done:
		case <-time.After(3 * time.Second):
			t.Error("Run did not return after Stop")
		}
	})

	return h
}

func TestPollerPublishesSnapshot(t *testing.T) {
	f := &scriptedFetcher{results: []func(context.Context) (*model.RawPayload, error){ok(payload(t, minimalPayload))}}
	h := start(t, f)

	waitFor(t, "first snapshot", func() bool { return h.p.Latest() != nil })

	snap := h.p.Latest()
	if snap.Data.Bmssoc != "87" || snap.Data.HmiRidableMile != "42" {
		t.Fatalf("snapshot = %+v", snap.Data)
	}
	if !snap.FetchedAt.Equal(h.clock.Now()) {
		t.Errorf("FetchedAt = %v, want %v", snap.FetchedAt, h.clock.Now())
	}
	waitFor(t, "next timer", func() bool { return h.p.State() == StatePublished && h.clock.HasWaiters() })
	if err := h.p.LastError(); err != nil {
		t.Errorf("LastError() = %v", err)
	}
	if next := h.p.Status().NextAttempt; !next.Equal(h.clock.Now().Add(testConfig.UpdateInterval)) {
		t.Errorf("NextAttempt = %v", next)
	}
}

func TestPollerKeepsSnapshotOnTransportError(t *testing.T) {
	serverError := &fetcher.TransportError{Kind: fetcher.NonSuccessStatus, StatusCode: 500}
	f := &scriptedFetcher{results: []func(context.Context) (*model.RawPayload, error){
		ok(payload(t, minimalPayload)),
		fail(serverError),
	}}
	h := start(t, f)

	waitFor(t, "first snapshot", func() bool { return h.p.Latest() != nil })
	good := h.p.Latest()

	h.p.Refresh()
	waitFor(t, "backoff", func() bool { return h.p.State() == StateBackoff })

	if h.p.Latest() != good {
		t.Fatal("failed cycle replaced the published snapshot")
	}
	if err := h.p.LastError(); !errors.Is(err, &fetcher.TransportError{Kind: fetcher.NonSuccessStatus, StatusCode: 500}) {
		t.Fatalf("LastError() = %v, want NonSuccessStatus(500)", err)
	}
	st := h.p.Status()
	if st.Failures != 1 || !st.NextAttempt.Equal(h.clock.Now().Add(testConfig.UpdateInterval)) {
		t.Fatalf("Status() = %+v", st)
	}
}

func TestPollerMappingErrorBacksOff(t *testing.T) {
	f := &scriptedFetcher{results: []func(context.Context) (*model.RawPayload, error){
		ok(payload(t, `{"vehicleName":"MyBike","hmiRidableMile":"42"}`)),
	}}
	h := start(t, f)

	waitFor(t, "backoff", func() bool { return h.p.State() == StateBackoff })

	if h.p.Latest() != nil {
		t.Fatal("snapshot published from an unmappable payload")
	}
	if err := h.p.LastError(); !errors.Is(err, &mapper.MappingError{Kind: mapper.MissingRequiredField, Field: "bmssoc"}) {
		t.Fatalf("LastError() = %v", err)
	}
}

func TestPollerTimerDrivesCyclesAndBackoff(t *testing.T) {
	f := &scriptedFetcher{results: []func(context.Context) (*model.RawPayload, error){
		fail(errors.New("boom")),
		fail(errors.New("boom")),
		ok(payload(t, minimalPayload)),
	}}
	h := start(t, f, WithMaxBackoff(time.Minute))

	// First failure: retry after the update interval.
	waitFor(t, "first failure", func() bool { return f.calls.Load() == 1 && h.clock.HasWaiters() })
	h.clock.Step(testConfig.UpdateInterval - time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("retried before the delay elapsed: %d calls", n)
	}
	h.clock.Step(time.Millisecond)

	// Second failure: the delay doubles.
	waitFor(t, "second failure", func() bool { return f.calls.Load() == 2 && h.p.Status().Failures == 2 && h.clock.HasWaiters() })
	if got, want := h.p.Status().NextAttempt.Sub(h.clock.Now()), 2*testConfig.UpdateInterval; got != want {
		t.Fatalf("second backoff = %s, want %s", got, want)
	}
	h.clock.Step(2 * testConfig.UpdateInterval)

	waitFor(t, "recovery", func() bool { return h.p.Latest() != nil })
	if err := h.p.LastError(); err != nil {
		t.Fatalf("LastError() after success = %v", err)
	}
	waitFor(t, "next timer", func() bool { return h.clock.HasWaiters() })
	if got := h.p.Status().NextAttempt.Sub(h.clock.Now()); got != testConfig.UpdateInterval {
		t.Fatalf("delay after success = %s, want update interval", got)
	}
}

func TestPollerRefreshIsCoalesced(t *testing.T) {
	gate := make(chan struct{})
	blocked := func(ctx context.Context) (*model.RawPayload, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return payload(t, minimalPayload), nil
	}
	f := &scriptedFetcher{results: []func(context.Context) (*model.RawPayload, error){blocked, ok(payload(t, minimalPayload))}}
	h := start(t, f)

	waitFor(t, "first fetch in flight", func() bool { return f.calls.Load() == 1 })
	for i := 0; i < 5; i++ {
		h.p.Refresh()
	}
	close(gate)

	waitFor(t, "queued refresh", func() bool { return f.calls.Load() == 2 })
	waitFor(t, "idle wait", func() bool { return h.clock.HasWaiters() && h.p.State() == StatePublished })
	time.Sleep(20 * time.Millisecond)

	if n := f.calls.Load(); n != 2 {
		t.Fatalf("fetch called %d times, want 2", n)
	}
	if m := f.maxInFlight.Load(); m != 1 {
		t.Fatalf("%d cycles overlapped", m)
	}
}

func TestPollerStopAbortsInFlightFetch(t *testing.T) {
	var aborted atomic.Bool
	f := &scriptedFetcher{results: []func(context.Context) (*model.RawPayload, error){
		func(ctx context.Context) (*model.RawPayload, error) {
			<-ctx.Done()
			aborted.Store(true)
			// A late success must not be published either.
			return &model.RawPayload{Data: map[string]any{"vehicleName": "x", "bmssoc": "1", "hmiRidableMile": "1"}}, nil
		},
	}}
	h := start(t, f)
	events, _ := h.p.Subscribe()

	waitFor(t, "fetch in flight", func() bool { return f.calls.Load() == 1 })
	h.p.Stop()

	select {
	case <-h.done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	h.done <- nil

	if !aborted.Load() {
		t.Error("in-flight fetch was not cancelled")
	}
	if h.p.Latest() != nil {
		t.Error("snapshot published after Stop")
	}
	if s := h.p.State(); s != StateStopped {
		t.Errorf("State() = %s, want stopped", s)
	}
	for ev := range events {
		t.Errorf("unexpected event after Stop: %+v", ev)
	}
}

type blockingEnricher struct {
	entered  chan struct{}
	released atomic.Bool
}

func (e *blockingEnricher) Enrich(ctx context.Context, v *model.VehicleData) *model.VehicleData {
	close(e.entered)
	<-ctx.Done()
	e.released.Store(true)
	return v
}

func TestPollerStopDiscardsInFlightEnrichment(t *testing.T) {
	f := &scriptedFetcher{results: []func(context.Context) (*model.RawPayload, error){
		ok(payload(t, minimalPayload)),
	}}
	e := &blockingEnricher{entered: make(chan struct{})}
	h := start(t, f, WithEnricher(e))
	events, _ := h.p.Subscribe()

	select {
	case <-e.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("enricher was not called")
	}
	if s := h.p.State(); s != StateMapping {
		t.Fatalf("State() = %s, want mapping", s)
	}
	h.p.Stop()

	select {
	case <-h.done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	h.done <- nil

	if !e.released.Load() {
		t.Error("enrichment context was not cancelled")
	}
	if h.p.Latest() != nil {
		t.Error("snapshot published after Stop")
	}
	if s := h.p.State(); s != StateStopped {
		t.Errorf("State() = %s, want stopped", s)
	}
	for ev := range events {
		t.Errorf("unexpected event after Stop: %+v", ev)
	}
}

func TestPollerSubscribe(t *testing.T) {
	f := &scriptedFetcher{results: []func(context.Context) (*model.RawPayload, error){
		func(ctx context.Context) (*model.RawPayload, error) {
			return payload(t, minimalPayload), nil
		},
	}}

	clk := testingclock.NewFakeClock(time.Now())
	p, err := New(testConfig, f, mapper.New(), WithClock(clk))
	if err != nil {
		t.Fatal(err)
	}
	events, cancel := p.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	select {
	case ev := <-events:
		if ev.State != StatePublished || ev.Err != nil || ev.Snapshot == nil || ev.Snapshot.Data.VehicleName != "MyBike" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event")
	}

	stop()
	<-done

	if _, open := <-events; open {
		t.Fatal("subscription not closed after stop")
	}
	late, _ := p.Subscribe()
	if _, open := <-late; open {
		t.Fatal("subscription after stop is open")
	}
	if err := p.Run(context.Background()); err == nil {
		t.Fatal("second Run() error = nil")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig
	cfg.UpdateInterval = time.Second

	if _, err := New(cfg, &scriptedFetcher{}, mapper.New()); !errors.Is(err, telemetry.ErrInvalidConfig) {
		t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
	}
}

func TestRetryPolicy(t *testing.T) {
	base, ceiling := 5*time.Second, time.Minute
	r := newRetryPolicy(base, ceiling)

	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, time.Minute, time.Minute}
	prev := time.Duration(0)
	for i, w := range want {
		got := r.Next()
		if got != w {
			t.Fatalf("Next() #%d = %s, want %s", i, got, w)
		}
		if got < prev || got > ceiling {
			t.Fatalf("Next() #%d = %s, not within [%s, %s]", i, got, prev, ceiling)
		}
		prev = got
	}

	r.Reset()
	if got := r.Next(); got != base {
		t.Fatalf("Next() after Reset = %s, want %s", got, base)
	}
}

func TestRetryPolicyCeilingBelowBase(t *testing.T) {
	r := newRetryPolicy(time.Minute, time.Second)
	for i := 0; i < 3; i++ {
		if got := r.Next(); got != time.Minute {
			t.Fatalf("Next() = %s, want the base interval", got)
		}
	}
}
