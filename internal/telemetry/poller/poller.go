// Package poller drives the fetch, decrypt and map pipeline on a timer and
// publishes the latest vehicle snapshot.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	"k8s.io/utils/clock"

	"github.com/bestk/zeeho-widgets/internal/pkg/metrics"
	fsmutil "github.com/bestk/zeeho-widgets/internal/pkg/util/fsm"
	"github.com/bestk/zeeho-widgets/internal/telemetry"
	"github.com/bestk/zeeho-widgets/pkg/log"
)

// DefaultMaxBackoff caps the retry delay when no ceiling is configured.
const DefaultMaxBackoff = 30 * time.Minute

// Poller owns one poll loop for one vehicle. Cycles never overlap.
type Poller struct {
	cfg      telemetry.Config
	fetcher  Fetcher
	mapper   Mapper
	enricher Enricher
	clock    clock.Clock
	log      log.Logger

	maxBackoff time.Duration
	retry      *retryPolicy
	machine    *fsm.FSM

	snapshot atomic.Pointer[Snapshot]

	mu          sync.RWMutex
	lastErr     error
	failures    int
	nextAttempt time.Time

	refreshCh chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
	running   atomic.Bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithEnricher adds a step after mapping, such as reverse geocoding.
func WithEnricher(e Enricher) Option {
	return func(p *Poller) { p.enricher = e }
}

// WithMaxBackoff sets the retry ceiling. It is raised to the update interval
// when lower.
func WithMaxBackoff(d time.Duration) Option {
	return func(p *Poller) { p.maxBackoff = d }
}

func WithLogger(l log.Logger) Option {
	return func(p *Poller) { p.log = l }
}

// New validates cfg and returns an idle Poller.
func New(cfg telemetry.Config, f Fetcher, m Mapper, opts ...Option) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if f == nil || m == nil {
		return nil, errors.New("poller requires a fetcher and a mapper")
	}

	p := &Poller{
		cfg:        cfg,
		fetcher:    f,
		mapper:     m,
		clock:      clock.RealClock{},
		log:        log.WithName("poller").WithValues("vehicleID", cfg.VehicleID),
		maxBackoff: DefaultMaxBackoff,
		refreshCh:  make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		subs:       make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.retry = newRetryPolicy(cfg.UpdateInterval, p.maxBackoff)
	p.machine = p.newStateMachine()
	metrics.SetState(string(StateIdle), allStates)

	return p, nil
}

func (p *Poller) newStateMachine() *fsm.FSM {
	idle, fetching, mapping := string(StateIdle), string(StateFetching), string(StateMapping)
	published, backoff, stopped := string(StatePublished), string(StateBackoff), string(StateStopped)

	return fsm.NewFSM(
		idle,
		fsm.Events{
			{Name: eventFetch, Src: []string{idle, published}, Dst: fetching},
			{Name: eventFetched, Src: []string{fetching}, Dst: mapping},
			{Name: eventPublish, Src: []string{mapping}, Dst: published},
			{Name: eventFail, Src: []string{fetching, mapping}, Dst: backoff},
			{Name: eventRetry, Src: []string{backoff}, Dst: idle},
			{Name: eventStop, Src: []string{idle, fetching, mapping, published, backoff}, Dst: stopped},
		},
		fsm.Callbacks{
			// A cancelled cycle must not publish.
			"before_" + eventPublish: fsmutil.WrapEvent(func(ctx context.Context, e *fsm.Event) error {
				return ctx.Err()
			}),
			"enter_state": func(_ context.Context, e *fsm.Event) {
				metrics.SetState(e.Dst, allStates)
				p.log.Debug("Poller state changed", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
}

// Run polls until ctx is cancelled or Stop is called. The first cycle starts
// immediately. Run may only be called once.
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("poller is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer p.shutdown()

	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	p.log.Info("Poller started", "updateInterval", p.cfg.UpdateInterval, "maxBackoff", p.retry.b.MaxInterval)

	for ctx.Err() == nil {
		delay := p.cycle(ctx)
		if !p.wait(ctx, delay) {
			break
		}
	}

	return nil
}

// Refresh requests an immediate cycle. Requests made while a cycle is in
// flight collapse into a single cycle that starts right after it.
func (p *Poller) Refresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Stop ends the poll loop. An in-flight request is aborted and its result
// discarded. Stop is idempotent.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Latest returns the last published snapshot, or nil before the first success.
func (p *Poller) Latest() *Snapshot {
	return p.snapshot.Load()
}

// LastError returns the error of the last cycle, nil after a success.
func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// State returns the current state.
func (p *Poller) State() State {
	return State(p.machine.Current())
}

// Config returns the poller configuration.
func (p *Poller) Config() telemetry.Config {
	return p.cfg
}

// Status returns a consistent view of the poller for presentation.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Status{
		State:       p.State(),
		LastError:   p.lastErr,
		Failures:    p.failures,
		NextAttempt: p.nextAttempt,
	}
	if snap := p.snapshot.Load(); snap != nil {
		s.LastSuccess = snap.FetchedAt
	}
	return s
}

// Subscribe returns a channel receiving an Event after every cycle, and a
// function to unsubscribe. Slow subscribers only see the newest event. The
// channel is closed when the poller stops.
func (p *Poller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 1)

	p.subMu.Lock()
	defer p.subMu.Unlock()

	if p.closed {
		close(ch)
		return ch, func() {}
	}

	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch

	return ch, func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
}

// cycle runs one fetch, map, publish pass and returns the delay before the next.
func (p *Poller) cycle(ctx context.Context) time.Duration {
	if p.State() == StateBackoff {
		p.event(ctx, eventRetry)
	}
	p.event(ctx, eventFetch)

	payload, err := p.fetcher.Fetch(ctx, p.cfg)
	if ctx.Err() != nil {
		metrics.PollCyclesTotal.WithLabelValues("canceled").Inc()
		return 0
	}
	if err != nil {
		return p.fail(ctx, "transport_error", err)
	}

	p.event(ctx, eventFetched)

	data, err := p.mapper.Map(payload.Data)
	if err != nil {
		return p.fail(ctx, "mapping_error", err)
	}
	if p.enricher != nil {
		data = p.enricher.Enrich(ctx, data)
	}

	if err := p.event(ctx, eventPublish); err != nil {
		metrics.PollCyclesTotal.WithLabelValues("canceled").Inc()
		return 0
	}

	now := p.clock.Now()
	snap := &Snapshot{Data: data, FetchedAt: now}
	p.snapshot.Store(snap)
	p.retry.Reset()

	p.mu.Lock()
	p.lastErr = nil
	p.failures = 0
	p.nextAttempt = now.Add(p.cfg.UpdateInterval)
	p.mu.Unlock()

	metrics.PollCyclesTotal.WithLabelValues("success").Inc()
	metrics.BackoffSeconds.Set(0)
	metrics.LastSuccessTimestamp.Set(float64(now.Unix()))
	p.log.Debug("Published vehicle snapshot", "bmssoc", data.Bmssoc, "hmiRidableMile", data.HmiRidableMile)

	p.broadcast(Event{State: StatePublished, Snapshot: snap})

	return p.cfg.UpdateInterval
}

func (p *Poller) fail(ctx context.Context, result string, err error) time.Duration {
	if ctx.Err() != nil {
		metrics.PollCyclesTotal.WithLabelValues("canceled").Inc()
		return 0
	}

	delay := p.retry.Next()

	p.mu.Lock()
	p.lastErr = err
	p.failures++
	failures := p.failures
	p.nextAttempt = p.clock.Now().Add(delay)
	p.mu.Unlock()

	p.event(ctx, eventFail)

	metrics.PollCyclesTotal.WithLabelValues(result).Inc()
	metrics.BackoffSeconds.Set(delay.Seconds())
	p.log.Warn("Poll cycle failed, backing off", "error", err, "failures", failures, "retryIn", delay)

	p.broadcast(Event{State: StateBackoff, Snapshot: p.snapshot.Load(), Err: err})

	return delay
}

// wait blocks for d, a refresh request or cancellation. It reports whether
// the loop should continue.
func (p *Poller) wait(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}

	t := p.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C():
		return true
	case <-p.refreshCh:
		return true
	}
}

func (p *Poller) event(ctx context.Context, name string) error {
	err := p.machine.Event(ctx, name)
	if err != nil && !fsmutil.IsNoop(err) {
		p.log.Debug("State transition not applied", "event", name, "state", p.machine.Current(), "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (p *Poller) shutdown() {
	p.event(context.Background(), eventStop)
	p.log.Info("Poller stopped")

	p.subMu.Lock()
	defer p.subMu.Unlock()

	p.closed = true
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}

func (p *Poller) broadcast(ev Event) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			// Replace the stale event.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
