// Package engine owns the live snapshot and the connectivity state machine.
// A single poll loop fetches the four upstream reads concurrently on a fixed
// cadence and publishes each completed fetch atomically; mutations are
// serialized and always followed by a forced re-fetch. All other components
// receive read-only derived views.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aldwick/wardview/internal/apperr"
	"github.com/aldwick/wardview/internal/gateway"
	"github.com/aldwick/wardview/internal/metrics"
	"github.com/aldwick/wardview/internal/model"
	"github.com/aldwick/wardview/internal/view"
)

// FallbackSource provides the substitute snapshot. Implemented by
// fallback.Store.
type FallbackSource interface {
	Snapshot() *model.Snapshot
}

// Engine reconciles the upstream source into a consistent local snapshot.
type Engine struct {
	gw       gateway.Client
	fb       FallbackSource
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	onChange func()

	// inflight guards fetch reentrancy: a tick that fires while a fetch is
	// still running is skipped, the running fetch is the fresher one anyway.
	inflight atomic.Bool

	// mutMu serializes mutating calls so no two overlap.
	mutMu sync.Mutex

	mu        sync.RWMutex
	state     model.Connectivity
	lastErr   string
	snapshot  *model.Snapshot // last successful fetch; retained on offline for diagnostics, never served
	simulated bool
}

// Option configures the engine.
type Option func(*Engine)

// WithInterval sets the poll cadence.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithOnChange registers a callback invoked after every completed fetch and
// simulation-flag change. Used to push refresh hints to SSE subscribers.
func WithOnChange(fn func()) Option {
	return func(e *Engine) { e.onChange = fn }
}

// WithSimulated sets the initial simulation flag.
func WithSimulated(sim bool) Option {
	return func(e *Engine) { e.simulated = sim }
}

// New creates an engine in the connecting state.
func New(gw gateway.Client, fb FallbackSource, opts ...Option) *Engine {
	e := &Engine{
		gw:       gw,
		fb:       fb,
		interval: 2 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
		state:    model.ConnConnecting,
	}
	for _, opt := range opts {
		opt(e)
	}
	metrics.SetConnectivity(e.state)
	return e
}

// Run performs an immediate refresh and then polls on the configured
// interval until ctx is cancelled. There is no separate retry state: the
// next tick is the retry.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Refresh(ctx); err != nil {
		e.logger.Warn("initial refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine: poll loop stopped")
			return nil
		case <-ticker.C:
			if err := e.Refresh(ctx); err != nil && !apperr.IsTransport(err) {
				e.logger.Debug("tick skipped", slog.String("reason", err.Error()))
			}
		}
	}
}

// Refresh performs one full fetch cycle and publishes the outcome. Returns
// ErrRefreshInFlight when another fetch is already running, or the fetch
// failure that drove the offline transition.
func (e *Engine) Refresh(ctx context.Context) error {
	if !e.inflight.CompareAndSwap(false, true) {
		return apperr.ErrRefreshInFlight
	}
	defer e.inflight.Store(false)

	start := e.now()
	snap, err := e.fetchSnapshot(ctx)
	metrics.ObservePoll(e.now().Sub(start), err)

	e.mu.Lock()
	if err != nil {
		e.state = model.ConnOffline
		e.lastErr = err.Error()
	} else {
		e.state = model.ConnLive
		e.lastErr = ""
		e.snapshot = snap
	}
	state := e.state
	e.mu.Unlock()

	metrics.SetConnectivity(state)
	if err != nil {
		e.logger.Warn("fetch failed", slog.String("error", err.Error()))
	} else {
		e.logger.Debug("fetch completed",
			slog.Int("subjects", len(snap.Subjects)),
			slog.Int("entities", len(snap.Entities)))
	}
	e.notify()
	return err
}

// fetchSnapshot issues the four reads concurrently. Subjects, tracked and
// stats are mandatory: the first failure fails the whole call. The layout
// read is optional and its failure only leaves the field nil.
func (e *Engine) fetchSnapshot(ctx context.Context) (*model.Snapshot, error) {
	var (
		subjects []model.SubjectRecord
		entities []model.TrackedEntity
		stats    *model.AggregateStats
		layout   *model.SpatialLayout
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subjects, err = e.gw.Subjects(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		entities, err = e.gw.Tracked(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = e.gw.Stats(gCtx)
		return err
	})
	g.Go(func() error {
		l, err := e.gw.Layout(gCtx)
		if err != nil {
			e.logger.Warn("layout fetch failed, continuing without", slog.String("error", err.Error()))
			return nil
		}
		layout = l
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.Snapshot{
		Subjects:  subjects,
		Entities:  entities,
		Stats:     stats,
		Layout:    layout,
		FetchedAt: e.now(),
	}, nil
}

// State returns the connectivity state and the last fetch error message.
func (e *Engine) State() (model.Connectivity, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state, e.lastErr
}

// Simulated reports the explicit simulation flag. It is kept orthogonal to
// connectivity; the union of the two happens only in view selection.
func (e *Engine) Simulated() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.simulated
}

// SetSimulated flips the simulation flag and notifies subscribers.
func (e *Engine) SetSimulated(sim bool) {
	e.mu.Lock()
	changed := e.simulated != sim
	e.simulated = sim
	e.mu.Unlock()
	if changed {
		e.notify()
	}
}

// View builds the consumer-facing render model from the current state.
func (e *Engine) View() *view.RenderModel {
	e.mu.RLock()
	in := view.Input{
		Live:         e.snapshot,
		Fallback:     e.fb.Snapshot(),
		Connectivity: e.state,
		LastError:    e.lastErr,
		Simulated:    e.simulated,
	}
	e.mu.RUnlock()
	return view.Build(in)
}

// SubjectDetail resolves a single subject: from the gateway when live data is
// being served, from the fallback set otherwise.
func (e *Engine) SubjectDetail(ctx context.Context, id string) (*view.SubjectView, error) {
	e.mu.RLock()
	useFallback := view.UseFallback(e.state, e.simulated)
	e.mu.RUnlock()

	var rec *model.SubjectRecord
	if useFallback {
		rec = e.fb.Snapshot().Subject(id)
		if rec == nil {
			return nil, apperr.ErrNotFound
		}
	} else {
		var err error
		rec, err = e.gw.Subject(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	band := rec.Band()
	return &view.SubjectView{SubjectRecord: *rec, RiskBand: band}, nil
}

func (e *Engine) notify() {
	if e.onChange != nil {
		e.onChange()
	}
}
