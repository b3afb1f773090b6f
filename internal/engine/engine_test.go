package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aldwick/wardview/internal/apperr"
	"github.com/aldwick/wardview/internal/engine"
	"github.com/aldwick/wardview/internal/model"
	"github.com/aldwick/wardview/internal/testutil"
	"github.com/aldwick/wardview/internal/view"
)

// fbSource serves a fixed fallback snapshot.
type fbSource struct {
	snap *model.Snapshot
}

func (f *fbSource) Snapshot() *model.Snapshot { return f.snap }

func newFallback() *fbSource {
	return &fbSource{snap: &model.Snapshot{
		Subjects: []model.SubjectRecord{{SubjectID: "FB1", RiskScore: 8}},
		Entities: []model.TrackedEntity{{TrackID: "FBT1", Kind: model.KindSubject, LinkedSubjectID: "FB1"}},
	}}
}

func TestRefresh_SuccessTransitionsLive(t *testing.T) {
	gw := testutil.NewFakeGateway()
	eng := engine.New(gw, newFallback())

	if state, _ := eng.State(); state != model.ConnConnecting {
		t.Fatalf("initial state = %q, want connecting", state)
	}

	if err := eng.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	state, lastErr := eng.State()
	if state != model.ConnLive {
		t.Errorf("state = %q, want live", state)
	}
	if lastErr != "" {
		t.Errorf("last error = %q, want empty", lastErr)
	}

	rm := eng.View()
	if rm.Source != view.SourceLive {
		t.Errorf("source = %q, want live", rm.Source)
	}
	if len(rm.Markers) != 3 {
		t.Errorf("markers = %d, want 3", len(rm.Markers))
	}
}

func TestRefresh_MandatoryReadFailureGoesOffline(t *testing.T) {
	gw := testutil.NewFakeGateway()
	// Subjects and tracked succeed, stats fails: the whole fetch must fail.
	gw.FailStats = &apperr.TransportError{Op: "get stats", Status: 500}
	eng := engine.New(gw, newFallback())

	err := eng.Refresh(context.Background())
	if err == nil {
		t.Fatal("refresh should fail when a mandatory read fails")
	}
	if !apperr.IsTransport(err) {
		t.Errorf("error = %v, want TransportError", err)
	}

	state, lastErr := eng.State()
	if state != model.ConnOffline {
		t.Errorf("state = %q, want offline", state)
	}
	if lastErr == "" {
		t.Error("last error should be populated on offline")
	}
}

func TestRefresh_OptionalLayoutFailureStaysLive(t *testing.T) {
	gw := testutil.NewFakeGateway()
	gw.FailLayout = &apperr.TransportError{Op: "get layout", Status: 503}
	eng := engine.New(gw, newFallback())

	if err := eng.Refresh(context.Background()); err != nil {
		t.Fatalf("layout failure must not fail the fetch: %v", err)
	}
	if state, _ := eng.State(); state != model.ConnLive {
		t.Errorf("state = %q, want live", state)
	}

	rm := eng.View()
	if rm.Source != view.SourceLive {
		t.Errorf("source = %q, want live", rm.Source)
	}
	if len(rm.Markers) == 0 || len(rm.Buckets) == 0 {
		t.Error("subjects/entities must survive a layout failure")
	}
	def := model.DefaultLayout()
	if rm.Layout.Width != def.Width || rm.Layout.Height != def.Height {
		t.Errorf("layout = %+v, want default", rm.Layout)
	}
}

func TestOffline_HidesRetainedSnapshot(t *testing.T) {
	gw := testutil.NewFakeGateway()
	eng := engine.New(gw, newFallback())

	if err := eng.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	gw.FailAll(&apperr.TransportError{Op: "list subjects", Status: 502})
	if err := eng.Refresh(context.Background()); err == nil {
		t.Fatal("refresh should fail after upstream loss")
	}

	rm := eng.View()
	if rm.Source != view.SourceFallback {
		t.Fatalf("source = %q, want fallback while offline", rm.Source)
	}
	if len(rm.Markers) != 1 || rm.Markers[0].TrackID != "FBT1" {
		t.Errorf("offline view must serve fallback entities, got %+v", rm.Markers)
	}

	// Recovery on the next completed fetch restores the live view.
	gw.Recover()
	if err := eng.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh after recovery failed: %v", err)
	}
	if rm := eng.View(); rm.Source != view.SourceLive {
		t.Errorf("source = %q, want live after recovery", rm.Source)
	}
}

func TestSimulatedFlag_ForcesFallbackWhileLive(t *testing.T) {
	gw := testutil.NewFakeGateway()
	eng := engine.New(gw, newFallback())
	if err := eng.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	eng.SetSimulated(true)
	if rm := eng.View(); rm.Source != view.SourceFallback || !rm.Simulated {
		t.Errorf("simulated mode must serve fallback, got source=%q simulated=%v", rm.Source, rm.Simulated)
	}
	if state, _ := eng.State(); state != model.ConnLive {
		t.Errorf("simulation flag must not disturb connectivity, state = %q", state)
	}

	eng.SetSimulated(false)
	if rm := eng.View(); rm.Source != view.SourceLive {
		t.Errorf("source = %q, want live after clearing flag", rm.Source)
	}
}

// blockingGateway stalls the subjects read until released, to hold a fetch
// in flight.
type blockingGateway struct {
	*testutil.FakeGateway
	started   chan struct{}
	release   chan struct{}
	startOnce sync.Once
}

func (b *blockingGateway) Subjects(ctx context.Context) ([]model.SubjectRecord, error) {
	b.startOnce.Do(func() { close(b.started) })
	<-b.release
	return b.FakeGateway.Subjects(ctx)
}

func TestRefresh_ReentrancyGuard(t *testing.T) {
	gw := &blockingGateway{
		FakeGateway: testutil.NewFakeGateway(),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	eng := engine.New(gw, newFallback())

	done := make(chan error, 1)
	go func() { done <- eng.Refresh(context.Background()) }()

	<-gw.started
	if err := eng.Refresh(context.Background()); !errors.Is(err, apperr.ErrRefreshInFlight) {
		t.Errorf("overlapping refresh = %v, want ErrRefreshInFlight", err)
	}

	close(gw.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("in-flight refresh failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight refresh did not complete")
	}

	if state, _ := eng.State(); state != model.ConnLive {
		t.Errorf("state = %q, want live", state)
	}
}

func TestOnChange_FiresPerCompletedFetch(t *testing.T) {
	gw := testutil.NewFakeGateway()
	var mu sync.Mutex
	calls := 0
	eng := engine.New(gw, newFallback(), engine.WithOnChange(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}))

	_ = eng.Refresh(context.Background())
	gw.FailAll(&apperr.TransportError{Op: "list subjects", Status: 500})
	_ = eng.Refresh(context.Background())
	eng.SetSimulated(true)
	eng.SetSimulated(true) // no change, no notification

	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("onChange fired %d times, want 3", calls)
	}
}

func TestSubjectDetail(t *testing.T) {
	gw := testutil.NewFakeGateway()
	eng := engine.New(gw, newFallback())

	// Before the first successful fetch the fallback set answers.
	sv, err := eng.SubjectDetail(context.Background(), "FB1")
	if err != nil {
		t.Fatalf("fallback detail failed: %v", err)
	}
	if sv.RiskBand != model.BandHigh {
		t.Errorf("band = %q, want high", sv.RiskBand)
	}
	if _, err := eng.SubjectDetail(context.Background(), "NOPE"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing fallback subject = %v, want ErrNotFound", err)
	}

	// Once live, the gateway answers.
	if err := eng.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	sv, err = eng.SubjectDetail(context.Background(), "P2")
	if err != nil {
		t.Fatalf("live detail failed: %v", err)
	}
	if sv.SubjectID != "P2" || sv.RiskBand != model.BandMedium {
		t.Errorf("detail = %+v, want P2/medium", sv)
	}
}
