// Package testutil provides shared test helpers: an in-memory fake upstream
// gateway and snapshot builders.
package testutil

import (
	"context"
	"sync"

	"github.com/aldwick/wardview/internal/apperr"
	"github.com/aldwick/wardview/internal/gateway"
	"github.com/aldwick/wardview/internal/model"
)

// FakeGateway is an in-memory upstream. Reads serve the stored state; each
// read can be made to fail by setting its error field. Mutations behave like
// the real upstream: enroll is an upsert, risk adjustment is a clamped ±2
// step, and all changes are visible on the next read.
type FakeGateway struct {
	mu sync.Mutex

	SubjectData []model.SubjectRecord
	EntityData  []model.TrackedEntity
	StatsData   *model.AggregateStats
	LayoutData  *model.SpatialLayout

	FailSubjects error
	FailTracked  error
	FailStats    error
	FailLayout   error
	FailMutation error

	FetchCalls    int // increments on every Subjects call, one per fetch cycle
	EnrollCalls   int
	UnenrollCalls int
	AdjustCalls   int
	SeedCalls     int
	ClearCalls    int
}

var _ gateway.Client = (*FakeGateway)(nil)

// NewFakeGateway returns a gateway with a small coherent data set: three
// subjects across all bands and three entities, one of them enrolled.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		SubjectData: []model.SubjectRecord{
			{SubjectID: "P1", DisplayName: "Subject One", Age: 70, RiskScore: 9},
			{SubjectID: "P2", DisplayName: "Subject Two", Age: 55, RiskScore: 5},
			{SubjectID: "P3", DisplayName: "Subject Three", Age: 30, RiskScore: 2},
		},
		EntityData: []model.TrackedEntity{
			{TrackID: "T1", Kind: model.KindSubject, LinkedSubjectID: "P1", Position: model.Position{X: 100, Y: 100}},
			{TrackID: "T2", Kind: model.KindStaff, Position: model.Position{X: 200, Y: 150}},
			{TrackID: "T3", Kind: model.KindUnknown, Position: model.Position{X: 300, Y: 200}},
		},
		StatsData: &model.AggregateStats{
			TotalTracked: 3, Enrolled: 1, Unidentified: 1, StaffCount: 1,
			CriticalLocated: 1,
		},
		LayoutData: &model.SpatialLayout{Width: 800, Height: 600},
	}
}

func (f *FakeGateway) Subjects(context.Context) ([]model.SubjectRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls++
	if f.FailSubjects != nil {
		return nil, f.FailSubjects
	}
	return append([]model.SubjectRecord(nil), f.SubjectData...), nil
}

func (f *FakeGateway) Subject(_ context.Context, id string) (*model.SubjectRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSubjects != nil {
		return nil, f.FailSubjects
	}
	for i := range f.SubjectData {
		if f.SubjectData[i].SubjectID == id {
			rec := f.SubjectData[i]
			return &rec, nil
		}
	}
	return nil, &apperr.TransportError{Op: "get subject", Status: 404}
}

func (f *FakeGateway) SubjectsByBand(_ context.Context, band model.RiskBand) ([]model.SubjectRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSubjects != nil {
		return nil, f.FailSubjects
	}
	var out []model.SubjectRecord
	for _, s := range f.SubjectData {
		if s.Band() == band {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *FakeGateway) Tracked(context.Context) ([]model.TrackedEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailTracked != nil {
		return nil, f.FailTracked
	}
	return append([]model.TrackedEntity(nil), f.EntityData...), nil
}

func (f *FakeGateway) TrackedEnrolled(ctx context.Context) ([]model.TrackedEntity, error) {
	all, err := f.Tracked(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.TrackedEntity
	for _, e := range all {
		if e.Enrolled() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *FakeGateway) TrackedUnidentified(ctx context.Context) ([]model.TrackedEntity, error) {
	all, err := f.Tracked(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.TrackedEntity
	for _, e := range all {
		if !e.Enrolled() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *FakeGateway) Stats(context.Context) (*model.AggregateStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailStats != nil {
		return nil, f.FailStats
	}
	if f.StatsData == nil {
		return nil, nil
	}
	stats := *f.StatsData
	return &stats, nil
}

func (f *FakeGateway) Layout(context.Context) (*model.SpatialLayout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailLayout != nil {
		return nil, f.FailLayout
	}
	if f.LayoutData == nil {
		return nil, &apperr.TransportError{Op: "get layout", Status: 404}
	}
	layout := *f.LayoutData
	return &layout, nil
}

func (f *FakeGateway) Health(context.Context) error { return nil }

func (f *FakeGateway) Enroll(_ context.Context, trackID, subjectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EnrollCalls++
	if f.FailMutation != nil {
		return f.FailMutation
	}
	for i := range f.EntityData {
		if f.EntityData[i].TrackID == trackID {
			f.EntityData[i].LinkedSubjectID = subjectID
			return nil
		}
	}
	return &apperr.TransportError{Op: "enroll", Status: 400}
}

func (f *FakeGateway) Unenroll(_ context.Context, trackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UnenrollCalls++
	if f.FailMutation != nil {
		return f.FailMutation
	}
	for i := range f.EntityData {
		if f.EntityData[i].TrackID == trackID {
			f.EntityData[i].LinkedSubjectID = ""
		}
	}
	return nil
}

func (f *FakeGateway) AdjustRisk(_ context.Context, subjectID string, dir model.RiskDirection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AdjustCalls++
	if f.FailMutation != nil {
		return f.FailMutation
	}
	for i := range f.SubjectData {
		if f.SubjectData[i].SubjectID != subjectID {
			continue
		}
		step := 2
		if dir == model.DirectionImprove {
			step = -2
		}
		score := f.SubjectData[i].RiskScore + step
		if score > model.RiskScoreMax {
			score = model.RiskScoreMax
		}
		if score < model.RiskScoreMin {
			score = model.RiskScoreMin
		}
		f.SubjectData[i].RiskScore = score
		return nil
	}
	return &apperr.TransportError{Op: "adjust risk", Status: 404}
}

func (f *FakeGateway) SeedDemo(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SeedCalls++
	if f.FailMutation != nil {
		return f.FailMutation
	}
	return nil
}

func (f *FakeGateway) ClearAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClearCalls++
	if f.FailMutation != nil {
		return f.FailMutation
	}
	f.EntityData = nil
	return nil
}

// FailAll makes every mandatory read fail with the given error.
func (f *FakeGateway) FailAll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailSubjects = err
	f.FailTracked = err
	f.FailStats = err
	f.FailLayout = err
}

// Recover clears all failure injections.
func (f *FakeGateway) Recover() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailSubjects = nil
	f.FailTracked = nil
	f.FailStats = nil
	f.FailLayout = nil
	f.FailMutation = nil
}

// SubjectScore reads a subject's current score from the fake state.
func (f *FakeGateway) SubjectScore(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.SubjectData {
		if s.SubjectID == id {
			return s.RiskScore
		}
	}
	return -1
}

// EntityLink reads an entity's current subject link from the fake state.
func (f *FakeGateway) EntityLink(trackID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.EntityData {
		if e.TrackID == trackID {
			return e.LinkedSubjectID
		}
	}
	return ""
}

// Snapshot builds a snapshot literal for view tests.
func Snapshot(subjects []model.SubjectRecord, entities []model.TrackedEntity) *model.Snapshot {
	return &model.Snapshot{Subjects: subjects, Entities: entities}
}
