// Package view derives the render model consumers see from a snapshot. It is
// purely functional: source selection, entity↔subject resolution, risk
// banding, aggregate counts and list grouping all happen here, with no access
// to engine state beyond the inputs.
package view

import "github.com/aldwick/wardview/internal/model"

// Source labels on the render model. The distinction is load-bearing:
// consumers must always be able to tell substitute data from live data.
const (
	SourceLive     = "live"
	SourceFallback = "fallback"
)

// Band colors and marker radii, keyed by derived risk band. Staff and
// unidentified markers get their own fixed hints.
var (
	bandColors = map[model.RiskBand]string{
		model.BandHigh:   "#dc3545",
		model.BandMedium: "#ffc107",
		model.BandLow:    "#28a745",
	}
	bandRadii = map[model.RiskBand]int{
		model.BandHigh:   18,
		model.BandMedium: 14,
		model.BandLow:    10,
	}
)

const (
	staffColor     = "#0d6efd"
	unknownColor   = "#6c757d"
	unlinkedRadius = 8
)

// SubjectView is a subject record with its derived presentation fields.
type SubjectView struct {
	model.SubjectRecord
	RiskBand model.RiskBand `json:"risk_band"`
	Color    string         `json:"color"`
	Located  bool           `json:"located"`
}

// Marker is the unit of map rendering: a tracked entity with its resolved
// subject (nil when unlinked or dangling) and display hints.
type Marker struct {
	model.TrackedEntity
	Subject *SubjectView `json:"subject,omitempty"`
	Color   string       `json:"color"`
	Radius  int          `json:"radius"`
	Label   string       `json:"label"`
}

// Bucket groups subjects of one risk band for list display.
type Bucket struct {
	Band     model.RiskBand `json:"band"`
	Subjects []SubjectView  `json:"subjects"`
}

// RenderModel is the complete consumer-facing read model.
type RenderModel struct {
	Source       string               `json:"source"`
	Connectivity model.Connectivity   `json:"connectivity"`
	LastError    string               `json:"last_error,omitempty"`
	Simulated    bool                 `json:"simulated"`
	Markers      []Marker             `json:"markers"`
	Stats        model.AggregateStats `json:"stats"`
	Buckets      []Bucket             `json:"buckets"`
	Critical     []Marker             `json:"critical"`
	Layout       model.SpatialLayout  `json:"layout"`
}

// Input bundles everything Build needs. Live may be nil (nothing fetched
// yet); Fallback must not be.
type Input struct {
	Live         *model.Snapshot
	Fallback     *model.Snapshot
	Connectivity model.Connectivity
	LastError    string
	Simulated    bool
}

// UseFallback is the single source-selection rule every consumer shares:
// substitute data whenever the simulation flag is set or the link is not
// live.
func UseFallback(conn model.Connectivity, simulated bool) bool {
	return simulated || conn != model.ConnLive
}

// Build derives the render model. It never fails: empty collections produce
// zero aggregates and empty groups.
func Build(in Input) *RenderModel {
	snap := in.Live
	source := SourceLive
	if UseFallback(in.Connectivity, in.Simulated) {
		snap = in.Fallback
		source = SourceFallback
	}

	rm := &RenderModel{
		Source:       source,
		Connectivity: in.Connectivity,
		LastError:    in.LastError,
		Simulated:    in.Simulated,
		Markers:      []Marker{},
		Buckets:      []Bucket{},
		Critical:     []Marker{},
		Layout:       model.DefaultLayout(),
	}
	if snap == nil {
		return rm
	}

	if snap.Layout != nil {
		rm.Layout = *snap.Layout
	}

	located := make(map[string]bool, len(snap.Entities))
	for _, e := range snap.Entities {
		m := buildMarker(snap, e)
		if m.Subject != nil {
			located[m.Subject.SubjectID] = true
		}
		rm.Markers = append(rm.Markers, m)
		if m.Subject != nil && m.Subject.RiskBand == model.BandHigh {
			rm.Critical = append(rm.Critical, m)
		}
	}

	if snap.Stats != nil {
		rm.Stats = *snap.Stats
	} else {
		rm.Stats = ComputeStats(snap)
	}

	rm.Buckets = buildBuckets(snap.Subjects, located)
	return rm
}

// buildMarker resolves the entity's subject link and attaches display hints.
// A dangling link renders exactly like an unlinked entity.
func buildMarker(snap *model.Snapshot, e model.TrackedEntity) Marker {
	m := Marker{TrackedEntity: e, Label: e.TrackID, Radius: unlinkedRadius, Color: unknownColor}
	if e.Kind == model.KindStaff {
		m.Color = staffColor
	}

	if !e.Enrolled() {
		return m
	}
	rec := snap.Subject(e.LinkedSubjectID)
	if rec == nil {
		return m
	}

	band := rec.Band()
	m.Subject = &SubjectView{SubjectRecord: *rec, RiskBand: band, Color: bandColors[band], Located: true}
	m.Color = bandColors[band]
	m.Radius = bandRadii[band]
	m.Label = rec.SubjectID
	return m
}

// ComputeStats derives the aggregate counts from a snapshot. An entity
// contributes to exactly one of enrolled/unidentified/staff, with enrollment
// taking precedence over kind, so the three always sum to the total.
func ComputeStats(snap *model.Snapshot) model.AggregateStats {
	var stats model.AggregateStats
	if snap == nil {
		return stats
	}
	for _, e := range snap.Entities {
		stats.TotalTracked++
		switch {
		case e.Enrolled():
			stats.Enrolled++
		case e.Kind == model.KindStaff:
			stats.StaffCount++
		default:
			stats.Unidentified++
		}
		if !e.Enrolled() {
			continue
		}
		rec := snap.Subject(e.LinkedSubjectID)
		if rec == nil {
			continue
		}
		switch rec.Band() {
		case model.BandHigh:
			stats.CriticalLocated++
		case model.BandMedium:
			stats.UrgentLocated++
		}
	}
	return stats
}

// buildBuckets partitions subjects by band, high→medium→low, preserving
// snapshot order within each bucket.
func buildBuckets(subjects []model.SubjectRecord, located map[string]bool) []Bucket {
	byBand := make(map[model.RiskBand][]SubjectView)
	for _, s := range subjects {
		band := s.Band()
		byBand[band] = append(byBand[band], SubjectView{
			SubjectRecord: s,
			RiskBand:      band,
			Color:         bandColors[band],
			Located:       located[s.SubjectID],
		})
	}

	buckets := make([]Bucket, 0, len(byBand))
	for _, band := range model.Bands() {
		if views, ok := byBand[band]; ok {
			buckets = append(buckets, Bucket{Band: band, Subjects: views})
		}
	}
	return buckets
}
