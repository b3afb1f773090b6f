// Package model defines the canonical data model the engine operates on:
// subject records, tracked entities, the spatial layout and aggregate stats.
// Upstream payloads are normalized into these shapes at the gateway boundary,
// so nothing else in the codebase branches on upstream field naming.
package model

import "time"

// Risk score bounds. Scores outside this range are clamped upstream.
const (
	RiskScoreMin = 0
	RiskScoreMax = 12
)

// RiskBand is the derived low/medium/high classification of a risk score.
type RiskBand string

// Risk bands, ordered from most to least urgent.
const (
	BandHigh   RiskBand = "high"
	BandMedium RiskBand = "medium"
	BandLow    RiskBand = "low"
)

// Bands lists all bands in display order (high first).
func Bands() []RiskBand {
	return []RiskBand{BandHigh, BandMedium, BandLow}
}

// BandFor derives the risk band from a numeric risk score. The band is never
// stored alongside the score; it is recomputed on every read so a mutated
// score can not diverge from its band.
func BandFor(score int) RiskBand {
	switch {
	case score >= 7:
		return BandHigh
	case score >= 5:
		return BandMedium
	default:
		return BandLow
	}
}

// RiskDirection is a demo vitals adjustment direction.
type RiskDirection string

// Directions accepted by AdjustRisk.
const (
	DirectionWorsen  RiskDirection = "worsen"
	DirectionImprove RiskDirection = "improve"
)

// Valid reports whether d is a known direction.
func (d RiskDirection) Valid() bool {
	return d == DirectionWorsen || d == DirectionImprove
}

// EntityKind classifies a tracked entity.
type EntityKind string

// Entity kinds produced by the upstream classifier.
const (
	KindSubject EntityKind = "subject"
	KindStaff   EntityKind = "staff"
	KindUnknown EntityKind = "unknown"
)

// Position is a 2D coordinate in the spatial-layout coordinate space.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// SubjectRecord is a stable, identity-bearing record owned by the upstream
// registry. The engine treats it as read-only apart from the demo risk
// adjustment, which round-trips through the gateway.
type SubjectRecord struct {
	SubjectID   string             `json:"subject_id" yaml:"subject_id"`
	DisplayName string             `json:"display_name" yaml:"display_name"`
	Age         int                `json:"age" yaml:"age"`
	SummaryText string             `json:"summary_text" yaml:"summary_text"`
	RiskScore   int                `json:"risk_score" yaml:"risk_score"`
	Vitals      map[string]float64 `json:"vitals,omitempty" yaml:"vitals,omitempty"`
}

// Band returns the derived risk band for the record's current score.
func (s SubjectRecord) Band() RiskBand {
	return BandFor(s.RiskScore)
}

// TrackedEntity is an ephemeral, positionally-located detection. Its TrackID
// is unique within a snapshot but not stable across re-detections.
// LinkedSubjectID is set by operator enrollment and echoed back by the
// upstream tracker on subsequent fetches.
type TrackedEntity struct {
	TrackID         string     `json:"track_id" yaml:"track_id"`
	Position        Position   `json:"position" yaml:"position"`
	Kind            EntityKind `json:"entity_kind" yaml:"entity_kind"`
	LinkedSubjectID string     `json:"linked_subject_id,omitempty" yaml:"linked_subject_id,omitempty"`
}

// Enrolled reports whether the entity carries a subject link. The link may
// still dangle (reference a subject missing from the snapshot); resolution
// handles that defensively.
func (t TrackedEntity) Enrolled() bool {
	return t.LinkedSubjectID != ""
}

// Zone is a named rectangle on the spatial layout.
type Zone struct {
	Name   string `json:"name" yaml:"name"`
	X      int    `json:"x" yaml:"x"`
	Y      int    `json:"y" yaml:"y"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	Color  string `json:"color" yaml:"color"`
}

// SpatialLayout defines the coordinate space all positions are expressed in.
// It is fully replaced on every successful fetch; when the optional layout
// read fails the view falls back to DefaultLayout.
type SpatialLayout struct {
	Width      int    `json:"width" yaml:"width"`
	Height     int    `json:"height" yaml:"height"`
	Zones      []Zone `json:"zones" yaml:"zones"`
	Background string `json:"background,omitempty" yaml:"background,omitempty"` // base64 PNG, optional
}

// DefaultLayout is used when no layout is available from the snapshot.
func DefaultLayout() SpatialLayout {
	return SpatialLayout{Width: 800, Height: 600}
}

// AggregateStats are the six derived counts shown on the dashboard header.
// Either supplied by the upstream source or recomputed locally; both paths
// share the definitions in the view package.
type AggregateStats struct {
	TotalTracked    int `json:"total_tracked" yaml:"total_tracked"`
	Enrolled        int `json:"enrolled" yaml:"enrolled"`
	Unidentified    int `json:"unidentified" yaml:"unidentified"`
	StaffCount      int `json:"staff_count" yaml:"staff_count"`
	CriticalLocated int `json:"critical_located" yaml:"critical_located"`
	UrgentLocated   int `json:"urgent_located" yaml:"urgent_located"`
}

// Snapshot is the atomic bundle produced by one successful poll. Layout and
// Stats are optional: a nil Layout means the optional read failed, a nil
// Stats means aggregates must be computed locally.
type Snapshot struct {
	Subjects  []SubjectRecord `json:"subjects" yaml:"subjects"`
	Entities  []TrackedEntity `json:"entities" yaml:"entities"`
	Stats     *AggregateStats `json:"stats,omitempty" yaml:"stats,omitempty"`
	Layout    *SpatialLayout  `json:"layout,omitempty" yaml:"layout,omitempty"`
	FetchedAt time.Time       `json:"fetched_at" yaml:"-"`
}

// Subject returns the record with the given id, or nil if absent.
func (s *Snapshot) Subject(id string) *SubjectRecord {
	if s == nil {
		return nil
	}
	for i := range s.Subjects {
		if s.Subjects[i].SubjectID == id {
			return &s.Subjects[i]
		}
	}
	return nil
}

// Connectivity is the state of the upstream link, owned exclusively by the
// engine and transitioned only on fetch completion.
type Connectivity string

// Connectivity states.
const (
	ConnConnecting Connectivity = "connecting"
	ConnLive       Connectivity = "live"
	ConnOffline    Connectivity = "offline"
)
