package gateway

import (
	"github.com/aldwick/wardview/internal/apperr"
	"github.com/aldwick/wardview/internal/model"
)

// Raw upstream payload shapes. The tracker still speaks the legacy field
// vocabulary (patient_id, person_type, camera-space position plus map-space
// map_position); normalization maps everything into the canonical model once,
// at this boundary.

type subjectDTO struct {
	SubjectID   string             `json:"subject_id"`
	DisplayName string             `json:"display_name"`
	Age         int                `json:"age"`
	SummaryText string             `json:"summary_text"`
	RiskScore   int                `json:"risk_score"`
	Vitals      map[string]float64 `json:"vitals"`
}

func (d subjectDTO) normalize() model.SubjectRecord {
	return model.SubjectRecord{
		SubjectID:   d.SubjectID,
		DisplayName: d.DisplayName,
		Age:         d.Age,
		SummaryText: d.SummaryText,
		RiskScore:   d.RiskScore,
		Vitals:      d.Vitals,
	}
}

func normalizeSubjects(dtos []subjectDTO) []model.SubjectRecord {
	out := make([]model.SubjectRecord, len(dtos))
	for i, d := range dtos {
		out[i] = d.normalize()
	}
	return out
}

type pointDTO struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type trackedDTO struct {
	TrackID     string   `json:"track_id"`
	PatientID   string   `json:"patient_id"`
	Position    pointDTO `json:"position"`
	MapPosition pointDTO `json:"map_position"`
	PersonType  string   `json:"person_type"`
}

// normalize maps a raw tracked payload into the canonical entity. The
// canonical position is the map-space coordinate; the camera-space one is
// dropped, nothing downstream needs it.
func (d trackedDTO) normalize() model.TrackedEntity {
	return model.TrackedEntity{
		TrackID:         d.TrackID,
		Position:        model.Position{X: d.MapPosition.X, Y: d.MapPosition.Y},
		Kind:            normalizeKind(d.PersonType),
		LinkedSubjectID: d.PatientID,
	}
}

func normalizeKind(personType string) model.EntityKind {
	switch personType {
	case "patient", "subject":
		return model.KindSubject
	case "staff":
		return model.KindStaff
	default:
		return model.KindUnknown
	}
}

func normalizeTracked(dtos []trackedDTO) []model.TrackedEntity {
	out := make([]model.TrackedEntity, len(dtos))
	for i, d := range dtos {
		out[i] = d.normalize()
	}
	return out
}

type statsDTO struct {
	TotalTracked    int `json:"total_tracked"`
	TaggedPatients  int `json:"tagged_patients"`
	Untagged        int `json:"untagged"`
	StaffCount      int `json:"staff_count"`
	CriticalLocated int `json:"critical_located"`
	UrgentLocated   int `json:"urgent_located"`
}

func (d statsDTO) normalize() model.AggregateStats {
	return model.AggregateStats{
		TotalTracked:    d.TotalTracked,
		Enrolled:        d.TaggedPatients,
		Unidentified:    d.Untagged,
		StaffCount:      d.StaffCount,
		CriticalLocated: d.CriticalLocated,
		UrgentLocated:   d.UrgentLocated,
	}
}

type zoneDTO struct {
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Color  string `json:"color"`
}

type layoutDTO struct {
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Zones      []zoneDTO `json:"zones"`
	Background string    `json:"background"`
}

func (d layoutDTO) normalize() model.SpatialLayout {
	zones := make([]model.Zone, len(d.Zones))
	for i, z := range d.Zones {
		zones[i] = model.Zone{Name: z.Name, X: z.X, Y: z.Y, Width: z.Width, Height: z.Height, Color: z.Color}
	}
	return model.SpatialLayout{Width: d.Width, Height: d.Height, Zones: zones, Background: d.Background}
}

// wireDirection translates canonical direction tokens to the upstream's.
func wireDirection(dir model.RiskDirection) (string, error) {
	switch dir {
	case model.DirectionWorsen:
		return "worse", nil
	case model.DirectionImprove:
		return "better", nil
	default:
		return "", &apperr.ValidationError{Msg: "direction must be worsen or improve"}
	}
}
