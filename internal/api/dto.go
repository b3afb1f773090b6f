package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/aldwick/wardview/internal/model"
	"github.com/aldwick/wardview/internal/view"
)

// EnrollRequest is the request body for linking a tracked entity to a
// subject record.
type EnrollRequest struct {
	TrackID   string `json:"track_id" example:"T-4F2A" validate:"required"`
	SubjectID string `json:"subject_id" example:"P-1001" validate:"required"`
}

// Validate checks the request before it reaches the coordinator.
func (r EnrollRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TrackID, validation.Required),
		validation.Field(&r.SubjectID, validation.Required),
	)
}

// SimulatedRequest is the request body for flipping simulated mode.
type SimulatedRequest struct {
	Simulated bool `json:"simulated"`
}

// ConnectivityResponse reports the upstream link state alongside the
// simulation flag and the resolved data source, kept as separate fields so
// diagnostics never lose which condition forced fallback.
type ConnectivityResponse struct {
	State     model.Connectivity `json:"state"`
	LastError string             `json:"last_error,omitempty"`
	Simulated bool               `json:"simulated"`
	Source    string             `json:"source"`
}

// RenderModel is the consumer-facing view (aliased from the view layer).
type RenderModel = view.RenderModel

// SubjectView is a single subject with derived fields (aliased from the view
// layer).
type SubjectView = view.SubjectView

// AckResponse acknowledges a mutation.
type AckResponse struct {
	Success bool `json:"success" validate:"required"`
}
