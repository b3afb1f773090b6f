package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aldwick/wardview/internal/apperr"
	"github.com/aldwick/wardview/internal/engine"
	"github.com/aldwick/wardview/internal/model"
	"github.com/aldwick/wardview/internal/view"
)

// Handler holds API route handlers.
type Handler struct {
	eng *engine.Engine
}

// NewHandler creates a new Handler.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{eng: eng}
}

// GetView handles GET /api/view.
//
//	@Summary		Get the current render model (live or fallback)
//	@Tags			view
//	@Produce		json
//	@Success		200	{object}	RenderModel
//	@Security		BearerAuth
//	@Router			/view [get]
func (h *Handler) GetView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.View())
}

// GetConnectivity handles GET /api/connectivity.
//
//	@Summary		Get connectivity state, simulation flag and resolved source
//	@Tags			view
//	@Produce		json
//	@Success		200	{object}	ConnectivityResponse
//	@Security		BearerAuth
//	@Router			/connectivity [get]
func (h *Handler) GetConnectivity(w http.ResponseWriter, _ *http.Request) {
	state, lastErr := h.eng.State()
	sim := h.eng.Simulated()
	source := view.SourceLive
	if view.UseFallback(state, sim) {
		source = view.SourceFallback
	}
	writeJSON(w, http.StatusOK, ConnectivityResponse{
		State:     state,
		LastError: lastErr,
		Simulated: sim,
		Source:    source,
	})
}

// SetSimulated handles PUT /api/simulated.
//
//	@Summary		Set the explicit simulation flag
//	@Tags			view
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SimulatedRequest	true	"Flag value"
//	@Success		200		{object}	AckResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/simulated [put]
func (h *Handler) SetSimulated(w http.ResponseWriter, r *http.Request) {
	var req SimulatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	h.eng.SetSimulated(req.Simulated)
	writeJSON(w, http.StatusOK, AckResponse{Success: true})
}

// GetSubject handles GET /api/subjects/{id}.
//
//	@Summary		Get one subject with derived risk band
//	@Tags			subjects
//	@Produce		json
//	@Param			id	path		string	true	"Subject ID"
//	@Success		200	{object}	SubjectView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/subjects/{id} [get]
func (h *Handler) GetSubject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	sv, err := h.eng.SubjectDetail(r.Context(), id)
	if err != nil {
		h.writeError(w, "get subject", err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

// Enroll handles POST /api/enroll.
//
//	@Summary		Link a tracked entity to a subject record
//	@Tags			enrollment
//	@Accept			json
//	@Produce		json
//	@Param			body	body		EnrollRequest	true	"Link to create"
//	@Success		200		{object}	AckResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/enroll [post]
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.eng.Enroll(r.Context(), req.TrackID, req.SubjectID); err != nil {
		h.writeError(w, "enroll", err)
		return
	}
	writeJSON(w, http.StatusOK, AckResponse{Success: true})
}

// Unenroll handles DELETE /api/enroll/{trackID}.
//
//	@Summary		Clear the subject link from a tracked entity
//	@Tags			enrollment
//	@Produce		json
//	@Param			trackID	path		string	true	"Track ID"
//	@Success		200		{object}	AckResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/enroll/{trackID} [delete]
func (h *Handler) Unenroll(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackID")
	if err := h.eng.Unenroll(r.Context(), trackID); err != nil {
		h.writeError(w, "unenroll", err)
		return
	}
	writeJSON(w, http.StatusOK, AckResponse{Success: true})
}

// AdjustRisk handles POST /api/demo/vitals/{id}/{direction}.
//
//	@Summary		Demo: worsen or improve a subject's risk score
//	@Tags			demo
//	@Produce		json
//	@Param			id			path		string	true	"Subject ID"
//	@Param			direction	path		string	true	"worsen or improve"	Enums(worsen, improve)
//	@Success		200			{object}	AckResponse
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/demo/vitals/{id}/{direction} [post]
func (h *Handler) AdjustRisk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dir := model.RiskDirection(chi.URLParam(r, "direction"))
	if err := h.eng.AdjustRisk(r.Context(), id, dir); err != nil {
		h.writeError(w, "adjust risk", err)
		return
	}
	writeJSON(w, http.StatusOK, AckResponse{Success: true})
}

// SeedDemo handles POST /api/demo/setup.
//
//	@Summary		Demo: seed upstream demo data
//	@Tags			demo
//	@Produce		json
//	@Success		200	{object}	AckResponse
//	@Security		BearerAuth
//	@Router			/demo/setup [post]
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.SeedDemo(r.Context()); err != nil {
		h.writeError(w, "seed demo", err)
		return
	}
	writeJSON(w, http.StatusOK, AckResponse{Success: true})
}

// ClearAll handles POST /api/demo/clear.
//
//	@Summary		Demo: clear all tracked entities upstream
//	@Tags			demo
//	@Produce		json
//	@Success		200	{object}	AckResponse
//	@Security		BearerAuth
//	@Router			/demo/clear [post]
func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.ClearAll(r.Context()); err != nil {
		h.writeError(w, "clear all", err)
		return
	}
	writeJSON(w, http.StatusOK, AckResponse{Success: true})
}

// writeError maps the error taxonomy onto HTTP statuses. Transport failures
// surface as 502 so the caller can distinguish "upstream refused" from a
// local fault.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case apperr.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotConnected):
		writeJSON(w, http.StatusConflict, errorBody("not connected"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case apperr.IsTransport(err):
		slog.Warn(op+" failed upstream", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
