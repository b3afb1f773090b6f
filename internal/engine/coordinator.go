package engine

import (
	"context"
	"errors"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/aldwick/wardview/internal/apperr"
	"github.com/aldwick/wardview/internal/metrics"
	"github.com/aldwick/wardview/internal/model"
)

// Mutation coordinator. Every mutating call is serialized by mutMu and
// followed by an unconditional forced re-fetch, so the next read reflects
// authoritative upstream state rather than an optimistic local patch.
// Failures come back as values; nothing is retried automatically.

// Enroll links a tracked entity to a subject record. Empty ids are rejected
// before any network call.
func (e *Engine) Enroll(ctx context.Context, trackID, subjectID string) error {
	if err := validateIDs(map[string]string{"track_id": trackID, "subject_id": subjectID}); err != nil {
		return err
	}
	return e.mutate(ctx, "enroll", func(ctx context.Context) error {
		return e.gw.Enroll(ctx, trackID, subjectID)
	})
}

// Unenroll clears a tracked entity's subject link.
func (e *Engine) Unenroll(ctx context.Context, trackID string) error {
	if err := validateIDs(map[string]string{"track_id": trackID}); err != nil {
		return err
	}
	return e.mutate(ctx, "unenroll", func(ctx context.Context) error {
		return e.gw.Unenroll(ctx, trackID)
	})
}

// AdjustRisk applies a ±2 step to a subject's risk score upstream. It is a
// demo affordance and is rejected locally when the link is not live instead
// of being attempted against an unreachable upstream.
func (e *Engine) AdjustRisk(ctx context.Context, subjectID string, dir model.RiskDirection) error {
	if err := validateIDs(map[string]string{"subject_id": subjectID}); err != nil {
		return err
	}
	if !dir.Valid() {
		return &apperr.ValidationError{Msg: "direction must be worsen or improve"}
	}
	if state, _ := e.State(); state != model.ConnLive {
		return apperr.ErrNotConnected
	}
	return e.mutate(ctx, "adjust_risk", func(ctx context.Context) error {
		return e.gw.AdjustRisk(ctx, subjectID, dir)
	})
}

// SeedDemo loads the upstream demo data set.
func (e *Engine) SeedDemo(ctx context.Context) error {
	return e.mutate(ctx, "seed_demo", func(ctx context.Context) error {
		return e.gw.SeedDemo(ctx)
	})
}

// ClearAll removes all tracked entities upstream.
func (e *Engine) ClearAll(ctx context.Context) error {
	return e.mutate(ctx, "clear_all", func(ctx context.Context) error {
		return e.gw.ClearAll(ctx)
	})
}

// mutate runs one serialized mutation and then forces a re-fetch regardless
// of the mutation outcome. A concurrently running fetch makes the forced one
// redundant, so an in-flight skip is tolerated.
func (e *Engine) mutate(ctx context.Context, op string, fn func(context.Context) error) error {
	e.mutMu.Lock()
	defer e.mutMu.Unlock()

	err := fn(ctx)
	metrics.RecordMutation(op, err)
	if err != nil {
		e.logger.Warn("mutation failed", slog.String("op", op), slog.String("error", err.Error()))
	}

	if rerr := e.Refresh(ctx); rerr != nil && !errors.Is(rerr, apperr.ErrRefreshInFlight) && !apperr.IsTransport(rerr) {
		e.logger.Warn("post-mutation refresh failed", slog.String("op", op), slog.String("error", rerr.Error()))
	}
	return err
}

// validateIDs rejects empty identifiers with a ValidationError.
func validateIDs(fields map[string]string) error {
	errs := validation.Errors{}
	for name, value := range fields {
		errs[name] = validation.Validate(value, validation.Required)
	}
	if err := errs.Filter(); err != nil {
		return &apperr.ValidationError{Msg: err.Error()}
	}
	return nil
}
