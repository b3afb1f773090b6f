// Package gateway wraps the upstream registry/tracker HTTP API. It is
// stateless: every method is a single request/response exchange, and every
// transport failure or non-2xx response is translated into a uniform
// *apperr.TransportError. Upstream payload shapes are normalized here so the
// rest of the engine only ever sees the canonical model types.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aldwick/wardview/internal/apperr"
	"github.com/aldwick/wardview/internal/model"
)

// Client is the abstract gateway contract the engine depends on. The HTTP
// implementation below is the production one; tests inject fakes.
type Client interface {
	Subjects(ctx context.Context) ([]model.SubjectRecord, error)
	Subject(ctx context.Context, id string) (*model.SubjectRecord, error)
	SubjectsByBand(ctx context.Context, band model.RiskBand) ([]model.SubjectRecord, error)
	Tracked(ctx context.Context) ([]model.TrackedEntity, error)
	TrackedEnrolled(ctx context.Context) ([]model.TrackedEntity, error)
	TrackedUnidentified(ctx context.Context) ([]model.TrackedEntity, error)
	Stats(ctx context.Context) (*model.AggregateStats, error)
	Layout(ctx context.Context) (*model.SpatialLayout, error)
	Health(ctx context.Context) error

	Enroll(ctx context.Context, trackID, subjectID string) error
	Unenroll(ctx context.Context, trackID string) error
	AdjustRisk(ctx context.Context, subjectID string, dir model.RiskDirection) error
	SeedDemo(ctx context.Context) error
	ClearAll(ctx context.Context) error
}

// HTTPClient talks to the upstream service over HTTP/JSON.
type HTTPClient struct {
	rc *resty.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a gateway client for the given base URL. No retries
// are configured: read retries are the next poll tick, mutation retries are a
// user re-click.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPClient{rc: rc}
}

// get issues a GET and decodes the 2xx body into out.
func (c *HTTPClient) get(ctx context.Context, op, path string, out any) error {
	resp, err := c.rc.R().SetContext(ctx).SetResult(out).Get(path)
	return wrap(op, resp, err)
}

// wrap converts a resty response/error pair into the uniform failure signal.
// Error bodies are never parsed.
func wrap(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &apperr.TransportError{Op: op, Err: err}
	}
	if resp.IsError() {
		return &apperr.TransportError{Op: op, Status: resp.StatusCode()}
	}
	return nil
}

// Subjects lists all subject records.
func (c *HTTPClient) Subjects(ctx context.Context) ([]model.SubjectRecord, error) {
	var dtos []subjectDTO
	if err := c.get(ctx, "list subjects", "/subjects", &dtos); err != nil {
		return nil, err
	}
	return normalizeSubjects(dtos), nil
}

// Subject fetches a single subject record.
func (c *HTTPClient) Subject(ctx context.Context, id string) (*model.SubjectRecord, error) {
	var dto subjectDTO
	if err := c.get(ctx, "get subject", "/subjects/"+id, &dto); err != nil {
		return nil, err
	}
	rec := dto.normalize()
	return &rec, nil
}

// SubjectsByBand lists subjects whose derived band matches.
func (c *HTTPClient) SubjectsByBand(ctx context.Context, band model.RiskBand) ([]model.SubjectRecord, error) {
	var dtos []subjectDTO
	if err := c.get(ctx, "list subjects by band", "/subjects/risk/"+string(band), &dtos); err != nil {
		return nil, err
	}
	return normalizeSubjects(dtos), nil
}

// Tracked lists all currently tracked entities, normalized into the canonical
// shape (layout-space position, canonical entity kind).
func (c *HTTPClient) Tracked(ctx context.Context) ([]model.TrackedEntity, error) {
	var dtos []trackedDTO
	if err := c.get(ctx, "list tracked", "/tracked", &dtos); err != nil {
		return nil, err
	}
	return normalizeTracked(dtos), nil
}

// TrackedEnrolled lists tracked entities that carry a subject link.
func (c *HTTPClient) TrackedEnrolled(ctx context.Context) ([]model.TrackedEntity, error) {
	var dtos []trackedDTO
	if err := c.get(ctx, "list tracked enrolled", "/tracked/subjects", &dtos); err != nil {
		return nil, err
	}
	return normalizeTracked(dtos), nil
}

// TrackedUnidentified lists tracked entities without a subject link.
func (c *HTTPClient) TrackedUnidentified(ctx context.Context) ([]model.TrackedEntity, error) {
	var dtos []trackedDTO
	if err := c.get(ctx, "list tracked unidentified", "/tracked/unidentified", &dtos); err != nil {
		return nil, err
	}
	return normalizeTracked(dtos), nil
}

// Stats fetches the upstream aggregate counts.
func (c *HTTPClient) Stats(ctx context.Context) (*model.AggregateStats, error) {
	var dto statsDTO
	if err := c.get(ctx, "get stats", "/stats", &dto); err != nil {
		return nil, err
	}
	stats := dto.normalize()
	return &stats, nil
}

// Layout fetches the spatial layout. Callers treat failure as optional.
func (c *HTTPClient) Layout(ctx context.Context) (*model.SpatialLayout, error) {
	var dto layoutDTO
	if err := c.get(ctx, "get layout", "/layout", &dto); err != nil {
		return nil, err
	}
	layout := dto.normalize()
	return &layout, nil
}

// Health probes the upstream health endpoint.
func (c *HTTPClient) Health(ctx context.Context) error {
	resp, err := c.rc.R().SetContext(ctx).Get("/health")
	return wrap("health", resp, err)
}

// Enroll links a tracked entity to a subject record. Upstream treats it as an
// upsert; a duplicate error is surfaced as a plain failure, never retried.
func (c *HTTPClient) Enroll(ctx context.Context, trackID, subjectID string) error {
	body := map[string]string{"track_id": trackID, "subject_id": subjectID}
	resp, err := c.rc.R().SetContext(ctx).SetBody(body).Post("/enroll")
	return wrap("enroll", resp, err)
}

// Unenroll clears the subject link from a tracked entity.
func (c *HTTPClient) Unenroll(ctx context.Context, trackID string) error {
	resp, err := c.rc.R().SetContext(ctx).Delete("/enroll/" + trackID)
	return wrap("unenroll", resp, err)
}

// AdjustRisk applies a fixed ±2 step to a subject's risk score upstream,
// clamped to [0,12]. The canonical direction tokens are translated to the
// wire's vocabulary here, same discipline as the coordinate normalization.
func (c *HTTPClient) AdjustRisk(ctx context.Context, subjectID string, dir model.RiskDirection) error {
	wire, err := wireDirection(dir)
	if err != nil {
		return err
	}
	resp, rerr := c.rc.R().SetContext(ctx).Post(fmt.Sprintf("/demo/vitals/%s/%s", subjectID, wire))
	return wrap("adjust risk", resp, rerr)
}

// SeedDemo loads the upstream demo data set.
func (c *HTTPClient) SeedDemo(ctx context.Context) error {
	resp, err := c.rc.R().SetContext(ctx).Post("/demo/setup")
	return wrap("seed demo", resp, err)
}

// ClearAll removes all tracked entities upstream.
func (c *HTTPClient) ClearAll(ctx context.Context) error {
	resp, err := c.rc.R().SetContext(ctx).Post("/demo/clear")
	return wrap("clear all", resp, err)
}
