package apiclient

import (
	"context"
	"net/url"
	"strconv"

	"github.com/kuitang/knowledge-e2e/internal/model"
)

// ListParams filters and pages GET /api/sources. Zero fields are omitted.
type ListParams struct {
	Limit  int
	Offset int
	Type   model.SourceType
	Status string
	Search string
}

// Query renders the params as a query string with a leading '?', or "" when empty.
func (p ListParams) Query() string {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 || p.Limit > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Type != "" {
		q.Set("type", string(p.Type))
	}
	if p.Status != "" {
		q.Set("status", p.Status)
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// decode returns a coded error for non-2xx responses and otherwise decodes into T.
func decode[T any](resp *Response, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var out T
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSource posts a source. body is usually a model.Source or a fixture map.
func (c *Client) CreateSource(ctx context.Context, body any) (*model.Source, error) {
	return decode[model.Source](c.Post(ctx, "/api/sources", body))
}

// GetSource fetches one source.
func (c *Client) GetSource(ctx context.Context, id string) (*model.Source, error) {
	return decode[model.Source](c.Get(ctx, "/api/sources/"+url.PathEscape(id)))
}

// ListSources fetches one page of sources.
func (c *Client) ListSources(ctx context.Context, params ListParams) (*model.SourceList, error) {
	return decode[model.SourceList](c.Get(ctx, "/api/sources"+params.Query()))
}

// UpdateSource applies a partial update.
func (c *Client) UpdateSource(ctx context.Context, id string, patch map[string]any) (*model.Source, error) {
	return decode[model.Source](c.Patch(ctx, "/api/sources/"+url.PathEscape(id), patch))
}

// DeleteSource removes a source.
func (c *Client) DeleteSource(ctx context.Context, id string) error {
	resp, err := c.Delete(ctx, "/api/sources/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	return resp.Err()
}

// ValidateSource runs connectivity and permission checks for a source.
func (c *Client) ValidateSource(ctx context.Context, id string) (*model.Validation, error) {
	return decode[model.Validation](c.Post(ctx, "/api/sources/"+url.PathEscape(id)+"/validate", nil))
}

// StartExtraction starts an extraction job for a source.
func (c *Client) StartExtraction(ctx context.Context, sourceID string) (*model.Job, error) {
	return decode[model.Job](c.Post(ctx, "/api/extract/"+url.PathEscape(sourceID), nil))
}

// GetJob fetches a job record.
func (c *Client) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return decode[model.Job](c.Get(ctx, "/api/jobs/"+url.PathEscape(jobID)))
}

// Health fetches the health report. A 503 still carries a report and is decoded.
func (c *Client) Health(ctx context.Context) (*model.Health, *Response, error) {
	resp, err := c.Get(ctx, "/health")
	if err != nil {
		return nil, nil, err
	}
	var h model.Health
	if err := resp.JSON(&h); err != nil {
		return nil, resp, err
	}
	return &h, resp, nil
}
