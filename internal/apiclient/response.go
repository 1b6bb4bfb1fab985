package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/knowledge-e2e/internal/errs"
	"github.com/kuitang/knowledge-e2e/internal/model"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %d response: %w", r.StatusCode, err)
	}
	return nil
}

// Map decodes a JSON object body.
func (r *Response) Map() (map[string]any, error) {
	var out map[string]any
	if err := r.JSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Text returns the raw body.
func (r *Response) Text() string {
	return string(r.Body)
}

// ContentType returns the Content-Type header.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ErrorBody decodes the API's error envelope. A body that is not an envelope yields a zero value.
func (r *Response) ErrorBody() model.ErrorBody {
	var body model.ErrorBody
	_ = json.Unmarshal(r.Body, &body)
	return body
}

// Err converts a non-2xx response into a coded error. 2xx responses return nil.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	msg := r.ErrorBody().Error
	if msg == "" {
		msg = strings.TrimSpace(http.StatusText(r.StatusCode))
	}
	return errs.New(errs.FromStatus(r.StatusCode), fmt.Sprintf("api returned %d: %s", r.StatusCode, msg))
}
