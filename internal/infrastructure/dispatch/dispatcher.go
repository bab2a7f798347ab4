// Package dispatch implements the bounded upstream HTTP client that
// forwards the merged request and reads a capped, content-type-aware
// response. Adapted from a transparent reverse proxy into a structured
// request/response dispatcher since the orchestrator must inspect and
// re-wrap the upstream body.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	domainerrors "blinkgate.backend/internal/domain/errors"
	"blinkgate.backend/pkg/httpjson"
)

// ErrResponseTooLarge is raised when the upstream body exceeds MaxResponseBytes.
var ErrResponseTooLarge = errors.New("upstream response exceeded the size cap")

// Dispatcher is a bounded HTTP client used for every upstream forward.
type Dispatcher struct {
	client          *http.Client
	maxResponseSize int64
}

// NewDispatcher builds a Dispatcher with the given hard deadline and
// response size cap.
func NewDispatcher(timeout time.Duration, maxResponseSize int64) *Dispatcher {
	return &Dispatcher{
		client:          &http.Client{Timeout: timeout},
		maxResponseSize: maxResponseSize,
	}
}

// Result is the decoded, content-type-classified upstream response.
type Result struct {
	StatusCode int
	Data       interface{}
}

// Dispatch forwards method/url with the merged JSON body and classifies
// the response. Cancellation from ctx propagates to the in-flight request;
// a context deadline exceeded surfaces as ErrUpstreamTimeout.
func (d *Dispatcher) Dispatch(ctx context.Context, method, url string, body map[string]interface{}) (*Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domainerrors.ErrUpstreamTimeout
		}
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrUpstreamFailed, err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, d.maxResponseSize+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > d.maxResponseSize {
		return nil, ErrResponseTooLarge
	}

	data := httpjson.DecodeByContentType(resp.Header.Get("Content-Type"), raw)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{StatusCode: resp.StatusCode, Data: data},
			fmt.Errorf("%w: %s", domainerrors.ErrUpstreamFailed, httpjson.StatusMessage(resp.StatusCode))
	}

	return &Result{StatusCode: resp.StatusCode, Data: data}, nil
}
