package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// HTTPInvoker posts procedure payloads as JSON to
// <baseURL>/procedures/<name> and decodes the {ok, message} envelope.
type HTTPInvoker struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// HTTPOption configures an HTTPInvoker.
type HTTPOption func(*HTTPInvoker)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(inv *HTTPInvoker) { inv.client = client }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(inv *HTTPInvoker) { inv.logger = logger }
}

// NewHTTPInvoker constructs an invoker against the remote-procedure endpoint.
func NewHTTPInvoker(baseURL string, opts ...HTTPOption) *HTTPInvoker {
	inv := &HTTPInvoker{
		baseURL: baseURL,
		// No client-level timeout: the race in Invoke owns the deadline and
		// the losing call is abandoned, not cancelled.
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

type outcome struct {
	resp *Response
	err  error
}

// Invoke races the remote call against a timer. If the timer fires first the
// in-flight call keeps running detached and its eventual result is dropped.
func (inv *HTTPInvoker) Invoke(ctx context.Context, procedure string, payload map[string]any, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ch := make(chan outcome, 1)
	go func() {
		// Detach from the caller's cancellation: a timed-out call is
		// abandoned, and the remote side may still apply the effect.
		resp, err := inv.call(context.WithoutCancel(ctx), procedure, payload)
		ch <- outcome{resp: resp, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		return out.resp, nil
	case <-timer.C:
		if inv.logger != nil {
			inv.logger.WarnContext(ctx, "remote procedure timed out, call abandoned",
				"procedure", procedure, "timeout", timeout)
		}
		return nil, NewError(ErrorTimeout, procedure,
			fmt.Sprintf("no response within %s; the remote effect is unknown", timeout), nil)
	case <-ctx.Done():
		return nil, NewError(ErrorTimeout, procedure, "caller context ended before response", ctx.Err())
	}
}

func (inv *HTTPInvoker) call(ctx context.Context, procedure string, payload map[string]any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(ErrorGeneric, procedure, "failed to encode payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inv.baseURL+"/procedures/"+procedure, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(ErrorGeneric, procedure, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := inv.client.Do(req)
	if err != nil {
		return nil, classifyTransport(procedure, err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return nil, NewError(ErrorUnauthorized, procedure, "remote procedure rejected credentials", nil)
	case httpResp.StatusCode >= 500:
		return nil, NewError(ErrorServiceUnavailable, procedure,
			fmt.Sprintf("remote procedure unavailable (status %d)", httpResp.StatusCode), nil)
	case httpResp.StatusCode >= 400:
		return nil, NewError(ErrorGeneric, procedure,
			fmt.Sprintf("remote procedure returned status %d", httpResp.StatusCode), nil)
	}

	var resp Response
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, 1<<20)).Decode(&resp); err != nil {
		return nil, NewError(ErrorGeneric, procedure, "failed to decode response envelope", err)
	}
	return &resp, nil
}

// classifyTransport maps transport-level failures onto the taxonomy.
func classifyTransport(procedure string, err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) || isURLError(err) {
		return NewError(ErrorNetworkUnavailable, procedure, "remote procedure endpoint unreachable", err)
	}
	return NewError(ErrorGeneric, procedure, "remote procedure call failed", err)
}

func isURLError(err error) bool {
	var ue *url.Error
	return errors.As(err, &ue)
}
