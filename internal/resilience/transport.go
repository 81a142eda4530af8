package resilience

import (
	"fmt"
	"net/http"
)

// Transport is an http.RoundTripper that fails fast with ErrOpenCircuit while
// the breaker is open. Transport errors and 5xx responses count as failures;
// everything else, including 4xx, counts as success. It never retries.
type Transport struct {
	Base    http.RoundTripper
	Breaker *Breaker
}

// RoundTrip implements http.RoundTripper.
func (t Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Breaker == nil {
		return base.RoundTrip(req)
	}
	ctx := req.Context()
	if !t.Breaker.Allow(ctx) {
		BreakerRejectedTotal.WithLabelValues(t.Breaker.targetLabel()).Inc()
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Host, ErrOpenCircuit)
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		t.Breaker.Report(ctx, false)
		return nil, err
	}
	t.Breaker.Report(ctx, resp.StatusCode < http.StatusInternalServerError)
	return resp, nil
}
