// Package healthprobe implements the HTTP liveness/readiness polling
// protocol from spec.md §4.3: a single probe, an exponential-backoff
// waitReady loop, and a short-timeout isResponding check used for
// port-in-use detection.
package healthprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/forgebench/infersupervisor/internal/apierrors"
	"golang.org/x/time/rate"
)

// Status is the outcome of a single probe.
type Status string

const (
	StatusOK      Status = "ok"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
	StatusUnknown Status = "unknown"
)

type healthBody struct {
	Status string `json:"status"`
}

// Prober issues GET /health requests against 127.0.0.1:port.
type Prober struct {
	client *http.Client

	// limiter throttles wouldNeedOffload-style tight poll loops from a UI;
	// it does not gate waitReady, which needs to probe on its own schedule.
	limiter *rate.Limiter
}

// New returns a Prober whose Allow limiter permits 20 calls per second
// with a burst of 5.
func New() *Prober {
	return &Prober{
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(20), 5),
	}
}

// Probe issues one GET /health with the given timeout and classifies the
// outcome per §4.3's table.
func (p *Prober) Probe(ctx context.Context, port int, timeout time.Duration) Status {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusUnknown
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return StatusUnknown
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusError
	}

	var body healthBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		// 200 with a non-JSON (or empty) body counts as ok.
		return StatusOK
	}

	switch Status(body.Status) {
	case StatusOK, StatusLoading, StatusError:
		return Status(body.Status)
	default:
		return StatusUnknown
	}
}

// WaitReady polls with exponential backoff (×1.5, capped at maxDelay) until
// Probe reports ok, or fails with HEALTH_TIMEOUT once totalTimeout elapses.
func (p *Prober) WaitReady(ctx context.Context, port int, totalTimeout, initialDelay, maxDelay time.Duration) error {
	if initialDelay <= 0 {
		initialDelay = 100 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}

	start := time.Now()
	delay := initialDelay
	attempts := 0

	for {
		attempts++
		status := p.Probe(ctx, port, shortRequestTimeout(delay))
		if status == StatusOK {
			return nil
		}

		if time.Since(start) >= totalTimeout {
			return apierrors.Serverf(apierrors.ReasonHealthTimeout, "server on port %d did not become ready within %s", port, totalTimeout).
				WithDetails(map[string]any{"port": port, "attempts": attempts})
		}

		select {
		case <-ctx.Done():
			return apierrors.Wrap(apierrors.CodeServerError, "wait for readiness cancelled", ctx.Err())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * 1.5)
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// shortRequestTimeout bounds a single probe's HTTP timeout: the backoff
// delay, but never less than 2s, so a hung connection cannot stall a probe
// indefinitely.
func shortRequestTimeout(delay time.Duration) time.Duration {
	if delay < 2*time.Second {
		return 2 * time.Second
	}
	return delay
}

// IsResponding issues a single short probe and reports whether anything
// answered at all — used for port-in-use detection before a start.
func (p *Prober) IsResponding(ctx context.Context, port int, short time.Duration) bool {
	if short <= 0 {
		short = 2 * time.Second
	}
	return p.Probe(ctx, port, short) != StatusUnknown
}

// Allow reports whether a caller-facing poll (e.g. a UI repeatedly calling
// wouldNeedOffload) may proceed right now, per the rate limiter.
func (p *Prober) Allow() bool {
	return p.limiter.Allow()
}
