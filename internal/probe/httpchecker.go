package probe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hamed0406/livemonitor/internal/domain"
)

// drained before close so keep-alive connections can be reused
const maxDrain = 64 << 10

type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPChecker{
		Client: &http.Client{Timeout: timeout},
	}
}

// Check sends HEAD and, when the server answers 405, repeats the check with GET.
// Latency covers only the request whose status is classified.
func (h *HTTPChecker) Check(ctx context.Context, target string) CheckResult {
	status, latency, err := h.do(ctx, http.MethodHead, target)
	method := http.MethodHead
	if err == nil && status == http.StatusMethodNotAllowed {
		method = http.MethodGet
		status, latency, err = h.do(ctx, http.MethodGet, target)
	}
	if err != nil {
		var reqErr *requestError
		return CheckResult{
			LatencyMS: domain.FailedLatency,
			Method:    method,
			Message:   err.Error(),
			Attempts:  1,
			Permanent: errors.As(err, &reqErr),
		}
	}

	out := CheckResult{
		Success:    Success(status),
		LatencyMS:  domain.FailedLatency,
		StatusCode: status,
		Method:     method,
		Message:    http.StatusText(status),
		Attempts:   1,
	}
	if out.Success {
		out.LatencyMS = domain.RoundLatency(float64(latency) / float64(time.Millisecond))
	}
	return out
}

func (h *HTTPChecker) do(ctx context.Context, method, target string) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, 0, &requestError{err: err}
	}
	start := time.Now()
	resp, err := h.Client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	resp.Body.Close()
	return resp.StatusCode, latency, nil
}

// requestError means no request could be built, so nothing was sent.
type requestError struct{ err error }

func (e *requestError) Error() string { return "invalid request: " + e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }
