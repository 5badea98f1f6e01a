package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hamed0406/pulseops/internal/domain"
)

type HTTPChecker struct {
	Client *http.Client
}

// NewHTTPChecker returns a checker whose deadline comes from each Target, so the
// client itself carries no timeout.
func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{Client: &http.Client{}}
}

func (h *HTTPChecker) Check(ctx context.Context, t Target) domain.CheckResult {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Address, nil)
	if err != nil {
		return failed(start, err.Error())
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.Client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return timedOut(start, t.Timeout)
		}
		return failed(start, err.Error())
	}
	defer resp.Body.Close()

	out := domain.CheckResult{
		Success:        resp.StatusCode == t.ExpectedStatus,
		ResponseTimeMS: elapsedMS(start),
		StatusCode:     resp.StatusCode,
	}
	if !out.Success {
		out.ErrorMessage = fmt.Sprintf("Unexpected status code: %d", resp.StatusCode)
	}
	return out
}
