package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hamed0406/pulseops/internal/domain"
)

// PingChecker approximates ICMP reachability with a HEAD request against the
// target's host. Raw ICMP needs privileges the process usually does not have.
type PingChecker struct {
	Client *http.Client
}

func NewPingChecker() *PingChecker {
	return &PingChecker{Client: &http.Client{}}
}

func (p *PingChecker) Check(ctx context.Context, t Target) domain.CheckResult {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	start := time.Now()
	base, err := hostURL(t.Address)
	if err != nil {
		return failed(start, err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, base, nil)
	if err != nil {
		return failed(start, err.Error())
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.Client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return timedOut(start, t.Timeout)
		}
		return failed(start, err.Error())
	}
	defer resp.Body.Close()

	out := domain.CheckResult{
		Success:        resp.StatusCode >= 200 && resp.StatusCode < 300,
		ResponseTimeMS: elapsedMS(start),
		StatusCode:     resp.StatusCode,
	}
	if !out.Success {
		out.ErrorMessage = fmt.Sprintf("Unexpected status code: %d", resp.StatusCode)
	}
	return out
}

// hostURL reduces a target to scheme://host[:port]/, defaulting to https.
func hostURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in target %q", raw)
	}
	return u.Scheme + "://" + u.Host + "/", nil
}
