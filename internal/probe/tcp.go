package probe

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/hamed0406/pulseops/internal/domain"
)

// TCPChecker succeeds when a TCP connection to the target's host:port is
// established before the deadline.
type TCPChecker struct {
	Dialer *net.Dialer
}

func NewTCPChecker() *TCPChecker {
	return &TCPChecker{Dialer: &net.Dialer{}}
}

func (c *TCPChecker) Check(ctx context.Context, t Target) domain.CheckResult {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	start := time.Now()
	host, port, err := parseHostPort(t.Address)
	if err != nil {
		return failed(start, err.Error())
	}
	conn, err := c.Dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return timedOut(start, t.Timeout)
		}
		return failed(start, err.Error())
	}
	_ = conn.Close()
	return domain.CheckResult{Success: true, ResponseTimeMS: elapsedMS(start)}
}

// parseHostPort accepts URLs, host:port pairs and bare hosts. The port defaults
// to 80 for http and 443 otherwise.
func parseHostPort(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", err
		}
		if u.Hostname() == "" {
			return "", "", errors.New("no host in target " + raw)
		}
		port := u.Port()
		if port == "" {
			port = "443"
			if u.Scheme == "http" {
				port = "80"
			}
		}
		return u.Hostname(), port, nil
	}
	if host, port, err := net.SplitHostPort(raw); err == nil {
		return host, port, nil
	}
	if raw == "" {
		return "", "", errors.New("empty target")
	}
	return raw, "443", nil
}
