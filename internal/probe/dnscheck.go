package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/hamed0406/pulseops/internal/domain"
)

type DNSStatus struct {
	Domain        string
	HasAOrAAAA    bool
	IPs           []net.IP
	CNAME         string
	HasNS         bool
	Nameservers   []string
	Class         string // "NXDOMAIN" | "NO_A_RECORD" | "RESOLVES" | "SERVFAIL_or_TIMEOUT" | "INVALID_NAME"
	ResolverError string
}

// Resolver is the subset of *net.Resolver used by the DNS strategy.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// CheckDNS resolves domain and classifies the outcome. NS and CNAME lookups are
// only made when the address lookup fails, to tell NXDOMAIN from a zone
// without address records.
func CheckDNS(ctx context.Context, r Resolver, domain string) DNSStatus {
	s := DNSStatus{Domain: strings.TrimSpace(domain)}
	if s.Domain == "" || strings.Contains(s.Domain, "://") {
		s.Class = "INVALID_NAME"
		return s
	}

	ips, err := r.LookupIP(ctx, "ip", s.Domain)
	if err == nil && len(ips) > 0 {
		s.HasAOrAAAA = true
		s.IPs = ips
		s.Class = "RESOLVES"
		return s
	}
	if err != nil {
		var de *net.DNSError
		s.ResolverError = err.Error()
		if errors.As(err, &de) {
			if de.IsNotFound {
				s.Class = "NXDOMAIN"
			} else if de.IsTemporary || de.Timeout() {
				s.Class = "SERVFAIL_or_TIMEOUT"
			}
		}
	}

	if cname, err := r.LookupCNAME(ctx, s.Domain); err == nil && !strings.EqualFold(cname, s.Domain+".") {
		s.CNAME = strings.TrimSuffix(cname, ".")
	}

	if ns, err := r.LookupNS(ctx, s.Domain); err == nil && len(ns) > 0 {
		s.HasNS = true
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if s.Class == "NXDOMAIN" {
			s.Class = "NO_A_RECORD"
		}
	}

	if s.Class == "" {
		if s.HasNS {
			s.Class = "NO_A_RECORD"
		} else if s.ResolverError != "" {
			s.Class = "SERVFAIL_or_TIMEOUT"
		} else {
			s.Class = "NXDOMAIN"
		}
	}
	return s
}

// DNSChecker succeeds when the target's host resolves to at least one address.
type DNSChecker struct {
	Resolver Resolver
}

func NewDNSChecker() *DNSChecker {
	return &DNSChecker{Resolver: &net.Resolver{}}
}

func (d *DNSChecker) Check(ctx context.Context, t Target) domain.CheckResult {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	start := time.Now()
	host, _, err := parseHostPort(t.Address)
	if err != nil {
		return failed(start, err.Error())
	}
	st := CheckDNS(ctx, d.Resolver, host)
	if st.Class == "RESOLVES" {
		return domain.CheckResult{Success: true, ResponseTimeMS: elapsedMS(start)}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timedOut(start, t.Timeout)
	}
	msg := "DNS resolution failed for " + st.Domain + ": " + st.Class
	if st.ResolverError != "" {
		msg += " (" + st.ResolverError + ")"
	}
	return failed(start, msg)
}
