package probe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPingChecker_HeadAgainstHost(t *testing.T) {
	var method, path string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()

	out := NewPingChecker().Check(context.Background(), Target{Address: s.URL + "/deep/path?q=1", Timeout: time.Second})
	if !out.Success || out.StatusCode != 200 {
		t.Fatalf("want success, got %+v", out)
	}
	if method != http.MethodHead || path != "/" {
		t.Fatalf("want HEAD /, got %s %s", method, path)
	}
}

func TestPingChecker_ErrorStatus(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer s.Close()

	out := NewPingChecker().Check(context.Background(), Target{Address: s.URL, Timeout: time.Second})
	if out.Success || out.StatusCode != 500 {
		t.Fatalf("want failure with 500, got %+v", out)
	}
}

func TestHostURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://example.com/a/b", "https://example.com/"},
		{"http://127.0.0.1:8080/x", "http://127.0.0.1:8080/"},
		{"example.com", "https://example.com/"},
	}
	for _, c := range cases {
		got, err := hostURL(c.in)
		if err != nil || got != c.want {
			t.Fatalf("hostURL(%q)=%q,%v want %q", c.in, got, err, c.want)
		}
	}
}

func TestTCPChecker_ConnectAndRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	addr := ln.Addr().String()

	chk := NewTCPChecker()
	out := chk.Check(context.Background(), Target{Address: addr, Timeout: time.Second})
	if !out.Success {
		t.Fatalf("want connect success, got %+v", out)
	}
	out = chk.Check(context.Background(), Target{Address: "tcp://" + addr, Timeout: time.Second})
	if !out.Success {
		t.Fatalf("want connect success via URL form, got %+v", out)
	}

	ln.Close()
	out = chk.Check(context.Background(), Target{Address: addr, Timeout: time.Second})
	if out.Success || out.ErrorMessage == "" {
		t.Fatalf("want refused failure, got %+v", out)
	}
}

func TestParseHostPort(t *testing.T) {
	cases := []struct{ in, host, port string }{
		{"https://example.com", "example.com", "443"},
		{"http://example.com", "example.com", "80"},
		{"http://example.com:8081/x", "example.com", "8081"},
		{"example.com:8443", "example.com", "8443"},
		{"example.com", "example.com", "443"},
	}
	for _, c := range cases {
		h, p, err := parseHostPort(c.in)
		if err != nil || h != c.host || p != c.port {
			t.Fatalf("parseHostPort(%q)=(%q,%q,%v) want (%q,%q)", c.in, h, p, err, c.host, c.port)
		}
	}
	if _, _, err := parseHostPort(""); err == nil {
		t.Fatalf("want error on empty target")
	}
}

type fakeResolver struct {
	ips   []net.IP
	ipErr error
	ns    []*net.NS
}

func (f *fakeResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	return f.ips, f.ipErr
}
func (f *fakeResolver) LookupCNAME(ctx context.Context, host string) (string, error) {
	return host + ".", nil
}
func (f *fakeResolver) LookupNS(ctx context.Context, name string) ([]*net.NS, error) {
	if f.ns == nil {
		return nil, errors.New("no ns")
	}
	return f.ns, nil
}

func TestDNSChecker_Resolves(t *testing.T) {
	d := &DNSChecker{Resolver: &fakeResolver{ips: []net.IP{net.ParseIP("93.184.216.34")}}}
	out := d.Check(context.Background(), Target{Address: "https://example.com/status", Timeout: time.Second})
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
}

func TestDNSChecker_Classifies(t *testing.T) {
	nx := &net.DNSError{Err: "no such host", Name: "missing.example", IsNotFound: true}

	d := &DNSChecker{Resolver: &fakeResolver{ipErr: nx}}
	out := d.Check(context.Background(), Target{Address: "missing.example", Timeout: time.Second})
	if out.Success || !strings.Contains(out.ErrorMessage, "NXDOMAIN") {
		t.Fatalf("want NXDOMAIN failure, got %+v", out)
	}

	d = &DNSChecker{Resolver: &fakeResolver{ipErr: nx, ns: []*net.NS{{Host: "ns1.example."}}}}
	out = d.Check(context.Background(), Target{Address: "missing.example", Timeout: time.Second})
	if out.Success || !strings.Contains(out.ErrorMessage, "NO_A_RECORD") {
		t.Fatalf("want NO_A_RECORD failure, got %+v", out)
	}
}

func TestCheckDNS_InvalidName(t *testing.T) {
	st := CheckDNS(context.Background(), &fakeResolver{}, " ")
	if st.Class != "INVALID_NAME" {
		t.Fatalf("want INVALID_NAME, got %s", st.Class)
	}
}
