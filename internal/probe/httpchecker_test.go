package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPChecker_ExpectedStatus(t *testing.T) {
	var ua string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), Target{Address: s.URL, ExpectedStatus: 200, Timeout: 2 * time.Second})
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if out.StatusCode != 200 {
		t.Fatalf("want status 200, got %d", out.StatusCode)
	}
	if out.ErrorMessage != "" {
		t.Fatalf("want no error message, got %q", out.ErrorMessage)
	}
	if out.ResponseTimeMS < 0 {
		t.Fatalf("response time should be >= 0, got %d", out.ResponseTimeMS)
	}
	if ua != userAgent {
		t.Fatalf("want user agent %q, got %q", userAgent, ua)
	}
}

func TestHTTPChecker_UnexpectedStatus(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", 503)
	}))
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), Target{Address: s.URL, ExpectedStatus: 200, Timeout: 2 * time.Second})
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if out.StatusCode != 503 {
		t.Fatalf("want status 503, got %d", out.StatusCode)
	}
	if out.ErrorMessage != "Unexpected status code: 503" {
		t.Fatalf("unexpected message %q", out.ErrorMessage)
	}
}

func TestHTTPChecker_NonDefaultExpectedStatus(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), Target{Address: s.URL, ExpectedStatus: 204, Timeout: time.Second})
	if !out.Success || out.StatusCode != 204 {
		t.Fatalf("want success with 204, got %+v", out)
	}
}

func TestHTTPChecker_TimeoutReportsDeadline(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer s.Close()

	out := NewHTTPChecker().Check(context.Background(), Target{Address: s.URL, ExpectedStatus: 200, Timeout: time.Second})
	if out.Success {
		t.Fatalf("want failure due to timeout, got %+v", out)
	}
	if out.StatusCode != 0 {
		t.Fatalf("want status 0 on timeout, got %d", out.StatusCode)
	}
	if out.ErrorMessage != "Request timed out after 1s" {
		t.Fatalf("unexpected message %q", out.ErrorMessage)
	}
	if out.ResponseTimeMS < 900 || out.ResponseTimeMS > 3000 {
		t.Fatalf("response time should track the deadline, got %dms", out.ResponseTimeMS)
	}
}

func TestHTTPChecker_TransportError(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := s.URL
	s.Close()

	out := NewHTTPChecker().Check(context.Background(), Target{Address: addr, ExpectedStatus: 200, Timeout: time.Second})
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if out.ErrorMessage == "" || strings.Contains(out.ErrorMessage, "timed out") {
		t.Fatalf("want transport error message, got %q", out.ErrorMessage)
	}
}
