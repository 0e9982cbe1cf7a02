package probe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestHTTPChecker_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer s.Close()

	chk := NewHTTPChecker(2 * time.Second)
	out := chk.Check(context.Background(), s.URL)
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if out.StatusCode != 200 || out.Method != http.MethodHead {
		t.Fatalf("want HEAD 200, got %s %d", out.Method, out.StatusCode)
	}
	if out.LatencyMS < 0 {
		t.Fatalf("latency should be >= 0, got %f", out.LatencyMS)
	}
}

func TestHTTPChecker_Status500(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	chk := NewHTTPChecker(2 * time.Second)
	out := chk.Check(context.Background(), s.URL)
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if out.StatusCode != 500 {
		t.Fatalf("want status 500, got %d", out.StatusCode)
	}
	if out.LatencyMS != -1 {
		t.Fatalf("want -1 latency on failure, got %v", out.LatencyMS)
	}
}

func TestHTTPChecker_TimeoutIsFailure(t *testing.T) {
	release := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(200)
	}))
	defer s.Close()
	defer close(release)

	chk := NewHTTPChecker(50 * time.Millisecond)
	out := chk.Check(context.Background(), s.URL)
	if out.Success || out.LatencyMS != -1 {
		t.Fatalf("want failure due to timeout, got %+v", out)
	}
	if out.StatusCode != 0 {
		t.Fatalf("want status 0 on transport error, got %d", out.StatusCode)
	}
	if out.Message == "" {
		t.Fatalf("want non-empty error message")
	}
}

func TestHTTPChecker_ConnectionRefusedIsFailure(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := s.URL
	s.Close()

	out := NewHTTPChecker(time.Second).Check(context.Background(), addr)
	if out.Success || out.LatencyMS != -1 || out.StatusCode != 0 {
		t.Fatalf("want transport failure, got %+v", out)
	}
}

func TestHTTPChecker_HeadNotAllowedFallsBackToGet(t *testing.T) {
	var mu sync.Mutex
	var methods []string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.Method == http.MethodHead {
			time.Sleep(300 * time.Millisecond)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		time.Sleep(40 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()

	out := NewHTTPChecker(2*time.Second).Check(context.Background(), s.URL)
	if !out.Success || out.StatusCode != 200 || out.Method != http.MethodGet {
		t.Fatalf("want GET 200 after 405, got %+v", out)
	}
	// GET timing only: the slow HEAD must not be counted
	if out.LatencyMS < 40 || out.LatencyMS >= 250 {
		t.Fatalf("latency should reflect the GET attempt, got %v", out.LatencyMS)
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(methods, ",") != "HEAD,GET" {
		t.Fatalf("unexpected request sequence: %v", methods)
	}
}

// statusTransport answers every request with a fixed status, without a network.
type statusTransport struct {
	status int
	err    error
}

func (s statusTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &http.Response{
		StatusCode: s.status,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
		Request:    r,
	}, nil
}

func TestHTTPChecker_ClassificationBoundary(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{199, false},
		{200, true},
		{204, true},
		{299, true},
		{300, false},
		{404, false},
	}
	for _, c := range cases {
		chk := &HTTPChecker{Client: &http.Client{Transport: statusTransport{status: c.status}}}
		out := chk.Check(context.Background(), "https://example.test")
		if out.Success != c.want {
			t.Fatalf("status %d: success=%v want %v", c.status, out.Success, c.want)
		}
		if !c.want && out.LatencyMS != -1 {
			t.Fatalf("status %d: want -1 latency, got %v", c.status, out.LatencyMS)
		}
		if c.want && out.LatencyMS < 0 {
			t.Fatalf("status %d: want non-negative latency, got %v", c.status, out.LatencyMS)
		}
	}
}

func TestHTTPChecker_InvalidURI(t *testing.T) {
	out := NewHTTPChecker(time.Second).Check(context.Background(), "://bad")
	if out.Success || out.LatencyMS != -1 || !out.Permanent {
		t.Fatalf("want permanent failure on invalid uri, got %+v", out)
	}
}

func TestNew_InvalidURIIsNotRetried(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil, errors.New("unreachable")
	})
	chk := New(Options{Timeout: time.Second, Attempts: 5, Backoff: time.Hour}).(*RetryChecker)
	chk.Inner.(*HTTPChecker).Client.Transport = rt

	done := make(chan CheckResult, 1)
	go func() { done <- chk.Check(context.Background(), "://bad") }()
	select {
	case out := <-done:
		if out.Success || out.Attempts != 1 || !out.Permanent {
			t.Fatalf("want one permanent attempt, got %+v", out)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("invalid uri must not wait out the retry backoff")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("no request should reach the transport, got %d", calls)
	}
}

func TestNew_RetriesTransportErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset")
		}
		return statusTransport{status: 200}.RoundTrip(r)
	})

	chk := New(Options{Timeout: time.Second, Attempts: 5, Backoff: time.Millisecond}).(*RetryChecker)
	chk.Inner.(*HTTPChecker).Client.Transport = rt

	out := chk.Check(context.Background(), "https://example.test")
	if !out.Success || out.Attempts != 3 {
		t.Fatalf("want success on third attempt, got %+v", out)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
