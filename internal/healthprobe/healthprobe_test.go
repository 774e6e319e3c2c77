package healthprobe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/forgebench/infersupervisor/internal/apierrors"
)

func portOf(t *testing.T, ts *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	p, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return p
}

func listenOnLoopback(t *testing.T, handler http.Handler) (*httptest.Server, int) {
	t.Helper()
	ts := httptest.NewUnstartedServer(handler)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ts.Listener = l
	ts.Start()
	return ts, portOf(t, ts)
}

func TestProbeOKJSON(t *testing.T) {
	ts, port := listenOnLoopback(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	p := New()
	if got := p.Probe(context.Background(), port, time.Second); got != StatusOK {
		t.Fatalf("status = %v, want ok", got)
	}
}

func TestProbeLoadingJSON(t *testing.T) {
	ts, port := listenOnLoopback(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"loading"}`))
	}))
	defer ts.Close()

	p := New()
	if got := p.Probe(context.Background(), port, time.Second); got != StatusLoading {
		t.Fatalf("status = %v, want loading", got)
	}
}

func TestProbeUnrecognizedJSONIsUnknown(t *testing.T) {
	ts, port := listenOnLoopback(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"banana"}`))
	}))
	defer ts.Close()

	p := New()
	if got := p.Probe(context.Background(), port, time.Second); got != StatusUnknown {
		t.Fatalf("status = %v, want unknown", got)
	}
}

func TestProbeNonJSONBodyIsOK(t *testing.T) {
	ts, port := listenOnLoopback(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text ok"))
	}))
	defer ts.Close()

	p := New()
	if got := p.Probe(context.Background(), port, time.Second); got != StatusOK {
		t.Fatalf("status = %v, want ok", got)
	}
}

func TestProbeNon2xxIsError(t *testing.T) {
	ts, port := listenOnLoopback(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	p := New()
	if got := p.Probe(context.Background(), port, time.Second); got != StatusError {
		t.Fatalf("status = %v, want error", got)
	}
}

func TestProbeConnectionRefusedIsUnknown(t *testing.T) {
	p := New()
	// Port 1 is privileged/unused in test sandboxes; nothing should be listening.
	if got := p.Probe(context.Background(), 1, 200*time.Millisecond); got != StatusUnknown {
		t.Fatalf("status = %v, want unknown", got)
	}
}

func TestWaitReadyZeroTimeoutFailsAfterOnePoll(t *testing.T) {
	attempts := 0
	ts, port := listenOnLoopback(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Write([]byte(`{"status":"loading"}`))
	}))
	defer ts.Close()

	p := New()
	err := p.WaitReady(context.Background(), port, 0, 10*time.Millisecond, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected HEALTH_TIMEOUT error")
	}
	reason, ok := apierrors.ReasonOf(err)
	if !ok || reason != apierrors.ReasonHealthTimeout {
		t.Fatalf("reason = %v, ok = %v, want HEALTH_TIMEOUT", reason, ok)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want exactly 1", attempts)
	}
}

func TestWaitReadySucceedsEventually(t *testing.T) {
	count := 0
	ts, port := listenOnLoopback(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		if count < 3 {
			w.Write([]byte(`{"status":"loading"}`))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	p := New()
	err := p.WaitReady(context.Background(), port, 5*time.Second, 10*time.Millisecond, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
}

func TestIsRespondingClosedPortIsFalse(t *testing.T) {
	p := New()
	if p.IsResponding(context.Background(), 2, 200*time.Millisecond) {
		t.Fatal("expected false for a closed port")
	}
}

func TestIsRespondingOpenPortIsTrue(t *testing.T) {
	ts, port := listenOnLoopback(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	p := New()
	if !p.IsResponding(context.Background(), port, time.Second) {
		t.Fatal("expected true for an open, responding port")
	}
}
