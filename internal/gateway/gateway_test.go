package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ackinacki-farmer/internal/logging"
	"github.com/ackinacki-farmer/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

func newTestGateway(t *testing.T, sleeper *sleepRecorder) (*Gateway, string) {
	t.Helper()

	logPath := filepath.Join(t.TempDir(), "errorLog.txt")
	errorLog, err := logging.OpenErrorLog(logPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { errorLog.Close() })

	gw := New(Options{
		Timeout: 5 * time.Second,
		Backoff: Backoff{
			Attempts: 3,
			MinDelay: 4 * time.Second,
			MaxDelay: 10 * time.Second,
			Sleep:    sleeper.sleep,
		},
		ErrorLog: errorLog,
		Metrics:  metrics.NewCollector("test", prometheus.NewRegistry()),
	})
	return gw, logPath
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func TestDoMergesHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Tg-Auth"); got != "token-1" {
			t.Errorf("Tg-Auth: got %q; want %q", got, "token-1")
		}
		if got := r.Header.Get("Origin"); got != "https://t.ackinacki.com" {
			t.Errorf("Origin: got %q", got)
		}
		if got := r.Header.Get("Accept"); got != "text/plain" {
			t.Errorf("Accept override: got %q; want %q", got, "text/plain")
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	gw, _ := newTestGateway(t, &sleepRecorder{})
	res := gw.Do(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Headers: map[string]string{"Tg-Auth": "token-1", "Accept": "text/plain"},
	})

	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.Status != http.StatusOK || res.Attempts != 1 {
		t.Errorf("got status %d attempts %d; want 200 and 1", res.Status, res.Attempts)
	}

	var body struct{ OK bool }
	if err := res.Decode(&body); err != nil || !body.OK {
		t.Errorf("Decode: got %+v, %v", body, err)
	}
}

func TestDoSendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type: got %q", ct)
		}
		data, _ := io.ReadAll(r.Body)
		switch r.Method {
		case http.MethodPatch:
			var body map[string]bool
			if err := json.Unmarshal(data, &body); err != nil || !body["is_adult"] {
				t.Errorf("PATCH body: got %s", data)
			}
		case http.MethodPost:
			if string(data) != "{}" {
				t.Errorf("empty POST body: got %q; want %q", data, "{}")
			}
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	gw, _ := newTestGateway(t, &sleepRecorder{})
	ctx := context.Background()

	if res := gw.Do(ctx, Request{Method: http.MethodPatch, URL: srv.URL, Body: map[string]bool{"is_adult": true}}); !res.Success {
		t.Errorf("PATCH failed: %s", res.Error)
	}
	if res := gw.Do(ctx, Request{Method: http.MethodPost, URL: srv.URL}); !res.Success {
		t.Errorf("POST failed: %s", res.Error)
	}
}

func TestDoTransportFailureExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sleeper := &sleepRecorder{}
	gw, logPath := newTestGateway(t, sleeper)

	res := gw.Do(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     url + "/users/me",
		Retry:   true,
		Account: "account 1",
	})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts: got %d; want %d", res.Attempts, 3)
	}
	if res.Status != 0 {
		t.Errorf("Status: got %d; want 0 for a transport failure", res.Status)
	}
	if len(sleeper.calls) != 2 {
		t.Fatalf("sleeps: got %d; want %d", len(sleeper.calls), 2)
	}
	for _, d := range sleeper.calls {
		if d < 4*time.Second || d > 10*time.Second {
			t.Errorf("backoff %v outside [4s, 10s]", d)
		}
	}

	lines := readLines(t, logPath)
	if len(lines) != 3 {
		t.Fatalf("error log lines: got %d; want %d", len(lines), 3)
	}
	for i, line := range lines {
		if !strings.Contains(line, "account 1 | direct") {
			t.Errorf("line %d missing account/proxy pair: %q", i, line)
		}
		if !strings.Contains(line, "GET "+url+"/users/me") {
			t.Errorf("line %d missing request: %q", i, line)
		}
	}
}

func TestDoNoRetryByDefault(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"farm already started"}`))
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	gw, _ := newTestGateway(t, sleeper)
	res := gw.Do(context.Background(), Request{Method: http.MethodPost, URL: srv.URL})

	if res.Success {
		t.Fatal("expected failure")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("hits: got %d; want 1", got)
	}
	if res.Status != http.StatusBadRequest {
		t.Errorf("Status: got %d; want %d", res.Status, http.StatusBadRequest)
	}
	if res.Error != "farm already started" {
		t.Errorf("Error: got %q", res.Error)
	}
	if len(res.ErrorData) == 0 {
		t.Error("expected ErrorData to carry the JSON error body")
	}
	if len(sleeper.calls) != 0 {
		t.Errorf("sleeps: got %d; want 0", len(sleeper.calls))
	}
}

func TestDoRetriesNon2xx(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	gw, logPath := newTestGateway(t, &sleepRecorder{})
	res := gw.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL, Retry: true})

	if !res.Success {
		t.Fatalf("expected success after retries, got %q", res.Error)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts: got %d; want 3", res.Attempts)
	}
	if lines := readLines(t, logPath); len(lines) != 2 {
		t.Errorf("error log lines: got %d; want 2", len(lines))
	}
}

func TestBackoffDelayRange(t *testing.T) {
	b := DefaultBackoff()
	for i := 0; i < 200; i++ {
		d := b.Delay()
		if d < b.MinDelay || d > b.MaxDelay {
			t.Fatalf("Delay %v outside [%v, %v]", d, b.MinDelay, b.MaxDelay)
		}
	}

	fixed := Backoff{MinDelay: time.Second, MaxDelay: time.Second}
	if d := fixed.Delay(); d != time.Second {
		t.Errorf("fixed Delay: got %v; want 1s", d)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Sleep(ctx, time.Hour); err != context.Canceled {
		t.Errorf("got %v; want context.Canceled", err)
	}
}
