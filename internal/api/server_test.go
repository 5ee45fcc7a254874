package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ackinacki-farmer/internal/config"
	"github.com/ackinacki-farmer/internal/metrics"
	"github.com/ackinacki-farmer/internal/snapshot"
	"github.com/ackinacki-farmer/internal/types"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *snapshot.Manager) {
	t.Helper()

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	snap := snapshot.NewManager(nil)
	snap.Update([]types.AccountStatus{
		{Index: 0, Account: "...aaaaaa", Success: true, FarmStatus: "waiting", WaitSeconds: 600},
		{Index: 1, Account: "...bbbbbb", Error: "get profile: unauthorized (status 401)"},
	}, types.Stats{Round: 4, Accounts: 2, Succeeded: 1, Failed: 1, NextDelaySeconds: 605})

	srv := NewServer(cfg, snap, metrics.NewCollector("test", prometheus.NewRegistry()))
	return srv, snap
}

func get(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := get(t, srv.Handler(), "/health", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestStat(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := get(t, srv.Handler(), "/stat", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["round"] != float64(4) || body["failed"] != float64(1) || body["next_delay_seconds"] != float64(605) {
		t.Errorf("got %v", body)
	}
}

func TestAccounts(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var body struct {
		Total    int                   `json:"total"`
		Accounts []types.AccountStatus `json:"accounts"`
	}

	rec := get(t, srv.Handler(), "/accounts", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 2 {
		t.Errorf("total: got %d; want 2", body.Total)
	}

	rec = get(t, srv.Handler(), "/accounts?failed=1", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 1 || body.Accounts[0].Index != 1 {
		t.Errorf("failed filter: got %+v", body)
	}
}

func TestAccountByNumber(t *testing.T) {
	srv, snap := newTestServer(t, nil)

	tests := []struct {
		target string
		want   int
	}{
		{"/accounts/1", http.StatusOK},
		{"/accounts/0", http.StatusBadRequest},
		{"/accounts/abc", http.StatusBadRequest},
		{"/accounts/9", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := get(t, srv.Handler(), tt.target, nil); rec.Code != tt.want {
			t.Errorf("%s: got %d; want %d", tt.target, rec.Code, tt.want)
		}
	}

	rec := get(t, srv.Handler(), "/accounts/2", nil)
	var acct types.AccountStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &acct); err != nil {
		t.Fatal(err)
	}
	if want, _ := snap.Account(1); acct.Account != want.Account {
		t.Errorf("got %+v; want %+v", acct, want)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	t.Setenv("FARMER_API_KEY", "s3cret")
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.API.EnableAPIKeyAuth = true
	})

	if rec := get(t, srv.Handler(), "/stat", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: got %d; want 401", rec.Code)
	}
	if rec := get(t, srv.Handler(), "/stat", map[string]string{"X-Api-Key": "s3cret"}); rec.Code != http.StatusOK {
		t.Errorf("header key: got %d; want 200", rec.Code)
	}
	if rec := get(t, srv.Handler(), "/stat?key=s3cret", nil); rec.Code != http.StatusOK {
		t.Errorf("query key: got %d; want 200", rec.Code)
	}
	if rec := get(t, srv.Handler(), "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health must stay public: got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.API.EnableIPRateLimit = true
		cfg.API.RateLimitPerMinute = 10 // burst of 1
	})

	if rec := get(t, srv.Handler(), "/stat", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d", rec.Code)
	}
	if rec := get(t, srv.Handler(), "/stat", nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: got %d; want 429", rec.Code)
	}
}

func TestRateLimiterReusesLimiter(t *testing.T) {
	rl := NewRateLimiter(60)
	if rl.GetLimiter("1.2.3.4") != rl.GetLimiter("1.2.3.4") {
		t.Error("limiter not cached per key")
	}
	if rl.GetLimiter("1.2.3.4") == rl.GetLimiter("5.6.7.8") {
		t.Error("keys share a limiter")
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.API.Addr = "127.0.0.1:0"
	})

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Start after Shutdown: got %v; want http.ErrServerClosed", err)
	}
}

func TestShutdownWhileStarting(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.API.Addr = "127.0.0.1:0"
	})

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("Start: got %v; want http.ErrServerClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
