package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/narrator/internal/backend"
)

func ok(context.Context) error     { return nil }
func broken(context.Context) error { return errors.New("connection refused") }

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New(Required("x", broken)).Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name:       "all pass",
			checkers:   []Checker{Required("backend", ok), Optional("redis", ok)},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
			wantChecks: map[string]string{"backend": "ok", "redis": "ok"},
		},
		{
			name:       "optional fails",
			checkers:   []Checker{Required("backend", ok), Optional("redis", broken)},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
			wantChecks: map[string]string{"backend": "ok", "redis": "fail: connection refused"},
		},
		{
			name:       "required fails",
			checkers:   []Checker{Required("backend", broken), Optional("redis", broken)},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantChecks: map[string]string{"backend": "fail: connection refused", "redis": "fail: connection refused"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			New(tc.checkers...).Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tc.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			var body Report
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tc.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tc.wantStatus)
			}
			for k, v := range tc.wantChecks {
				if body.Checks[k] != v {
					t.Errorf("checks[%q] = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	slow := func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New(Required("a", slow), Required("b", slow), Required("c", slow))

	start := time.Now()
	res := h.Evaluate(context.Background())
	if res.Status != StatusOK {
		t.Fatalf("status = %q", res.Status)
	}
	if d := time.Since(start); d > 550*time.Millisecond {
		t.Errorf("checks took %v, expected them to overlap", d)
	}
}

func TestReadyz_RespectsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := New(Required("blocked", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	if res := h.Evaluate(ctx); res.Status != StatusFail {
		t.Errorf("status = %q, want fail", res.Status)
	}
}

type profiles struct{ p *backend.Profile }

func (s profiles) Active() *backend.Profile { return s.p }

func TestActiveProfile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		profile *backend.Profile
		wantErr bool
	}{
		{name: "none", wantErr: true},
		{name: "no model", profile: &backend.Profile{Name: "p"}, wantErr: true},
		{name: "ready", profile: &backend.Profile{Name: "p", Model: "gpt-4o"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := ActiveProfile(profiles{tc.profile})
			if err := c.Check(context.Background()); (err != nil) != tc.wantErr {
				t.Errorf("Check = %v, wantErr %v", err, tc.wantErr)
			}
			if c.Optional {
				t.Error("backend check must be required")
			}
		})
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New(Required("backend", broken)).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	for path, want := range map[string]int{"/healthz": 200, "/readyz": 503} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("GET %s = %d, want %d", path, resp.StatusCode, want)
		}
	}
}
