package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rickgao/ems-client/internal/config"
	"github.com/rickgao/ems-client/internal/model"
	"github.com/rickgao/ems-client/internal/recorder"
	"github.com/rickgao/ems-client/internal/session"
)

type fakeState struct {
	st session.State
}

func (f fakeState) State() session.State { return f.st }

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeRecorder struct{}

func (fakeRecorder) Stats() recorder.Metrics { return recorder.Metrics{Rows: 42} }
func (fakeRecorder) Pending() int            { return 3 }

func connectedState() session.State {
	cfg := model.NewConfig()
	cfg.Devices["ess0"] = model.Device{Name: "ess0", Natures: []string{"Ess"}}
	return session.State{
		Name:      "fems7",
		Username:  "alice",
		Connected: true,
		Phase:     session.Connected,
		Config:    cfg,
		Telemetry: model.Telemetry{"ess0": {"Soc": 55.0}},
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		deps       healthDeps
		wantCode   int
		wantStatus string
	}{
		{
			name:       "connected",
			deps:       healthDeps{session: fakeState{connectedState()}},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "disconnected",
			deps:       healthDeps{session: fakeState{session.State{Name: "fems7"}}},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name: "database down",
			deps: healthDeps{
				session: fakeState{connectedState()},
				db:      fakePinger{err: errors.New("connection refused")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
		{
			name: "with recorder",
			deps: healthDeps{
				session:  fakeState{connectedState()},
				db:       fakePinger{},
				recorder: fakeRecorder{},
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			newHealthHandler(tt.deps).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rr.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rr.Code, tt.wantCode)
			}

			var body struct {
				Status     string                     `json:"status"`
				Components map[string]json.RawMessage `json:"components"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if _, ok := body.Components["session"]; !ok {
				t.Error("session component missing")
			}
			if _, ok := body.Components["recorder"]; ok != (tt.deps.recorder != nil) {
				t.Errorf("recorder component present = %v", ok)
			}
		})
	}
}

func TestDebugState(t *testing.T) {
	rr := httptest.NewRecorder()
	deps := healthDeps{session: fakeState{connectedState()}}
	newHealthHandler(deps).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/state", nil))

	var body struct {
		Session struct {
			Phase     string                    `json:"phase"`
			Username  string                    `json:"username"`
			Telemetry map[string]map[string]any `json:"telemetry"`
		} `json:"session"`
		Devices map[string]any `json:"devices"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body.Session.Phase != "connected" || body.Session.Username != "alice" {
		t.Errorf("session = %+v", body.Session)
	}
	if body.Session.Telemetry["ess0"]["Soc"] != 55.0 {
		t.Errorf("telemetry = %v", body.Session.Telemetry)
	}
	if _, ok := body.Devices["ess0"]; !ok {
		t.Errorf("devices = %v, want ess0", body.Devices)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg   config.LogConfig
		debug bool
	}{
		{config.LogConfig{Level: "debug", Format: "json"}, true},
		{config.LogConfig{Level: "warn", Format: "text"}, false},
		{config.LogConfig{Level: "bogus"}, false},
	}
	for _, tt := range tests {
		logger := newLogger(tt.cfg)
		if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.debug {
			t.Errorf("newLogger(%+v) debug enabled = %v, want %v", tt.cfg, got, tt.debug)
		}
	}
}
