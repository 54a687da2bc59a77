package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/ems-client/internal/recorder"
	"github.com/rickgao/ems-client/internal/session"
)

type stateSource interface {
	State() session.State
}

type pinger interface {
	Ping(ctx context.Context) error
}

type recorderStats interface {
	Stats() recorder.Metrics
	Pending() int
}

// healthDeps are the components reported on /health. db and recorder are
// nil when disabled.
type healthDeps struct {
	session  stateSource
	db       pinger
	recorder recorderStats
}

// newHealthHandler creates the HTTP handler for health checks.
func newHealthHandler(deps healthDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		st := deps.session.State()
		health.Components["session"] = map[string]any{
			"phase":     st.Phase,
			"connected": st.Connected,
			"username":  st.Username,
			"devices":   len(st.Config.Devices),
		}
		if !st.Connected {
			health.Status = "degraded"
		}

		if deps.db != nil {
			if err := deps.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		if deps.recorder != nil {
			stats := deps.recorder.Stats()
			health.Components["recorder"] = map[string]any{
				"pending": deps.recorder.Pending(),
				"rows":    stats.Rows,
				"errors":  stats.Errors,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/state", func(w http.ResponseWriter, r *http.Request) {
		st := deps.session.State()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"session": st,
			"devices": st.Config.Devices,
		})
	})

	return mux
}
