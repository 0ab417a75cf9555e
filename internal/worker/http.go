package worker

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// maxJobBody caps the size of a job request accepted over HTTP.
const maxJobBody = 64 << 10

// HTTPConfig configures the worker's HTTP surface.
type HTTPConfig struct {
	Version    string
	Job        *WarmupJob
	Dispatcher *Dispatcher
	// Metrics serves Prometheus metrics at /metrics when set.
	Metrics http.Handler
}

// NewHTTPHandler returns the worker's health, metrics and push-delivery endpoints.
// POST /jobs accepts the same JSON body as a Pub/Sub message, for schedulers that
// push over HTTP.
func NewHTTPHandler(cfg HTTPConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "healthy",
			"version": cfg.Version,
			"time":    time.Now().UTC().Format(time.RFC3339),
			"warmup":  cfg.Job.StatsSnapshot(),
		})
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Post("/jobs", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxJobBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
			return
		}

		err = cfg.Dispatcher.Dispatch(r.Context(), body)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
		case errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrUnknownJobType):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
