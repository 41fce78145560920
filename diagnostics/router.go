// Package diagnostics exposes a loader's status, health and metrics over
// HTTP and logs its health on a schedule.
package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoCodeAlone/modloader"
)

// Source is the part of a loader the diagnostics endpoints read.
type Source interface {
	Status() modloader.Status
	Health() modloader.HealthReport
	ModuleInfo(name string) (modloader.ModuleInfo, bool)
	LoadModule(ctx context.Context, name string) (any, error)
	Gatherer() prometheus.Gatherer
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter returns a chi router serving:
//
//	GET  /status              loader snapshot
//	GET  /health              health report, 503 when unhealthy
//	GET  /modules/{name}      one module
//	POST /modules/{name}/load load a module on demand
//	GET  /metrics             prometheus metrics
func NewRouter(src Source) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, src.Status())
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		report := src.Health()
		code := http.StatusOK
		if report.Status == modloader.HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	})

	r.Route("/modules/{name}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			name := chi.URLParam(req, "name")
			info, ok := src.ModuleInfo(name)
			if !ok {
				writeJSON(w, http.StatusNotFound, errorResponse{Error: "module not found: " + name})
				return
			}
			writeJSON(w, http.StatusOK, info)
		})
		r.Post("/load", func(w http.ResponseWriter, req *http.Request) {
			name := chi.URLParam(req, "name")
			if _, err := src.LoadModule(req.Context(), name); err != nil {
				writeJSON(w, statusForError(err), errorResponse{Error: err.Error()})
				return
			}
			info, _ := src.ModuleInfo(name)
			writeJSON(w, http.StatusOK, info)
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(src.Gatherer(), promhttp.HandlerOpts{}))
	return r
}

// statusForError maps loader errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, modloader.ErrDependencyFailed):
		return http.StatusFailedDependency
	case errors.Is(err, modloader.ErrModuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, modloader.ErrModuleDisabled), errors.Is(err, modloader.ErrCircularDependency):
		return http.StatusConflict
	case errors.Is(err, modloader.ErrModuleLoadTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, modloader.ErrLoaderClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
