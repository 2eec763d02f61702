package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"ytdl-web/internal/download"
	"ytdl-web/internal/model"
)

// Jobs is the part of download.Service the API serves.
type Jobs interface {
	Submit(url string, flags []model.Flag) (string, error)
	Progress(ctx context.Context, key string) (model.Progress, bool, error)
	Logs(key string) (download.JobLogs, error)
	Artifact(ctx context.Context, key string) (string, error)
}

func NewRouter(jobs Jobs, logger zerolog.Logger) http.Handler {
	h := &handlers{jobs: jobs, log: logger}

	r := chi.NewRouter()
	r.Use(RequestID, middleware.RealIP, middleware.Recoverer, Logger(logger))

	r.Get("/healthz", h.health)
	r.Post("/download", h.submit)
	r.Get("/download/{key}", h.artifact)
	r.Route("/output", func(r chi.Router) {
		r.Post("/progress", h.progress)
		r.Post("/logs", h.logs)
	})
	return r
}
