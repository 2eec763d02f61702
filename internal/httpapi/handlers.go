package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"ytdl-web/internal/download"
	"ytdl-web/internal/model"
)

const (
	maxBodyBytes   = 1 << 20
	invalidKeyText = "Invalid key"
)

type handlers struct {
	jobs Jobs
	log  zerolog.Logger
}

type submitRequest struct {
	URL   string       `json:"url"`
	Flags []model.Flag `json:"flags"`
}

type submitResponse struct {
	Key string `json:"key"`
}

type keyRequest struct {
	Key string `json:"key"`
}

// progressResponse carries an empty object for jobs without progress yet.
type progressResponse struct {
	Progress any `json:"progress"`
}

type logsResponse struct {
	Debug            string `json:"debug"`
	DownloadProgress string `json:"download_progress"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	key, err := h.jobs.Submit(req.URL, req.Flags)
	if err != nil {
		if errors.Is(err, download.ErrEmptyURL) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("submit job")
		writeError(w, http.StatusInternalServerError, "could not start download")
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{Key: key})
}

func (h *handlers) progress(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, ok, err := h.jobs.Progress(r.Context(), req.Key)
	if err != nil {
		h.log.Error().Err(err).Str("key", req.Key).Msg("read job progress")
		writeError(w, http.StatusInternalServerError, "could not read progress")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, progressResponse{Progress: struct{}{}})
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{Progress: p})
}

func (h *handlers) logs(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp := logsResponse{Debug: invalidKeyText, DownloadProgress: invalidKeyText}
	logs, err := h.jobs.Logs(req.Key)
	switch {
	case errors.Is(err, download.ErrInvalidKey):
	case err != nil:
		h.log.Error().Err(err).Str("key", req.Key).Msg("read job logs")
		writeError(w, http.StatusInternalServerError, "could not read logs")
		return
	default:
		if logs.HasDebug {
			resp.Debug = logs.Debug
		}
		if logs.HasDownload {
			resp.DownloadProgress = logs.Download
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) artifact(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	path, err := h.jobs.Artifact(r.Context(), key)
	switch {
	case errors.Is(err, download.ErrInvalidKey):
		http.Error(w, invalidKeyText, http.StatusNotFound)
		return
	case errors.Is(err, download.ErrNotReady):
		http.Error(w, "Download not finished", http.StatusConflict)
		return
	case errors.Is(err, download.ErrArchiveMissing):
		http.Error(w, "Zip file not found", http.StatusNotFound)
		return
	case err != nil:
		h.log.Error().Err(err).Str("key", key).Msg("resolve job artifact")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}
