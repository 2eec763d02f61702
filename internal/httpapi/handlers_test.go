package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdl-web/internal/download"
	"ytdl-web/internal/model"
)

type fakeJobs struct {
	submitURL   string
	submitFlags []model.Flag
	submitErr   error

	progress    map[string]model.Progress
	progressErr error

	logs    download.JobLogs
	logsErr error

	artifactPath string
	artifactErr  error
}

func (f *fakeJobs) Submit(url string, flags []model.Flag) (string, error) {
	f.submitURL = url
	f.submitFlags = flags
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "abcdefghij_1700000000", nil
}

func (f *fakeJobs) Progress(_ context.Context, key string) (model.Progress, bool, error) {
	if f.progressErr != nil {
		return model.Progress{}, false, f.progressErr
	}
	p, ok := f.progress[key]
	return p, ok, nil
}

func (f *fakeJobs) Logs(string) (download.JobLogs, error) {
	return f.logs, f.logsErr
}

func (f *fakeJobs) Artifact(context.Context, string) (string, error) {
	return f.artifactPath, f.artifactErr
}

func serve(t *testing.T, jobs Jobs, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	NewRouter(jobs, zerolog.Nop()).ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, &fakeJobs{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_EchoesIncomingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	NewRouter(&fakeJobs{}, zerolog.Nop()).ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestSubmit(t *testing.T) {
	jobs := &fakeJobs{}
	rec := serve(t, jobs, http.MethodPost, "/download",
		`{"url":"https://example.com/v","flags":[{"name":"--format","value":"best"},{"name":"--no-mtime"}]}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"key":"abcdefghij_1700000000"}`, rec.Body.String())
	assert.Equal(t, "https://example.com/v", jobs.submitURL)
	assert.Equal(t, []model.Flag{{Name: "--format", Value: "best"}, {Name: "--no-mtime"}}, jobs.submitFlags)
}

func TestSubmit_Errors(t *testing.T) {
	rec := serve(t, &fakeJobs{}, http.MethodPost, "/download", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, &fakeJobs{submitErr: download.ErrEmptyURL}, http.MethodPost, "/download", `{"url":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, &fakeJobs{submitErr: errors.New("disk full")}, http.MethodPost, "/download", `{"url":"u"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestProgress(t *testing.T) {
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	jobs := &fakeJobs{progress: map[string]model.Progress{
		"k_1": {TimeStarted: started, TotalVideos: 1, CurrentVideoProgress: 0.5, CurrentVideoTitle: "a.mp4"},
	}}

	rec := serve(t, jobs, http.MethodPost, "/output/progress", `{"key":"k_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Progress model.Progress `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0.5, body.Progress.CurrentVideoProgress)
	assert.Equal(t, "a.mp4", body.Progress.CurrentVideoTitle)
	assert.True(t, body.Progress.TimeStarted.Equal(started))

	rec = serve(t, jobs, http.MethodPost, "/output/progress", `{"key":"missing_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"progress":{}}`, rec.Body.String())

	rec = serve(t, &fakeJobs{progressErr: errors.New("redis down")}, http.MethodPost, "/output/progress", `{"key":"k_1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLogs(t *testing.T) {
	jobs := &fakeJobs{logs: download.JobLogs{
		Debug:       "[debug] a\n",
		HasDebug:    true,
		HasDownload: false,
	}}
	rec := serve(t, jobs, http.MethodPost, "/output/logs", `{"key":"k_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"debug":"[debug] a\n","download_progress":"Invalid key"}`, rec.Body.String())

	rec = serve(t, &fakeJobs{logsErr: download.ErrInvalidKey}, http.MethodPost, "/output/logs", `{"key":"nope"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"debug":"Invalid key","download_progress":"Invalid key"}`, rec.Body.String())
}

func TestArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abcdefghij_1700000000.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04zip"), 0o644))

	rec := serve(t, &fakeJobs{artifactPath: path}, http.MethodGet, "/download/abcdefghij_1700000000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="abcdefghij_1700000000.zip"`)
	assert.Equal(t, "PK\x03\x04zip", rec.Body.String())
}

func TestArtifact_Errors(t *testing.T) {
	tests := []struct {
		err  error
		code int
		text string
	}{
		{download.ErrInvalidKey, http.StatusNotFound, "Invalid key"},
		{download.ErrNotReady, http.StatusConflict, "Download not finished"},
		{download.ErrArchiveMissing, http.StatusNotFound, "Zip file not found"},
		{errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range tests {
		rec := serve(t, &fakeJobs{artifactErr: tc.err}, http.MethodGet, "/download/k_1", "")
		assert.Equal(t, tc.code, rec.Code, tc.text)
		assert.Equal(t, tc.text, strings.TrimSpace(rec.Body.String()))
	}
}

func TestServerAddr(t *testing.T) {
	srv := NewServer(ServerConfig{Port: "5000"}, http.NotFoundHandler())
	assert.Equal(t, ":5000", srv.Addr())
}
