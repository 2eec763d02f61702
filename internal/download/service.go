package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ytdl-web/internal/jobstore"
	"ytdl-web/internal/keygen"
	"ytdl-web/internal/model"
	"ytdl-web/internal/progress"
	"ytdl-web/internal/runstore"
	"ytdl-web/internal/worker"
)

const DefaultOutputTemplate = "%(title)s_%(id)s.%(ext)s"

type Options struct {
	Worker      worker.Invocation
	Layout      runstore.Layout
	Store       jobstore.Store
	Parser      progress.Parser
	Logger      zerolog.Logger
	Debug       bool
	CookiesFile string
	JobTimeout  time.Duration
	MaxJobs     int
	NewKey      func() string
}

// JobLogs holds the current contents of a job's two log streams.
type JobLogs struct {
	Debug    string `json:"debug"`
	Download string `json:"download"`

	HasDebug    bool `json:"-"`
	HasDownload bool `json:"-"`
}

// Service is the entry point for collaborators: it starts jobs in the
// background and answers polls by key.
type Service struct {
	runner      *Runner
	layout      runstore.Layout
	store       jobstore.Store
	logger      zerolog.Logger
	debug       bool
	cookiesFile string
	timeout     time.Duration
	newKey      func() string
	sem         chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	done map[string]chan struct{}
}

func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	layout, err := absLayout(opts.Layout)
	if err != nil {
		return nil, err
	}
	newKey := opts.NewKey
	if newKey == nil {
		newKey = keygen.Generate
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		runner: &Runner{
			Worker: opts.Worker,
			Layout: layout,
			Store:  opts.Store,
			Parser: opts.Parser,
			Logger: opts.Logger,
		},
		layout:      layout,
		store:       opts.Store,
		logger:      opts.Logger,
		debug:       opts.Debug,
		cookiesFile: strings.TrimSpace(opts.CookiesFile),
		timeout:     opts.JobTimeout,
		newKey:      newKey,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(map[string]chan struct{}),
	}
	if opts.MaxJobs > 0 {
		s.sem = make(chan struct{}, opts.MaxJobs)
	}
	return s, nil
}

func absLayout(l runstore.Layout) (runstore.Layout, error) {
	if strings.TrimSpace(l.DownloadsDir) == "" || strings.TrimSpace(l.OutputDir) == "" {
		return runstore.Layout{}, errors.New("downloads and output directories are required")
	}
	downloads, err := filepath.Abs(l.DownloadsDir)
	if err != nil {
		return runstore.Layout{}, fmt.Errorf("resolve downloads directory: %w", err)
	}
	output, err := filepath.Abs(l.OutputDir)
	if err != nil {
		return runstore.Layout{}, fmt.Errorf("resolve output directory: %w", err)
	}
	return runstore.Layout{DownloadsDir: downloads, OutputDir: output}, nil
}

func (s *Service) Layout() runstore.Layout {
	return s.layout
}

// Submit starts a job for url in the background and returns its key.
func (s *Service) Submit(url string, flags []model.Flag) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", ErrEmptyURL
	}
	if err := s.ctx.Err(); err != nil {
		return "", fmt.Errorf("service is shutting down: %w", err)
	}

	key := keygen.Sanitize(s.newKey())
	if key == "" {
		return "", ErrInvalidKey
	}
	job := Job{Key: key, URL: url, Flags: s.buildFlags(key, flags)}

	meta := model.JobMeta{Key: key, URL: url, CreatedAt: now()}
	if err := model.TransitionJobStatus(&meta, model.StatusPending, ""); err != nil {
		return "", err
	}
	if err := runstore.SaveJobMeta(s.layout, meta); err != nil {
		return "", err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.done[key] = done
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(job, done)

	s.logger.Info().Str("key", key).Str("url", url).Msg("job submitted")
	return key, nil
}

func (s *Service) run(job Job, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("key", job.Key).Interface("panic", r).Msg("job crashed")
		}
	}()

	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-s.ctx.Done():
			s.runner.Abandon(job.Key, "canceled", s.ctx.Err())
			return
		}
	}

	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.runner.Run(ctx, job); err != nil {
		s.logger.Warn().Err(err).Str("key", job.Key).Msg("job ended with error")
	}
}

// buildFlags turns caller flags into the worker flag list. The caller only
// picks the file name template; the output directory is always the job's.
func (s *Service) buildFlags(key string, flags []model.Flag) []model.Flag {
	template := DefaultOutputTemplate
	out := make([]model.Flag, 0, len(flags)+2)
	for _, f := range flags {
		name := strings.TrimSpace(f.Name)
		switch name {
		case "":
			continue
		case "--output", "-o":
			if t := sanitizeTemplate(f.Value); t != "" {
				template = t
			}
			continue
		case "--cookies":
			if strings.TrimSpace(f.Value) == "" {
				if s.cookiesFile != "" {
					out = append(out, model.Flag{Name: name, Value: s.cookiesFile})
				}
				continue
			}
		}
		out = append(out, model.Flag{Name: name, Value: f.Value})
	}
	out = append(out, model.Flag{Name: "--output", Value: filepath.Join(s.layout.JobDir(key), template)})
	if s.debug {
		out = append(out, model.Flag{Name: "--verbose"})
	}
	return out
}

func sanitizeTemplate(raw string) string {
	t := raw
	if i := strings.LastIndex(t, "\\"); i >= 0 {
		t = t[i+1:]
	}
	if i := strings.LastIndex(t, "/"); i >= 0 {
		t = t[i+1:]
	}
	t = strings.TrimSpace(t)
	if t == "." || t == ".." {
		return ""
	}
	return t
}

// Progress returns the job's progress record; false means the job has not
// produced output yet or the key is unknown.
func (s *Service) Progress(ctx context.Context, key string) (model.Progress, bool, error) {
	key = keygen.Sanitize(key)
	if key == "" {
		return model.Progress{}, false, nil
	}
	return s.store.Get(ctx, key)
}

func (s *Service) Logs(key string) (JobLogs, error) {
	return ReadLogs(s.layout, key)
}

// ReadLogs reads both log files of a job. A key with neither file is
// ErrInvalidKey.
func ReadLogs(layout runstore.Layout, key string) (JobLogs, error) {
	key = keygen.Sanitize(key)
	if key == "" {
		return JobLogs{}, ErrInvalidKey
	}
	debugText, debugOK, err := runstore.ReadText(layout.DebugLogPath(key))
	if err != nil {
		return JobLogs{}, err
	}
	downloadText, downloadOK, err := runstore.ReadText(layout.DownloadLogPath(key))
	if err != nil {
		return JobLogs{}, err
	}
	if !debugOK && !downloadOK {
		return JobLogs{}, ErrInvalidKey
	}
	return JobLogs{
		Debug:       debugText,
		Download:    downloadText,
		HasDebug:    debugOK,
		HasDownload: downloadOK,
	}, nil
}

func (s *Service) Meta(key string) (model.JobMeta, error) {
	key = keygen.Sanitize(key)
	if key == "" {
		return model.JobMeta{}, ErrInvalidKey
	}
	meta, err := runstore.LoadJobMeta(s.layout, key)
	if err != nil {
		if _, statErr := os.Stat(s.layout.MetaPath(key)); os.IsNotExist(statErr) {
			return model.JobMeta{}, ErrInvalidKey
		}
		return model.JobMeta{}, err
	}
	return meta, nil
}

// Artifact returns the path of the job's archive once the job has finished.
func (s *Service) Artifact(ctx context.Context, key string) (string, error) {
	key = keygen.Sanitize(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	info, err := os.Stat(s.layout.JobDir(key))
	if err != nil || !info.IsDir() {
		return "", ErrInvalidKey
	}

	p, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok || !p.Finished {
		return "", ErrNotReady
	}
	if meta, err := runstore.LoadJobMeta(s.layout, key); err == nil && !model.IsTerminal(meta.Status) {
		return "", ErrNotReady
	}

	archive := s.layout.ArchivePath(key)
	if info, err := os.Stat(archive); err != nil || !info.Mode().IsRegular() {
		return "", ErrArchiveMissing
	}
	return archive, nil
}

// Wait blocks until the job started by this service for key has returned.
func (s *Service) Wait(ctx context.Context, key string) error {
	key = keygen.Sanitize(key)
	s.mu.Lock()
	done, ok := s.done[key]
	s.mu.Unlock()
	if !ok {
		return ErrInvalidKey
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown kills running workers and waits for their jobs to wind down.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
