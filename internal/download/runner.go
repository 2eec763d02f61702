package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ytdl-web/internal/bundle"
	"ytdl-web/internal/jobstore"
	"ytdl-web/internal/keygen"
	"ytdl-web/internal/model"
	"ytdl-web/internal/progress"
	"ytdl-web/internal/runstore"
	"ytdl-web/internal/worker"
)

type Job struct {
	Key   string
	URL   string
	Flags []model.Flag
}

// Runner executes one job at a time per call: it owns the worker process,
// its output and both log files until Run returns.
type Runner struct {
	Worker worker.Invocation
	Layout runstore.Layout
	Store  jobstore.Store
	Parser progress.Parser
	Logger zerolog.Logger
}

// Run spawns the worker for job, tails its output into the logs and the
// store, and zips the job directory once the worker has exited. A worker
// that exits non-zero still gets its directory archived; the returned error
// reports the exit.
func (r *Runner) Run(ctx context.Context, job Job) error {
	key := keygen.Sanitize(job.Key)
	if key == "" {
		return ErrInvalidKey
	}
	log := r.Logger.With().Str("key", key).Logger()

	lock, err := runstore.AcquireJobLock(r.Layout, key)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release()
	}()

	meta := r.loadMeta(key, job.URL)

	jobDir := r.Layout.JobDir(key)
	if err := runstore.Mkdir(jobDir); err != nil {
		return r.fail(log, &meta, "filesystem_error", err)
	}
	debugFile, err := os.Create(r.Layout.DebugLogPath(key))
	if err != nil {
		return r.fail(log, &meta, "filesystem_error", fmt.Errorf("create debug log: %w", err))
	}
	defer debugFile.Close()
	downloadFile, err := os.Create(r.Layout.DownloadLogPath(key))
	if err != nil {
		return r.fail(log, &meta, "filesystem_error", fmt.Errorf("create download log: %w", err))
	}
	defer downloadFile.Close()

	inv := r.Worker
	inv.Args = append(model.FlagArgs(job.Flags), job.URL)
	meta.Command = inv.Argv()

	proc, err := worker.Start(ctx, inv)
	if err != nil {
		return r.fail(log, &meta, "spawn_error", err)
	}
	if err := model.TransitionJobStatus(&meta, model.StatusRunning, ""); err != nil {
		log.Warn().Err(err).Msg("job metadata out of sync")
	}
	meta.StartedAt = now()
	r.saveMeta(log, meta)
	log.Info().Int("pid", proc.Pid()).Str("url", job.URL).Msg("worker started")

	sink := &lineSink{
		key:      key,
		store:    r.Store,
		parser:   r.parser(),
		debug:    debugFile,
		download: downloadFile,
		log:      log,
		// progress writes outlive cancellation so the last lines still land
		ctx: context.WithoutCancel(ctx),
	}
	drained := make(chan error, 1)
	go func() {
		drained <- proc.Drain(sink.handle)
	}()

	waitErr := proc.Wait()
	var drainErr error
	select {
	case drainErr = <-drained:
	case <-ctx.Done():
		// a grandchild may still hold the pipe open
		_ = proc.Close()
		drainErr = <-drained
	}
	_ = proc.Close()
	if drainErr != nil && ctx.Err() == nil {
		log.Warn().Err(drainErr).Msg("worker output truncated")
	}

	_ = debugFile.Close()
	_ = downloadFile.Close()

	reason := ""
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(ctx.Err(), context.Canceled):
		reason = "canceled"
	case waitErr != nil:
		reason = "exit_error"
	}
	if err := model.TransitionJobStatus(&meta, model.StatusExited, reason); err != nil {
		log.Warn().Err(err).Msg("job metadata out of sync")
	}
	meta.FinishedAt = now()
	if waitErr != nil {
		meta.LastError = strings.TrimSpace(waitErr.Error() + "\n" + proc.Tail())
		log.Warn().Err(waitErr).Str("reason", reason).Msg("worker exited with error")
	} else {
		log.Info().Int("lines", sink.lines).Msg("worker exited")
	}

	archivePath := r.Layout.ArchivePath(key)
	if err := bundle.ZipDir(jobDir, archivePath); err != nil {
		meta.LastError = strings.TrimSpace(meta.LastError + "\narchive: " + err.Error())
		r.saveMeta(log, meta)
		log.Error().Err(err).Msg("archive failed")
		return fmt.Errorf("archive job %s: %w", key, err)
	}
	meta.ArchivePath = archivePath
	r.saveMeta(log, meta)
	log.Info().Str("archive", archivePath).Msg("job archived")

	if waitErr != nil {
		return fmt.Errorf("worker for job %s: %w", key, waitErr)
	}
	return nil
}

// Abandon records a job that never reached the worker.
func (r *Runner) Abandon(key, reason string, cause error) {
	key = keygen.Sanitize(key)
	if key == "" {
		return
	}
	log := r.Logger.With().Str("key", key).Logger()
	meta := r.loadMeta(key, "")
	_ = r.fail(log, &meta, reason, cause)
}

func (r *Runner) parser() progress.Parser {
	if r.Parser == nil {
		return progress.NewYoutubeDL()
	}
	return r.Parser
}

func (r *Runner) loadMeta(key, url string) model.JobMeta {
	meta, err := runstore.LoadJobMeta(r.Layout, key)
	if err == nil && meta.Key == key {
		if meta.URL == "" {
			meta.URL = url
		}
		return meta
	}
	meta = model.JobMeta{Key: key, URL: url, CreatedAt: now()}
	_ = model.TransitionJobStatus(&meta, model.StatusPending, "")
	return meta
}

func (r *Runner) saveMeta(log zerolog.Logger, meta model.JobMeta) {
	if err := runstore.SaveJobMeta(r.Layout, meta); err != nil {
		log.Warn().Err(err).Msg("persist job metadata")
	}
}

func (r *Runner) fail(log zerolog.Logger, meta *model.JobMeta, reason string, cause error) error {
	if err := model.TransitionJobStatus(meta, model.StatusFailed, reason); err != nil {
		log.Warn().Err(err).Msg("job metadata out of sync")
	}
	if cause != nil {
		meta.LastError = cause.Error()
	}
	meta.FinishedAt = now()
	r.saveMeta(log, *meta)
	log.Error().Err(cause).Str("reason", reason).Msg("job failed")
	return cause
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
