package download

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"ytdl-web/internal/jobstore"
	"ytdl-web/internal/model"
	"ytdl-web/internal/progress"
)

// lineSink receives worker output lines in order on the draining goroutine.
type lineSink struct {
	ctx      context.Context
	key      string
	store    jobstore.Store
	parser   progress.Parser
	splitter progress.Splitter
	debug    io.Writer
	download io.Writer
	log      zerolog.Logger

	lines       int
	writeFailed bool
	storeFailed bool
}

func (s *lineSink) handle(line string) {
	s.lines++

	w := s.download
	if s.splitter.Next(line) {
		w = s.debug
	}
	// *os.File writes are unbuffered, each line reaches the OS immediately
	if _, err := io.WriteString(w, line+"\n"); err != nil && !s.writeFailed {
		s.writeFailed = true
		s.log.Warn().Err(err).Msg("write job log")
	}

	if err := s.updateProgress(line); err != nil && !s.storeFailed {
		s.storeFailed = true
		s.log.Warn().Err(err).Msg("update job progress")
	}
}

func (s *lineSink) updateProgress(line string) error {
	cur, ok, err := s.store.Get(s.ctx, s.key)
	if err != nil {
		return err
	}
	var prev *model.Progress
	if ok {
		prev = &cur
	}
	return s.store.Set(s.ctx, s.key, s.parser.Update(prev, line))
}
