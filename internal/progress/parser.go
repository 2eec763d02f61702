package progress

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"ytdl-web/internal/model"
)

var (
	reTitle          = regexp.MustCompile(`^.*Destination:(.*)`)
	rePlaylist       = regexp.MustCompile(`Downloading playlist:`)
	rePlaylistItem   = regexp.MustCompile(`Downloading video (\d+) of (\d+)`)
	reDownloadAndETA = regexp.MustCompile(`^[a-z\[\]\s]*(\d+)(?:\.(\d+))?%.*ETA (\d+):(\d+)`)
)

// Parser folds one line of worker output into a job's progress. state is nil
// for a job that has produced no output yet. Implementations must not mutate
// state.
type Parser interface {
	Update(state *model.Progress, line string) model.Progress
}

// YoutubeDL parses the human-readable output of youtube-dl style tools.
type YoutubeDL struct {
	Now func() time.Time
}

func NewYoutubeDL() *YoutubeDL {
	return &YoutubeDL{Now: time.Now}
}

func (p *YoutubeDL) now() time.Time {
	if p == nil || p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func NewProgress(started time.Time) model.Progress {
	return model.Progress{
		TimeStarted: started,
		TotalVideos: 1,
	}
}

func (p *YoutubeDL) Update(state *model.Progress, line string) model.Progress {
	var cur model.Progress
	if state == nil {
		cur = NewProgress(p.now())
	} else {
		cur = *state
	}

	if !cur.IsPlaylist && rePlaylist.MatchString(line) {
		cur.IsPlaylist = true
	}

	if cur.IsPlaylist && !cur.Finished {
		if m := rePlaylistItem.FindStringSubmatch(line); len(m) > 2 {
			n, errN := strconv.Atoi(m[1])
			total, errT := strconv.Atoi(m[2])
			if errN == nil && errT == nil && total >= 1 {
				cur.TotalVideos = total
				cur.DownloadedVideos = min(max(n, 0), total)
			}
		}
	}

	if cur.CurrentVideoProgress == 0 {
		if m := reTitle.FindStringSubmatch(line); len(m) > 1 {
			cur.CurrentVideoTitle = lastPathSegment(m[1])
		}
	}

	if cur.CurrentVideoTitle != "" {
		if m := reDownloadAndETA.FindStringSubmatch(line); len(m) > 4 {
			pct, errP := strconv.Atoi(m[1])
			mins, errM := strconv.Atoi(m[3])
			secs, errS := strconv.Atoi(m[4])
			if errP == nil && errM == nil && errS == nil {
				cur.CurrentVideoProgress = min(float64(pct)/100, 1)
				cur.CurrentVideoETA = mins*60 + secs
			}
		}
	}

	if cur.CurrentVideoProgress == 1 {
		now := p.now()
		elapsed := now.Sub(cur.TimeStarted).Seconds()
		remaining := max(cur.TotalVideos-cur.DownloadedVideos, 0)
		perVideo := 0.0
		if cur.DownloadedVideos > 0 {
			perVideo = elapsed / float64(cur.DownloadedVideos)
		}
		cur.TotalETA = perVideo * float64(remaining)

		cur.CurrentVideoTitle = ""
		cur.CurrentVideoProgress = 0
		cur.CurrentVideoETA = 0
		cur.DownloadedVideos++
		if cur.DownloadedVideos >= cur.TotalVideos {
			cur.DownloadedVideos = cur.TotalVideos
			if !cur.Finished {
				cur.Finished = true
				cur.TimeFinished = &now
			}
		}
	}

	return cur
}

func lastPathSegment(path string) string {
	parts := strings.Split(path, "/")
	return strings.TrimSpace(parts[len(parts)-1])
}
