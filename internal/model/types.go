package model

import "time"

// Progress is the state scraped from one job's worker output.
type Progress struct {
	TimeStarted          time.Time  `json:"time_started"`
	TimeFinished         *time.Time `json:"time_finished"`
	IsPlaylist           bool       `json:"is_playlist"`
	TotalVideos          int        `json:"total_videos"`
	DownloadedVideos     int        `json:"downloaded_videos"`
	TotalETA             float64    `json:"total_eta"`
	CurrentVideoProgress float64    `json:"current_video_progress"`
	CurrentVideoETA      int        `json:"current_video_eta"`
	CurrentVideoTitle    string     `json:"current_video_title"`
	Finished             bool       `json:"finished"`
}

// Flag is one worker option. Value is empty for switches.
type Flag struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

func FlagArgs(flags []Flag) []string {
	args := make([]string, 0, len(flags)*2)
	for _, f := range flags {
		if f.Name == "" {
			continue
		}
		args = append(args, f.Name)
		if f.Value != "" {
			args = append(args, f.Value)
		}
	}
	return args
}

// JobMeta is the per-job record persisted next to the job's logs.
type JobMeta struct {
	Key         string   `json:"key"`
	URL         string   `json:"url"`
	Command     []string `json:"command,omitempty"`
	Status      string   `json:"status"`
	Reason      string   `json:"reason,omitempty"`
	LastError   string   `json:"last_error,omitempty"`
	CreatedAt   string   `json:"created_at"`
	StartedAt   string   `json:"started_at,omitempty"`
	FinishedAt  string   `json:"finished_at,omitempty"`
	ArchivePath string   `json:"archive_path,omitempty"`
}
