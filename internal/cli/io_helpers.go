package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"ytdl-web/internal/model"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stdoutIsTTY() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// flagList collects repeated --flag values as worker flags. "name=value"
// carries a value; a bare name is a switch.
type flagList []model.Flag

func (f *flagList) String() string {
	parts := make([]string, 0, len(*f))
	for _, fl := range *f {
		if fl.Value == "" {
			parts = append(parts, fl.Name)
			continue
		}
		parts = append(parts, fl.Name+"="+fl.Value)
	}
	return strings.Join(parts, " ")
}

func (f *flagList) Set(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("flag must not be empty")
	}
	name, value, _ := strings.Cut(raw, "=")
	if !strings.HasPrefix(name, "-") {
		return fmt.Errorf("flag %q must start with -", name)
	}
	*f = append(*f, model.Flag{Name: name, Value: value})
	return nil
}

// overallFraction is the share of the whole job done, counting the current
// item's progress.
func overallFraction(p model.Progress) float64 {
	if p.Finished {
		return 1
	}
	total := max(p.TotalVideos, 1)
	done := float64(p.DownloadedVideos) + p.CurrentVideoProgress
	return min(done/float64(total), 1)
}

func formatETA(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func describeProgress(p model.Progress) string {
	var b strings.Builder
	if p.Finished {
		fmt.Fprintf(&b, "finished %d/%d", p.DownloadedVideos, p.TotalVideos)
		if p.TimeFinished != nil {
			fmt.Fprintf(&b, " in %s", p.TimeFinished.Sub(p.TimeStarted).Round(time.Second))
		}
		return b.String()
	}
	fmt.Fprintf(&b, "%d/%d", p.DownloadedVideos, p.TotalVideos)
	if p.IsPlaylist {
		b.WriteString(" (playlist)")
	}
	if p.CurrentVideoTitle != "" {
		fmt.Fprintf(&b, " %s %.0f%% eta %s", p.CurrentVideoTitle, p.CurrentVideoProgress*100, formatETA(float64(p.CurrentVideoETA)))
	}
	if p.TotalETA > 0 {
		fmt.Fprintf(&b, " total eta %s", formatETA(p.TotalETA))
	}
	return b.String()
}
