package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"ytdl-web/internal/download"
	"ytdl-web/internal/keygen"
	"ytdl-web/internal/model"
	"ytdl-web/internal/runstore"
)

type jobStatus struct {
	model.JobMeta
	Progress *model.Progress `json:"progress,omitempty"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	key := fs.String("key", "", "job key (default: all jobs)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(appOptions{logOut: os.Stderr, logLevel: zerolog.WarnLevel})
	if err != nil {
		return err
	}
	defer a.Close()
	layout := a.cfg.Layout()

	raw := strings.TrimSpace(*key)
	var keys []string
	if raw != "" {
		k := keygen.Sanitize(raw)
		if k == "" {
			return download.ErrInvalidKey
		}
		keys = []string{k}
	} else {
		keys, err = runstore.ListJobKeys(layout)
		if err != nil {
			return err
		}
	}

	out := make([]jobStatus, 0, len(keys))
	for _, k := range keys {
		meta, err := runstore.LoadJobMeta(layout, k)
		if err != nil {
			if raw != "" {
				return fmt.Errorf("%w: %s", download.ErrInvalidKey, k)
			}
			continue
		}
		st := jobStatus{JobMeta: meta}
		if p, ok, err := a.store.Get(context.Background(), k); err == nil && ok {
			st.Progress = &p
		}
		out = append(out, st)
	}

	if *jsonOut {
		return printJSON(out)
	}
	if len(out) == 0 {
		fmt.Println("no jobs")
		return nil
	}
	for _, st := range out {
		fmt.Printf("%s  %-16s  %s\n", st.Key, statusLabel(st.JobMeta), st.URL)
		if st.Progress != nil {
			fmt.Printf("  progress: %s\n", describeProgress(*st.Progress))
		}
		if st.LastError != "" {
			fmt.Printf("  error: %s\n", firstLine(st.LastError))
		}
		if st.ArchivePath != "" {
			fmt.Printf("  archive: %s\n", st.ArchivePath)
		}
	}
	return nil
}

func runLogs(args []string) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	key := fs.String("key", "", "job key")
	stream := fs.String("stream", "all", "log stream: debug|download|all")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	k := strings.TrimSpace(*key)
	if k == "" {
		k = strings.TrimSpace(fs.Arg(0))
	}
	if k == "" {
		return errors.New("logs requires --key")
	}
	which := strings.ToLower(strings.TrimSpace(*stream))
	switch which {
	case "debug", "download", "all":
	default:
		return fmt.Errorf("invalid --stream %q (expected debug|download|all)", *stream)
	}

	a, err := openApp(appOptions{logOut: os.Stderr, logLevel: zerolog.WarnLevel, skipStore: true})
	if err != nil {
		return err
	}
	logs, err := download.ReadLogs(a.cfg.Layout(), k)
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(logs)
	}
	switch which {
	case "debug":
		fmt.Print(logs.Debug)
	case "download":
		fmt.Print(logs.Download)
	default:
		fmt.Println("== debug ==")
		fmt.Print(logs.Debug)
		fmt.Println("== download ==")
		fmt.Print(logs.Download)
	}
	return nil
}
