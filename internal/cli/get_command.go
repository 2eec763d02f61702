package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ytdl-web/internal/download"
	"ytdl-web/internal/model"
)

const plainPollInterval = time.Second

type getResult struct {
	Key      string          `json:"key"`
	Progress *model.Progress `json:"progress,omitempty"`
	Meta     model.JobMeta   `json:"meta"`
	Archive  string          `json:"archive,omitempty"`
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	var flags flagList
	fs.Var(&flags, "flag", "worker flag as --name or --name=value (repeatable)")
	noProgress := fs.Bool("no-progress", false, "disable the live progress view")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	url := strings.TrimSpace(fs.Arg(0))
	if url == "" {
		return errors.New("usage: ytdl-web get [--flag --name=value ...] <url>")
	}

	a, err := openApp(appOptions{logOut: os.Stderr, logLevel: zerolog.WarnLevel})
	if err != nil {
		return err
	}
	defer a.Close()
	svc, err := a.newService()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	key, err := svc.Submit(url, flags)
	if err != nil {
		return err
	}

	interactive := !*jsonOut && !*noProgress && stdoutIsTTY()
	var watchErr error
	if interactive {
		watchErr = watchTUI(ctx, svc, key)
	} else {
		watchErr = watchPlain(ctx, svc, key, !*jsonOut)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if watchErr != nil {
		return watchErr
	}

	res := getResult{Key: key}
	if p, ok, err := svc.Progress(context.Background(), key); err == nil && ok {
		res.Progress = &p
	}
	if meta, err := svc.Meta(key); err == nil {
		res.Meta = meta
	}
	archive, artifactErr := svc.Artifact(context.Background(), key)
	if artifactErr == nil {
		res.Archive = archive
	}

	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		fmt.Printf("key: %s\n", key)
		fmt.Printf("status: %s\n", statusLabel(res.Meta))
		if res.Archive != "" {
			fmt.Printf("archive: %s\n", res.Archive)
		}
	}

	if artifactErr != nil {
		if res.Meta.LastError != "" {
			return fmt.Errorf("download %s did not finish: %s", key, firstLine(res.Meta.LastError))
		}
		return fmt.Errorf("download %s did not finish: %w", key, artifactErr)
	}
	return nil
}

// watchPlain polls the job and prints a line whenever its progress changes.
func watchPlain(ctx context.Context, svc *download.Service, key string, verbose bool) error {
	ticker := time.NewTicker(plainPollInterval)
	defer ticker.Stop()

	done := make(chan error, 1)
	go func() {
		done <- svc.Wait(ctx, key)
	}()

	last := ""
	report := func() {
		if !verbose {
			return
		}
		p, ok, err := svc.Progress(context.Background(), key)
		if err != nil || !ok {
			return
		}
		if line := describeProgress(p); line != last {
			last = line
			fmt.Printf("%s: %s\n", key, line)
		}
	}

	for {
		select {
		case err := <-done:
			report()
			return err
		case <-ticker.C:
			report()
		}
	}
}

func statusLabel(meta model.JobMeta) string {
	if meta.Status == "" {
		return "unknown"
	}
	if meta.Reason != "" {
		return meta.Status + " (" + meta.Reason + ")"
	}
	return meta.Status
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
