package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ytdl-web/internal/download"
	"ytdl-web/internal/keygen"
)

const doctorTimeout = 10 * time.Second

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(appOptions{logOut: os.Stderr, logLevel: zerolog.WarnLevel, skipStore: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()
	res := download.Doctor(ctx, download.DoctorOptions{
		Worker: a.cfg.Worker(),
		Dirs: map[string]string{
			"temp":      a.cfg.TempFolder,
			"uploads":   a.cfg.UploadsDir,
			"downloads": a.cfg.DownloadsDir,
			"output":    a.cfg.OutputDir,
		},
		Ping: a.ping,
	})
	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		for _, c := range res.Checks {
			status := "ok"
			if !c.OK {
				status = "fail"
			}
			fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
		}
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	if !*jsonOut {
		fmt.Println("doctor: all checks passed")
	}
	return nil
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	count := fs.Int("n", 1, "number of keys to print")
	sanitize := fs.String("sanitize", "", "print the sanitized form of a key instead")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*sanitize) != "" {
		fmt.Println(keygen.Sanitize(*sanitize))
		return nil
	}
	if *count < 1 {
		return fmt.Errorf("-n must be at least 1, got %d", *count)
	}
	for i, n := 0, *count; i < n; i++ {
		fmt.Println(keygen.Generate())
	}
	return nil
}
