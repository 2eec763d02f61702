package cli

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ytdl-web/internal/httpapi"
)

const shutdownTimeout = 30 * time.Second

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.String("port", "", "listen port (default: PORT or 5000)")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(appOptions{logOut: os.Stdout})
	if err != nil {
		return err
	}
	defer a.Close()
	if p := strings.TrimSpace(*port); p != "" {
		a.cfg.Port = p
	}

	svc, err := a.newService()
	if err != nil {
		return err
	}

	srv := httpapi.NewServer(httpapi.ServerConfig{
		Port:         a.cfg.Port,
		ReadTimeout:  a.cfg.HTTPReadTimeout,
		WriteTimeout: a.cfg.HTTPWriteTimeout,
		IdleTimeout:  a.cfg.HTTPIdleTimeout,
	}, httpapi.NewRouter(svc, a.logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	a.logger.Info().
		Str("addr", srv.Addr()).
		Str("store", a.cfg.StoreBackend).
		Str("worker", strings.Join(a.cfg.Worker().Argv(), " ")).
		Msg("server started")

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, err)
	}
	return serveErr
}
