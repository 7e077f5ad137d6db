package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mp3d/internal/transcode"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP service until ctx is cancelled, then shuts down gracefully.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	if !transcode.NewFFmpegEncoder(config.Transcode.FFmpegPath).Available() {
		r.logger.Warn("ffmpeg not found, downloads will fail", "path", config.Transcode.FFmpegPath)
	}

	ln, err := net.Listen("tcp", config.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", config.Server.Addr(), err)
	}

	srv := &http.Server{
		Handler:           r.router(config),
		ReadHeaderTimeout: config.Server.ReadHeaderTimeout.Duration,
		ErrorLog:          r.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	r.logger.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	r.logger.Info("shutting down", "timeout", config.Server.ShutdownTimeout.Duration)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout.Duration)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
