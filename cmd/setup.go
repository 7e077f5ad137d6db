package main

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/desertthunder/mp3d/internal/shared"
	"github.com/desertthunder/mp3d/internal/transcode"
	"github.com/desertthunder/mp3d/internal/ui"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the embedded example config to --path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	return r.writePlain("✓ Config written to %s\n", path)
}

// SetupCheck reports whether the config is valid and ffmpeg can be found.
//
// It fails if either check fails.
func (r *Runner) SetupCheck(ctx context.Context, cmd *cli.Command) error {
	p := ui.Styles()
	failed := 0

	config, err := r.loadConfig(cmd)
	if err != nil {
		failed++
		r.writePlain("%s", p.Check("config", false, err.Error()))
		config = shared.DefaultConfig()
	} else {
		r.writePlain("%s", p.Check("config", true, cmd.String("config")))
	}

	encoder := transcode.NewFFmpegEncoder(config.Transcode.FFmpegPath)
	if encoder.Available() {
		path, _ := exec.LookPath(encoder.Path)
		r.writePlain("%s", p.Check("ffmpeg", true, path))
	} else {
		failed++
		r.writePlain("%s", p.Check("ffmpeg", false, "not found: "+encoder.Path))
		r.writePlain("%s", p.Warn("install ffmpeg or set FFMPEG_PATH / transcode.ffmpeg_path"))
	}

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}
