package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"foldermcp/internal/config"
	"foldermcp/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon in the foreground",
	RunE:  runServe,
}

var serveListen string

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "host:port to listen on (default from config)")
}

func runServe(_ *cobra.Command, _ []string) error {
	stateDir, err := resolveStateDir()
	if err != nil {
		exitWith(ExitGenericError, "ERROR: "+err.Error())
	}
	configPath := resolveConfigPath(stateDir)

	cfg, err := config.Load(configPath)
	if err != nil {
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}
	cfg.StateDir = stateDir
	if serveListen != "" {
		cfg.Server.Listen = serveListen
	}

	if globalFlags.Dir != "" {
		dir, err := filepath.Abs(globalFlags.Dir)
		if err != nil {
			exitWith(ExitConfigInvalid, "ERROR: bad --dir: "+err.Error())
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			exitWith(ExitConfigInvalid, "ERROR: --dir is not a directory: "+globalFlags.Dir)
		}
		cfg.AddFolder(config.FolderConfig{
			Path:    dir,
			Name:    filepath.Base(dir),
			Enabled: true,
		})
	}

	log := newLogger(cfg.Development)
	d, err := daemon.New(daemon.Options{
		Config:     cfg,
		ConfigPath: configPath,
		Version:    version,
		Logger:     log,
	})
	if err != nil {
		exitWith(ExitGenericError, "ERROR: "+err.Error())
	}

	err = d.Run(context.Background())
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		exitWith(ExitAlreadyRunning, "ERROR: "+err.Error())
	}
	if err != nil {
		return err
	}
	return nil
}

func newLogger(development bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if development {
		level = zerolog.DebugLevel
	}
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if globalFlags.JSON {
		out = os.Stderr
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
