// Package daemon supervises the long-running process: it claims the pid
// file, starts the orchestrator and the endpoint server, reacts to signals,
// and runs the periodic health monitor.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"foldermcp/internal/config"
	"foldermcp/internal/embed"
	"foldermcp/internal/mcp"
	"foldermcp/internal/orchestrator"
)

type Options struct {
	Config     config.Config
	ConfigPath string
	Version    string
	Logger     zerolog.Logger
}

type Daemon struct {
	holder     *config.Holder
	configPath string
	version    string
	log        zerolog.Logger

	orch   *orchestrator.Orchestrator
	server *mcp.Server
}

func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if cfg.StateDir == "" {
		return nil, fmt.Errorf("daemon: state directory is required")
	}
	if cfg.Server.MCPPath == "" {
		cfg.Server.MCPPath = "/mcp"
	}

	orch := orchestrator.New(orchestrator.Options{
		StateRoot:             cfg.StateDir,
		Chunking:              cfg.Chunking,
		Debounce:              time.Duration(cfg.DebounceWindow()) * time.Millisecond,
		BatchSize:             cfg.Daemon.Performance.EmbedBatchSize,
		MaxConcurrentIndexing: cfg.Daemon.Performance.MaxConcurrentIndexing,
		Logger:                opts.Logger,
	})

	provider, err := embed.NewProvider("", "")
	if err != nil {
		return nil, err
	}
	handler := mcp.NewHandler(mcp.HandlerOptions{
		Orchestrator: orch,
		Provider:     provider,
		MaxTokens:    cfg.Server.DefaultMaxTokens,
		Development:  cfg.Development,
		Logger:       opts.Logger,
	})
	server, err := mcp.NewServer(mcp.ServerOptions{
		Addr:           cfg.Server.Listen,
		Path:           cfg.Server.MCPPath,
		Handler:        handler,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		Logger:         opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Daemon{
		holder:     config.NewHolder(cfg),
		configPath: opts.ConfigPath,
		version:    opts.Version,
		log:        opts.Logger,
		orch:       orch,
		server:     server,
	}, nil
}

// Addr reports the endpoint server's bound address.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// Orchestrator exposes the folder registry, mainly for tests.
func (d *Daemon) Orchestrator() *orchestrator.Orchestrator {
	return d.orch
}

// Run blocks until ctx is cancelled or a fatal error occurs. SIGINT and
// SIGTERM trigger graceful shutdown; SIGHUP reloads the configuration file
// and diff-applies the folder list.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.holder.Snapshot()
	if err := WritePIDFile(cfg.StateDir, d.version); err != nil {
		return err
	}
	defer RemovePIDFile(cfg.StateDir)

	if err := WriteConnectionFile(cfg.StateDir, "http://"+d.server.Addr()+cfg.Server.MCPPath); err != nil {
		RemovePIDFile(cfg.StateDir)
		return err
	}
	defer RemoveConnectionFile(cfg.StateDir)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for _, folder := range cfg.Folders {
		if err := d.orch.Add(ctx, folder); err != nil {
			d.log.Error().Err(err).Str("folder", folder.Path).Msg("folder registration failed")
		}
	}

	monitor := newHealthMonitor(d.orch, cfg.Daemon, d.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.server.Serve(gctx) })
	g.Go(func() error {
		monitor.run(gctx)
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				d.reload(gctx)
			}
		}
	})

	err := g.Wait()

	shutdown := time.Duration(cfg.Daemon.ShutdownTimeoutSeconds) * time.Second
	if shutdown <= 0 {
		shutdown = 20 * time.Second
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdown)
	defer cancel()
	if stopErr := d.orch.StopAll(stopCtx); stopErr != nil {
		d.log.Error().Err(stopErr).Msg("folder shutdown incomplete")
		if err == nil {
			err = stopErr
		}
	}
	d.log.Info().Msg("daemon stopped")
	return err
}

// reload re-reads the configuration file and applies the folder diff without
// interrupting untouched folders.
func (d *Daemon) reload(ctx context.Context) {
	old := d.holder.Snapshot()
	cfg, err := config.Load(d.configPath)
	if err != nil {
		d.log.Error().Err(err).Msg("reload rejected, keeping active configuration")
		return
	}
	cfg.StateDir = old.StateDir

	diff := d.holder.Replace(cfg)
	d.log.Info().
		Int("added", len(diff.Added)).
		Int("removed", len(diff.Removed)).
		Int("changed", len(diff.Changed)).
		Msg("configuration reloaded")
	if err := d.orch.Reload(ctx, diff); err != nil {
		d.log.Error().Err(err).Msg("reload applied with errors")
	}
}
