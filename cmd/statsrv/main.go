// Command statsrv is the multi-session execution substrate for the
// embedded statistical engine: it spawns one worker process per session,
// serves the editor over REST/SSE, and serves AI clients over two MCP
// transports, all on one configurable listener plus a separate metrics
// listener. Grounded on the teacher's cmd/daemon/main.go wiring shape
// (flags -> config.Load -> logger reconfigure -> pre-flight checks ->
// daemon manager -> blocking Run) and internal/daemon/app.go's SIGHUP
// reload goroutine.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hanlulong/stata-mcp/internal/api"
	"github.com/hanlulong/stata-mcp/internal/config"
	"github.com/hanlulong/stata-mcp/internal/controller"
	"github.com/hanlulong/stata-mcp/internal/daemon"
	statlog "github.com/hanlulong/stata-mcp/internal/log"
	"github.com/hanlulong/stata-mcp/internal/mcpserver"
	"github.com/hanlulong/stata-mcp/internal/metrics"
	"github.com/hanlulong/stata-mcp/internal/session"
	"github.com/hanlulong/stata-mcp/internal/worker"
)

var version = "dev"

const (
	exitOK = iota
	exitConfigInvalid
	exitEngineNotFound
	exitPortUnavailable
	exitBootstrapFailed
)

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	host := flag.String("host", "", "bind host, overrides config/env")
	port := flag.Int("port", 0, "bind port, overrides config/env")
	enginePath := flag.String("engine-path", "", "path to the embeddable statistical engine executable")
	engineEdition := flag.String("engine-edition", "", "engine edition to initialise")
	logLevel := flag.String("log-level", "", "log level, overrides config/env")
	metricsAddr := flag.String("metrics-addr", "", "address for the Prometheus metrics server, empty disables it")
	flag.Parse()

	if *showVersion {
		fmt.Printf("statsrv %s\n", version)
		return exitOK
	}

	statlog.Configure(statlog.Config{Level: "info", Service: "statsrv", Version: version})
	logger := statlog.WithComponent("main")

	loader := config.NewLoader(*configPath, version)
	cli := config.CLIOverrides{
		Host:          *host,
		Port:          *port,
		EnginePath:    *enginePath,
		EngineEdition: *engineEdition,
		LogLevel:      *logLevel,
		MetricsAddr:   *metricsAddr,
		ConfigPath:    *configPath,
	}
	cfg, err := loader.Load(cli)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration")
		return exitConfigInvalid
	}

	statlog.Configure(statlog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: version})
	logger = statlog.WithComponent("main")

	if err := checkEngine(cfg.EnginePath); err != nil {
		logger.Error().Err(err).Str("engine_path", cfg.EnginePath).Msg("embeddable engine not found")
		return exitEngineNotFound
	}

	listenAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if err := checkPort(listenAddr, cfg.ForcePort); err != nil {
		logger.Error().Err(err).Str("addr", listenAddr).Msg("bind address unavailable")
		return exitPortUnavailable
	}

	cfgHolder := config.NewHolder(cfg, loader, cli, *configPath)

	spawner := worker.NewSupervisor(worker.Config{
		EnginePath:     cfg.EnginePath,
		EngineEdition:  cfg.EngineEdition,
		StartTimeout:   cfg.WorkerStartTimeout,
		KillTimeout:    10 * time.Second,
		DisplayCapable: false,
		StreamInterval: cfg.StreamInterval,
	})

	manager := session.NewManager(session.Config{
		MaxSessions:    cfg.MaxSessions,
		SessionTimeout: cfg.SessionTimeout,
		ReaperInterval: config.ReaperInterval,
	}, spawner)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Bootstrap(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to spawn default session worker")
		return exitBootstrapFailed
	}

	reaper := session.NewReaper(manager, config.ReaperInterval, cfg.SessionTimeout)
	go reaper.Run(ctx)

	ctrl := controller.New(manager)

	apiServer := api.NewServer(cfgHolder, manager, ctrl, serverDir(), func() bool {
		return checkEngine(cfgHolder.Get().EnginePath) == nil
	})
	mux := apiServer.Routes()

	mcpAdapter := mcpserver.New(cfgHolder, manager, ctrl)
	legacySSE := mcpAdapter.LegacySSEHandler()
	mux.Handle("/mcp", legacySSE)
	mux.Handle("/mcp/*", legacySSE)
	streamable := mcpAdapter.StreamableHandler()
	mux.Handle("/mcp-streamable", streamable)
	mux.Handle("/mcp-streamable/*", streamable)

	mgr := daemon.NewManager(daemon.Config{
		ListenAddr:      listenAddr,
		MetricsAddr:     cfg.MetricsAddr,
		ShutdownTimeout: 15 * time.Second,
	}, mux, metricsHandler(cfg.MetricsAddr), cfgHolder)

	mgr.RegisterShutdownHook("sessions", func(shutdownCtx context.Context) error {
		return manager.Shutdown(shutdownCtx)
	})

	go watchReloadSignal(ctx, mgr)

	logger.Info().Str("addr", listenAddr).Str("metrics_addr", cfg.MetricsAddr).Str("version", version).Msg("statsrv starting")
	if err := mgr.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("daemon stopped with error")
		return exitBootstrapFailed
	}

	logger.Info().Msg("statsrv exited cleanly")
	return exitOK
}

// watchReloadSignal reloads the hot-reloadable configuration subset on
// SIGHUP, independent of the SIGINT/SIGTERM shutdown context.
func watchReloadSignal(ctx context.Context, mgr *daemon.Manager) {
	logger := statlog.WithComponent("main")
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info().Msg("received SIGHUP, reloading configuration")
			reloadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := mgr.Reload(reloadCtx); err != nil {
				logger.Warn().Err(err).Msg("config reload failed")
			}
			cancel()
		}
	}
}

func checkEngine(enginePath string) error {
	if enginePath == "" {
		return fmt.Errorf("engine_path is not configured")
	}
	info, err := os.Stat(enginePath)
	if err != nil {
		return fmt.Errorf("stat engine path: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("engine_path %q is a directory, expected an executable", enginePath)
	}
	return nil
}

// checkPort verifies listenAddr is bindable. force_port is honoured only as
// far as a clean process can: there is no portable, privilege-free way to
// evict another process's listener, so force merely suppresses the
// preflight check and defers the conflict to the real ListenAndServe call.
func checkPort(addr string, force bool) error {
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		return ln.Close()
	}
	if force {
		return nil
	}
	return err
}

func metricsHandler(addr string) http.Handler {
	if addr == "" {
		return nil
	}
	return metrics.Handler()
}

func serverDir() string {
	exe, err := os.Executable()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Dir(exe)
}
