// Command worker runs a single worker-node process: the lease client and
// renewal loops embedded per task (spec.md §2, C4), fronted by a small
// control-plane HTTP API for starting and stopping tasks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quadrant-vms/core-sub001/internal/config"
	"github.com/quadrant-vms/core-sub001/internal/log"
	"github.com/quadrant-vms/core-sub001/internal/telemetry"
	"github.com/quadrant-vms/core-sub001/internal/workerclient"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	bindAddr := flag.String("bind-addr", "", "worker control-plane listen address (overrides config)")
	coordinatorAddr := flag.String("coordinator-addr", "", "coordinator base address, e.g. http://127.0.0.1:8080")
	flag.Parse()

	if *showVersion {
		fmt.Printf("worker %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	log.Configure(log.Config{Level: "info", Service: "worker"})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	holder, err := config.NewHolder(config.NewLoader(*configPath))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg := holder.Get()

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "worker", NodeID: cfg.NodeID})
	logger = log.WithComponent("main")

	if err := holder.WatchFile(*configPath); err != nil {
		logger.Warn().Err(err).Msg("config hot-reload disabled: failed to start file watcher")
	}
	defer holder.Close() //nolint:errcheck

	tracerProvider, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName:  "worker",
		NodeID:       cfg.NodeID,
		Endpoint:     cfg.OTLPEndpoint,
		SamplingRate: 1,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
	}()

	addr := *coordinatorAddr
	if addr == "" && len(cfg.Peers) > 0 {
		addr = "http://" + cfg.Peers[0].Address
	}
	if addr == "" {
		logger.Fatal().Msg("no coordinator address configured: pass --coordinator-addr or set peer_addrs")
	}

	listenAddr := *bindAddr
	if listenAddr == "" {
		listenAddr = cfg.BindAddr
	}

	client := workerclient.NewHTTPClient(addr, cfg.ForwardTimeout())
	mgr := workerclient.NewManager(client, workerclient.Config{
		MaxConcurrentTasks: cfg.MaxOwnedResources,
		AcquireRPS:         cfg.AdmissionRPS,
		AcquireBurst:       cfg.AdmissionBurst,
	})
	controlPlane := workerclient.NewServer(mgr, cfg.NodeID)

	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      controlPlane.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErrs := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", listenAddr).Str("coordinator", addr).Str("node_id", cfg.NodeID).Msg("worker control plane listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrs <- err
			return
		}
		serveErrs <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serveErrs:
		if err != nil {
			logger.Fatal().Err(err).Msg("worker control plane failed")
		}
	}

	// spec.md §4.4 step 4: on shutdown, stop every owned task (cancel its
	// renewal loop and release its lease, best-effort) before the process
	// exits.
	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	controlPlane.StopAll(stopCtx)

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel2()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("worker exiting")
}
