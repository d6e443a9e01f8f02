// Command coordinator runs a single cluster node: leader election plus the
// HTTP surface for lease and worker-state operations (spec.md §2, C2+C3).
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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quadrant-vms/core-sub001/internal/cluster"
	"github.com/quadrant-vms/core-sub001/internal/config"
	"github.com/quadrant-vms/core-sub001/internal/coordinator"
	"github.com/quadrant-vms/core-sub001/internal/lease"
	"github.com/quadrant-vms/core-sub001/internal/log"
	"github.com/quadrant-vms/core-sub001/internal/statestore"
	"github.com/quadrant-vms/core-sub001/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("coordinator %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	log.Configure(log.Config{Level: "info", Service: "coordinator"})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	holder, err := config.NewHolder(config.NewLoader(*configPath))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg := holder.Get()

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "coordinator", NodeID: cfg.NodeID})
	logger = log.WithComponent("main")

	if err := holder.WatchFile(*configPath); err != nil {
		logger.Warn().Err(err).Msg("config hot-reload disabled: failed to start file watcher")
	}
	defer holder.Close() //nolint:errcheck

	tracerProvider, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName:  "coordinator",
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

	limits := lease.Limits{
		Min:     cfg.MinTTL(),
		Max:     cfg.MaxTTL(),
		Default: cfg.DefaultTTL(),
	}
	leaseStore := lease.NewMemoryStore(limits)

	if cfg.LeaseSnapshotDir != "" {
		snap, err := lease.OpenSnapshotter(cfg.LeaseSnapshotDir, leaseStore, 5*time.Second)
		if err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.LeaseSnapshotDir).Msg("failed to open lease snapshotter")
		}
		defer snap.Close() //nolint:errcheck
		if records, err := snap.Restore(ctx); err != nil {
			logger.Warn().Err(err).Msg("lease snapshot restore failed, starting with an empty lease table")
		} else if len(records) > 0 {
			leaseStore.LoadRecords(records)
			logger.Info().Int("count", len(records)).Msg("restored leases from snapshot")
		}
		go snap.Run(ctx)
	}

	state, closeState := buildStateStore(cfg, logger)
	if closeState != nil {
		defer closeState() //nolint:errcheck
	}

	var persist cluster.Persister
	if cfg.HardStatePath != "" {
		persist = cluster.NewHardStateStore(cfg.HardStatePath)
	}

	peers := make([]cluster.Peer, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers = append(peers, cluster.Peer{ID: p.NodeID, Address: p.Address})
	}

	transport := cluster.NewHTTPTransport(cfg.HeartbeatInterval())
	clusterCfg := cluster.Config{
		ElectionTimeoutBase:   cfg.ElectionTimeout(),
		ElectionTimeoutJitter: cfg.ElectionJitter(),
		HeartbeatInterval:     cfg.HeartbeatInterval(),
		VoteRPCTimeout:        cfg.ForwardTimeout(),
		HeartbeatRPCTimeout:   cfg.HeartbeatInterval(),
	}
	clusterMgr := cluster.New(cfg.NodeID, peers, clusterCfg, transport, persist)
	clusterMgr.OnLeaderElected(func(term uint64) {
		logger.Info().Uint64("term", term).Msg("became leader")
	})
	go clusterMgr.Run(ctx)

	srv := coordinator.New(coordinator.Config{
		NodeID:         cfg.NodeID,
		ForwardTimeout: cfg.ForwardTimeout(),
		RateLimitRPS:   cfg.RateLimitRPS,
		AdmissionRPS:   cfg.AdmissionRPS,
		AdmissionBurst: cfg.AdmissionBurst,
	}, leaseStore, clusterMgr, state)

	httpServer := &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErrs := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.BindAddr).Str("node_id", cfg.NodeID).Msg("coordinator listening")
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
			logger.Fatal().Err(err).Msg("coordinator server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("coordinator exiting")
}

// buildStateStore wires a sqlite-backed, optionally redis-cached state
// store when cfg.DatabaseURL is set, otherwise an in-memory store for
// single-process/dev deployments. The returned close func may be nil.
func buildStateStore(cfg config.Config, logger zerolog.Logger) (statestore.Store, func() error) {
	if cfg.DatabaseURL == "" {
		return statestore.NewMemoryStore(), nil
	}

	backing, err := statestore.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Str("database_url", cfg.DatabaseURL).Msg("failed to open state store")
	}

	var store statestore.Store = backing
	closeFn := backing.Close

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cached := statestore.NewCachedStore(backing, rdb, 30*time.Second)
		store = cached
		closeFn = func() error {
			_ = rdb.Close()
			return backing.Close()
		}
	}

	return store, closeFn
}
