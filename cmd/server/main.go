package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"interoprelay/EVMRPC"
	"interoprelay/config"
	"interoprelay/interop"
	"interoprelay/metrics"
	"interoprelay/redis"
	"interoprelay/status"
	"interoprelay/workers"
	"interoprelay/workers/handlers"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "interop-relayer",
		Short: "relays interop transactions between chains and serves their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			// config errors exit with code 2
			cfg := config.Init(configPath)
			zapLogger, err := cfg.CreateLogger(debug)
			if err != nil {
				return errors.Wrap(err, "cannot create logger")
			}
			defer zapLogger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, zapLogger.Sugar())
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yml", "path to the configuration file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

func run(ctx context.Context, cfg *config.Configuration, logger *zap.SugaredLogger) error {
	logger.Info("Starting interop relayer")

	var (
		recorder    metrics.Recorder = metrics.Nop{}
		promHandler http.Handler
	)
	if cfg.Server.Metrics {
		prom := metrics.NewPrometheus()
		recorder = prom
		promHandler = prom.Handler()
	}

	var store status.Store
	switch cfg.Server.StatusStore {
	case config.StoreRedis:
		// without the store there is nothing to serve, do not continue
		redisStore := redis.Init(cfg, logger)
		if err := redisStore.Ping(ctx); err != nil {
			return errors.Wrap(err, "cannot connect to redis")
		}
		defer redisStore.Close()
		store = redisStore
	default:
		store = status.NewMemoryStore(cfg.Server.StatusCapacity, time.Duration(cfg.Server.StatusTTL)*time.Second)
	}

	registry := EVMRPC.NewRegistry(cfg.Chains, nil, logger)
	defer registry.Close()

	var proofs interop.ProofSource = interop.PlaceholderProofSource{}
	if cfg.Relay.ProofSource == config.ProofSourceRPC {
		urls := make(map[uint64]string, len(cfg.Chains))
		for _, c := range cfg.Chains {
			urls[c.ID] = c.RPCURL
		}
		proofs = interop.NewRPCProofSource(
			urls,
			config.Millis(cfg.Relay.ProofRetryInterval),
			config.Millis(cfg.Relay.ProofRequestTimeout),
			logger,
		)
	}

	receipts := workers.NewBroadcaster[workers.ReceiptEvent](logger)
	watcher := workers.NewBlockWatcher(cfg.Relay.HomeChainID, registry, receipts, recorder, logger)
	engine := workers.NewRelayEngine(
		workers.RelayConfigFrom(cfg),
		registry,
		status.NewRecorder(store, logger),
		proofs,
		recorder,
		logger,
	)

	h := &handlers.Handlers{
		Store:            store,
		Watchers:         []handlers.HeadState{watcher},
		QueryInterval:    config.Millis(cfg.Relay.StatusQueryInterval),
		QueryWindow:      config.Millis(cfg.Relay.StatusQueryWindow),
		AllowHexChainIDs: cfg.Relay.LegacyHexChainIDs,
		Logger:           logger.Named("api"),
	}
	server := workers.NewHTTPServer(cfg.Server.ListenAddr, cfg.Server.UseSSL, workers.NewRouter(h, recorder, promHandler), logger)

	g, gctx := errgroup.WithContext(ctx)
	receipts.Subscribe(gctx, "relay", engine.HandleReceipt)

	g.Go(func() error {
		return watcher.Start(gctx)
	})
	g.Go(func() error {
		return server.Run(gctx)
	})

	err := g.Wait()
	receipts.Wait()
	engine.Wait()
	logger.Info("interop relayer stopped")
	return err
}
