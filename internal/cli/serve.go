package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	harrow "github.com/VanDung-dev/HieraTime-Engine/arrow"
	"github.com/VanDung-dev/HieraTime-Engine/api"
	"github.com/VanDung-dev/HieraTime-Engine/compute/temporal"
	"github.com/VanDung-dev/HieraTime-Engine/engine"
	"github.com/VanDung-dev/HieraTime-Engine/internal/config"
	"github.com/VanDung-dev/HieraTime-Engine/network"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the TCP compute server",
		Long: "Serve Arrow IPC compute requests over length-prefixed TCP, optionally over ZeroMQ, " +
			"with Prometheus metrics on a separate HTTP endpoint.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stopWatch, err := a.watchConfig()
			if err != nil {
				return err
			}
			defer stopWatch()

			return Serve(ctx, a.cfg, a.logger)
		},
	}

	flags := cmd.Flags()
	flags.String("address", "", "TCP listen address")
	flags.Bool("zmq", false, "also serve on a ZeroMQ REP socket")
	flags.String("zmq-endpoint", "", "ZeroMQ endpoint")
	flags.String("metrics-address", "", "Prometheus listen address")
	flags.Int("workers", 0, "worker goroutines (0 runs kernels inline)")
	flags.String("overflow", "", "overflow policy (error, null)")
	flags.String("compression", "", "IPC body compression (none, lz4, zstd)")
	a.bind(cmd, "server.address", "address")
	a.bind(cmd, "zmq.enabled", "zmq")
	a.bind(cmd, "zmq.endpoint", "zmq-endpoint")
	a.bind(cmd, "metrics.address", "metrics-address")
	a.bind(cmd, "engine.workers", "workers")
	a.bind(cmd, "engine.overflow_policy", "overflow")
	a.bind(cmd, "ipc.compression", "compression")

	return cmd
}

// Serve runs the configured servers until ctx is done, then shuts them
// down.
func Serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	codec, err := harrow.NewIPCCodec(nil, cfg.IPC.Compression)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := api.NewMetrics(cfg.Metrics.Namespace, reg)

	var pool *engine.WorkerPool
	if cfg.Engine.Workers > 0 {
		pool = engine.NewWorkerPool("compute", cfg.Engine.Workers, cfg.Engine.QueueSize)
		defer func() {
			if err := pool.ShutdownWithTimeout(10 * time.Second); err != nil {
				logger.Warn("worker pool shutdown", zap.Error(err))
			}
		}()
	}
	executor := engine.NewExecutor(pool, cfg.Engine.ChunkSize, nil)
	handler := api.NewArrowHandler(codec, executor, metrics, logger.Named("handler"),
		temporal.WithOverflowPolicy(cfg.Overflow()))

	auth := api.AuthConfig{Enabled: cfg.Server.AuthEnabled, Token: cfg.Server.AuthToken}
	if auth.Enabled && auth.Token == "" {
		token, err := api.GenerateToken()
		if err != nil {
			return err
		}
		auth.Token = token
		announceToken(os.Stderr, logger, token)
	}

	server := api.NewArrowServer(api.ServerConfig{
		Address:        cfg.Server.Address,
		MaxMessageSize: cfg.Server.MaxMessageSize,
		Auth:           auth,
		IdleTimeout:    cfg.Server.IdleTimeout,
	}, handler, logger.Named("tcp"))
	if err := server.StartAsync(); err != nil {
		return err
	}
	defer server.Stop()

	if cfg.Zmq.Enabled {
		zs := network.NewZmqServer(cfg.Zmq.Endpoint, cfg.Server.MaxMessageSize, handler, logger.Named("zmq"))
		if err := zs.Start(); err != nil {
			return err
		}
		defer zs.Stop()
	}

	if cfg.Metrics.Enabled {
		ms := api.NewMetricsServer(cfg.Metrics.Address, reg, logger.Named("metrics"))
		if err := ms.StartAsync(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		logger.Info("metrics server listening", zap.Stringer("address", ms.Addr()))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ms.Stop(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// announceToken prints a generated auth token once to w. The log only
// carries its fingerprint.
func announceToken(w io.Writer, logger *zap.Logger, token string) {
	fmt.Fprintf(w, "generated auth token: %s\n", token)
	logger.Warn("auth enabled without a token, generated one",
		zap.String("fingerprint", api.TokenFingerprint(token)))
}
