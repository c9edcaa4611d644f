// The worker binary executes queued screening runs. It consumes
// screening.requested from the bus, claims each run under a Redis lock,
// screens the registry corpus and archives the report to object storage.
// Several worker processes share one consumer group; within a process the
// concurrency knob runs parallel group members.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appscreen "github.com/turtacn/ChemScreen/internal/application/screening"
	"github.com/turtacn/ChemScreen/internal/config"
	"github.com/turtacn/ChemScreen/internal/infrastructure/database/postgres"
	pgrepo "github.com/turtacn/ChemScreen/internal/infrastructure/database/postgres/repositories"
	redisclient "github.com/turtacn/ChemScreen/internal/infrastructure/database/redis"
	"github.com/turtacn/ChemScreen/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	minioclient "github.com/turtacn/ChemScreen/internal/infrastructure/storage/minio"
	"github.com/turtacn/ChemScreen/pkg/errors"
	"github.com/turtacn/ChemScreen/pkg/types/common"
)

var version = "dev"

const (
	healthPort     = 8081
	startupTimeout = 30 * time.Second
	drainTimeout   = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment)")
	concurrency := flag.Int("concurrency", 0, "parallel consumers (overrides config)")
	flag.Parse()

	if err := run(*configPath, *concurrency); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, concurrencyFlag int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	logger = logger.Named("worker")

	concurrency := cfg.Worker.Concurrency
	if concurrencyFlag > 0 {
		concurrency = concurrencyFlag
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	logger.Info("starting",
		logging.String("version", version),
		logging.Int("concurrency", concurrency))

	startCtx, cancelStart := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStart()

	pg, err := postgres.NewConnection(startCtx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()

	redisCli, err := redisclient.NewClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisCli.Close()

	minioCli, err := minioclient.NewClient(startCtx, cfg.MinIO, logger)
	if err != nil {
		return fmt.Errorf("minio: %w", err)
	}
	defer minioCli.Close()

	producer, err := kafka.NewProducer(cfg.Kafka, logger)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()

	lockTTL := cfg.Worker.HeartbeatInterval * 3
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}

	svc, err := appscreen.NewService(appscreen.Deps{
		Runs:     pgrepo.NewScreeningRunRepository(pg.Pool(), logging.Sugar(logger)),
		Registry: pgrepo.NewMoleculeRepository(pg.Pool(), logging.Sugar(logger)),
		Reports:  minioclient.NewReportStore(minioCli, logger),
		Events:   producer,
		LockFor: func(runID string) appscreen.Locker {
			return redisclient.NewRunLock(redisCli, runID, lockTTL)
		},
	}, cfg.Screening, logger)
	if err != nil {
		return fmt.Errorf("screening service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumers, err := startConsumers(ctx, cfg, concurrency, svc, logger)
	if err != nil {
		return err
	}

	healthSrv := startHealthServer(logger)
	statsDone := startStatsLoop(ctx, cfg.Worker.HeartbeatInterval, consumers, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", logging.String("signal", sig.String()))

	cancel()
	<-statsDone

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelDrain()
	for _, c := range consumers {
		if err := c.Close(); err != nil {
			logger.Warn("consumer close failed", logging.Err(err))
		}
	}
	if err := healthSrv.Shutdown(drainCtx); err != nil {
		logger.Warn("health server shutdown failed", logging.Err(err))
	}
	logger.Info("stopped")
	return nil
}

// startConsumers runs n consumer-group members, each dispatching
// screening.requested to the run executor.
func startConsumers(
	ctx context.Context,
	cfg *config.Config,
	n int,
	svc *appscreen.Service,
	logger logging.Logger,
) ([]*kafka.Consumer, error) {
	consumers := make([]*kafka.Consumer, 0, n)
	for i := 0; i < n; i++ {
		consumer, err := kafka.NewConsumer(cfg.Kafka, []string{kafka.TopicScreeningRequested}, logger)
		if err != nil {
			for _, c := range consumers {
				c.Close()
			}
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		consumer.Subscribe(kafka.TopicScreeningRequested, executeRun(svc, logger))
		if err := consumer.Start(ctx); err != nil {
			consumer.Close()
			for _, c := range consumers {
				c.Close()
			}
			return nil, fmt.Errorf("starting consumer: %w", err)
		}
		consumers = append(consumers, consumer)
	}
	return consumers, nil
}

// executeRun turns a screening.requested event into a run execution. A
// conflict means another member already claimed the run and is not retried.
func executeRun(svc *appscreen.Service, logger logging.Logger) kafka.Handler {
	return func(ctx context.Context, msg *kafka.Message) error {
		env, err := kafka.DecodeEnvelope(msg)
		if err != nil {
			return err
		}
		var payload kafka.ScreeningRequestedPayload
		if err := env.DecodePayload(&payload); err != nil {
			return err
		}

		logger.Info("executing screening run",
			logging.String("run_id", payload.RunID),
			logging.String("mode", payload.Mode))
		if err := svc.Execute(ctx, common.ID(payload.RunID)); err != nil {
			if errors.IsCode(err, errors.ErrCodeConflict) {
				logger.Info("run already claimed", logging.String("run_id", payload.RunID))
				return nil
			}
			return err
		}
		return nil
	}
}

// startStatsLoop logs consumer counters on the heartbeat interval.
func startStatsLoop(ctx context.Context, interval time.Duration, consumers []*kafka.Consumer, logger logging.Logger) <-chan struct{} {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var consumed, processed, failed, deadLettered int64
				for _, c := range consumers {
					a, b, f, d := c.Counters()
					consumed += a
					processed += b
					failed += f
					deadLettered += d
				}
				logger.Info("worker heartbeat",
					logging.Int64("consumed", consumed),
					logging.Int64("processed", processed),
					logging.Int64("failed", failed),
					logging.Int64("dead_lettered", deadLettered))
			}
		}
	}()
	return done
}

func startHealthServer(logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", healthPort),
		Handler: mux,
	}
	go func() {
		logger.Info("health server listening", logging.Int("port", healthPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", logging.Err(err))
		}
	}()
	return srv
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}
