// The apiserver binary is the ChemScreen HTTP API: molecule registry,
// virtual screening, toxicity models, name search and public-database
// imports, backed by PostgreSQL, Redis, Neo4j, Milvus, OpenSearch, MinIO
// and Kafka.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	appmol "github.com/turtacn/ChemScreen/internal/application/molecule"
	appscreen "github.com/turtacn/ChemScreen/internal/application/screening"
	apptox "github.com/turtacn/ChemScreen/internal/application/toxicity"
	"github.com/turtacn/ChemScreen/internal/config"
	"github.com/turtacn/ChemScreen/internal/infrastructure/database/postgres"
	pgrepo "github.com/turtacn/ChemScreen/internal/infrastructure/database/postgres/repositories"
	redisclient "github.com/turtacn/ChemScreen/internal/infrastructure/database/redis"
	neo4jrepo "github.com/turtacn/ChemScreen/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/prometheus"
	milvusclient "github.com/turtacn/ChemScreen/internal/infrastructure/search/milvus"
	opensearchclient "github.com/turtacn/ChemScreen/internal/infrastructure/search/opensearch"
	minioclient "github.com/turtacn/ChemScreen/internal/infrastructure/storage/minio"
	httpserver "github.com/turtacn/ChemScreen/internal/interfaces/http"
	"github.com/turtacn/ChemScreen/internal/interfaces/http/handlers"
	"github.com/turtacn/ChemScreen/internal/interfaces/http/middleware"
	"github.com/turtacn/ChemScreen/internal/providers/chembl"
	"github.com/turtacn/ChemScreen/internal/providers/pubchem"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
)

const startupTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	logger = logger.Named("apiserver")
	logger.Info("starting",
		logging.String("version", version),
		logging.Int("port", cfg.Server.Port))

	if cfg.Database.MigrationPath != "" {
		src := "file://" + cfg.Database.MigrationPath
		if err := postgres.RunMigrations(cfg.Database.DSN(), src); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("schema migrations applied")
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	infra, err := initInfrastructure(startCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close(logger)

	// Wire the stores and indexes over the raw clients.
	moleculeRepo := pgrepo.NewMoleculeRepository(infra.pg.Pool(), logging.Sugar(logger))
	runRepo := pgrepo.NewScreeningRunRepository(infra.pg.Pool(), logging.Sugar(logger))

	cache := redisclient.NewCache(infra.redis, cfg.Redis, logger)
	moleculeCache := redisclient.NewMoleculeCache(cache, cfg.Redis.DefaultTTL)

	fpIndex := milvusclient.NewFingerprintIndex(infra.milvus, logger)
	fpSearcher := milvusclient.NewSearcher(infra.milvus, fpIndex, logger)

	nameIndexer := opensearchclient.NewIndexer(infra.opensearch, logger)
	nameSearcher := opensearchclient.NewSearcher(infra.opensearch, logger)

	graph := neo4jrepo.NewSimilarityGraphRepo(infra.neo4j, cfg.Neo4j, logger)

	reportStore := minioclient.NewReportStore(infra.minio, logger)
	modelStore := minioclient.NewModelStore(infra.minio, logger)

	if err := prepareStores(startCtx, cfg, infra, fpIndex, nameIndexer, graph, logger); err != nil {
		return err
	}

	// Application services.
	moleculeSvc, err := appmol.NewService(appmol.Deps{
		Store:    moleculeRepo,
		Cache:    moleculeCache,
		Vectors:  fpIndex,
		Searcher: fpSearcher,
		Names:    nameIndexer,
		Graph:    graph,
		Events:   infra.producer,
	}, cfg.Screening, logger)
	if err != nil {
		return fmt.Errorf("molecule service: %w", err)
	}

	screeningSvc, err := appscreen.NewService(appscreen.Deps{
		Runs:     runRepo,
		Registry: moleculeRepo,
		Reports:  reportStore,
		Events:   infra.producer,
		LockFor: func(runID string) appscreen.Locker {
			return redisclient.NewRunLock(infra.redis, runID, cfg.Worker.HeartbeatInterval*3)
		},
	}, cfg.Screening, logger)
	if err != nil {
		return fmt.Errorf("screening service: %w", err)
	}

	toxicitySvc, err := apptox.NewService(modelStore, cfg.Toxicity, logger)
	if err != nil {
		return fmt.Errorf("toxicity service: %w", err)
	}

	chemblClient, err := chembl.NewClient(cfg.Providers.ChEMBL, logger)
	if err != nil {
		return fmt.Errorf("chembl client: %w", err)
	}
	pubchemClient, err := pubchem.NewClient(cfg.Providers.PubChem, logger)
	if err != nil {
		return fmt.Errorf("pubchem client: %w", err)
	}

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "chemscreen",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	appMetrics := prometheus.NewAppMetrics(collector)

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)

	router := httpserver.NewRouter(httpserver.RouterConfig{
		MoleculeHandler:  handlers.NewMoleculeHandler(moleculeSvc),
		ScreeningHandler: handlers.NewScreeningHandler(screeningSvc),
		ToxicityHandler:  handlers.NewToxicityHandler(toxicitySvc),
		SearchHandler:    handlers.NewSearchHandler(nameSearcher),
		ImportHandler:    handlers.NewImportHandler(chemblClient, pubchemClient, moleculeSvc),
		HealthHandler:    handlers.NewHealthHandler(version, infra.healthCheckers()...),
		RateLimit:        &rateLimitCfg,
		Shutdown:         stopCleanup,
		Logger:           logger,
		Metrics:          appMetrics,
		MetricsHandler:   collector.Handler(),
	})

	srv := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", logging.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	if err := srv.Stop(context.Background()); err != nil {
		logger.Error("graceful shutdown failed", logging.Err(err))
	}
	logger.Info("stopped")
	return nil
}

// prepareStores creates the fingerprint collection, the name index, the
// graph constraints, the object buckets and the bus topics if they do not
// exist yet. Startup proceeds past individual failures so the API can come
// up degraded while a backing service finishes initializing.
func prepareStores(
	ctx context.Context,
	cfg *config.Config,
	infra *infrastructure,
	fpIndex *milvusclient.FingerprintIndex,
	nameIndexer *opensearchclient.Indexer,
	graph *neo4jrepo.SimilarityGraphRepo,
	logger logging.Logger,
) error {
	if err := fpIndex.Ensure(ctx); err != nil {
		logger.Warn("fingerprint collection not ready", logging.Err(err))
	}
	if err := nameIndexer.EnsureIndex(ctx); err != nil {
		logger.Warn("name index not ready", logging.Err(err))
	}
	if err := graph.EnsureSchema(ctx); err != nil {
		logger.Warn("graph schema not ready", logging.Err(err))
	}
	if err := infra.minio.EnsureBuckets(ctx); err != nil {
		logger.Warn("object buckets not ready", logging.Err(err))
	}
	if err := ensureTopics(ctx, cfg, logger); err != nil {
		logger.Warn("bus topics not ready", logging.Err(err))
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}
