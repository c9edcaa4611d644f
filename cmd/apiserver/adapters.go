package main

import (
	"context"
	"fmt"

	"github.com/turtacn/ChemScreen/internal/config"
	neo4jdriver "github.com/turtacn/ChemScreen/internal/infrastructure/database/neo4j"
	"github.com/turtacn/ChemScreen/internal/infrastructure/database/postgres"
	redisclient "github.com/turtacn/ChemScreen/internal/infrastructure/database/redis"
	"github.com/turtacn/ChemScreen/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	milvusclient "github.com/turtacn/ChemScreen/internal/infrastructure/search/milvus"
	opensearchclient "github.com/turtacn/ChemScreen/internal/infrastructure/search/opensearch"
	minioclient "github.com/turtacn/ChemScreen/internal/infrastructure/storage/minio"
	"github.com/turtacn/ChemScreen/internal/interfaces/http/handlers"
)

// infrastructure bundles every backing-service client the API server opens.
// Close releases them in reverse dependency order and is safe to call on a
// partially constructed bundle.
type infrastructure struct {
	pg         *postgres.Connection
	redis      *redisclient.Client
	neo4j      *neo4jdriver.Driver
	milvus     *milvusclient.Client
	opensearch *opensearchclient.Client
	minio      *minioclient.Client
	producer   *kafka.Producer
}

func (i *infrastructure) Close(logger logging.Logger) {
	if i.producer != nil {
		if err := i.producer.Close(); err != nil {
			logger.Warn("kafka producer close failed", logging.Err(err))
		}
	}
	if i.minio != nil {
		if err := i.minio.Close(); err != nil {
			logger.Warn("minio close failed", logging.Err(err))
		}
	}
	if i.opensearch != nil {
		if err := i.opensearch.Close(); err != nil {
			logger.Warn("opensearch close failed", logging.Err(err))
		}
	}
	if i.milvus != nil {
		if err := i.milvus.Close(); err != nil {
			logger.Warn("milvus close failed", logging.Err(err))
		}
	}
	if i.neo4j != nil {
		if err := i.neo4j.Close(); err != nil {
			logger.Warn("neo4j close failed", logging.Err(err))
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			logger.Warn("redis close failed", logging.Err(err))
		}
	}
	if i.pg != nil {
		i.pg.Close()
	}
}

// healthCheckers exposes each backing service to the readiness probe.
func (i *infrastructure) healthCheckers() []handlers.HealthChecker {
	return []handlers.HealthChecker{
		handlers.CheckFunc{CheckName: "postgres", Fn: i.pg.HealthCheck},
		handlers.CheckFunc{CheckName: "redis", Fn: i.redis.Ping},
		handlers.CheckFunc{CheckName: "neo4j", Fn: i.neo4j.HealthCheck},
		handlers.CheckFunc{CheckName: "milvus", Fn: i.milvus.CheckHealth},
		handlers.CheckFunc{CheckName: "opensearch", Fn: i.opensearch.Ping},
		handlers.CheckFunc{CheckName: "minio", Fn: i.minio.HealthCheck},
	}
}

// ensureTopics creates the bus topics the run lifecycle publishes to.
func ensureTopics(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := tm.Close(); cerr != nil {
			logger.Warn("topic manager close failed", logging.Err(cerr))
		}
	}()
	return tm.EnsureDefaultTopics(ctx)
}

// initInfrastructure opens every backing-service client. On any failure the
// clients opened so far are closed before the error is returned.
func initInfrastructure(ctx context.Context, cfg *config.Config, logger logging.Logger) (*infrastructure, error) {
	infra := &infrastructure{}

	pg, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	infra.pg = pg

	redisCli, err := redisclient.NewClient(cfg.Redis, logger)
	if err != nil {
		infra.Close(logger)
		return nil, fmt.Errorf("redis: %w", err)
	}
	infra.redis = redisCli

	neo4jDrv, err := neo4jdriver.NewDriver(cfg.Neo4j, logger)
	if err != nil {
		infra.Close(logger)
		return nil, fmt.Errorf("neo4j: %w", err)
	}
	infra.neo4j = neo4jDrv

	milvusCli, err := milvusclient.NewClient(ctx, cfg.Milvus, logger)
	if err != nil {
		infra.Close(logger)
		return nil, fmt.Errorf("milvus: %w", err)
	}
	infra.milvus = milvusCli

	osCli, err := opensearchclient.NewClient(cfg.OpenSearch, logger)
	if err != nil {
		infra.Close(logger)
		return nil, fmt.Errorf("opensearch: %w", err)
	}
	infra.opensearch = osCli

	minioCli, err := minioclient.NewClient(ctx, cfg.MinIO, logger)
	if err != nil {
		infra.Close(logger)
		return nil, fmt.Errorf("minio: %w", err)
	}
	infra.minio = minioCli

	producer, err := kafka.NewProducer(cfg.Kafka, logger)
	if err != nil {
		infra.Close(logger)
		return nil, fmt.Errorf("kafka: %w", err)
	}
	infra.producer = producer

	return infra, nil
}
