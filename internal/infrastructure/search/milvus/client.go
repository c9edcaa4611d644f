// Package milvus holds the fingerprint vector index. Morgan fingerprints are
// stored as binary vectors and searched with the JACCARD metric, whose
// distance is exactly one minus the Tanimoto similarity.
package milvus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/turtacn/ChemScreen/internal/config"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

// newMilvusClient is a variable so tests can inject a fake SDK client.
var newMilvusClient = client.NewClient

var (
	ErrConnectFailed = errors.New(errors.ErrCodeServiceUnavailable, "milvus connection failed")
	ErrUnhealthy     = errors.New(errors.ErrCodeServiceUnavailable, "milvus unhealthy")
)

const (
	connectTimeout   = 10 * time.Second
	keepAliveTime    = 60 * time.Second
	keepAliveTimeout = 20 * time.Second
)

// Client wraps the Milvus SDK connection shared by the index and searcher.
type Client struct {
	mc      client.Client
	cfg     config.MilvusConfig
	logger  logging.Logger
	healthy atomic.Bool
	mu      sync.Mutex
	closed  bool
}

func NewClient(ctx context.Context, cfg config.MilvusConfig, log logging.Logger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New(errors.ErrCodeValidation, "milvus address is required")
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                keepAliveTime,
			Timeout:             keepAliveTimeout,
			PermitWithoutStream: true,
		}),
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	mc, err := newMilvusClient(connectCtx, client.Config{
		Address:     cfg.Addr,
		DBName:      cfg.DBName,
		DialOptions: dialOpts,
	})
	if err != nil {
		return nil, ErrConnectFailed.WithCause(err)
	}

	c := &Client{mc: mc, cfg: cfg, logger: log.Named("milvus")}
	if err := c.CheckHealth(ctx); err != nil {
		mc.Close()
		return nil, err
	}

	log.Info("milvus client connected",
		logging.String("addr", cfg.Addr),
		logging.Int("fingerprint_bits", cfg.FingerprintBits))
	return c, nil
}

// NewClientWithSDK wraps an existing SDK client (for testing).
func NewClientWithSDK(mc client.Client, cfg config.MilvusConfig, log logging.Logger) *Client {
	c := &Client{mc: mc, cfg: cfg, logger: log}
	c.healthy.Store(true)
	return c
}

func (c *Client) CheckHealth(ctx context.Context) error {
	if _, err := c.mc.CheckHealth(ctx); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("milvus health check failed", logging.Err(err))
		return ErrUnhealthy.WithCause(err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.mc.Close(); err != nil {
		c.logger.Error("failed to close milvus client", logging.Err(err))
		return err
	}
	c.logger.Info("milvus client closed")
	return nil
}

func (c *Client) raw() client.Client {
	return c.mc
}
