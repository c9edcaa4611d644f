// Package config defines all configuration structures for the ChemScreen
// platform. No I/O or parsing logic lives here, only plain data types and
// validation.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
)

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// DSN renders the pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// RedisConfig holds Redis connection parameters for the descriptor and
// fingerprint cache.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// MilvusConfig holds Milvus vector-store parameters for fingerprint ANN
// search over binary vectors.
type MilvusConfig struct {
	Addr             string `mapstructure:"addr"`
	DBName           string `mapstructure:"db_name"`
	FingerprintBits  int    `mapstructure:"fingerprint_bits"`
	IndexNList       int    `mapstructure:"index_nlist"`
	DefaultTopK      int    `mapstructure:"default_top_k"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
}

// MinIOConfig holds object-storage parameters for reports, depictions, and
// serialized toxicity models.
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	ReportBucket  string        `mapstructure:"report_bucket"`
	ModelBucket   string        `mapstructure:"model_bucket"`
	ImageBucket   string        `mapstructure:"image_bucket"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// KafkaConfig holds broker parameters for screening-job messaging.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	GroupID      string        `mapstructure:"group_id"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// Neo4jConfig holds the chemical-space graph store parameters.
type Neo4jConfig struct {
	URI               string        `mapstructure:"uri"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	MaxPoolSize       int           `mapstructure:"max_pool_size"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// EdgeThreshold is the minimum Tanimoto score at which two registered
	// molecules are linked in the similarity network.
	EdgeThreshold float64 `mapstructure:"edge_threshold"`
}

// OpenSearchConfig holds the name/synonym full-text index parameters.
type OpenSearchConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	IndexPrefix        string   `mapstructure:"index_prefix"`
}

// ProviderConfig holds connection parameters for one external REST provider.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryWaitMin   time.Duration `mapstructure:"retry_wait_min"`
	RetryWaitMax   time.Duration `mapstructure:"retry_wait_max"`
}

// ProvidersConfig groups the external compound database clients.
type ProvidersConfig struct {
	ChEMBL  ProviderConfig `mapstructure:"chembl"`
	PubChem ProviderConfig `mapstructure:"pubchem"`
}

// ScreeningConfig holds defaults for similarity and shape screening.
type ScreeningConfig struct {
	DefaultTopK        int     `mapstructure:"default_top_k"`
	DefaultThreshold   float64 `mapstructure:"default_threshold"`
	MorganRadius       int     `mapstructure:"morgan_radius"`
	MorganBits         int     `mapstructure:"morgan_bits"`
	MaxCorpusSize      int     `mapstructure:"max_corpus_size"`
	EmbedMaxIterations int     `mapstructure:"embed_max_iterations"`
}

// ToxicityConfig holds Random-Forest training defaults.
type ToxicityConfig struct {
	NumTrees     int     `mapstructure:"num_trees"`
	MaxDepth     int     `mapstructure:"max_depth"`
	MinLeafSize  int     `mapstructure:"min_leaf_size"`
	FeatureRatio float64 `mapstructure:"feature_ratio"`
	Seed         int64   `mapstructure:"seed"`
	TestFraction float64 `mapstructure:"test_fraction"`
	CVFolds      int     `mapstructure:"cv_folds"`
}

// WorkerConfig holds background-worker execution parameters.
type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
}

// Config is the root configuration structure for the entire platform.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Milvus     MilvusConfig     `mapstructure:"milvus"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Neo4j      Neo4jConfig      `mapstructure:"neo4j"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Screening  ScreeningConfig  `mapstructure:"screening"`
	Toxicity   ToxicityConfig   `mapstructure:"toxicity"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Log        logging.Config   `mapstructure:"log"`
}

// Validate performs semantic validation of a fully-populated Config. It
// returns the first error encountered; callers must treat any error as fatal
// and refuse to start.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	if c.Milvus.Addr == "" {
		return fmt.Errorf("config: milvus.addr is required")
	}
	if c.Milvus.FingerprintBits%8 != 0 {
		return fmt.Errorf("config: milvus.fingerprint_bits must be a multiple of 8, got %d", c.Milvus.FingerprintBits)
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka.group_id is required")
	}

	if c.Providers.ChEMBL.BaseURL == "" {
		return fmt.Errorf("config: providers.chembl.base_url is required")
	}
	if c.Providers.PubChem.BaseURL == "" {
		return fmt.Errorf("config: providers.pubchem.base_url is required")
	}

	if c.Screening.DefaultThreshold < 0 || c.Screening.DefaultThreshold > 1 {
		return fmt.Errorf("config: screening.default_threshold must be in [0, 1], got %g", c.Screening.DefaultThreshold)
	}
	if c.Screening.MorganBits%8 != 0 {
		return fmt.Errorf("config: screening.morgan_bits must be a multiple of 8, got %d", c.Screening.MorganBits)
	}
	if c.Screening.MorganRadius < 0 {
		return fmt.Errorf("config: screening.morgan_radius must be >= 0, got %d", c.Screening.MorganRadius)
	}

	if c.Toxicity.NumTrees < 1 {
		return fmt.Errorf("config: toxicity.num_trees must be >= 1, got %d", c.Toxicity.NumTrees)
	}
	if c.Toxicity.FeatureRatio <= 0 || c.Toxicity.FeatureRatio > 1 {
		return fmt.Errorf("config: toxicity.feature_ratio must be in (0, 1], got %g", c.Toxicity.FeatureRatio)
	}
	if c.Toxicity.TestFraction <= 0 || c.Toxicity.TestFraction >= 1 {
		return fmt.Errorf("config: toxicity.test_fraction must be in (0, 1), got %g", c.Toxicity.TestFraction)
	}
	if c.Toxicity.CVFolds < 2 {
		return fmt.Errorf("config: toxicity.cv_folds must be >= 2, got %d", c.Toxicity.CVFolds)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be >= 1, got %d", c.Worker.Concurrency)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
