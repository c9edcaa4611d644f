package config

import "time"

// Default values applied by ApplyDefaults for fields left unset by the
// configuration file and environment.
const (
	DefaultServerPort            = 8080
	DefaultServerMode            = "release"
	DefaultServerReadTimeout     = 30 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerShutdownTimeout = 15 * time.Second

	DefaultDBHost            = "localhost"
	DefaultDBPort            = 5432
	DefaultDBUser            = "chemscreen"
	DefaultDBName            = "chemscreen"
	DefaultDBSSLMode         = "disable"
	DefaultDBMaxConns        = 20
	DefaultDBMinConns        = 2
	DefaultDBConnMaxLifetime = time.Hour
	DefaultDBConnMaxIdleTime = 30 * time.Minute
	DefaultDBMigrationPath   = "migrations"

	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPoolSize     = 10
	DefaultRedisMinIdleConns = 2
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second
	DefaultRedisTTL          = 6 * time.Hour
	DefaultRedisKeyPrefix    = "chemscreen"

	DefaultMilvusAddr             = "localhost:19530"
	DefaultMilvusDBName           = "default"
	DefaultMilvusFingerprintBits  = 2048
	DefaultMilvusIndexNList       = 128
	DefaultMilvusTopK             = 50
	DefaultMilvusCollectionPrefix = "chemscreen"

	DefaultMinIOEndpoint      = "localhost:9000"
	DefaultMinIOReportBucket  = "chemscreen-reports"
	DefaultMinIOModelBucket   = "chemscreen-models"
	DefaultMinIOImageBucket   = "chemscreen-depictions"
	DefaultMinIOPresignExpiry = 24 * time.Hour

	DefaultKafkaGroupID      = "chemscreen-workers"
	DefaultKafkaBatchTimeout = 100 * time.Millisecond
	DefaultKafkaMaxRetries   = 3
	DefaultKafkaRetryBackoff = 250 * time.Millisecond

	DefaultNeo4jURI               = "neo4j://localhost:7687"
	DefaultNeo4jUser              = "neo4j"
	DefaultNeo4jDatabase          = "neo4j"
	DefaultNeo4jMaxPoolSize       = 25
	DefaultNeo4jConnectionTimeout = 10 * time.Second
	DefaultNeo4jEdgeThreshold     = 0.70

	DefaultOpenSearchAddress     = "http://localhost:9200"
	DefaultOpenSearchIndexPrefix = "chemscreen"

	DefaultChEMBLBaseURL   = "https://www.ebi.ac.uk/chembl/api/data"
	DefaultPubChemBaseURL  = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"
	DefaultProviderTimeout = 30 * time.Second
	DefaultProviderRetries = 3
	DefaultProviderWaitMin = 500 * time.Millisecond
	DefaultProviderWaitMax = 8 * time.Second

	DefaultScreeningTopK      = 10
	DefaultScreeningThreshold = 0.7
	DefaultMorganRadius       = 2
	DefaultMorganBits         = 2048
	DefaultMaxCorpusSize      = 500000
	DefaultEmbedMaxIterations = 200

	DefaultToxicityNumTrees     = 100
	DefaultToxicityMaxDepth     = 12
	DefaultToxicityMinLeafSize  = 2
	DefaultToxicityFeatureRatio = 1.0 / 3.0
	DefaultToxicitySeed         = 42
	DefaultToxicityTestFraction = 0.2
	DefaultToxicityCVFolds      = 5

	DefaultWorkerConcurrency  = 4
	DefaultWorkerHeartbeat    = 30 * time.Second
	DefaultWorkerMaxRetries   = 3
	DefaultWorkerRetryBackoff = 5 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills in zero-value fields so that Validate can run against
// a complete configuration. It never overrides a value the user set.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = DefaultDBMinConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = DefaultDBConnMaxLifetime
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = DefaultDBConnMaxIdleTime
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = DefaultDBMigrationPath
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.MinIdleConns == 0 {
		cfg.Redis.MinIdleConns = DefaultRedisMinIdleConns
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = DefaultRedisReadTimeout
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = DefaultRedisWriteTimeout
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	if cfg.Milvus.Addr == "" {
		cfg.Milvus.Addr = DefaultMilvusAddr
	}
	if cfg.Milvus.DBName == "" {
		cfg.Milvus.DBName = DefaultMilvusDBName
	}
	if cfg.Milvus.FingerprintBits == 0 {
		cfg.Milvus.FingerprintBits = DefaultMilvusFingerprintBits
	}
	if cfg.Milvus.IndexNList == 0 {
		cfg.Milvus.IndexNList = DefaultMilvusIndexNList
	}
	if cfg.Milvus.DefaultTopK == 0 {
		cfg.Milvus.DefaultTopK = DefaultMilvusTopK
	}
	if cfg.Milvus.CollectionPrefix == "" {
		cfg.Milvus.CollectionPrefix = DefaultMilvusCollectionPrefix
	}

	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.ReportBucket == "" {
		cfg.MinIO.ReportBucket = DefaultMinIOReportBucket
	}
	if cfg.MinIO.ModelBucket == "" {
		cfg.MinIO.ModelBucket = DefaultMinIOModelBucket
	}
	if cfg.MinIO.ImageBucket == "" {
		cfg.MinIO.ImageBucket = DefaultMinIOImageBucket
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = DefaultMinIOPresignExpiry
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = DefaultKafkaBatchTimeout
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = DefaultKafkaMaxRetries
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = DefaultKafkaRetryBackoff
	}

	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}
	if cfg.Neo4j.User == "" {
		cfg.Neo4j.User = DefaultNeo4jUser
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = DefaultNeo4jDatabase
	}
	if cfg.Neo4j.MaxPoolSize == 0 {
		cfg.Neo4j.MaxPoolSize = DefaultNeo4jMaxPoolSize
	}
	if cfg.Neo4j.ConnectionTimeout == 0 {
		cfg.Neo4j.ConnectionTimeout = DefaultNeo4jConnectionTimeout
	}
	if cfg.Neo4j.EdgeThreshold == 0 {
		cfg.Neo4j.EdgeThreshold = DefaultNeo4jEdgeThreshold
	}

	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddress}
	}
	if cfg.OpenSearch.IndexPrefix == "" {
		cfg.OpenSearch.IndexPrefix = DefaultOpenSearchIndexPrefix
	}

	applyProviderDefaults(&cfg.Providers.ChEMBL, DefaultChEMBLBaseURL)
	applyProviderDefaults(&cfg.Providers.PubChem, DefaultPubChemBaseURL)

	if cfg.Screening.DefaultTopK == 0 {
		cfg.Screening.DefaultTopK = DefaultScreeningTopK
	}
	if cfg.Screening.DefaultThreshold == 0 {
		cfg.Screening.DefaultThreshold = DefaultScreeningThreshold
	}
	if cfg.Screening.MorganRadius == 0 {
		cfg.Screening.MorganRadius = DefaultMorganRadius
	}
	if cfg.Screening.MorganBits == 0 {
		cfg.Screening.MorganBits = DefaultMorganBits
	}
	if cfg.Screening.MaxCorpusSize == 0 {
		cfg.Screening.MaxCorpusSize = DefaultMaxCorpusSize
	}
	if cfg.Screening.EmbedMaxIterations == 0 {
		cfg.Screening.EmbedMaxIterations = DefaultEmbedMaxIterations
	}

	if cfg.Toxicity.NumTrees == 0 {
		cfg.Toxicity.NumTrees = DefaultToxicityNumTrees
	}
	if cfg.Toxicity.MaxDepth == 0 {
		cfg.Toxicity.MaxDepth = DefaultToxicityMaxDepth
	}
	if cfg.Toxicity.MinLeafSize == 0 {
		cfg.Toxicity.MinLeafSize = DefaultToxicityMinLeafSize
	}
	if cfg.Toxicity.FeatureRatio == 0 {
		cfg.Toxicity.FeatureRatio = DefaultToxicityFeatureRatio
	}
	if cfg.Toxicity.Seed == 0 {
		cfg.Toxicity.Seed = DefaultToxicitySeed
	}
	if cfg.Toxicity.TestFraction == 0 {
		cfg.Toxicity.TestFraction = DefaultToxicityTestFraction
	}
	if cfg.Toxicity.CVFolds == 0 {
		cfg.Toxicity.CVFolds = DefaultToxicityCVFolds
	}

	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.HeartbeatInterval == 0 {
		cfg.Worker.HeartbeatInterval = DefaultWorkerHeartbeat
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = DefaultWorkerMaxRetries
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = DefaultWorkerRetryBackoff
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if len(cfg.Log.OutputPaths) == 0 {
		cfg.Log.OutputPaths = []string{"stdout"}
	}
	if len(cfg.Log.ErrorOutputPaths) == 0 {
		cfg.Log.ErrorOutputPaths = []string{"stderr"}
	}
}

func applyProviderDefaults(p *ProviderConfig, baseURL string) {
	if p.BaseURL == "" {
		p.BaseURL = baseURL
	}
	if p.RequestTimeout == 0 {
		p.RequestTimeout = DefaultProviderTimeout
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultProviderRetries
	}
	if p.RetryWaitMin == 0 {
		p.RetryWaitMin = DefaultProviderWaitMin
	}
	if p.RetryWaitMax == 0 {
		p.RetryWaitMax = DefaultProviderWaitMax
	}
}
