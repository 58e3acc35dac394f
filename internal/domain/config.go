package domain

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines backing services
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Ledger     LedgerConfig     `json:"ledger"`
	Oracle     OracleConfig     `json:"oracle"`
	Index      IndexConfig      `json:"index"`

	// Scoring thresholds and detector constants
	Thresholds Thresholds `json:"thresholds"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LedgerConfig holds the JSON-RPC ledger endpoint settings.
type LedgerConfig struct {
	// RPCURL is the full JSON-RPC endpoint, API key included.
	RPCURL string `json:"rpcUrl"`

	// TimeoutSeconds bounds each RPC call.
	TimeoutSeconds int `json:"timeoutSeconds"`

	// MaxTransfers caps transfers fetched per direction.
	MaxTransfers int `json:"maxTransfers"`
}

// OracleConfig holds the reasoning oracle endpoint settings.
type OracleConfig struct {
	// Endpoint is the HTTP URL the evidence summary is posted to.
	// Empty means no oracle: the pipeline uses fallback voting directly.
	Endpoint string `json:"endpoint"`

	// Model is passed through to the oracle service.
	Model string `json:"model"`

	// TimeoutSeconds bounds the single oracle call.
	TimeoutSeconds int `json:"timeoutSeconds"`

	// RetryBackoffMs is the wait before the one transport retry.
	RetryBackoffMs int `json:"retryBackoffMs"`
}

// IndexConfig holds similarity index settings.
type IndexConfig struct {
	// K is the neighbor count requested per query.
	K int `json:"k"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// Thresholds collects every tuned constant of the scoring pipeline.
// Values mirror the production-calibrated defaults; override them as a
// unit via DefaultConfig, not piecemeal at call sites.
type Thresholds struct {
	// Neighbor evidence
	FraudThreshold      float64 `json:"fraudThreshold"`      // weighted probability at or above -> Fraud
	NeighborConfidence  float64 `json:"neighborConfidence"`  // below -> Undecided
	DistanceEpsilon     float64 `json:"distanceEpsilon"`     // inverse-distance weight guard

	// Cross-validation
	AlignHighProb     float64 `json:"alignHighProb"`
	AlignHighRisk     float64 `json:"alignHighRisk"`
	AlignLowProb      float64 `json:"alignLowProb"`
	AlignLowRisk      float64 `json:"alignLowRisk"`
	ConfidenceFloor   float64 `json:"confidenceFloor"`
	SignalRiskLevel   float64 `json:"signalRiskLevel"`   // per-detector risk counting toward multiple-signal
	MinRiskSignals    int     `json:"minRiskSignals"`
	QualityHighAbove  float64 `json:"qualityHighAbove"`
	QualityMedAbove   float64 `json:"qualityMedAbove"`

	// Fusion guardrails
	GuardrailMinConfidence float64 `json:"guardrailMinConfidence"` // oracle or neighbor confidence below -> Undecided
	WeakFraudProb          float64 `json:"weakFraudProb"`
	WeakFraudRisk          float64 `json:"weakFraudRisk"`
	WeakFraudNeighborConf  float64 `json:"weakFraudNeighborConf"`
	StrongSignalProb       float64 `json:"strongSignalProb"`
	StrongSignalRisk       float64 `json:"strongSignalRisk"`

	// Fallback voting
	VoteFraudProb   float64 `json:"voteFraudProb"`
	VoteLegitProb   float64 `json:"voteLegitProb"`
	VoteFraudRisk   float64 `json:"voteFraudRisk"`
	VoteLegitRisk   float64 `json:"voteLegitRisk"`
	VotesToDecide   int     `json:"votesToDecide"`
	VoteMaxConf     float64 `json:"voteMaxConf"`

	// Scoring ledger
	ScoreStep float64 `json:"scoreStep"` // score moves by confidence * step
}

// DefaultThresholds returns the calibrated default constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FraudThreshold:     0.5,
		NeighborConfidence: 0.4,
		DistanceEpsilon:    1e-6,

		AlignHighProb:    0.7,
		AlignHighRisk:    0.6,
		AlignLowProb:     0.3,
		AlignLowRisk:     0.4,
		ConfidenceFloor:  0.4,
		SignalRiskLevel:  0.5,
		MinRiskSignals:   2,
		QualityHighAbove: 0.7,
		QualityMedAbove:  0.4,

		GuardrailMinConfidence: 0.25,
		WeakFraudProb:          0.5,
		WeakFraudRisk:          0.4,
		WeakFraudNeighborConf:  0.3,
		StrongSignalProb:       0.6,
		StrongSignalRisk:       0.6,

		VoteFraudProb: 0.6,
		VoteLegitProb: 0.4,
		VoteFraudRisk: 0.6,
		VoteLegitRisk: 0.35,
		VotesToDecide: 3,
		VoteMaxConf:   0.7,

		ScoreStep: 0.1,
	}
}

// DefaultConfig returns a default configuration for Community tier:
// SQLite persistence, in-memory index, LRU cache, channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Ledger: LedgerConfig{
			TimeoutSeconds: 15,
			MaxTransfers:   1000,
		},
		Oracle: OracleConfig{
			TimeoutSeconds: 30,
			RetryBackoffMs: 500,
		},
		Index: IndexConfig{
			K: 5,
		},
		Thresholds: DefaultThresholds(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier:
// PostgreSQL + Redis + NATS.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
