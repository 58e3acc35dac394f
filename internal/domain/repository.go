package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Evaluation results
	SaveEvaluation(ctx context.Context, eval *Evaluation) error
	GetEvaluation(ctx context.Context, evalID string) (*Evaluation, error)
	ListEvaluationsByAddress(ctx context.Context, address string, limit int) ([]*Evaluation, error)

	// Scoring ledger. ApplyScoreUpdate moves the stored score by
	// confidence*step toward 1 (fraud) or 0 (not fraud), clamped to
	// [0,1], and returns the updated entry. Undecided outcomes must
	// never reach this method.
	GetScore(ctx context.Context, reference string) (*ScoreEntry, error)
	ApplyScoreUpdate(ctx context.Context, reference string, isFraud bool, confidence float64) (*ScoreEntry, error)

	// Reference population, persisted so the index can be rebuilt
	// at startup.
	SaveReferenceVectors(ctx context.Context, vectors []*ReferenceVector) error
	ListReferenceVectors(ctx context.Context) ([]*ReferenceVector, error)

	// Operator-defined screening rules
	SaveScreeningRule(ctx context.Context, rule *ScreeningRule) error
	ListScreeningRules(ctx context.Context) ([]*ScreeningRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ReferenceVector is one labeled row of the reference population.
type ReferenceVector struct {
	Reference string    `json:"reference"`
	Flag      int       `json:"flag"` // 1 = fraud, 0 = legitimate
	Vector    []float64 `json:"vector"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
