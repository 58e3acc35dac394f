// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
	step   float64
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
		step:   domain.DefaultThresholds().ScoreStep,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveEvaluation stores a completed evaluation. The decision label and
// confidence are lifted into their own columns for querying; the full
// sub-objects ride along as JSON.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, eval *domain.Evaluation) error {
	if eval.ID == "" || eval.Address == "" {
		return fmt.Errorf("%w: evaluation id and address are required", ErrInvalidInput)
	}

	decision, _ := json.Marshal(eval.Decision)
	neighbors, _ := json.Marshal(eval.Neighbors)
	findings, _ := json.Marshal(eval.Findings)
	metadata, _ := json.Marshal(eval.Metadata)

	query := `
		INSERT INTO evaluations (
			id, address, reference, label, confidence, timestamp,
			decision, neighbors, findings, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, eval.Address, eval.Reference,
		string(eval.Decision.Label), eval.Decision.Confidence, eval.Timestamp,
		string(decision), string(neighbors), string(findings), string(metadata),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID.
func (r *SQLRepository) GetEvaluation(ctx context.Context, evalID string) (*domain.Evaluation, error) {
	query := `
		SELECT id, address, reference, timestamp, decision, neighbors, findings, metadata
		FROM evaluations
		WHERE id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), evalID)
	eval, err := scanEvaluation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return eval, err
}

// ListEvaluationsByAddress retrieves the most recent evaluations for an
// address, newest first.
func (r *SQLRepository) ListEvaluationsByAddress(ctx context.Context, address string, limit int) ([]*domain.Evaluation, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, address, reference, timestamp, decision, neighbors, findings, metadata
		FROM evaluations
		WHERE address = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evaluations []*domain.Evaluation
	for rows.Next() {
		eval, err := scanEvaluation(rows.Scan)
		if err != nil {
			return nil, err
		}
		evaluations = append(evaluations, eval)
	}

	return evaluations, rows.Err()
}

func scanEvaluation(scan func(...any) error) (*domain.Evaluation, error) {
	var eval domain.Evaluation
	var decision, neighbors, findings, metadata string

	if err := scan(
		&eval.ID, &eval.Address, &eval.Reference, &eval.Timestamp,
		&decision, &neighbors, &findings, &metadata,
	); err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(decision), &eval.Decision)
	json.Unmarshal([]byte(neighbors), &eval.Neighbors)
	json.Unmarshal([]byte(findings), &eval.Findings)
	json.Unmarshal([]byte(metadata), &eval.Metadata)

	return &eval, nil
}

// GetScore retrieves the scoring-ledger entry for a reference.
func (r *SQLRepository) GetScore(ctx context.Context, reference string) (*domain.ScoreEntry, error) {
	query := `
		SELECT reference, score, last_result, last_confidence, created_at, updated_at
		FROM scores
		WHERE reference = ?
	`

	var entry domain.ScoreEntry
	err := r.db.QueryRowContext(ctx, r.rebind(query), reference).Scan(
		&entry.Reference, &entry.Score,
		&entry.LastResult, &entry.LastConfidence,
		&entry.CreatedAt, &entry.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// ApplyScoreUpdate moves the stored score by confidence*step toward 1 on
// a fraud outcome and toward 0 otherwise, clamped to [0,1]. A reference
// with no existing entry starts from 0.
func (r *SQLRepository) ApplyScoreUpdate(ctx context.Context, reference string, isFraud bool, confidence float64) (*domain.ScoreEntry, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrInvalidInput)
	}

	current, err := r.GetScore(ctx, reference)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &domain.ScoreEntry{
		Reference:      reference,
		LastConfidence: confidence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if current != nil {
		entry.Score = current.Score
		entry.CreatedAt = current.CreatedAt
	}

	delta := confidence * r.step
	if isFraud {
		entry.Score = min(1.0, entry.Score+delta)
		entry.LastResult = "fraud"
	} else {
		entry.Score = max(0.0, entry.Score-delta)
		entry.LastResult = "not_fraud"
	}

	query := `
		INSERT INTO scores (
			reference, score, last_result, last_confidence, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(reference) DO UPDATE SET
			score = excluded.score,
			last_result = excluded.last_result,
			last_confidence = excluded.last_confidence,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		entry.Reference, entry.Score,
		entry.LastResult, entry.LastConfidence,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// SaveReferenceVectors upserts a labeled batch, vectors stored as JSON
// so the index can be rebuilt at startup.
func (r *SQLRepository) SaveReferenceVectors(ctx context.Context, vectors []*domain.ReferenceVector) error {
	if len(vectors) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO reference_vectors (reference, flag, vector, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(reference) DO UPDATE SET
			flag = excluded.flag,
			vector = excluded.vector,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	for _, v := range vectors {
		if v.Reference == "" {
			return fmt.Errorf("%w: reference is required", ErrInvalidInput)
		}
		vector, _ := json.Marshal(v.Vector)
		if _, err := tx.ExecContext(ctx, r.rebind(query),
			v.Reference, v.Flag, string(vector), now,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListReferenceVectors returns the full persisted reference population.
func (r *SQLRepository) ListReferenceVectors(ctx context.Context) ([]*domain.ReferenceVector, error) {
	query := `
		SELECT reference, flag, vector
		FROM reference_vectors
		ORDER BY reference
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vectors []*domain.ReferenceVector
	for rows.Next() {
		var v domain.ReferenceVector
		var vector string

		if err := rows.Scan(&v.Reference, &v.Flag, &vector); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(vector), &v.Vector); err != nil {
			return nil, fmt.Errorf("failed to parse vector for %s: %w", v.Reference, err)
		}
		vectors = append(vectors, &v)
	}

	return vectors, rows.Err()
}

// SaveScreeningRule upserts an operator-defined screening rule.
func (r *SQLRepository) SaveScreeningRule(ctx context.Context, rule *domain.ScreeningRule) error {
	if rule.ID == "" || rule.Expression == "" {
		return fmt.Errorf("%w: rule id and expression are required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screening_rules (
			id, name, description, expression, tag, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			tag = excluded.tag,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		rule.Expression, rule.Tag, rule.Weight, enabled,
		now, now,
	)
	return err
}

// ListScreeningRules returns all stored rules, disabled ones included,
// so callers can decide what to load.
func (r *SQLRepository) ListScreeningRules(ctx context.Context) ([]*domain.ScreeningRule, error) {
	query := `
		SELECT id, name, description, expression, tag, weight, enabled, created_at, updated_at
		FROM screening_rules
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScreeningRule
	for rows.Next() {
		var rule domain.ScreeningRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description,
			&rule.Expression, &rule.Tag, &rule.Weight, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
