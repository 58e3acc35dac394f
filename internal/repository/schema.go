package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    address TEXT NOT NULL,
    reference TEXT,
    label TEXT NOT NULL,
    confidence REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    decision TEXT NOT NULL,
    neighbors TEXT NOT NULL,
    findings TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_address ON evaluations(address);
CREATE INDEX IF NOT EXISTS idx_evaluations_label ON evaluations(label);
CREATE INDEX IF NOT EXISTS idx_evaluations_timestamp ON evaluations(timestamp);
`

// schemaScores holds the additive scoring ledger: one row per scored
// reference, nudged toward 1 on fraud outcomes and toward 0 otherwise.
const schemaScores = `
CREATE TABLE IF NOT EXISTS scores (
    reference TEXT PRIMARY KEY,
    score REAL NOT NULL DEFAULT 0.0,
    last_result TEXT NOT NULL,
    last_confidence REAL NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaReferenceVectors = `
CREATE TABLE IF NOT EXISTS reference_vectors (
    reference TEXT PRIMARY KEY,
    flag INTEGER NOT NULL,
    vector TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reference_vectors_flag ON reference_vectors(flag);
`

const schemaScreeningRules = `
CREATE TABLE IF NOT EXISTS screening_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    tag TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_screening_rules_enabled ON screening_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaEvaluations,
		schemaScores,
		schemaReferenceVectors,
		schemaScreeningRules,
	}
}
