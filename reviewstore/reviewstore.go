// Package reviewstore keeps reviewer-queue bookkeeping in MySQL.
package reviewstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"

	"proof-verify-pipeline/config"
	"proof-verify-pipeline/models"
)

// Decision tags a reviewer may record.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// PendingReview is one queued report awaiting a human decision.
type PendingReview struct {
	ProofID        string          `json:"proof_id"`
	ComplaintID    string          `json:"complaint_id"`
	Verdict        string          `json:"verdict"`
	CompositeScore float64         `json:"composite_score"`
	Report         json.RawMessage `json:"report"`
	FlaggedAt      time.Time       `json:"flagged_at"`
}

// Stats summarizes queue state for the operational endpoint.
type Stats struct {
	Pending int `json:"pending"`
	Decided int `json:"decided"`
}

// ReviewStore represents the review database connection
type ReviewStore struct {
	db *sql.DB
}

// NewReviewStore creates a new review store connection
func NewReviewStore(cfg *config.Config) (*ReviewStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection with exponential backoff retry
	var waitInterval time.Duration = 1 * time.Second
	for attempt := 0; attempt < 8; attempt++ {
		if err = db.Ping(); err == nil {
			break
		}
		log.WithError(err).Warnf("database connection failed, retrying in %v", waitInterval)
		time.Sleep(waitInterval)
		waitInterval *= 2
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &ReviewStore{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *ReviewStore {
	return &ReviewStore{db: db}
}

// Close closes the database connection
func (s *ReviewStore) Close() error {
	return s.db.Close()
}

// CreateTables creates the review tables if they don't exist
func (s *ReviewStore) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS review_queue (
			proof_id VARCHAR(255) NOT NULL PRIMARY KEY,
			complaint_id VARCHAR(255) NOT NULL,
			verdict VARCHAR(32) NOT NULL,
			composite_score FLOAT NOT NULL,
			report JSON NOT NULL,
			status ENUM('pending', 'decided') NOT NULL DEFAULT 'pending',
			flagged_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_review_queue_status (status),
			INDEX idx_review_queue_complaint (complaint_id)
		)`,
		`CREATE TABLE IF NOT EXISTS review_decisions (
			proof_id VARCHAR(255) NOT NULL PRIMARY KEY,
			reviewer_id VARCHAR(255) NOT NULL,
			decision ENUM('approve', 'reject') NOT NULL,
			notes TEXT,
			decided_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create review tables: %w", err)
		}
	}
	return nil
}

// Enqueue inserts a flagged report into the review queue. Re-verifying the
// same proof overwrites its queue entry.
func (s *ReviewStore) Enqueue(ctx context.Context, report models.VerificationReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	query := `
		INSERT INTO review_queue (proof_id, complaint_id, verdict, composite_score, report)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			verdict = VALUES(verdict),
			composite_score = VALUES(composite_score),
			report = VALUES(report),
			status = 'pending'`
	_, err = s.db.ExecContext(ctx, query,
		report.ProofID, report.ComplaintID, report.VerificationStatus,
		report.Scoring.CompositeScore, raw)
	if err != nil {
		return fmt.Errorf("failed to enqueue review: %w", err)
	}
	return nil
}

// Pending returns up to limit queued reports awaiting a decision, oldest
// first.
func (s *ReviewStore) Pending(ctx context.Context, limit int) ([]PendingReview, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT proof_id, complaint_id, verdict, composite_score, report, flagged_at
		FROM review_queue
		WHERE status = 'pending'
		ORDER BY flagged_at ASC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query review queue: %w", err)
	}
	defer rows.Close()

	var reviews []PendingReview
	for rows.Next() {
		var r PendingReview
		var raw []byte
		if err := rows.Scan(&r.ProofID, &r.ComplaintID, &r.Verdict,
			&r.CompositeScore, &raw, &r.FlaggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		r.Report = json.RawMessage(raw)
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// RecordDecision stores a reviewer's decision and marks the queue entry
// decided.
func (s *ReviewStore) RecordDecision(ctx context.Context, proofID, reviewerID, decision, notes string) error {
	if decision != DecisionApprove && decision != DecisionReject {
		return fmt.Errorf("unknown decision %q", decision)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO review_decisions (proof_id, reviewer_id, decision, notes)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			reviewer_id = VALUES(reviewer_id),
			decision = VALUES(decision),
			notes = VALUES(notes)`
	if _, err := tx.ExecContext(ctx, insert, proofID, reviewerID, decision, notes); err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	update := `UPDATE review_queue SET status = 'decided' WHERE proof_id = ?`
	if _, err := tx.ExecContext(ctx, update, proofID); err != nil {
		return fmt.Errorf("failed to update queue entry: %w", err)
	}
	return tx.Commit()
}

// QueueStats counts queue entries by status.
func (s *ReviewStore) QueueStats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			COALESCE(SUM(status = 'pending'), 0),
			COALESCE(SUM(status = 'decided'), 0)
		FROM review_queue`
	var stats Stats
	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.Pending, &stats.Decided); err != nil {
		return nil, fmt.Errorf("failed to count review queue: %w", err)
	}
	return &stats, nil
}
