package diagnosis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	Save(ctx context.Context, rec *Record) error
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	query := `SELECT id, status, evidence, denied, round, diagnosis, forced, candidates, follow_ups,
		reason, fallback_diagnosis, version, created_at, updated_at
		FROM diagnosis_sessions WHERE id = $1`

	var rec Record
	var evidenceJSON, deniedJSON, candidatesJSON, followUpsJSON []byte
	var fallback sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Status,
		&evidenceJSON,
		&deniedJSON,
		&rec.Round,
		&rec.Diagnosis,
		&rec.Forced,
		&candidatesJSON,
		&followUpsJSON,
		&rec.Reason,
		&fallback,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	columns := []struct {
		name string
		raw  []byte
		dst  interface{}
	}{
		{"evidence", evidenceJSON, &rec.Evidence},
		{"denied", deniedJSON, &rec.Denied},
		{"candidates", candidatesJSON, &rec.Candidates},
		{"follow_ups", followUpsJSON, &rec.FollowUps},
	}
	for _, c := range columns {
		if len(c.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(c.raw, c.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", c.name, err)
		}
	}
	if fallback.Valid {
		rec.Fallback = &fallback.String
	}

	return &rec, nil
}

func (r *postgresRepo) Save(ctx context.Context, rec *Record) error {
	evidenceJSON, err := json.Marshal(rec.Evidence)
	if err != nil {
		return err
	}
	deniedJSON, err := json.Marshal(rec.Denied)
	if err != nil {
		return err
	}
	candidatesJSON, err := json.Marshal(rec.Candidates)
	if err != nil {
		return err
	}
	followUpsJSON, err := json.Marshal(rec.FollowUps)
	if err != nil {
		return err
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = time.Now()

	var fallback sql.NullString
	if rec.Fallback != nil {
		fallback = sql.NullString{String: *rec.Fallback, Valid: true}
	}

	// Saves of one session can race; a row is only replaced by a newer version.
	query := `
		INSERT INTO diagnosis_sessions (id, status, evidence, denied, round, diagnosis, forced,
			candidates, follow_ups, reason, fallback_diagnosis, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = $2,
			evidence = $3,
			denied = $4,
			round = $5,
			diagnosis = $6,
			forced = $7,
			candidates = $8,
			follow_ups = $9,
			reason = $10,
			fallback_diagnosis = $11,
			version = $12,
			updated_at = $14
		WHERE diagnosis_sessions.version < EXCLUDED.version
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.Status, evidenceJSON, deniedJSON, rec.Round, rec.Diagnosis, rec.Forced,
		candidatesJSON, followUpsJSON, rec.Reason, fallback, int64(rec.Version), rec.CreatedAt, rec.UpdatedAt)
	return err
}
