package db

import (
	"context"
	"time"

	"github.com/fpbe/auth-engine/internal/model"
)

func (db *Postgres) EnsureAuthSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS credentials (
			subject_id TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			failed_attempts INT NOT NULL DEFAULT 0,
			locked_until TIMESTAMPTZ,
			last_successful_auth_at TIMESTAMPTZ,
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS device_bindings (
			subject_id TEXT NOT NULL REFERENCES credentials(subject_id) ON DELETE CASCADE,
			device_id TEXT NOT NULL,
			trust_score DOUBLE PRECISION NOT NULL,
			trusted BOOLEAN NOT NULL DEFAULT FALSE,
			last_seen_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (subject_id, device_id)
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS biometric_templates (
			subject_id TEXT NOT NULL REFERENCES credentials(subject_id) ON DELETE CASCADE,
			device_id TEXT NOT NULL,
			template_type TEXT NOT NULL,
			cipher_text BYTEA NOT NULL,
			iv BYTEA NOT NULL,
			auth_tag BYTEA NOT NULL,
			template_hash BYTEA NOT NULL,
			quality_score DOUBLE PRECISION NOT NULL,
			enrolled_at TIMESTAMPTZ NOT NULL,
			last_used_at TIMESTAMPTZ,
			PRIMARY KEY (subject_id, device_id)
		)
		`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (db *Postgres) CreateCredential(ctx context.Context, subjectID, passwordHash string) (*model.CredentialRecord, error) {
	query := `
		INSERT INTO credentials (subject_id, password_hash, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (subject_id) DO NOTHING
		RETURNING subject_id, password_hash, failed_attempts, locked_until,
		          last_successful_auth_at, version, created_at, updated_at
	`
	var rec model.CredentialRecord
	err := db.Pool.QueryRow(ctx, query, subjectID, passwordHash).Scan(
		&rec.SubjectID,
		&rec.PasswordHash,
		&rec.FailedAttempts,
		&rec.LockedUntil,
		&rec.LastSuccessfulAuthAt,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, model.ErrConflict
		}
		return nil, err
	}
	return &rec, nil
}

func (db *Postgres) GetCredential(ctx context.Context, subjectID string) (*model.CredentialRecord, error) {
	query := `
		SELECT subject_id, password_hash, failed_attempts, locked_until,
		       last_successful_auth_at, version, created_at, updated_at
		FROM credentials
		WHERE subject_id = $1
	`
	var rec model.CredentialRecord
	err := db.Pool.QueryRow(ctx, query, subjectID).Scan(
		&rec.SubjectID,
		&rec.PasswordHash,
		&rec.FailedAttempts,
		&rec.LockedUntil,
		&rec.LastSuccessfulAuthAt,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// UpdateCredentialAttempts persists lockout accounting with a
// compare-and-swap on the record version. A concurrent writer makes
// the swap miss and the caller re-reads and retries, so two parallel
// failures can never collapse into one counted attempt.
func (db *Postgres) UpdateCredentialAttempts(ctx context.Context, rec *model.CredentialRecord, expectedVersion int64) error {
	query := `
		UPDATE credentials
		SET failed_attempts = $1,
		    locked_until = $2,
		    last_successful_auth_at = $3,
		    version = version + 1,
		    updated_at = NOW()
		WHERE subject_id = $4 AND version = $5
	`
	tag, err := db.Pool.Exec(ctx, query,
		rec.FailedAttempts,
		rec.LockedUntil,
		rec.LastSuccessfulAuthAt,
		rec.SubjectID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrConflict
	}
	rec.Version = expectedVersion + 1
	rec.UpdatedAt = time.Now()
	return nil
}

func (db *Postgres) DeleteCredential(ctx context.Context, subjectID string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM credentials WHERE subject_id = $1`, subjectID)
	return err
}
