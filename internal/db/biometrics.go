package db

import (
	"context"
	"time"

	"github.com/fpbe/auth-engine/internal/model"
)

func (db *Postgres) GetBiometricTemplate(ctx context.Context, subjectID, deviceID string) (*model.BiometricTemplate, error) {
	query := `
		SELECT subject_id, device_id, template_type, cipher_text, iv, auth_tag,
		       template_hash, quality_score, enrolled_at, last_used_at
		FROM biometric_templates
		WHERE subject_id = $1 AND device_id = $2
	`
	var t model.BiometricTemplate
	err := db.Pool.QueryRow(ctx, query, subjectID, deviceID).Scan(
		&t.SubjectID,
		&t.DeviceID,
		&t.Type,
		&t.CipherText,
		&t.IV,
		&t.AuthTag,
		&t.TemplateHash,
		&t.QualityScore,
		&t.EnrolledAt,
		&t.LastUsedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// UpsertBiometricTemplate supersedes any prior template for the same
// (subject, device); re-enrollment overwrites, never appends.
func (db *Postgres) UpsertBiometricTemplate(ctx context.Context, t *model.BiometricTemplate) error {
	query := `
		INSERT INTO biometric_templates (subject_id, device_id, template_type, cipher_text, iv,
		                                 auth_tag, template_hash, quality_score, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (subject_id, device_id) DO UPDATE
		SET template_type = EXCLUDED.template_type,
		    cipher_text = EXCLUDED.cipher_text,
		    iv = EXCLUDED.iv,
		    auth_tag = EXCLUDED.auth_tag,
		    template_hash = EXCLUDED.template_hash,
		    quality_score = EXCLUDED.quality_score,
		    enrolled_at = EXCLUDED.enrolled_at,
		    last_used_at = NULL
	`
	_, err := db.Pool.Exec(ctx, query,
		t.SubjectID, t.DeviceID, t.Type, t.CipherText, t.IV,
		t.AuthTag, t.TemplateHash, t.QualityScore, t.EnrolledAt,
	)
	return err
}

func (db *Postgres) TouchBiometricTemplate(ctx context.Context, subjectID, deviceID string, usedAt time.Time) error {
	query := `
		UPDATE biometric_templates
		SET last_used_at = $1
		WHERE subject_id = $2 AND device_id = $3
	`
	_, err := db.Pool.Exec(ctx, query, usedAt, subjectID, deviceID)
	return err
}

func (db *Postgres) DeleteBiometricTemplate(ctx context.Context, subjectID, deviceID string) error {
	_, err := db.Pool.Exec(ctx,
		`DELETE FROM biometric_templates WHERE subject_id = $1 AND device_id = $2`,
		subjectID, deviceID,
	)
	return err
}
