package db

import (
	"context"

	"github.com/fpbe/auth-engine/internal/model"
)

func (db *Postgres) GetDeviceBinding(ctx context.Context, subjectID, deviceID string) (*model.DeviceBinding, error) {
	query := `
		SELECT subject_id, device_id, trust_score, trusted, last_seen_at, created_at
		FROM device_bindings
		WHERE subject_id = $1 AND device_id = $2
	`
	var b model.DeviceBinding
	err := db.Pool.QueryRow(ctx, query, subjectID, deviceID).Scan(
		&b.SubjectID,
		&b.DeviceID,
		&b.TrustScore,
		&b.Trusted,
		&b.LastSeenAt,
		&b.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (db *Postgres) UpsertDeviceBinding(ctx context.Context, b *model.DeviceBinding) error {
	query := `
		INSERT INTO device_bindings (subject_id, device_id, trust_score, trusted, last_seen_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (subject_id, device_id) DO UPDATE
		SET trust_score = EXCLUDED.trust_score,
		    trusted = EXCLUDED.trusted,
		    last_seen_at = EXCLUDED.last_seen_at
	`
	_, err := db.Pool.Exec(ctx, query, b.SubjectID, b.DeviceID, b.TrustScore, b.Trusted, b.LastSeenAt)
	return err
}
