package device

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGStore persists bindings in the device_bindings table.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, deviceID string) (Binding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT device_id, email, created_at, expire_at
		FROM device_bindings WHERE device_id = $1
	`, deviceID)
	var b Binding
	if err := row.Scan(&b.DeviceID, &b.Email, &b.CreatedAt, &b.ExpireAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Binding{}, ErrNotFound
		}
		return Binding{}, err
	}
	return b, nil
}

// Upsert overwrites any previous binding for the device.
func (s *PGStore) Upsert(ctx context.Context, b Binding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_bindings (device_id, email, created_at, expire_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id) DO UPDATE SET
			email = EXCLUDED.email,
			created_at = EXCLUDED.created_at,
			expire_at = EXCLUDED.expire_at
	`, b.DeviceID, b.Email, b.CreatedAt, b.ExpireAt)
	return err
}

func (s *PGStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM device_bindings WHERE expire_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
