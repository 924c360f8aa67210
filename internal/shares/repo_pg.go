package shares

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new share record. The ON CONFLICT clause makes the
// uniqueness check and the insert a single atomic statement.
func (r *PGRepo) Create(ctx context.Context, share Share) error {
	const query = `
INSERT INTO shares (
    id,
    original_name,
    size_bytes,
    blob_key,
    password_hash,
    expires_at,
    created_at,
    download_count,
    last_accessed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, NULL)
ON CONFLICT (id) DO NOTHING`

	var passwordHash sql.NullString
	if share.PasswordHash != "" {
		passwordHash = sql.NullString{String: share.PasswordHash, Valid: true}
	}

	res, err := r.DB.ExecContext(
		ctx,
		query,
		share.ID,
		share.OriginalName,
		share.SizeBytes,
		share.BlobKey,
		passwordHash,
		share.ExpiresAt,
		share.CreatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// GetByID fetches a share record by id.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Share, error) {
	const query = `
SELECT id, original_name, size_bytes, blob_key, password_hash, expires_at, created_at, download_count, last_accessed_at
FROM shares
WHERE id = $1
LIMIT 1`
	var share Share
	var passwordHash sql.NullString
	var lastAccessedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&share.ID,
		&share.OriginalName,
		&share.SizeBytes,
		&share.BlobKey,
		&passwordHash,
		&share.ExpiresAt,
		&share.CreatedAt,
		&share.DownloadCount,
		&lastAccessedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Share{}, ErrNotFound
		}
		return Share{}, err
	}
	if passwordHash.Valid {
		share.PasswordHash = passwordHash.String
	}
	if lastAccessedAt.Valid {
		share.LastAccessedAt = &lastAccessedAt.Time
	}
	return share, nil
}

// RecordAccess bumps the download counter in a single UPDATE so concurrent
// unlocks never lose increments.
func (r *PGRepo) RecordAccess(ctx context.Context, id string, at time.Time) error {
	const query = `
UPDATE shares
SET download_count = download_count + 1, last_accessed_at = $2
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)
