package shares

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"droplink-backend/internal/links"
	"droplink-backend/internal/shared/metrics"
	"droplink-backend/internal/shared/password"
	"droplink-backend/internal/shared/storage/object"
	"droplink-backend/internal/shared/telemetry"
	"droplink-backend/internal/shared/util"
)

const (
	// createAttempts bounds id regeneration on the (rare) conflict.
	createAttempts = 3
	// blobKeyPrefix namespaces blob keys; keys derive from share ids, not
	// from file names.
	blobKeyPrefix = "shares/"

	defaultOpTimeout = 10 * time.Second
	defaultLinkTTL   = time.Hour
)

// BlobKeyFor returns the storage key for a share id.
func BlobKeyFor(id string) string {
	return blobKeyPrefix + id
}

// Service contains the share lifecycle logic: ingestion with compensating
// cleanup, status lookup, and the unlock flow.
type Service struct {
	Store  object.BlobStore
	Repo   Repo
	Guard  *password.Guard
	Issuer links.Issuer

	// LinkTTL is the retrieval handle window; it is always clamped to the
	// share's remaining lifetime.
	LinkTTL time.Duration
	// OpTimeout bounds every store and repo call.
	OpTimeout time.Duration
	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

// CreateInput carries one upload.
type CreateInput struct {
	FileName   string
	Password   string // empty means the share is public
	ExpirySpec string // relative token or absolute timestamp
	Data       []byte
}

// Grant is the result of a successful unlock.
type Grant struct {
	Share  Share
	Handle links.Handle
}

// Create validates the upload, stores the blob, and persists the metadata
// record. On success exactly one blob and one record exist; on any reported
// failure the blob written in that attempt has been deleted again.
func (s *Service) Create(ctx context.Context, in CreateInput) (Share, error) {
	if len(in.Data) == 0 {
		return Share{}, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	fileName, err := util.SanitizeFileName(in.FileName)
	if err != nil {
		return Share{}, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	now := s.now()
	expiresAt, err := NormalizeExpiry(in.ExpirySpec, now)
	if err != nil {
		return Share{}, err
	}

	// Hash before any write so a hashing failure leaves nothing behind.
	var passwordHash string
	if in.Password != "" {
		passwordHash, err = s.Guard.Hash(in.Password)
		if err != nil {
			return Share{}, fmt.Errorf("hash password: %w", err)
		}
	}

	sniff := in.Data
	if len(sniff) > 512 {
		sniff = sniff[:512]
	}
	contentType := http.DetectContentType(sniff)

	// Detach from the caller's connection: once ingestion starts, the pair
	// of writes either completes or is rolled back even if the client goes
	// away mid-request.
	detached := context.WithoutCancel(ctx)

	for attempt := 0; attempt < createAttempts; attempt++ {
		id := uuid.NewString()
		blobKey := BlobKeyFor(id)

		size, err := s.putBlob(detached, blobKey, contentType, in.Data)
		if err != nil {
			return Share{}, fmt.Errorf("store blob: %w", err)
		}

		share := Share{
			ID:           id,
			OriginalName: fileName,
			SizeBytes:    size,
			BlobKey:      blobKey,
			PasswordHash: passwordHash,
			ExpiresAt:    expiresAt,
			CreatedAt:    now.UTC(),
		}

		err = s.createRecord(detached, share)
		if err == nil {
			metrics.IncShareCreated()
			return share, nil
		}

		// Compensation: the metadata write failed, so the blob from this
		// attempt must not stay behind.
		s.deleteBlob(detached, blobKey)

		if !errors.Is(err, ErrConflict) {
			return Share{}, fmt.Errorf("persist share: %w", err)
		}
		telemetry.Warn("share.id_conflict", map[string]any{
			"share_id": id,
			"attempt":  attempt + 1,
		})
	}

	return Share{}, fmt.Errorf("allocate share id: retries exhausted after %d conflicts", createAttempts)
}

// Status returns the share and whether it is expired. It never requires a
// password and never mutates access counters.
func (s *Service) Status(ctx context.Context, id string) (Share, bool, error) {
	if id == "" {
		return Share{}, false, fmt.Errorf("%w: share id is required", ErrInvalidInput)
	}
	share, err := s.getRecord(ctx, id)
	if err != nil {
		return Share{}, false, err
	}
	return share, share.IsExpired(s.now()), nil
}

// Unlock runs the retrieval state machine: lookup, expiry check, credential
// check, handle minting, then best-effort access accounting. Expiry is
// always evaluated before the credential so an expired share reports 410
// even with the correct password.
func (s *Service) Unlock(ctx context.Context, id, pass string) (Grant, error) {
	if id == "" {
		return Grant{}, fmt.Errorf("%w: share id is required", ErrInvalidInput)
	}

	share, err := s.getRecord(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.IncUnlock("not_found")
		}
		return Grant{}, err
	}

	now := s.now()
	if share.IsExpired(now) {
		metrics.IncUnlock("expired")
		return Grant{}, ErrExpired
	}

	if share.PasswordRequired() {
		if pass == "" || !s.Guard.Verify(pass, share.PasswordHash) {
			metrics.IncUnlock("denied")
			return Grant{}, ErrUnauthorized
		}
	}

	ttl := s.LinkTTL
	if ttl <= 0 {
		ttl = defaultLinkTTL
	}
	if remaining := share.ExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}

	handle, err := s.Issuer.Issue(ctx, share.ID, share.BlobKey, share.OriginalName, ttl)
	if err != nil {
		return Grant{}, fmt.Errorf("issue retrieval handle: %w", err)
	}

	// Access accounting is best-effort: a failed increment never revokes a
	// grant that was already decided.
	s.recordAccess(ctx, share.ID, now)

	metrics.IncUnlock("granted")
	return Grant{Share: share, Handle: handle}, nil
}

func (s *Service) putBlob(ctx context.Context, key, contentType string, data []byte) (int64, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.Store.Put(opCtx, key, contentType, bytes.NewReader(data))
}

func (s *Service) createRecord(ctx context.Context, share Share) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.Repo.Create(opCtx, share)
}

func (s *Service) getRecord(ctx context.Context, id string) (Share, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.Repo.GetByID(opCtx, id)
}

func (s *Service) deleteBlob(ctx context.Context, key string) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.Store.Delete(opCtx, key); err != nil {
		// Observable orphan; an out-of-band reconciliation sweep picks
		// these up by prefix.
		metrics.IncBlobCleanupFailure()
		telemetry.Error("share.blob_cleanup_failed", map[string]any{
			"blob_key": key,
			"err":      err.Error(),
		})
	}
}

func (s *Service) recordAccess(ctx context.Context, id string, at time.Time) {
	opCtx, cancel := s.opCtx(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.Repo.RecordAccess(opCtx, id, at); err != nil {
		telemetry.Warn("share.record_access_failed", map[string]any{
			"share_id": id,
			"err":      err.Error(),
		})
	}
}

func (s *Service) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
