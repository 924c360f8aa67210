package links

import (
	"context"
	"time"
)

// Handle is a short-lived, single-purpose credential granting read access to
// exactly one blob. It expires independently of the share itself.
type Handle struct {
	URL       string
	ExpiresAt time.Time
}

// Issuer mints a fresh retrieval handle for a share. Handles are never
// cached or reused; every successful unlock gets its own. Issuers receive
// both the share id and the resolved blob key so each can embed the one
// its transport needs without exposing the other.
type Issuer interface {
	Issue(ctx context.Context, shareID, blobKey, fileName string, ttl time.Duration) (Handle, error)
}
