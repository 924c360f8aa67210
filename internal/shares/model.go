package shares

import "time"

// Share is the metadata record for one uploaded artifact. It is created
// atomically with its blob and is immutable afterward except DownloadCount
// and LastAccessedAt, which only RecordAccess mutates.
type Share struct {
	ID             string
	OriginalName   string
	SizeBytes      int64
	BlobKey        string
	PasswordHash   string // empty means the share is public
	ExpiresAt      time.Time
	CreatedAt      time.Time
	DownloadCount  int64
	LastAccessedAt *time.Time
}

// PasswordRequired reports whether an unlock needs a credential check.
func (s Share) PasswordRequired() bool {
	return s.PasswordHash != ""
}
