package links

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	s3store "droplink-backend/internal/shared/storage/object/s3"
)

// PresignIssuer mints S3 presigned GET URLs as retrieval handles. The URL
// is scoped to one object and one validity window; the bucket key never
// reaches the client in plain form.
type PresignIssuer struct {
	presign *awss3.PresignClient
	store   *s3store.Store
	now     func() time.Time
}

// NewPresignIssuer constructs a PresignIssuer over an S3-backed blob store.
func NewPresignIssuer(store *s3store.Store, now func() time.Time) (*PresignIssuer, error) {
	if store == nil {
		return nil, errors.New("s3 store is required")
	}
	if now == nil {
		now = time.Now
	}
	return &PresignIssuer{
		presign: awss3.NewPresignClient(store.Client()),
		store:   store,
		now:     now,
	}, nil
}

// Issue presigns a GET for the blob with the filename attached as a download
// disposition. The share id is not part of the presigned URL.
func (i *PresignIssuer) Issue(ctx context.Context, shareID, blobKey, fileName string, ttl time.Duration) (Handle, error) {
	if blobKey == "" {
		return Handle{}, errors.New("blob key is required")
	}
	if ttl <= 0 {
		return Handle{}, errors.New("ttl must be positive")
	}

	input := &awss3.GetObjectInput{
		Bucket: aws.String(i.store.Bucket()),
		Key:    aws.String(i.store.ObjectKey(blobKey)),
	}
	if fileName != "" {
		input.ResponseContentDisposition = aws.String(fmt.Sprintf("attachment; filename=%q", fileName))
	}

	out, err := i.presign.PresignGetObject(ctx, input, func(opts *awss3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return Handle{}, fmt.Errorf("presign get object key=%s: %w", blobKey, err)
	}

	return Handle{
		URL:       out.URL,
		ExpiresAt: i.now().Add(ttl),
	}, nil
}

var _ Issuer = (*PresignIssuer)(nil)
