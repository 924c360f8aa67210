package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for malformed, forged, or expired tokens.
var ErrInvalidToken = errors.New("invalid or expired retrieval token")

// The claims carry the share id, never the storage key: the token payload
// is readable base64, so nothing storage-internal belongs in it. The
// redeem handler maps the id back to its blob.
type retrievalClaims struct {
	ShareID  string `json:"sid"`
	FileName string `json:"fn"`
	jwt.RegisteredClaims
}

// TokenIssuer mints HMAC-signed retrieval tokens redeemed against the
// service's own retrieve endpoint. It works with any blob store.
type TokenIssuer struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer. baseURL is the public origin the
// retrieve endpoint is reachable under; now may be nil.
func NewTokenIssuer(secret, baseURL string, now func() time.Time) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("link signing secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     now,
	}, nil
}

// Issue signs a fresh token over the share id and filename. The token id
// makes every handle unique even for back-to-back unlocks of one share.
func (i *TokenIssuer) Issue(ctx context.Context, shareID, blobKey, fileName string, ttl time.Duration) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	if shareID == "" {
		return Handle{}, errors.New("share id is required")
	}
	if ttl <= 0 {
		return Handle{}, errors.New("ttl must be positive")
	}

	now := i.now()
	expiresAt := now.Add(ttl)
	claims := retrievalClaims{
		ShareID:  shareID,
		FileName: fileName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Handle{}, fmt.Errorf("sign retrieval token: %w", err)
	}

	return Handle{
		URL:       i.baseURL + "/api/v1/retrieve/" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks a token's signature and expiry and returns the share id and
// filename it grants access to.
func (i *TokenIssuer) Verify(token string) (shareID, fileName string, err error) {
	claims := &retrievalClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", "", ErrInvalidToken
	}
	if claims.ShareID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.ShareID, claims.FileName, nil
}

var _ Issuer = (*TokenIssuer)(nil)
