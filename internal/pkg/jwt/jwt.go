package jwt

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
)

var (
	// ErrSigningKeyTooShort is returned when the HS512 signing key is less than 64 bytes.
	ErrSigningKeyTooShort = errors.New("HS512 signing key must be at least 64 bytes (512 bits)")

	// ErrTokenExpired is returned when the grant is past its expiry.
	ErrTokenExpired = errors.New("JWT token has expired")

	// ErrInvalidToken is returned for every other rejected grant: bad
	// signature, wrong issuer or audience, missing claims.
	ErrInvalidToken = errors.New("invalid token")
)

// JWT issues and checks grants.
type JWT interface {
	// Generate creates a signed grant for identity.
	Generate(identity string) (string, error)
	// Verify parses and validates the token and returns claims.
	Verify(tokenStr string) (Claims, error)
}

// Config defines the inputs for building a JWT implementation.
type Config struct {
	// Secret is the HMAC signing key.
	Secret []byte
	// Issuer is the token issuer value.
	Issuer string
	// Audiences are the accepted token audiences.
	Audiences []string
	// TTL is the grant lifetime.
	TTL time.Duration
	// Clock provides the current time source.
	Clock clock.Clocker
	// UUID generates grant IDs (jti). A grant ID is what single-use checks
	// key on.
	UUID uid.StringID
}

// Claims are the registered claims plus the verified identity.
type Claims struct {
	jwt.RegisteredClaims
	// Identity is the verified email identity.
	Identity string `json:"identity"`
}

// Remaining returns how long the grant stays valid at now, or zero when it
// has no expiry or is already past it.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return max(c.ExpiresAt.Sub(now), 0)
}

type authKey struct{}

// GetAuth returns the claims stored by SetAuth, or nil.
func GetAuth(ctx context.Context) *Claims {
	if clm, ok := ctx.Value(authKey{}).(Claims); ok {
		return &clm
	}
	return nil
}

// SetAuth stores claims in the context.
func SetAuth(ctx context.Context, clm Claims) context.Context {
	return context.WithValue(ctx, authKey{}, clm)
}
