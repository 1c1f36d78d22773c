package jwt

import (
	"errors"
	"fmt"
	"time"

	libJWT "github.com/golang-jwt/jwt/v5"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
)

const minHS512KeyLen = 64

// HS512 signs and verifies grants with a shared HMAC-SHA512 secret.
type HS512 struct {
	secret []byte
	issuer string
	aud    []string
	ttl    time.Duration
	clock  clock.Clocker
	ids    uid.StringID
	parser *libJWT.Parser
}

// NewHS512 builds an HS512 signer. The secret must be at least 64 bytes.
func NewHS512(cfg Config) (*HS512, error) {
	if len(cfg.Secret) < minHS512KeyLen {
		return nil, ErrSigningKeyTooShort
	}

	c := cfg.Clock
	if c == nil {
		c = clock.New()
	}

	opts := []libJWT.ParserOption{
		libJWT.WithValidMethods([]string{libJWT.SigningMethodHS512.Alg()}),
		libJWT.WithIssuedAt(),
		libJWT.WithExpirationRequired(),
		libJWT.WithTimeFunc(c.Now),
	}
	if cfg.Issuer != "" {
		opts = append(opts, libJWT.WithIssuer(cfg.Issuer))
	}
	if len(cfg.Audiences) > 0 {
		opts = append(opts, libJWT.WithAudience(cfg.Audiences...))
	}

	return &HS512{
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		aud:    cfg.Audiences,
		ttl:    cfg.TTL,
		clock:  c,
		ids:    cfg.UUID,
		parser: libJWT.NewParser(opts...),
	}, nil
}

// Generate creates a signed grant for identity with a fresh grant ID.
func (s *HS512) Generate(identity string) (string, error) {
	now := s.clock.Now()

	var jti string
	if s.ids != nil {
		jti = s.ids.Generate()
	}

	token := libJWT.NewWithClaims(libJWT.SigningMethodHS512, Claims{
		RegisteredClaims: libJWT.RegisteredClaims{
			ID:        jti,
			Subject:   identity,
			Issuer:    s.issuer,
			Audience:  s.aud,
			IssuedAt:  libJWT.NewNumericDate(now),
			NotBefore: libJWT.NewNumericDate(now),
			ExpiresAt: libJWT.NewNumericDate(now.Add(s.ttl)),
		},
		Identity: identity,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign grant: %w", err)
	}
	return signed, nil
}

// Verify validates tokenStr. Library errors never leave this method; callers
// get ErrTokenExpired or ErrInvalidToken.
func (s *HS512) Verify(tokenStr string) (Claims, error) {
	var claims Claims

	token, err := s.parser.ParseWithClaims(tokenStr, &claims, func(*libJWT.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, libJWT.ErrTokenExpired):
		return Claims{}, ErrTokenExpired
	case err != nil, !token.Valid:
		return Claims{}, ErrInvalidToken
	case claims.Identity == "" || claims.ID == "" || claims.Subject != claims.Identity:
		return Claims{}, ErrInvalidToken
	}

	return claims, nil
}
