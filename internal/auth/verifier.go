package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"rentgate/internal/config"
	"rentgate/internal/directory"
)

var (
	// ErrNoToken means the request carried no usable bearer credential.
	ErrNoToken = errors.New("no token")
	// ErrInvalidToken covers malformed tokens and signature failures.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken means the token validated but is past its expiry.
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the identity extracted from a verified bearer token. It is
// recreated per request and never persisted.
type Claims struct {
	UserID    string
	Role      directory.Role
	OrgID     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	Role  string `json:"role"`
	OrgID string `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens against a server-held HS256 secret. It is
// a pure function of (secret, token, clock) and makes no external calls.
type Verifier struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	Now        func() time.Time
}

func NewVerifier(cfg config.Config) *Verifier {
	return &Verifier{
		SigningKey: []byte(cfg.Security.TokenSigningKey),
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// VerifyHeader extracts and verifies the bearer token from an Authorization
// header value.
func (v *Verifier) VerifyHeader(header string) (Claims, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Claims{}, ErrNoToken
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Claims{}, ErrNoToken
	}
	return v.Verify(parts[1])
}

// Verify validates the raw token string and extracts the identity claim.
func (v *Verifier) Verify(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrNoToken
	}
	if len(v.SigningKey) == 0 {
		return Claims{}, fmt.Errorf("%w: token signing key not configured", ErrInvalidToken)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(v.Now),
	}
	if iss := strings.TrimSpace(v.Issuer); iss != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(iss))
	}
	if aud := strings.TrimSpace(v.Audience); aud != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(aud))
	}

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.SigningKey, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{
		UserID:  userID,
		Role:    directory.ParseRole(claims.Role),
		OrgID:   strings.TrimSpace(claims.OrgID),
		TokenID: strings.TrimSpace(claims.ID),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Issue signs a token for the given user. Used by the admin token mint and
// by tests; verification never depends on issuance.
func (v *Verifier) Issue(userID string, role directory.Role, orgID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("missing user id")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	if len(v.SigningKey) == 0 {
		return "", errors.New("token signing key not configured")
	}

	now := v.Now()
	claims := tokenClaims{
		Role:  string(role),
		OrgID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if v.Audience != "" {
		claims.Audience = jwt.ClaimStrings{v.Audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
