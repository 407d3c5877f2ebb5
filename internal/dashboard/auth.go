package dashboard

import (
	"strings"
	"time"

	"helpdesk/backend/internal/config"

	errors "github.com/Laisky/errors/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "helpdesk-bot"

var ErrUnauthorized = errors.New("unauthorized")

// Claims identify the staff member a dashboard token was issued to.
type Claims struct {
	StaffID int64 `json:"staff_id"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for staffID valid for config.DashboardTokenTTL.
func IssueToken(secret string, staffID int64, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("dashboard secret is not configured")
	}
	claims := Claims{
		StaffID: staffID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(config.DashboardTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "sign dashboard token")
	}
	return signed, nil
}

// ParseToken validates the signature, issuer and expiry and returns the claims.
func ParseToken(secret, raw string) (*Claims, error) {
	if secret == "" {
		return nil, errors.Wrap(ErrUnauthorized, "dashboard secret is not configured")
	}
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return nil, errors.Wrap(ErrUnauthorized, "token missing")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, errors.Wrapf(ErrUnauthorized, "parse token: %v", err)
	}
	return claims, nil
}
