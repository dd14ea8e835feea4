package auth

import (
	"errors"
	"time"

	"telephony-orchestrator/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Manager issues and verifies the HS256 bearer tokens that guard the
// management surface. These are operator/service tokens; there is no user
// store or refresh flow in this process.
type Manager struct {
	secret []byte
	issuer string
}

func NewManager(cfg config.MgmtAuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("MGMT_JWT_SECRET is required")
	}
	return &Manager{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.JWTIssuer,
	}, nil
}

// Claims is the only supported claims shape for management tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Subject names the operator or automation that holds the token.
	// RegisteredClaims.Subject is authoritative; this is a convenience copy.
	Scope string `json:"scope,omitempty"`
}

// Issue mints a management token for subject, valid for ttl.
func (m *Manager) Issue(now time.Time, subject, scope string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("auth: subject is required")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Scope: scope,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secret)
}

// Verify parses and validates a management token.
func (m *Manager) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30 * time.Second), // clock skew tolerance
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	validator := jwt.NewValidator(opts...)
	if err := validator.Validate(claims.RegisteredClaims); err != nil {
		return Claims{}, err
	}

	if claims.Subject == "" {
		return Claims{}, errors.New("subject missing")
	}
	return claims, nil
}
