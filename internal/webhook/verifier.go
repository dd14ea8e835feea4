package webhook

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingAuth  = errors.New("webhook: missing authorization header")
	ErrBadSignature = errors.New("webhook: invalid signature")
	ErrBadPayload   = errors.New("webhook: malformed payload")
)

// Verifier checks the platform's webhook signature: an HS256 JWT in the
// Authorization header whose issuer names the API key and whose sha256 claim
// is the hex digest of the raw body. More than one key pair can be active at
// once so the platform credential rotates without a delivery gap.
type Verifier struct {
	// keys maps API key -> API secret.
	keys map[string]string
}

func NewVerifier(keys map[string]string) *Verifier {
	return &Verifier{keys: keys}
}

type signatureClaims struct {
	SHA256 string `json:"sha256"`
	jwt.RegisteredClaims
}

// VerifyAndDecode validates the signature over raw and decodes the payload.
// It has no side effects; verification failures never reach the idempotency
// store.
func (v *Verifier) VerifyAndDecode(raw []byte, authHeader string) (Payload, error) {
	tokenStr := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(authHeader), "Bearer "))
	if tokenStr == "" {
		return Payload{}, ErrMissingAuth
	}

	claims := &signatureClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		iss, err := t.Claims.GetIssuer()
		if err != nil || iss == "" {
			return nil, fmt.Errorf("token has no issuer")
		}
		secret, ok := v.keys[iss]
		if !ok {
			return nil, fmt.Errorf("unknown api key %q", iss)
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	sum := sha256.Sum256(raw)
	want := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(want), []byte(claims.SHA256)) != 1 {
		return Payload{}, fmt.Errorf("%w: body checksum mismatch", ErrBadSignature)
	}

	return decodePayload(raw)
}
