package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signBody(t *testing.T, apiKey, secret string, body []byte) string {
	t.Helper()
	sum := sha256.Sum256(body)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":    apiKey,
		"sha256": hex.EncodeToString(sum[:]),
		"exp":    time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestVerifyAndDecode_Valid(t *testing.T) {
	v := NewVerifier(map[string]string{"APIkey1": "secret1"})
	body := []byte(`{"id":"ev1","event":"participant_joined","room":{"name":"call-1"}}`)

	p, err := v.VerifyAndDecode(body, signBody(t, "APIkey1", "secret1", body))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if p.ID != "ev1" || p.Event != "participant_joined" || p.Room == nil || p.Room.Name != "call-1" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestVerifyAndDecode_BearerPrefixAccepted(t *testing.T) {
	v := NewVerifier(map[string]string{"APIkey1": "secret1"})
	body := []byte(`{"event":"participant_joined"}`)

	if _, err := v.VerifyAndDecode(body, "Bearer "+signBody(t, "APIkey1", "secret1", body)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestVerifyAndDecode_KeyRotation(t *testing.T) {
	v := NewVerifier(map[string]string{"old": "oldsecret", "new": "newsecret"})
	body := []byte(`{"event":"participant_joined"}`)

	if _, err := v.VerifyAndDecode(body, signBody(t, "old", "oldsecret", body)); err != nil {
		t.Fatalf("old key must still verify: %v", err)
	}
	if _, err := v.VerifyAndDecode(body, signBody(t, "new", "newsecret", body)); err != nil {
		t.Fatalf("new key must verify: %v", err)
	}
}

func TestVerifyAndDecode_Rejections(t *testing.T) {
	v := NewVerifier(map[string]string{"APIkey1": "secret1"})
	body := []byte(`{"event":"participant_joined"}`)

	cases := []struct {
		name   string
		header string
		want   error
	}{
		{"missing header", "", ErrMissingAuth},
		{"wrong secret", signBody(t, "APIkey1", "wrong", body), ErrBadSignature},
		{"unknown api key", signBody(t, "ghost", "secret1", body), ErrBadSignature},
		{"garbage token", "not-a-jwt", ErrBadSignature},
	}
	for _, tc := range cases {
		if _, err := v.VerifyAndDecode(body, tc.header); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
}

func TestVerifyAndDecode_BodyChecksumMismatch(t *testing.T) {
	v := NewVerifier(map[string]string{"APIkey1": "secret1"})
	header := signBody(t, "APIkey1", "secret1", []byte(`{"event":"participant_joined"}`))

	// Valid token, different body: a replayed signature must not cover a
	// swapped payload.
	_, err := v.VerifyAndDecode([]byte(`{"event":"participant_left"}`), header)
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerifyAndDecode_MalformedPayload(t *testing.T) {
	v := NewVerifier(map[string]string{"APIkey1": "secret1"})

	for _, body := range [][]byte{[]byte(`{not json`), []byte(`{"room":{"name":"x"}}`)} {
		_, err := v.VerifyAndDecode(body, signBody(t, "APIkey1", "secret1", body))
		if !errors.Is(err, ErrBadPayload) {
			t.Fatalf("expected ErrBadPayload for %q, got %v", body, err)
		}
	}
}
