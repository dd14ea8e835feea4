package secrets

import (
	"bytes"
	"strings"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestNewBox_RejectsShortKey(t *testing.T) {
	if _, err := NewBox([]byte("short")); err != ErrBadKey {
		t.Fatalf("expected ErrBadKey, got %v", err)
	}
}

func TestSealOpen_Roundtrip(t *testing.T) {
	box, err := NewBox(testKey())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	sealed, err := box.Seal([]byte(`{"accountSid":"AC1","authToken":"tok"}`))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if !strings.HasPrefix(sealed, "v1.") {
		t.Fatalf("expected v1. prefix, got %q", sealed)
	}
	if strings.Contains(sealed, "tok") {
		t.Fatalf("plaintext leaked into sealed blob")
	}

	plain, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !strings.Contains(string(plain), "AC1") {
		t.Fatalf("roundtrip lost content: %q", plain)
	}
}

func TestOpen_WrongKeyFails(t *testing.T) {
	box1, _ := NewBox(testKey())
	box2, _ := NewBox(bytes.Repeat([]byte{0x43}, 32))

	sealed, err := box1.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if _, err := box2.Open(sealed); err != ErrCannotDecrypt {
		t.Fatalf("expected ErrCannotDecrypt, got %v", err)
	}
}

func TestOpen_RejectsUnknownFormat(t *testing.T) {
	box, _ := NewBox(testKey())
	for _, bad := range []string{"", "v2.abc", "v1.!!!", "v1.aGk"} {
		if _, err := box.Open(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestFingerprint_StableAndCarrierQualified(t *testing.T) {
	a := Fingerprint("twilio", "AC1")
	b := Fingerprint("twilio", "AC1")
	c := Fingerprint("telnyx", "AC1")
	if a != b {
		t.Fatalf("fingerprint not deterministic")
	}
	if a == c {
		t.Fatalf("fingerprint must differ per carrier")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
}
