package secret

import (
	"errors"
	"strings"
	"testing"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func TestCipherRoundTrip(t *testing.T) {
	c := newTestCipher(t)
	enc, err := c.Encrypt("canvas-token-123")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(enc, "canvas-token-123") {
		t.Fatal("ciphertext must not contain the plaintext")
	}
	dec, err := c.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if dec != "canvas-token-123" {
		t.Fatalf("expected round trip, got %q", dec)
	}
}

func TestCipherNonceIsRandom(t *testing.T) {
	c := newTestCipher(t)
	a, _ := c.Encrypt("same")
	b, _ := c.Encrypt("same")
	if a == b {
		t.Fatal("two encryptions of the same text should differ")
	}
}

func TestCipherDetectsTampering(t *testing.T) {
	c := newTestCipher(t)
	enc, _ := c.Encrypt("secret")
	raw := []byte(enc)
	mid := len(raw) / 2
	if raw[mid] == 'A' {
		raw[mid] = 'B'
	} else {
		raw[mid] = 'A'
	}
	if _, err := c.Decrypt(string(raw)); !errors.Is(err, ErrMalformedCiphertext) {
		t.Fatalf("expected ErrMalformedCiphertext, got %v", err)
	}
}

func TestCipherWrongKey(t *testing.T) {
	enc, _ := newTestCipher(t).Encrypt("secret")
	if _, err := newTestCipher(t).Decrypt(enc); err == nil {
		t.Fatal("decrypting with another key should fail")
	}
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "not base64 !!", "c2hvcnQ="} {
		if _, err := NewCipher(key); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}
