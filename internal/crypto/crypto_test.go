package crypto

import (
	"strings"
	"testing"
)

// 32 bytes, hex encoded.
const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestNewCipher(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantNil bool
		wantErr bool
	}{
		{"empty key disables encryption", "", true, false},
		{"valid key", testKey, false, false},
		{"not hex", "zzzz", false, true},
		{"wrong length", "abcd", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCipher(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewCipher() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (c == nil) != tt.wantNil {
				t.Errorf("NewCipher() nil = %v, want %v", c == nil, tt.wantNil)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatal(err)
	}

	plaintext := "invoice,total,42.00,"
	stored, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if !strings.HasPrefix(stored, "v1:") {
		t.Errorf("expected v1: prefix on encrypted value, got %q", stored)
	}
	if strings.Contains(stored, "invoice") {
		t.Error("encrypted value must not contain plaintext")
	}

	got, err := c.Decrypt(stored)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != plaintext {
		t.Errorf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestEncryptRandomizesNonce(t *testing.T) {
	c, _ := NewCipher(testKey)

	a, _ := c.Encrypt("same text")
	b, _ := c.Encrypt("same text")
	if a == b {
		t.Error("two encryptions of the same text must differ")
	}
}

func TestDecryptPassthrough(t *testing.T) {
	c, _ := NewCipher(testKey)

	// Rows written before encryption was enabled carry no prefix.
	got, err := c.Decrypt("legacy,plain,text,")
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != "legacy,plain,text," {
		t.Errorf("unprefixed value must pass through, got %q", got)
	}
}

func TestNilCipherPassthrough(t *testing.T) {
	var c *Cipher

	enc, err := c.Encrypt("text")
	if err != nil || enc != "text" {
		t.Errorf("nil cipher Encrypt = %q, %v", enc, err)
	}
	dec, err := c.Decrypt("text")
	if err != nil || dec != "text" {
		t.Errorf("nil cipher Decrypt = %q, %v", dec, err)
	}
}

func TestDecryptCorrupted(t *testing.T) {
	c, _ := NewCipher(testKey)

	if _, err := c.Decrypt("v1:not-base64!!"); err == nil {
		t.Error("expected error for malformed base64")
	}
	if _, err := c.Decrypt("v1:YWJj"); err == nil {
		t.Error("expected error for truncated ciphertext")
	}

	stored, _ := c.Encrypt("text")
	tampered := stored[:len(stored)-4] + "AAA="
	if _, err := c.Decrypt(tampered); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
}
