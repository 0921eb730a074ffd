package backup

import (
	"bytes"
	"testing"
)

func TestGenerateSalt(t *testing.T) {
	s1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	if len(s1) != saltSize {
		t.Errorf("salt length = %d, want %d", len(s1), saltSize)
	}

	s2, _ := GenerateSalt()
	if bytes.Equal(s1, s2) {
		t.Error("two salts should not be equal")
	}
}

func TestDeriveKeyDeterminism(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1 := DeriveKey("passphrase", salt)
	k2 := DeriveKey("passphrase", salt)
	if !bytes.Equal(k1, k2) {
		t.Error("same passphrase and salt should derive the same key")
	}
	if len(k1) != keySize {
		t.Errorf("key length = %d, want %d", len(k1), keySize)
	}

	k3 := DeriveKey("other", salt)
	if bytes.Equal(k1, k3) {
		t.Error("different passphrases should derive different keys")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	salt, _ := GenerateSalt()
	plaintext := []byte(`{"sections":{"legal":[{"id":"doc-1"}]}}`)

	enc, err := EncryptBytes(plaintext, "secret", salt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(enc, plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	dec, err := DecryptBytes(enc, "secret")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(dec, plaintext) {
		t.Errorf("roundtrip mismatch: got %q", dec)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	salt, _ := GenerateSalt()
	enc, _ := EncryptBytes([]byte("payload"), "right", salt)

	if _, err := DecryptBytes(enc, "wrong"); err == nil {
		t.Error("expected error with wrong passphrase")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	salt, _ := GenerateSalt()
	enc, _ := EncryptBytes([]byte("payload"), "secret", salt)

	enc[len(enc)-1] ^= 0xff

	if _, err := DecryptBytes(enc, "secret"); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
}

func TestDecryptTooShort(t *testing.T) {
	if _, err := DecryptBytes([]byte("short"), "secret"); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestEncryptEmptyPayload(t *testing.T) {
	salt, _ := GenerateSalt()
	enc, err := EncryptBytes(nil, "secret", salt)
	if err != nil {
		t.Fatalf("encrypt empty: %v", err)
	}
	dec, err := DecryptBytes(enc, "secret")
	if err != nil {
		t.Fatalf("decrypt empty: %v", err)
	}
	if len(dec) != 0 {
		t.Errorf("expected empty plaintext, got %d bytes", len(dec))
	}
}
