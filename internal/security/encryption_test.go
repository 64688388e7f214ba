package security

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher("test-passphrase", "trade-engine")
	if err != nil {
		t.Fatalf("NewCipher returned error: %v", err)
	}

	encrypted, err := c.Encrypt("super-secret-api-key")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if encrypted == "super-secret-api-key" {
		t.Fatalf("expected ciphertext to differ from plaintext")
	}

	decrypted, err := c.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if decrypted != "super-secret-api-key" {
		t.Fatalf("expected round-trip to recover plaintext, got %q", decrypted)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	c1, _ := NewCipher("passphrase-one", "trade-engine")
	c2, _ := NewCipher("passphrase-two", "trade-engine")

	encrypted, err := c1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if _, err := c2.Decrypt(encrypted); err == nil {
		t.Fatalf("expected decryption with the wrong key to fail")
	}
}

func TestNewCipherRejectsEmptyPassphrase(t *testing.T) {
	if _, err := NewCipher("", "salt"); err == nil {
		t.Fatalf("expected error for empty passphrase")
	}
}
