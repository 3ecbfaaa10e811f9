package security

import (
	"bytes"
	"testing"
)

func TestNewSecretsManager(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{name: "valid 32-byte key", key: make([]byte, 32), wantErr: false},
		{name: "invalid short key", key: make([]byte, 16), wantErr: true},
		{name: "invalid long key", key: make([]byte, 64), wantErr: true},
		{name: "empty key", key: []byte{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := NewSecretsManager(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSecretsManager() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && sm == nil {
				t.Fatal("NewSecretsManager() returned nil without error")
			}
		})
	}
}

func TestNewSecretsManagerFromPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "valid password", password: "my-secure-password", wantErr: false},
		{name: "empty password", password: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := NewSecretsManagerFromPassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSecretsManagerFromPassword() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && sm == nil {
				t.Fatal("NewSecretsManagerFromPassword() returned nil without error")
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sm, err := NewSecretsManagerFromPassword("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("NewSecretsManagerFromPassword: %v", err)
	}

	plaintext := []byte("a shared HMAC key for the wire protocol")
	ciphertext, err := sm.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("ciphertext equals plaintext")
	}

	decrypted, err := sm.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWrongPassphraseFails(t *testing.T) {
	sm, err := NewSecretsManagerFromPassword("right-passphrase")
	if err != nil {
		t.Fatalf("NewSecretsManagerFromPassword: %v", err)
	}
	ciphertext, err := sm.Encrypt([]byte("secret key material"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	wrong, err := NewSecretsManagerFromPassword("wrong-passphrase")
	if err != nil {
		t.Fatalf("NewSecretsManagerFromPassword: %v", err)
	}
	if _, err := wrong.Decrypt(ciphertext); err == nil {
		t.Fatal("expected decrypt with wrong passphrase to fail")
	}
}

func TestDecryptEmptyFails(t *testing.T) {
	sm, err := NewSecretsManagerFromPassword("p")
	if err != nil {
		t.Fatalf("NewSecretsManagerFromPassword: %v", err)
	}
	if _, err := sm.Decrypt(nil); err == nil {
		t.Fatal("expected decrypt of empty ciphertext to fail")
	}
}
