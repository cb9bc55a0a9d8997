// Package keyfile generates and loads the 256-bit container key, stored as
// base64 text so it is easy to copy into a password manager or a key-file
// on disk. The file-permission discipline (0600, written in one shot via
// os.WriteFile) mirrors the teacher's local-secret pattern in
// crypto/store.go's SaveAuthLock/LoadAuthLock, generalized from an
// AES-GCM-wrapped auth lock to a bare key file: only the key itself needs
// to reach the cipher, with no app-level passphrase wrapping layer.
package keyfile

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"backy/internal/archerr"
	"backy/internal/cryptostream"
)

// Generate returns a freshly generated 32-byte key.
func Generate() ([]byte, error) {
	key := make([]byte, cryptostream.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return key, nil
}

// Encode renders key as standard base64 text, suitable for a key file or a
// password manager entry.
func Encode(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// Decode parses base64 text back into a key, rejecting anything that does
// not decode to exactly cryptostream.KeySize bytes.
func Decode(text string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, archerr.Input("", "key is not valid base64", err)
	}
	if len(key) != cryptostream.KeySize {
		return nil, archerr.Input("", fmt.Sprintf("key must decode to %d bytes, got %d", cryptostream.KeySize, len(key)), nil)
	}
	return key, nil
}

// WriteFile generates a new key, writes its base64 encoding to path with
// owner-only permissions, and returns the raw key.
func WriteFile(path string) ([]byte, error) {
	key, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(Encode(key)+"\n"), 0o600); err != nil {
		return nil, archerr.IO(path, err)
	}
	return key, nil
}

// ReadFile loads and decodes the key stored at path.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, archerr.IO(path, err)
	}
	return Decode(trimTrailingNewline(string(data)))
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
