package keyfile

import (
	"path/filepath"
	"testing"

	"backy/internal/cryptostream"
)

func TestGenerateReturnsCorrectLength(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(key) != cryptostream.KeySize {
		t.Fatalf("len(key) = %d, want %d", len(key), cryptostream.KeySize)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	decoded, err := Decode(Encode(key))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(decoded) != string(key) {
		t.Fatalf("round trip mismatch")
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	if _, err := Decode(Encode([]byte("too short"))); err == nil {
		t.Fatalf("expected Decode to reject a key of the wrong length")
	}
}

func TestDecodeRejectsInvalidBase64(t *testing.T) {
	if _, err := Decode("not valid base64 !!!"); err == nil {
		t.Fatalf("expected Decode to reject invalid base64")
	}
}

func TestWriteFileReadFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")

	key, err := WriteFile(path)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(key) {
		t.Fatalf("round trip mismatch")
	}
}
