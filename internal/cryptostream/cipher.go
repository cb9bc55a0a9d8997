// Package cryptostream provides seekable XChaCha20 encrypt/decrypt adapters
// over a byte stream. It generalizes the teacher's
// crypto.SeekableAESCTRDecrypter (koabula-MochiBox backend/crypto/stream.go)
// from AES-CTR with a 16-byte block counter to XChaCha20's pure keystream
// with a 64-byte block counter, and adds the symmetric encrypt-on-write half
// the teacher never needed.
package cryptostream

import (
	"io"

	"golang.org/x/crypto/chacha20"
)

const (
	// KeySize is the XChaCha20 key length in bytes (256-bit key).
	KeySize = chacha20.KeySize
	// NonceSize is the XChaCha20 extended-nonce length in bytes (192-bit IV).
	NonceSize = chacha20.NonceSizeX
	// blockSize is the keystream block size the cipher seeks in whole
	// multiples of; fractional offsets are reached by discarding bytes.
	blockSize = 64
)

// Writer XORs plaintext into ciphertext as it is written to an inner
// io.Writer. It tracks the logical position implicitly: XChaCha20 only
// supports a monotonically advancing keystream on write, which is all the
// packer needs since it writes sequentially end-to-end.
type Writer struct {
	inner   io.Writer
	cipher  *chacha20.Cipher
	scratch []byte
}

// NewEncrypter constructs a Writer that encrypts everything subsequently
// written to sink using key and iv (nonce).
func NewEncrypter(sink io.Writer, key []byte, iv []byte) (*Writer, error) {
	cipher, err := chacha20.NewUnauthenticatedCipher(key, iv)
	if err != nil {
		return nil, err
	}
	return &Writer{inner: sink, cipher: cipher}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if cap(w.scratch) < len(p) {
		w.scratch = make([]byte, len(p))
	}
	out := w.scratch[:len(p)]
	w.cipher.XORKeyStream(out, p)
	if _, err := w.inner.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Reader decrypts ciphertext read from an inner io.ReadSeeker, and can seek
// its logical position to any offset, re-aligning the keystream for
// random-access reads.
type Reader struct {
	inner         io.ReadSeeker
	innerStartPos int64
	key           []byte
	iv            []byte
	cipher        *chacha20.Cipher
	pos           int64
}

// NewDecrypter constructs a Reader over src, keyed by key/iv, recording
// src's current position as the logical zero offset.
func NewDecrypter(src io.ReadSeeker, key []byte, iv []byte) (*Reader, error) {
	start, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	cipher, err := chacha20.NewUnauthenticatedCipher(key, iv)
	if err != nil {
		return nil, err
	}
	return &Reader{
		inner:         src,
		innerStartPos: start,
		key:           append([]byte(nil), key...),
		iv:            append([]byte(nil), iv...),
		cipher:        cipher,
	}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.cipher.XORKeyStream(p[:n], p[:n])
		r.pos += int64(n)
	}
	return n, err
}

// ReadFull reads exactly len(p) bytes or returns the first error
// encountered, mirroring io.ReadFull but decrypting as it goes.
func (r *Reader) ReadFull(p []byte) error {
	_, err := io.ReadFull(r, p)
	return err
}

// Seek repositions the logical stream. Start is relative to the adapter's
// construction point; Current and End pass through to the inner stream but
// still re-align the keystream to the resulting absolute logical offset. A
// target before the construction point clamps to zero rather than erroring.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	var err error
	switch whence {
	case io.SeekStart:
		target := r.innerStartPos + offset
		if target < r.innerStartPos {
			target = r.innerStartPos
		}
		newPos, err = r.inner.Seek(target, io.SeekStart)
	default:
		newPos, err = r.inner.Seek(offset, whence)
	}
	if err != nil {
		return 0, err
	}

	if newPos < r.innerStartPos {
		newPos, err = r.inner.Seek(r.innerStartPos, io.SeekStart)
		if err != nil {
			return 0, err
		}
	}

	logical := newPos - r.innerStartPos
	if err := r.realign(logical); err != nil {
		return 0, err
	}
	r.pos = logical
	return logical, nil
}

// realign rekeys the cipher to the keystream position corresponding to the
// given logical byte offset, using a fresh cipher seeked by whole blocks
// then fast-forwarded the remaining bytes within the block.
func (r *Reader) realign(logical int64) error {
	cipher, err := chacha20.NewUnauthenticatedCipher(r.key, r.iv)
	if err != nil {
		return err
	}
	blockIndex := uint32(logical / blockSize)
	byteOffset := int(logical % blockSize)
	cipher.SetCounter(blockIndex)
	if byteOffset > 0 {
		dummy := make([]byte, byteOffset)
		cipher.XORKeyStream(dummy, dummy)
	}
	r.cipher = cipher
	return nil
}

// StreamPosition reports the current logical offset, relative to the
// adapter's construction point.
func (r *Reader) StreamPosition() int64 {
	return r.pos
}
