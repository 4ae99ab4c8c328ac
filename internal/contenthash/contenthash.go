// Package contenthash computes the content fingerprint stored on every document.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Sum returns the lowercase hex SHA-256 of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Hasher accumulates written bytes and reports their fingerprint and size.
type Hasher struct {
	h    hash.Hash
	size int64
}

// New returns an empty Hasher.
func New() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Write implements io.Writer.
func (w *Hasher) Write(p []byte) (int, error) {
	n, err := w.h.Write(p)
	w.size += int64(n)
	return n, err
}

// Sum returns the hex fingerprint of everything written so far.
func (w *Hasher) Sum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

// Size returns the number of bytes written.
func (w *Hasher) Size() int64 {
	return w.size
}

// Reader consumes r and returns its fingerprint and length.
func Reader(r io.Reader) (string, int64, error) {
	h := New()
	if _, err := io.Copy(h, r); err != nil {
		return "", 0, err
	}
	return h.Sum(), h.Size(), nil
}
