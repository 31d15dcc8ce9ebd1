package core

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Hasher accumulates records into a single Hash. Each record is terminated
// with a newline so that field boundaries cannot shift between records.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns an empty SHA-256 accumulator.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// WriteRecord appends one record.
func (x *Hasher) WriteRecord(record string) {
	x.h.Write([]byte(record))
	x.h.Write([]byte{'\n'})
}

// Sum returns the hash of everything written so far.
func (x *Hasher) Sum() Hash {
	return Hash(hex.EncodeToString(x.h.Sum(nil)))
}
