package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Hash represents a cryptographic hash.
type Hash string

// NewHash creates a new hash from data.
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation.
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty.
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal.
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// ArchiveHash identifies the content of a persisted CRB archive. The file
// store neither writes nor checks one on Save or Load.
type ArchiveHash Hash

// NewArchiveHash hashes the byte-exact field values that make up a
// persisted CRB database, in a fixed, sorted order so the hash is stable
// across runs with identical content.
func NewArchiveHash(fields map[string]string) ArchiveHash {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s;", k, fields[k])
	}
	return ArchiveHash(hex.EncodeToString(h.Sum(nil)))
}

func (h ArchiveHash) String() string { return Hash(h).String() }
