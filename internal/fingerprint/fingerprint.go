// Package fingerprint computes content fingerprints used for staleness checks.
// Fingerprints are hex encoded SHA-256 digests.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
)

// Missing is the fingerprint recorded for a file that does not exist
const Missing = ""

// File computes a SHA-256 fingerprint of the file contents
func File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FileOrMissing is File, except that a missing file yields Missing instead of an error
func FileOrMissing(path string) (string, error) {
	fp, err := File(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Missing, nil
	}
	return fp, err
}

// Bytes computes a SHA-256 fingerprint of the given content
func Bytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// String computes a SHA-256 fingerprint of the given string
func String(content string) string {
	return Bytes([]byte(content))
}

// Combine fingerprints an ordered list of parts. Parts are length-prefixed so
// that ("ab","c") and ("a","bc") differ.
func Combine(parts ...string) string {
	hasher := sha256.New()
	var prefix [8]byte
	for _, p := range parts {
		n := uint64(len(p))
		for i := 0; i < 8; i++ {
			prefix[i] = byte(n >> (8 * i))
		}
		hasher.Write(prefix[:])
		hasher.Write([]byte(p))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
