// Package hashutil computes the content hashes trees report from FileHash.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/arthur-debert/treetx/pkg/types"
)

// Prefix marks the digest algorithm in every checksum string.
const Prefix = "sha256:"

// ChecksumBytes returns "sha256:<hex>" for data.
func ChecksumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(sum[:])
}

// ChecksumFS hashes the file at path read through fsys.
func ChecksumFS(fsys types.FS, path string) (string, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return "", err
	}
	return ChecksumBytes(data), nil
}
