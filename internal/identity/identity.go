// Package identity derives stable identifiers for files and chunks.
//
// FileID is cheap and metadata-only so the indexer can short-circuit
// on unchanged (path, mtime, size) before paying the cost of reading
// and hashing file content. ContentSHA256 is the strong signal used
// once extraction has happened.
package identity

import (
	"crypto/sha1" //nolint:gosec // used as a non-cryptographic stable identifier, not for security
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// chunkIDNamespace is the DNS-namespace UUIDv5 root used to derive
// deterministic, ANN-store-compatible chunk identifiers.
var chunkIDNamespace = uuid.NameSpaceDNS

// FileID derives a stable 40-hex-digit identifier from a file's path,
// modification time, and size. It is a pure function of its inputs:
// the same triple always yields the same ID, on any machine.
func FileID(path string, mtime int64, size int64) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%d", path, mtime, size))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// ChunkID derives a deterministic UUIDv5 for the idx-th chunk of
// fileID. ChunkID(f, i) always equals itself across calls, and
// ChunkID(f, i) != ChunkID(f, j) for i != j.
func ChunkID(fileID string, idx int) string {
	name := fmt.Sprintf("%s_%d", fileID, idx)
	return uuid.NewSHA1(chunkIDNamespace, []byte(name)).String()
}

// ContentSHA256 returns the lowercase hex SHA-256 digest of extracted
// text, used to detect content changes independent of file metadata.
func ContentSHA256(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
