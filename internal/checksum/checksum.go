package checksum

import (
	"context"
	"crypto/md5" //nolint:gosec // catalog compatibility only
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumMD5 returns the hex-encoded MD5 digest of data.
func SumMD5(data []byte) string {
	h := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(h[:])
}

// Hasher is the in-process hashing capability used by the integrity verifier.
type Hasher struct{}

// HashPayload returns the SHA-256 hex digest of data.
func (Hasher) HashPayload(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Sum(data), nil
}
