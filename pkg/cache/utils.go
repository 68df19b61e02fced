package cache

import (
	"crypto/md5"
	"encoding/hex"
)

// Digest returns the hex MD5 of s.
func Digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Key namespaces the digest of raw under prefix, so keys stay short
// whatever the length of raw.
func Key(prefix, raw string) string {
	return prefix + ":" + Digest(raw)
}
