package util

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// JsonHash is the hex sha256 of the JSON encoding of s. Map keys are encoded
// in sorted order, so equal maps hash the same.
func JsonHash(s interface{}) string {
	bs, _ := json.Marshal(s)
	hash := sha256.Sum256(bs)
	return hex.EncodeToString(hash[:])
}

// ShortHash abbreviates a hash for logs and file listings.
func ShortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
