package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// PayloadFingerprint hashes an action payload into the normalized form used
// for duplicate detection. The payload is decoded and re-encoded so that key
// order and insignificant whitespace do not change the fingerprint; a
// payload that is not valid JSON is hashed as-is.
func PayloadFingerprint(payload string) string {
	var decoded interface{}
	canonical := []byte(payload)
	if err := json.Unmarshal([]byte(payload), &decoded); err == nil {
		if encoded, err := json.Marshal(decoded); err == nil {
			canonical = encoded // json.Marshal sorts map keys
		}
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
