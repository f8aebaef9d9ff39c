package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
)

// maxKeyLength keeps storage keys bounded for backends like Redis.
const maxKeyLength = 64

// Key builds the counter key for subject and action ("user-42:2fa_totp").
// Keys longer than 64 characters are replaced by a 128-bit SHA-256 prefix,
// which keeps distinct inputs apart.
func Key(subject, action string) string {
	if subject == "" || action == "" {
		return ""
	}

	key := subject + ":" + action
	if len(key) <= maxKeyLength {
		return key
	}

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16])
}
