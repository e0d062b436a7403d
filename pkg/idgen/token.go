package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateAPIKey returns an opaque API key token with the given prefix,
// e.g. iu_live_9f86d081884c7d65...
func GenerateAPIKey(prefix string) string {
	return prefix + randomHex(24)
}

// GenerateSecretKey returns an opaque secret token paired with an API key.
func GenerateSecretKey() string {
	return "iu_sec_" + randomHex(32)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(err)
	}
	return hex.EncodeToString(buf)
}
