package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeviceID derives a stable device identifier from a user agent when the
// client did not send one. Empty input yields an empty ID.
func DeviceID(userAgent string) string {
	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:16])
}
