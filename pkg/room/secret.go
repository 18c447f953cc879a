package room

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateOTP generates a cryptographically secure random 12-character
// one-time password suitable for document protection.
func GenerateOTP() string {
	b := make([]byte, 9)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
