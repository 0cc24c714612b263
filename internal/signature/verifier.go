package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verify checks that providedSignature is the hex-encoded HMAC-SHA256 of the
// raw request body under sharedSecret. The comparison is constant-time.
func Verify(rawBody []byte, providedSignature, sharedSecret string) bool {
	if sharedSecret == "" || providedSignature == "" {
		return false
	}
	return hmac.Equal([]byte(Compute(rawBody, sharedSecret)), []byte(providedSignature))
}

// Compute returns the hex-encoded HMAC-SHA256 of body under sharedSecret.
func Compute(body []byte, sharedSecret string) string {
	mac := hmac.New(sha256.New, []byte(sharedSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
