package payment

import (
	"crypto/rand"
	"fmt"
	"time"
)

const (
	referencePrefix    = "MIPROJET"
	referenceAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referenceSuffixLen = 5
)

// NewReference generates a platform payment reference, e.g.
// MIPROJET-1700000000-AB12C. The unix-second component plus the random
// suffix make collisions practically impossible; the payments table enforces
// uniqueness regardless.
func NewReference() string {
	suffix := make([]byte, referenceSuffixLen)
	rand.Read(suffix)
	for i := range suffix {
		suffix[i] = referenceAlphabet[int(suffix[i])%len(referenceAlphabet)]
	}
	return fmt.Sprintf("%s-%d-%s", referencePrefix, time.Now().Unix(), suffix)
}
