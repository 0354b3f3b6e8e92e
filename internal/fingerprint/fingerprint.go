package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/example/certverify/internal/certificate"
)

var hexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Compute returns the SHA-256 fingerprint of content.
func Compute(content []byte) certificate.Fingerprint {
	sum := sha256.Sum256(content)
	return certificate.Fingerprint(hex.EncodeToString(sum[:]))
}

// Valid reports whether value is a well-formed fingerprint.
func Valid(value string) bool {
	return hexPattern.MatchString(value)
}
