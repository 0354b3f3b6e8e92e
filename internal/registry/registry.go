// Package registry provides read-only access to authoritative certificate
// records, independent of whether they come from a static table, a file
// mirror or a database.
package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/example/certverify/internal/certificate"
	"github.com/example/certverify/internal/fingerprint"
)

// ErrNotFound is returned when no record has the requested fingerprint.
var ErrNotFound = errors.New("registry record not found")

// Lookup is the read-only view the local matcher consults. Implementations
// must be safe for concurrent use.
type Lookup interface {
	FindByFingerprint(ctx context.Context, fp certificate.Fingerprint) (*certificate.RegistryRecord, error)
	// FindByCertificateNumber returns every record carrying number, in
	// record-set order. No match yields an empty slice and a nil error.
	FindByCertificateNumber(ctx context.Context, number string) ([]certificate.RegistryRecord, error)
}

var numberPattern = regexp.MustCompile(`^[A-Z]{2}-[A-Z]{2}-\d{4}-\d{6,}$`)

// NormalizeNumber upper-cases and trims a certificate number.
func NormalizeNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

// Validate checks that a record can serve as an identity key.
func Validate(rec certificate.RegistryRecord) error {
	if !numberPattern.MatchString(NormalizeNumber(rec.CertificateNumber)) {
		return fmt.Errorf("certificate number %q is malformed", rec.CertificateNumber)
	}
	if !fingerprint.Valid(strings.ToLower(rec.Fingerprint.String())) {
		return fmt.Errorf("certificate %s: fingerprint %q is not a sha256 hex digest", rec.CertificateNumber, rec.Fingerprint)
	}
	return nil
}

func normalizeRecord(rec certificate.RegistryRecord) certificate.RegistryRecord {
	rec.CertificateNumber = NormalizeNumber(rec.CertificateNumber)
	rec.Fingerprint = certificate.Fingerprint(strings.ToLower(strings.TrimSpace(rec.Fingerprint.String())))
	return rec
}
