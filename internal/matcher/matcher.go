// Package matcher is the deterministic offline verdict used when the
// authoritative registry service cannot be reached.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/example/certverify/internal/certificate"
	"github.com/example/certverify/internal/registry"
)

// numberPattern is deliberately loose: it also fires on unrelated file names
// that happen to look like XX-XX-YYYY-NNNNNN.
var numberPattern = regexp.MustCompile(`(?i)[a-z]{2}-[a-z]{2}-\d{4}-\d{6,}`)

// Issue texts produced by the matcher.
const (
	IssueNoMatch        = "No matching registry record found; verify this certificate manually with the issuing institution"
	IssueNoMediaType    = "Declared media type is missing"
	IssueZeroSize       = "Declared file size is zero"
	IssueLookupFailed   = "Local registry lookup failed"
	issueMismatchFormat = "Certificate number %s is registered, but the file fingerprint does not match the registered document"
	issueDuplicateFmt   = "Certificate number %s appears in %d registry records; possible forged clone"
)

// ExtractCertificateNumber finds the first certificate-number-like token in
// text, upper-cased.
func ExtractCertificateNumber(text string) (string, bool) {
	m := numberPattern.FindString(text)
	if m == "" {
		return "", false
	}
	return strings.ToUpper(m), true
}

// Input is what the matcher knows about the file.
type Input struct {
	Fingerprint  certificate.Fingerprint
	EmbeddedCode string
	FileName     string
	MediaType    string
	DeclaredSize int64
}

// Outcome is the matcher verdict. Status is never invalid.
type Outcome struct {
	Status certificate.Status
	Record *certificate.RegistryRecord
	Issues []string
}

// Matcher evaluates fingerprint, then certificate number, then gives up.
type Matcher struct {
	lookup registry.Lookup
	logger *zap.Logger
}

// New creates a Matcher over lookup.
func New(lookup registry.Lookup, logger *zap.Logger) *Matcher {
	return &Matcher{lookup: lookup, logger: logger.Named("local_matcher")}
}

// Match never fails: lookup errors become issues and a suspect verdict.
func (m *Matcher) Match(ctx context.Context, in Input) Outcome {
	out := m.match(ctx, in)

	if strings.TrimSpace(in.MediaType) == "" {
		out.Issues = append(out.Issues, IssueNoMediaType)
	}
	if in.DeclaredSize == 0 {
		out.Issues = append(out.Issues, IssueZeroSize)
	}
	return out
}

func (m *Matcher) match(ctx context.Context, in Input) Outcome {
	var issues []string

	rec, err := m.lookup.FindByFingerprint(ctx, in.Fingerprint)
	switch {
	case err == nil && rec != nil:
		return Outcome{Status: certificate.StatusValid, Record: rec}
	case err != nil && !errors.Is(err, registry.ErrNotFound):
		m.logger.Warn("fingerprint lookup failed", zap.String("fingerprint", in.Fingerprint.String()), zap.Error(err))
		issues = append(issues, fmt.Sprintf("%s: %v", IssueLookupFailed, err))
	}

	number, ok := m.certificateNumber(in)
	if ok {
		recs, err := m.lookup.FindByCertificateNumber(ctx, number)
		if err != nil {
			m.logger.Warn("certificate number lookup failed", zap.String("number", number), zap.Error(err))
			issues = append(issues, fmt.Sprintf("%s: %v", IssueLookupFailed, err))
		} else if len(recs) > 0 {
			first := recs[0]
			issues = append(issues, fmt.Sprintf(issueMismatchFormat, number))
			if len(recs) > 1 {
				issues = append(issues, fmt.Sprintf(issueDuplicateFmt, number, len(recs)))
			}
			return Outcome{Status: certificate.StatusSuspect, Record: &first, Issues: issues}
		}
	}

	issues = append(issues, IssueNoMatch)
	return Outcome{Status: certificate.StatusSuspect, Issues: issues}
}

// certificateNumber prefers the embedded code and falls back to the file name
// when the code carries no number.
func (m *Matcher) certificateNumber(in Input) (string, bool) {
	if in.EmbeddedCode != "" {
		if number, ok := ExtractCertificateNumber(in.EmbeddedCode); ok {
			return number, true
		}
	}
	return ExtractCertificateNumber(in.FileName)
}
