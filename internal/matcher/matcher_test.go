package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/certverify/internal/certificate"
	"github.com/example/certverify/internal/fingerprint"
	"github.com/example/certverify/internal/registry"
)

var (
	genuineContent = []byte("genuine certificate scan")
	genuineFP      = fingerprint.Compute(genuineContent)
)

func singleRecordSet() registry.Lookup {
	return registry.NewMemoryStore([]certificate.RegistryRecord{{
		CertificateNumber: "JH-NU-2019-000123",
		Fingerprint:       genuineFP,
		HolderName:        "Asha Kumari",
		Institution:       "Jharkhand National University",
		Course:            "B.Sc Physics",
		Year:              2019,
	}})
}

func TestExtractCertificateNumber(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"JH-NU-2019-000123.png", "JH-NU-2019-000123", true},
		{"scan_jh-nu-2019-000123_final.pdf", "JH-NU-2019-000123", true},
		{"JH-NU-2019-0001234567", "JH-NU-2019-0001234567", true},
		{"JH-NU-2019-00012.png", "", false},
		{"J1-NU-2019-000123", "", false},
		{"certificate.png", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractCertificateNumber(tc.in)
		assert.Equal(t, tc.wantOK, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestMatchExactFingerprint(t *testing.T) {
	m := New(singleRecordSet(), zap.NewNop())

	out := m.Match(context.Background(), Input{
		Fingerprint:  genuineFP,
		FileName:     "upload.png",
		MediaType:    "image/png",
		DeclaredSize: int64(len(genuineContent)),
	})

	assert.Equal(t, certificate.StatusValid, out.Status)
	require.NotNil(t, out.Record)
	assert.Equal(t, "JH-NU-2019-000123", out.Record.CertificateNumber)
	assert.Empty(t, out.Issues)
}

func TestMatchNumberFromFileNameWithDifferentFingerprint(t *testing.T) {
	m := New(singleRecordSet(), zap.NewNop())

	out := m.Match(context.Background(), Input{
		Fingerprint:  fingerprint.Compute([]byte("edited scan")),
		FileName:     "JH-NU-2019-000123.png",
		MediaType:    "image/png",
		DeclaredSize: 11,
	})

	assert.Equal(t, certificate.StatusSuspect, out.Status)
	require.NotNil(t, out.Record)
	assert.Equal(t, "Asha Kumari", out.Record.HolderName)
	require.Len(t, out.Issues, 1)
	assert.Contains(t, out.Issues[0], "fingerprint does not match")
}

func TestMatchDuplicateNumber(t *testing.T) {
	lookup := registry.NewMemoryStore([]certificate.RegistryRecord{
		{CertificateNumber: "JH-RU-2021-004567", Fingerprint: fingerprint.Compute([]byte("a")), HolderName: "First"},
		{CertificateNumber: "JH-RU-2021-004567", Fingerprint: fingerprint.Compute([]byte("b")), HolderName: "Second"},
	})
	m := New(lookup, zap.NewNop())

	out := m.Match(context.Background(), Input{
		Fingerprint:  fingerprint.Compute([]byte("c")),
		FileName:     "jh-ru-2021-004567.jpg",
		MediaType:    "image/jpeg",
		DeclaredSize: 1,
	})

	assert.Equal(t, certificate.StatusSuspect, out.Status)
	require.NotNil(t, out.Record)
	assert.Equal(t, "First", out.Record.HolderName)
	require.Len(t, out.Issues, 2)
	assert.Contains(t, out.Issues[0], "fingerprint does not match")
	assert.Contains(t, out.Issues[1], "possible forged clone")
}

func TestMatchPrefersEmbeddedCode(t *testing.T) {
	lookup := registry.NewMemoryStore([]certificate.RegistryRecord{
		{CertificateNumber: "JH-NU-2019-000123", Fingerprint: fingerprint.Compute([]byte("a")), HolderName: "From code"},
		{CertificateNumber: "JH-KU-2018-000987", Fingerprint: fingerprint.Compute([]byte("b")), HolderName: "From name"},
	})
	m := New(lookup, zap.NewNop())

	out := m.Match(context.Background(), Input{
		Fingerprint:  fingerprint.Compute([]byte("c")),
		EmbeddedCode: "https://registry.example/verify?id=JH-NU-2019-000123",
		FileName:     "JH-KU-2018-000987.png",
		MediaType:    "image/png",
		DeclaredSize: 1,
	})

	require.NotNil(t, out.Record)
	assert.Equal(t, "From code", out.Record.HolderName)
}

func TestMatchFallsBackToNameWhenCodeHasNoNumber(t *testing.T) {
	m := New(singleRecordSet(), zap.NewNop())

	out := m.Match(context.Background(), Input{
		Fingerprint:  fingerprint.Compute([]byte("c")),
		EmbeddedCode: "hello",
		FileName:     "JH-NU-2019-000123.png",
		MediaType:    "image/png",
		DeclaredSize: 1,
	})

	require.NotNil(t, out.Record)
	assert.Equal(t, certificate.StatusSuspect, out.Status)
}

func TestMatchNothingFound(t *testing.T) {
	m := New(singleRecordSet(), zap.NewNop())

	out := m.Match(context.Background(), Input{
		Fingerprint:  fingerprint.Compute([]byte("c")),
		FileName:     "certificate.png",
		MediaType:    "image/png",
		DeclaredSize: 1,
	})

	assert.Equal(t, certificate.StatusSuspect, out.Status)
	assert.Nil(t, out.Record)
	assert.Equal(t, []string{IssueNoMatch}, out.Issues)
}

func TestMatchAppendsStructuralIssues(t *testing.T) {
	m := New(singleRecordSet(), zap.NewNop())

	out := m.Match(context.Background(), Input{Fingerprint: genuineFP})

	assert.Equal(t, certificate.StatusValid, out.Status)
	assert.Equal(t, []string{IssueNoMediaType, IssueZeroSize}, out.Issues)
}

type failingLookup struct{}

func (failingLookup) FindByFingerprint(context.Context, certificate.Fingerprint) (*certificate.RegistryRecord, error) {
	return nil, errors.New("connection refused")
}

func (failingLookup) FindByCertificateNumber(context.Context, string) ([]certificate.RegistryRecord, error) {
	return nil, errors.New("connection refused")
}

func TestMatchNeverFailsOnLookupErrors(t *testing.T) {
	m := New(failingLookup{}, zap.NewNop())

	out := m.Match(context.Background(), Input{
		Fingerprint:  genuineFP,
		FileName:     "JH-NU-2019-000123.png",
		MediaType:    "image/png",
		DeclaredSize: 1,
	})

	assert.Equal(t, certificate.StatusSuspect, out.Status)
	assert.Nil(t, out.Record)
	require.Len(t, out.Issues, 3)
	assert.Contains(t, out.Issues[0], IssueLookupFailed)
	assert.Contains(t, out.Issues[1], IssueLookupFailed)
	assert.Equal(t, IssueNoMatch, out.Issues[2])
}
