package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/certverify/internal/certificate"
)

type recordingPublisher struct {
	key     []byte
	value   []byte
	headers map[string]string
	err     error
}

func (p *recordingPublisher) Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error {
	p.key, p.value, p.headers = key, value, headers
	return p.err
}

func TestPublishVerified(t *testing.T) {
	res := &certificate.VerificationResult{
		Status:        certificate.StatusSuspect,
		Issues:        []string{"a", "b"},
		Evidence:      certificate.EvidenceBundle{Fingerprint: "abc", UsedFallback: true},
		MatchedRecord: &certificate.RegistryRecord{CertificateNumber: "JH-NU-2019-000123"},
	}
	ev := NewVerifiedEvent("req-1", "user-1", res, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	pub := &recordingPublisher{}
	require.NoError(t, PublishVerified(context.Background(), pub, ev))

	assert.Equal(t, "req-1", string(pub.key))
	assert.Equal(t, TypeVerified, pub.headers["event_type"])

	var decoded VerifiedEvent
	require.NoError(t, json.Unmarshal(pub.value, &decoded))
	assert.Equal(t, "JH-NU-2019-000123", decoded.CertificateNumber)
	assert.Equal(t, 2, decoded.IssueCount)
	assert.True(t, decoded.UsedFallback)
}

func TestPublishVerifiedWrapsError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	err := PublishVerified(context.Background(), pub, VerifiedEvent{RequestID: "req-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
