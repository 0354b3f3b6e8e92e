package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/certverify/internal/certificate"
)

// TypeVerified is the event type emitted after a run is persisted.
const TypeVerified = "certificate.verified"

// Publisher is the transport-agnostic side of Producer.
type Publisher interface {
	Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error
}

// VerifiedEvent summarises a finished verification for downstream consumers.
type VerifiedEvent struct {
	RequestID         string                  `json:"request_id"`
	UserID            string                  `json:"user_id"`
	Status            certificate.Status      `json:"status"`
	Fingerprint       certificate.Fingerprint `json:"fingerprint"`
	CertificateNumber string                  `json:"certificate_number,omitempty"`
	UsedFallback      bool                    `json:"used_fallback"`
	IssueCount        int                     `json:"issue_count"`
	CreatedAt         time.Time               `json:"created_at"`
}

// NewVerifiedEvent builds the event for a result.
func NewVerifiedEvent(requestID, userID string, res *certificate.VerificationResult, at time.Time) VerifiedEvent {
	ev := VerifiedEvent{
		RequestID:    requestID,
		UserID:       userID,
		Status:       res.Status,
		Fingerprint:  res.Evidence.Fingerprint,
		UsedFallback: res.Evidence.UsedFallback,
		IssueCount:   len(res.Issues),
		CreatedAt:    at.UTC(),
	}
	if res.MatchedRecord != nil {
		ev.CertificateNumber = res.MatchedRecord.CertificateNumber
	}
	return ev
}

// PublishVerified encodes and publishes ev.
func PublishVerified(ctx context.Context, p Publisher, ev VerifiedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal verification event: %w", err)
	}
	headers := map[string]string{
		"request_id": ev.RequestID,
		"event_type": TypeVerified,
	}
	if err := p.Publish(ctx, []byte(ev.RequestID), payload, headers); err != nil {
		return fmt.Errorf("publish verification event: %w", err)
	}
	return nil
}
