// Package gateway defines the four remote signals the verification pipeline
// consumes and their transports. Every call is independently failable and
// never retried here.
package gateway

import (
	"context"

	"github.com/example/certverify/internal/certificate"
)

// UploadResult identifies a file registered with the backing store.
type UploadResult struct {
	ID string `json:"id"`
}

// OCRResult is the text recognised in an image.
type OCRResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// DetectionRequest carries optional context for the forgery detector.
type DetectionRequest struct {
	Text     string
	UploadID string
}

// DetectionResult is the forgery detector answer. Success=false means the
// model declined to decide, which is not a transport failure.
type DetectionResult struct {
	Success    bool    `json:"success"`
	IsFake     bool    `json:"is_fake"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label,omitempty"`
	Model      string  `json:"model,omitempty"`
}

// MatchedRecord is the registry record shape used on the wire.
type MatchedRecord struct {
	CertificateNumber string `json:"certificate_number"`
	Name              string `json:"name"`
	Institution       string `json:"institution"`
	Course            string `json:"course"`
	Year              int    `json:"year"`
	Hash              string `json:"hash,omitempty"`
}

// VerifyResult is the authoritative registry verdict.
type VerifyResult struct {
	Status        certificate.Status
	Confidence    float64
	MatchedRecord *MatchedRecord
	Issues        []string
}

// Uploader registers a file with the backing store.
type Uploader interface {
	Upload(ctx context.Context, file certificate.UploadedFile) (*UploadResult, error)
}

// TextExtractor runs OCR over an image.
type TextExtractor interface {
	ExtractText(ctx context.Context, file certificate.UploadedFile) (*OCRResult, error)
}

// ForgeryDetector scores a document for signs of tampering.
type ForgeryDetector interface {
	DetectForgery(ctx context.Context, file certificate.UploadedFile, req DetectionRequest) (*DetectionResult, error)
}

// RegistryVerifier checks an uploaded file against the authoritative registry.
type RegistryVerifier interface {
	Verify(ctx context.Context, uploadID string) (*VerifyResult, error)
}
