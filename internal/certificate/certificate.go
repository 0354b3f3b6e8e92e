package certificate

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Status is the authenticity verdict of a verification run.
type Status string

const (
	StatusValid   Status = "valid"
	StatusSuspect Status = "suspect"
	StatusInvalid Status = "invalid"
)

// ParseStatus maps a wire value onto a Status.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusValid:
		return StatusValid, true
	case StatusSuspect:
		return StatusSuspect, true
	case StatusInvalid:
		return StatusInvalid, true
	}
	return "", false
}

// ErrUnreadableInput is returned when an uploaded file cannot be read into memory.
var ErrUnreadableInput = errors.New("unreadable input")

// UploadedFile is the immutable input of a single verification run.
type UploadedFile struct {
	Name         string
	MediaType    string
	DeclaredSize int64
	Content      []byte
}

// IsImage reports whether the declared media type is an image.
func (f UploadedFile) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(f.MediaType), "image/")
}

// ReadUploadedFile drains r into an UploadedFile.
func ReadUploadedFile(r io.Reader, name, mediaType string, declaredSize int64) (UploadedFile, error) {
	if r == nil {
		return UploadedFile{}, fmt.Errorf("%w: no content", ErrUnreadableInput)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return UploadedFile{}, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
	}
	return UploadedFile{
		Name:         name,
		MediaType:    mediaType,
		DeclaredSize: declaredSize,
		Content:      content,
	}, nil
}

// Fingerprint is the lowercase hex SHA-256 digest of a file's content.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// RegistryRecord is an authoritative certificate fact.
type RegistryRecord struct {
	CertificateNumber string      `json:"certificate_number"`
	Fingerprint       Fingerprint `json:"fingerprint"`
	HolderName        string      `json:"holder_name"`
	Institution       string      `json:"institution"`
	Course            string      `json:"course"`
	Year              int         `json:"year"`
}

// RemoteVerification is the authoritative registry verdict kept as evidence.
type RemoteVerification struct {
	Status     Status   `json:"status"`
	Confidence float64  `json:"confidence"`
	Issues     []string `json:"issues,omitempty"`
}

// Detection is the ML forgery detector outcome kept as evidence.
type Detection struct {
	Decided    bool    `json:"decided"`
	IsFake     bool    `json:"is_fake"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label,omitempty"`
	WithText   bool    `json:"with_text"`
}

// EvidenceBundle accumulates everything one run learned about a file.
type EvidenceBundle struct {
	Fingerprint   Fingerprint         `json:"fingerprint"`
	MediaType     string              `json:"media_type"`
	DeclaredSize  int64               `json:"declared_size"`
	EmbeddedCode  string              `json:"embedded_code,omitempty"`
	UploadID      string              `json:"upload_id,omitempty"`
	OCRText       string              `json:"ocr_text,omitempty"`
	OCRConfidence float64             `json:"ocr_confidence,omitempty"`
	Remote        *RemoteVerification `json:"remote,omitempty"`
	Detection     *Detection          `json:"detection,omitempty"`
	UsedFallback  bool                `json:"used_fallback"`
	Issues        []string            `json:"issues"`
}

// AddIssue appends a human-readable issue.
func (e *EvidenceBundle) AddIssue(issue string) {
	e.Issues = append(e.Issues, issue)
}

// VerificationResult is the verdict returned to callers.
type VerificationResult struct {
	Status        Status          `json:"status"`
	Issues        []string        `json:"issues"`
	Evidence      EvidenceBundle  `json:"evidence"`
	MatchedRecord *RegistryRecord `json:"matched_record,omitempty"`
}
