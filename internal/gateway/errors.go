package gateway

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies why a remote call could not complete.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureStatus    FailureKind = "status"
	FailurePayload   FailureKind = "payload"
	FailureTimeout   FailureKind = "timeout"
	FailureCanceled  FailureKind = "canceled"
)

// CallError is the shared shape of all gateway failures.
type CallError struct {
	Call       string
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed [%s %d]: %v", e.Call, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed [%s]: %v", e.Call, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// UploadError is returned by Uploader implementations.
type UploadError struct{ CallError }

// OcrError is returned by TextExtractor implementations.
type OcrError struct{ CallError }

// DetectionError is returned by ForgeryDetector implementations.
type DetectionError struct{ CallError }

// VerifyError is returned by RegistryVerifier implementations.
type VerifyError struct{ CallError }

const (
	callUpload = "upload"
	callOCR    = "extract_text"
	callDetect = "detect_forgery"
	callVerify = "verify"
)

// NewUploadError builds an UploadError.
func NewUploadError(kind FailureKind, statusCode int, err error) *UploadError {
	return &UploadError{CallError{Call: callUpload, Kind: kind, StatusCode: statusCode, Err: err}}
}

// NewOcrError builds an OcrError.
func NewOcrError(kind FailureKind, statusCode int, err error) *OcrError {
	return &OcrError{CallError{Call: callOCR, Kind: kind, StatusCode: statusCode, Err: err}}
}

// NewDetectionError builds a DetectionError.
func NewDetectionError(kind FailureKind, statusCode int, err error) *DetectionError {
	return &DetectionError{CallError{Call: callDetect, Kind: kind, StatusCode: statusCode, Err: err}}
}

// NewVerifyError builds a VerifyError.
func NewVerifyError(kind FailureKind, statusCode int, err error) *VerifyError {
	return &VerifyError{CallError{Call: callVerify, Kind: kind, StatusCode: statusCode, Err: err}}
}

// KindOf extracts the failure kind of a gateway error.
func KindOf(err error) FailureKind {
	var failed interface{ call() *CallError }
	if errors.As(err, &failed) {
		return failed.call().Kind
	}
	return FailureTransport
}

func (e *CallError) call() *CallError { return e }

func transportKind(err error) FailureKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureTransport
}
