package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/certverify/internal/certificate"
)

const maxResponseBytes = 1 << 20

// Timeouts bounds each remote call independently.
type Timeouts struct {
	Upload time.Duration
	OCR    time.Duration
	Detect time.Duration
	Verify time.Duration
}

// DefaultTimeouts mirror the limits used by the verification service.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Upload: 15 * time.Second,
		OCR:    20 * time.Second,
		Detect: 20 * time.Second,
		Verify: 10 * time.Second,
	}
}

// HTTPClient talks JSON over HTTP to the remote verification backend. It
// implements Uploader, TextExtractor, ForgeryDetector and RegistryVerifier.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeouts   Timeouts
	logger     *zap.Logger
}

// HTTPClientConfig configures NewHTTPClient.
type HTTPClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeouts   Timeouts
	HTTPClient *http.Client
}

// NewHTTPClient builds a gateway client for the given backend.
func NewHTTPClient(cfg HTTPClientConfig, logger *zap.Logger) *HTTPClient {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: 10}}
	}
	timeouts := cfg.Timeouts
	defaults := DefaultTimeouts()
	if timeouts.Upload <= 0 {
		timeouts.Upload = defaults.Upload
	}
	if timeouts.OCR <= 0 {
		timeouts.OCR = defaults.OCR
	}
	if timeouts.Detect <= 0 {
		timeouts.Detect = defaults.Detect
	}
	if timeouts.Verify <= 0 {
		timeouts.Verify = defaults.Verify
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: hc,
		timeouts:   timeouts,
		logger:     logger.Named("gateway_http"),
	}
}

type uploadResponse struct {
	ID string `json:"id"`
}

// Upload registers the file and returns its backend id.
func (c *HTTPClient) Upload(ctx context.Context, file certificate.UploadedFile) (*UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Upload)
	defer cancel()

	var out uploadResponse
	status, err := c.postMultipart(ctx, "/api/upload", file, nil, &out)
	if err != nil {
		return nil, NewUploadError(classify(err), status, err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, NewUploadError(FailurePayload, status, errors.New("response has no id"))
	}
	return &UploadResult{ID: out.ID}, nil
}

// ExtractText runs OCR on the file.
func (c *HTTPClient) ExtractText(ctx context.Context, file certificate.UploadedFile) (*OCRResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.OCR)
	defer cancel()

	var out OCRResult
	status, err := c.postMultipart(ctx, "/api/ocr", file, nil, &out)
	if err != nil {
		return nil, NewOcrError(classify(err), status, err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, NewOcrError(FailurePayload, status, fmt.Errorf("confidence %f out of range", out.Confidence))
	}
	return &out, nil
}

// DetectForgery asks the ML detector for a verdict.
func (c *HTTPClient) DetectForgery(ctx context.Context, file certificate.UploadedFile, req DetectionRequest) (*DetectionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Detect)
	defer cancel()

	fields := map[string]string{}
	if req.Text != "" {
		fields["text"] = req.Text
	}
	if req.UploadID != "" {
		fields["upload_id"] = req.UploadID
	}

	var out DetectionResult
	status, err := c.postMultipart(ctx, "/api/detect", file, fields, &out)
	if err != nil {
		return nil, NewDetectionError(classify(err), status, err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, NewDetectionError(FailurePayload, status, fmt.Errorf("confidence %f out of range", out.Confidence))
	}
	return &out, nil
}

type verifyRequest struct {
	UploadID string `json:"upload_id"`
}

type verifyResponse struct {
	Status        string         `json:"status"`
	Confidence    float64        `json:"confidence"`
	MatchedRecord *MatchedRecord `json:"matched_record"`
	Issues        []string       `json:"issues"`
}

// Verify checks an uploaded file against the authoritative registry.
func (c *HTTPClient) Verify(ctx context.Context, uploadID string) (*VerifyResult, error) {
	if uploadID == "" {
		return nil, NewVerifyError(FailurePayload, 0, errors.New("upload id is required"))
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Verify)
	defer cancel()

	body, err := json.Marshal(verifyRequest{UploadID: uploadID})
	if err != nil {
		return nil, NewVerifyError(FailurePayload, 0, err)
	}

	var out verifyResponse
	status, err := c.do(ctx, "/api/verify", "application/json", bytes.NewReader(body), &out)
	if err != nil {
		return nil, NewVerifyError(classify(err), status, err)
	}
	verdict, ok := certificate.ParseStatus(out.Status)
	if !ok {
		return nil, NewVerifyError(FailurePayload, status, fmt.Errorf("unknown status %q", out.Status))
	}
	return &VerifyResult{
		Status:        verdict,
		Confidence:    out.Confidence,
		MatchedRecord: out.MatchedRecord,
		Issues:        out.Issues,
	}, nil
}

func (c *HTTPClient) postMultipart(ctx context.Context, path string, file certificate.UploadedFile, fields map[string]string, out interface{}) (int, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, displayName(file.Name)))
	if file.MediaType != "" {
		header.Set("Content-Type", file.MediaType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return 0, errPayload{err}
	}
	if _, err := part.Write(file.Content); err != nil {
		return 0, errPayload{err}
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return 0, errPayload{err}
		}
	}
	if err := writer.Close(); err != nil {
		return 0, errPayload{err}
	}

	return c.do(ctx, path, writer.FormDataContentType(), body, out)
}

func (c *HTTPClient) do(ctx context.Context, path, contentType string, body io.Reader, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("gateway request failed", zap.String("path", path), zap.Error(err))
		return 0, err
	}
	defer resp.Body.Close()

	c.logger.Debug("gateway response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, errStatus{code: resp.StatusCode, body: strings.TrimSpace(string(payload))}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return resp.StatusCode, errPayload{err}
	}
	return resp.StatusCode, nil
}

type errStatus struct {
	code int
	body string
}

func (e errStatus) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

type errPayload struct{ err error }

func (e errPayload) Error() string { return "malformed payload: " + e.err.Error() }
func (e errPayload) Unwrap() error { return e.err }

func classify(err error) FailureKind {
	var st errStatus
	if errors.As(err, &st) {
		return FailureStatus
	}
	var pl errPayload
	if errors.As(err, &pl) {
		return FailurePayload
	}
	return transportKind(err)
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "upload"
	}
	return name
}
