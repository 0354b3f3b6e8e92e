package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/certverify/internal/certificate"
)

func testFile() certificate.UploadedFile {
	return certificate.UploadedFile{
		Name:         "JH-NU-2019-000123.png",
		MediaType:    "image/png",
		DeclaredSize: 5,
		Content:      []byte("image"),
	}
}

func newTestClient(t *testing.T, handler http.Handler, timeouts Timeouts) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL + "/", APIKey: "key", Timeouts: timeouts}, zap.NewNop())
}

func TestUploadSendsMultipartFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "image", string(data))
		assert.Equal(t, "JH-NU-2019-000123.png", header.Filename)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "upl-1"})
	})
	client := newTestClient(t, mux, Timeouts{})

	res, err := client.Upload(context.Background(), testFile())
	require.NoError(t, err)
	assert.Equal(t, "upl-1", res.ID)
}

func TestUploadMissingIDIsPayloadFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}), Timeouts{})

	_, err := client.Upload(context.Background(), testFile())
	var upErr *UploadError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, FailurePayload, upErr.Kind)
}

func TestUploadNonSuccessStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}), Timeouts{})

	_, err := client.Upload(context.Background(), testFile())
	var upErr *UploadError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, FailureStatus, upErr.Kind)
	assert.Equal(t, http.StatusBadGateway, upErr.StatusCode)
	assert.Equal(t, FailureStatus, KindOf(err))
}

func TestExtractTextMalformedPayload(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":`))
	}), Timeouts{})

	_, err := client.ExtractText(context.Background(), testFile())
	var ocrErr *OcrError
	require.True(t, errors.As(err, &ocrErr))
	assert.Equal(t, FailurePayload, ocrErr.Kind)
}

func TestDetectForgeryPassesContext(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "JH-NU-2019-000123", r.FormValue("text"))
		assert.Equal(t, "upl-1", r.FormValue("upload_id"))
		_, _ = w.Write([]byte(`{"success":true,"is_fake":true,"confidence":0.93,"label":"tampered"}`))
	}), Timeouts{})

	res, err := client.DetectForgery(context.Background(), testFile(), DetectionRequest{Text: "JH-NU-2019-000123", UploadID: "upl-1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.IsFake)
	assert.InDelta(t, 0.93, res.Confidence, 1e-9)
}

func TestDetectForgeryDeclinedIsNotAnError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"confidence":0}`))
	}), Timeouts{})

	res, err := client.DetectForgery(context.Background(), testFile(), DetectionRequest{})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestDetectForgeryTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), Timeouts{Detect: 20 * time.Millisecond})
	defer close(release)

	_, err := client.DetectForgery(context.Background(), testFile(), DetectionRequest{})
	var detErr *DetectionError
	require.True(t, errors.As(err, &detErr))
	assert.Equal(t, FailureTimeout, detErr.Kind)
}

func TestVerifyDecodesMatchedRecord(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body verifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "upl-1", body.UploadID)
		_, _ = w.Write([]byte(`{
			"status": "valid",
			"confidence": 0.97,
			"matched_record": {"certificate_number":"JH-NU-2019-000123","name":"Asha Kumari","institution":"Jharkhand National University","course":"B.Sc Physics","year":2019,"hash":"deadbeef"},
			"issues": ["issued by registrar"]
		}`))
	}), Timeouts{})

	res, err := client.Verify(context.Background(), "upl-1")
	require.NoError(t, err)
	assert.Equal(t, certificate.StatusValid, res.Status)
	require.NotNil(t, res.MatchedRecord)
	assert.Equal(t, "Asha Kumari", res.MatchedRecord.Name)
	assert.Equal(t, 2019, res.MatchedRecord.Year)
	assert.Equal(t, []string{"issued by registrar"}, res.Issues)
}

func TestVerifyRejectsUnknownStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"maybe"}`))
	}), Timeouts{})

	_, err := client.Verify(context.Background(), "upl-1")
	var verErr *VerifyError
	require.True(t, errors.As(err, &verErr))
	assert.Equal(t, FailurePayload, verErr.Kind)
	assert.True(t, strings.Contains(err.Error(), "maybe"))
}

func TestVerifyTransportFailure(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())

	_, err := client.Verify(context.Background(), "upl-1")
	var verErr *VerifyError
	require.True(t, errors.As(err, &verErr))
	assert.Equal(t, FailureTransport, verErr.Kind)
}
