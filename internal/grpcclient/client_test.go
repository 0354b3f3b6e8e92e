package grpcclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/certverify/internal/certificate"
	"github.com/example/certverify/internal/gateway"
)

type stubConn struct {
	method string
	req    *DetectRequest
	resp   DetectResponse
	err    error
}

func (s *stubConn) Invoke(ctx context.Context, method string, args interface{}, reply interface{}, opts ...grpc.CallOption) error {
	s.method = method
	s.req = args.(*DetectRequest)
	if s.err != nil {
		return s.err
	}
	*(reply.(*DetectResponse)) = s.resp
	return nil
}

func (s *stubConn) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("not implemented")
}

func TestDetectForgeryMapsResponse(t *testing.T) {
	conn := &stubConn{resp: DetectResponse{Success: true, IsFake: true, Confidence: 0.91, Label: "tampered"}}
	detector := NewForgeryDetector(conn, time.Second, zap.NewNop())

	file := certificate.UploadedFile{Name: "cert.png", MediaType: "image/png", Content: []byte("img")}
	res, err := detector.DetectForgery(context.Background(), file, gateway.DetectionRequest{Text: "ocr", UploadID: "upl-1"})
	require.NoError(t, err)

	assert.Equal(t, DetectMethod, conn.method)
	assert.Equal(t, "ocr", conn.req.Text)
	assert.Equal(t, "upl-1", conn.req.UploadID)
	assert.True(t, res.IsFake)
	assert.Equal(t, "tampered", res.Label)
}

func TestDetectForgeryWrapsStatusErrors(t *testing.T) {
	conn := &stubConn{err: status.Error(codes.Unavailable, "model offline")}
	detector := NewForgeryDetector(conn, time.Second, zap.NewNop())

	_, err := detector.DetectForgery(context.Background(), certificate.UploadedFile{}, gateway.DetectionRequest{})
	var detErr *gateway.DetectionError
	require.True(t, errors.As(err, &detErr))
	assert.Equal(t, gateway.FailureTransport, detErr.Kind)
}

func TestDetectForgeryRejectsOutOfRangeConfidence(t *testing.T) {
	conn := &stubConn{resp: DetectResponse{Success: true, Confidence: 7}}
	detector := NewForgeryDetector(conn, time.Second, zap.NewNop())

	_, err := detector.DetectForgery(context.Background(), certificate.UploadedFile{}, gateway.DetectionRequest{})
	assert.Equal(t, gateway.FailurePayload, gateway.KindOf(err))
}
