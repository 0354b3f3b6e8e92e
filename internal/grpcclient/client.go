package grpcclient

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/example/certverify/internal/certificate"
	"github.com/example/certverify/internal/gateway"
	"github.com/example/certverify/internal/logging"
)

// DetectMethod is the fully qualified RPC served by the forgery model.
const DetectMethod = "/forgery.v1.ForgeryDetector/Detect"

// DetectRequest is the RPC request message.
type DetectRequest struct {
	FileName  string `json:"file_name"`
	MediaType string `json:"media_type"`
	Content   []byte `json:"content"`
	Text      string `json:"text,omitempty"`
	UploadID  string `json:"upload_id,omitempty"`
}

// DetectResponse is the RPC response message.
type DetectResponse struct {
	Success    bool    `json:"success"`
	IsFake     bool    `json:"is_fake"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
	Model      string  `json:"model"`
}

// DialForgeryDetector returns a ready-to-use gRPC client for the ML forgery model.
func DialForgeryDetector(addr string, timeout time.Duration, logger *zap.Logger) (gateway.ForgeryDetector, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_forgery_detector", "", err)
		logger.Error("failed to dial forgery detector", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewForgeryDetector(conn, timeout, logger), conn, nil
}

// NewForgeryDetector wraps an existing connection.
func NewForgeryDetector(conn grpc.ClientConnInterface, timeout time.Duration, logger *zap.Logger) gateway.ForgeryDetector {
	if timeout <= 0 {
		timeout = gateway.DefaultTimeouts().Detect
	}
	return &grpcForgeryDetector{conn: conn, timeout: timeout, logger: logger.Named("grpc_forgery_detector")}
}

type grpcForgeryDetector struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
	logger  *zap.Logger
}

func (g *grpcForgeryDetector) DetectForgery(ctx context.Context, file certificate.UploadedFile, req gateway.DetectionRequest) (*gateway.DetectionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	in := &DetectRequest{
		FileName:  file.Name,
		MediaType: file.MediaType,
		Content:   file.Content,
		Text:      req.Text,
		UploadID:  req.UploadID,
	}
	out := &DetectResponse{}
	if err := g.conn.Invoke(ctx, DetectMethod, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		wrapped := logging.NewOperationError("grpcclient.detect_forgery", req.UploadID, err)
		g.logger.Warn("forgery detector call failed", zap.Error(wrapped), zap.String("file", file.Name))
		return nil, gateway.NewDetectionError(kindFromStatus(err), 0, wrapped)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, gateway.NewDetectionError(gateway.FailurePayload, 0, status.Errorf(codes.DataLoss, "confidence %f out of range", out.Confidence))
	}
	return &gateway.DetectionResult{
		Success:    out.Success,
		IsFake:     out.IsFake,
		Confidence: out.Confidence,
		Label:      out.Label,
		Model:      out.Model,
	}, nil
}

func kindFromStatus(err error) gateway.FailureKind {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return gateway.FailureTimeout
	case codes.Canceled:
		return gateway.FailureCanceled
	case codes.Unavailable:
		return gateway.FailureTransport
	case codes.Internal, codes.DataLoss, codes.Unimplemented:
		return gateway.FailurePayload
	default:
		return gateway.FailureStatus
	}
}
