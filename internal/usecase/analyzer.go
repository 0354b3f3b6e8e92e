package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/certverify/internal/certificate"
	"github.com/example/certverify/internal/fingerprint"
	"github.com/example/certverify/internal/gateway"
	"github.com/example/certverify/internal/logging"
	"github.com/example/certverify/internal/matcher"
	"github.com/example/certverify/internal/metrics"
)

// DefaultFakeConfidenceThreshold is the detector confidence above which a
// fake verdict latches the run to invalid.
const DefaultFakeConfidenceThreshold = 0.8

// Issue texts produced by the aggregator.
const (
	IssueDetectionUnavailable  = "AI detection unavailable"
	IssueDetectionInconclusive = "AI detection inconclusive: the model could not reach a decision"
	IssueCodeUnreadable        = "Embedded code could not be read: image is corrupt or unsupported"
	IssueOCRUnavailable        = "OCR unavailable"
	IssueUploadFailed          = "Upload failed; using local registry"
	IssueVerifyUnavailable     = "Registry verification unavailable; using local registry"
)

var errEmptyResponse = errors.New("empty response")

// Signal names used in metrics and logs.
const (
	signalCode   = "embedded_code"
	signalDetect = "detect_forgery"
	signalUpload = "upload"
	signalOCR    = "extract_text"
	signalVerify = "verify"
)

// CodeReader decodes an embedded machine-readable code from image bytes.
type CodeReader interface {
	Decode(content []byte) (string, bool, error)
}

// LocalMatcher decides a verdict from the local record set.
type LocalMatcher interface {
	Match(ctx context.Context, in matcher.Input) matcher.Outcome
}

// Signals groups the remote evidence sources.
type Signals struct {
	Uploader gateway.Uploader
	OCR      gateway.TextExtractor
	Detector gateway.ForgeryDetector
	Verifier gateway.RegistryVerifier
}

// AnalyzerParams configures NewAnalyzer.
type AnalyzerParams struct {
	Signals   Signals
	Codes     CodeReader
	Local     LocalMatcher
	Threshold float64
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
}

// Analyzer is the verdict aggregator. It is stateless between runs and safe
// for concurrent use; each run owns its own evidence.
type Analyzer struct {
	signals   Signals
	reader    CodeReader
	local     LocalMatcher
	threshold float64
	metrics   *metrics.Recorder
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewAnalyzer constructs an Analyzer.
func NewAnalyzer(p AnalyzerParams) *Analyzer {
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultFakeConfidenceThreshold
	}
	rec := p.Metrics
	if rec == nil {
		rec = metrics.Nop()
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		signals:   p.Signals,
		reader:    p.Codes,
		local:     p.Local,
		threshold: threshold,
		metrics:   rec,
		tracer:    otel.Tracer("github.com/example/certverify/internal/usecase"),
		logger:    logger.Named("analyzer"),
	}
}

// signal is the tagged outcome of one optional evidence step.
type signal[T any] struct {
	value T
	err   error
}

func ok[T any](v T) signal[T]           { return signal[T]{value: v} }
func failed[T any](err error) signal[T] { return signal[T]{err: err} }

func (s signal[T]) Ok() bool { return s.err == nil }

type decodedCode struct {
	text  string
	found bool
}

// run is the per-invocation state. forgeryLatched is one-way.
type run struct {
	file           certificate.UploadedFile
	evidence       certificate.EvidenceBundle
	status         certificate.Status
	record         *certificate.RegistryRecord
	forgeryLatched bool
	mlDecided      bool
	logger         *zap.Logger
}

func (r *run) latch() {
	r.forgeryLatched = true
	r.status = certificate.StatusInvalid
}

// setStatus applies a verdict unless the run is latched to invalid.
func (r *run) setStatus(s certificate.Status) {
	if r.forgeryLatched {
		return
	}
	r.status = s
}

// Analyze runs the pipeline for one file. It always returns a result.
func (a *Analyzer) Analyze(ctx context.Context, file certificate.UploadedFile) *certificate.VerificationResult {
	return a.analyze(ctx, "", file)
}

func (a *Analyzer) analyze(ctx context.Context, requestID string, file certificate.UploadedFile) *certificate.VerificationResult {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "certverify.analyze", trace.WithAttributes(
		attribute.String("file.media_type", file.MediaType),
		attribute.Int64("file.declared_size", file.DeclaredSize),
	))
	defer span.End()

	r := &run{
		file:   file,
		status: certificate.StatusSuspect,
		evidence: certificate.EvidenceBundle{
			Fingerprint:  fingerprint.Compute(file.Content),
			MediaType:    file.MediaType,
			DeclaredSize: file.DeclaredSize,
			Issues:       []string{},
		},
		logger: logging.WithOperation(a.logger, "usecase.analyze", requestID),
	}

	if file.IsImage() {
		a.gatherImageEvidence(ctx, r)
	}

	if !a.authoritative(ctx, r) {
		a.fallback(ctx, r)
	}

	result := r.result()
	span.SetAttributes(
		attribute.String("verdict.status", string(result.Status)),
		attribute.Bool("verdict.fallback", result.Evidence.UsedFallback),
		attribute.Bool("verdict.latched", r.forgeryLatched),
	)
	a.metrics.Verdict(string(result.Status), time.Since(start).Seconds())
	r.logger.Info("verification finished",
		zap.String("status", string(result.Status)),
		zap.String("fingerprint", result.Evidence.Fingerprint.String()),
		zap.Bool("fallback", result.Evidence.UsedFallback),
		zap.Int("issues", len(result.Issues)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result
}

// gatherImageEvidence decodes the embedded code and runs the first forgery
// detection concurrently; both finish before the authoritative path starts.
func (a *Analyzer) gatherImageEvidence(ctx context.Context, r *run) {
	var (
		code signal[decodedCode]
		det  signal[*gateway.DetectionResult]
		g    errgroup.Group
	)
	g.Go(func() error {
		code = a.readCode(r.file)
		return nil
	})
	g.Go(func() error {
		det = a.detect(ctx, r.file, gateway.DetectionRequest{})
		return nil
	})
	_ = g.Wait()

	a.recordCode(r, code)
	a.recordDetection(r, det)
}

func (a *Analyzer) readCode(file certificate.UploadedFile) (s signal[decodedCode]) {
	if a.reader == nil {
		return ok(decodedCode{})
	}
	defer func() {
		if p := recover(); p != nil {
			s = failed[decodedCode](fmt.Errorf("code reader panic: %v", p))
		}
	}()
	text, found, err := a.reader.Decode(file.Content)
	if err != nil {
		return failed[decodedCode](err)
	}
	return ok(decodedCode{text: text, found: found})
}

func (a *Analyzer) recordCode(r *run, s signal[decodedCode]) {
	if !s.Ok() {
		a.metrics.SignalFailed(signalCode)
		r.logger.Warn("embedded code decode failed", zap.Error(s.err))
		r.evidence.AddIssue(IssueCodeUnreadable)
		return
	}
	if s.value.found {
		r.evidence.EmbeddedCode = s.value.text
	}
}

func (a *Analyzer) detect(ctx context.Context, file certificate.UploadedFile, req gateway.DetectionRequest) signal[*gateway.DetectionResult] {
	if a.signals.Detector == nil {
		return failed[*gateway.DetectionResult](gateway.NewDetectionError(gateway.FailureTransport, 0, errors.New("no detector configured")))
	}
	ctx, span := a.tracer.Start(ctx, "certverify.detect_forgery", trace.WithAttributes(
		attribute.Bool("detect.with_text", req.Text != ""),
	))
	defer span.End()

	res, err := a.signals.Detector.DetectForgery(ctx, file, req)
	if err == nil && res == nil {
		err = gateway.NewDetectionError(gateway.FailurePayload, 0, errEmptyResponse)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detection failed")
		return failed[*gateway.DetectionResult](err)
	}
	return ok(res)
}

func (a *Analyzer) recordDetection(r *run, s signal[*gateway.DetectionResult]) {
	if !s.Ok() {
		a.metrics.SignalFailed(signalDetect)
		r.logger.Warn("forgery detection failed", zap.Error(s.err))
		r.evidence.AddIssue(fmt.Sprintf("%s (%s)", IssueDetectionUnavailable, gateway.KindOf(s.err)))
		return
	}

	res := s.value
	detection := &certificate.Detection{
		Decided:    res.Success,
		IsFake:     res.IsFake,
		Confidence: res.Confidence,
		Label:      res.Label,
		WithText:   r.evidence.OCRText != "",
	}
	r.evidence.Detection = detection
	if !res.Success {
		r.evidence.AddIssue(IssueDetectionInconclusive)
		return
	}

	r.mlDecided = true
	verdict := "likely authentic"
	if res.IsFake {
		verdict = "likely forged"
	}
	r.evidence.AddIssue(fmt.Sprintf("AI detection: %s (confidence %.0f%%)", verdict, res.Confidence*100))

	if res.IsFake && res.Confidence > a.threshold && !r.forgeryLatched {
		r.latch()
		a.metrics.Latched()
		r.logger.Info("run latched to invalid by forgery detection", zap.Float64("confidence", res.Confidence))
	}
}

// authoritative runs upload, OCR, detection and registry verify. It returns
// false when upload or verify failed and the local matcher must decide.
func (a *Analyzer) authoritative(ctx context.Context, r *run) bool {
	ctx, span := a.tracer.Start(ctx, "certverify.authoritative")
	defer span.End()

	up := a.upload(ctx, r.file)
	if !up.Ok() {
		a.metrics.SignalFailed(signalUpload)
		r.logger.Warn("upload failed", zap.Error(up.err))
		r.evidence.AddIssue(fmt.Sprintf("%s (%s)", IssueUploadFailed, gateway.KindOf(up.err)))
		span.SetStatus(codes.Error, "upload failed")
		return false
	}
	r.evidence.UploadID = up.value.ID

	if r.file.IsImage() {
		text := a.extractText(ctx, r.file)
		if text.Ok() {
			r.evidence.OCRText = text.value.Text
			r.evidence.OCRConfidence = text.value.Confidence
		} else {
			a.metrics.SignalFailed(signalOCR)
			r.logger.Warn("ocr failed", zap.Error(text.err))
			r.evidence.AddIssue(fmt.Sprintf("%s (%s)", IssueOCRUnavailable, gateway.KindOf(text.err)))
		}
	}

	if !r.mlDecided {
		det := a.detect(ctx, r.file, gateway.DetectionRequest{Text: r.evidence.OCRText, UploadID: r.evidence.UploadID})
		a.recordDetection(r, det)
	}

	ver := a.verify(ctx, r.evidence.UploadID)
	if !ver.Ok() {
		a.metrics.SignalFailed(signalVerify)
		r.logger.Warn("registry verification failed", zap.Error(ver.err))
		r.evidence.AddIssue(fmt.Sprintf("%s (%s)", IssueVerifyUnavailable, gateway.KindOf(ver.err)))
		span.SetStatus(codes.Error, "verify failed")
		return false
	}

	a.mergeRemote(r, ver.value)
	return true
}

func (a *Analyzer) upload(ctx context.Context, file certificate.UploadedFile) signal[*gateway.UploadResult] {
	if a.signals.Uploader == nil {
		return failed[*gateway.UploadResult](gateway.NewUploadError(gateway.FailureTransport, 0, errors.New("no uploader configured")))
	}
	res, err := a.signals.Uploader.Upload(ctx, file)
	if err == nil && res == nil {
		err = gateway.NewUploadError(gateway.FailurePayload, 0, errEmptyResponse)
	}
	if err != nil {
		return failed[*gateway.UploadResult](err)
	}
	return ok(res)
}

func (a *Analyzer) extractText(ctx context.Context, file certificate.UploadedFile) signal[*gateway.OCRResult] {
	if a.signals.OCR == nil {
		return failed[*gateway.OCRResult](gateway.NewOcrError(gateway.FailureTransport, 0, errors.New("no ocr configured")))
	}
	res, err := a.signals.OCR.ExtractText(ctx, file)
	if err == nil && res == nil {
		err = gateway.NewOcrError(gateway.FailurePayload, 0, errEmptyResponse)
	}
	if err != nil {
		return failed[*gateway.OCRResult](err)
	}
	return ok(res)
}

func (a *Analyzer) verify(ctx context.Context, uploadID string) signal[*gateway.VerifyResult] {
	if a.signals.Verifier == nil {
		return failed[*gateway.VerifyResult](gateway.NewVerifyError(gateway.FailureTransport, 0, errors.New("no verifier configured")))
	}
	res, err := a.signals.Verifier.Verify(ctx, uploadID)
	if err == nil && res == nil {
		err = gateway.NewVerifyError(gateway.FailurePayload, 0, errEmptyResponse)
	}
	if err != nil {
		return failed[*gateway.VerifyResult](err)
	}
	return ok(res)
}

func (a *Analyzer) mergeRemote(r *run, res *gateway.VerifyResult) {
	r.evidence.Remote = &certificate.RemoteVerification{
		Status:     res.Status,
		Confidence: res.Confidence,
		Issues:     append([]string(nil), res.Issues...),
	}
	r.setStatus(res.Status)
	r.evidence.Issues = append(r.evidence.Issues, res.Issues...)

	if res.MatchedRecord != nil {
		// The remote hash field is not trusted over the local fingerprint.
		r.record = &certificate.RegistryRecord{
			CertificateNumber: res.MatchedRecord.CertificateNumber,
			Fingerprint:       r.evidence.Fingerprint,
			HolderName:        res.MatchedRecord.Name,
			Institution:       res.MatchedRecord.Institution,
			Course:            res.MatchedRecord.Course,
			Year:              res.MatchedRecord.Year,
		}
	}
}

func (a *Analyzer) fallback(ctx context.Context, r *run) {
	ctx, span := a.tracer.Start(ctx, "certverify.local_match")
	defer span.End()

	a.metrics.Fallback()
	r.evidence.UsedFallback = true
	if a.local == nil {
		r.evidence.AddIssue(matcher.IssueNoMatch)
		r.setStatus(certificate.StatusSuspect)
		return
	}

	out := a.local.Match(ctx, matcher.Input{
		Fingerprint:  r.evidence.Fingerprint,
		EmbeddedCode: r.evidence.EmbeddedCode,
		FileName:     r.file.Name,
		MediaType:    r.file.MediaType,
		DeclaredSize: r.file.DeclaredSize,
	})
	r.evidence.Issues = append(r.evidence.Issues, out.Issues...)
	r.record = out.Record
	r.setStatus(out.Status)
	r.logger.Info("local registry fallback decided", zap.String("status", string(out.Status)))
}

func (r *run) result() *certificate.VerificationResult {
	evidence := r.evidence
	evidence.Issues = append([]string{}, r.evidence.Issues...)
	var record *certificate.RegistryRecord
	if r.record != nil {
		rec := *r.record
		record = &rec
	}
	return &certificate.VerificationResult{
		Status:        r.status,
		Issues:        append([]string{}, r.evidence.Issues...),
		Evidence:      evidence,
		MatchedRecord: record,
	}
}
