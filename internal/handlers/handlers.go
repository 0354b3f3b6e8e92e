package handlers

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/certverify/internal/auth"
	"github.com/example/certverify/internal/certificate"
	"github.com/example/certverify/internal/repository"
	"github.com/example/certverify/internal/usecase"
)

// MaxUploadSize is the default largest certificate file accepted by /verify.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and headers around the file.
const multipartOverhead = 1 << 20

var allowedMediaTypes = map[string]struct{}{
	"image/png":       {},
	"image/jpeg":      {},
	"image/gif":       {},
	"application/pdf": {},
}

type routeOptions struct {
	maxUploadSize  int64
	metricsHandler http.Handler
}

// Option customises RegisterRoutes.
type Option func(*routeOptions)

// WithMaxUploadSize overrides MaxUploadSize.
func WithMaxUploadSize(n int64) Option {
	return func(o *routeOptions) {
		if n > 0 {
			o.maxUploadSize = n
		}
	}
}

// WithMetricsHandler exposes h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *routeOptions) { o.metricsHandler = h }
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.VerificationUseCase, authMiddleware gin.HandlerFunc, opts ...Option) {
	cfg := routeOptions{maxUploadSize: MaxUploadSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.metricsHandler))
	}

	protected := router.Group("/")
	if authMiddleware != nil {
		protected.Use(authMiddleware)
	}

	protected.POST("/verify", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.maxUploadSize+multipartOverhead)
		header, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "certificate file is required"})
			return
		}
		if header.Size > cfg.maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}

		file, status, err := readUpload(header)
		if err != nil {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		requestID, result, err := uc.VerifyCertificate(c.Request.Context(), userID, file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id": requestID,
			"result":     result,
		})
	})

	protected.GET("/result/:id", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())
		requestID := c.Param("id")

		stored, err := uc.GetResult(c.Request.Context(), userID, requestID)
		switch {
		case errors.Is(err, usecase.ErrStillProcessing):
			c.JSON(http.StatusAccepted, gin.H{"request_id": requestID, "status": "processing"})
			return
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
			return
		}

		c.JSON(http.StatusOK, stored)
	})

	protected.GET("/duplicates/:id", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())

		report, err := uc.GetDuplicateReport(c.Request.Context(), userID, c.Param("id"))
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load duplicates"})
			return
		}

		duplicates := make([]gin.H, 0, len(report.Duplicates))
		for _, d := range report.Duplicates {
			duplicates = append(duplicates, gin.H{
				"request_id": d.RequestID,
				"status":     d.Status,
				"file_name":  d.FileName,
				"created_at": d.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"request_id":  report.Request.RequestID,
			"fingerprint": report.Request.Fingerprint,
			"duplicates":  duplicates,
		})
	})

	protected.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

// readUpload validates the part's media type and drains it. The returned
// status is meaningful only when err is non-nil.
func readUpload(header *multipart.FileHeader) (certificate.UploadedFile, int, error) {
	mediaType := normalizeMediaType(header.Header.Get("Content-Type"))

	src, err := header.Open()
	if err != nil {
		return certificate.UploadedFile{}, http.StatusBadRequest, errors.New("unable to open file")
	}
	defer src.Close()

	if mediaType == "" || mediaType == "application/octet-stream" {
		sniff := make([]byte, 512)
		n, _ := src.Read(sniff)
		mediaType = normalizeMediaType(http.DetectContentType(sniff[:n]))
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return certificate.UploadedFile{}, http.StatusBadRequest, errors.New("unable to read file")
		}
	}
	if _, ok := allowedMediaTypes[mediaType]; !ok {
		return certificate.UploadedFile{}, http.StatusUnsupportedMediaType, errors.New("unsupported media type")
	}

	file, err := certificate.ReadUploadedFile(src, header.Filename, mediaType, header.Size)
	if err != nil {
		return certificate.UploadedFile{}, http.StatusBadRequest, errors.New("unable to read file")
	}
	return file, 0, nil
}

func normalizeMediaType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	if mediaType == "image/jpg" {
		mediaType = "image/jpeg"
	}
	return mediaType
}
