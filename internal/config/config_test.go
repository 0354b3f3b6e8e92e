package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, int64(10<<20), cfg.HTTP.MaxUploadBytes)
	assert.Equal(t, 0.8, cfg.Detector.FakeConfidenceThreshold)
	assert.Equal(t, "static", cfg.Registry.Source)
	assert.Equal(t, 10*time.Second, cfg.Gateway.VerifyTimeout)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UPLOAD_BACKEND", "minio")
	t.Setenv("DETECTOR_TRANSPORT", "grpc")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("OCR_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "minio", cfg.Gateway.UploadBackend)
	assert.Equal(t, "grpc", cfg.Detector.Transport)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Gateway.OCRTimeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"upload backend": {"UPLOAD_BACKEND": "ftp"},
		"transport":      {"DETECTOR_TRANSPORT": "smtp"},
		"registry file":  {"REGISTRY_SOURCE": "file"},
		"threshold":      {"FAKE_CONFIDENCE_THRESHOLD": "1.5"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
