package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("chatty")
	require.Error(t, err)

	logger, err := NewLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestWithOperationAddsFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	WithOperation(zap.New(core), "usecase.analyze", "req-1").Info("done")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "usecase.analyze", fields["operation"])
	assert.Equal(t, "req-1", fields["request_id"])
}

func TestOperationErrorUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := NewOperationError("repository.save_log", "req-9", base)

	assert.True(t, errors.Is(err, base))
	assert.Equal(t, "repository.save_log (request_id=req-9): boom", err.Error())
	assert.Nil(t, NewOperationError("noop", "", nil))

	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "req-9", opErr.RequestID)
}
