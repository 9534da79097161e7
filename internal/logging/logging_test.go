package logging

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOperationErrorNilPassthrough(t *testing.T) {
	assert.NoError(t, NewOperationError("noop", "req", nil))
}

func TestOperationErrorMessageAndUnwrap(t *testing.T) {
	base := errors.New("connection refused")

	err := NewOperationError("deepfaceapi.verify", "", base)
	assert.Equal(t, "deepfaceapi.verify: connection refused", err.Error())
	assert.ErrorIs(t, err, base)

	withID := NewOperationError("usecase.save_log", "req-7", base)
	assert.Equal(t, "usecase.save_log (request_id=req-7): connection refused", withID.Error())

	var opErr *OperationError
	require.ErrorAs(t, withID, &opErr)
	assert.Equal(t, "req-7", opErr.RequestID)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNewLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facecompare.log")

	logger, err := NewLogger(Options{Level: "debug", File: path})
	require.NoError(t, err)

	WithOperation(logger, "test.operation", "req-1").Info("hello")
	_ = logger.Sync()

	assert.FileExists(t, path)
}
