package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gossips/internal/logger"
)

func TestInit_ProductionJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logger.Init("production", "info", &buf))
	t.Cleanup(logger.Disable)

	logger.Debug("hidden")
	logger.Error("watch failed", errors.New("boom"), "path", "chats/alicebob/isWrong")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "watch failed", line["message"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "chats/alicebob/isWrong", line["path"])
}

func TestInit_BadLevel(t *testing.T) {
	assert.Error(t, logger.Init("development", "loud", nil))
}
