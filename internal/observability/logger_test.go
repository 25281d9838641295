package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("info", "json")
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("ok")

	logger, err = NewLogger("debug", "text")
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = NewLogger("shouting", "json")
	assert.Error(t, err)

	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}
