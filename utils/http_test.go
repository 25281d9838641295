package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()
		data := map[string]string{"message": "test"}

		err := WriteJSON(w, http.StatusOK, data)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		err = json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err)
		assert.Equal(t, "test", response["message"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusNoContent, nil)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestWriteOK(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"result": "success"}

	err := WriteOK(w, data)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, w.Code)

	var response SuccessResponse
	err = json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	dataMap := response.Data.(map[string]interface{})
	assert.Equal(t, "success", dataMap["result"])
}

func TestWriteErrorResponses(t *testing.T) {
	tests := []struct {
		name      string
		write     func(w http.ResponseWriter) error
		status    int
		errorType string
	}{
		{
			name:      "bad request",
			write:     func(w http.ResponseWriter) error { return WriteBadRequest(w, "nope", nil) },
			status:    http.StatusBadRequest,
			errorType: "bad_request",
		},
		{
			name:      "unauthorized default message",
			write:     func(w http.ResponseWriter) error { return WriteUnauthorized(w, "") },
			status:    http.StatusUnauthorized,
			errorType: "unauthorized",
		},
		{
			name:      "forbidden",
			write:     func(w http.ResponseWriter) error { return WriteForbidden(w, "admins only") },
			status:    http.StatusForbidden,
			errorType: "forbidden",
		},
		{
			name:      "not found",
			write:     func(w http.ResponseWriter) error { return WriteNotFound(w, "") },
			status:    http.StatusNotFound,
			errorType: "not_found",
		},
		{
			name:      "service unavailable",
			write:     func(w http.ResponseWriter) error { return WriteServiceUnavailable(w, "") },
			status:    http.StatusServiceUnavailable,
			errorType: "service_unavailable",
		},
		{
			name:      "gateway timeout",
			write:     func(w http.ResponseWriter) error { return WriteGatewayTimeout(w, "") },
			status:    http.StatusGatewayTimeout,
			errorType: "gateway_timeout",
		},
		{
			name:      "internal server error",
			write:     func(w http.ResponseWriter) error { return WriteInternalServerError(w, "") },
			status:    http.StatusInternalServerError,
			errorType: "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w))
			assert.Equal(t, tt.status, w.Code)

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.errorType, response.Error)
		})
	}
}

