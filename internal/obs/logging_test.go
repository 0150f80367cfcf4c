package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/session"
)

func TestRequestLoggerIncludesSession(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "info")
	h := RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
	req = req.WithContext(session.WithID(req.Context(), "sess-1"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "http_request", line["message"])
	require.Equal(t, "sess-1", line["session_id"])
	require.Equal(t, float64(http.StatusCreated), line["status"])
	require.Equal(t, "toko-storefront", line["service"])
}
