package security

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBodyLimit(t *testing.T) {
	cases := []struct {
		name       string
		max        int64
		body       string
		declared   int64
		wantStatus int
		wantBody   string
	}{
		{name: "within limit", max: 32, body: `{"quantity":2}`, wantStatus: http.StatusOK, wantBody: `{"quantity":2}`},
		{name: "streamed over limit", max: 8, body: `{"quantity":2}`, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "declared over limit", max: 8, body: `{}`, declared: 1024, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "disabled", max: 0, body: strings.Repeat("x", 64), wantStatus: http.StatusOK, wantBody: strings.Repeat("x", 64)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := BodyLimit{Max: tc.max}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				data, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				seen = string(data)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(tc.body))
			if tc.declared > 0 {
				req.ContentLength = tc.declared
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus != http.StatusOK {
				var env struct {
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
				require.Equal(t, "PAYLOAD_TOO_LARGE", env.Error.Code)
				return
			}
			require.Equal(t, tc.wantBody, seen)
		})
	}
}

func TestBodyLimitSkipsEmptyBody(t *testing.T) {
	called := false
	h := BodyLimit{Max: 1}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	require.True(t, called)
}
