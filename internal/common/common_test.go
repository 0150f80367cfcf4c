package common_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/common"
)

func TestParsePagination(t *testing.T) {
	page, limit := common.ParsePagination(url.Values{}, 10, 100)
	require.Equal(t, 1, page)
	require.Equal(t, 10, limit)

	page, limit = common.ParsePagination(url.Values{"page": {"-3"}, "limit": {"500"}}, 10, 100)
	require.Equal(t, 1, page)
	require.Equal(t, 100, limit)

	page, limit = common.ParsePagination(url.Values{"page": {"4"}, "limit": {"x"}}, 10, 100)
	require.Equal(t, 4, page)
	require.Equal(t, 10, limit)
}

func TestWriteErrorAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, common.BadRequest("limit", "limit must be numeric", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, common.CodeBadRequest, body.Error.Code)
	require.Equal(t, "limit must be numeric", body.Error.Message)
}

func TestWriteErrorOpaque(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, errors.New("db password leaked"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "password")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Quantity int `json:"quantity"`
	}
	require.NoError(t, common.DecodeJSON(strings.NewReader(`{"quantity":2}`), &dst))
	require.Equal(t, 2, dst.Quantity)

	err := common.DecodeJSON(strings.NewReader(`{"quantity":`), &dst)
	require.True(t, common.IsAppError(err))

	err = common.DecodeJSON(strings.NewReader(`{"qty":1}`), &dst)
	require.True(t, common.IsAppError(err))
}

func TestOptionalInt(t *testing.T) {
	v, err := common.OptionalInt("")
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = common.OptionalInt(" 7 ")
	require.NoError(t, err)
	require.Equal(t, 7, *v)

	_, err = common.OptionalInt("seven")
	require.Error(t, err)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	require.Equal(t, "192.0.2.1", common.ClientIP(req))

	req.RemoteAddr = "198.51.100.7"
	require.Equal(t, "198.51.100.7", common.ClientIP(req))
	require.Equal(t, "", common.ClientIP(nil))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Equal(t, "", common.BearerToken(req))

	req.Header.Set("Authorization", "bearer  tok-1 ")
	require.Equal(t, "tok-1", common.BearerToken(req))

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	require.Equal(t, "", common.BearerToken(req))
}
