package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"bufr_decoder/internal/bufr"
	"bufr_decoder/internal/storage"
	"bufr_decoder/internal/testutil"
)

func newTestServer(t *testing.T, store storage.Store, cfg Config) http.Handler {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewServer(bufr.NewDecoder(testutil.Table(t)), store, cfg, log).Router()
}

func temperatureMessage(temp uint64) []byte {
	w := &testutil.BitWriter{}
	w.Write(temp, 16)
	return testutil.Encode(testutil.Message{Codes: testutil.Codes("012101"), Data: w.Bytes()})
}

func postDecode(t *testing.T, h http.Handler, target string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type decodeBody struct {
	Messages []struct {
		ID      string `json:"id"`
		Message struct {
			Section0 struct {
				Edition int `json:"edition"`
			} `json:"section0"`
			Section4 struct {
				Subsets [][]struct {
					Code  string `json:"code"`
					Value any    `json:"value"`
				} `json:"subsets"`
			} `json:"section4"`
		} `json:"message"`
	} `json:"messages"`
	Errors []ErrorResponse `json:"errors"`
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, nil, Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "ok", resp["status"])
}

func TestDecodeEndpoint(t *testing.T) {
	h := newTestServer(t, nil, Config{})

	body := append(temperatureMessage(28000), []byte("junk")...)
	body = append(body, testutil.Encode(testutil.Message{Edition: 2, Codes: testutil.Codes("012101"), Data: []byte{0, 0}})...)
	body = append(body, temperatureMessage(27000)...)

	rec := postDecode(t, h, "/api/v1/decode", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp decodeBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)
	require.Empty(t, resp.Messages[0].ID)
	require.Equal(t, 4, resp.Messages[0].Message.Section0.Edition)

	subsets := resp.Messages[1].Message.Section4.Subsets
	require.Len(t, subsets, 1)
	require.Equal(t, "012101", subsets[0][0].Code)
	require.InDelta(t, 270.0, subsets[0][0].Value, 1e-9)

	require.Len(t, resp.Errors, 1)
	require.Equal(t, "format", resp.Errors[0].Kind)
	require.Equal(t, 1, resp.Errors[0].Index)
}

func TestDecodeEndpointRejects(t *testing.T) {
	h := newTestServer(t, nil, Config{MaxBodyBytes: 64})

	rec := postDecode(t, h, "/api/v1/decode", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postDecode(t, h, "/api/v1/decode", []byte("no bulletins here"), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = postDecode(t, h, "/api/v1/decode", bytes.Repeat([]byte{'x'}, 100), nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = postDecode(t, h, "/api/v1/decode?store=true", temperatureMessage(28000), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeEndpointStores(t *testing.T) {
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "bufr.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	h := newTestServer(t, db, Config{})

	rec := postDecode(t, h, "/api/v1/decode?store=true&source=upload", temperatureMessage(28000), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp decodeBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	id := resp.Messages[0].ID
	require.NotEmpty(t, id)

	records, err := db.Query(context.Background(), storage.QueryParams{ID: id})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "upload", records[0].Source)
}

func TestAuthMiddleware(t *testing.T) {
	h := newTestServer(t, nil, Config{
		AuthEnabled: true,
		APIKeys:     []string{"test-key-123", "another-key"},
	})

	tests := []struct {
		name       string
		header     http.Header
		wantStatus int
	}{
		{"no key", nil, http.StatusUnauthorized},
		{"invalid key", http.Header{"X-Api-Key": {"nope"}}, http.StatusForbidden},
		{"valid key header", http.Header{"X-Api-Key": {"test-key-123"}}, http.StatusOK},
		{"valid bearer", http.Header{"Authorization": {"Bearer another-key"}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postDecode(t, h, "/api/v1/decode", temperatureMessage(28000), tt.header)
			require.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	// Health stays open.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, nil, Config{})

	rec := postDecode(t, h, "/api/v1/decode", temperatureMessage(28000), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "bufr_decoder_messages_total")
	require.Contains(t, rec.Body.String(), "bufr_http_requests_total")
}
