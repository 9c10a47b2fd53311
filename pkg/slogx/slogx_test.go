package slogx_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/agencydesk/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := slogx.New(slogx.Config{Service: "auth", Version: "test", Env: "prod", Level: "warn", Output: &buf})

	log.Info("dropped")
	log.Warn("kept", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "kept", rec["msg"])
	require.Equal(t, "auth", rec["service"])
	require.Equal(t, "prod", rec["env"])
	require.Equal(t, "v", rec["k"])
}

func TestHTTPMiddleware_RequestID(t *testing.T) {
	var buf bytes.Buffer
	base := slogx.New(slogx.Config{Service: "auth", Level: "info", Output: &buf})

	h := slogx.HTTPMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slogx.FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("propagates caller id", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/livez", nil)
		req.Header.Set("X-Request-ID", "req-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		require.Len(t, lines, 2)

		var access map[string]any
		require.NoError(t, json.Unmarshal(lines[1], &access))
		require.Equal(t, "http_request", access["msg"])
		require.Equal(t, "req-123", access["req_id"])
		require.EqualValues(t, http.StatusTeapot, access["status"])
	})

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Len(t, rec.Header().Get("X-Request-ID"), 26)
	})
}
