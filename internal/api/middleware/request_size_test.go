package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSize(t *testing.T) {
	tests := []struct {
		name       string
		maxBytes   int64
		bodySize   int
		wantStatus int
	}{
		{name: "small body", maxBytes: 1024, bodySize: 512, wantStatus: http.StatusOK},
		{name: "exact limit", maxBytes: 1024, bodySize: 1024, wantStatus: http.StatusOK},
		{name: "oversized body", maxBytes: 1024, bodySize: 2048, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "default limit", maxBytes: DefaultMaxBodySize, bodySize: int(DefaultMaxBodySize) + 1, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequestSize(tt.maxBytes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, err := io.ReadAll(r.Body)
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					w.WriteHeader(http.StatusRequestEntityTooLarge)
					return
				}
				require.NoError(t, err)
				assert.Len(t, body, tt.bodySize)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(bytes.Repeat([]byte("x"), tt.bodySize)))
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			assert.Equal(t, tt.wantStatus, res.Code)
		})
	}
}

func TestRequestSizeWithNoBody(t *testing.T) {
	handler := RequestSize(1024)(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	require.Equal(t, http.StatusOK, res.Code)
}

func TestRequestSizeWithChunkedReads(t *testing.T) {
	handler := RequestSize(1024)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 512)
		for {
			_, err := r.Body.Read(buf)
			if err == io.EOF {
				break
			}
			if err != nil {
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(strings.Repeat("x", 2048)))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, res.Code)
}
