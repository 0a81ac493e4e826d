package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prebid/adstxt-validator/errortypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("example.com, 1, DIRECT"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/large", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 64)))
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusMovedPermanently)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tests := []struct {
		name       string
		path       string
		timeout    time.Duration
		wantBody   string
		wantFinal  string
		wantStatus int
		wantErrKey string
	}{
		{
			name:       "plain success",
			path:       "/ok",
			timeout:    time.Second,
			wantBody:   "example.com, 1, DIRECT",
			wantFinal:  "/ok",
			wantStatus: http.StatusOK,
		},
		{
			name:       "redirect is followed",
			path:       "/hop",
			timeout:    time.Second,
			wantBody:   "example.com, 1, DIRECT",
			wantFinal:  "/ok",
			wantStatus: http.StatusOK,
		},
		{
			name:       "client error status",
			path:       "/missing",
			timeout:    time.Second,
			wantErrKey: "errors.httpStatus",
		},
		{
			name:       "server error status",
			path:       "/broken",
			timeout:    time.Second,
			wantErrKey: "errors.httpStatus",
		},
		{
			name:       "deadline aborts the request",
			path:       "/slow",
			timeout:    20 * time.Millisecond,
			wantErrKey: "errors.timeout",
		},
		{
			name:       "body over limit",
			path:       "/large",
			timeout:    time.Second,
			wantErrKey: "errors.invalidFormat",
		},
		{
			name:       "redirect loop",
			path:       "/loop",
			timeout:    time.Second,
			wantErrKey: "errors.tooManyRedirects",
		},
	}

	client := NewClient(server.Client(), 3, 32)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Get(context.Background(), server.URL+tt.path, tt.timeout)
			if tt.wantErrKey != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrKey, errortypes.ReadKey(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantBody, string(resp.Body))
			assert.Equal(t, server.URL+tt.wantFinal, resp.URL)
		})
	}
}

func TestClientGetStatusIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(nil, 5, 0).Get(context.Background(), server.URL, time.Second)
	require.IsType(t, &errortypes.NonOkStatus{}, err)
	assert.Equal(t, http.StatusServiceUnavailable, err.(*errortypes.NonOkStatus).StatusCode)
	assert.True(t, errortypes.IsRetryable(err))
}

func TestClientGetNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(nil, 5, 0).Get(context.Background(), url, time.Second)
	assert.IsType(t, &errortypes.NetworkError{}, err)
	assert.True(t, errortypes.IsRetryable(err))
}

func TestClientGetInvalidURL(t *testing.T) {
	_, err := NewClient(nil, 5, 0).Get(context.Background(), "http://bad host/ads.txt", time.Second)
	assert.IsType(t, &errortypes.BadInput{}, err)
}

func TestClientHead(t *testing.T) {
	var method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Header().Set("Content-Type", "text/plain")
	}))
	defer server.Close()

	resp, err := NewClient(nil, 5, 0).Head(context.Background(), server.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.MethodHead, method)
	assert.Equal(t, "text/plain", resp.ContentType)
	assert.Empty(t, resp.Body)
}
