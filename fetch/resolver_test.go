package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prebid/adstxt-validator/errortypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver() *Resolver {
	return NewResolver(NewClient(nil, 3, 0), time.Second, time.Second)
}

func TestResolveFirstReachableInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a/ads.txt":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte(r.URL.Path))
		}
	}))
	defer server.Close()

	resp, err := newTestResolver().Resolve(context.Background(), "127.0.0.1", []string{
		server.URL + "/a/ads.txt",
		server.URL + "/b/ads.txt",
		server.URL + "/c/ads.txt",
	}, RejectHTML)
	require.NoError(t, err)
	assert.Equal(t, "/b/ads.txt", string(resp.Body))
}

func TestResolveFallsBackToGetWhenHeadIsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Write([]byte("body"))
	}))
	defer server.Close()

	resp, err := newTestResolver().Resolve(context.Background(), "127.0.0.1", []string{server.URL + "/ads.txt"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "body", string(resp.Body))
}

func TestResolveNotFound(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestResolver().Resolve(context.Background(), "127.0.0.1", []string{
		server.URL + "/1",
		server.URL + "/2",
	}, nil)
	assert.IsType(t, &errortypes.NotFound{}, err)
	// two HEAD probes plus two GET fallbacks
	assert.Equal(t, int32(4), atomic.LoadInt32(&requests))
}

func TestResolveRejectsRedirectOutOfScope(t *testing.T) {
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("foreign"))
	}))
	defer foreign.Close()
	foreignURL := strings.Replace(foreign.URL, "127.0.0.1", "localhost", 1)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, foreignURL+"/ads.txt", http.StatusFound)
	}))
	defer origin.Close()

	_, err := newTestResolver().Resolve(context.Background(), "127.0.0.1", []string{origin.URL + "/ads.txt"}, nil)
	assert.IsType(t, &errortypes.NotFound{}, err)
}

func TestResolveInvalidContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	_, err := newTestResolver().Resolve(context.Background(), "127.0.0.1", []string{server.URL + "/ads.txt"}, RejectHTML)
	require.IsType(t, &errortypes.InvalidContentType{}, err)
	assert.Equal(t, "text/html; charset=utf-8", err.(*errortypes.InvalidContentType).ContentType)
}

func TestResolveTooManyRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer server.Close()

	_, err := newTestResolver().Resolve(context.Background(), "127.0.0.1", []string{server.URL + "/ads.txt"}, nil)
	assert.IsType(t, &errortypes.TooManyRedirects{}, err)
}

func TestResolveWithoutCandidates(t *testing.T) {
	_, err := newTestResolver().Resolve(context.Background(), "example.com", nil, nil)
	assert.IsType(t, &errortypes.BadInput{}, err)
}

func TestInScope(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		domain string
		want   bool
	}{
		{name: "same host", url: "https://example.com/ads.txt", domain: "example.com", want: true},
		{name: "subdomain", url: "https://www.example.com/ads.txt", domain: "example.com", want: true},
		{name: "case insensitive", url: "https://WWW.Example.COM/ads.txt", domain: "example.com", want: true},
		{name: "port ignored", url: "http://example.com:8080/ads.txt", domain: "example.com", want: true},
		{name: "suffix without dot", url: "https://badexample.com/ads.txt", domain: "example.com", want: false},
		{name: "unrelated", url: "https://evil.net/ads.txt", domain: "example.com", want: false},
		{name: "unparseable", url: "://", domain: "example.com", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InScope(tt.url, tt.domain))
		})
	}
}
