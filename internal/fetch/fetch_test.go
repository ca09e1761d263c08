package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Helcaraxan/borebin/internal/logger"
)

const payload = "archive-content"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(payload))
	})
	mux.HandleFunc("/found", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	mux.HandleFunc("/chain/", func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(filepath.Base(r.URL.Path))
		if err != nil || n <= 0 {
			http.Redirect(w, r, "/ok", http.StatusTemporaryRedirect)
			return
		}
		http.Redirect(w, r, fmt.Sprintf("/chain/%d", n-1), http.StatusMovedPermanently)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/relative/start", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", "../ok")
		w.WriteHeader(http.StatusSeeOther)
	})
	mux.HandleFunc("/no-location", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/missing", http.NotFound)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	t.Parallel()

	srv := newServer(t)

	testcases := map[string]struct {
		path string
	}{
		"Direct":           {path: "/ok"},
		"SingleRedirect":   {path: "/found"},
		"RedirectChain":    {path: "/chain/5"},
		"RelativeLocation": {path: "/relative/start"},
	}

	for name := range testcases {
		tc := testcases[name]
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			dest := filepath.Join(dir, "nested", "bore.tar.gz")

			f := New(logger.NewTestBuilder(), srv.Client(), 0)
			p, err := f.Fetch(context.Background(), srv.URL+tc.path, dest)
			require.NoError(t, err)
			assert.Equal(t, dest, p)

			raw, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, payload, string(raw))

			entries, err := os.ReadDir(filepath.Dir(dest))
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()

	srv := newServer(t)

	testcases := map[string]struct {
		path         string
		maxRedirects int
		status       int
		err          error
	}{
		"NotFound":         {path: "/missing", status: http.StatusNotFound},
		"RedirectNoTarget": {path: "/no-location", status: http.StatusFound},
		"Loop":             {path: "/loop", err: ErrTooManyRedirects},
		"ChainOverLimit":   {path: "/chain/5", maxRedirects: 3, err: ErrTooManyRedirects},
	}

	for name := range testcases {
		tc := testcases[name]
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dest := filepath.Join(t.TempDir(), "bore.tar.gz")

			f := New(logger.NewTestBuilder(), srv.Client(), tc.maxRedirects)
			_, err := f.Fetch(context.Background(), srv.URL+tc.path, dest)
			require.Error(t, err)

			if tc.status != 0 {
				var statusErr *HTTPStatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, tc.status, statusErr.StatusCode)
			}
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			}

			_, statErr := os.Stat(dest)
			assert.ErrorIs(t, statErr, os.ErrNotExist)
		})
	}
}

func TestFetchRedirectBoundIsExact(t *testing.T) {
	t.Parallel()

	srv := newServer(t)

	// Five redirects followed by the final response.
	f := New(logger.NewTestBuilder(), srv.Client(), 5)
	_, err := f.Fetch(context.Background(), srv.URL+"/chain/4", filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)

	f = New(logger.NewTestBuilder(), srv.Client(), 4)
	_, err = f.Fetch(context.Background(), srv.URL+"/chain/4", filepath.Join(t.TempDir(), "out"))
	assert.ErrorIs(t, err, ErrTooManyRedirects)
}

func TestFetchTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := New(logger.NewTestBuilder(), nil, 0)
	_, err := f.Fetch(context.Background(), addr+"/ok", filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)

	var urlErr *url.Error
	assert.ErrorAs(t, err, &urlErr)
	assert.False(t, errors.Is(err, ErrFilesystem))
}

func TestFetchCancelled(t *testing.T) {
	t.Parallel()

	srv := newServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(logger.NewTestBuilder(), srv.Client(), 0)
	_, err := f.Fetch(ctx, srv.URL+"/ok", filepath.Join(t.TempDir(), "out"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchFilesystemError(t *testing.T) {
	t.Parallel()

	srv := newServer(t)

	// The destination is an existing directory so it can not be created as a file.
	dest := t.TempDir()

	f := New(logger.NewTestBuilder(), srv.Client(), 0)
	_, err := f.Fetch(context.Background(), srv.URL+"/ok", dest)
	assert.ErrorIs(t, err, ErrFilesystem)
}

func TestFetchHeadersAndProgress(t *testing.T) {
	t.Parallel()

	var userAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	var lastWritten, lastTotal int64
	f := New(logger.NewTestBuilder(), srv.Client(), 0)
	f.UserAgent = "borebin/test"
	f.Progress = func(written int64, total int64) {
		lastWritten, lastTotal = written, total
	}

	_, err := f.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	assert.Equal(t, "borebin/test", userAgent.Load())
	assert.Equal(t, int64(len(payload)), lastWritten)
	assert.Equal(t, int64(len(payload)), lastTotal)
}
