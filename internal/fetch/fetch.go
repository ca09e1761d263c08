// Package fetch downloads a single URL to a file on disk. Redirects are followed manually so that
// every hop is visible in the logs and the number of hops is bounded.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Helcaraxan/borebin/internal/logger"
)

const DefaultMaxRedirects = 10

var (
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrFilesystem       = errors.New("filesystem error")
)

// HTTPStatusError is returned when the final response of a request chain is neither a success nor
// a followable redirect.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d (%s) for %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

var redirectCodes = map[int]bool{
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusSeeOther:          true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
}

// ProgressFunc is called after every chunk written to disk. The total is -1 when the server did not
// announce a content length.
type ProgressFunc func(written int64, total int64)

type Fetcher struct {
	log          *zap.Logger
	client       *http.Client
	maxRedirects int

	UserAgent string
	Progress  ProgressFunc
}

// New returns a Fetcher that uses a copy of the given client. A nil client results in a fresh
// client without timeout. A maxRedirects value that is not positive selects the default.
func New(logBuilder *logger.Builder, client *http.Client, maxRedirects int) *Fetcher {
	c := &http.Client{}
	if client != nil {
		cp := *client
		c = &cp
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}

	return &Fetcher{
		log:          logBuilder.Domain(logger.FetchDomain),
		client:       c,
		maxRedirects: maxRedirects,
	}
}

// Fetch downloads the content at rawURL into dest and returns dest. The parent directory of dest
// is created when missing. An existing file at dest is truncated.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, dest string) (string, error) {
	log := f.log.With(zap.String("dest", dest))
	log.Debug("Downloading.", zap.String("url", rawURL))

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		log.Error("Failed to create download directory.", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrFilesystem, err)
	}

	current := rawURL
	for hop := 0; ; hop++ {
		resp, err := f.get(ctx, current)
		if err != nil {
			log.Debug("Request failed.", zap.String("url", current), zap.Error(err))
			return "", err
		}

		loc := resp.Header.Get("Location")
		if redirectCodes[resp.StatusCode] && loc != "" {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()

			if hop >= f.maxRedirects {
				log.Error("Giving up after too many redirects.", zap.Int("max-redirects", f.maxRedirects))
				return "", fmt.Errorf("%w: more than %d hops starting from %s", ErrTooManyRedirects, f.maxRedirects, rawURL)
			}
			next, err := resolveLocation(current, loc)
			if err != nil {
				log.Error("Received an unparseable redirect location.", zap.String("location", loc), zap.Error(err))
				return "", err
			}
			log.Debug("Redirecting.", zap.Int("hop", hop+1), zap.Int("status", resp.StatusCode), zap.String("url", next))
			current = next
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			log.Debug("Received an unexpected status.", zap.String("url", current), zap.Int("status", resp.StatusCode))
			return "", &HTTPStatusError{StatusCode: resp.StatusCode, URL: current}
		}

		err = f.write(log, resp, dest)
		_ = resp.Body.Close()
		if err != nil {
			return "", err
		}
		log.Debug("Download complete.", zap.String("url", current))
		return dest, nil
	}
}

func (f *Fetcher) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	return f.client.Do(req)
}

func (f *Fetcher) write(log *zap.Logger, resp *http.Response, dest string) (err error) {
	out, err := os.Create(dest)
	if err != nil {
		log.Error("Failed to create download target.", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrFilesystem, err)
	}

	// Write errors are tagged so they can be told apart from errors reading the body.
	w := &trackingWriter{w: out, total: resp.ContentLength, report: f.Progress}

	_, copyErr := io.Copy(w, resp.Body)
	closeErr := out.Close()
	switch {
	case copyErr != nil:
		err = copyErr
	case closeErr != nil:
		err = fmt.Errorf("%w: %v", ErrFilesystem, closeErr)
	default:
		return nil
	}

	log.Error("Failed to write downloaded content. Removing partial file.", zap.Error(err))
	if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		log.Warn("Failed to remove partial download.", zap.Error(rmErr))
	}
	return err
}

func resolveLocation(base string, loc string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	l, err := url.Parse(loc)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(l).String(), nil
}

type trackingWriter struct {
	w       io.Writer
	written int64
	total   int64
	report  ProgressFunc
}

func (p *trackingWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.written += int64(n)
		if p.report != nil {
			p.report(p.written, p.total)
		}
	}
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrFilesystem, err)
	}
	return n, nil
}
