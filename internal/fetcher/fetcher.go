// Package fetcher implements the downloading side of the crawler: a
// retrying HTTP client with bounded redirects and explicit content
// decoding.
package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/rehttp"
)

// ErrTooManyRedirects is returned when a fetch follows more than
// maxRedirects hops without reaching a terminal response.
var ErrTooManyRedirects = errors.New("fetcher: too many redirects")

const (
	maxRedirects  = 5
	connTimeout   = 10 * time.Second
	defaultRetryN = 3
)

// HttpFetcher downloads a single URL and hands back its decoded body bytes
// together with the elapsed time, the way the teacher's stdHttpFetcher
// times every call for later reporting.
type HttpFetcher struct {
	userAgent string
	client    *http.Client
}

// New builds an HttpFetcher. verifyTLS controls whether certificate
// verification runs; the teacher defaults this off for parity with
// self-signed crawl targets, so callers that want verification must
// opt in explicitly.
func New(userAgent string, verifyTLS bool) *HttpFetcher {
	transport := rehttp.NewTransport(
		&http.Transport{
			TLSClientConfig:    &tls.Config{InsecureSkipVerify: !verifyTLS},
			DisableCompression: true,
		},
		rehttp.RetryAll(rehttp.RetryMaxRetries(defaultRetryN), rehttp.RetryTemporaryErr()),
		rehttp.ExpJitterDelay(1, 10*time.Second),
	)
	client := &http.Client{
		Timeout:       connTimeout,
		Transport:     transport,
		CheckRedirect: checkRedirect,
	}
	return &HttpFetcher{userAgent: userAgent, client: client}
}

// checkRedirect is called with via already containing every request sent
// so far, so len(via) == N means the Nth redirect is about to be followed.
// Allowing len(via) up to maxRedirects lets 5 redirects succeed; the 6th
// (len(via) == 6) is rejected, matching spec §4.3 exactly.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > maxRedirects {
		return ErrTooManyRedirects
	}
	return nil
}

// Fetch performs a single GET against targetURL and returns the decoded
// body, the content type, and the time spent in flight.
func (f *HttpFetcher) Fetch(targetURL string) (time.Duration, string, []byte, error) {
	req, err := http.NewRequest(http.MethodGet, targetURL, nil)
	if err != nil {
		return 0, "", nil, fmt.Errorf("fetching %s failed: %w", targetURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	start := time.Now()
	resp, err := f.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, ErrTooManyRedirects) {
			return elapsed, "", nil, fmt.Errorf("fetching %s failed: %w", targetURL, ErrTooManyRedirects)
		}
		return elapsed, "", nil, fmt.Errorf("fetching %s failed: %w", targetURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return elapsed, "", nil, fmt.Errorf("fetching %s failed: %s", targetURL, resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return elapsed, "", nil, fmt.Errorf("fetching %s failed reading body: %w", targetURL, err)
	}

	body := decodeBody(resp.Header.Get("Content-Encoding"), raw)
	return elapsed, resp.Header.Get("Content-Type"), body, nil
}

// decodeBody explicitly decodes gzip/deflate bodies. On decode failure it
// falls back to returning the raw compressed bytes rather than erroring
// the whole fetch — a caller downstream (the text pipeline) will simply
// extract fewer terms from the garbled text than lose the page entirely.
func decodeBody(encoding string, raw []byte) []byte {
	switch encoding {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return raw
		}
		defer r.Close()
		decoded, err := io.ReadAll(r)
		if err != nil {
			return raw
		}
		return decoded
	case "deflate":
		r := flate.NewReader(bytes.NewReader(raw))
		defer r.Close()
		decoded, err := io.ReadAll(r)
		if err != nil {
			return raw
		}
		return decoded
	default:
		return raw
	}
}
