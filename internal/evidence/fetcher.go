// Package evidence retrieves and hardens the external data the oracle
// reads. Nothing leaves this package unsanitized: the fetcher is the only
// component allowed to touch an evidence URL, and its output is what both
// auditors see.
package evidence

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Fetch constraints.
const (
	MaxBodyBytes   = 10 * 1024
	MaxRedirects   = 3
	DefaultTimeout = 15 * time.Second
)

// ErrInsecureURL is returned in enclave mode for non-HTTPS evidence URLs.
var ErrInsecureURL = errors.New("evidence URL must be https in enclave mode")

// Fetcher performs hardened outbound HTTP. In enclave mode HTTPS is
// mandatory and the TLS config is pinned to modern versions.
type Fetcher struct {
	client      *http.Client
	enclaveMode bool
}

// NewFetcher builds a fetcher. enclaveMode tightens transport policy.
func NewFetcher(timeout time.Duration, enclaveMode bool) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= MaxRedirects {
					return fmt.Errorf("stopped after %d redirects", MaxRedirects)
				}
				return nil
			},
		},
		enclaveMode: enclaveMode,
	}
}

// Fetch retrieves the URL, truncates the body to MaxBodyBytes and returns
// it sanitized. The raw body never escapes this function.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.enclaveMode && !strings.HasPrefix(strings.ToLower(url), "https://") {
		return "", ErrInsecureURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("evidence request: %w", err)
	}
	req.Header.Set("User-Agent", "parapool-oracle/1.0")
	req.Header.Set("Accept", "application/json, text/plain, text/html;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("evidence fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("evidence fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("evidence read %s: %w", url, err)
	}
	return Sanitize(string(body)), nil
}
