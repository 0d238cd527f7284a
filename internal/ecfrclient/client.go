// Package ecfrclient is a thin HTTP client over the eCFR admin and
// versioner APIs. It is a pure transport collaborator: no parsing
// beyond JSON/XML framing happens here.
package ecfrclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultTimeout matches spec.md's recommendation: full-title XML
// documents can be large.
const DefaultTimeout = 900 * time.Second

// Client wraps a shared *http.Client/transport across every call a
// worker makes, per spec.md §4.1 / §5.
type Client struct {
	base string
	hc   *http.Client
}

// New builds a Client with a generous shared connection pool.
func New(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{base: base, hc: &http.Client{Timeout: timeout, Transport: tr}}
}

// TransportError wraps a non-2xx, non-documented-404 HTTP response or
// a network failure, per spec.md §7.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ecfrclient: GET %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("ecfrclient: GET %s: status=%d", e.URL, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FetchAgencies retrieves the full agency tree.
func (c *Client) FetchAgencies(ctx context.Context) ([]Agency, error) {
	u := c.base + "/admin/v1/agencies.json"
	var resp struct {
		Agencies []Agency `json:"agencies"`
	}
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return resp.Agencies, nil
}

// FetchTitles retrieves the title catalog.
func (c *Client) FetchTitles(ctx context.Context) ([]Title, error) {
	u := c.base + "/versioner/v1/titles.json"
	var resp struct {
		Titles []Title `json:"titles"`
	}
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return resp.Titles, nil
}

// FetchTitleVersions retrieves every content_version for a title. A
// 404 response is treated as an empty list, not an error.
func (c *Client) FetchTitleVersions(ctx context.Context, titleNumber int) ([]TitleVersion, error) {
	u := fmt.Sprintf("%s/versioner/v1/versions/title-%d.json", c.base, titleNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.StatusCode != http.StatusOK {
		return nil, statusErr(u, res)
	}
	var parsed struct {
		ContentVersions []TitleVersion `json:"content_versions"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.ContentVersions, nil
}

// FetchFullTitle retrieves the full-title XML document for a version
// date. A 404 response is treated as an empty document, not an error.
func (c *Client) FetchFullTitle(ctx context.Context, titleNumber int, versionDate string) ([]byte, error) {
	u := fmt.Sprintf("%s/versioner/v1/full/%s/title-%d.xml", c.base, url.PathEscape(versionDate), titleNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.StatusCode != http.StatusOK {
		return nil, statusErr(u, res)
	}
	return io.ReadAll(res.Body)
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return statusErr(u, res)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func statusErr(u string, res *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return &TransportError{URL: u, StatusCode: res.StatusCode, Err: fmt.Errorf("%s", string(b))}
}

// do performs a GET with exponential-backoff retry on 429, 500, 502,
// 503, 504 and network errors; other statuses are returned as is.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	const maxAttempts = 5
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		r := req.Clone(req.Context())
		res, err := c.hc.Do(r)
		if err == nil {
			if isRetryableStatus(res.StatusCode) {
				_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 32*1024))
				_ = res.Body.Close()
				lastErr = &TransportError{URL: r.URL.String(), StatusCode: res.StatusCode}
				if attempt < maxAttempts-1 {
					if err := sleepWithRetryAfter(req.Context(), res, attempt); err != nil {
						return nil, err
					}
					continue
				}
				break
			}
			return res, nil
		}
		lastErr = &TransportError{URL: r.URL.String(), Err: err}
		if attempt < maxAttempts-1 {
			delay := time.Duration(500*(1<<attempt)) * time.Millisecond
			if err := sleepWithContext(req.Context(), delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func sleepWithRetryAfter(ctx context.Context, res *http.Response, attempt int) error {
	if res.StatusCode == http.StatusTooManyRequests {
		if ra := res.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				return sleepWithContext(ctx, time.Duration(secs)*time.Second)
			}
		}
	}
	delay := time.Duration(700*(1<<attempt)) * time.Millisecond
	if delay > 12*time.Second {
		delay = 12 * time.Second
	}
	return sleepWithContext(ctx, delay)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
