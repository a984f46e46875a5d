package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// fetchJSON performs a single GET against rawURL with the given query
// params, bounded by timeout, and decodes the JSON body into out. Every
// transport failure — timeout, DNS, non-2xx status, non-JSON body — is
// returned as a plain error for the caller to classify as "no data";
// nothing here panics or escalates.
func fetchJSON(ctx context.Context, client *http.Client, rawURL string, params url.Values, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("sources: invalid URL %q: %w", rawURL, err)
	}
	if params != nil {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("sources: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return fmt.Errorf("sources: dns failure for %s: %w", rawURL, err)
		}
		return fmt.Errorf("sources: request failed for %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("sources: %s returned HTTP %d", rawURL, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("sources: %s returned non-JSON body: %w", rawURL, err)
	}
	return nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{}
}
