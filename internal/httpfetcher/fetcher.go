// Package httpfetcher defines the HttpFetcher external collaborator
// (spec.md §6), used only for fire-and-forget debug beacons. The
// multi-curl connection pool the original service uses is out of scope
// (spec.md §1); this is a plain net/http client, matching the teacher's
// use of golang.org/x/net/context/ctxhttp for deadline-bound outbound
// calls in exchange/bidder.go.
package httpfetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/net/context/ctxhttp"
)

// Fetcher issues a single GET and returns the response body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Client is a Fetcher backed by a shared *http.Client.
type Client struct {
	HTTP *http.Client
}

// New returns a Client using http.DefaultClient.
func New() *Client {
	return &Client{HTTP: http.DefaultClient}
}

func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := ctxhttp.Get(ctx, c.HTTP, url)
	if err != nil {
		return nil, fmt.Errorf("debug beacon GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("debug beacon read %s: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		return body, fmt.Errorf("debug beacon GET %s: status %d", url, resp.StatusCode)
	}
	return body, nil
}
