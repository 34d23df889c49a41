// Package httphandshake is the HTTP POST collaborator used only for the
// async-handshake path: a single request carrying a pre-encoded JSON body,
// returning the raw response body for the caller to decode. It knows
// nothing about Bayeux envelopes; that keeps it free of an import cycle
// back to the package that defines Message.
package httphandshake

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// Client issues the single POST request a handshake needs.
type Client struct {
	httpClient *http.Client
}

// New builds a Client. A nil httpClient gets a fresh http.Client with a
// cookie jar scoped by the public suffix list, matching the teacher's
// NewBayeuxClient default. A non-nil transport overrides the client's
// RoundTripper.
func New(httpClient *http.Client, transport http.RoundTripper) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
		httpClient.Jar = jar
	}
	if transport != nil {
		httpClient.Transport = transport
	}
	return &Client{httpClient: httpClient}, nil
}

// Post sends body (already JSON-encoded by the caller) to target and
// returns the raw response body. A non-200 status is reported as
// UnexpectedStatusError rather than swallowed.
func (c *Client) Post(ctx context.Context, target *url.URL, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, UnexpectedStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnexpectedStatusError is returned when the handshake POST doesn't come
// back with a 200.
type UnexpectedStatusError struct {
	StatusCode int
	Status     string
}

func (e UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status from handshake: %d %s", e.StatusCode, e.Status)
}
