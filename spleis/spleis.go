// Package spleis fetches case data about a person from the downstream
// spleis service.
package spleis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// IDType says which identifier a person lookup uses.
type IDType string

const (
	// IDTypeFnr is the national identity number.
	IDTypeFnr IDType = "fnr"
	// IDTypeAktorID is the internal person identifier.
	IDTypeAktorID IDType = "aktorId"
)

var (
	// ErrPersonNotFound means the downstream holds no data for the identifier.
	ErrPersonNotFound = errors.New("person not found")
	// ErrUnavailable means the downstream failed or could not be reached.
	ErrUnavailable = errors.New("person lookup unavailable")
)

// Personer answers person lookups. The payload is returned opaque; this
// service relays it without interpreting it.
type Personer interface {
	Person(ctx context.Context, id string, idType IDType, accessToken string) ([]byte, error)
}

// Client is the HTTP Personer talking to a real spleis instance. The
// caller's access token is forwarded as the bearer credential.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Personer = (*Client)(nil)

// NewClient creates a spleis client against the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Person(ctx context.Context, id string, idType IDType, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/person/", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set(string(idType), id)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
		}
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPersonNotFound
	default:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}
