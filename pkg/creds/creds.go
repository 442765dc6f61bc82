// Package creds fetches short-lived vendor credentials from the key proxy.
// The proxy is the only process holding long-lived secrets; adapters treat
// any non-success response as a credential failure.
package creds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/voicedeck/voicedeck/internal/httpc"
	"github.com/voicedeck/voicedeck/pkg/realtime"
)

// Proxy paths for the two credential kinds.
const (
	SocketKeyPath = "/v1/keys/socket"
	RTCKeyPath    = "/v1/keys/rtc"
)

// Client fetches credentials from one key proxy instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a credential client. hc may be nil to use the shared
// default client.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = httpc.Client
	}
	return &Client{baseURL: baseURL, http: hc}
}

func (c *Client) post(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return realtime.NewCredentialError(0, "build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return realtime.NewCredentialError(0, "key service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return realtime.NewCredentialError(resp.StatusCode,
			fmt.Sprintf("key service %s", resp.Status), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return realtime.NewCredentialError(0, "malformed key response", err)
	}
	return nil
}

// SocketKey fetches the socket vendor API key.
func (c *Client) SocketKey(ctx context.Context) (string, error) {
	var body struct {
		APIKey string `json:"apiKey"`
	}
	if err := c.post(ctx, SocketKeyPath, &body); err != nil {
		return "", err
	}
	if body.APIKey == "" {
		return "", realtime.NewCredentialError(0, "response omitted apiKey", realtime.ErrMissingCredential)
	}
	return body.APIKey, nil
}

// RTCKey fetches a short-lived media vendor session key along with its
// expiry (unix seconds).
func (c *Client) RTCKey(ctx context.Context) (string, int64, error) {
	var body struct {
		EphemeralKey string `json:"ephemeralKey"`
		ExpiresAt    int64  `json:"expiresAt"`
	}
	if err := c.post(ctx, RTCKeyPath, &body); err != nil {
		return "", 0, err
	}
	if body.EphemeralKey == "" {
		return "", 0, realtime.NewCredentialError(0, "response omitted ephemeralKey", realtime.ErrMissingCredential)
	}
	return body.EphemeralKey, body.ExpiresAt, nil
}
