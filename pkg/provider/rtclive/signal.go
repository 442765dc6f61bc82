package rtclive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/voicedeck/voicedeck/pkg/realtime"
)

// exchangeOffer posts the local SDP offer to the vendor signaling endpoint
// and returns the answer SDP. The ephemeral key authorizes the session.
func exchangeOffer(ctx context.Context, hc *http.Client, signalURL, ephemeralKey, offerSDP string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signalURL,
		strings.NewReader(offerSDP))
	if err != nil {
		return "", realtime.NewTransportError("signal request", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+ephemeralKey)

	resp, err := hc.Do(req)
	if err != nil {
		return "", realtime.NewTransportError("signal exchange", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", realtime.NewTransportError("signal answer read", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", realtime.NewTransportError("signal exchange",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return string(body), nil
}
