// Package keyserver is the credential proxy. It is the only process that
// holds long-lived vendor secrets; adapters fetch short-lived or scoped
// credentials from it at session start.
package keyserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/voicedeck/voicedeck/internal/config"
	"github.com/voicedeck/voicedeck/internal/httpc"
	"github.com/voicedeck/voicedeck/pkg/creds"
)

// Server serves the credential endpoints.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	socketAPIKey string
	rtcAPIKey    string
	rtcMintURL   string
	hc           *http.Client
}

// Options configures a Server. Zero values fall back to the environment.
type Options struct {
	Addr         string
	SocketAPIKey string
	RTCAPIKey    string
	RTCMintURL   string
	HTTP         *http.Client
	Logger       *slog.Logger
}

// NewServer creates a server with routes registered. Listen starts it.
func NewServer(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = config.ListenAddr()
	}
	if opts.SocketAPIKey == "" {
		opts.SocketAPIKey = config.SocketAPIKey()
	}
	if opts.RTCAPIKey == "" {
		opts.RTCAPIKey = config.RTCAPIKey()
	}
	if opts.RTCMintURL == "" {
		opts.RTCMintURL = config.RTCMintURL()
	}
	if opts.HTTP == nil {
		opts.HTTP = httpc.Client
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		addr:         opts.Addr,
		logger:       opts.Logger.With("component", "keyserver"),
		socketAPIKey: opts.SocketAPIKey,
		rtcAPIKey:    opts.RTCAPIKey,
		rtcMintURL:   opts.RTCMintURL,
		hc:           opts.HTTP,
	}

	app := fiber.New(fiber.Config{
		AppName:               "voicedeck keyserver",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Post(creds.SocketKeyPath, s.handleSocketKey)
	app.Post(creds.RTCKeyPath, s.handleRTCKey)

	s.app = app
	return s
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving requests.
func (s *Server) Listen() error {
	s.logger.Info("listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// handleSocketKey hands the socket vendor's API key to the client. The key
// never changes per request, so this is a plain env lookup.
func (s *Server) handleSocketKey(c *fiber.Ctx) error {
	if s.socketAPIKey == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "socket API key not configured",
		})
	}
	return c.JSON(fiber.Map{"apiKey": s.socketAPIKey})
}

// handleRTCKey mints a short-lived session token from the vendor using the
// server-side secret and relays it.
func (s *Server) handleRTCKey(c *fiber.Ctx) error {
	if s.rtcAPIKey == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "rtc API key not configured",
		})
	}

	ephemeralKey, expiresAt, err := s.mintSession(c.Context())
	if err != nil {
		s.logger.Error("session mint failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": fmt.Sprintf("upstream error: %v", err),
		})
	}
	return c.JSON(fiber.Map{
		"ephemeralKey": ephemeralKey,
		"expiresAt":    expiresAt,
	})
}

type mintResponse struct {
	ClientSecret struct {
		Value string `json:"value"`
	} `json:"client_secret"`
	ExpiresAt int64 `json:"expires_at"`
}

func (s *Server) mintSession(ctx context.Context) (string, int64, error) {
	body := `{"modalities":["text","audio"],"voice":"alloy"}`
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.rtcMintURL, strings.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.rtcAPIKey)

	resp, err := s.hc.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("mint endpoint returned %d", resp.StatusCode)
	}

	var minted mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&minted); err != nil {
		return "", 0, err
	}
	if minted.ClientSecret.Value == "" {
		return "", 0, fmt.Errorf("mint response missing client secret")
	}
	return minted.ClientSecret.Value, minted.ExpiresAt, nil
}
