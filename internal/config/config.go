// Package config provides configuration helpers for voicedeck commands.
package config

import "os"

// Default endpoints and listen addresses.
const (
	DefaultKeyServiceURL = "http://127.0.0.1:8787"
	DefaultListenAddr    = ":8787"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// KeyServiceURL returns the base URL of the credential proxy,
// from KEY_SERVICE_URL or the local default.
func KeyServiceURL() string {
	return envOr("KEY_SERVICE_URL", DefaultKeyServiceURL)
}

// ListenAddr returns the credential proxy listen address from LISTEN_ADDR.
func ListenAddr() string {
	return envOr("LISTEN_ADDR", DefaultListenAddr)
}

// SocketRealtimeURL returns the socket vendor's realtime websocket URL.
func SocketRealtimeURL() string {
	return envOr("SOCKET_REALTIME_URL", "wss://api.socketvoice.example/v1/realtime")
}

// RTCSignalURL returns the media vendor's HTTP signaling endpoint.
func RTCSignalURL() string {
	return envOr("RTC_SIGNAL_URL", "https://api.rtcvoice.example/v1/realtime")
}

// SocketAPIKey returns the long-lived socket vendor key held by the proxy.
func SocketAPIKey() string {
	return os.Getenv("SOCKET_API_KEY")
}

// RTCAPIKey returns the long-lived media vendor key held by the proxy.
func RTCAPIKey() string {
	return os.Getenv("RTC_API_KEY")
}

// RTCMintURL returns the vendor endpoint that mints short-lived session keys.
func RTCMintURL() string {
	return envOr("RTC_MINT_URL", "https://api.rtcvoice.example/v1/realtime/sessions")
}

// LogLevel returns the log level from LOG_LEVEL, defaulting to info.
func LogLevel() string {
	return envOr("LOG_LEVEL", "info")
}
