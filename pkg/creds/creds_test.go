package creds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicedeck/voicedeck/pkg/realtime"
)

func TestClient_SocketKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != SocketKeyPath {
			t.Errorf("Expected path %s, got %s", SocketKeyPath, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"apiKey":"sk-test-123"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	key, err := c.SocketKey(context.Background())
	if err != nil {
		t.Fatalf("SocketKey failed: %v", err)
	}
	if key != "sk-test-123" {
		t.Errorf("Expected sk-test-123, got %q", key)
	}
}

func TestClient_SocketKeyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not configured"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	_, err := c.SocketKey(context.Background())
	if err == nil {
		t.Fatal("Expected error for 500 response")
	}
	if !realtime.IsCredentialError(err) {
		t.Errorf("Expected CredentialError, got %T", err)
	}

	var credErr *realtime.CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("Expected *CredentialError, got %T", err)
	}
	if credErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", credErr.StatusCode)
	}
}

func TestClient_SocketKeyMissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	_, err := c.SocketKey(context.Background())
	if err == nil {
		t.Fatal("Expected error for empty apiKey")
	}
	if !realtime.IsCredentialError(err) {
		t.Errorf("Expected CredentialError, got %T", err)
	}
}

func TestClient_SocketKeyUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", nil)
	_, err := c.SocketKey(context.Background())
	if err == nil {
		t.Fatal("Expected error for unreachable key service")
	}
	if !realtime.IsCredentialError(err) {
		t.Errorf("Expected CredentialError, got %T", err)
	}
}

func TestClient_RTCKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != RTCKeyPath {
			t.Errorf("Expected path %s, got %s", RTCKeyPath, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"ephemeralKey":"ek-abc","expiresAt":1735689600}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	key, expiresAt, err := c.RTCKey(context.Background())
	if err != nil {
		t.Fatalf("RTCKey failed: %v", err)
	}
	if key != "ek-abc" {
		t.Errorf("Expected ek-abc, got %q", key)
	}
	if expiresAt != 1735689600 {
		t.Errorf("Expected expiry 1735689600, got %d", expiresAt)
	}
}
