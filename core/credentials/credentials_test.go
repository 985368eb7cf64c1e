package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/oauth2"
)

func newTokenServer(t *testing.T, refreshes *atomic.Int32) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "refresh" {
			http.Error(w, "unexpected grant", http.StatusBadRequest)
			return
		}
		refreshes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFromJSONRefreshesAccessToken(t *testing.T) {
	var refreshes atomic.Int32
	server := newTokenServer(t, &refreshes)

	data := []byte(`{"client_id":"id","client_secret":"secret","refresh_token":"refresh"}`)
	ts, err := FromJSON(context.Background(), data,
		WithEndpoint(oauth2.Endpoint{TokenURL: server.URL, AuthStyle: oauth2.AuthStyleInParams}),
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("expected credentials to load, got %v", err)
	}

	token, err := ts.Token()
	if err != nil {
		t.Fatalf("expected token refresh to succeed, got %v", err)
	}
	if token.AccessToken != "access" {
		t.Fatalf("expected access token from server, got %q", token.AccessToken)
	}

	if _, err := ts.Token(); err != nil {
		t.Fatalf("expected cached token, got %v", err)
	}
	if got := refreshes.Load(); got != 1 {
		t.Fatalf("expected a single refresh for a valid token, got %d", got)
	}
}

func TestFromJSONNamesMissingField(t *testing.T) {
	testCases := []struct {
		name    string
		data    string
		missing string
	}{
		{name: "client id", data: `{"client_secret":"s","refresh_token":"r"}`, missing: "client_id"},
		{name: "client secret", data: `{"client_id":"i","refresh_token":"r"}`, missing: "client_secret"},
		{name: "refresh token", data: `{"client_id":"i","client_secret":"s"}`, missing: "refresh_token"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := FromJSON(context.Background(), []byte(testCase.data))
			if err == nil || !strings.Contains(err.Error(), testCase.missing) {
				t.Fatalf("expected error naming %s, got %v", testCase.missing, err)
			}
		})
	}
}

func TestFromJSONRejectsMalformedDocument(t *testing.T) {
	if _, err := FromJSON(context.Background(), []byte("{")); err == nil {
		t.Fatalf("expected malformed credentials to fail")
	}
}

func TestFromFileReadsDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	data := []byte(`{"client_id":"id","client_secret":"secret","refresh_token":"refresh"}`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write credentials: %v", err)
	}

	if _, err := FromFile(context.Background(), path); err != nil {
		t.Fatalf("expected credentials file to load, got %v", err)
	}
	if _, err := FromFile(context.Background(), filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}
