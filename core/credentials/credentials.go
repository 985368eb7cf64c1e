// Package credentials turns an installed-app OAuth2 client and refresh token
// into a refreshing token source for the Assistant API.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// AssistantScope grants access to the Assistant SDK.
const AssistantScope = "https://www.googleapis.com/auth/assistant-sdk-prototype"

// Secrets is the on-disk credentials document.
type Secrets struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

func (s Secrets) validate() error {
	switch {
	case s.ClientID == "":
		return fmt.Errorf("credentials missing client_id")
	case s.ClientSecret == "":
		return fmt.Errorf("credentials missing client_secret")
	case s.RefreshToken == "":
		return fmt.Errorf("credentials missing refresh_token")
	}
	return nil
}

type options struct {
	endpoint   oauth2.Endpoint
	httpClient *http.Client
}

type Option func(*options)

// WithEndpoint overrides the Google OAuth2 endpoint.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithHTTPClient sets the client used for token refreshes.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// FromFile reads a credentials document from path.
func FromFile(ctx context.Context, path string, opts ...Option) (oauth2.TokenSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return FromJSON(ctx, data, opts...)
}

func FromJSON(ctx context.Context, data []byte, opts ...Option) (oauth2.TokenSource, error) {
	var secrets Secrets
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return TokenSource(ctx, secrets, opts...)
}

// TokenSource returns a token source that refreshes access tokens as they
// expire. ctx scopes the refresh HTTP client, not individual tokens.
func TokenSource(ctx context.Context, secrets Secrets, opts ...Option) (oauth2.TokenSource, error) {
	if err := secrets.validate(); err != nil {
		return nil, err
	}

	options := options{
		endpoint:   google.Endpoint,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(&options)
	}

	config := &oauth2.Config{
		ClientID:     secrets.ClientID,
		ClientSecret: secrets.ClientSecret,
		Endpoint:     options.endpoint,
		Scopes:       []string{AssistantScope},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, options.httpClient)
	return config.TokenSource(ctx, &oauth2.Token{RefreshToken: secrets.RefreshToken}), nil
}
