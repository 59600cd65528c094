package clients

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Settings holds client-credential grant parameters for sources that
// authenticate with OAuth2 instead of a static API key.
type OAuth2Settings struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// NewOAuth2Client returns an *http.Client whose transport injects and
// refreshes bearer tokens obtained with the client-credentials grant. The
// base client supplies the underlying transport and timeout.
func NewOAuth2Client(ctx context.Context, settings OAuth2Settings, base *http.Client) *http.Client {
	cfg := &clientcredentials.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		TokenURL:     settings.TokenURL,
		Scopes:       settings.Scopes,
	}

	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}

	client := cfg.Client(ctx)
	if base != nil {
		client.Timeout = base.Timeout
	}
	return client
}
