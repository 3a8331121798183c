package gateways

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
	"golang.org/x/oauth2"
)

// PasswordGrantTokenProvider exchanges user credentials and client
// credentials for a bearer token (OAuth2 resource owner password grant).
// The token is fetched on first use and reused until it expires.
type PasswordGrantTokenProvider struct {
	config   oauth2.Config
	username string
	password string
	client   *http.Client
	logger   interfaces.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewPasswordGrantTokenProvider creates a provider for tokenURL. Client
// credentials travel in the form body, as identity servers of on-premise
// scanners expect.
func NewPasswordGrantTokenProvider(tokenURL string, vendor entities.VendorSettings, client *http.Client, logger interfaces.Logger) *PasswordGrantTokenProvider {
	if client == nil {
		client = NewHTTPClient()
	}
	return &PasswordGrantTokenProvider{
		config: oauth2.Config{
			ClientID:     vendor.ClientID,
			ClientSecret: vendor.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: strings.Fields(vendor.Scope),
		},
		username: vendor.Username,
		password: vendor.Password,
		client:   client,
		logger:   interfaces.OrNoOp(logger),
	}
}

// AuthHeader returns "Bearer <token>", fetching a token when none is held
func (p *PasswordGrantTokenProvider) AuthHeader(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil || !p.token.Valid() {
		if err := p.fetch(ctx); err != nil {
			return "", err
		}
	}

	return p.token.Type() + " " + p.token.AccessToken, nil
}

func (p *PasswordGrantTokenProvider) fetch(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	token, err := p.config.PasswordCredentialsToken(ctx, p.username, p.password)
	if err != nil {
		return fmt.Errorf("%w: token request to %s: %v", entities.ErrAuthFailure, p.config.Endpoint.TokenURL, err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("%w: token response from %s has no access_token", entities.ErrAuthFailure, p.config.Endpoint.TokenURL)
	}

	p.logger.Debug("Obtained access token",
		interfaces.F("token_url", p.config.Endpoint.TokenURL),
		interfaces.F("expires", token.Expiry))
	p.token = token
	return nil
}

// BasicAuthTokenProvider sends static HTTP Basic credentials
type BasicAuthTokenProvider struct {
	header string
}

// NewBasicAuthTokenProvider encodes username and password once
func NewBasicAuthTokenProvider(username, password string) *BasicAuthTokenProvider {
	creds := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return &BasicAuthTokenProvider{header: "Basic " + creds}
}

// AuthHeader returns "Basic <credentials>"; it never fails
func (p *BasicAuthTokenProvider) AuthHeader(_ context.Context) (string, error) {
	return p.header, nil
}
