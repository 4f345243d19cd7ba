package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/flashy-edu/flashy/internal/shared"
)

// Google endpoints used when GoogleConfig leaves them empty.
const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// ExternalIdentity is the account an identity provider vouches for.
type ExternalIdentity struct {
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
}

// IdentityProvider turns an authorization code into a verified identity.
type IdentityProvider interface {
	Name() string
	Exchange(ctx context.Context, code string) (ExternalIdentity, error)
}

// GoogleConfig configures GoogleProvider. The URL fields override Google's
// public endpoints, mainly for tests.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenURL     string
	UserInfoURL  string
	HTTPClient   *http.Client
}

// GoogleProvider exchanges Google authorization codes through the OAuth2 code flow.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewGoogleProvider validates cfg. Missing client credentials are a configuration error.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("%w: google sign-in needs client id, secret and redirect url", shared.ErrConfiguration)
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = googleTokenURL
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = googleUserInfoURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   googleAuthURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: userInfoURL,
		httpClient:  client,
	}, nil
}

// Name identifies the provider in logs and metrics.
func (p *GoogleProvider) Name() string { return "google" }

type googleUserInfo struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// Exchange trades code for a token and reads the userinfo endpoint with it.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (ExternalIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return ExternalIdentity{}, fmt.Errorf("%w: exchange authorization code: %v", shared.ErrInvalidCredentials, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return ExternalIdentity{}, err
	}
	res, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return ExternalIdentity{}, fmt.Errorf("%w: fetch user info: %v", shared.ErrAuthentication, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return ExternalIdentity{}, fmt.Errorf("%w: user info returned %d", shared.ErrAuthentication, res.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&info); err != nil {
		return ExternalIdentity{}, fmt.Errorf("%w: decode user info: %v", shared.ErrAuthentication, err)
	}
	identity := ExternalIdentity{
		Email:         strings.TrimSpace(info.Email),
		EmailVerified: info.EmailVerified == nil || *info.EmailVerified,
		GivenName:     strings.TrimSpace(info.GivenName),
		FamilyName:    strings.TrimSpace(info.FamilyName),
	}
	if identity.Email == "" {
		return ExternalIdentity{}, fmt.Errorf("%w: provider returned no email", shared.ErrAuthentication)
	}
	return identity, nil
}

var _ IdentityProvider = (*GoogleProvider)(nil)
