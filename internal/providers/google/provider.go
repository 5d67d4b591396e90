package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/isfo/attestation-service/internal/config"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// ErrDomainNotAllowed is returned when the Google account is outside the
// configured staff domains or its email is unverified.
var ErrDomainNotAllowed = errors.New("google account not allowed")

// Profile represents the minimal Google user info payload.
type Profile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	HostedDomain  string `json:"hd"`
}

// Provider wraps Google OAuth operations for staff sign-in.
type Provider struct {
	cfg         config.GoogleProviderConfig
	oauthConfig *oauth2.Config
	userInfoURL string
}

// New creates a Provider when Google OAuth is enabled. Returns nil if disabled.
func New(cfg config.GoogleProviderConfig) (*Provider, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("google provider requires client id, secret, and redirect url")
	}

	return &Provider{
		cfg: cfg,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: userInfoURL,
	}, nil
}

// AuthCodeURL constructs the Google authorization URL.
func (p *Provider) AuthCodeURL(state string) string {
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("prompt", "select_account")}
	if len(p.cfg.AllowedDomains) == 1 {
		opts = append(opts, oauth2.SetAuthURLParam("hd", p.cfg.AllowedDomains[0]))
	}
	return p.oauthConfig.AuthCodeURL(state, opts...)
}

// Exchange swaps the authorization code for tokens.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange google oauth code: %w", err)
	}
	return token, nil
}

// FetchProfile obtains the Google user info using the provided token.
func (p *Provider) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	client := p.oauthConfig.Client(ctx, token)
	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch google profile: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("google profile request failed: status=%d", resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode google profile: %w", err)
	}
	if profile.Subject == "" || profile.Email == "" {
		return nil, fmt.Errorf("google profile missing required fields")
	}
	return &profile, nil
}

// Allowed reports whether the profile may sign in as staff: the email must
// be verified and, when domains are configured, belong to one of them.
func (p *Provider) Allowed(profile *Profile) error {
	if !profile.EmailVerified {
		return fmt.Errorf("%w: email not verified", ErrDomainNotAllowed)
	}
	if len(p.cfg.AllowedDomains) == 0 {
		return nil
	}
	_, domain, ok := strings.Cut(strings.ToLower(profile.Email), "@")
	if !ok {
		return fmt.Errorf("%w: malformed email", ErrDomainNotAllowed)
	}
	for _, d := range p.cfg.AllowedDomains {
		if strings.EqualFold(strings.TrimSpace(d), domain) {
			return nil
		}
	}
	return fmt.Errorf("%w: domain %s", ErrDomainNotAllowed, domain)
}
