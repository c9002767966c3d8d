// Package google implements the identity provider on top of Google
// OAuth. The interactive consent flow runs once through cmd/oauth-init,
// which stores a refreshable token; SignIn exchanges that token for the
// user's profile via the userinfo endpoint.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2v2 "google.golang.org/api/oauth2/v2"
	goption "google.golang.org/api/option"

	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/identity"
)

var _ identity.Provider = (*Provider)(nil)

type Provider struct {
	cfg       *oauth2.Config
	tokenFile string
	// Display-name overrides live beside the token: the userinfo API is
	// read-only, so renames are persisted locally and win over the
	// provider-supplied name.
	profileFile string

	profiles *cache.LRUCache[core.User]
}

// NewFromEnv builds the provider from the same environment surface the
// oauth-init helper uses.
// Required: GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE, and
// GOOGLE_OAUTH_TOKEN_FILE (written by cmd/oauth-init).
// Optional: TALLY_PROFILE_FILE (default "profile.json").
func NewFromEnv(_ context.Context) (*Provider, error) {
	clientJSON := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))
	clientFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"))

	var b []byte
	var err error
	switch {
	case clientJSON != "":
		b = []byte(clientJSON)
	case clientFile != "":
		b, err = os.ReadFile(clientFile)
		if err != nil {
			return nil, fmt.Errorf("read client file: %w", err)
		}
	default:
		return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
	}

	cfg, err := google.ConfigFromJSON(b, oauth2v2.UserinfoProfileScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"))
	if tokenFile == "" {
		tokenFile = "token.json"
	}
	profileFile := strings.TrimSpace(os.Getenv("TALLY_PROFILE_FILE"))
	if profileFile == "" {
		profileFile = "profile.json"
	}

	return &Provider{
		cfg:         cfg,
		tokenFile:   tokenFile,
		profileFile: profileFile,
		profiles:    cache.NewLRUCache[core.User](16, 10*time.Minute),
	}, nil
}

// SignIn loads the stored OAuth token and resolves the user profile.
// A missing or expired token is a recoverable authentication failure:
// the caller should direct the user to re-run the consent flow.
func (p *Provider) SignIn(ctx context.Context) (core.User, error) {
	tok, err := p.loadToken()
	if err != nil {
		return core.User{}, fmt.Errorf("no stored token (run oauth-init): %w", err)
	}

	if user, ok := p.profiles.Get(p.tokenFile); ok {
		return user, nil
	}

	svc, err := oauth2v2.NewService(ctx, goption.WithTokenSource(p.cfg.TokenSource(ctx, tok)))
	if err != nil {
		return core.User{}, fmt.Errorf("userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return core.User{}, fmt.Errorf("fetch userinfo: %w", err)
	}

	user := core.User{ID: info.Id, DisplayName: info.Name}
	if override, ok := p.loadNameOverride(user.ID); ok {
		user.DisplayName = override
	}

	p.profiles.Set(p.tokenFile, user)
	return user, nil
}

func (p *Provider) SignOut(_ context.Context) error {
	p.profiles.Delete(p.tokenFile)
	return nil
}

// UpdateDisplayName records the rename in the local profile file and
// invalidates the cached profile.
func (p *Provider) UpdateDisplayName(_ context.Context, userID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	overrides := p.loadOverrides()
	overrides[userID] = name
	data, err := json.MarshalIndent(overrides, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile overrides: %w", err)
	}
	if err := os.WriteFile(p.profileFile, data, 0600); err != nil {
		return fmt.Errorf("write profile file: %w", err)
	}

	p.profiles.Delete(p.tokenFile)
	return nil
}

func (p *Provider) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(p.tokenFile)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &tok, nil
}

func (p *Provider) loadOverrides() map[string]string {
	overrides := map[string]string{}
	data, err := os.ReadFile(p.profileFile)
	if err != nil {
		return overrides
	}
	_ = json.Unmarshal(data, &overrides)
	return overrides
}

func (p *Provider) loadNameOverride(userID string) (string, bool) {
	name, ok := p.loadOverrides()[userID]
	return name, ok && strings.TrimSpace(name) != ""
}
