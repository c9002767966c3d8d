// Package memory provides an in-process identity provider for tests
// and local development. Sign-in always succeeds with the configured
// principal.
package memory

import (
	"context"
	"strings"
	"sync"

	"tally/internal/core"
	"tally/internal/identity"
)

var _ identity.Provider = (*Provider)(nil)

type Provider struct {
	mu   sync.Mutex
	user core.User
	fail error
}

func New(user core.User) *Provider {
	return &Provider{user: user}
}

// FailWith makes subsequent sign-ins fail with err. Passing nil
// restores normal behavior.
func (p *Provider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func (p *Provider) SignIn(_ context.Context) (core.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return core.User{}, p.fail
	}
	return p.user, nil
}

func (p *Provider) SignOut(_ context.Context) error {
	return nil
}

func (p *Provider) UpdateDisplayName(_ context.Context, userID, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if userID != p.user.ID {
		return identity.ErrNotSignedIn
	}
	if strings.TrimSpace(name) == "" {
		return nil
	}
	p.user.DisplayName = name
	return nil
}

// DisplayName reports the provider-side name, for assertions.
func (p *Provider) DisplayName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user.DisplayName
}
