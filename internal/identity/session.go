package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/store"
)

// Session binds one authenticated principal to the pair of live
// collection subscriptions. It is constructed explicitly and passed by
// reference, so tests can run any number of isolated sessions.
//
// While a user is signed in both subscriptions are active; sign-out
// tears both down atomically and clears the snapshots. Snapshots are
// written only by the subscription callbacks (single writer) and read
// by everyone else through copying accessors.
type Session struct {
	provider Provider
	st       store.Store
	logger   *log.Logger

	mu       sync.Mutex
	user     *core.User
	unsubs   []store.Unsubscribe
	projects []core.Project
	expenses []core.Expense
	syncErr  error
}

func NewSession(provider Provider, st store.Store, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Session{
		provider: provider,
		st:       st,
		logger:   logger.WithComponent(log.ComponentSession),
	}
}

// SignIn runs the provider flow and, on success, opens both live
// subscriptions. Either both end up active or neither does.
func (s *Session) SignIn(ctx context.Context) (core.User, error) {
	user, err := s.provider.SignIn(ctx)
	if err != nil {
		s.logger.Warn("Sign-in failed", "error", err)
		return core.User{}, fmt.Errorf("%w: %v", ErrSignInFailed, err)
	}

	s.mu.Lock()
	if s.user != nil {
		cur := *s.user
		s.mu.Unlock()
		return cur, nil
	}
	s.user = &user
	s.mu.Unlock()

	if err := s.subscribe(ctx); err != nil {
		s.mu.Lock()
		s.user = nil
		s.mu.Unlock()
		return core.User{}, fmt.Errorf("open subscriptions: %w", err)
	}

	s.logger.Info("User signed in", "user_id", user.ID, "display_name", user.DisplayName)
	return user, nil
}

func (s *Session) subscribe(ctx context.Context) error {
	unsubProjects, err := s.st.SubscribeProjects(ctx, s.onProjects, s.onSyncError)
	if err != nil {
		return fmt.Errorf("projects subscription: %w", err)
	}
	unsubExpenses, err := s.st.SubscribeExpenses(ctx, s.onExpenses, s.onSyncError)
	if err != nil {
		unsubProjects()
		return fmt.Errorf("expenses subscription: %w", err)
	}

	s.mu.Lock()
	s.unsubs = []store.Unsubscribe{unsubProjects, unsubExpenses}
	s.syncErr = nil
	s.mu.Unlock()
	return nil
}

func (s *Session) onProjects(snapshot []core.Project) {
	s.mu.Lock()
	s.projects = snapshot
	s.mu.Unlock()
}

func (s *Session) onExpenses(snapshot []core.Expense) {
	s.mu.Lock()
	s.expenses = snapshot
	s.mu.Unlock()
}

// onSyncError records the terminal subscription error. No automatic
// retry happens; the user-facing surface offers a manual reload.
func (s *Session) onSyncError(err error) {
	s.logger.Error("Live subscription failed", "error", err)
	s.mu.Lock()
	s.syncErr = err
	s.mu.Unlock()
}

// SignOut tears down both subscriptions, clears the snapshots and ends
// the provider session.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	user := s.user
	s.user = nil
	s.projects = nil
	s.expenses = nil
	s.syncErr = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}

	if user == nil {
		return nil
	}
	if err := s.provider.SignOut(ctx); err != nil {
		return fmt.Errorf("provider sign-out: %w", err)
	}
	s.logger.Info("User signed out", "user_id", user.ID)
	return nil
}

// Reload is the manual retry affordance after a sync error: it drops
// the failed subscriptions and opens fresh ones.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	return s.subscribe(ctx)
}

// CurrentUser returns the signed-in user, if any. Callers must treat
// "none" as subscriptions inactive and mutations disabled.
func (s *Session) CurrentUser() (core.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return core.User{}, false
	}
	return *s.user, true
}

// UpdateDisplayName persists a new display name with the provider.
// Empty or whitespace-only names and unauthenticated sessions are
// silent no-ops. Existing CreatorName/UserName snapshots on projects
// and expenses are never backfilled.
func (s *Session) UpdateDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil
	}
	userID := s.user.ID
	s.mu.Unlock()

	if err := s.provider.UpdateDisplayName(ctx, userID, name); err != nil {
		return fmt.Errorf("update display name: %w", err)
	}

	s.mu.Lock()
	if s.user != nil && s.user.ID == userID {
		s.user.DisplayName = name
	}
	s.mu.Unlock()

	s.logger.Info("Display name updated", "user_id", userID)
	return nil
}

// Projects returns a copy of the latest projects snapshot.
func (s *Session) Projects() []core.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Project, len(s.projects))
	copy(out, s.projects)
	return out
}

// Expenses returns a copy of the latest expenses snapshot.
func (s *Session) Expenses() []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, len(s.expenses))
	copy(out, s.expenses)
	return out
}

// SyncErr reports the terminal subscription error, if one occurred.
func (s *Session) SyncErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncErr
}
