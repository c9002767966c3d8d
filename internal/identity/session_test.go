package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tally/internal/core"
	"tally/internal/identity"
	idmem "tally/internal/identity/memory"
	storemem "tally/internal/store/memory"
)

var alice = core.User{ID: "u1", DisplayName: "Alice"}

func newSession(t *testing.T) (*identity.Session, *idmem.Provider, *storemem.Store) {
	t.Helper()
	provider := idmem.New(alice)
	st := storemem.New()
	t.Cleanup(func() { st.Close() })
	return identity.NewSession(provider, st, nil), provider, st
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

func TestSignInPopulatesUserAndSnapshots(t *testing.T) {
	ses, _, st := newSession(t)
	ctx := context.Background()

	if _, ok := ses.CurrentUser(); ok {
		t.Fatalf("expected no user before sign-in")
	}

	user, err := ses.SignIn(ctx)
	if err != nil {
		t.Fatalf("sign-in: %v", err)
	}
	if user.ID != alice.ID {
		t.Fatalf("unexpected user: %+v", user)
	}
	if got, ok := ses.CurrentUser(); !ok || got.ID != alice.ID {
		t.Fatalf("current user not set: %+v ok=%v", got, ok)
	}

	if _, err := st.CreateProject(ctx, "Trip", user); err != nil {
		t.Fatalf("create project: %v", err)
	}
	waitFor(t, func() bool { return len(ses.Projects()) == 1 }, "project snapshot")
}

func TestSignInFailureIsRecoverable(t *testing.T) {
	ses, provider, _ := newSession(t)
	ctx := context.Background()

	provider.FailWith(errors.New("user closed the popup"))
	if _, err := ses.SignIn(ctx); !errors.Is(err, identity.ErrSignInFailed) {
		t.Fatalf("expected ErrSignInFailed, got %v", err)
	}
	if _, ok := ses.CurrentUser(); ok {
		t.Fatalf("session should stay unauthenticated after failure")
	}

	provider.FailWith(nil)
	if _, err := ses.SignIn(ctx); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
}

func TestSignOutClearsEverything(t *testing.T) {
	ses, _, st := newSession(t)
	ctx := context.Background()

	user, _ := ses.SignIn(ctx)
	pid, _ := st.CreateProject(ctx, "Trip", user)
	waitFor(t, func() bool { return len(ses.Projects()) == 1 }, "project snapshot")

	if err := ses.SignOut(ctx); err != nil {
		t.Fatalf("sign-out: %v", err)
	}
	if _, ok := ses.CurrentUser(); ok {
		t.Fatalf("user still present after sign-out")
	}
	if len(ses.Projects()) != 0 || len(ses.Expenses()) != 0 {
		t.Fatalf("snapshots not cleared")
	}

	// Subscriptions are gone: further store changes must not reach the
	// signed-out session.
	if err := st.RenameProject(ctx, pid, "Renamed"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if len(ses.Projects()) != 0 {
		t.Fatalf("stale-session data delivered after sign-out")
	}
}

func TestUpdateDisplayName(t *testing.T) {
	ses, provider, _ := newSession(t)
	ctx := context.Background()

	// No-op before sign-in
	if err := ses.UpdateDisplayName(ctx, "Neo"); err != nil {
		t.Fatalf("update before sign-in should be a no-op: %v", err)
	}
	if provider.DisplayName() != "Alice" {
		t.Fatalf("provider name changed while signed out")
	}

	ses.SignIn(ctx)

	// Whitespace-only is a no-op
	if err := ses.UpdateDisplayName(ctx, "   "); err != nil {
		t.Fatalf("whitespace update: %v", err)
	}
	if provider.DisplayName() != "Alice" {
		t.Fatalf("provider name changed on whitespace update")
	}

	if err := ses.UpdateDisplayName(ctx, "Alicia"); err != nil {
		t.Fatalf("update display name: %v", err)
	}
	if provider.DisplayName() != "Alicia" {
		t.Fatalf("provider not updated: %s", provider.DisplayName())
	}
	if user, _ := ses.CurrentUser(); user.DisplayName != "Alicia" {
		t.Fatalf("session user not updated: %+v", user)
	}
}

func TestNameChangeDoesNotBackfillSnapshots(t *testing.T) {
	ses, _, st := newSession(t)
	ctx := context.Background()

	user, _ := ses.SignIn(ctx)
	st.CreateProject(ctx, "Trip", user)
	waitFor(t, func() bool { return len(ses.Projects()) == 1 }, "project snapshot")

	if err := ses.UpdateDisplayName(ctx, "Alicia"); err != nil {
		t.Fatalf("update display name: %v", err)
	}

	// Historical snapshot keeps the name at creation time.
	if got := ses.Projects()[0].CreatorName; got != "Alice" {
		t.Fatalf("creator name backfilled: %q", got)
	}
}

func TestReloadRequiresUser(t *testing.T) {
	ses, _, _ := newSession(t)
	if err := ses.Reload(context.Background()); err != identity.ErrNotSignedIn {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
}
