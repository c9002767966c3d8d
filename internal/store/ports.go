// Package store defines the synchronized store contract: two live
// collections (projects, expenses) mirrored from a source of truth,
// write-through mutations and full-snapshot change notifications.
package store

import (
	"context"
	"errors"

	"tally/internal/core"
)

// Unsubscribe tears down one live subscription. Safe to call more than
// once; after it returns no further snapshots or errors are delivered.
type Unsubscribe func()

// Ports for the persistence boundary.
type (
	// ProjectSubscriber and ExpenseSubscriber open long-lived push
	// subscriptions. onChange receives the full ordered snapshot
	// (created-at descending, newest first) on registration and after
	// every collection change — never a diff. onErr is called at most
	// once and terminates the subscription; the caller owns the retry
	// affordance, no automatic reconnect happens here.
	ProjectSubscriber interface {
		SubscribeProjects(ctx context.Context, onChange func([]core.Project), onErr func(error)) (Unsubscribe, error)
	}

	ExpenseSubscriber interface {
		SubscribeExpenses(ctx context.Context, onChange func([]core.Expense), onErr func(error)) (Unsubscribe, error)
	}

	// Mutator is the write-through surface. Mutations go to the source
	// of truth and never touch local snapshots directly; the next push
	// notification is the only path back. DeleteProjectCascade removes
	// the project and every expense referencing it as one all-or-nothing
	// unit.
	Mutator interface {
		CreateProject(ctx context.Context, name string, creator core.User) (string, error)
		RenameProject(ctx context.Context, id, name string) error
		DeleteProjectCascade(ctx context.Context, id string) error
		CreateExpense(ctx context.Context, e core.Expense) (string, error)
		UpdateExpense(ctx context.Context, id string, e core.Expense) error
		DeleteExpense(ctx context.Context, id string) error
	}

	// Store is the full synchronized-store contract implemented by the
	// memory and sqlite backends.
	Store interface {
		ProjectSubscriber
		ExpenseSubscriber
		Mutator

		// Refresh re-reads a collection and republishes its snapshot to
		// all subscribers. Used when a peer instance reports a change.
		Refresh(ctx context.Context, collection string) error

		Close() error
	}
)

// Collection names used for refresh and change-feed messages.
const (
	CollectionProjects = "projects"
	CollectionExpenses = "expenses"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrStoreClose = errors.New("store closed")
)
