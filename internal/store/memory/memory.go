// Package memory provides an in-process implementation of the
// synchronized store. It is the default backend and the one the test
// suite runs against; the change-notification semantics match the
// sqlite backend exactly.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu       sync.Mutex
	projects map[string]core.Project
	expenses map[string]core.Expense
	closed   bool

	projectHub *store.Hub[[]core.Project]
	expenseHub *store.Hub[[]core.Expense]
}

func New() *Store {
	return &Store{
		projects:   make(map[string]core.Project),
		expenses:   make(map[string]core.Expense),
		projectHub: store.NewHub[[]core.Project](),
		expenseHub: store.NewHub[[]core.Expense](),
	}
}

func (s *Store) SubscribeProjects(_ context.Context, onChange func([]core.Project), onErr func(error)) (store.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrStoreClose
	}
	return s.projectHub.Subscribe(s.projectSnapshot(), onChange, onErr), nil
}

func (s *Store) SubscribeExpenses(_ context.Context, onChange func([]core.Expense), onErr func(error)) (store.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrStoreClose
	}
	return s.expenseHub.Subscribe(s.expenseSnapshot(), onChange, onErr), nil
}

func (s *Store) CreateProject(_ context.Context, name string, creator core.User) (string, error) {
	p := core.Project{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(name),
		CreatedBy:   creator.ID,
		CreatorName: creator.DisplayName,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", store.ErrStoreClose
	}
	s.projects[p.ID] = p
	snap := s.projectSnapshot()
	s.mu.Unlock()

	s.projectHub.Publish(snap)
	return p.ID, nil
}

func (s *Store) RenameProject(_ context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.ErrEmptyName
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrStoreClose
	}
	p, ok := s.projects[id]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	p.Name = name
	s.projects[id] = p
	snap := s.projectSnapshot()
	s.mu.Unlock()

	s.projectHub.Publish(snap)
	return nil
}

// DeleteProjectCascade removes the project and every expense that
// references it under a single lock acquisition, so no observer can
// see the project gone with its expenses still present or vice versa.
func (s *Store) DeleteProjectCascade(_ context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrStoreClose
	}
	if _, ok := s.projects[id]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(s.projects, id)
	for eid, e := range s.expenses {
		if e.ProjectID == id {
			delete(s.expenses, eid)
		}
	}
	pSnap := s.projectSnapshot()
	eSnap := s.expenseSnapshot()
	s.mu.Unlock()

	s.projectHub.Publish(pSnap)
	s.expenseHub.Publish(eSnap)
	return nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (string, error) {
	e.ID = uuid.New().String()
	e.CreatedAt = time.Now().UTC()
	if err := e.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", store.ErrStoreClose
	}
	if _, ok := s.projects[e.ProjectID]; !ok {
		s.mu.Unlock()
		return "", store.ErrNotFound
	}
	s.expenses[e.ID] = e
	snap := s.expenseSnapshot()
	s.mu.Unlock()

	s.expenseHub.Publish(snap)
	return e.ID, nil
}

// UpdateExpense replaces the editable fields of an existing expense.
// ProjectID, the creator snapshot and CreatedAt are immutable after
// creation.
func (s *Store) UpdateExpense(_ context.Context, id string, e core.Expense) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrStoreClose
	}
	cur, ok := s.expenses[id]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	e.ID = cur.ID
	e.ProjectID = cur.ProjectID
	e.UserID = cur.UserID
	e.UserName = cur.UserName
	e.CreatedAt = cur.CreatedAt
	if err := e.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.expenses[id] = e
	snap := s.expenseSnapshot()
	s.mu.Unlock()

	s.expenseHub.Publish(snap)
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrStoreClose
	}
	if _, ok := s.expenses[id]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(s.expenses, id)
	snap := s.expenseSnapshot()
	s.mu.Unlock()

	s.expenseHub.Publish(snap)
	return nil
}

func (s *Store) Refresh(_ context.Context, collection string) error {
	s.mu.Lock()
	var pSnap []core.Project
	var eSnap []core.Expense
	switch collection {
	case store.CollectionProjects:
		pSnap = s.projectSnapshot()
	case store.CollectionExpenses:
		eSnap = s.expenseSnapshot()
	default:
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if pSnap != nil {
		s.projectHub.Publish(pSnap)
	}
	if eSnap != nil {
		s.expenseHub.Publish(eSnap)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.projectHub.Close()
	s.expenseHub.Close()
	return nil
}

// callers must hold s.mu
func (s *Store) projectSnapshot() []core.Project {
	out := make([]core.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	store.SortProjects(out)
	return out
}

// callers must hold s.mu
func (s *Store) expenseSnapshot() []core.Expense {
	out := make([]core.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		out = append(out, e)
	}
	store.SortExpenses(out)
	return out
}
