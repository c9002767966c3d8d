// Package sqlite persists the two synchronized collections in a local
// SQLite database and drives the same snapshot-notification hubs as the
// memory backend. Every mutation runs in a transaction; the cascade
// delete of a project and its expenses is a single all-or-nothing unit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tally/internal/core"
	"tally/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db *sql.DB

	projectHub *store.Hub[[]core.Project]
	expenseHub *store.Hub[[]core.Expense]
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:         db,
		projectHub: store.NewHub[[]core.Project](),
		expenseHub: store.NewHub[[]core.Expense](),
	}, nil
}

func (s *Store) Close() error {
	s.projectHub.Close()
	s.expenseHub.Close()
	return s.db.Close()
}

func (s *Store) SubscribeProjects(ctx context.Context, onChange func([]core.Project), onErr func(error)) (store.Unsubscribe, error) {
	snap, err := s.projectSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial projects snapshot: %w", err)
	}
	return s.projectHub.Subscribe(snap, onChange, onErr), nil
}

func (s *Store) SubscribeExpenses(ctx context.Context, onChange func([]core.Expense), onErr func(error)) (store.Unsubscribe, error) {
	snap, err := s.expenseSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial expenses snapshot: %w", err)
	}
	return s.expenseHub.Subscribe(snap, onChange, onErr), nil
}

func (s *Store) CreateProject(ctx context.Context, name string, creator core.User) (string, error) {
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

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO projects (id, name, created_by, creator_name, created_at) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.Name, p.CreatedBy, p.CreatorName, p.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("insert project: %w", err)
	}

	s.publishProjects(ctx)
	return p.ID, nil
}

func (s *Store) RenameProject(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.ErrEmptyName
	}

	res, err := s.db.ExecContext(ctx, "UPDATE projects SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("rename project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}

	s.publishProjects(ctx)
	return nil
}

func (s *Store) DeleteProjectCascade(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cascade delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM expenses WHERE project_id = ?", id); err != nil {
		return fmt.Errorf("delete project expenses: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cascade delete: %w", err)
	}

	s.publishProjects(ctx)
	s.publishExpenses(ctx)
	return nil
}

func (s *Store) CreateExpense(ctx context.Context, e core.Expense) (string, error) {
	e.ID = uuid.New().String()
	e.CreatedAt = time.Now().UTC()
	if err := e.Validate(); err != nil {
		return "", err
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM projects WHERE id = ?", e.ProjectID).Scan(&exists); err != nil {
		return "", fmt.Errorf("check project: %w", err)
	}
	if exists == 0 {
		return "", store.ErrNotFound
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, project_id, item, quantity, unit_price_cents, total_price_cents, user_id, user_name, comments, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.Item, e.Quantity, e.UnitPrice.Cents, e.TotalPrice.Cents,
		e.UserID, e.UserName, e.Comments, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("insert expense: %w", err)
	}

	s.publishExpenses(ctx)
	return e.ID, nil
}

func (s *Store) UpdateExpense(ctx context.Context, id string, e core.Expense) error {
	// project_id, user_id and created_at are immutable after creation
	var projectID, userID string
	err := s.db.QueryRowContext(ctx, "SELECT project_id, user_id FROM expenses WHERE id = ?", id).
		Scan(&projectID, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load expense: %w", err)
	}
	e.ID = id
	e.ProjectID = projectID
	e.UserID = userID
	if err := e.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET item = ?, quantity = ?, unit_price_cents = ?, total_price_cents = ?, comments = ?
		 WHERE id = ?`,
		e.Item, e.Quantity, e.UnitPrice.Cents, e.TotalPrice.Cents, e.Comments, id,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}

	s.publishExpenses(ctx)
	return nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}

	s.publishExpenses(ctx)
	return nil
}

func (s *Store) Refresh(ctx context.Context, collection string) error {
	switch collection {
	case store.CollectionProjects:
		snap, err := s.projectSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("refresh projects: %w", err)
		}
		s.projectHub.Publish(snap)
	case store.CollectionExpenses:
		snap, err := s.expenseSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("refresh expenses: %w", err)
		}
		s.expenseHub.Publish(snap)
	}
	return nil
}

func (s *Store) publishProjects(ctx context.Context) {
	snap, err := s.projectSnapshot(ctx)
	if err != nil {
		s.projectHub.Fail(err)
		return
	}
	s.projectHub.Publish(snap)
}

func (s *Store) publishExpenses(ctx context.Context) {
	snap, err := s.expenseSnapshot(ctx)
	if err != nil {
		s.expenseHub.Fail(err)
		return
	}
	s.expenseHub.Publish(snap)
}

func (s *Store) projectSnapshot(ctx context.Context) ([]core.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_by, creator_name, created_at FROM projects ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	out := []core.Project{}
	for rows.Next() {
		var p core.Project
		var createdMs int64
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedBy, &p.CreatorName, &createdMs); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) expenseSnapshot(ctx context.Context) ([]core.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, item, quantity, unit_price_cents, total_price_cents, user_id, user_name, comments, created_at
		 FROM expenses ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		var e core.Expense
		var createdMs int64
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Item, &e.Quantity, &e.UnitPrice.Cents,
			&e.TotalPrice.Cents, &e.UserID, &e.UserName, &e.Comments, &createdMs); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
