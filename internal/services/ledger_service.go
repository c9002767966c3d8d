// Package services orchestrates ledger mutations: validation first,
// then the write-through store call, then the cross-instance change
// notification. Local snapshots are never touched here; the store's
// push notification is the only way state comes back.
package services

import (
	"context"
	"fmt"
	"strings"

	"tally/internal/core"
	"tally/internal/identity"
	"tally/internal/log"
	"tally/internal/store"
)

// ChangePublisher broadcasts collection changes to peer instances.
// Satisfied by the AMQP client; nil disables the feed.
type ChangePublisher interface {
	PublishCollectionChanged(ctx context.Context, collection string) error
}

// ExpenseInput is the raw expense form submission before coercion.
type ExpenseInput struct {
	ProjectID string
	Item      string
	Quantity  string
	Amount    string
	PriceMode string
	Comments  string
}

type LedgerService struct {
	session *identity.Session
	st      store.Store
	feed    ChangePublisher
	logger  *log.Logger
}

func NewLedgerService(session *identity.Session, st store.Store, feed ChangePublisher, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &LedgerService{
		session: session,
		st:      st,
		feed:    feed,
		logger:  logger.WithComponent(log.ComponentLedger),
	}
}

// CreateProject validates and writes a new project. The creator's
// display name is snapshotted into the document at this moment.
func (s *LedgerService) CreateProject(ctx context.Context, name string) (string, error) {
	user, ok := s.session.CurrentUser()
	if !ok {
		return "", identity.ErrNotSignedIn
	}
	if strings.TrimSpace(name) == "" {
		// Rejected before any write is attempted.
		return "", core.ErrEmptyName
	}

	id, err := s.st.CreateProject(ctx, name, user)
	if err != nil {
		return "", fmt.Errorf("create project: %w", err)
	}

	s.logger.InfoContext(ctx, "Project created", log.FieldProjectID, id, log.FieldUserID, user.ID)
	s.publishChange(ctx, store.CollectionProjects)
	return id, nil
}

func (s *LedgerService) RenameProject(ctx context.Context, id, name string) error {
	if _, ok := s.session.CurrentUser(); !ok {
		return identity.ErrNotSignedIn
	}
	if strings.TrimSpace(name) == "" {
		return core.ErrEmptyName
	}

	if err := s.st.RenameProject(ctx, id, name); err != nil {
		return fmt.Errorf("rename project: %w", err)
	}

	s.publishChange(ctx, store.CollectionProjects)
	return nil
}

// DeleteProjectCascade removes the project and all its expenses as one
// atomic unit, then notifies peers about both collections.
func (s *LedgerService) DeleteProjectCascade(ctx context.Context, id string) error {
	if _, ok := s.session.CurrentUser(); !ok {
		return identity.ErrNotSignedIn
	}

	if err := s.st.DeleteProjectCascade(ctx, id); err != nil {
		return fmt.Errorf("cascade delete project: %w", err)
	}

	s.logger.InfoContext(ctx, "Project deleted with expenses", log.FieldProjectID, id)
	s.publishChange(ctx, store.CollectionProjects)
	s.publishChange(ctx, store.CollectionExpenses)
	return nil
}

// CreateExpense coerces the form input, derives the pricing pair and
// writes the expense with the creator snapshot.
func (s *LedgerService) CreateExpense(ctx context.Context, in ExpenseInput) (string, error) {
	user, ok := s.session.CurrentUser()
	if !ok {
		return "", identity.ErrNotSignedIn
	}

	expense, err := buildExpense(in, user)
	if err != nil {
		return "", err
	}

	id, err := s.st.CreateExpense(ctx, expense)
	if err != nil {
		return "", fmt.Errorf("create expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense created",
		log.FieldExpenseID, id,
		log.FieldProjectID, expense.ProjectID,
		log.FieldTotalCents, expense.TotalPrice.Cents)
	s.publishChange(ctx, store.CollectionExpenses)
	return id, nil
}

func (s *LedgerService) UpdateExpense(ctx context.Context, id string, in ExpenseInput) error {
	user, ok := s.session.CurrentUser()
	if !ok {
		return identity.ErrNotSignedIn
	}

	expense, err := buildExpense(in, user)
	if err != nil {
		return err
	}

	if err := s.st.UpdateExpense(ctx, id, expense); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}

	s.publishChange(ctx, store.CollectionExpenses)
	return nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, id string) error {
	if _, ok := s.session.CurrentUser(); !ok {
		return identity.ErrNotSignedIn
	}

	if err := s.st.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense deleted", log.FieldExpenseID, id)
	s.publishChange(ctx, store.CollectionExpenses)
	return nil
}

// buildExpense applies the form coercion rules: quantity defaults to 1
// when blank and to 0 when unparseable; a blank amount is a validation
// failure, an unparseable one coerces to zero.
func buildExpense(in ExpenseInput, user core.User) (core.Expense, error) {
	if strings.TrimSpace(in.Item) == "" {
		return core.Expense{}, core.ErrEmptyItem
	}
	if strings.TrimSpace(in.Amount) == "" {
		return core.Expense{}, core.ErrInvalidAmount
	}

	quantity := 1.0
	if strings.TrimSpace(in.Quantity) != "" {
		quantity = core.ParseQuantity(in.Quantity)
	}

	cents, err := core.ParseDecimalToCents(in.Amount)
	if err != nil {
		cents = 0
	}

	mode := core.PriceTotal
	if in.PriceMode == string(core.PriceUnit) {
		mode = core.PriceUnit
	}
	pricing := core.DerivePricing(core.Money{Cents: cents}, quantity, mode)

	return core.Expense{
		ProjectID:  in.ProjectID,
		Item:       strings.TrimSpace(in.Item),
		Quantity:   quantity,
		UnitPrice:  pricing.UnitPrice,
		TotalPrice: pricing.TotalPrice,
		UserID:     user.ID,
		UserName:   user.DisplayName,
		Comments:   strings.TrimSpace(in.Comments),
	}, nil
}

// publishChange is fire-and-forget: a broken feed must not fail the
// mutation, the local store already notified its own subscribers.
func (s *LedgerService) publishChange(ctx context.Context, collection string) {
	if s.feed == nil {
		return
	}
	if err := s.feed.PublishCollectionChanged(ctx, collection); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish change notification",
			log.FieldCollection, collection,
			log.FieldError, err)
	}
}
