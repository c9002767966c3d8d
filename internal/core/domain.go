package core

import (
	"errors"
	"strings"
	"time"
)

const (
	// PriceTotal means the form amount is the total for the whole line.
	PriceTotal PriceMode = "total"
	// PriceUnit means the form amount is the price of a single unit.
	PriceUnit PriceMode = "unit"
)

// AnonymousUser is the display name used for expenses whose creator
// name was never recorded.
const AnonymousUser = "Anonymous"

type (
	PriceMode string

	// User is the authenticated principal as reported by the identity
	// provider. DisplayName is mutable; ID is stable.
	User struct {
		ID          string
		DisplayName string
	}

	// Project groups expenses into one sheet with a single total.
	// CreatorName is a snapshot of the creator's display name at
	// creation time and is never refreshed on profile rename.
	Project struct {
		ID          string
		Name        string
		CreatedBy   string
		CreatorName string
		CreatedAt   time.Time
	}

	// Expense is one monetary line item belonging to exactly one project.
	// UnitPrice and TotalPrice are derived once at write time by
	// DerivePricing and never re-derived afterwards.
	Expense struct {
		ID         string
		ProjectID  string
		Item       string
		Quantity   float64
		UnitPrice  Money
		TotalPrice Money
		UserID     string
		UserName   string
		Comments   string
		CreatedAt  time.Time
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyName       = errors.New("empty project name")
	ErrEmptyItem       = errors.New("empty item description")
	ErrMissingProject  = errors.New("missing project id")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrMissingUser     = errors.New("missing user id")
)

func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if len(p.Name) > 200 {
		return errors.New("project name too long (max 200 characters)")
	}
	if strings.TrimSpace(p.CreatedBy) == "" {
		return ErrMissingUser
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.ProjectID) == "" {
		return ErrMissingProject
	}
	if strings.TrimSpace(e.Item) == "" {
		return ErrEmptyItem
	}
	if len(e.Item) > 200 {
		return errors.New("item description too long (max 200 characters)")
	}
	if e.Quantity < 0 {
		return ErrInvalidQuantity
	}
	if e.UnitPrice.Cents < 0 || e.TotalPrice.Cents < 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.UserID) == "" {
		return ErrMissingUser
	}
	return nil
}

// CreatorLabel returns the display name to show for this expense,
// falling back to a fixed placeholder when none was recorded.
func (e Expense) CreatorLabel() string {
	if strings.TrimSpace(e.UserName) == "" {
		return AnonymousUser
	}
	return e.UserName
}
