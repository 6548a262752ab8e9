package store

import (
	"context"
	"errors"

	"pointbook/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInUse              = errors.New("record in use")
)

// Repository is the persistence boundary shared by the jsonfile, postgres and
// in-memory backends. Operations that touch both the transaction ledger and a
// customer balance (AppendTransaction, DeleteTransaction) must apply both
// changes or neither.
type Repository interface {
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	// UpsertCustomer creates the customer or renames an existing one,
	// preserving the current point balance.
	UpsertCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	// FindCustomersByName matches names case-insensitively and exactly.
	// Duplicate names across distinct IDs are allowed; all matches are returned.
	FindCustomersByName(ctx context.Context, name string) ([]domain.Customer, error)
	// CreditPoints adds points, creating the customer at zero balance first
	// when the ID is unknown.
	CreditPoints(ctx context.Context, id string, name string, points int) (*domain.Customer, error)
	// DebitPoints subtracts points. Fails with ErrInsufficientPoints when the
	// amount exceeds the balance, leaving the balance unchanged.
	DebitPoints(ctx context.Context, id string, points int) (*domain.Customer, error)
	// DeleteCustomer fails with ErrInUse while the balance is positive.
	DeleteCustomer(ctx context.Context, id string) error

	ListItems(ctx context.Context) ([]domain.Item, error)
	GetItem(ctx context.Context, code string) (*domain.Item, error)
	UpsertItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	// FindItems returns the exact-code match plus case-insensitive
	// name-substring matches, deduplicated.
	FindItems(ctx context.Context, term string) ([]domain.Item, error)
	// DeleteItem fails with ErrInUse when any transaction line references the code.
	DeleteItem(ctx context.Context, code string) error
	// ReplaceItems discards the prior catalog entirely (ERP sync).
	ReplaceItems(ctx context.Context, items []domain.Item) (int, error)

	// AppendTransaction stores the record and credits the customer's points
	// in the same unit of work.
	AppendTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	// DeleteTransaction removes the record and reverses the stored points in
	// the same unit of work, returning the removed record.
	DeleteTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	// ListTransactions returns matches sorted by date descending.
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)

	GetAPIConfig(ctx context.Context) (*domain.APIConfig, error)
	SaveAPIConfig(ctx context.Context, cfg domain.APIConfig) error
}
