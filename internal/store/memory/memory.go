package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"pointbook/backend/internal/domain"
	"pointbook/backend/internal/store"
)

// Store is a map-backed Repository used for dev mode and tests.
type Store struct {
	mu           sync.RWMutex
	customers    map[string]domain.Customer
	items        map[string]string
	transactions []domain.Transaction
	apiConfig    domain.APIConfig
}

func New() *Store {
	return &Store{
		customers:    make(map[string]domain.Customer),
		items:        make(map[string]string),
		transactions: make([]domain.Transaction, 0, 32),
	}
}

// NewSeeded returns a store preloaded with a small catalog and customer set.
func NewSeeded() *Store {
	s := New()

	for _, item := range []domain.Item{
		{Code: "A-100", Name: "Apple Box"},
		{Code: "A-200", Name: "Green Apple"},
		{Code: "B-100", Name: "Banana Bundle"},
		{Code: "R-010", Name: "Rice 10kg"},
		{Code: "R-020", Name: "Rice 20kg"},
		{Code: "M-001", Name: "Milk 1L"},
	} {
		s.items[item.Code] = item.Name
	}

	for _, customer := range []domain.Customer{
		{ID: "010-1234-5678", Name: "Kim", Points: 120},
		{ID: "010-9876-5432", Name: "Lee", Points: 0},
		{ID: "120-81-00123", Name: "Daehan Trading", Points: 455},
	} {
		s.customers[customer.ID] = customer
	}

	return s
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, customer := range s.customers {
		customers = append(customers, customer)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.ID, b.ID)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := customer
	return &found, nil
}

func (s *Store) UpsertCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.customers[customer.ID]; exists {
		customer.Points = existing.Points
	} else if customer.Points < 0 {
		return nil, store.ErrInvalidInput
	}
	s.customers[customer.ID] = customer
	saved := customer
	return &saved, nil
}

func (s *Store) FindCustomersByName(_ context.Context, name string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Customer, 0, 2)
	for _, customer := range s.customers {
		if strings.EqualFold(customer.Name, name) {
			matches = append(matches, customer)
		}
	}
	slices.SortFunc(matches, func(a, b domain.Customer) int {
		return strings.Compare(a.ID, b.ID)
	})
	return matches, nil
}

func (s *Store) CreditPoints(_ context.Context, id string, name string, points int) (*domain.Customer, error) {
	if id == "" || points < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customers[id]
	if !exists {
		customer = domain.Customer{ID: id, Name: name}
		if customer.Name == "" {
			customer.Name = id
		}
	}
	customer.Points += points
	s.customers[id] = customer
	saved := customer
	return &saved, nil
}

func (s *Store) DebitPoints(_ context.Context, id string, points int) (*domain.Customer, error) {
	if id == "" || points < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if points > customer.Points {
		return nil, store.ErrInsufficientPoints
	}
	customer.Points -= points
	s.customers[id] = customer
	saved := customer
	return &saved, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customers[id]
	if !exists {
		return store.ErrNotFound
	}
	if customer.Points > 0 {
		return store.ErrInUse
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.items))
	for code, name := range s.items {
		items = append(items, domain.Item{Code: code, Name: name})
	}
	slices.SortFunc(items, func(a, b domain.Item) int {
		return strings.Compare(a.Code, b.Code)
	})
	return items, nil
}

func (s *Store) GetItem(_ context.Context, code string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, exists := s.items[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &domain.Item{Code: code, Name: name}, nil
}

func (s *Store) UpsertItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if item.Code == "" || item.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[item.Code] = item.Name
	saved := item
	return &saved, nil
}

func (s *Store) FindItems(_ context.Context, term string) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Item, 0, 4)
	if name, exists := s.items[term]; exists {
		matches = append(matches, domain.Item{Code: term, Name: name})
	}

	lowered := strings.ToLower(term)
	rest := make([]domain.Item, 0, 4)
	for code, name := range s.items {
		if code == term {
			continue
		}
		if strings.Contains(strings.ToLower(name), lowered) {
			rest = append(rest, domain.Item{Code: code, Name: name})
		}
	}
	slices.SortFunc(rest, func(a, b domain.Item) int {
		return strings.Compare(a.Code, b.Code)
	})
	return append(matches, rest...), nil
}

func (s *Store) DeleteItem(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[code]; !exists {
		return store.ErrNotFound
	}
	for _, tx := range s.transactions {
		for _, line := range tx.Lines {
			if line.ItemCode == code {
				return store.ErrInUse
			}
		}
	}
	delete(s.items, code)
	return nil
}

func (s *Store) ReplaceItems(_ context.Context, items []domain.Item) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replacement := make(map[string]string, len(items))
	for _, item := range items {
		if item.Code == "" {
			continue
		}
		replacement[item.Code] = item.Name
	}
	s.items = replacement
	return len(replacement), nil
}

func (s *Store) AppendTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" || tx.Date == "" || tx.CustomerID == "" || len(tx.Lines) == 0 || tx.Points < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customers[tx.CustomerID]
	if !exists {
		customer = domain.Customer{ID: tx.CustomerID, Name: tx.CustomerName}
		if customer.Name == "" {
			customer.Name = tx.CustomerID
		}
	}
	customer.Points += tx.Points
	s.customers[tx.CustomerID] = customer
	s.transactions = append(s.transactions, tx)

	appended := tx
	return &appended, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	if id == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := slices.IndexFunc(s.transactions, func(tx domain.Transaction) bool {
		return tx.ID == id
	})
	if index < 0 {
		return nil, store.ErrNotFound
	}
	removed := s.transactions[index]

	if customer, exists := s.customers[removed.CustomerID]; exists {
		customer.Points = max(0, customer.Points-removed.Points)
		s.customers[removed.CustomerID] = customer
	}
	s.transactions = slices.Delete(s.transactions, index, index+1)

	return &removed, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.transactions {
		if tx.ID == id {
			found := tx
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if filter.CustomerID != "" && tx.CustomerID != filter.CustomerID {
			continue
		}
		if filter.From != "" && tx.Date < filter.From {
			continue
		}
		if filter.To != "" && tx.Date > filter.To {
			continue
		}
		matches = append(matches, tx)
	}
	slices.SortFunc(matches, func(a, b domain.Transaction) int {
		if a.Date != b.Date {
			return strings.Compare(b.Date, a.Date)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return matches, nil
}

func (s *Store) GetAPIConfig(_ context.Context) (*domain.APIConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := s.apiConfig
	return &cfg, nil
}

func (s *Store) SaveAPIConfig(_ context.Context, cfg domain.APIConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apiConfig = cfg
	return nil
}
