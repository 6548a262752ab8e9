package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"pointbook/backend/internal/domain"
	"pointbook/backend/internal/store"
)

const (
	customersFile    = "customers.json"
	itemsFile        = "items.json"
	transactionsFile = "transactions.json"
	apiConfigFile    = "api_config.json"
)

// Store persists the ledgers as whole-file JSON documents in a data
// directory. Every mutation rewrites the affected file in full; there is no
// partial write format. All state lives in memory behind one RWMutex, so the
// store is safe for concurrent HTTP handlers.
type Store struct {
	mu           sync.RWMutex
	dir          string
	customers    map[string]domain.Customer
	items        map[string]string
	transactions []domain.Transaction
	apiConfig    domain.APIConfig
}

// customerRecord is the on-disk shape of one customer entry.
type customerRecord struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("jsonfile: data directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonfile: create data dir: %w", err)
	}

	s := &Store{
		dir:          dir,
		customers:    make(map[string]domain.Customer),
		items:        make(map[string]string),
		transactions: make([]domain.Transaction, 0, 64),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	migrated, err := s.loadCustomers()
	if err != nil {
		return err
	}
	if err := readJSONFile(filepath.Join(s.dir, itemsFile), &s.items); err != nil {
		return err
	}
	if s.items == nil {
		s.items = make(map[string]string)
	}
	if err := readJSONFile(filepath.Join(s.dir, transactionsFile), &s.transactions); err != nil {
		return err
	}
	if s.transactions == nil {
		s.transactions = make([]domain.Transaction, 0, 64)
	}
	if err := readJSONFile(filepath.Join(s.dir, apiConfigFile), &s.apiConfig); err != nil {
		return err
	}

	if migrated > 0 {
		log.Printf("[jsonfile] migrated %d legacy customer entries to structured records", migrated)
		if err := s.saveCustomersLocked(); err != nil {
			return fmt.Errorf("jsonfile: persist migrated customers: %w", err)
		}
	}
	return nil
}

// loadCustomers reads customers.json and performs the one-time migration of
// the legacy shape, where each value was a bare integer point balance keyed
// by customer name. Migration happens once at load, not per access.
func (s *Store) loadCustomers() (migrated int, err error) {
	raw := make(map[string]json.RawMessage)
	if err := readJSONFile(filepath.Join(s.dir, customersFile), &raw); err != nil {
		return 0, err
	}

	for id, payload := range raw {
		var points int
		if err := json.Unmarshal(payload, &points); err == nil {
			s.customers[id] = domain.Customer{ID: id, Name: id, Points: points}
			migrated++
			continue
		}
		var record customerRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return 0, fmt.Errorf("jsonfile: customer %q has unrecognized shape: %w", id, err)
		}
		s.customers[id] = domain.Customer{ID: id, Name: record.Name, Points: record.Points}
	}
	return migrated, nil
}

func readJSONFile(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("jsonfile: read %s: %w", filepath.Base(path), err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("jsonfile: decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSONFile rewrites the document atomically: marshal, write to a temp
// file in the same directory, then rename over the target.
func writeJSONFile(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("jsonfile: temp file for %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("jsonfile: write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("jsonfile: close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("jsonfile: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Store) saveCustomersLocked() error {
	records := make(map[string]customerRecord, len(s.customers))
	for id, customer := range s.customers {
		records[id] = customerRecord{Name: customer.Name, Points: customer.Points}
	}
	return writeJSONFile(filepath.Join(s.dir, customersFile), records)
}

func (s *Store) saveItemsLocked() error {
	return writeJSONFile(filepath.Join(s.dir, itemsFile), s.items)
}

func (s *Store) saveTransactionsLocked() error {
	return writeJSONFile(filepath.Join(s.dir, transactionsFile), s.transactions)
}

func (s *Store) saveAPIConfigLocked() error {
	return writeJSONFile(filepath.Join(s.dir, apiConfigFile), s.apiConfig)
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
	if err := s.saveCustomersLocked(); err != nil {
		delete(s.customers, customer.ID)
		return nil, err
	}
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

	previous, existed := s.customers[id]
	customer := previous
	if !existed {
		customer = domain.Customer{ID: id, Name: name}
		if customer.Name == "" {
			customer.Name = id
		}
	}
	customer.Points += points

	s.customers[id] = customer
	if err := s.saveCustomersLocked(); err != nil {
		s.revertCustomerLocked(id, previous, existed)
		return nil, err
	}
	saved := customer
	return &saved, nil
}

func (s *Store) DebitPoints(_ context.Context, id string, points int) (*domain.Customer, error) {
	if id == "" || points < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if points > previous.Points {
		return nil, store.ErrInsufficientPoints
	}

	customer := previous
	customer.Points -= points
	s.customers[id] = customer
	if err := s.saveCustomersLocked(); err != nil {
		s.customers[id] = previous
		return nil, err
	}
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
	if err := s.saveCustomersLocked(); err != nil {
		s.customers[id] = customer
		return err
	}
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

	previous, existed := s.items[item.Code]
	s.items[item.Code] = item.Name
	if err := s.saveItemsLocked(); err != nil {
		if existed {
			s.items[item.Code] = previous
		} else {
			delete(s.items, item.Code)
		}
		return nil, err
	}
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
	for code, name := range s.items {
		if code == term {
			continue
		}
		if strings.Contains(strings.ToLower(name), lowered) {
			matches = append(matches, domain.Item{Code: code, Name: name})
		}
	}
	slices.SortFunc(matches[min(1, len(matches)):], func(a, b domain.Item) int {
		return strings.Compare(a.Code, b.Code)
	})
	return matches, nil
}

func (s *Store) DeleteItem(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, exists := s.items[code]
	if !exists {
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
	if err := s.saveItemsLocked(); err != nil {
		s.items[code] = name
		return err
	}
	return nil
}

func (s *Store) ReplaceItems(_ context.Context, items []domain.Item) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.items
	replacement := make(map[string]string, len(items))
	for _, item := range items {
		if item.Code == "" {
			continue
		}
		replacement[item.Code] = item.Name
	}

	s.items = replacement
	if err := s.saveItemsLocked(); err != nil {
		s.items = previous
		return 0, err
	}
	return len(replacement), nil
}

func (s *Store) AppendTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" || tx.Date == "" || tx.CustomerID == "" || len(tx.Lines) == 0 || tx.Points < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previousCustomer, customerExisted := s.customers[tx.CustomerID]
	customer := previousCustomer
	if !customerExisted {
		customer = domain.Customer{ID: tx.CustomerID, Name: tx.CustomerName}
		if customer.Name == "" {
			customer.Name = tx.CustomerID
		}
	}
	customer.Points += tx.Points

	s.transactions = append(s.transactions, tx)
	s.customers[tx.CustomerID] = customer

	if err := s.saveTransactionsLocked(); err != nil {
		s.transactions = s.transactions[:len(s.transactions)-1]
		s.revertCustomerLocked(tx.CustomerID, previousCustomer, customerExisted)
		return nil, err
	}
	if err := s.saveCustomersLocked(); err != nil {
		s.transactions = s.transactions[:len(s.transactions)-1]
		s.revertCustomerLocked(tx.CustomerID, previousCustomer, customerExisted)
		if saveErr := s.saveTransactionsLocked(); saveErr != nil {
			log.Printf("[jsonfile] WARN: failed to roll back transactions file: %v", saveErr)
		}
		return nil, err
	}

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

	previousCustomer, customerExisted := s.customers[removed.CustomerID]
	if customerExisted {
		customer := previousCustomer
		// Reversal never drives a balance negative: points already redeemed
		// since accrual cannot be clawed back below zero.
		customer.Points = max(0, customer.Points-removed.Points)
		s.customers[removed.CustomerID] = customer
	}

	s.transactions = slices.Delete(slices.Clone(s.transactions), index, index+1)

	if err := s.saveTransactionsLocked(); err != nil {
		s.transactions = slices.Insert(s.transactions, index, removed)
		s.revertCustomerLocked(removed.CustomerID, previousCustomer, customerExisted)
		return nil, err
	}
	if err := s.saveCustomersLocked(); err != nil {
		s.transactions = slices.Insert(s.transactions, index, removed)
		s.revertCustomerLocked(removed.CustomerID, previousCustomer, customerExisted)
		if saveErr := s.saveTransactionsLocked(); saveErr != nil {
			log.Printf("[jsonfile] WARN: failed to roll back transactions file: %v", saveErr)
		}
		return nil, err
	}

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
		// DateLayout strings compare correctly as plain strings.
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

	previous := s.apiConfig
	s.apiConfig = cfg
	if err := s.saveAPIConfigLocked(); err != nil {
		s.apiConfig = previous
		return err
	}
	return nil
}

func (s *Store) revertCustomerLocked(id string, previous domain.Customer, existed bool) {
	if existed {
		s.customers[id] = previous
		return
	}
	delete(s.customers, id)
}
