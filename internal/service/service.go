package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"pointbook/backend/internal/domain"
	"pointbook/backend/internal/erp"
	"pointbook/backend/internal/pricing"
	"pointbook/backend/internal/store"
	"pointbook/backend/internal/xid"
)

// Service implements the ledger operations on top of a Repository and the
// ERP client. The active ERP session is process-wide state guarded by mu;
// it is created on login, dropped on logout, and invalidated when the ERP
// rejects it.
type Service struct {
	repo store.Repository
	erp  *erp.Client

	mu      sync.Mutex
	session *erp.Session
}

func New(repo store.Repository, erpClient *erp.Client) *Service {
	return &Service{
		repo: repo,
		erp:  erpClient,
	}
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) RegisterCustomer(ctx context.Context, req domain.CustomerUpsertRequest) (*domain.Customer, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	if req.ID == "" || req.Name == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.UpsertCustomer(ctx, domain.Customer{ID: req.ID, Name: req.Name})
}

func (s *Service) FindCustomers(ctx context.Context, name string) ([]domain.Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.FindCustomersByName(ctx, name)
}

func (s *Service) RedeemPoints(ctx context.Context, id string, points int) (*domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" || points <= 0 {
		return nil, store.ErrInvalidInput
	}
	return s.repo.DebitPoints(ctx, id, points)
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeleteCustomer(ctx, id)
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) RegisterItem(ctx context.Context, req domain.ItemUpsertRequest) (*domain.Item, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if req.Code == "" || req.Name == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.UpsertItem(ctx, domain.Item{Code: req.Code, Name: req.Name})
}

func (s *Service) FindItems(ctx context.Context, term string) ([]domain.Item, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.FindItems(ctx, term)
}

func (s *Service) DeleteItem(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeleteItem(ctx, code)
}

// buildTransaction validates the request and derives every stored amount.
// Fully blank line rows are skipped; a non-blank row that fails validation
// rejects the whole request.
func (s *Service) buildTransaction(ctx context.Context, req domain.TransactionCreateRequest) (*domain.Transaction, error) {
	req.Date = strings.TrimSpace(req.Date)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)

	if req.Date == "" || req.CustomerID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, err := time.Parse(domain.DateLayout, req.Date); err != nil {
		return nil, fmt.Errorf("%w: date must be %s", store.ErrInvalidInput, domain.DateLayout)
	}

	lines := make([]domain.TransactionLine, 0, len(req.Lines))
	amounts := make([]pricing.LineAmounts, 0, len(req.Lines))
	for _, in := range req.Lines {
		in.ItemCode = strings.TrimSpace(in.ItemCode)
		if in.ItemCode == "" && in.Quantity == 0 && in.Price == 0 {
			continue
		}
		if in.ItemCode == "" || in.Quantity <= 0 || in.Price <= 0 {
			return nil, fmt.Errorf("%w: line items need item code, quantity > 0 and price > 0", store.ErrInvalidInput)
		}

		item, err := s.repo.GetItem(ctx, in.ItemCode)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown item code %q", store.ErrNotFound, in.ItemCode)
			}
			return nil, err
		}

		la := pricing.Line(in.Quantity, in.Price)
		lines = append(lines, domain.TransactionLine{
			ItemCode:    item.Code,
			ItemName:    item.Name,
			Quantity:    in.Quantity,
			Price:       in.Price,
			SupplyValue: la.SupplyValue,
			VAT:         la.VAT,
			Total:       la.Total,
		})
		amounts = append(amounts, la)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: transaction needs at least one line item", store.ErrInvalidInput)
	}

	totals := pricing.Sum(amounts)
	customerName := req.CustomerName
	if customerName == "" {
		if existing, err := s.repo.GetCustomer(ctx, req.CustomerID); err == nil {
			customerName = existing.Name
		} else {
			customerName = req.CustomerID
		}
	}

	return &domain.Transaction{
		ID:               xid.New("tx"),
		Date:             req.Date,
		CustomerID:       req.CustomerID,
		CustomerName:     customerName,
		Lines:            lines,
		TotalSupplyValue: totals.SupplyValue,
		TotalVAT:         totals.VAT,
		TotalAmount:      totals.Total,
		Points:           pricing.AccruePoints(totals.Total),
		CreatedAt:        time.Now().UTC(),
	}, nil
}

func (s *Service) RegisterTransaction(ctx context.Context, req domain.TransactionCreateRequest) (*domain.Transaction, error) {
	record, err := s.buildTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.repo.AppendTransaction(ctx, *record)
}

func (s *Service) DeleteTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.DeleteTransaction(ctx, id)
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.GetTransaction(ctx, id)
}

func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	for _, bound := range []string{filter.From, filter.To} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse(domain.DateLayout, bound); err != nil {
			return nil, fmt.Errorf("%w: date bounds must be %s", store.ErrInvalidInput, domain.DateLayout)
		}
	}
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) GetAPIConfig(ctx context.Context) (*domain.APIConfig, error) {
	return s.repo.GetAPIConfig(ctx)
}

func (s *Service) SaveAPIConfig(ctx context.Context, cfg domain.APIConfig) error {
	cfg.AccountCode = strings.TrimSpace(cfg.AccountCode)
	cfg.UserID = strings.TrimSpace(cfg.UserID)
	cfg.TestKey = strings.TrimSpace(cfg.TestKey)
	cfg.LiveKey = strings.TrimSpace(cfg.LiveKey)
	if cfg.AccountCode == "" || cfg.UserID == "" {
		return store.ErrInvalidInput
	}
	if cfg.TestKey == "" && cfg.LiveKey == "" {
		return store.ErrInvalidInput
	}
	return s.repo.SaveAPIConfig(ctx, cfg)
}

// ERPLogin opens a new ERP session using the stored credentials and
// replaces any previous one.
func (s *Service) ERPLogin(ctx context.Context, test bool) (*erp.Session, error) {
	cfg, err := s.repo.GetAPIConfig(ctx)
	if err != nil {
		return nil, err
	}

	session, err := s.erp.Login(ctx, *cfg, test)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	log.Printf("[service] erp session opened zone=%s test=%t", session.Zone, session.Test)
	return session, nil
}

func (s *Service) ERPLogout(ctx context.Context) {
	s.mu.Lock()
	had := s.session != nil
	s.session = nil
	s.mu.Unlock()

	if had {
		log.Printf("[service] erp session closed")
	}
}

func (s *Service) ERPSession(ctx context.Context) *erp.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Service) currentSession() (*erp.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, erp.ErrNoSession
	}
	return s.session, nil
}

// dropSessionOnAuthFailure forgets the active session when the ERP no
// longer accepts it, so the next call fails with ErrNoSession instead of
// retrying a dead session id.
func (s *Service) dropSessionOnAuthFailure(err error) {
	var authErr *erp.AuthError
	if !errors.As(err, &authErr) {
		return
	}
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	log.Printf("[service] WARN: erp session invalidated: %v", err)
}

// SyncProducts pulls the ERP product catalog and replaces the local item
// catalog with it.
func (s *Service) SyncProducts(ctx context.Context) (int, error) {
	session, err := s.currentSession()
	if err != nil {
		return 0, err
	}

	items, err := s.erp.FetchProducts(ctx, session)
	if err != nil {
		s.dropSessionOnAuthFailure(err)
		return 0, err
	}

	count, err := s.repo.ReplaceItems(ctx, items)
	if err != nil {
		return 0, err
	}
	log.Printf("[service] product sync replaced catalog with %d items", count)
	return count, nil
}

// SubmitSale pushes the transaction to the ERP first and appends it to the
// local ledger only after the ERP accepted it. A rejected submission leaves
// the ledger and the customer's points untouched.
func (s *Service) SubmitSale(ctx context.Context, req domain.TransactionCreateRequest) (*domain.SaleSubmitResponse, error) {
	session, err := s.currentSession()
	if err != nil {
		return nil, err
	}

	record, err := s.buildTransaction(ctx, req)
	if err != nil {
		return nil, err
	}

	count, err := s.erp.SubmitSale(ctx, session, *record)
	if err != nil {
		s.dropSessionOnAuthFailure(err)
		return nil, err
	}

	appended, err := s.repo.AppendTransaction(ctx, *record)
	if err != nil {
		// The voucher exists remotely but the local append failed. Keep
		// the error loud so the ledgers can be reconciled by hand.
		return nil, fmt.Errorf("sale accepted by erp but local append failed: %w", err)
	}

	return &domain.SaleSubmitResponse{
		SuccessCount: count,
		Transaction:  *appended,
	}, nil
}
