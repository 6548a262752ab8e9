package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pointbook/backend/internal/domain"
	"pointbook/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			tx_date TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			lines JSONB NOT NULL,
			total_supply_value DOUBLE PRECISION NOT NULL,
			total_vat DOUBLE PRECISION NOT NULL,
			total_amount DOUBLE PRECISION NOT NULL,
			points BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_customer_date
			ON transactions (customer_id, tx_date DESC)`,
		`CREATE TABLE IF NOT EXISTS api_config (
			id INT PRIMARY KEY CHECK (id = 1),
			account_code TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			test_key TEXT NOT NULL DEFAULT '',
			live_key TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, points
		FROM customers
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Points); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, points
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Points)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpsertCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.Points < 0 {
		return nil, store.ErrInvalidInput
	}

	var saved domain.Customer
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (id, name, points)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, points
	`, customer.ID, customer.Name, customer.Points).Scan(&saved.ID, &saved.Name, &saved.Points)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) FindCustomersByName(ctx context.Context, name string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, points
		FROM customers
		WHERE lower(name) = lower($1)
		ORDER BY id
	`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]domain.Customer, 0, 2)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Points); err != nil {
			return nil, err
		}
		matches = append(matches, c)
	}
	return matches, rows.Err()
}

func (s *Store) CreditPoints(ctx context.Context, id string, name string, points int) (*domain.Customer, error) {
	if id == "" || points < 0 {
		return nil, store.ErrInvalidInput
	}
	if name == "" {
		name = id
	}

	var saved domain.Customer
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (id, name, points)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET points = customers.points + EXCLUDED.points
		RETURNING id, name, points
	`, id, name, points).Scan(&saved.ID, &saved.Name, &saved.Points)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) DebitPoints(ctx context.Context, id string, points int) (*domain.Customer, error) {
	if id == "" || points < 0 {
		return nil, store.ErrInvalidInput
	}

	var saved domain.Customer
	err := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET points = points - $2
		WHERE id = $1 AND points >= $2
		RETURNING id, name, points
	`, id, points).Scan(&saved.ID, &saved.Name, &saved.Points)
	if err == nil {
		return &saved, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// Distinguish an unknown customer from an insufficient balance.
	if _, getErr := s.GetCustomer(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, store.ErrInsufficientPoints
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM customers
		WHERE id = $1 AND points = 0
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, getErr := s.GetCustomer(ctx, id); getErr != nil {
			return getErr
		}
		return store.ErrInUse
	}
	return nil
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name
		FROM items
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 128)
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.Code, &item.Name); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetItem(ctx context.Context, code string) (*domain.Item, error) {
	var item domain.Item
	err := s.db.QueryRowContext(ctx, `
		SELECT code, name
		FROM items
		WHERE code = $1
	`, code).Scan(&item.Code, &item.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.Code == "" || item.Name == "" {
		return nil, store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (code, name)
		VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
	`, item.Code, item.Name)
	if err != nil {
		return nil, err
	}
	saved := item
	return &saved, nil
}

func (s *Store) FindItems(ctx context.Context, term string) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name
		FROM items
		WHERE code = $1 OR name ILIKE '%' || $1 || '%'
		ORDER BY (code = $1) DESC, code
	`, term)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]domain.Item, 0, 4)
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.Code, &item.Name); err != nil {
			return nil, err
		}
		matches = append(matches, item)
	}
	return matches, rows.Err()
}

func (s *Store) DeleteItem(ctx context.Context, code string) error {
	var referenced bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE lines @> jsonb_build_array(jsonb_build_object('item_code', $1::text))
		)
	`, code).Scan(&referenced)
	if err != nil {
		return err
	}
	if referenced {
		return store.ErrInUse
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE code = $1`, code)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReplaceItems(ctx context.Context, items []domain.Item) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return 0, err
	}

	count := 0
	for _, item := range items {
		if item.Code == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO items (code, name)
			VALUES ($1, $2)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		`, item.Code, item.Name); err != nil {
			return 0, err
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) AppendTransaction(ctx context.Context, record domain.Transaction) (*domain.Transaction, error) {
	if record.ID == "" || record.Date == "" || record.CustomerID == "" || len(record.Lines) == 0 || record.Points < 0 {
		return nil, store.ErrInvalidInput
	}

	lines, err := json.Marshal(record.Lines)
	if err != nil {
		return nil, err
	}

	customerName := record.CustomerName
	if customerName == "" {
		customerName = record.CustomerID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, tx_date, customer_id, customer_name, lines,
			total_supply_value, total_vat, total_amount, points, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, record.ID, record.Date, record.CustomerID, record.CustomerName, lines,
		record.TotalSupplyValue, record.TotalVAT, record.TotalAmount, record.Points, record.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO customers (id, name, points)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET points = customers.points + EXCLUDED.points
	`, record.CustomerID, customerName, record.Points); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	appended := record
	return &appended, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	if id == "" {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	removed, err := scanTransaction(tx.QueryRowContext(ctx, `
		SELECT id, tx_date, customer_id, customer_name, lines,
			total_supply_value, total_vat, total_amount, points, created_at
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	// GREATEST keeps the balance non-negative when points were already
	// redeemed after accrual.
	if _, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET points = GREATEST(0, points - $2)
		WHERE id = $1
	`, removed.CustomerID, removed.Points); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	record, err := scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT id, tx_date, customer_id, customer_name, lines,
			total_supply_value, total_vat, total_amount, points, created_at
		FROM transactions
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tx_date, customer_id, customer_name, lines,
			total_supply_value, total_vat, total_amount, points, created_at
		FROM transactions
		WHERE ($1 = '' OR customer_id = $1)
		  AND ($2 = '' OR tx_date >= $2)
		  AND ($3 = '' OR tx_date <= $3)
		ORDER BY tx_date DESC, created_at DESC
	`, filter.CustomerID, filter.From, filter.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		var record domain.Transaction
		var lines []byte
		if err := rows.Scan(&record.ID, &record.Date, &record.CustomerID, &record.CustomerName, &lines,
			&record.TotalSupplyValue, &record.TotalVAT, &record.TotalAmount, &record.Points, &record.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(lines, &record.Lines); err != nil {
			return nil, err
		}
		record.CreatedAt = record.CreatedAt.UTC()
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) GetAPIConfig(ctx context.Context) (*domain.APIConfig, error) {
	var cfg domain.APIConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT account_code, user_id, test_key, live_key
		FROM api_config
		WHERE id = 1
	`).Scan(&cfg.AccountCode, &cfg.UserID, &cfg.TestKey, &cfg.LiveKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.APIConfig{}, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) SaveAPIConfig(ctx context.Context, cfg domain.APIConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_config (id, account_code, user_id, test_key, live_key)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			account_code = EXCLUDED.account_code,
			user_id = EXCLUDED.user_id,
			test_key = EXCLUDED.test_key,
			live_key = EXCLUDED.live_key
	`, cfg.AccountCode, cfg.UserID, cfg.TestKey, cfg.LiveKey)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var record domain.Transaction
	var lines []byte
	if err := row.Scan(&record.ID, &record.Date, &record.CustomerID, &record.CustomerName, &lines,
		&record.TotalSupplyValue, &record.TotalVAT, &record.TotalAmount, &record.Points, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lines, &record.Lines); err != nil {
		return nil, err
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
