package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"pointbook/backend/internal/domain"
)

func TestDeleteTransactionReversesPoints(t *testing.T) {
	databaseURL := os.Getenv("POINTBOOK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POINTBOOK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	customerID := fmt.Sprintf("010-rev-it-%d", stamp)
	txID := fmt.Sprintf("tx-rev-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
	})

	if _, err := s.CreditPoints(ctx, customerID, "Reversal IT", 7); err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	record := domain.Transaction{
		ID:           txID,
		Date:         "2026-03-02",
		CustomerID:   customerID,
		CustomerName: "Reversal IT",
		Lines: []domain.TransactionLine{
			{ItemCode: "A-100", ItemName: "Apple Box", Quantity: 2, Price: 1000, SupplyValue: 2000, VAT: 200, Total: 2200},
		},
		TotalSupplyValue: 2000,
		TotalVAT:         200,
		TotalAmount:      2200,
		Points:           22,
		CreatedAt:        time.Now().UTC(),
	}
	if _, err := s.AppendTransaction(ctx, record); err != nil {
		t.Fatalf("append transaction: %v", err)
	}

	credited, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		t.Fatalf("get customer after append: %v", err)
	}
	if credited.Points != 29 {
		t.Fatalf("points after append = %d, want 29", credited.Points)
	}

	removed, err := s.DeleteTransaction(ctx, txID)
	if err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	if removed.Points != 22 {
		t.Fatalf("removed.Points = %d, want 22", removed.Points)
	}

	reversed, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		t.Fatalf("get customer after delete: %v", err)
	}
	if reversed.Points != 7 {
		t.Fatalf("points after delete = %d, want 7", reversed.Points)
	}

	if _, err := s.GetTransaction(ctx, txID); err == nil {
		t.Fatalf("expected transaction %s to be gone", txID)
	}
}
