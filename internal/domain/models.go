package domain

import "time"

// DateLayout is the wire and storage format for transaction dates.
const DateLayout = "2006-01-02"

// Customer is a loyalty program member keyed by business/phone number.
type Customer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

type CustomerUpsertRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RedeemPointsRequest struct {
	Points int `json:"points"`
}

// Item is a catalog entry mapping a product code to its display name.
type Item struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type ItemUpsertRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// TransactionLine is a priced line item with derived monetary fields.
// SupplyValue, VAT and Total are computed once at registration and stored.
type TransactionLine struct {
	ItemCode    string  `json:"item_code"`
	ItemName    string  `json:"item_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	SupplyValue float64 `json:"supply_value"`
	VAT         float64 `json:"vat"`
	Total       float64 `json:"total"`
}

// Transaction is one ledger record. Records are append-only except for an
// explicit delete, which reverses the customer's accrued points.
type Transaction struct {
	ID               string            `json:"id"`
	Date             string            `json:"date"`
	CustomerID       string            `json:"customer_id"`
	CustomerName     string            `json:"customer_name"`
	Lines            []TransactionLine `json:"lines"`
	TotalSupplyValue float64           `json:"total_supply_value"`
	TotalVAT         float64           `json:"total_vat"`
	TotalAmount      float64           `json:"total_amount"`
	Points           int               `json:"points"`
	CreatedAt        time.Time         `json:"created_at"`
}

type TransactionLineInput struct {
	ItemCode string  `json:"item_code"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type TransactionCreateRequest struct {
	Date         string                 `json:"date"`
	CustomerID   string                 `json:"customer_id"`
	CustomerName string                 `json:"customer_name"`
	Lines        []TransactionLineInput `json:"lines"`
}

// TransactionFilter narrows ListTransactions. Empty fields match everything;
// From and To are inclusive DateLayout bounds.
type TransactionFilter struct {
	CustomerID string
	From       string
	To         string
}

// APIConfig holds the ERP account credentials. TestKey routes calls to the
// sandbox host family, LiveKey to production.
type APIConfig struct {
	AccountCode string `json:"account_code"`
	UserID      string `json:"user_id"`
	TestKey     string `json:"test_key"`
	LiveKey     string `json:"live_key"`
}

type ERPLoginRequest struct {
	Test bool `json:"test"`
}

type ERPSessionResponse struct {
	Zone      string `json:"zone"`
	Test      bool   `json:"test"`
	LoggedIn  bool   `json:"logged_in"`
	CreatedAt string `json:"created_at,omitempty"`
}

type ProductSyncResponse struct {
	Synced   int    `json:"synced"`
	SyncedAt string `json:"synced_at"`
}

type SaleSubmitResponse struct {
	SuccessCount int         `json:"success_count"`
	Transaction  Transaction `json:"transaction"`
}
