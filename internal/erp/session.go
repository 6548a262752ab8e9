package erp

import "time"

// Session is an authenticated ERP API session. Host is the zone-specific
// base URL every subsequent call for this session must use.
type Session struct {
	ID          string    `json:"session_id"`
	Zone        string    `json:"zone"`
	Host        string    `json:"host"`
	Test        bool      `json:"test"`
	AccountCode string    `json:"account_code"`
	CreatedAt   time.Time `json:"created_at"`
}
