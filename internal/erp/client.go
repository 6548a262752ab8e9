package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pointbook/backend/internal/cache"
	"pointbook/backend/internal/domain"
)

const (
	defaultZoneURL            = "https://oapi.ecount.com"
	defaultHostPattern        = "https://oapi%s.ecount.com"
	defaultSandboxHostPattern = "https://sboapi%s.ecount.com"
	defaultSyncInterval       = 10 * time.Minute
	defaultTimeout            = 20 * time.Second
)

type Config struct {
	// ZoneURL is the zone lookup endpoint base. It is not zone-specific.
	ZoneURL string
	// HostPattern and SandboxHostPattern take the zone as the single
	// format argument. Live keys route to HostPattern hosts, test keys
	// to SandboxHostPattern hosts.
	HostPattern        string
	SandboxHostPattern string
	SyncInterval       time.Duration
	HTTPClient         *http.Client
}

type Client struct {
	cfg      Config
	client   *http.Client
	throttle cache.SyncThrottle
	now      func() time.Time
}

func New(cfg Config, throttle cache.SyncThrottle) *Client {
	if cfg.ZoneURL == "" {
		cfg.ZoneURL = defaultZoneURL
	}
	if cfg.HostPattern == "" {
		cfg.HostPattern = defaultHostPattern
	}
	if cfg.SandboxHostPattern == "" {
		cfg.SandboxHostPattern = defaultSandboxHostPattern
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = defaultSyncInterval
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if throttle == nil {
		throttle = cache.NewMemorySyncThrottle()
	}
	return &Client{cfg: cfg, client: client, throttle: throttle, now: time.Now}
}

type zoneResponse struct {
	Data struct {
		Zone string `json:"ZONE"`
	} `json:"Data"`
	Error *apiErrorBody `json:"Error"`
}

// ResolveZone maps an account code to its regional API zone.
func (c *Client) ResolveZone(ctx context.Context, accountCode string) (string, error) {
	var resp zoneResponse
	err := c.post(ctx, c.cfg.ZoneURL+"/OAPI/V2/Zone", map[string]string{
		"COM_CODE": accountCode,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Data.Zone == "" {
		msg := ""
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return "", &ZoneLookupError{AccountCode: accountCode, Message: msg}
	}
	return resp.Data.Zone, nil
}

type loginResponse struct {
	Data struct {
		Code    string `json:"Code"`
		Message string `json:"Message"`
		Datas   struct {
			SessionID string `json:"SESSION_ID"`
		} `json:"Datas"`
	} `json:"Data"`
	Error *apiErrorBody `json:"Error"`
}

// Login resolves the account's zone and opens an API session. Test
// credentials go to the sandbox host family, live credentials to
// production. Mixing them up is never acceptable, so the host is picked
// here and pinned to the session.
func (c *Client) Login(ctx context.Context, apiCfg domain.APIConfig, test bool) (*Session, error) {
	if apiCfg.AccountCode == "" || apiCfg.UserID == "" {
		return nil, &AuthError{Message: "account code and user id are required"}
	}
	key := apiCfg.LiveKey
	if test {
		key = apiCfg.TestKey
	}
	if key == "" {
		return nil, &AuthError{Message: "no API key configured for the selected mode"}
	}

	zone, err := c.ResolveZone(ctx, apiCfg.AccountCode)
	if err != nil {
		return nil, err
	}

	host := c.hostFor(zone, test)
	var resp loginResponse
	err = c.post(ctx, host+"/OAPI/V2/OAPILogin", map[string]string{
		"COM_CODE":     apiCfg.AccountCode,
		"USER_ID":      apiCfg.UserID,
		"API_CERT_KEY": key,
		"LAN_TYPE":     "en-US",
		"ZONE":         zone,
	}, &resp)
	if err != nil {
		return nil, err
	}

	sessionID := resp.Data.Datas.SessionID
	if sessionID == "" {
		authErr := &AuthError{Code: resp.Data.Code, Message: resp.Data.Message}
		if authErr.Message == "" && resp.Error != nil {
			authErr.Message = resp.Error.Message
		}
		if authErr.Message == "" {
			authErr.Message = "login rejected without a session id"
		}
		return nil, authErr
	}

	return &Session{
		ID:          sessionID,
		Zone:        zone,
		Host:        host,
		Test:        test,
		AccountCode: apiCfg.AccountCode,
		CreatedAt:   c.now().UTC(),
	}, nil
}

type productsResponse struct {
	Data struct {
		Result []struct {
			Code string `json:"PROD_CD"`
			Name string `json:"PROD_DES"`
		} `json:"Result"`
	} `json:"Data"`
	Error  *apiErrorBody  `json:"Error"`
	Errors []apiErrorBody `json:"Errors"`
}

// FetchProducts pulls the product catalog for the session's account. At
// most one pull per sync interval is allowed; within the window it fails
// fast with the remaining wait and sends nothing over the wire.
func (c *Client) FetchProducts(ctx context.Context, session *Session) ([]domain.Item, error) {
	if session == nil || session.ID == "" {
		return nil, ErrNoSession
	}

	last, ok, err := c.throttle.LastProductSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("check sync throttle: %w", err)
	}
	if ok {
		elapsed := c.now().Sub(last)
		if elapsed < c.cfg.SyncInterval {
			return nil, &RateLimitError{Wait: c.cfg.SyncInterval - elapsed}
		}
	}

	var resp productsResponse
	err = c.post(ctx, c.sessionURL(session, "/OAPI/V2/InventoryBasic/GetBasicProductsList"),
		map[string]any{}, &resp)
	if err != nil {
		return nil, err
	}
	if apiErr := collectErrors(resp.Error, resp.Errors, nil); apiErr != nil {
		return nil, apiErr
	}

	items := make([]domain.Item, 0, len(resp.Data.Result))
	for _, row := range resp.Data.Result {
		if row.Code == "" {
			continue
		}
		items = append(items, domain.Item{Code: row.Code, Name: row.Name})
	}

	if err := c.throttle.MarkProductSync(ctx, c.now()); err != nil {
		return nil, fmt.Errorf("mark sync throttle: %w", err)
	}
	return items, nil
}

type saleResultDetail struct {
	IsSuccess  bool   `json:"IsSuccess"`
	TotalError string `json:"TotalError"`
	Errors     []struct {
		ColumnName string `json:"ColCd"`
		Message    string `json:"Message"`
	} `json:"Errors"`
}

type saleResponse struct {
	Data struct {
		SuccessCount  int                `json:"SuccessCnt"`
		FailCount     int                `json:"FailCnt"`
		ResultDetails []saleResultDetail `json:"ResultDetails"`
	} `json:"Data"`
	Error  *apiErrorBody  `json:"Error"`
	Errors []apiErrorBody `json:"Errors"`
}

// SubmitSale pushes a transaction's line items as an ERP sale voucher.
// It returns the number of accepted lines. The response carries errors
// in three independent shapes and any of them marks the submission as
// failed, as does a missing positive success count.
func (c *Client) SubmitSale(ctx context.Context, session *Session, record domain.Transaction) (int, error) {
	if session == nil || session.ID == "" {
		return 0, ErrNoSession
	}
	if len(record.Lines) == 0 {
		return 0, &APIError{Message: "sale has no line items"}
	}

	ioDate := strings.ReplaceAll(record.Date, "-", "")
	saleList := make([]map[string]any, 0, len(record.Lines))
	for _, line := range record.Lines {
		saleList = append(saleList, map[string]any{
			"BulkDatas": map[string]any{
				"IO_DATE":    ioDate,
				"CUST":       record.CustomerID,
				"CUST_DES":   record.CustomerName,
				"PROD_CD":    line.ItemCode,
				"PROD_DES":   line.ItemName,
				"QTY":        line.Quantity,
				"PRICE":      line.Price,
				"SUPPLY_AMT": line.SupplyValue,
				"VAT_AMT":    line.VAT,
			},
		})
	}

	var resp saleResponse
	err := c.post(ctx, c.sessionURL(session, "/OAPI/V2/Sale/SaveSale"),
		map[string]any{"SaleList": saleList}, &resp)
	if err != nil {
		return 0, err
	}

	if apiErr := collectErrors(resp.Error, resp.Errors, resp.Data.ResultDetails); apiErr != nil {
		return 0, apiErr
	}
	if resp.Data.SuccessCount <= 0 {
		return 0, &APIError{Message: "sale submission reported no accepted lines"}
	}
	return resp.Data.SuccessCount, nil
}

func (c *Client) hostFor(zone string, test bool) string {
	pattern := c.cfg.HostPattern
	if test {
		pattern = c.cfg.SandboxHostPattern
	}
	return fmt.Sprintf(pattern, zone)
}

func (c *Client) sessionURL(session *Session, path string) string {
	return session.Host + path + "?SESSION_ID=" + url.QueryEscape(session.ID)
}

type apiErrorBody struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

func collectErrors(single *apiErrorBody, list []apiErrorBody, details []saleResultDetail) *APIError {
	if single != nil && (single.Message != "" || single.Code != "") {
		return &APIError{Code: single.Code, Message: single.Message}
	}

	if len(list) > 0 {
		apiErr := &APIError{Message: list[0].Message, Code: list[0].Code}
		for _, item := range list[1:] {
			apiErr.Details = append(apiErr.Details, item.Message)
		}
		return apiErr
	}

	var lineErrors []string
	for i, detail := range details {
		if detail.IsSuccess {
			continue
		}
		msg := detail.TotalError
		for _, e := range detail.Errors {
			if e.Message == "" {
				continue
			}
			if msg != "" {
				msg += "; "
			}
			if e.ColumnName != "" {
				msg += e.ColumnName + ": "
			}
			msg += e.Message
		}
		if msg == "" {
			msg = "rejected"
		}
		lineErrors = append(lineErrors, fmt.Sprintf("line %d: %s", i+1, msg))
	}
	if len(lineErrors) > 0 {
		return &APIError{Message: "sale lines rejected", Details: lineErrors}
	}
	return nil
}

func (c *Client) post(ctx context.Context, rawURL string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("erp request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("erp response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Code:    resp.Status,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("erp response decode: %w", err)
	}
	return nil
}
