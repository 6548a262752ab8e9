package erp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pointbook/backend/internal/cache"
	"pointbook/backend/internal/domain"
)

func testConfig(serverURL string) Config {
	return Config{
		ZoneURL:            serverURL + "/zone",
		HostPattern:        serverURL + "/live-%s",
		SandboxHostPattern: serverURL + "/sandbox-%s",
		SyncInterval:       10 * time.Minute,
	}
}

func testAPIConfig() domain.APIConfig {
	return domain.APIConfig{
		AccountCode: "80001",
		UserID:      "pointbook",
		TestKey:     "test-cert-key",
		LiveKey:     "live-cert-key",
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestLoginRoutesTestKeyToSandboxHost(t *testing.T) {
	var sandboxHits, liveHits int32

	mux := http.NewServeMux()
	mux.HandleFunc("/zone/OAPI/V2/Zone", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["COM_CODE"] != "80001" {
			t.Errorf("zone lookup COM_CODE = %q, want 80001", body["COM_CODE"])
		}
		writeJSON(t, w, map[string]any{"Data": map[string]string{"ZONE": "CC"}})
	})
	mux.HandleFunc("/sandbox-CC/OAPI/V2/OAPILogin", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&sandboxHits, 1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["API_CERT_KEY"] != "test-cert-key" {
			t.Errorf("sandbox login key = %q, want test-cert-key", body["API_CERT_KEY"])
		}
		writeJSON(t, w, map[string]any{
			"Data": map[string]any{"Datas": map[string]string{"SESSION_ID": "sess-sandbox"}},
		})
	})
	mux.HandleFunc("/live-CC/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&liveHits, 1)
		t.Errorf("test-mode login reached production host: %s", r.URL.Path)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := New(testConfig(server.URL), cache.NewMemorySyncThrottle())
	session, err := client.Login(context.Background(), testAPIConfig(), true)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if session.ID != "sess-sandbox" {
		t.Fatalf("session.ID = %q, want sess-sandbox", session.ID)
	}
	if session.Zone != "CC" {
		t.Fatalf("session.Zone = %q, want CC", session.Zone)
	}
	if !session.Test {
		t.Fatal("session.Test = false, want true")
	}
	if !strings.HasSuffix(session.Host, "/sandbox-CC") {
		t.Fatalf("session.Host = %q, want sandbox host", session.Host)
	}
	if atomic.LoadInt32(&sandboxHits) != 1 || atomic.LoadInt32(&liveHits) != 0 {
		t.Fatalf("sandbox hits = %d, live hits = %d", sandboxHits, liveHits)
	}
}

func TestLoginRoutesLiveKeyToProductionHost(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/zone/OAPI/V2/Zone", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"Data": map[string]string{"ZONE": "BA"}})
	})
	mux.HandleFunc("/live-BA/OAPI/V2/OAPILogin", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["API_CERT_KEY"] != "live-cert-key" {
			t.Errorf("production login key = %q, want live-cert-key", body["API_CERT_KEY"])
		}
		writeJSON(t, w, map[string]any{
			"Data": map[string]any{"Datas": map[string]string{"SESSION_ID": "sess-live"}},
		})
	})
	mux.HandleFunc("/sandbox-BA/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("live-mode login reached sandbox host: %s", r.URL.Path)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := New(testConfig(server.URL), cache.NewMemorySyncThrottle())
	session, err := client.Login(context.Background(), testAPIConfig(), false)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.ID != "sess-live" || session.Test {
		t.Fatalf("session = %+v, want live session sess-live", session)
	}
}

func TestLoginSurfacesServerMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/zone/OAPI/V2/Zone", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"Data": map[string]string{"ZONE": "CC"}})
	})
	mux.HandleFunc("/sandbox-CC/OAPI/V2/OAPILogin", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"Data": map[string]any{"Code": "E1001", "Message": "certification key expired"},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := New(testConfig(server.URL), cache.NewMemorySyncThrottle())
	_, err := client.Login(context.Background(), testAPIConfig(), true)

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if authErr.Code != "E1001" || !strings.Contains(authErr.Message, "expired") {
		t.Fatalf("authErr = %+v", authErr)
	}
}

func TestResolveZoneFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/zone/OAPI/V2/Zone", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"Data":  map[string]string{},
			"Error": map[string]string{"Message": "unknown account"},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := New(testConfig(server.URL), cache.NewMemorySyncThrottle())
	_, err := client.ResolveZone(context.Background(), "99999")

	var zoneErr *ZoneLookupError
	if !errors.As(err, &zoneErr) {
		t.Fatalf("err = %v, want ZoneLookupError", err)
	}
	if zoneErr.AccountCode != "99999" {
		t.Fatalf("zoneErr.AccountCode = %q", zoneErr.AccountCode)
	}
}

func TestFetchProductsThrottledWithoutNetworkCall(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/sandbox-CC/OAPI/V2/InventoryBasic/GetBasicProductsList", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("SESSION_ID") != "sess-1" {
			t.Errorf("SESSION_ID = %q, want sess-1", r.URL.Query().Get("SESSION_ID"))
		}
		writeJSON(t, w, map[string]any{
			"Data": map[string]any{"Result": []map[string]string{
				{"PROD_CD": "A-100", "PROD_DES": "Apple Box"},
				{"PROD_CD": "A-200", "PROD_DES": "Green Apple"},
			}},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := New(testConfig(server.URL), cache.NewMemorySyncThrottle())

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	now := base
	client.now = func() time.Time { return now }

	session := &Session{ID: "sess-1", Zone: "CC", Host: server.URL + "/sandbox-CC", Test: true}

	items, err := client.FetchProducts(context.Background(), session)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if len(items) != 2 || items[0].Code != "A-100" {
		t.Fatalf("items = %+v", items)
	}

	// Three minutes later the window is still open for another seven.
	now = base.Add(3 * time.Minute)
	_, err = client.FetchProducts(context.Background(), session)

	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rateErr.Wait != 7*time.Minute {
		t.Fatalf("rateErr.Wait = %s, want 7m", rateErr.Wait)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("network calls = %d, want 1", got)
	}

	now = base.Add(11 * time.Minute)
	if _, err := client.FetchProducts(context.Background(), session); err != nil {
		t.Fatalf("fetch after window: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("network calls = %d, want 2", got)
	}
}

func submitTestTransaction() domain.Transaction {
	return domain.Transaction{
		ID:           "tx-submit",
		Date:         "2026-03-02",
		CustomerID:   "010-1234-5678",
		CustomerName: "Kim",
		Lines: []domain.TransactionLine{
			{ItemCode: "A-100", ItemName: "Apple Box", Quantity: 2, Price: 1000, SupplyValue: 2000, VAT: 200, Total: 2200},
		},
		TotalSupplyValue: 2000,
		TotalVAT:         200,
		TotalAmount:      2200,
		Points:           22,
	}
}

func newSubmitClient(t *testing.T, handler http.HandlerFunc) (*Client, *Session, func()) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sandbox-CC/OAPI/V2/Sale/SaveSale", handler)
	server := httptest.NewServer(mux)

	client := New(testConfig(server.URL), cache.NewMemorySyncThrottle())
	session := &Session{ID: "sess-1", Zone: "CC", Host: server.URL + "/sandbox-CC", Test: true}
	return client, session, server.Close
}

func TestSubmitSaleSuccessCount(t *testing.T) {
	client, session, done := newSubmitClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SaleList []map[string]any `json:"SaleList"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode sale body: %v", err)
		}
		if len(body.SaleList) != 1 {
			t.Errorf("SaleList length = %d, want 1", len(body.SaleList))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Data": map[string]any{"SuccessCnt": 1, "FailCnt": 0},
		})
	})
	defer done()

	count, err := client.SubmitSale(context.Background(), session, submitTestTransaction())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestSubmitSaleErrorShapes(t *testing.T) {
	cases := []struct {
		name     string
		response map[string]any
		wantIn   string
	}{
		{
			name: "top level error object",
			response: map[string]any{
				"Error": map[string]string{"Code": "E500", "Message": "voucher save failed"},
			},
			wantIn: "voucher save failed",
		},
		{
			name: "top level error list",
			response: map[string]any{
				"Errors": []map[string]string{
					{"Message": "invalid customer code"},
					{"Message": "invalid warehouse"},
				},
			},
			wantIn: "invalid customer code",
		},
		{
			name: "per line result details",
			response: map[string]any{
				"Data": map[string]any{
					"SuccessCnt": 0,
					"ResultDetails": []map[string]any{
						{"IsSuccess": false, "TotalError": "PROD_CD not found"},
					},
				},
			},
			wantIn: "PROD_CD not found",
		},
		{
			name: "no explicit success count",
			response: map[string]any{
				"Data": map[string]any{"SuccessCnt": 0},
			},
			wantIn: "no accepted lines",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, session, done := newSubmitClient(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tc.response)
			})
			defer done()

			count, err := client.SubmitSale(context.Background(), session, submitTestTransaction())
			if count != 0 {
				t.Fatalf("count = %d, want 0", count)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want APIError", err)
			}
			if !strings.Contains(apiErr.Error(), tc.wantIn) {
				t.Fatalf("error %q does not mention %q", apiErr.Error(), tc.wantIn)
			}
		})
	}
}

func TestSubmitSaleRequiresSession(t *testing.T) {
	client := New(Config{}, cache.NewMemorySyncThrottle())
	_, err := client.SubmitSale(context.Background(), nil, submitTestTransaction())
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}
