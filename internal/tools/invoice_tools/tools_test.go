package invoice_tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/norman-finance/norman-mcp-go/internal/config"
	"github.com/norman-finance/norman-mcp-go/internal/norman"
	"github.com/norman-finance/norman-mcp-go/internal/server"
)

type stubUpstream struct{}

func (stubUpstream) Exchange(context.Context, norman.Credentials) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "upstream-access", Expiry: time.Now().Add(time.Hour)}, nil
}

func (stubUpstream) Refresh(context.Context, string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "upstream-access", Expiry: time.Now().Add(time.Hour)}, nil
}

type stubCompanies struct{}

func (stubCompanies) FirstCompanyID(context.Context, string) (string, error) {
	return "co-8f3a", nil
}

func newToolFixture(t *testing.T, backend http.Handler) *server.ServerContext {
	t.Helper()
	ts := httptest.NewServer(backend)
	t.Cleanup(ts.Close)

	sc, err := server.NewServerContext(context.Background(), server.Options{
		Config: &config.Config{
			Email:       "jane@example.com",
			Password:    "secret",
			Environment: config.EnvironmentSandbox,
			APITimeout:  time.Second,
		},
		API:       norman.NewClient(ts.URL, time.Second, nil),
		Upstream:  stubUpstream{},
		Companies: stubCompanies{},
	})
	require.NoError(t, err)
	t.Cleanup(sc.Shutdown)
	return sc
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestRegisterInvoiceTools(t *testing.T) {
	sc := newToolFixture(t, http.NotFoundHandler())
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))

	require.NoError(t, RegisterInvoiceTools(s, sc, false))
	require.NoError(t, RegisterInvoiceTools(s, sc, true))
}

func TestHandleListInvoices(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{{"id": "inv-1", "status": "sent"}},
		})
	})
	sc := newToolFixture(t, backend)

	result, err := handleListInvoices(context.Background(), callRequest("list_invoices", map[string]interface{}{
		"status": "overdue",
		"name":   "Acme",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "/api/v1/companies/co-8f3a/invoices/", gotPath)
	assert.Equal(t, []string{"overdue"}, gotQuery["status"])
	assert.Equal(t, []string{"Acme"}, gotQuery["name"])
	assert.Equal(t, []string{"100"}, gotQuery["limit"])
}

func TestHandleCreateInvoice_FetchesNextNumber(t *testing.T) {
	var createBody map[string]interface{}
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/companies/co-8f3a/invoices/next-invoice-number/":
			_ = json.NewEncoder(w).Encode(map[string]string{"nextInvoiceNumber": "INV-0042"})
		case "/api/v1/companies/co-8f3a/invoices/":
			require.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createBody))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "inv-new"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	sc := newToolFixture(t, backend)

	result, err := handleCreateInvoice(context.Background(), callRequest("create_invoice", map[string]interface{}{
		"clientId": "cl-1",
		"items":    `[{"name":"Consulting","quantity":10,"rate":120,"vatRate":19}]`,
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	assert.Equal(t, "cl-1", createBody["client"])
	assert.Equal(t, "INV-0042", createBody["invoiceNumber"])
	assert.Equal(t, "EUR", createBody["currency"])
	assert.Equal(t, "SERVICES", createBody["invoiceType"])
	assert.Equal(t, "invoice", createBody["type"])
	assert.Equal(t, "co-8f3a", createBody["companyId"])
	assert.Equal(t, "jane@example.com", createBody["companyEmail"])
	assert.NotEmpty(t, createBody["dueTo"])
	assert.NotEmpty(t, createBody["serviceStartDate"])

	items, ok := createBody["invoicedItems"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)
}

func TestHandleCreateInvoice_GoodsDeliveryDate(t *testing.T) {
	var createBody map[string]interface{}
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&createBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "inv-new"})
	})
	sc := newToolFixture(t, backend)

	result, err := handleCreateInvoice(context.Background(), callRequest("create_invoice", map[string]interface{}{
		"clientId":      "cl-1",
		"items":         `[{"name":"Hardware","quantity":1,"rate":500,"vatRate":19}]`,
		"invoiceNumber": "INV-7",
		"invoiceType":   "GOODS",
		"issued":        "2026-03-01",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "2026-03-01", createBody["deliveryDate"])
	assert.Equal(t, "2026-03-31", createBody["dueTo"])
	assert.Nil(t, createBody["serviceStartDate"])
}

func TestHandleCreateInvoice_Validation(t *testing.T) {
	sc := newToolFixture(t, http.NotFoundHandler())

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{
			name: "missing client",
			args: map[string]interface{}{"items": `[{"name":"x"}]`},
		},
		{
			name: "missing items",
			args: map[string]interface{}{"clientId": "cl-1"},
		},
		{
			name: "items not json",
			args: map[string]interface{}{"clientId": "cl-1", "items": "not json", "invoiceNumber": "I-1"},
		},
		{
			name: "empty items",
			args: map[string]interface{}{"clientId": "cl-1", "items": "[]", "invoiceNumber": "I-1"},
		},
		{
			name: "bad invoice type",
			args: map[string]interface{}{"clientId": "cl-1", "items": `[{"name":"x"}]`, "invoiceNumber": "I-1", "invoiceType": "MIXED"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handleCreateInvoice(context.Background(), callRequest("create_invoice", tt.args), sc)
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

func TestHandleCreateRecurringInvoice(t *testing.T) {
	var gotPath string
	var createBody map[string]interface{}
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&createBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "rec-new"})
	})
	sc := newToolFixture(t, backend)

	result, err := handleCreateRecurringInvoice(context.Background(), callRequest("create_recurring_invoice", map[string]interface{}{
		"clientId":       "cl-1",
		"items":          `[{"name":"Hosting","quantity":1,"rate":49,"vatRate":19}]`,
		"invoiceNumber":  "INV-9",
		"frequencyType":  "MONTHLY",
		"frequencyUnit":  float64(1),
		"startsFromDate": "2026-09-01",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "/api/v1/companies/co-8f3a/recurring-invoices/", gotPath)
	assert.Equal(t, true, createBody["isRecurring"])
	assert.Equal(t, "MONTHLY", createBody["frequencyType"])
	assert.Equal(t, "INV-9", createBody["recurringNumber"])
	assert.Equal(t, "2026-09-01", createBody["issued"])
	// No end condition given: defaults to three invoices.
	assert.Equal(t, float64(3), createBody["endsOnInvoiceCount"])
}

func TestHandleSendInvoice(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "sent"})
	})
	sc := newToolFixture(t, backend)

	result, err := handleSendInvoice(context.Background(), callRequest("send_invoice", map[string]interface{}{
		"invoiceId":        "inv-1",
		"subject":          "Invoice INV-0042",
		"body":             "Please find your invoice attached.",
		"additionalEmails": "a@example.com, b@example.com",
	}), sc, "send/")
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "/api/v1/companies/co-8f3a/invoices/inv-1/send/", gotPath)
	assert.Equal(t, "Invoice INV-0042", gotBody["subject"])
	assert.Equal(t, []interface{}{"a@example.com", "b@example.com"}, gotBody["additionalEmails"])
}

func TestHandleSendInvoice_OverduePath(t *testing.T) {
	var gotPath string
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "sent"})
	})
	sc := newToolFixture(t, backend)

	result, err := handleSendInvoice(context.Background(), callRequest("send_invoice_overdue_reminder", map[string]interface{}{
		"invoiceId": "inv-1",
		"subject":   "Payment overdue",
		"body":      "Reminder",
	}), sc, "send-on-overdue/")
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "/api/v1/companies/co-8f3a/invoices/inv-1/send-on-overdue/", gotPath)
}

func TestHandleLinkInvoiceTransaction(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"linked": true})
	})
	sc := newToolFixture(t, backend)

	result, err := handleLinkInvoiceTransaction(context.Background(), callRequest("link_invoice_transaction", map[string]interface{}{
		"invoiceId":     "inv-1",
		"transactionId": "tx-1",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "/api/v1/companies/co-8f3a/invoices/inv-1/link-transaction/", gotPath)
	assert.Equal(t, "tx-1", gotBody["transaction"])
}

func TestHandleGetEInvoiceXML(t *testing.T) {
	const xml = `<?xml version="1.0"?><Invoice><ID>INV-0042</ID></Invoice>`
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/companies/co-8f3a/invoices/inv-1/xml/", r.URL.Path)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(xml))
	})
	sc := newToolFixture(t, backend)

	result, err := handleGetEInvoiceXML(context.Background(), callRequest("get_einvoice_xml", map[string]interface{}{
		"invoiceId": "inv-1",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, xml, resultText(t, result))
}
