package document_tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
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

func TestRegisterDocumentTools(t *testing.T) {
	sc := newToolFixture(t, http.NotFoundHandler())
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))

	require.NoError(t, RegisterDocumentTools(s, sc, false))
	require.NoError(t, RegisterDocumentTools(s, sc, true))
}

func TestHandleListAttachments(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{{"id": "att-1", "fileName": "receipt.pdf"}},
		})
	})
	sc := newToolFixture(t, backend)

	result, err := handleListAttachments(context.Background(), callRequest("list_attachments", map[string]interface{}{
		"fileName":       "receipt",
		"linked":         false,
		"attachmentType": "receipt",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "/api/v1/companies/co-8f3a/attachments/", gotPath)
	assert.Equal(t, []string{"receipt"}, gotQuery["file_name"])
	assert.Equal(t, []string{"false"}, gotQuery["linked"])
	assert.Equal(t, []string{"receipt"}, gotQuery["has_type"])
}

func TestHandleListAttachments_BadType(t *testing.T) {
	sc := newToolFixture(t, http.NotFoundHandler())

	result, err := handleListAttachments(context.Background(), callRequest("list_attachments", map[string]interface{}{
		"attachmentType": "screenshot",
	}), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleCreateAttachment_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lunch-receipt.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 receipt"), 0o600))

	var gotContentType string
	var gotBody []byte
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/companies/co-8f3a/attachments/", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		gotContentType = r.Header.Get("Content-Type")
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "att-new"})
	})
	sc := newToolFixture(t, backend)

	result, err := handleCreateAttachment(context.Background(), callRequest("create_attachment", map[string]interface{}{
		"filePath":      path,
		"amount":        float64(12.5),
		"description":   "Team lunch",
		"transactionId": "tx-1",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Contains(t, gotContentType, "multipart/form-data")
	body := string(gotBody)
	assert.Contains(t, body, `filename="lunch-receipt.pdf"`)
	assert.Contains(t, body, "%PDF-1.7 receipt")
	assert.Contains(t, body, `name="attachment_type"`)
	assert.Contains(t, body, "receipt")
	assert.Contains(t, body, `name="transactions"`)
	assert.Contains(t, body, "Team lunch")
	assert.Contains(t, body, "12.5")
}

func TestHandleCreateAttachment_FromBase64(t *testing.T) {
	var gotBody []byte
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "att-new"})
	})
	sc := newToolFixture(t, backend)

	result, err := handleCreateAttachment(context.Background(), callRequest("create_attachment", map[string]interface{}{
		"fileContentBase64": base64.StdEncoding.EncodeToString([]byte("hello receipt")),
		"fileName":          "inline.txt",
		"attachmentType":    "other",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	body := string(gotBody)
	assert.Contains(t, body, `filename="inline.txt"`)
	assert.Contains(t, body, "hello receipt")
}

func TestHandleCreateAttachment_Validation(t *testing.T) {
	sc := newToolFixture(t, http.NotFoundHandler())

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{
			name: "no content source",
			args: map[string]interface{}{},
		},
		{
			name: "both content sources",
			args: map[string]interface{}{"filePath": "/tmp/x.pdf", "fileContentBase64": "aGk="},
		},
		{
			name: "base64 without file name",
			args: map[string]interface{}{"fileContentBase64": "aGk="},
		},
		{
			name: "invalid base64",
			args: map[string]interface{}{"fileContentBase64": "not base64!!", "fileName": "x.txt"},
		},
		{
			name: "bad attachment type",
			args: map[string]interface{}{"fileContentBase64": "aGk=", "fileName": "x.txt", "attachmentType": "selfie"},
		},
		{
			name: "bad supplier country",
			args: map[string]interface{}{"fileContentBase64": "aGk=", "fileName": "x.txt", "supplierCountry": "US"},
		},
		{
			name: "bad vat rate",
			args: map[string]interface{}{"fileContentBase64": "aGk=", "fileName": "x.txt", "vatRate": float64(13)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handleCreateAttachment(context.Background(), callRequest("create_attachment", tt.args), sc)
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

func TestHandleUploadBulkAttachments(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "receipt-jan.pdf")
	second := filepath.Join(dir, "receipt-feb.pdf")
	require.NoError(t, os.WriteFile(first, []byte("%PDF january"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte("%PDF february"), 0o600))

	var gotPath string
	var gotBody []byte
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{{"id": "tx-new"}})
	})
	sc := newToolFixture(t, backend)

	result, err := handleUploadBulkAttachments(context.Background(), callRequest("upload_bulk_attachments", map[string]interface{}{
		"filePaths":    `["` + first + `","` + second + `"]`,
		"cashflowType": "EXPENSE",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "/api/v1/accounting/transactions/upload-documents/", gotPath)
	body := string(gotBody)
	assert.Contains(t, body, `filename="receipt-jan.pdf"`)
	assert.Contains(t, body, `filename="receipt-feb.pdf"`)
	assert.Contains(t, body, "%PDF january")
	assert.Contains(t, body, "%PDF february")
	assert.Contains(t, body, `name="cashflow_type"`)
	assert.Contains(t, body, "EXPENSE")
	assert.Equal(t, 2, strings.Count(body, `name="files"`))
}

func TestHandleUploadBulkAttachments_CommaSeparatedPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "single.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF single"), 0o600))

	var gotBody []byte
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{{"id": "tx-new"}})
	})
	sc := newToolFixture(t, backend)

	result, err := handleUploadBulkAttachments(context.Background(), callRequest("upload_bulk_attachments", map[string]interface{}{
		"filePaths": " " + path + " ,",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, string(gotBody), `filename="single.pdf"`)
}

func TestHandleUploadBulkAttachments_Validation(t *testing.T) {
	sc := newToolFixture(t, http.NotFoundHandler())

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{
			name: "missing file paths",
			args: map[string]interface{}{},
		},
		{
			name: "malformed json array",
			args: map[string]interface{}{"filePaths": `["unterminated`},
		},
		{
			name: "empty json array",
			args: map[string]interface{}{"filePaths": `[]`},
		},
		{
			name: "bad cashflow type",
			args: map[string]interface{}{"filePaths": `["/tmp/x.pdf"]`, "cashflowType": "TRANSFER"},
		},
		{
			name: "unreadable file",
			args: map[string]interface{}{"filePaths": `["/nonexistent/receipt.pdf"]`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handleUploadBulkAttachments(context.Background(), callRequest("upload_bulk_attachments", tt.args), sc)
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

func TestHandleLinkAttachmentTransaction(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"linked": true})
	})
	sc := newToolFixture(t, backend)

	result, err := handleLinkAttachmentTransaction(context.Background(), callRequest("link_attachment_transaction", map[string]interface{}{
		"attachmentId":  "att-1",
		"transactionId": "tx-1",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "/api/v1/companies/co-8f3a/attachments/att-1/link-transaction/", gotPath)
	assert.Equal(t, "tx-1", gotBody["transaction"])
}
