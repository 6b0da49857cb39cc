package tax_tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
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

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestRegisterTaxTools(t *testing.T) {
	sc := newToolFixture(t, http.NotFoundHandler())
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))

	require.NoError(t, RegisterTaxTools(s, sc, false))
	require.NoError(t, RegisterTaxTools(s, sc, true))
}

func TestHandleListTaxReports(t *testing.T) {
	var gotPath string
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{{"id": "rep-1", "period": "2026-Q1"}},
		})
	})
	sc := newToolFixture(t, backend)

	result, err := handleListTaxReports(context.Background(), callRequest("list_tax_reports", nil), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "/api/v1/taxes/reports/", gotPath)
}

func TestHandleValidateTaxNumber(t *testing.T) {
	var gotBody map[string]interface{}
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/taxes/check-tax-number/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"valid": true})
	})
	sc := newToolFixture(t, backend)

	result, err := handleValidateTaxNumber(context.Background(), callRequest("validate_tax_number", map[string]interface{}{
		"taxNumber":  "21/815/08150",
		"regionCode": "BE",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "21/815/08150", gotBody["tax_number"])
	assert.Equal(t, "BE", gotBody["region_code"])
}

func TestHandleValidateTaxNumber_MissingArgs(t *testing.T) {
	sc := newToolFixture(t, http.NotFoundHandler())

	result, err := handleValidateTaxNumber(context.Background(), callRequest("validate_tax_number", map[string]interface{}{
		"taxNumber": "21/815/08150",
	}), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGenerateFinanzamtPreview(t *testing.T) {
	pdf := []byte("%PDF-1.7 fake preview")
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/taxes/reports/rep-1/generate-preview/", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdf)
	})
	sc := newToolFixture(t, backend)

	result, err := handleGenerateFinanzamtPreview(context.Background(), callRequest("generate_finanzamt_preview", map[string]interface{}{
		"reportId": "rep-1",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	require.True(t, strings.HasPrefix(text, "Preview PDF saved to "))
	path := strings.TrimPrefix(text, "Preview PDF saved to ")
	t.Cleanup(func() { _ = os.Remove(path) })

	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pdf, saved)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestHandleSubmitTaxReport_PaidSubscriptionRequired(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "subscription required"})
	})
	sc := newToolFixture(t, backend)

	result, err := handleSubmitTaxReport(context.Background(), callRequest("submit_tax_report", map[string]interface{}{
		"reportId": "rep-1",
	}), sc)
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "paid Norman subscription")
}

func TestHandleSubmitTaxReport(t *testing.T) {
	var gotPath string
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "submitted"})
	})
	sc := newToolFixture(t, backend)

	result, err := handleSubmitTaxReport(context.Background(), callRequest("submit_tax_report", map[string]interface{}{
		"reportId": "rep-1",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "/api/v1/taxes/reports/rep-1/submit-report/", gotPath)
}

func TestHandleUpdateTaxSetting(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "set-1"})
	})
	sc := newToolFixture(t, backend)

	result, err := handleUpdateTaxSetting(context.Background(), callRequest("update_tax_setting", map[string]interface{}{
		"settingId":          "set-1",
		"reportingFrequency": "QUARTERLY",
		"vatPercent":         float64(19),
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "/api/v1/taxes/tax-settings/set-1/", gotPath)
	assert.Equal(t, "QUARTERLY", gotBody["reportingFrequency"])
	assert.Equal(t, float64(19), gotBody["vatPercent"])
}

func TestHandleUpdateTaxSetting_NoFields(t *testing.T) {
	sc := newToolFixture(t, http.NotFoundHandler())

	result, err := handleUpdateTaxSetting(context.Background(), callRequest("update_tax_setting", map[string]interface{}{
		"settingId": "set-1",
	}), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
