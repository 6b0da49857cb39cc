package company_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/norman-finance/norman-mcp-go/internal/instrumentation"
	"github.com/norman-finance/norman-mcp-go/internal/server"
	"github.com/norman-finance/norman-mcp-go/internal/tools/common"
)

// RegisterCompanyTools registers all company-related tools with the MCP
// server.
func RegisterCompanyTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	getTool := mcp.NewTool("get_company_details",
		mcp.WithDescription("Get the profile of the current company"),
	)
	s.AddTool(getTool, common.InstrumentedToolHandlerWithResource("get_company_details",
		instrumentation.ResourceCompanies, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetCompanyDetails(ctx, request, sc)
		}))

	balanceTool := mcp.NewTool("get_company_balance",
		mcp.WithDescription("Get the current account balance of the company"),
	)
	s.AddTool(balanceTool, common.InstrumentedToolHandlerWithResource("get_company_balance",
		instrumentation.ResourceCompanies, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetCompanyBalance(ctx, request, sc)
		}))

	statsTool := mcp.NewTool("get_company_tax_statistics",
		mcp.WithDescription("Get aggregated tax statistics for the company"),
	)
	s.AddTool(statsTool, common.InstrumentedToolHandlerWithResource("get_company_tax_statistics",
		instrumentation.ResourceCompanies, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetCompanyTaxStatistics(ctx, request, sc)
		}))

	vatTool := mcp.NewTool("get_vat_next_report",
		mcp.WithDescription("Get the estimated VAT amount for the next report period"),
	)
	s.AddTool(vatTool, common.InstrumentedToolHandlerWithResource("get_vat_next_report",
		instrumentation.ResourceCompanies, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetVATNextReport(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	updateTool := mcp.NewTool("update_company_details",
		mcp.WithDescription("Update the profile of the current company"),
		mcp.WithString("name",
			mcp.Description("Company name"),
		),
		mcp.WithString("profession",
			mcp.Description("Profession or trade"),
		),
		mcp.WithString("address",
			mcp.Description("Street address"),
		),
		mcp.WithString("zipCode",
			mcp.Description("Postal code"),
		),
		mcp.WithString("city",
			mcp.Description("City"),
		),
		mcp.WithString("phoneNumber",
			mcp.Description("Phone number"),
		),
		mcp.WithString("taxNumber",
			mcp.Description("Tax number"),
		),
		mcp.WithString("vatNumber",
			mcp.Description("VAT identification number"),
		),
		mcp.WithString("iban",
			mcp.Description("Bank account IBAN"),
		),
		mcp.WithString("bic",
			mcp.Description("Bank BIC"),
		),
		mcp.WithString("bankName",
			mcp.Description("Bank name"),
		),
	)
	s.AddTool(updateTool, common.InstrumentedToolHandlerWithResource("update_company_details",
		instrumentation.ResourceCompanies, instrumentation.OperationUpdate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateCompanyDetails(ctx, request, sc)
		}))

	return nil
}

func companyPath(companyID string) string {
	return fmt.Sprintf("api/v1/companies/%s/", companyID)
}

func handleGetCompanyDetails(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	return companyGet(ctx, sc, "", "Failed to get company details")
}

func handleGetCompanyBalance(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	return companyGet(ctx, sc, "balance/", "Failed to get company balance")
}

func handleGetCompanyTaxStatistics(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	return companyGet(ctx, sc, "company-tax-statistic/", "Failed to get tax statistics")
}

func handleGetVATNextReport(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	return companyGet(ctx, sc, "vat-next-report-amount/", "Failed to get VAT estimate")
}

func companyGet(ctx context.Context, sc *server.ServerContext, subPath, failureMessage string) (*mcp.CallToolResult, error) {
	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, companyPath(companyID)+subPath, nil, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", failureMessage, err)), nil
	}
	return common.JSONResult(out)
}

// companyFields maps tool argument names to Norman company profile fields.
var companyFields = map[string]string{
	"name":        "name",
	"profession":  "profession",
	"address":     "address",
	"zipCode":     "zipCode",
	"city":        "city",
	"phoneNumber": "phoneNumber",
	"taxNumber":   "taxNumber",
	"vatNumber":   "vatNumber",
	"iban":        "iban",
	"bic":         "bic",
	"bankName":    "bankName",
}

func handleUpdateCompanyDetails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	body := map[string]interface{}{}
	for arg, field := range companyFields {
		if v := common.String(args, arg); v != "" {
			body[field] = v
		}
	}
	if len(body) == 0 {
		return mcp.NewToolResultError("no fields to update"), nil
	}

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Patch(ctx, accessToken, companyPath(companyID), body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update company details: %v", err)), nil
	}
	return common.JSONResult(out)
}
