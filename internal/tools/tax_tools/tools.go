package tax_tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/norman-finance/norman-mcp-go/internal/instrumentation"
	"github.com/norman-finance/norman-mcp-go/internal/norman"
	"github.com/norman-finance/norman-mcp-go/internal/server"
	"github.com/norman-finance/norman-mcp-go/internal/tools/common"
)

const (
	reportsPath     = "api/v1/taxes/reports/"
	taxSettingsPath = "api/v1/taxes/tax-settings/"
)

// RegisterTaxTools registers all tax-related tools with the MCP server.
func RegisterTaxTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listReportsTool := mcp.NewTool("list_tax_reports",
		mcp.WithDescription("List all tax reports for the current account"),
	)
	s.AddTool(listReportsTool, common.InstrumentedToolHandlerWithResource("list_tax_reports",
		instrumentation.ResourceTaxes, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListTaxReports(ctx, request, sc)
		}))

	getReportTool := mcp.NewTool("get_tax_report",
		mcp.WithDescription("Get details of a specific tax report"),
		mcp.WithString("reportId",
			mcp.Required(),
			mcp.Description("The ID of the tax report to retrieve"),
		),
	)
	s.AddTool(getReportTool, common.InstrumentedToolHandlerWithResource("get_tax_report",
		instrumentation.ResourceTaxes, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetTaxReport(ctx, request, sc)
		}))

	validateTool := mcp.NewTool("validate_tax_number",
		mcp.WithDescription("Validate a German tax number for a given region"),
		mcp.WithString("taxNumber",
			mcp.Required(),
			mcp.Description("The tax number to validate"),
		),
		mcp.WithString("regionCode",
			mcp.Required(),
			mcp.Description("Federal state region code (e.g. BE for Berlin, BY for Bavaria)"),
		),
	)
	s.AddTool(validateTool, common.InstrumentedToolHandlerWithResource("validate_tax_number",
		instrumentation.ResourceTaxes, instrumentation.OperationSearch, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleValidateTaxNumber(ctx, request, sc)
		}))

	previewTool := mcp.NewTool("generate_finanzamt_preview",
		mcp.WithDescription("Generate the official Finanzamt preview PDF for a tax report and save it to a local file"),
		mcp.WithString("reportId",
			mcp.Required(),
			mcp.Description("The ID of the tax report to preview"),
		),
	)
	s.AddTool(previewTool, common.InstrumentedToolHandlerWithResource("generate_finanzamt_preview",
		instrumentation.ResourceTaxes, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGenerateFinanzamtPreview(ctx, request, sc)
		}))

	statesTool := mcp.NewTool("list_tax_states",
		mcp.WithDescription("List the German federal states recognized by the tax office"),
	)
	s.AddTool(statesTool, common.InstrumentedToolHandlerWithResource("list_tax_states",
		instrumentation.ResourceTaxes, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListTaxStates(ctx, request, sc)
		}))

	settingsTool := mcp.NewTool("list_tax_settings",
		mcp.WithDescription("List the tax settings of the current account"),
	)
	s.AddTool(settingsTool, common.InstrumentedToolHandlerWithResource("list_tax_settings",
		instrumentation.ResourceTaxes, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListTaxSettings(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	submitTool := mcp.NewTool("submit_tax_report",
		mcp.WithDescription("Submit a tax report to the Finanzamt. Requires a paid Norman subscription."),
		mcp.WithString("reportId",
			mcp.Required(),
			mcp.Description("The ID of the tax report to submit"),
		),
	)
	s.AddTool(submitTool, common.InstrumentedToolHandlerWithResource("submit_tax_report",
		instrumentation.ResourceTaxes, instrumentation.OperationSend, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSubmitTaxReport(ctx, request, sc)
		}))

	updateSettingTool := mcp.NewTool("update_tax_setting",
		mcp.WithDescription("Update a tax setting"),
		mcp.WithString("settingId",
			mcp.Required(),
			mcp.Description("The ID of the tax setting to update"),
		),
		mcp.WithString("taxType",
			mcp.Description("Tax type"),
		),
		mcp.WithString("vatType",
			mcp.Description("VAT type"),
		),
		mcp.WithNumber("vatPercent",
			mcp.Description("VAT percentage"),
		),
		mcp.WithString("startTaxReportDate",
			mcp.Description("Date of the first tax report (YYYY-MM-DD)"),
		),
		mcp.WithString("reportingFrequency",
			mcp.Description("Reporting frequency (e.g. MONTHLY, QUARTERLY, YEARLY)"),
		),
	)
	s.AddTool(updateSettingTool, common.InstrumentedToolHandlerWithResource("update_tax_setting",
		instrumentation.ResourceTaxes, instrumentation.OperationUpdate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateTaxSetting(ctx, request, sc)
		}))

	return nil
}

func handleListTaxReports(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	var out map[string]interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, reportsPath, nil, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list tax reports: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleGetTaxReport(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	reportID := common.String(request.GetArguments(), "reportId")
	if reportID == "" {
		return mcp.NewToolResultError("reportId is required"), nil
	}

	var out map[string]interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, reportsPath+reportID+"/", nil, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get tax report: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleValidateTaxNumber(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	taxNumber := common.String(args, "taxNumber")
	if taxNumber == "" {
		return mcp.NewToolResultError("taxNumber is required"), nil
	}
	regionCode := common.String(args, "regionCode")
	if regionCode == "" {
		return mcp.NewToolResultError("regionCode is required"), nil
	}

	body := map[string]interface{}{
		"tax_number":  taxNumber,
		"region_code": regionCode,
	}

	var out map[string]interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Post(ctx, accessToken, "api/v1/taxes/check-tax-number/", body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to validate tax number: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleGenerateFinanzamtPreview(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	reportID := common.String(request.GetArguments(), "reportId")
	if reportID == "" {
		return mcp.NewToolResultError("reportId is required"), nil
	}

	var pdf []byte
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		var callErr error
		pdf, callErr = sc.API().PostRaw(ctx, accessToken, reportsPath+reportID+"/generate-preview/", nil)
		return callErr
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to generate preview: %v", err)), nil
	}

	path, err := savePDF("tax-report-preview-*.pdf", pdf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to save preview PDF: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Preview PDF saved to %s", path)), nil
}

func handleSubmitTaxReport(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	reportID := common.String(request.GetArguments(), "reportId")
	if reportID == "" {
		return mcp.NewToolResultError("reportId is required"), nil
	}

	var out map[string]interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Post(ctx, accessToken, reportsPath+reportID+"/submit-report/", nil, &out)
	})
	if err != nil {
		var apiErr *norman.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden {
			return mcp.NewToolResultError("Submitting tax reports requires a paid Norman subscription"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to submit tax report: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleListTaxStates(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	var out interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, "api/v1/taxes/states/", nil, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list tax states: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleListTaxSettings(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	var out interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, taxSettingsPath, nil, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list tax settings: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleUpdateTaxSetting(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	settingID := common.String(args, "settingId")
	if settingID == "" {
		return mcp.NewToolResultError("settingId is required"), nil
	}

	body := map[string]interface{}{}
	if v := common.String(args, "taxType"); v != "" {
		body["taxType"] = v
	}
	if v := common.String(args, "vatType"); v != "" {
		body["vatType"] = v
	}
	if v, ok := common.Float(args, "vatPercent"); ok {
		body["vatPercent"] = v
	}
	if v := common.String(args, "startTaxReportDate"); v != "" {
		body["startTaxReportDate"] = v
	}
	if v := common.String(args, "reportingFrequency"); v != "" {
		body["reportingFrequency"] = v
	}
	if len(body) == 0 {
		return mcp.NewToolResultError("no fields to update"), nil
	}

	var out map[string]interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Patch(ctx, accessToken, taxSettingsPath+settingID+"/", body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update tax setting: %v", err)), nil
	}
	return common.JSONResult(out)
}

// savePDF writes content to a fresh temp file readable only by the
// current user and returns its path.
func savePDF(pattern string, content []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := f.Chmod(0o600); err != nil {
		return "", err
	}
	if _, err := f.Write(content); err != nil {
		return "", err
	}
	return f.Name(), nil
}
