package transaction_tools

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/norman-finance/norman-mcp-go/internal/instrumentation"
	"github.com/norman-finance/norman-mcp-go/internal/server"
	"github.com/norman-finance/norman-mcp-go/internal/tools/common"
)

const defaultListLimit = 100

// RegisterTransactionTools registers all transaction-related tools with the
// MCP server.
func RegisterTransactionTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listTool := mcp.NewTool("list_transactions",
		mcp.WithDescription("List and search accounting transactions with optional filters"),
		mcp.WithString("description",
			mcp.Description("Filter by description (case insensitive partial match)"),
		),
		mcp.WithString("dateFrom",
			mcp.Description("Include transactions on or after this date (YYYY-MM-DD)"),
		),
		mcp.WithString("dateTo",
			mcp.Description("Include transactions on or before this date (YYYY-MM-DD)"),
		),
		mcp.WithNumber("minAmount",
			mcp.Description("Minimum transaction amount"),
		),
		mcp.WithNumber("maxAmount",
			mcp.Description("Maximum transaction amount"),
		),
		mcp.WithString("categoryName",
			mcp.Description("Filter by category name"),
		),
		mcp.WithString("status",
			mcp.Description("Filter by verification status: UNVERIFIED or VERIFIED"),
		),
		mcp.WithString("cashflowType",
			mcp.Description("Filter by cashflow type: INCOME or EXPENSE"),
		),
		mcp.WithBoolean("noInvoice",
			mcp.Description("Only transactions without a linked invoice"),
		),
		mcp.WithBoolean("noAttachment",
			mcp.Description("Only transactions without a linked attachment"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of transactions to return (default 100)"),
		),
	)
	s.AddTool(listTool, common.InstrumentedToolHandlerWithResource("list_transactions",
		instrumentation.ResourceTransactions, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListTransactions(ctx, request, sc)
		}))

	getTool := mcp.NewTool("get_transaction",
		mcp.WithDescription("Get details of a specific transaction"),
		mcp.WithString("transactionId",
			mcp.Required(),
			mcp.Description("The ID of the transaction to retrieve"),
		),
	)
	s.AddTool(getTool, common.InstrumentedToolHandlerWithResource("get_transaction",
		instrumentation.ResourceTransactions, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetTransaction(ctx, request, sc)
		}))

	categorizeTool := mcp.NewTool("categorize_transaction",
		mcp.WithDescription("Suggest a category for a transaction using Norman's detection assistant"),
		mcp.WithNumber("amount",
			mcp.Required(),
			mcp.Description("Transaction amount"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("Transaction description"),
		),
		mcp.WithString("cashflowType",
			mcp.Description("Cashflow type: INCOME or EXPENSE (default EXPENSE)"),
		),
	)
	s.AddTool(categorizeTool, common.InstrumentedToolHandlerWithResource("categorize_transaction",
		instrumentation.ResourceTransactions, instrumentation.OperationSearch, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCategorizeTransaction(ctx, request, sc)
		}))

	if !readOnly {
		createTool := mcp.NewTool("create_transaction",
			mcp.WithDescription("Create a new accounting transaction"),
			mcp.WithNumber("amount",
				mcp.Required(),
				mcp.Description("Transaction amount. The sign is derived from cashflowType."),
			),
			mcp.WithString("description",
				mcp.Required(),
				mcp.Description("Transaction description"),
			),
			mcp.WithString("cashflowType",
				mcp.Required(),
				mcp.Description("Cashflow type: INCOME or EXPENSE"),
			),
			mcp.WithString("valueDate",
				mcp.Description("Value date (YYYY-MM-DD, default today)"),
			),
			mcp.WithNumber("vatRate",
				mcp.Description("VAT rate percentage: 0, 7, or 19 (default 19)"),
			),
			mcp.WithString("saleType",
				mcp.Description("Sale type for income with 0% VAT: GOODS or SERVICES"),
			),
			mcp.WithString("supplierCountry",
				mcp.Description("Supplier country: DE, INSIDE_EU, or OUTSIDE_EU (default DE)"),
			),
			mcp.WithString("categoryId",
				mcp.Description("Optional category ID to assign"),
			),
		)
		s.AddTool(createTool, common.InstrumentedToolHandlerWithResource("create_transaction",
			instrumentation.ResourceTransactions, instrumentation.OperationCreate, sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleCreateTransaction(ctx, request, sc)
			}))

		updateTool := mcp.NewTool("update_transaction",
			mcp.WithDescription("Update an existing transaction"),
			mcp.WithString("transactionId",
				mcp.Required(),
				mcp.Description("The ID of the transaction to update"),
			),
			mcp.WithNumber("amount",
				mcp.Description("New transaction amount"),
			),
			mcp.WithString("description",
				mcp.Description("New transaction description"),
			),
			mcp.WithString("valueDate",
				mcp.Description("New value date (YYYY-MM-DD)"),
			),
			mcp.WithNumber("vatRate",
				mcp.Description("New VAT rate percentage: 0, 7, or 19"),
			),
			mcp.WithString("categoryId",
				mcp.Description("New category ID"),
			),
		)
		s.AddTool(updateTool, common.InstrumentedToolHandlerWithResource("update_transaction",
			instrumentation.ResourceTransactions, instrumentation.OperationUpdate, sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleUpdateTransaction(ctx, request, sc)
			}))
	}

	return nil
}

func transactionsPath(companyID string) string {
	return fmt.Sprintf("api/v1/companies/%s/accounting/transactions/", companyID)
}

func handleListTransactions(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	query := url.Values{}
	if v := common.String(args, "description"); v != "" {
		query.Set("description", v)
	}
	if v := common.String(args, "dateFrom"); v != "" {
		query.Set("dateFrom", v)
	}
	if v := common.String(args, "dateTo"); v != "" {
		query.Set("dateTo", v)
	}
	if v, ok := common.Float(args, "minAmount"); ok {
		query.Set("minAmount", formatAmount(v))
	}
	if v, ok := common.Float(args, "maxAmount"); ok {
		query.Set("maxAmount", formatAmount(v))
	}
	if v := common.String(args, "categoryName"); v != "" {
		query.Set("category_name", v)
	}
	if v := common.String(args, "status"); v != "" {
		if v != "UNVERIFIED" && v != "VERIFIED" {
			return mcp.NewToolResultError("status must be either 'UNVERIFIED' or 'VERIFIED'"), nil
		}
		query.Set("status", v)
	}
	if v := common.String(args, "cashflowType"); v != "" {
		if v != "INCOME" && v != "EXPENSE" {
			return mcp.NewToolResultError("cashflowType must be either 'INCOME' or 'EXPENSE'"), nil
		}
		query.Set("cashflowType", v)
	}
	if v, ok := common.Bool(args, "noInvoice"); ok {
		query.Set("noInvoice", strconv.FormatBool(v))
	}
	if v, ok := common.Bool(args, "noAttachment"); ok {
		query.Set("noAttachment", strconv.FormatBool(v))
	}
	limit := defaultListLimit
	if v, ok := common.Int(args, "limit"); ok && v > 0 {
		limit = v
	}
	query.Set("limit", strconv.Itoa(limit))

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, transactionsPath(companyID), query, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleGetTransaction(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	transactionID := common.String(args, "transactionId")
	if transactionID == "" {
		return mcp.NewToolResultError("transactionId is required"), nil
	}

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, transactionsPath(companyID)+transactionID+"/", nil, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get transaction: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleCreateTransaction(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	amount, ok := common.Float(args, "amount")
	if !ok {
		return mcp.NewToolResultError("amount is required"), nil
	}
	description := common.String(args, "description")
	if description == "" {
		return mcp.NewToolResultError("description is required"), nil
	}
	cashflowType := common.String(args, "cashflowType")
	if cashflowType != "INCOME" && cashflowType != "EXPENSE" {
		return mcp.NewToolResultError("cashflowType must be either 'INCOME' or 'EXPENSE'"), nil
	}

	vatRate := 19
	if v, ok := common.Int(args, "vatRate"); ok {
		vatRate = v
	}
	if vatRate != 0 && vatRate != 7 && vatRate != 19 {
		return mcp.NewToolResultError("vatRate must be one of 0, 7, or 19"), nil
	}

	supplierCountry := common.StringOr(args, "supplierCountry", "DE")
	if supplierCountry != "DE" && supplierCountry != "INSIDE_EU" && supplierCountry != "OUTSIDE_EU" {
		return mcp.NewToolResultError("supplierCountry must be one of DE, INSIDE_EU, or OUTSIDE_EU"), nil
	}

	saleType := common.String(args, "saleType")
	if saleType != "" && saleType != "GOODS" && saleType != "SERVICES" {
		return mcp.NewToolResultError("saleType must be either 'GOODS' or 'SERVICES'"), nil
	}

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// Norman stores income as positive and expenses as negative amounts.
	signed := math.Abs(amount)
	if cashflowType == "EXPENSE" {
		signed = -signed
	}

	body := map[string]interface{}{
		"amount":          signed,
		"description":     description,
		"cashflowType":    cashflowType,
		"valueDate":       common.StringOr(args, "valueDate", time.Now().Format("2006-01-02")),
		"vatRate":         vatRate,
		"saleType":        saleType,
		"supplierCountry": supplierCountry,
		"company":         companyID,
	}
	if v := common.String(args, "categoryId"); v != "" {
		body["category"] = v
	}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Post(ctx, accessToken, transactionsPath(companyID), body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create transaction: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleUpdateTransaction(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	transactionID := common.String(args, "transactionId")
	if transactionID == "" {
		return mcp.NewToolResultError("transactionId is required"), nil
	}

	body := map[string]interface{}{}
	if v, ok := common.Float(args, "amount"); ok {
		body["amount"] = v
	}
	if v := common.String(args, "description"); v != "" {
		body["description"] = v
	}
	if v := common.String(args, "valueDate"); v != "" {
		body["valueDate"] = v
	}
	if v, ok := common.Int(args, "vatRate"); ok {
		if v != 0 && v != 7 && v != 19 {
			return mcp.NewToolResultError("vatRate must be one of 0, 7, or 19"), nil
		}
		body["vatRate"] = v
	}
	if v := common.String(args, "categoryId"); v != "" {
		body["category"] = v
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
		return sc.API().Patch(ctx, accessToken, transactionsPath(companyID)+transactionID+"/", body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update transaction: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleCategorizeTransaction(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	amount, ok := common.Float(args, "amount")
	if !ok {
		return mcp.NewToolResultError("amount is required"), nil
	}
	description := common.String(args, "description")
	if description == "" {
		return mcp.NewToolResultError("description is required"), nil
	}

	transactionType := "expense"
	if common.String(args, "cashflowType") == "INCOME" {
		transactionType = "income"
	}

	body := map[string]interface{}{
		"transaction_amount":      amount,
		"transaction_description": description,
		"transaction_type":        transactionType,
	}

	var out map[string]interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Post(ctx, accessToken, "api/v1/assistant/detect-category/", body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to detect category: %v", err)), nil
	}
	return common.JSONResult(out)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
