package invoice_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/norman-finance/norman-mcp-go/internal/instrumentation"
	"github.com/norman-finance/norman-mcp-go/internal/server"
	"github.com/norman-finance/norman-mcp-go/internal/tools/common"
)

// RegisterInvoiceTools registers all invoice-related tools with the MCP server.
func RegisterInvoiceTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listTool := mcp.NewTool("list_invoices",
		mcp.WithDescription("List invoices with optional filtering"),
		mcp.WithString("status",
			mcp.Description("Filter by invoice status (e.g. draft, sent, paid, overdue)"),
		),
		mcp.WithString("name",
			mcp.Description("Filter by invoice or client name"),
		),
		mcp.WithString("dateFrom",
			mcp.Description("Include invoices issued on or after this date (YYYY-MM-DD)"),
		),
		mcp.WithString("dateTo",
			mcp.Description("Include invoices issued on or before this date (YYYY-MM-DD)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of invoices to return (default 100)"),
		),
	)
	s.AddTool(listTool, common.InstrumentedToolHandlerWithResource("list_invoices",
		instrumentation.ResourceInvoices, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListInvoices(ctx, request, sc)
		}))

	getTool := mcp.NewTool("get_invoice",
		mcp.WithDescription("Get detailed information about a specific invoice"),
		mcp.WithString("invoiceId",
			mcp.Required(),
			mcp.Description("The ID of the invoice to retrieve"),
		),
	)
	s.AddTool(getTool, common.InstrumentedToolHandlerWithResource("get_invoice",
		instrumentation.ResourceInvoices, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetInvoice(ctx, request, sc)
		}))

	xmlTool := mcp.NewTool("get_einvoice_xml",
		mcp.WithDescription("Get the e-invoice XML document for a specific invoice"),
		mcp.WithString("invoiceId",
			mcp.Required(),
			mcp.Description("The ID of the invoice"),
		),
	)
	s.AddTool(xmlTool, common.InstrumentedToolHandlerWithResource("get_einvoice_xml",
		instrumentation.ResourceInvoices, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetEInvoiceXML(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	createTool := mcp.NewTool("create_invoice",
		mcp.WithDescription("Create a new invoice. Items is a JSON array of objects with name, quantity, rate, and vatRate fields."),
		mcp.WithString("clientId",
			mcp.Required(),
			mcp.Description("The ID of the client to invoice"),
		),
		mcp.WithString("items",
			mcp.Required(),
			mcp.Description(`Invoice line items as a JSON array, e.g. [{"name":"Consulting","quantity":10,"rate":120,"vatRate":19}]`),
		),
		mcp.WithString("invoiceNumber",
			mcp.Description("Invoice number (default: next free number)"),
		),
		mcp.WithString("issued",
			mcp.Description("Issue date (YYYY-MM-DD, default today)"),
		),
		mcp.WithString("dueTo",
			mcp.Description("Due date (YYYY-MM-DD, default 30 days after issue)"),
		),
		mcp.WithString("currency",
			mcp.Description("Currency code (default EUR)"),
		),
		mcp.WithString("language",
			mcp.Description("Invoice language: en or de (default en)"),
		),
		mcp.WithString("invoiceType",
			mcp.Description("Invoice type: SERVICES or GOODS (default SERVICES)"),
		),
		mcp.WithBoolean("isVatIncluded",
			mcp.Description("Whether item prices already include VAT"),
		),
		mcp.WithString("paymentTerms",
			mcp.Description("Payment terms text"),
		),
		mcp.WithString("notes",
			mcp.Description("Additional notes"),
		),
		mcp.WithString("bankName",
			mcp.Description("Bank name for the payment details"),
		),
		mcp.WithString("iban",
			mcp.Description("IBAN for the payment details"),
		),
		mcp.WithString("bic",
			mcp.Description("BIC for the payment details"),
		),
		mcp.WithBoolean("createQr",
			mcp.Description("Render a payment QR code on the invoice"),
		),
		mcp.WithString("serviceStartDate",
			mcp.Description("Service period start (SERVICES invoices, YYYY-MM-DD)"),
		),
		mcp.WithString("serviceEndDate",
			mcp.Description("Service period end (SERVICES invoices, YYYY-MM-DD)"),
		),
		mcp.WithString("deliveryDate",
			mcp.Description("Delivery date (GOODS invoices, YYYY-MM-DD)"),
		),
	)
	s.AddTool(createTool, common.InstrumentedToolHandlerWithResource("create_invoice",
		instrumentation.ResourceInvoices, instrumentation.OperationCreate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateInvoice(ctx, request, sc)
		}))

	recurringTool := mcp.NewTool("create_recurring_invoice",
		mcp.WithDescription("Create a recurring invoice that Norman issues on a schedule"),
		mcp.WithString("clientId",
			mcp.Required(),
			mcp.Description("The ID of the client to invoice"),
		),
		mcp.WithString("items",
			mcp.Required(),
			mcp.Description(`Invoice line items as a JSON array, e.g. [{"name":"Hosting","quantity":1,"rate":49,"vatRate":19}]`),
		),
		mcp.WithString("frequencyType",
			mcp.Required(),
			mcp.Description("Recurrence frequency type (e.g. WEEKLY, MONTHLY, YEARLY)"),
		),
		mcp.WithNumber("frequencyUnit",
			mcp.Required(),
			mcp.Description("Number of frequency periods between invoices"),
		),
		mcp.WithString("startsFromDate",
			mcp.Required(),
			mcp.Description("Date of the first invoice (YYYY-MM-DD)"),
		),
		mcp.WithString("endsOnDate",
			mcp.Description("Stop recurring on this date (YYYY-MM-DD)"),
		),
		mcp.WithNumber("endsOnInvoiceCount",
			mcp.Description("Stop after this many invoices (default 3 when no end date is given)"),
		),
		mcp.WithString("invoiceNumber",
			mcp.Description("Invoice number (default: next free number)"),
		),
		mcp.WithString("currency",
			mcp.Description("Currency code (default EUR)"),
		),
		mcp.WithString("language",
			mcp.Description("Invoice language: en or de (default en)"),
		),
		mcp.WithString("invoiceType",
			mcp.Description("Invoice type: SERVICES or GOODS (default SERVICES)"),
		),
		mcp.WithBoolean("isVatIncluded",
			mcp.Description("Whether item prices already include VAT"),
		),
	)
	s.AddTool(recurringTool, common.InstrumentedToolHandlerWithResource("create_recurring_invoice",
		instrumentation.ResourceInvoices, instrumentation.OperationCreate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateRecurringInvoice(ctx, request, sc)
		}))

	sendTool := mcp.NewTool("send_invoice",
		mcp.WithDescription("Send an invoice via email"),
		mcp.WithString("invoiceId",
			mcp.Required(),
			mcp.Description("The ID of the invoice to send"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Email subject"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Email body"),
		),
		mcp.WithBoolean("isSendToCompany",
			mcp.Description("Also send a copy to the company's own email"),
		),
		mcp.WithString("additionalEmails",
			mcp.Description("Comma-separated additional recipient emails"),
		),
		mcp.WithString("customClientEmail",
			mcp.Description("Override the client's stored email address"),
		),
	)
	s.AddTool(sendTool, common.InstrumentedToolHandlerWithResource("send_invoice",
		instrumentation.ResourceInvoices, instrumentation.OperationSend, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSendInvoice(ctx, request, sc, "send/")
		}))

	overdueTool := mcp.NewTool("send_invoice_overdue_reminder",
		mcp.WithDescription("Send an overdue payment reminder for an invoice via email"),
		mcp.WithString("invoiceId",
			mcp.Required(),
			mcp.Description("The ID of the overdue invoice"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Email subject"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Email body"),
		),
		mcp.WithBoolean("isSendToCompany",
			mcp.Description("Also send a copy to the company's own email"),
		),
		mcp.WithString("additionalEmails",
			mcp.Description("Comma-separated additional recipient emails"),
		),
		mcp.WithString("customClientEmail",
			mcp.Description("Override the client's stored email address"),
		),
	)
	s.AddTool(overdueTool, common.InstrumentedToolHandlerWithResource("send_invoice_overdue_reminder",
		instrumentation.ResourceInvoices, instrumentation.OperationSend, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSendInvoice(ctx, request, sc, "send-on-overdue/")
		}))

	linkTool := mcp.NewTool("link_invoice_transaction",
		mcp.WithDescription("Link a payment transaction to an invoice"),
		mcp.WithString("invoiceId",
			mcp.Required(),
			mcp.Description("The ID of the invoice"),
		),
		mcp.WithString("transactionId",
			mcp.Required(),
			mcp.Description("The ID of the transaction to link"),
		),
	)
	s.AddTool(linkTool, common.InstrumentedToolHandlerWithResource("link_invoice_transaction",
		instrumentation.ResourceInvoices, instrumentation.OperationUpdate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleLinkInvoiceTransaction(ctx, request, sc)
		}))

	return nil
}

func invoicesPath(companyID string) string {
	return fmt.Sprintf("api/v1/companies/%s/invoices/", companyID)
}
