package invoice_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/norman-finance/norman-mcp-go/internal/server"
	"github.com/norman-finance/norman-mcp-go/internal/tools/common"
)

const (
	defaultListLimit  = 100
	defaultDueDays    = 30
	defaultColor      = "#FFFFFF"
	defaultFont       = "Plus Jakarta Sans"
	dateLayout        = "2006-01-02"
	defaultEndedCount = 3
)

func handleListInvoices(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	query := url.Values{}
	if v := common.String(args, "status"); v != "" {
		query.Set("status", v)
	}
	if v := common.String(args, "name"); v != "" {
		query.Set("name", v)
	}
	if v := common.String(args, "dateFrom"); v != "" {
		query.Set("dateFrom", v)
	}
	if v := common.String(args, "dateTo"); v != "" {
		query.Set("dateTo", v)
	}
	limit := defaultListLimit
	if v, ok := common.Int(args, "limit"); ok && v > 0 {
		limit = v
	}
	query.Set("limit", strconv.Itoa(limit))

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, invoicesPath(companyID), query, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list invoices: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleGetInvoice(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	invoiceID := common.String(args, "invoiceId")
	if invoiceID == "" {
		return mcp.NewToolResultError("invoiceId is required"), nil
	}

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, invoicesPath(companyID)+invoiceID+"/", nil, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get invoice: %v", err)), nil
	}
	return common.JSONResult(out)
}

// parseItems decodes the items argument, a JSON array of line items.
func parseItems(raw string) ([]interface{}, error) {
	var items []interface{}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("items must be a JSON array: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("items must contain at least one line item")
	}
	return items, nil
}

// nextInvoiceNumber asks Norman for the next free invoice number.
func nextInvoiceNumber(ctx context.Context, sc *server.ServerContext, companyID string) (string, error) {
	var out struct {
		NextInvoiceNumber string `json:"nextInvoiceNumber"`
	}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, invoicesPath(companyID)+"next-invoice-number/", nil, &out)
	})
	if err != nil {
		return "", err
	}
	return out.NextInvoiceNumber, nil
}

// buildInvoiceBody assembles the invoice payload fields shared between
// one-off and recurring invoices.
func buildInvoiceBody(ctx context.Context, args map[string]interface{}, sc *server.ServerContext, companyID, issued string) (map[string]interface{}, *mcp.CallToolResult) {
	clientID := common.String(args, "clientId")
	if clientID == "" {
		return nil, mcp.NewToolResultError("clientId is required")
	}

	rawItems := common.String(args, "items")
	if rawItems == "" {
		return nil, mcp.NewToolResultError("items is required")
	}
	items, err := parseItems(rawItems)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}

	invoiceType := common.StringOr(args, "invoiceType", "SERVICES")
	if invoiceType != "SERVICES" && invoiceType != "GOODS" {
		return nil, mcp.NewToolResultError("invoiceType must be either 'SERVICES' or 'GOODS'")
	}

	invoiceNumber := common.String(args, "invoiceNumber")
	if invoiceNumber == "" {
		invoiceNumber, err = nextInvoiceNumber(ctx, sc, companyID)
		if err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("Failed to get next invoice number: %v", err))
		}
	}

	issuedDate, err := time.Parse(dateLayout, issued)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Invalid issue date: %v", err))
	}

	// The company email appears on the invoice as the sender address.
	companyEmail := ""
	if auth, aerr := sc.Identity(ctx); aerr == nil {
		companyEmail = auth.Email
	}

	body := map[string]interface{}{
		"client":        clientID,
		"invoiceNumber": invoiceNumber,
		"issued":        issued,
		"invoicedItems": items,
		"currency":      common.StringOr(args, "currency", "EUR"),
		"language":      common.StringOr(args, "language", "en"),
		"invoiceType":   invoiceType,
		"isVatIncluded": common.BoolOr(args, "isVatIncluded", false),
		"createQr":      common.BoolOr(args, "createQr", false),
		"isToSend":      false,
		"type":          "invoice",
		"companyId":     companyID,
		"companyEmail":  companyEmail,
		"dueTo":         common.StringOr(args, "dueTo", issuedDate.AddDate(0, 0, defaultDueDays).Format(dateLayout)),
		"paymentTerms":  common.String(args, "paymentTerms"),
		"notes":         common.String(args, "notes"),
		"bankName":      common.String(args, "bankName"),
		"iban":          common.String(args, "iban"),
		"bic":           common.String(args, "bic"),
		"colorSchema":   defaultColor,
		"font":          defaultFont,
		"settingsOnOverdue": map[string]interface{}{
			"isToAutosendNotification": false,
		},
	}

	switch invoiceType {
	case "SERVICES":
		body["serviceStartDate"] = common.StringOr(args, "serviceStartDate", issued)
		body["serviceEndDate"] = common.StringOr(args, "serviceEndDate", issuedDate.AddDate(0, 0, defaultDueDays).Format(dateLayout))
	case "GOODS":
		body["deliveryDate"] = common.StringOr(args, "deliveryDate", issued)
	}

	return body, nil
}

func handleCreateInvoice(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	issued := common.StringOr(args, "issued", time.Now().Format(dateLayout))
	body, errResult := buildInvoiceBody(ctx, args, sc, companyID, issued)
	if errResult != nil {
		return errResult, nil
	}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Post(ctx, accessToken, invoicesPath(companyID), body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create invoice: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleCreateRecurringInvoice(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	frequencyType := common.String(args, "frequencyType")
	if frequencyType == "" {
		return mcp.NewToolResultError("frequencyType is required"), nil
	}
	frequencyUnit, ok := common.Int(args, "frequencyUnit")
	if !ok || frequencyUnit <= 0 {
		return mcp.NewToolResultError("frequencyUnit must be a positive number"), nil
	}
	startsFromDate := common.String(args, "startsFromDate")
	if startsFromDate == "" {
		return mcp.NewToolResultError("startsFromDate is required"), nil
	}
	if _, err := time.Parse(dateLayout, startsFromDate); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid startsFromDate: %v", err)), nil
	}

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// A recurring series is issued from its start date.
	body, errResult := buildInvoiceBody(ctx, args, sc, companyID, startsFromDate)
	if errResult != nil {
		return errResult, nil
	}

	body["isRecurring"] = true
	body["recurringNumber"] = body["invoiceNumber"]
	body["frequencyType"] = frequencyType
	body["frequencyUnit"] = frequencyUnit
	body["startsFromDate"] = startsFromDate

	endsOnDate := common.String(args, "endsOnDate")
	endsOnCount, hasCount := common.Int(args, "endsOnInvoiceCount")
	switch {
	case endsOnDate != "":
		body["endsOnDate"] = endsOnDate
		if hasCount {
			body["endsOnInvoiceCount"] = endsOnCount
		}
	case hasCount:
		body["endsOnInvoiceCount"] = endsOnCount
	default:
		body["endsOnInvoiceCount"] = defaultEndedCount
	}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Post(ctx, accessToken, fmt.Sprintf("api/v1/companies/%s/recurring-invoices/", companyID), body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create recurring invoice: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleSendInvoice(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, sendPath string) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	invoiceID := common.String(args, "invoiceId")
	if invoiceID == "" {
		return mcp.NewToolResultError("invoiceId is required"), nil
	}
	subject := common.String(args, "subject")
	if subject == "" {
		return mcp.NewToolResultError("subject is required"), nil
	}
	mailBody := common.String(args, "body")
	if mailBody == "" {
		return mcp.NewToolResultError("body is required"), nil
	}

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]interface{}{
		"subject":         subject,
		"body":            mailBody,
		"isSendToCompany": common.BoolOr(args, "isSendToCompany", false),
	}
	if v := common.String(args, "additionalEmails"); v != "" {
		emails := []string{}
		for _, email := range strings.Split(v, ",") {
			if email = strings.TrimSpace(email); email != "" {
				emails = append(emails, email)
			}
		}
		body["additionalEmails"] = emails
	}
	if v := common.String(args, "customClientEmail"); v != "" {
		body["customClientEmail"] = v
	}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Post(ctx, accessToken, invoicesPath(companyID)+invoiceID+"/"+sendPath, body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send invoice: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleLinkInvoiceTransaction(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	invoiceID := common.String(args, "invoiceId")
	if invoiceID == "" {
		return mcp.NewToolResultError("invoiceId is required"), nil
	}
	transactionID := common.String(args, "transactionId")
	if transactionID == "" {
		return mcp.NewToolResultError("transactionId is required"), nil
	}

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]interface{}{"transaction": transactionID}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Post(ctx, accessToken, invoicesPath(companyID)+invoiceID+"/link-transaction/", body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to link transaction: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleGetEInvoiceXML(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	invoiceID := common.String(args, "invoiceId")
	if invoiceID == "" {
		return mcp.NewToolResultError("invoiceId is required"), nil
	}

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var xml []byte
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		raw, gerr := sc.API().GetRaw(ctx, accessToken, invoicesPath(companyID)+invoiceID+"/xml/", nil)
		if gerr != nil {
			return gerr
		}
		xml = raw
		return nil
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get e-invoice XML: %v", err)), nil
	}
	return mcp.NewToolResultText(string(xml)), nil
}
