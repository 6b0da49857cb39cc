package document_tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/norman-finance/norman-mcp-go/internal/instrumentation"
	"github.com/norman-finance/norman-mcp-go/internal/norman"
	"github.com/norman-finance/norman-mcp-go/internal/server"
	"github.com/norman-finance/norman-mcp-go/internal/tools/common"
)

// RegisterDocumentTools registers all attachment-related tools with the MCP
// server.
func RegisterDocumentTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listTool := mcp.NewTool("list_attachments",
		mcp.WithDescription("List document attachments (receipts, invoices, contracts) with optional filters"),
		mcp.WithString("fileName",
			mcp.Description("Filter by file name (partial match)"),
		),
		mcp.WithBoolean("linked",
			mcp.Description("Only attachments that are (or are not) linked to a transaction"),
		),
		mcp.WithString("attachmentType",
			mcp.Description("Filter by type: invoice, receipt, contract, or other"),
		),
		mcp.WithString("description",
			mcp.Description("Filter by description"),
		),
		mcp.WithString("brandName",
			mcp.Description("Filter by brand or supplier name"),
		),
	)
	s.AddTool(listTool, common.InstrumentedToolHandlerWithResource("list_attachments",
		instrumentation.ResourceDocuments, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListAttachments(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	createTool := mcp.NewTool("create_attachment",
		mcp.WithDescription("Upload a document attachment. Provide either filePath (local file) or fileContentBase64 together with fileName."),
		mcp.WithString("filePath",
			mcp.Description("Path to a local file to upload"),
		),
		mcp.WithString("fileContentBase64",
			mcp.Description("Base64-encoded file content (alternative to filePath)"),
		),
		mcp.WithString("fileName",
			mcp.Description("File name to store (required with fileContentBase64)"),
		),
		mcp.WithString("transactionId",
			mcp.Description("Transaction to link the attachment to"),
		),
		mcp.WithString("attachmentType",
			mcp.Description("Attachment type: invoice, receipt, contract, or other (default receipt)"),
		),
		mcp.WithNumber("amount",
			mcp.Description("Document amount"),
		),
		mcp.WithString("currency",
			mcp.Description("Currency code (default EUR)"),
		),
		mcp.WithString("description",
			mcp.Description("Document description"),
		),
		mcp.WithString("supplierCountry",
			mcp.Description("Supplier country: DE, INSIDE_EU, or OUTSIDE_EU"),
		),
		mcp.WithString("valueDate",
			mcp.Description("Document date (YYYY-MM-DD, default today)"),
		),
		mcp.WithNumber("vatRate",
			mcp.Description("VAT rate percentage: 0, 7, or 19"),
		),
		mcp.WithString("saleType",
			mcp.Description("Sale type: GOODS or SERVICES"),
		),
		mcp.WithString("brandName",
			mcp.Description("Brand or supplier name"),
		),
	)
	s.AddTool(createTool, common.InstrumentedToolHandlerWithResource("create_attachment",
		instrumentation.ResourceDocuments, instrumentation.OperationUpload, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateAttachment(ctx, request, sc)
		}))

	bulkTool := mcp.NewTool("upload_bulk_attachments",
		mcp.WithDescription("Upload several local files in one request; Norman creates a transaction per document"),
		mcp.WithString("filePaths",
			mcp.Required(),
			mcp.Description(`Files to upload, as a JSON array ["a.pdf","b.pdf"] or a comma-separated list`),
		),
		mcp.WithString("cashflowType",
			mcp.Description("Cashflow type for the created transactions: INCOME or EXPENSE"),
		),
	)
	s.AddTool(bulkTool, common.InstrumentedToolHandlerWithResource("upload_bulk_attachments",
		instrumentation.ResourceDocuments, instrumentation.OperationUpload, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUploadBulkAttachments(ctx, request, sc)
		}))

	linkTool := mcp.NewTool("link_attachment_transaction",
		mcp.WithDescription("Link an existing attachment to a transaction"),
		mcp.WithString("attachmentId",
			mcp.Required(),
			mcp.Description("The ID of the attachment"),
		),
		mcp.WithString("transactionId",
			mcp.Required(),
			mcp.Description("The ID of the transaction to link"),
		),
	)
	s.AddTool(linkTool, common.InstrumentedToolHandlerWithResource("link_attachment_transaction",
		instrumentation.ResourceDocuments, instrumentation.OperationUpdate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleLinkAttachmentTransaction(ctx, request, sc)
		}))

	return nil
}

func attachmentsPath(companyID string) string {
	return fmt.Sprintf("api/v1/companies/%s/attachments/", companyID)
}

func handleListAttachments(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	query := url.Values{}
	if v := common.String(args, "fileName"); v != "" {
		query.Set("file_name", v)
	}
	if v, ok := common.Bool(args, "linked"); ok {
		query.Set("linked", strconv.FormatBool(v))
	}
	if v := common.String(args, "attachmentType"); v != "" {
		if !validAttachmentType(v) {
			return mcp.NewToolResultError("attachmentType must be one of invoice, receipt, contract, or other"), nil
		}
		query.Set("has_type", v)
	}
	if v := common.String(args, "description"); v != "" {
		query.Set("description", v)
	}
	if v := common.String(args, "brandName"); v != "" {
		query.Set("brand_name", v)
	}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, attachmentsPath(companyID), query, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list attachments: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleCreateAttachment(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	fileName, content, errResult := attachmentContent(args)
	if errResult != nil {
		return errResult, nil
	}

	attachmentType := common.StringOr(args, "attachmentType", "receipt")
	if !validAttachmentType(attachmentType) {
		return mcp.NewToolResultError("attachmentType must be one of invoice, receipt, contract, or other"), nil
	}

	if v := common.String(args, "supplierCountry"); v != "" && v != "DE" && v != "INSIDE_EU" && v != "OUTSIDE_EU" {
		return mcp.NewToolResultError("supplierCountry must be one of DE, INSIDE_EU, or OUTSIDE_EU"), nil
	}
	if v := common.String(args, "saleType"); v != "" && v != "GOODS" && v != "SERVICES" {
		return mcp.NewToolResultError("saleType must be either 'GOODS' or 'SERVICES'"), nil
	}
	if v, ok := common.Int(args, "vatRate"); ok && v != 0 && v != 7 && v != 19 {
		return mcp.NewToolResultError("vatRate must be one of 0, 7, or 19"), nil
	}

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	fields := map[string]string{
		"attachment_type": attachmentType,
		"currency":        common.StringOr(args, "currency", "EUR"),
		"value_date":      common.StringOr(args, "valueDate", time.Now().Format("2006-01-02")),
	}
	if v := common.String(args, "transactionId"); v != "" {
		fields["transactions"] = v
	}
	if v, ok := common.Float(args, "amount"); ok {
		fields["amount"] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if v := common.String(args, "description"); v != "" {
		fields["description"] = v
	}
	if v := common.String(args, "supplierCountry"); v != "" {
		fields["supplier_country"] = v
	}
	if v, ok := common.Int(args, "vatRate"); ok {
		fields["vat_rate"] = strconv.Itoa(v)
	}
	if v := common.String(args, "saleType"); v != "" {
		fields["sale_type"] = v
	}
	if v := common.String(args, "brandName"); v != "" {
		fields["brand_name"] = v
	}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Upload(ctx, accessToken, attachmentsPath(companyID), fields, "file", fileName, content, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to upload attachment: %v", err)), nil
	}
	return common.JSONResult(out)
}

// attachmentContent resolves the uploaded bytes from either a local file
// path or inline base64 content.
func attachmentContent(args map[string]interface{}) (string, []byte, *mcp.CallToolResult) {
	filePath := common.String(args, "filePath")
	encoded := common.String(args, "fileContentBase64")

	switch {
	case filePath != "" && encoded != "":
		return "", nil, mcp.NewToolResultError("provide either filePath or fileContentBase64, not both")
	case filePath != "":
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", nil, mcp.NewToolResultError(fmt.Sprintf("Failed to read file: %v", err))
		}
		return filepath.Base(filePath), content, nil
	case encoded != "":
		fileName := common.String(args, "fileName")
		if fileName == "" {
			return "", nil, mcp.NewToolResultError("fileName is required with fileContentBase64")
		}
		content, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return "", nil, mcp.NewToolResultError("fileContentBase64 is not valid base64")
		}
		return fileName, content, nil
	default:
		return "", nil, mcp.NewToolResultError("either filePath or fileContentBase64 is required")
	}
}

// bulkUploadPath is not company-scoped; Norman derives the company from
// the token and creates one transaction per uploaded document.
const bulkUploadPath = "api/v1/accounting/transactions/upload-documents/"

func handleUploadBulkAttachments(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	paths, errResult := parseFilePaths(common.String(args, "filePaths"))
	if errResult != nil {
		return errResult, nil
	}

	cashflowType := common.String(args, "cashflowType")
	if cashflowType != "" && cashflowType != "INCOME" && cashflowType != "EXPENSE" {
		return mcp.NewToolResultError("cashflowType must be either 'INCOME' or 'EXPENSE'"), nil
	}

	files := make([]norman.UploadFile, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read file %s: %v", path, err)), nil
		}
		files = append(files, norman.UploadFile{Name: filepath.Base(path), Content: content})
	}

	fields := map[string]string{}
	if cashflowType != "" {
		fields["cashflow_type"] = cashflowType
	}

	var out interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().UploadFiles(ctx, accessToken, bulkUploadPath, fields, "files", files, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to upload documents: %v", err)), nil
	}
	return common.JSONResult(out)
}

// parseFilePaths accepts the upload list as a JSON array of strings or a
// comma-separated string.
func parseFilePaths(raw string) ([]string, *mcp.CallToolResult) {
	if strings.TrimSpace(raw) == "" {
		return nil, mcp.NewToolResultError("filePaths is required")
	}

	var paths []string
	if strings.HasPrefix(strings.TrimSpace(raw), "[") {
		if err := json.Unmarshal([]byte(raw), &paths); err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("filePaths must be a JSON array of strings: %v", err))
		}
	} else {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
	}
	if len(paths) == 0 {
		return nil, mcp.NewToolResultError("filePaths must name at least one file")
	}
	return paths, nil
}

func handleLinkAttachmentTransaction(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	attachmentID := common.String(args, "attachmentId")
	if attachmentID == "" {
		return mcp.NewToolResultError("attachmentId is required"), nil
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
		return sc.API().Post(ctx, accessToken, attachmentsPath(companyID)+attachmentID+"/link-transaction/", body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to link attachment: %v", err)), nil
	}
	return common.JSONResult(out)
}

func validAttachmentType(v string) bool {
	switch v {
	case "invoice", "receipt", "contract", "other":
		return true
	}
	return false
}
