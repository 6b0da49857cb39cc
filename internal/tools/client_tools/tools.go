package client_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/norman-finance/norman-mcp-go/internal/instrumentation"
	"github.com/norman-finance/norman-mcp-go/internal/server"
	"github.com/norman-finance/norman-mcp-go/internal/tools/common"
)

// RegisterClientTools registers all client-related tools with the MCP server.
func RegisterClientTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listTool := mcp.NewTool("list_clients",
		mcp.WithDescription("List all clients of the active company"),
	)
	s.AddTool(listTool, common.InstrumentedToolHandlerWithResource("list_clients",
		instrumentation.ResourceClients, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListClients(ctx, request, sc)
		}))

	getTool := mcp.NewTool("get_client",
		mcp.WithDescription("Get details of a specific client"),
		mcp.WithString("clientId",
			mcp.Required(),
			mcp.Description("The ID of the client to retrieve"),
		),
	)
	s.AddTool(getTool, common.InstrumentedToolHandlerWithResource("get_client",
		instrumentation.ResourceClients, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetClient(ctx, request, sc)
		}))

	if !readOnly {
		createTool := mcp.NewTool("create_client",
			mcp.WithDescription("Create a new client"),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Client name"),
			),
			mcp.WithString("clientType",
				mcp.Description("Client type: business or private (default business)"),
			),
			mcp.WithString("email",
				mcp.Description("Client email address"),
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
			mcp.WithString("country",
				mcp.Description("Country code (e.g. DE)"),
			),
			mcp.WithString("vatNumber",
				mcp.Description("VAT number"),
			),
			mcp.WithString("phoneNumber",
				mcp.Description("Phone number"),
			),
		)
		s.AddTool(createTool, common.InstrumentedToolHandlerWithResource("create_client",
			instrumentation.ResourceClients, instrumentation.OperationCreate, sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleCreateClient(ctx, request, sc)
			}))

		updateTool := mcp.NewTool("update_client",
			mcp.WithDescription("Update an existing client"),
			mcp.WithString("clientId",
				mcp.Required(),
				mcp.Description("The ID of the client to update"),
			),
			mcp.WithString("name",
				mcp.Description("New client name"),
			),
			mcp.WithString("email",
				mcp.Description("New email address"),
			),
			mcp.WithString("address",
				mcp.Description("New street address"),
			),
			mcp.WithString("zipCode",
				mcp.Description("New postal code"),
			),
			mcp.WithString("city",
				mcp.Description("New city"),
			),
			mcp.WithString("country",
				mcp.Description("New country code"),
			),
			mcp.WithString("vatNumber",
				mcp.Description("New VAT number"),
			),
			mcp.WithString("phoneNumber",
				mcp.Description("New phone number"),
			),
		)
		s.AddTool(updateTool, common.InstrumentedToolHandlerWithResource("update_client",
			instrumentation.ResourceClients, instrumentation.OperationUpdate, sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleUpdateClient(ctx, request, sc)
			}))

		deleteTool := mcp.NewTool("delete_client",
			mcp.WithDescription("Delete a client"),
			mcp.WithString("clientId",
				mcp.Required(),
				mcp.Description("The ID of the client to delete"),
			),
		)
		s.AddTool(deleteTool, common.InstrumentedToolHandlerWithResource("delete_client",
			instrumentation.ResourceClients, instrumentation.OperationDelete, sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleDeleteClient(ctx, request, sc)
			}))
	}

	return nil
}

func clientsPath(companyID string) string {
	return fmt.Sprintf("api/v1/companies/%s/clients/", companyID)
}

func handleListClients(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, clientsPath(companyID), nil, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list clients: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleGetClient(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	clientID := common.String(args, "clientId")
	if clientID == "" {
		return mcp.NewToolResultError("clientId is required"), nil
	}

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, clientsPath(companyID)+clientID+"/", nil, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get client: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleCreateClient(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	name := common.String(args, "name")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	clientType := common.StringOr(args, "clientType", "business")
	if clientType != "business" && clientType != "private" {
		return mcp.NewToolResultError("clientType must be either 'business' or 'private'"), nil
	}

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]interface{}{
		"name":       name,
		"clientType": clientType,
		"company":    companyID,
	}
	for arg, field := range clientFields {
		if v := common.String(args, arg); v != "" {
			body[field] = v
		}
	}

	var out map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Post(ctx, accessToken, clientsPath(companyID), body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create client: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleUpdateClient(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	clientID := common.String(args, "clientId")
	if clientID == "" {
		return mcp.NewToolResultError("clientId is required"), nil
	}

	body := map[string]interface{}{}
	if v := common.String(args, "name"); v != "" {
		body["name"] = v
	}
	for arg, field := range clientFields {
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
		return sc.API().Patch(ctx, accessToken, clientsPath(companyID)+clientID+"/", body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update client: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleDeleteClient(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	clientID := common.String(args, "clientId")
	if clientID == "" {
		return mcp.NewToolResultError("clientId is required"), nil
	}

	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Delete(ctx, accessToken, clientsPath(companyID)+clientID+"/")
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to delete client: %v", err)), nil
	}
	return mcp.NewToolResultText("Client deleted successfully"), nil
}

// clientFields maps optional tool arguments to Norman API field names.
var clientFields = map[string]string{
	"email":       "email",
	"address":     "address",
	"zipCode":     "zipCode",
	"city":        "city",
	"country":     "country",
	"vatNumber":   "vatNumber",
	"phoneNumber": "phoneNumber",
}
