package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/norman-finance/norman-mcp-go/internal/server"
)

// RegisterNormanResources registers session-scoped resources. These give
// clients cheap read access to who is logged in and which company the
// tools operate on, without spending a tool call.
func RegisterNormanResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	sessionResource := mcp.NewResource(
		"norman://session",
		"Current Session",
		mcp.WithResourceDescription("The authenticated Norman account and active company"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(sessionResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleSession(ctx, request, sc)
	})

	companyResource := mcp.NewResource(
		"norman://company",
		"Company Profile",
		mcp.WithResourceDescription("The profile of the active Norman company"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(companyResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleCompany(ctx, request, sc)
	})

	return nil
}

func handleSession(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	auth, err := sc.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("no authenticated session: %w", err)
	}

	data := map[string]interface{}{
		"email":       auth.Email,
		"companyId":   auth.CompanyID,
		"environment": sc.Config().Environment,
		"readOnly":    sc.ReadOnly(),
	}
	return jsonResource(request.Params.URI, data)
}

func handleCompany(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	companyID, err := sc.CompanyID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve company: %w", err)
	}

	var company map[string]interface{}
	err = sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, fmt.Sprintf("api/v1/companies/%s/", companyID), nil, &company)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get company profile: %w", err)
	}
	return jsonResource(request.Params.URI, company)
}

func jsonResource(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode resource: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(encoded),
		},
	}, nil
}
