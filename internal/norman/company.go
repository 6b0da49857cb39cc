package norman

import (
	"context"
	"encoding/json"
	"fmt"
)

// Company is the subset of Norman's company record the server needs.
type Company struct {
	PublicID string `json:"publicId"`
	Name     string `json:"name"`
	VATID    string `json:"vatId,omitempty"`
	TaxState string `json:"taxState,omitempty"`
}

// Companies fetches the companies the authenticated account can access.
// Norman returns either a paginated {"results": [...]} envelope or a bare
// array depending on the endpoint version; both are handled.
func (c *Client) Companies(ctx context.Context, accessToken string) ([]Company, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, accessToken, "api/v1/companies/", nil, &raw); err != nil {
		return nil, err
	}

	var envelope struct {
		Results []Company `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Results != nil {
		return envelope.Results, nil
	}

	var plain []Company
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain, nil
	}

	return nil, fmt.Errorf("unexpected companies response shape")
}

// FirstCompanyID resolves the account's active company. Norman accounts
// have exactly one company today; the first entry is authoritative.
func (c *Client) FirstCompanyID(ctx context.Context, accessToken string) (string, error) {
	companies, err := c.Companies(ctx, accessToken)
	if err != nil {
		return "", err
	}
	if len(companies) == 0 {
		return "", fmt.Errorf("account has no company")
	}
	return companies[0].PublicID, nil
}
