package registration_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/norman-finance/norman-mcp-go/internal/instrumentation"
	"github.com/norman-finance/norman-mcp-go/internal/server"
	"github.com/norman-finance/norman-mcp-go/internal/tools/common"
)

const (
	registrationPath = "api/v1/tax-registration/"

	// agentSource identifies registrations created through this server.
	agentSource = "norman_agent"

	// civilStatusSingle is the code Norman uses for unmarried filers.
	// Spouse data is only accepted for other statuses.
	civilStatusSingle = "001"
)

var choiceTypes = map[string]bool{
	"civil-status":                 true,
	"genders":                      true,
	"religions":                    true,
	"income-taxation-methods":      true,
	"profession-founding-articles": true,
	"tax-states":                   true,
	"profit-detections":            true,
}

// RegisterRegistrationTools registers all tax registration tools with the
// MCP server.
func RegisterRegistrationTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	choicesTool := mcp.NewTool("get_tax_registration_choices",
		mcp.WithDescription("Get the available option codes for a tax registration field"),
		mcp.WithString("choiceType",
			mcp.Required(),
			mcp.Description("One of: civil-status, genders, religions, income-taxation-methods, profession-founding-articles, tax-states, profit-detections"),
		),
	)
	s.AddTool(choicesTool, common.InstrumentedToolHandlerWithResource("get_tax_registration_choices",
		instrumentation.ResourceRegistration, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetRegistrationChoices(ctx, request, sc)
		}))

	getTool := mcp.NewTool("get_tax_registration",
		mcp.WithDescription("Get the current tax registration form data"),
		mcp.WithString("sessionKey",
			mcp.Description("Session key returned when the registration was created"),
		),
	)
	s.AddTool(getTool, common.InstrumentedToolHandlerWithResource("get_tax_registration",
		instrumentation.ResourceRegistration, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetRegistration(ctx, request, sc)
		}))

	previewTool := mcp.NewTool("generate_registration_preview",
		mcp.WithDescription("Generate a preview PDF of the tax registration form and save it to a local file"),
		mcp.WithString("publicId",
			mcp.Required(),
			mcp.Description("Public ID of the tax registration"),
		),
	)
	s.AddTool(previewTool, common.InstrumentedToolHandlerWithResource("generate_registration_preview",
		instrumentation.ResourceRegistration, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGenerateRegistrationPreview(ctx, request, sc)
		}))

	statusTool := mcp.NewTool("check_tax_registration_status",
		mcp.WithDescription("Check whether a tax registration has been submitted"),
		mcp.WithString("externalUserId",
			mcp.Required(),
			mcp.Description("External user ID of the tax registration"),
		),
	)
	s.AddTool(statusTool, common.InstrumentedToolHandlerWithResource("check_tax_registration_status",
		instrumentation.ResourceRegistration, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCheckRegistrationStatus(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	createTool := mcp.NewTool("create_tax_registration",
		mcp.WithDescription("Start a new self-employment tax registration (Fragebogen zur steuerlichen Erfassung). Use get_tax_registration_choices for the option codes. Save the public_id and session_key from the response."),
		mcp.WithString("firstName",
			mcp.Required(),
			mcp.Description("Filer first name"),
		),
		mcp.WithString("lastName",
			mcp.Required(),
			mcp.Description("Filer last name"),
		),
		mcp.WithNumber("gender",
			mcp.Required(),
			mcp.Description("Filer gender code (see 'genders' choices)"),
		),
		mcp.WithString("dateOfBirth",
			mcp.Required(),
			mcp.Description("Filer date of birth (YYYY-MM-DD)"),
		),
		mcp.WithString("street",
			mcp.Required(),
			mcp.Description("Residence street name"),
		),
		mcp.WithString("houseNumber",
			mcp.Required(),
			mcp.Description("Residence house number"),
		),
		mcp.WithString("city",
			mcp.Required(),
			mcp.Description("Residence city"),
		),
		mcp.WithString("postCode",
			mcp.Required(),
			mcp.Description("Residence postal code"),
		),
		mcp.WithString("taxId",
			mcp.Required(),
			mcp.Description("Filer German tax ID (IdNr), e.g. 79 538 461 449"),
		),
		mcp.WithString("apartmentNumber",
			mcp.Description("Residence apartment number"),
		),
		mcp.WithString("addressExtra",
			mcp.Description("Additional address info"),
		),
		mcp.WithString("birthName",
			mcp.Description("Filer birth name"),
		),
		mcp.WithString("currentProfession",
			mcp.Description("Filer current profession"),
		),
		mcp.WithString("email",
			mcp.Description("Filer email address"),
		),
		mcp.WithString("phoneNumber",
			mcp.Description("Filer phone number"),
		),
		mcp.WithString("website",
			mcp.Description("Filer website"),
		),
		mcp.WithString("religion",
			mcp.Description("Filer religion code, see 'religions' choices (default 11)"),
		),
		mcp.WithString("civilStatus",
			mcp.Description("Civil status code, see 'civil-status' choices (default 001, single)"),
		),
		mcp.WithString("civilStatusChangedSince",
			mcp.Description("Date the civil status changed (YYYY-MM-DD), for non-single statuses"),
		),
		mcp.WithString("locale",
			mcp.Description("Form locale: en or de (default en)"),
		),
		mcp.WithBoolean("usesPostOfficeBox",
			mcp.Description("Whether the filer uses a post office box"),
		),
		mcp.WithString("spouse",
			mcp.Description(`Spouse details as a JSON object, required for non-single civil statuses. Keys: gender (number), firstName, lastName, dateOfBirth, birthName, currentProfession, taxId, religion, sameAddress (bool), street, houseNumber, apartmentNumber, addressExtra, city, postCode`),
		),
		mcp.WithString("previousAddress",
			mcp.Description(`Previous address as a JSON object when the filer moved from another German city. Keys: movingDate, street, houseNumber, apartmentNumber, addressExtra, city, postCode`),
		),
	)
	s.AddTool(createTool, common.InstrumentedToolHandlerWithResource("create_tax_registration",
		instrumentation.ResourceRegistration, instrumentation.OperationCreate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateRegistration(ctx, request, sc)
		}))

	submitTool := mcp.NewTool("submit_tax_registration",
		mcp.WithDescription("Submit a completed tax registration to the Finanzamt"),
		mcp.WithString("publicId",
			mcp.Required(),
			mcp.Description("Public ID of the tax registration to submit"),
		),
	)
	s.AddTool(submitTool, common.InstrumentedToolHandlerWithResource("submit_tax_registration",
		instrumentation.ResourceRegistration, instrumentation.OperationSend, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSubmitRegistration(ctx, request, sc)
		}))

	return nil
}

func handleGetRegistrationChoices(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	choiceType := common.String(request.GetArguments(), "choiceType")
	if !choiceTypes[choiceType] {
		return mcp.NewToolResultError("choiceType must be one of: civil-status, genders, religions, income-taxation-methods, profession-founding-articles, tax-states, profit-detections"), nil
	}

	// The choices endpoint returns a bare JSON array.
	var out interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, "api/v1/choices/"+choiceType+"/", nil, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get choices: %v", err)), nil
	}
	if list, ok := out.([]interface{}); ok {
		return common.JSONResult(map[string]interface{}{"choices": list})
	}
	return common.JSONResult(out)
}

func handleGetRegistration(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	query := url.Values{}
	if v := common.String(request.GetArguments(), "sessionKey"); v != "" {
		query.Set("sessionKey", v)
	}

	var out map[string]interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, registrationPath+"my/", query, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get tax registration: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleCreateRegistration(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	required := []struct{ arg, payload string }{
		{"firstName", "personAFirstName"},
		{"lastName", "personALastName"},
		{"dateOfBirth", "personADob"},
		{"street", "personAStreet"},
		{"houseNumber", "personAHouseNumber"},
		{"city", "personACity"},
		{"postCode", "personAPostCode"},
		{"taxId", "personAIdnr"},
	}

	body := map[string]interface{}{
		"step":           1,
		"source":         agentSource,
		"externalUserId": uuid.NewString(),
		"locale":         common.StringOr(args, "locale", "en"),
	}
	for _, field := range required {
		v := common.String(args, field.arg)
		if v == "" {
			return mcp.NewToolResultError(field.arg + " is required"), nil
		}
		body[field.payload] = v
	}

	gender, ok := common.Int(args, "gender")
	if !ok {
		return mcp.NewToolResultError("gender is required"), nil
	}
	body["personAGender"] = gender

	body["personABirthName"] = common.String(args, "birthName")
	body["personACurrentProfession"] = common.String(args, "currentProfession")
	body["personAApartmentNumber"] = common.String(args, "apartmentNumber")
	body["personAAddressExt"] = common.String(args, "addressExtra")
	body["personAEmail"] = common.String(args, "email")
	body["personAPhoneNumber"] = common.String(args, "phoneNumber")
	body["personAWebsite"] = common.String(args, "website")
	body["personAReligion"] = common.StringOr(args, "religion", "11")

	civilStatus := common.StringOr(args, "civilStatus", civilStatusSingle)
	body["civilStatus"] = civilStatus

	if common.BoolOr(args, "usesPostOfficeBox", false) {
		body["usesPostOfficeBox"] = true
	}

	if civilStatus != civilStatusSingle {
		spouse, errResult := jsonObjectArg(args, "spouse")
		if errResult != nil {
			return errResult, nil
		}
		if spouse == nil {
			return mcp.NewToolResultError("spouse is required for non-single civil statuses"), nil
		}
		if v := common.String(args, "civilStatusChangedSince"); v != "" {
			body["civilStatusChangedSince"] = v
		}
		applySpouse(body, spouse)
	}

	previous, errResult := jsonObjectArg(args, "previousAddress")
	if errResult != nil {
		return errResult, nil
	}
	body["movedFromOtherGermanCity"] = previous != nil
	if previous != nil {
		applyPreviousAddress(body, previous)
	}

	var out map[string]interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Post(ctx, accessToken, registrationPath, body, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create tax registration: %v", err)), nil
	}
	return common.JSONResult(out)
}

// jsonObjectArg parses a string argument holding a JSON object. A missing
// or empty argument yields a nil map without error.
func jsonObjectArg(args map[string]interface{}, key string) (map[string]interface{}, *mcp.CallToolResult) {
	raw := common.String(args, key)
	if raw == "" {
		return nil, nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, mcp.NewToolResultError(key + " must be a JSON object")
	}
	return obj, nil
}

func applySpouse(body, spouse map[string]interface{}) {
	sameAddress := true
	if v, ok := spouse["sameAddress"].(bool); ok {
		sameAddress = v
	}
	body["personBSameAddress"] = sameAddress

	fields := map[string]string{
		"gender":            "personBGender",
		"firstName":         "personBFirstName",
		"lastName":          "personBLastName",
		"birthName":         "personBBirthName",
		"currentProfession": "personBCurrentProfession",
		"dateOfBirth":       "personBDob",
		"taxId":             "personBIdnr",
	}
	for arg, payload := range fields {
		if v, ok := spouse[arg]; ok {
			body[payload] = v
		}
	}
	body["personBReligion"] = "11"
	if v, ok := spouse["religion"]; ok {
		body["personBReligion"] = v
	}

	if !sameAddress {
		address := map[string]string{
			"street":          "personBStreet",
			"houseNumber":     "personBHouseNumber",
			"apartmentNumber": "personBApartmentNumber",
			"addressExtra":    "personBAddressExt",
			"city":            "personBCity",
			"postCode":        "personBPostCode",
		}
		for arg, payload := range address {
			if v, ok := spouse[arg]; ok {
				body[payload] = v
			}
		}
	}
}

func applyPreviousAddress(body, previous map[string]interface{}) {
	fields := map[string]string{
		"movingDate":      "personAOtherCityMovingDate",
		"street":          "personAOtherCityMovingStreet",
		"houseNumber":     "personAOtherCityMovingHouseNumber",
		"apartmentNumber": "personAOtherCityMovingApartmentNumber",
		"addressExtra":    "personAOtherCityMovingAddressExt",
		"city":            "personAOtherCityMovingCity",
		"postCode":        "personAOtherCityMovingPostCode",
	}
	for arg, payload := range fields {
		if v, ok := previous[arg]; ok {
			body[payload] = v
		}
	}
}

func handleGenerateRegistrationPreview(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	publicID := common.String(request.GetArguments(), "publicId")
	if publicID == "" {
		return mcp.NewToolResultError("publicId is required"), nil
	}

	var pdf []byte
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		var callErr error
		pdf, callErr = sc.API().PostRaw(ctx, accessToken, registrationPath+publicID+"/preview/", nil)
		return callErr
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to generate registration preview: %v", err)), nil
	}

	f, err := os.CreateTemp("", "tax-registration-preview-*.pdf")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to save preview PDF: %v", err)), nil
	}
	defer f.Close()
	if err := f.Chmod(0o600); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to save preview PDF: %v", err)), nil
	}
	if _, err := f.Write(pdf); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to save preview PDF: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Preview PDF saved to %s", f.Name())), nil
}

func handleSubmitRegistration(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	publicID := common.String(request.GetArguments(), "publicId")
	if publicID == "" {
		return mcp.NewToolResultError("publicId is required"), nil
	}

	var out map[string]interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Post(ctx, accessToken, registrationPath+publicID+"/submit/", nil, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to submit tax registration: %v", err)), nil
	}
	return common.JSONResult(out)
}

func handleCheckRegistrationStatus(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	externalUserID := common.String(request.GetArguments(), "externalUserId")
	if externalUserID == "" {
		return mcp.NewToolResultError("externalUserId is required"), nil
	}

	query := url.Values{}
	query.Set("externalUserId", externalUserID)

	var out map[string]interface{}
	err := sc.CallAPI(ctx, func(ctx context.Context, accessToken string) error {
		return sc.API().Get(ctx, accessToken, registrationPath+"check-is-submitted/", query, &out)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check registration status: %v", err)), nil
	}
	return common.JSONResult(out)
}
