package norman

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/norman-finance/norman-mcp-go/internal/logging"
)

// Client performs authenticated REST requests against the Norman API.
// The bearer token is supplied per request; the Client itself is stateless
// and safe for concurrent use across sessions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

// NewClient creates a Client for the given API base URL.
func NewClient(baseURL string, timeout time.Duration, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/") + "/",
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get performs an authenticated GET request and decodes the JSON response
// into out. out may be nil when the response body is irrelevant.
func (c *Client) Get(ctx context.Context, accessToken, path string, query url.Values, out any) error {
	return c.do(ctx, accessToken, http.MethodGet, path, query, nil, out)
}

// Post performs an authenticated POST request with a JSON body.
func (c *Client) Post(ctx context.Context, accessToken, path string, body, out any) error {
	return c.do(ctx, accessToken, http.MethodPost, path, nil, body, out)
}

// Put performs an authenticated PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, accessToken, path string, body, out any) error {
	return c.do(ctx, accessToken, http.MethodPut, path, nil, body, out)
}

// Patch performs an authenticated PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, accessToken, path string, body, out any) error {
	return c.do(ctx, accessToken, http.MethodPatch, path, nil, body, out)
}

// Delete performs an authenticated DELETE request.
func (c *Client) Delete(ctx context.Context, accessToken, path string) error {
	return c.do(ctx, accessToken, http.MethodDelete, path, nil, nil, nil)
}

// GetRaw performs an authenticated GET request and returns the raw response
// body. Used for endpoints that return non-JSON payloads such as e-invoice
// XML documents.
func (c *Client) GetRaw(ctx context.Context, accessToken, path string, query url.Values) ([]byte, error) {
	return c.doRaw(ctx, accessToken, http.MethodGet, path, query, nil)
}

// PostRaw performs an authenticated POST request and returns the raw
// response body. Used for endpoints that return binary payloads such as
// generated PDF previews.
func (c *Client) PostRaw(ctx context.Context, accessToken, path string, body any) ([]byte, error) {
	return c.doRaw(ctx, accessToken, http.MethodPost, path, nil, body)
}

func (c *Client) do(ctx context.Context, accessToken, method, path string, query url.Values, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	endpoint := c.baseURL + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return c.send(req, method, path, out)
}

// UploadFile is one file part of a multipart upload.
type UploadFile struct {
	Name    string
	Content []byte
}

// Upload performs an authenticated multipart upload of a single file.
func (c *Client) Upload(ctx context.Context, accessToken, path string, fields map[string]string, fileField, filename string, content []byte, out any) error {
	return c.UploadFiles(ctx, accessToken, path, fields, fileField, []UploadFile{{Name: filename, Content: content}}, out)
}

// UploadFiles performs an authenticated multipart upload. fields are plain
// form values; every file is attached under fileField, repeated per file.
func (c *Client) UploadFiles(ctx context.Context, accessToken, path string, fields map[string]string, fileField string, files []UploadFile, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("failed to write form field %q: %w", key, err)
		}
	}

	for _, file := range files {
		part, err := writer.CreateFormFile(fileField, file.Name)
		if err != nil {
			return fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(file.Content); err != nil {
			return fmt.Errorf("failed to write file content: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	endpoint := c.baseURL + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return c.send(req, http.MethodPost, path, out)
}

func (c *Client) doRaw(ctx context.Context, accessToken, method, path string, query url.Values, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	endpoint := c.baseURL + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: extractErrorDetail(resp.Body)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	return raw, nil
}

func (c *Client) send(req *http.Request, method, path string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Detail: extractErrorDetail(resp.Body)}
		c.logger.Debug("Norman API request failed",
			logging.KeyOperation, method+" "+path,
			logging.KeyStatus, fmt.Sprintf("%d", resp.StatusCode),
		)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// extractErrorDetail pulls a human-readable message out of Norman's error
// bodies, which use either {"detail": ...} or {"message": ...}.
func extractErrorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var parsed struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		switch {
		case parsed.Detail != "":
			return parsed.Detail
		case parsed.Message != "":
			return parsed.Message
		case parsed.Error != "":
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
