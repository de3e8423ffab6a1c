package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const RequestIDHeader = "X-Client-Request-ID"

type HttpClient struct {
	BaseURL    string
	HTTPClient *http.Client

	username   string
	password   string
	retries    int
	retryDelay time.Duration
}

func NewHttpClient(baseURL string) *HttpClient {
	return &HttpClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryDelay: 500 * time.Millisecond,
	}
}

// WithBasicAuth sends user and password on every request. An empty user
// disables authentication.
func (c *HttpClient) WithBasicAuth(user, password string) *HttpClient {
	cp := *c
	cp.username = user
	cp.password = password
	return &cp
}

// WithRetries retries transport failures and 5xx answers up to n more times.
func (c *HttpClient) WithRetries(n int, delay time.Duration) *HttpClient {
	cp := *c
	cp.retries = n
	cp.retryDelay = delay
	return &cp
}

type Response struct {
	*http.Response
	Body []byte
}

func (r *Response) DecodeJSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Upload is a single file sent as multipart/form-data.
type Upload struct {
	Field    string
	FileName string
	Content  []byte
}

func (c *HttpClient) GET(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.request(ctx, http.MethodGet, path, nil, headers)
}

func (c *HttpClient) POST(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	return c.request(ctx, http.MethodPost, path, body, headers)
}

func (c *HttpClient) PUT(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	return c.request(ctx, http.MethodPut, path, body, headers)
}

// SendFile uploads file with the given method (POST or PUT).
func (c *HttpClient) SendFile(ctx context.Context, method, path string, file Upload, headers map[string]string) (*Response, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(file.Field, file.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(file.Content); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	return c.do(ctx, method, path, buf.Bytes(), writer.FormDataContentType(), headers)
}

func (c *HttpClient) request(ctx context.Context, method, path string, body any, headers map[string]string) (*Response, error) {
	if body == nil {
		return c.do(ctx, method, path, nil, "", headers)
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.do(ctx, method, path, jsonData, "application/json", headers)
}

func (c *HttpClient) do(ctx context.Context, method, path string, body []byte, contentType string, headers map[string]string) (*Response, error) {
	var (
		resp *Response
		err  error
	)

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		resp, err = c.once(ctx, method, path, body, contentType, headers)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
	}

	return resp, err
}

func (c *HttpClient) once(ctx context.Context, method, path string, body []byte, contentType string, headers map[string]string) (*Response, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		Response: resp,
		Body:     respBody,
	}, nil
}

func GetErrorMessage(resp *Response) string {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
		Status  string `json:"status"`
	}
	if err := resp.DecodeJSON(&errResp); err != nil {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(resp.Body, 200))
	}

	switch {
	case errResp.Message != "":
		return errResp.Message
	case errResp.Error != "":
		return errResp.Error
	case errResp.Code != "":
		return errResp.Code
	default:
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
