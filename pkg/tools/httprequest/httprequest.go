// Package httprequest provides a tool that lets the model fetch a URL.
package httprequest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const (
	ToolID = "http_request"

	defaultTimeoutSeconds = 30
	defaultMaxLength      = 8000
	maxBodySize           = 2 << 20
)

var (
	// ErrHTTPRequestURLInvalid is returned when the url argument is missing or not absolute.
	ErrHTTPRequestURLInvalid = errors.New("invalid HTTP request url")
	// ErrHTTPMethodInvalid is returned when the method argument is not supported.
	ErrHTTPMethodInvalid = errors.New("invalid HTTP method")
)

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodHead:   true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Tool performs an HTTP request. HTML responses are converted to markdown and
// every body is truncated to a maximum length before being handed back.
type Tool struct {
	client    *http.Client
	maxLength int
}

type Option func(*Tool)

func WithClient(c *http.Client) Option {
	return func(t *Tool) { t.client = c }
}

func WithMaxLength(n int) Option {
	return func(t *Tool) {
		if n > 0 {
			t.maxLength = n
		}
	}
}

func New(opts ...Option) *Tool {
	t := &Tool{
		client:    &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		maxLength: defaultMaxLength,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (*Tool) ID() string {
	return ToolID
}

func (*Tool) Description() string {
	return "Perform an HTTP request and return the status and body. HTML pages are returned as markdown."
}

func (*Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute http or https URL",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method, GET when omitted",
				"enum":        []any{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "get", "head", "post", "put", "patch", "delete"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body",
			},
		},
		"required": []any{"url"},
	}
}

// Result is what the model receives.
type Result struct {
	URL         string `json:"url"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`
	Truncated   bool   `json:"truncated,omitempty"`
}

func (t *Tool) Execute(ctx context.Context, args map[string]any, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "http_request_tool")

	req, err := buildRequest(ctx, args)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Executing HTTP request", "method", req.Method, "url", req.URL.String())

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	body := string(raw)

	if strings.Contains(contentType, "text/html") {
		markdown, err := htmltomarkdown.ConvertString(body)
		if err != nil {
			logger.WarnContext(ctx, "failed to convert HTML to markdown", "error", err)
		} else {
			body = markdown
		}
	}

	body, truncated := truncate(body, t.maxLength)

	return Result{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
		Truncated:   truncated,
	}, nil
}

func buildRequest(ctx context.Context, args map[string]any) (*http.Request, error) {
	rawURL, _ := args["url"].(string)

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrHTTPRequestURLInvalid, rawURL)
	}

	method, _ := args["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	method = strings.ToUpper(method)
	if !allowedMethods[method] {
		return nil, fmt.Errorf("%w: %s", ErrHTTPMethodInvalid, method)
	}

	var body io.Reader
	if b, _ := args["body"].(string); b != "" {
		body = strings.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	return req, nil
}

func truncate(s string, limit int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= limit {
		return s, false
	}

	return string(runes[:limit]), true
}
