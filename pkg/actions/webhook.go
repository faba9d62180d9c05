package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/template"
)

const (
	defaultWebhookTimeout = 30 * time.Second
	maxResponseBody       = 500
)

var ErrWebhookURLInvalid = errors.New("invalid webhook url")

// HTTPError is returned when the webhook endpoint answers with a status >= 400.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

// WebhookResponse is the result of a successful CallWebhook action.
type WebhookResponse struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

// WebhookClient performs CallWebhook requests. Each call gets its own
// timeout on top of whatever the underlying client enforces.
type WebhookClient struct {
	client *http.Client
	logger *slog.Logger
}

func NewWebhookClient(client *http.Client, logger *slog.Logger) *WebhookClient {
	if client == nil {
		client = &http.Client{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &WebhookClient{client: client, logger: logger.With("module", "webhook_client")}
}

// Call sends payload to spec.URL. Header values and the URL may contain
// templates rendered against data. GET requests carry payload as query
// parameters; every other method sends it as a JSON body.
func (c *WebhookClient) Call(ctx context.Context, spec models.CallWebhook, payload map[string]any, data map[string]any) (*WebhookResponse, error) {
	method := strings.ToUpper(spec.Method)
	if method == "" {
		method = http.MethodPost
	}

	timeout := defaultWebhookTimeout
	if spec.TimeoutSeconds > 0 {
		timeout = time.Duration(spec.TimeoutSeconds) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.buildRequest(ctx, method, spec, payload, data)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "calling webhook", "method", method, "url", req.URL.Redacted())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	body := string(bodyBytes)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: body}
	}

	c.logger.InfoContext(ctx, "webhook completed", "status", resp.StatusCode, "body_length", len(bodyBytes))

	return &WebhookResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *WebhookClient) buildRequest(
	ctx context.Context,
	method string,
	spec models.CallWebhook,
	payload map[string]any,
	data map[string]any,
) (*http.Request, error) {
	rawURL, err := renderText(spec.URL, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render url: %w", err)
	}

	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrWebhookURLInvalid, rawURL)
	}

	var body io.Reader

	if method == http.MethodGet {
		query := target.Query()
		for k, v := range payload {
			query.Set(k, queryValue(v))
		}

		target.RawQuery = query.Encode()
	} else if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}

		body = strings.NewReader(string(encoded))
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range spec.Headers {
		rendered, err := renderText(value, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s': %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	return req, nil
}

func renderText(s string, data map[string]any) (string, error) {
	if !template.NeedsTemplating(s) {
		return s, nil
	}

	return template.RenderString(s, data)
}

func queryValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case map[string]any, []any:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}

		return string(encoded)
	default:
		return fmt.Sprint(val)
	}
}
