// Package apicall implements the raw api_call action: one HTTP request
// against an external endpoint with the response exposed to later actions.
package apicall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/protocol"
)

const defaultTimeout = 30 * time.Second

type Factory struct {
	client *http.Client
}

// NewFactory builds the api_call factory. A nil client falls back to a
// default with a 30s timeout.
func NewFactory(client *http.Client) *Factory {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Factory{client: client}
}

func (f *Factory) Type() models.ActionType {
	return models.ActionAPICall
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []any{"GET", "POST", "PUT", "PATCH", "DELETE"},
				"default": "GET",
			},
			"headers": map[string]any{
				"type": "object",
			},
			"body": map[string]any{
				"type": "string",
			},
		},
		"required": []any{"url"},
	}
}

func (f *Factory) Create(params models.Params) (protocol.ActionHandler, error) {
	method := strings.ToUpper(params.String("method", http.MethodGet))

	headers := make(map[string]string)

	if h, ok := params["headers"]; ok && h.Kind == models.KindMap {
		for k, v := range h.Map {
			headers[k] = v.Text()
		}
	}

	return &Action{
		method:  method,
		url:     params.String("url", ""),
		headers: headers,
		body:    params.String("body", ""),
		client:  f.client,
	}, nil
}

// Action performs the configured HTTP call. Network errors and 5xx
// responses are transient; 4xx responses are terminal since retrying the
// same request cannot succeed.
type Action struct {
	method  string
	url     string
	headers map[string]string
	body    string
	client  *http.Client
}

func (a *Action) Execute(ctx context.Context, execution *models.Execution, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "api_call", "method", a.method, "url", a.url)
	logger.InfoContext(ctx, "Executing API call")

	var bodyReader io.Reader
	if a.body != "" {
		bodyReader = strings.NewReader(a.body)
	}

	req, err := http.NewRequestWithContext(ctx, a.method, a.url, bodyReader)
	if err != nil {
		return nil, protocol.Validation("failed to build http request", err)
	}

	for key, value := range a.headers {
		req.Header.Set(key, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, protocol.Transient("http request failed", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.WarnContext(ctx, "Failed to close response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.Transient("failed to read response body", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, protocol.Transient(fmt.Sprintf("endpoint returned %d", resp.StatusCode), nil)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, protocol.Terminal(fmt.Sprintf("endpoint rejected request with %d", resp.StatusCode), nil)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
	}

	var decoded any
	if json.Unmarshal(raw, &decoded) == nil {
		result["body"] = decoded
	} else {
		result["body"] = string(raw)
	}

	logger.InfoContext(ctx, "API call completed", "status_code", resp.StatusCode)

	return result, nil
}
