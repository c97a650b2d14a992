// Package syncsystem implements the sync_system action: pushing a payload
// to a named external system over its configured HTTP endpoint.
package syncsystem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/protocol"
)

const defaultTimeout = 30 * time.Second

// Factory builds sync handlers. Endpoints maps system names onto base URLs;
// referencing an unknown system is a validation failure.
type Factory struct {
	endpoints map[string]string
	client    *http.Client
}

func NewFactory(endpoints map[string]string, client *http.Client) *Factory {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Factory{endpoints: endpoints, client: client}
}

func (f *Factory) Type() models.ActionType {
	return models.ActionSyncSystem
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"system": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Configured external system name",
			},
			"payload": map[string]any{
				"type":        "object",
				"description": "Document pushed to the external system",
			},
		},
		"required": []any{"system", "payload"},
	}
}

func (f *Factory) Create(params models.Params) (protocol.ActionHandler, error) {
	system := params.String("system", "")

	endpoint, ok := f.endpoints[system]
	if !ok {
		return nil, protocol.Validation(fmt.Sprintf("external system %q is not configured", system), nil)
	}

	payload, ok := params["payload"]
	if !ok || payload.Kind != models.KindMap {
		return nil, protocol.Validation("payload must be an object", nil)
	}

	return &Action{
		system:   system,
		endpoint: endpoint,
		payload:  payload.Any().(map[string]any),
		client:   f.client,
	}, nil
}

// Action pushes the payload to the system endpoint as JSON.
type Action struct {
	system   string
	endpoint string
	payload  map[string]any
	client   *http.Client
}

func (a *Action) Execute(ctx context.Context, execution *models.Execution, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "sync_system", "system", a.system)
	logger.InfoContext(ctx, "Syncing external system")

	body, err := json.Marshal(a.payload)
	if err != nil {
		return nil, protocol.Validation("payload is not encodable", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, protocol.Validation("failed to build sync request", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, protocol.Transient("external sync failed", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.WarnContext(ctx, "Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, protocol.Transient(fmt.Sprintf("system %s returned %d", a.system, resp.StatusCode), nil)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, protocol.Terminal(fmt.Sprintf("system %s rejected sync with %d", a.system, resp.StatusCode), nil)
	}

	logger.InfoContext(ctx, "External system synced", "status_code", resp.StatusCode)

	return map[string]any{
		"system":      a.system,
		"status_code": resp.StatusCode,
	}, nil
}
