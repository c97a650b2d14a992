package apicall_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseops/automation/pkg/actions/apicall"
	"github.com/pulseops/automation/pkg/log"
	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/protocol"
)

func execute(t *testing.T, params map[string]any) (any, error) {
	t.Helper()

	handler, err := apicall.NewFactory(nil).Create(models.ParamsOf(params))
	require.NoError(t, err)

	return handler.Execute(context.Background(), &models.Execution{}, log.WithModule("test"))
}

func TestExecuteSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"invoice":"inv-1"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)

	result, err := execute(t, map[string]any{
		"url":     server.URL,
		"method":  "post",
		"headers": map[string]any{"Authorization": "Bearer token-1"},
		"body":    `{"invoice":"inv-1"}`,
	})
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, http.StatusOK, out["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, out["body"])
}

func TestExecuteNonJSONBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))
	t.Cleanup(server.Close)

	result, err := execute(t, map[string]any{"url": server.URL})
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, "pong", out["body"])
}

func TestExecuteServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	_, err := execute(t, map[string]any{"url": server.URL})
	require.Error(t, err)
	assert.Equal(t, protocol.FailureTransient, protocol.KindOf(err))
}

func TestExecuteClientErrorIsTerminal(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	_, err := execute(t, map[string]any{"url": server.URL})
	require.Error(t, err)
	assert.Equal(t, protocol.FailureTerminal, protocol.KindOf(err))
}

func TestExecuteNetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	_, err := execute(t, map[string]any{"url": "http://127.0.0.1:1/unreachable"})
	require.Error(t, err)
	assert.Equal(t, protocol.FailureTransient, protocol.KindOf(err))
}
