package aporia_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/run-bigpig/llm-guardrails/pkg/aporia"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, baseURL string) *aporia.Client {
	t.Helper()
	client, err := aporia.NewClient("proj-1", "test-key",
		aporia.WithBaseURL(baseURL),
		aporia.WithLogger(logging.NewNop()),
	)
	require.NoError(t, err)
	return client
}

func TestValidateSendsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/proj-1/validate", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-APORIA-API-KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "response", body["validation_target"])
		assert.Equal(t, "the answer", body["response"])
		assert.Equal(t, []interface{}{
			map[string]interface{}{"role": "user", "content": "question"},
		}, body["messages"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"action":"modify","revised_response":"safer answer","explain_log":{"policy":"x"}}`))
	}))
	defer server.Close()

	// Trailing slashes on the base URL are stripped
	client := newClient(t, server.URL+"//")
	resp, err := client.Validate(context.Background(), &aporia.ValidationRequest{
		Messages:         []aporia.Message{{Role: "user", Content: "question"}},
		Response:         "the answer",
		ValidationTarget: aporia.TargetResponse,
	})
	require.NoError(t, err)
	assert.Equal(t, aporia.ActionModify, resp.Action)
	assert.True(t, resp.ShouldBlock())
	assert.Equal(t, "safer answer", resp.Revised("default"))
	assert.Contains(t, resp.Extra, "explain_log")
}

func TestValidateNullRevision(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"action":"block","revised_response":null}`))
	}))
	defer server.Close()

	resp, err := newClient(t, server.URL).Validate(context.Background(), &aporia.ValidationRequest{ValidationTarget: aporia.TargetPrompt})
	require.NoError(t, err)
	assert.True(t, resp.ShouldBlock())
	assert.Nil(t, resp.RevisedResponse)
	assert.Equal(t, "default", resp.Revised("default"))
}

func TestValidatePassthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"action":"passthrough"}`))
	}))
	defer server.Close()

	resp, err := aporia.Validate(context.Background(), "proj-1", "test-key", nil, "", aporia.TargetPrompt, server.URL)
	require.NoError(t, err)
	assert.Equal(t, aporia.ActionPassthrough, resp.Action)
	assert.False(t, resp.ShouldBlock())
}

func TestValidateTransportError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newClient(t, server.URL).Validate(context.Background(), &aporia.ValidationRequest{ValidationTarget: aporia.TargetPrompt})
	require.Error(t, err)

	var te *aporia.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Equal(t, "Service Unavailable", te.Status)
	assert.False(t, aporia.IsSchemaError(err))
	assert.Equal(t, 1, calls, "validation failures are not retried")
}

func TestValidateSchemaErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "unknown action", body: `{"action":"allow"}`, field: "action"},
		{name: "missing action", body: `{"revised_response":"x"}`, field: "action"},
		{name: "numeric revision", body: `{"action":"block","revised_response":42}`, field: "revised_response"},
		{name: "not json", body: `<html>`, field: ""},
		{name: "array body", body: `[]`, field: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newClient(t, server.URL).Validate(context.Background(), &aporia.ValidationRequest{ValidationTarget: aporia.TargetResponse})
			var se *aporia.SchemaError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.field, se.Field)
			assert.False(t, aporia.IsTransportError(err))
		})
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := aporia.NewClient("", "key")
	assert.ErrorIs(t, err, aporia.ErrMissingProjectID)

	_, err = aporia.NewClient("proj", "")
	assert.ErrorIs(t, err, aporia.ErrMissingAPIKey)

	client, err := aporia.NewClient("proj", "key")
	require.NoError(t, err)
	assert.Equal(t, "https://gr-prd.aporia.com/proj/validate", client.Endpoint())
}
