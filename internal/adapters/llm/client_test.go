package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmTraderBot/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test-model",
		Logger:  nopLogger{},
	})
	require.NoError(t, err)
	return client
}

func TestGetDecision_ReturnsRawReply(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotReq))
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"action\":\"HOLD\"}"}}]}`))
	})

	reply, err := client.GetDecision(context.Background(), "system", "payload")
	require.NoError(t, err)
	assert.Equal(t, `{"action":"HOLD"}`, reply)
	assert.Equal(t, "Bearer test-key", gotAuth)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "payload", gotReq.Messages[1].Content)
	assert.Equal(t, "test-model", gotReq.Model)
}

func TestGetDecision_RateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetDecision(context.Background(), "s", "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrRateLimited))
}

func TestGetDecision_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	})

	_, err := client.GetDecision(context.Background(), "s", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestGetDecision_EmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := client.GetDecision(context.Background(), "s", "p")
	require.Error(t, err)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{Model: "m", Logger: nopLogger{}})
	require.Error(t, err)
	_, err = NewClient(Config{APIKey: "k", Logger: nopLogger{}})
	require.Error(t, err)
}
