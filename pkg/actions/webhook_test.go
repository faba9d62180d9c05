package actions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/ruleflow/pkg/models"
)

func TestWebhookClient_GetSendsQuery(t *testing.T) {
	var query map[string][]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		query = r.URL.Query()
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewWebhookClient(server.Client(), discardLogger())

	resp, err := client.Call(context.Background(), models.CallWebhook{
		URL:    server.URL + "/ping?source=rules",
		Method: "get",
	}, map[string]any{"id": 7, "tags": []any{"a", "b"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", resp.Body)

	assert.Equal(t, []string{"rules"}, query["source"])
	assert.Equal(t, []string{"7"}, query["id"])
	assert.Equal(t, []string{`["a","b"]`}, query["tags"])
}

func TestWebhookClient_TruncatesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer server.Close()

	resp, err := NewWebhookClient(server.Client(), discardLogger()).
		Call(context.Background(), models.CallWebhook{URL: server.URL}, nil, nil)
	require.NoError(t, err)
	assert.Len(t, resp.Body, maxResponseBody)
}

func TestWebhookClient_Timeout(t *testing.T) {
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewWebhookClient(server.Client(), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Call(ctx, models.CallWebhook{URL: server.URL, TimeoutSeconds: 1}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebhookClient_InvalidURL(t *testing.T) {
	_, err := NewWebhookClient(nil, discardLogger()).
		Call(context.Background(), models.CallWebhook{URL: "not a url"}, nil, nil)
	require.ErrorIs(t, err, ErrWebhookURLInvalid)
}
