package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		FromNumber: "+15550000000",
	})
	require.NoError(t, err)
	return client, srv
}

func TestSendMessage(t *testing.T) {
	var got SendRequest
	var auth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	})

	err := client.SendMessage(context.Background(), SendRequest{
		To:   "+15551234567",
		Body: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "+15551234567", got.To)
	assert.Equal(t, "+15550000000", got.From, "missing From falls back to the configured number")
	assert.Equal(t, "hello", got.Body)
}

func TestSendMessageRetriesOn5xx(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	err := client.SendMessage(context.Background(), SendRequest{To: "+15551234567", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSendMessageDoesNotRetryOn4xx(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad recipient", http.StatusBadRequest)
	})

	err := client.SendMessage(context.Background(), SendRequest{To: "+15551234567", Body: "hi"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "status 400")
}

func TestSendMessageCapsBodyLength(t *testing.T) {
	var got SendRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	err := client.SendMessage(context.Background(), SendRequest{
		To:   "+15551234567",
		Body: strings.Repeat("x", 2*maxReplyLength),
	})
	require.NoError(t, err)
	assert.Len(t, got.Body, maxReplyLength)
}

func TestSendMessageScrubsControlChars(t *testing.T) {
	var got SendRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	err := client.SendMessage(context.Background(), SendRequest{
		To:   "+15551234567",
		Body: "line one\nline\ttwo\x00",
	})
	require.NoError(t, err)
	assert.Equal(t, "line one\nlinetwo", got.Body, "newlines survive, other control chars do not")
}

func TestSendMessageRequiresRecipient(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should be made")
	})
	err := client.SendMessage(context.Background(), SendRequest{Body: "hi"})
	require.Error(t, err)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(Config{BaseURL: "http://example.com"})
	require.Error(t, err)
	_, err = New(Config{APIKey: "k"})
	require.Error(t, err)
}
