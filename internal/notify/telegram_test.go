package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickaq/tg-bot-schedule/pkg/config"
)

func TestTelegramSend(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer srv.Close()

	client := NewTelegram(config.TelegramConfig{
		Token:   "123:abc",
		APIURL:  srv.URL,
		Timeout: time.Second,
	}, nil)

	err := client.Send(context.Background(), 42, "Attendance marked: Physics")
	require.NoError(t, err)
	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, int64(42), gotBody.ChatID)
	assert.Equal(t, "Attendance marked: Physics", gotBody.Text)
}

func TestTelegramSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer srv.Close()

	client := NewTelegram(config.TelegramConfig{Token: "123:abc", APIURL: srv.URL, Timeout: time.Second}, nil)

	err := client.Send(context.Background(), 42, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}

func TestTelegramGetUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/getUpdates", r.URL.Path)
		var body getUpdatesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(7), body.Offset)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"text":"/status","chat":{"id":42}}}]}`))
	}))
	defer srv.Close()

	client := NewTelegram(config.TelegramConfig{Token: "123:abc", APIURL: srv.URL, Timeout: time.Second}, nil)

	updates, err := client.GetUpdates(context.Background(), 7, 0)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, int64(7), updates[0].UpdateID)
	assert.Equal(t, int64(42), updates[0].ChatID())
	assert.Equal(t, "/status", updates[0].Text())
}

func TestTelegramSendNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewTelegram(config.TelegramConfig{Token: "123:abc", APIURL: srv.URL, Timeout: time.Second}, nil)

	err := client.Send(context.Background(), 42, "hello")
	require.Error(t, err)
}
