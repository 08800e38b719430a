package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSlackValidatesWebhook(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		url     string
		wantErr string
	}{
		{"valid", "#merch", "https://hooks.slack.com/services/T/B/X", ""},
		{"missing channel", "", "https://hooks.slack.com/services/T/B/X", "channel"},
		{"missing url", "#merch", "", "not set"},
		{"other host", "#merch", "https://attacker.example.com/services", "must start with"},
		{"plain http", "#merch", "http://hooks.slack.com/services/T/B/X", "must start with"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSlack(tt.channel, tt.url)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "slack", s.Name())
		})
	}
}

func TestSlackSend(t *testing.T) {
	var got slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := &Slack{channel: "#merch", webhookURL: srv.URL, client: srv.Client()}
	require.NoError(t, s.Send(context.Background(), Event{Shop: "Shop", Version: 3, Home: 2, Footer: 1}))
	assert.Equal(t, "#merch", got.Channel)
	assert.Contains(t, got.Text, "version 3")
}

func TestSlackSendReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := &Slack{channel: "#merch", webhookURL: srv.URL, client: srv.Client()}
	err := s.Send(context.Background(), Event{})
	assert.ErrorContains(t, err, "status 403")
}
