package alert

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestMultiSink_FansOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := NewMultiSink(a, b)

	ev := Event{Severity: SeverityCritical, Title: "kill switch tripped", At: time.Now()}
	m.Notify(context.Background(), ev)

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, "kill switch tripped", a.events[0].Title)
}

func TestLogSink_NeverPanics(t *testing.T) {
	s := NewLogSink(zap.NewNop())

	for _, sev := range []Severity{SeverityInfo, SeverityWarning, SeverityCritical, Severity("unknown")} {
		s.Notify(context.Background(), Event{Severity: sev, Title: "t", Message: "m"})
	}
}

func TestWebhookSink_PostsEmbed(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &payload))

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	s := NewWebhookSink(server.URL, zap.NewNop())
	s.Notify(context.Background(), Event{
		Severity: SeverityCritical,
		Title:    "kill switch tripped",
		Message:  "total PnL -25.00% breached hard kill threshold",
		At:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	embeds, ok := payload["embeds"].([]any)
	require.True(t, ok)
	require.Len(t, embeds, 1)

	embed := embeds[0].(map[string]any)
	assert.Equal(t, "kill switch tripped", embed["title"])
	assert.Equal(t, float64(colorCritical), embed["color"])
	assert.Equal(t, "2026-03-01T12:00:00Z", embed["timestamp"])
}

func TestWebhookSink_SeverityColors(t *testing.T) {
	var gotColor float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		embed := payload["embeds"].([]any)[0].(map[string]any)
		gotColor = embed["color"].(float64)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	s := NewWebhookSink(server.URL, zap.NewNop())

	tests := []struct {
		severity Severity
		want     int
	}{
		{SeverityInfo, colorInfo},
		{SeverityWarning, colorWarning},
		{SeverityCritical, colorCritical},
	}
	for _, tt := range tests {
		s.Notify(context.Background(), Event{Severity: tt.severity, Title: "t"})
		assert.Equal(t, float64(tt.want), gotColor)
	}
}

func TestWebhookSink_SwallowsDeliveryFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewWebhookSink(server.URL, zap.NewNop())
	s.Notify(context.Background(), Event{Severity: SeverityWarning, Title: "t"})

	// An unreachable endpoint must not panic or propagate either.
	s = NewWebhookSink("http://127.0.0.1:1", zap.NewNop())
	s.Notify(context.Background(), Event{Severity: SeverityWarning, Title: "t"})
}
