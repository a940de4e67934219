package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/trade_journal/internal/domain"
)

func TestHub_PublishReachesRecipientOnly(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("trader"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?trader=bob"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.Connections("bob") == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.Connections("alice"))

	hub.Publish(domain.RelationshipEvent{ID: "e0", Kind: domain.EventAccepted, Recipient: "alice"})
	hub.Publish(domain.RelationshipEvent{ID: "e1", Kind: domain.EventRuleViolation})
	hub.Publish(domain.RelationshipEvent{
		ID:             "e2",
		RelationshipID: "rel-1",
		Kind:           domain.EventPartnerLevelUp,
		Recipient:      "bob",
		Payload:        map[string]any{"title": "Apprentice"},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev domain.RelationshipEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "e2", ev.ID)
	assert.Equal(t, domain.EventPartnerLevelUp, ev.Kind)
	assert.Equal(t, "Apprentice", ev.Payload["title"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Connections("bob") == 0 }, time.Second, 10*time.Millisecond)

	// Publishing with nobody connected is a no-op
	hub.Publish(domain.RelationshipEvent{ID: "e3", Kind: domain.EventEnded, Recipient: "bob"})
}

func TestHub_SlowClientDropsEvents(t *testing.T) {
	hub := NewHub(nil)
	c := &client{traderID: "bob", send: make(chan []byte, 1)}
	hub.register(c)

	hub.Publish(domain.RelationshipEvent{ID: "e1", Kind: domain.EventInvited, Recipient: "bob"})
	hub.Publish(domain.RelationshipEvent{ID: "e2", Kind: domain.EventInvited, Recipient: "bob"})
	assert.Len(t, c.send, 1)

	hub.unregister(c)
	hub.unregister(c)
	assert.Equal(t, 0, hub.Connections("bob"))
	_, open := <-c.send
	assert.True(t, open)
	_, open = <-c.send
	assert.False(t, open)
}
