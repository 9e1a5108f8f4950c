package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestHandleWebSocketAfterShutdownClosesConnection(t *testing.T) {
	hub := NewHub()
	hub.Shutdown()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the handler must drop the connection instead of blocking forever
	// on a dispatch loop that no longer runs
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestClientWants(t *testing.T) {
	c := &Client{subscribed: map[string]bool{}}

	// empty subscription set receives everything
	require.True(t, c.wants("AAPL"))
	require.True(t, c.wants(""))

	c.subscribed["AAPL"] = true
	require.True(t, c.wants("AAPL"))
	require.False(t, c.wants("MSFT"))
	// events without a symbol go to every client
	require.True(t, c.wants(""))
}
