package notify

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"finproof/models"
	"finproof/services/analysis"

	"github.com/gorilla/websocket"
)

const (
	maxClients    = 100
	writeTimeout  = 10 * time.Second
	pongTimeout   = 60 * time.Second
	pingInterval  = 30 * time.Second
	clientBufSize = 256
)

// Event types pushed to subscribers.
const (
	EventJobCompleted = "job_completed"
	EventJobFailed    = "job_failed"
	EventDecision     = "decision"
	EventTrade        = "trade"
)

// Event is the wire format for pushed notifications.
type Event struct {
	Type   string      `json:"type"`
	Symbol string      `json:"symbol,omitempty"`
	Data   interface{} `json:"data"`
	Time   string      `json:"time"`
}

// Client represents a connected WebSocket subscriber.
type Client struct {
	conn       *websocket.Conn
	send       chan []byte
	subscribed map[string]bool // empty set means all symbols
	mu         sync.RWMutex
}

func (c *Client) wants(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscribed) == 0 {
		return true
	}
	return symbol == "" || c.subscribed[symbol]
}

// Hub fans job lifecycle events, decisions and trades out to WebSocket
// subscribers. Clients can narrow their feed to specific symbols.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	shutdown   chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewHub creates the hub and starts its dispatch loop.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	go h.run()
	return h
}

// Shutdown closes every client connection and stops the dispatch loop.
func (h *Hub) Shutdown() {
	close(h.shutdown)

	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	log.Println("Notification hub shut down")
}

// NotifyJobCompleted pushes a completed job with its result.
func (h *Hub) NotifyJobCompleted(job *models.Job, result *analysis.Result) {
	h.publish(Event{
		Type:   EventJobCompleted,
		Symbol: job.Symbol,
		Data: map[string]interface{}{
			"job_id":        job.ID,
			"analysis_type": job.AnalysisType,
			"summary":       result.Summary,
			"confidence":    result.Confidence,
			"action_hint":   result.ActionHint,
		},
	})
}

// NotifyJobFailed pushes a failed job with its error message.
func (h *Hub) NotifyJobFailed(job *models.Job, message string) {
	h.publish(Event{
		Type:   EventJobFailed,
		Symbol: job.Symbol,
		Data: map[string]interface{}{
			"job_id":        job.ID,
			"analysis_type": job.AnalysisType,
			"error":         message,
		},
	})
}

// NotifyDecision pushes a strategy decision.
func (h *Hub) NotifyDecision(decision models.Decision) {
	h.publish(Event{Type: EventDecision, Symbol: decision.Symbol, Data: decision})
}

// NotifyTrade pushes an executed trade.
func (h *Hub) NotifyTrade(trade *models.Trade) {
	h.publish(Event{Type: EventTrade, Symbol: trade.Symbol, Data: trade})
}

func (h *Hub) publish(event Event) {
	event.Time = time.Now().UTC().Format(time.RFC3339)
	select {
	case h.broadcast <- event:
	default:
		log.Printf("Notification buffer full, dropping %s event", event.Type)
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.shutdown:
			return

		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxClients {
				h.mu.Unlock()
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				client.conn.Close()
				log.Printf("WebSocket client rejected: max clients reached (%d)", maxClients)
				continue
			}
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client connected. Total clients: %d", clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected. Total clients: %d", clientCount)

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("Error marshaling event: %v", err)
				continue
			}

			h.mu.Lock()
			deadClients := make([]*Client, 0)
			for client := range h.clients {
				if !client.wants(event.Symbol) {
					continue
				}
				select {
				case client.send <- data:
				default:
					deadClients = append(deadClients, client)
				}
			}
			for _, client := range deadClients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		}
	}
}

// HandleWebSocket upgrades an HTTP request to a subscriber connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	atCapacity := len(h.clients) >= maxClients
	h.mu.RUnlock()

	if atCapacity {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:       conn,
		send:       make(chan []byte, clientBufSize),
		subscribed: make(map[string]bool),
	}

	// the dispatch loop is gone after Shutdown; bail out instead of
	// blocking the handler goroutine on the register channel
	select {
	case h.register <- client:
	case <-h.shutdown:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var cmd struct {
			Action  string   `json:"action"`
			Symbols []string `json:"symbols"`
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}

		switch cmd.Action {
		case "subscribe":
			c.mu.Lock()
			for _, s := range cmd.Symbols {
				c.subscribed[s] = true
			}
			c.mu.Unlock()
		case "unsubscribe":
			c.mu.Lock()
			for _, s := range cmd.Symbols {
				delete(c.subscribed, s)
			}
			c.mu.Unlock()
		}
	}
}
