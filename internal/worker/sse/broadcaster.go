// Package sse streams refinement job events to connected clients as
// Server-Sent Events.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// ClientBuffer is how many events may queue for one client before it is
	// considered stalled and dropped.
	ClientBuffer = 32

	// DefaultHeartbeat is the interval of keep-alive comments.
	DefaultHeartbeat = 25 * time.Second
)

// Client is one connected event stream.
type Client struct {
	ID   string
	send chan []byte
	// Done is closed when the client is removed.
	Done chan struct{}
	once sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.Done) })
}

// Broadcaster fans events out to every connected client.
type Broadcaster struct {
	clients   map[string]*Client
	mu        sync.RWMutex
	nextID    int
	heartbeat time.Duration
}

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients:   make(map[string]*Client),
		heartbeat: DefaultHeartbeat,
	}
}

// AddClient registers a new client.
func (b *Broadcaster) AddClient() *Client {
	b.mu.Lock()
	b.nextID++
	client := &Client{
		ID:   fmt.Sprintf("client-%d", b.nextID),
		send: make(chan []byte, ClientBuffer),
		Done: make(chan struct{}),
	}
	b.clients[client.ID] = client
	clientCount := len(b.clients)
	b.mu.Unlock()

	log.Debug().
		Str("clientId", client.ID).
		Int("totalClients", clientCount).
		Msg("SSE client connected")

	return client
}

// RemoveClient unregisters a client and closes its Done channel.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	delete(b.clients, client.ID)
	clientCount := len(b.clients)
	b.mu.Unlock()

	client.close()

	log.Debug().
		Str("clientId", client.ID).
		Int("totalClients", clientCount).
		Msg("SSE client disconnected")
}

// Broadcast queues data for every client. A map or struct carrying a string
// "type" field is sent as a named event. Clients whose queue is full are dropped.
func (b *Broadcaster) Broadcast(data interface{}) {
	message, err := encode(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE data")
		return
	}

	var stalled []*Client
	b.mu.RLock()
	for _, client := range b.clients {
		select {
		case client.send <- message:
		default:
			stalled = append(stalled, client)
		}
	}
	b.mu.RUnlock()

	for _, client := range stalled {
		log.Warn().Str("clientId", client.ID).Msg("SSE client stalled, dropping")
		b.RemoveClient(client)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HandleSSE streams events to one client until the request ends or the
// client is dropped.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := b.AddClient()
	defer b.RemoveClient(client)

	fmt.Fprintf(w, "event: connected\ndata: {\"type\":\"connected\",\"clientId\":%q}\n\n", client.ID)
	flusher.Flush()

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done:
			return
		case message := <-client.send:
			if _, err := w.Write(message); err != nil {
				log.Debug().Str("clientId", client.ID).Err(err).Msg("SSE write failed")
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// encode renders one SSE frame.
func encode(data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var typed struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &typed); err == nil && typed.Type != "" {
		return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", typed.Type, payload)), nil
	}
	return []byte(fmt.Sprintf("data: %s\n\n", payload)), nil
}
