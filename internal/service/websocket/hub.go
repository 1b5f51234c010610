package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lawinko/vision-detector/internal/logger"
)

const writeWait = 2 * time.Second

// HubService fans results out to viewer connections. Messages are keyed by kind;
// a viewer that falls behind only ever receives the newest message of each kind.
type HubService struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	notify     chan struct{}
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger

	pendingMu sync.Mutex
	pending   map[string][]byte
	last      map[string][]byte // replayed to new viewers
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		pending:    make(map[string][]byte),
		last:       make(map[string][]byte),
		logger:     logger,
	}
}

// Run serves registrations and deliveries until ctx is cancelled, then closes every client.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client connected. Total: %d", total)
			h.replay(client)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client disconnected. Total: %d", total)

		case <-h.notify:
			for _, message := range h.takePending() {
				h.deliver(message)
			}
		}
	}
}

// Register adds a viewer. It returns immediately once the hub has stopped.
func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues message as the newest of its kind. It never blocks; an undelivered
// message of the same kind is replaced.
func (h *HubService) Broadcast(kind string, message []byte) {
	h.pendingMu.Lock()
	h.pending[kind] = message
	h.pendingMu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// takePending returns queued messages ordered by kind and records them for replay.
func (h *HubService) takePending() [][]byte {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()

	kinds := make([]string, 0, len(h.pending))
	for kind := range h.pending {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	messages := make([][]byte, 0, len(kinds))
	for _, kind := range kinds {
		messages = append(messages, h.pending[kind])
		h.last[kind] = h.pending[kind]
		delete(h.pending, kind)
	}
	return messages
}

func (h *HubService) replay(client *websocket.Conn) {
	h.pendingMu.Lock()
	kinds := make([]string, 0, len(h.last))
	for kind := range h.last {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	messages := make([][]byte, 0, len(kinds))
	for _, kind := range kinds {
		messages = append(messages, h.last[kind])
	}
	h.pendingMu.Unlock()

	for _, message := range messages {
		if err := write(client, message); err != nil {
			h.logger.Error("Error replaying message: %v", err)
			h.drop(client)
			return
		}
	}
}

func (h *HubService) deliver(message []byte) {
	h.mutex.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		if err := write(client, message); err != nil {
			h.logger.Error("Error sending message: %v", err)
			h.drop(client)
		}
	}
}

func (h *HubService) drop(client *websocket.Conn) {
	h.mutex.Lock()
	delete(h.clients, client)
	h.mutex.Unlock()
	client.Close()
}

func write(client *websocket.Conn, message []byte) error {
	client.SetWriteDeadline(time.Now().Add(writeWait))
	return client.WriteMessage(websocket.TextMessage, message)
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
