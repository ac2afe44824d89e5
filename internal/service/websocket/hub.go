package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"webclassifier/internal/logger"
)

const writeWait = 5 * time.Second

// client is one viewer. version is the newest state version it has been
// sent; older messages are skipped.
type client struct {
	session string
	version uint64
}

type subscription struct {
	conn    *websocket.Conn
	session string
	initial []byte
	version uint64
}

type envelope struct {
	message []byte
	session string
	version uint64
}

// HubService fans state messages out to the browser tabs of a session.
type HubService struct {
	clients    map[*websocket.Conn]*client
	broadcast  chan envelope
	register   chan subscription
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan envelope, 256),
		register:   make(chan subscription),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns client registration and delivery until ctx is done; it then
// closes every connection.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case sub := <-h.register:
			h.subscribe(sub)

		case conn := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", total)

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

// subscribe adds a viewer and writes its initial message before any
// queued broadcast can reach it.
func (h *HubService) subscribe(sub subscription) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[sub.conn] = &client{session: sub.session, version: sub.version}
	h.logger.Info("Viewer connected for session %s. Total: %d", sub.session, len(h.clients))

	if sub.initial != nil {
		h.writeLocked(sub.conn, sub.initial)
	}
}

func (h *HubService) deliver(env envelope) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn, cl := range h.clients {
		if cl.session != env.session || env.version <= cl.version {
			continue
		}
		cl.version = env.version
		h.writeLocked(conn, env.message)
	}
}

func (h *HubService) writeLocked(conn *websocket.Conn, message []byte) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
		h.logger.Error("Error sending message: %v", err)
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *HubService) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// Register subscribes conn to the messages of session. initial, if not
// nil, is written first; it describes state version, and later messages
// with a version not above it are skipped for this viewer.
func (h *HubService) Register(conn *websocket.Conn, session string, initial []byte, version uint64) {
	select {
	case h.register <- subscription{conn: conn, session: session, initial: initial, version: version}:
	case <-h.done:
		conn.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues message for every viewer of session. It does not block
// on slow viewers; when the queue is full the message is dropped, and the
// next state message supersedes it anyway.
func (h *HubService) Broadcast(message []byte, session string, version uint64) {
	select {
	case h.broadcast <- envelope{message: message, session: session, version: version}:
	case <-h.done:
	default:
		h.logger.Warning("Broadcast queue full, dropping message for session %s", session)
	}
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// SessionClientCount is the number of viewers subscribed to session.
func (h *HubService) SessionClientCount(session string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	n := 0
	for _, cl := range h.clients {
		if cl.session == session {
			n++
		}
	}
	return n
}
