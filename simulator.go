package main

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// hub is a minimal stand-in for the session relay the production deployment
// dials: every message from one client is forwarded to every other client.
// It exists for -sim mode and the tests, not the functional path.
type hub struct {
	mu       sync.RWMutex
	clients  map[*hubClient]bool
	upgrader websocket.Upgrader
}

type hubMessage struct {
	mt   int
	data []byte
}

type hubClient struct {
	conn *websocket.Conn
	send chan hubMessage
}

// writePump pumps forwarded messages from the hub to one client.
func (c *hubClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(msg.mt, msg.data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func newHub() *hub {
	return &hub{
		clients: make(map[*hubClient]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
		},
	}
}

// handleWS upgrades the connection and relays frames until the client leaves.
func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithFields(log.Fields{"error": err.Error()}).Error("upgrade failed")
		return
	}

	client := &hubClient{conn: conn, send: make(chan hubMessage, 256)}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	log.Debug("session client connected")

	go client.writePump()

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		close(client.send)
		log.Debug("session client disconnected")
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.forward(client, mt, msg)
	}
}

// forward sends a frame to every client except the sender, dropping it for
// clients whose buffers are full.
func (h *hub) forward(from *hubClient, mt int, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c == from {
			continue
		}
		select {
		case c.send <- hubMessage{mt: mt, data: data}:
		default:
		}
	}
}

// runSessionRelay serves a hub websocket endpoint at path on addr, standing
// in for the external session relay so the loop can be driven locally.
func runSessionRelay(addr, path string) {
	h := newHub()
	mux := http.NewServeMux()
	mux.HandleFunc(path, h.handleWS)
	log.WithFields(log.Fields{"addr": addr, "path": path}).Info("session relay stand-in listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithFields(log.Fields{"error": err.Error()}).Fatal("session relay stand-in stopped")
	}
}
