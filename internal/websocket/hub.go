package signalws

import (
	"encoding/json"
	"log"

	websocket "github.com/gofiber/contrib/websocket"
)

// Hub relays WebRTC signaling frames between the two participants of a
// session and lets the server push ICE candidates discovered locally.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	relay      chan *Frame
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	userID    string
	send      chan []byte
}

type candidateSink interface {
	AddRemoteCandidate(sessionID, userID, candidate string) error
}

type Frame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`
	Content   string `json:"content,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		relay:      make(chan *Frame, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, sessionID, userID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		userID:    userID,
		send:      make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.sessionID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.sessionID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.sessionID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.sessionID)
			}
		case frame := <-h.relay:
			h.deliver(frame)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// SendCandidate pushes a server-discovered ICE candidate to the session's
// remote peers. It satisfies the engine's signaling port.
func (h *Hub) SendCandidate(sessionID, userID, candidate string) error {
	h.relay <- &Frame{
		Type:      "candidate",
		SessionID: sessionID,
		From:      userID,
		Candidate: candidate,
	}
	return nil
}

func (h *Hub) deliver(frame *Frame) {
	set, ok := h.clients[frame.SessionID]
	if !ok {
		return
	}

	encoded, err := json.Marshal(frame)
	if err != nil {
		log.Printf("signal hub encode frame: %v", err)
		return
	}

	for client := range set {
		if client.userID == frame.From {
			continue
		}
		select {
		case client.send <- encoded:
		default:
			delete(set, client)
			close(client.send)
		}
	}
	if len(set) == 0 {
		delete(h.clients, frame.SessionID)
	}
}

func (c *Client) ReadPump(sink candidateSink) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming Frame
		if err := json.Unmarshal(payload, &incoming); err != nil {
			writeError(c, "invalid frame payload")
			continue
		}

		incoming.SessionID = c.sessionID
		incoming.From = c.userID

		switch incoming.Type {
		case "offer", "answer":
			c.hub.relay <- &incoming
		case "candidate":
			if incoming.Candidate == "" {
				writeError(c, "missing candidate")
				continue
			}
			if err := sink.AddRemoteCandidate(c.sessionID, c.userID, incoming.Candidate); err != nil {
				writeError(c, "failed to add candidate")
				continue
			}
			c.hub.relay <- &incoming
		default:
			writeError(c, "unsupported frame type")
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func writeError(client *Client, message string) {
	payload, err := json.Marshal(Frame{
		Type:    "error",
		Content: message,
	})
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
	default:
		client.hub.Unregister(client)
	}
}
