package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/elijahnyp/lamp_controller/lamp"
	. "github.com/elijahnyp/lamp_controller/util"
)

const MessageLampState = "lamp_state"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served from any host name the lamp answers on
	},
}

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Data interface{} `json:"data"`
	Type string      `json:"type"`
}

type LampStatePayload struct {
	On    bool   `json:"on"`
	Color string `json:"color"`
}

func NewLampStatePayload(on bool) LampStatePayload {
	return LampStatePayload{On: on, Color: lamp.Color(on)}
}

// LampStatus is the /api/status document.
type LampStatus struct {
	On        bool   `json:"on"`
	Color     string `json:"color"`
	Mode      string `json:"mode"`
	Broker    string `json:"broker"`
	AE        string `json:"ae"`
	Container string `json:"container"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn *websocket.Conn
	send chan WebSocketMessage
	hub  *WSHub
}

// WSHub maintains the set of active clients and broadcasts messages
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan WebSocketMessage
	register   chan *WSClient
	unregister chan *WSClient
	stopped    chan struct{}
}

// NewHub creates a new WebSocket hub
func NewHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WebSocketMessage, 16),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		stopped:    make(chan struct{}),
	}
}

// Run serves the hub until stop is closed, then drops every client.
func (h *WSHub) Run(stop <-chan struct{}) {
	defer close(h.stopped)
	for {
		select {
		case <-stop:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			Logger.Info().Msg("Client connected to WebSocket")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				Logger.Info().Msg("Client disconnected from WebSocket")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// BroadcastUpdate sends an update to all connected clients. When the queue
// is full the oldest queued update gives way, so the newest always goes out.
func (h *WSHub) BroadcastUpdate(messageType string, data interface{}) {
	message := WebSocketMessage{Type: messageType, Data: data}
	for {
		select {
		case h.broadcast <- message:
			return
		default:
		}
		select {
		case old := <-h.broadcast:
			Logger.Debug().Msgf("websocket hub busy, replacing queued %s", old.Type)
		default:
		}
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		if err := c.conn.Close(); err != nil {
			Logger.Debug().Msgf("Error closing WebSocket connection: %v", err)
		}
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *WSClient) writePump() {
	defer func() {
		if err := c.conn.Close(); err != nil {
			Logger.Debug().Msgf("Error closing WebSocket connection: %v", err)
		}
	}()

	for message := range c.send {
		if err := c.conn.WriteJSON(message); err != nil {
			return
		}
	}
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		Logger.Debug().Msgf("Error writing close message: %v", err)
	}
}

// ServeWebSocket upgrades the connection and sends the current lamp state
// followed by every change.
func (a *App) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSClient{
		conn: conn,
		send: make(chan WebSocketMessage, 256),
		hub:  a.hub,
	}
	client.send <- WebSocketMessage{Type: MessageLampState, Data: NewLampStatePayload(a.state.On())}

	select {
	case client.hub.register <- client:
	case <-client.hub.stopped:
		close(client.send)
	}

	go client.writePump()
	go client.readPump()
}

func (a *App) status() LampStatus {
	on := a.state.On()
	broker := ""
	if a.client != nil {
		broker = a.client.BaseURL()
	}
	return LampStatus{
		On:        on,
		Color:     lamp.Color(on),
		Mode:      a.Mode(),
		Broker:    broker,
		AE:        a.model.AE,
		Container: a.model.Container,
	}
}

// APIStatus returns the lamp status as JSON
func (a *App) APIStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.status()); err != nil {
		Logger.Error().Err(err).Msg("Error encoding lamp status")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// APIToggle flips the lamp when local toggling is allowed.
func (a *App) APIToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !a.LocalToggleEnabled() {
		http.Error(w, "Local toggle disabled", http.StatusForbidden)
		return
	}
	a.Toggle()
	a.APIStatus(w, r)
}

// LampImage renders the lamp as a PNG. ?size= picks the edge length.
func (a *App) LampImage(w http.ResponseWriter, r *http.Request) {
	size := 200
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 2048 {
			http.Error(w, "Invalid size", http.StatusBadRequest)
			return
		}
		size = n
	}
	data, err := EncodeLampPNG(a.state.On(), size)
	if err != nil {
		Logger.Error().Msgf("Error encoding lamp image: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(data); err != nil {
		Logger.Warn().Msgf("Error writing lamp image: %v", err)
	}
}

const homePage = `<!DOCTYPE html>
<html>
<head><title>Lamp</title></head>
<body style="font-family: sans-serif; text-align: center">
<img id="lamp" src="/lamp.png" alt="lamp">
<p id="state"></p>
<button id="toggle">Toggle</button>
<script>
const img = document.getElementById("lamp");
const state = document.getElementById("state");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  if (msg.type !== "lamp_state") return;
  state.textContent = msg.data.on ? "ON" : "OFF";
  img.src = "/lamp.png?t=" + Date.now();
};
document.getElementById("toggle").onclick = () => fetch("/api/toggle", {method: "POST"});
</script>
</body>
</html>
`
