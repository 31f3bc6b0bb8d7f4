package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vocalsnr/internal/log"
)

const writeWait = 2 * time.Second

// Commands accepted from clients.
const (
	CommandBaseline = "baseline"
	CommandTest     = "test"
	CommandStop     = "stop"
)

// Command is an inbound control message, e.g. {"command":"test"}.
type Command struct {
	Command string `json:"command"`
}

// CommandReply answers a Command. It is broadcast to every client.
type CommandReply struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// CommandFunc runs a client command.
type CommandFunc func(command string) error

// WebSocketTransport broadcasts messages to every connected client on /ws
// and accepts session commands from them.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	onCommand CommandFunc
	server    *http.Server

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebSocketTransport creates a transport for addr. onCommand may be nil,
// in which case commands are rejected. Call ListenAndServe to accept
// connections, or mount Handler on an existing server.
func NewWebSocketTransport(addr string, onCommand CommandFunc) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, 256),
		onCommand: onCommand,
		done:      make(chan struct{}),
	}
	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// Handler returns the HTTP handler serving /ws.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	return mux
}

// ListenAndServe serves until ctx is cancelled or the transport is closed.
func (wst *WebSocketTransport) ListenAndServe(ctx context.Context) error {
	wst.server = &http.Server{
		Addr:              wst.addr,
		Handler:           wst.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-wst.done:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = wst.server.Shutdown(shutdownCtx)
	}()

	log.Infof("WebSocketTransport: Starting WebSocket server on %s", wst.addr)
	if err := wst.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket server: %w", err)
	}
	return nil
}

// checkOrigin allows same-origin, loopback and private network origins.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		log.Warnf("WebSocketTransport: rejected invalid origin %q", origin)
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}
	log.Warnf("WebSocketTransport: rejected origin %q", origin)
	return false
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	select {
	case <-wst.done:
		wst.clientsMu.Unlock()
		conn.Close()
		return
	default:
	}
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	log.Infof("WebSocketTransport: Client connected, total: %d", total)

	go wst.readCommands(conn)
}

// readCommands runs until the client disconnects.
func (wst *WebSocketTransport) readCommands(conn *websocket.Conn) {
	defer wst.drop(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("WebSocketTransport: read: %v", err)
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			_ = wst.Send(CommandReply{Type: "command", Error: "malformed command: " + err.Error()})
			continue
		}
		wst.runCommand(cmd.Command)
	}
}

func (wst *WebSocketTransport) runCommand(name string) {
	reply := CommandReply{Type: "command", Command: name, OK: true}
	var err error
	switch {
	case wst.onCommand == nil:
		err = errors.New("commands disabled")
	case name != CommandBaseline && name != CommandTest && name != CommandStop:
		err = fmt.Errorf("unknown command %q", name)
	default:
		err = wst.onCommand(name)
	}
	if err != nil {
		log.Warnf("WebSocketTransport: command %q failed: %v", name, err)
		reply.OK = false
		reply.Error = err.Error()
	}
	_ = wst.Send(reply)
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	conn.Close()
	if ok {
		log.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

// handleBroadcasts is the only writer to client connections.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteJSON(data); err != nil {
					log.Warnf("WebSocketTransport: Error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Send queues data for broadcast. A full queue drops the message.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return errors.New("websocket transport closed")
	default:
	}
	select {
	case wst.broadcast <- data:
	default:
		log.Debugf("WebSocketTransport: broadcast queue full, dropping %T", data)
	}
	return nil
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Close disconnects every client and stops the server.
func (wst *WebSocketTransport) Close() error {
	wst.closeOnce.Do(func() {
		log.Infof("WebSocketTransport: Closing server")
		close(wst.done)
		wst.wg.Wait()

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()
	})
	return nil
}

var _ Transport = (*WebSocketTransport)(nil)
