package web

import (
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fsae-team/daqserver/internal/auth"
	"github.com/fsae-team/daqserver/internal/telemetry/hub"
)

const (
	wsUpgradeDeadline = 5 * time.Second
	wsPingInterval    = 20 * time.Second
	wsMissedPingLimit = 2 // close after this many unacknowledged pings
	wsWriteWait       = 10 * time.Second

	// Non-standard, private-use close codes for conditions the RFC 6455
	// registry has no code for.
	closeUnauthorized = 4001
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: wsUpgradeDeadline,
	// CORS is enforced at the REST layer; a WS client must already present
	// a valid JWT, so the origin check adds nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWSTelemetry authenticates the caller from the token query
// parameter, subscribes to the Hub, and runs a writer task that
// serializes frames to the socket until it closes.
func (s *Server) handleWSTelemetry(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if _, err := auth.Authenticate(r.Context(), s.issuer, s.store, token); err != nil {
		conn, upErr := upgrader.Upgrade(w, r, nil)
		if upErr != nil {
			return
		}
		closeWithCode(conn, closeUnauthorized, "Unauthorized")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}

	sub := s.hub.Subscribe(0)
	defer sub.Unsubscribe()

	var lastPong atomic.Int64
	lastPong.Store(time.Now().UnixNano())

	done := make(chan struct{})
	go readLoop(conn, &lastPong, done)

	writeLoop(conn, sub, &lastPong, done)
}

// readLoop exists only to detect the client closing the connection and to
// keep the pong timestamp fresh; it discards anything the client sends.
func readLoop(conn *websocket.Conn, lastPong *atomic.Int64, done chan struct{}) {
	defer close(done)
	conn.SetPongHandler(func(string) error {
		lastPong.Store(time.Now().UnixNano())
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop serializes Hub frames to the socket, pings every
// wsPingInterval, and closes the connection if wsMissedPingLimit pings go
// unacknowledged or the hub shuts down this subscriber.
func writeLoop(conn *websocket.Conn, sub *hub.Subscription, lastPong *atomic.Int64, done chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-done:
			return
		case <-sub.Closed():
			closeWithCode(conn, websocket.CloseGoingAway, "going away")
			return
		case <-sub.Ready():
			for _, frame := range sub.Next() {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(frame); err != nil {
					return
				}
			}
		case <-ticker.C:
			silence := time.Since(time.Unix(0, lastPong.Load()))
			if silence > wsMissedPingLimit*wsPingInterval {
				closeWithCode(conn, websocket.CloseInternalServerErr, "heartbeat timeout")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func closeWithCode(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(wsWriteWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}
