package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	logpkg "github.com/claudeayi/kalyptia-ledger/pkg/log"

	"github.com/claudeayi/kalyptia-ledger/internal/chain"
	"github.com/claudeayi/kalyptia-ledger/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 45 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The API is token-authenticated; origins are not part of the trust model.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsSender frames entries as JSON text messages. Writes are serialized with
// the keepalive pinger.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) Send(_ context.Context, e *chain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(e)
}

func (s *wsSender) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// wsClientMsg is what a client may send upstream: explicit acknowledgements.
type wsClientMsg struct {
	Ack *uint64 `json:"ack,omitempty"`
}

func (s *Server) handleSubscribeWS(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sender := &wsSender{conn: conn}
	req := s.subscribeRequest(r, id)

	// Read pump: consume client acks, refresh the liveness deadline, end the
	// session when the peer goes away.
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer cancel()
		for {
			var msg wsClientMsg
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			if msg.Ack != nil {
				if err := s.svc.Ack(events.Identity(id.ID), *msg.Ack); err != nil {
					s.logger.Warn("ws.ack_failed", logpkg.Str("identity", id.ID), logpkg.Err(err))
				}
			}
		}
	}()

	go func() {
		t := time.NewTicker(wsPingPeriod)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := sender.ping(); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := s.svc.Subscribe(ctx, req, sender); err != nil {
		s.logger.Warn("ws.session_ended", logpkg.Str("identity", id.ID), logpkg.Err(err))
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
}
