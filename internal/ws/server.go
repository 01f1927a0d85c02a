// Package ws serves the live round feed over websocket.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"round-settlement/internal/stream"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1024
	maxRoundIDLen  = 64
)

type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	mu      sync.Mutex
	roundID string
	closed  bool
}

func (c *Client) filter() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundID
}

type Server struct {
	events   *stream.EventBuffer
	upgrader websocket.Upgrader
}

func NewServer(events *stream.EventBuffer) *Server {
	return &Server{
		events:   events,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// HandleWS upgrades the request and streams round events until the client
// leaves. A round_id query parameter starts the feed already filtered.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	roundID := r.URL.Query().Get("round_id")
	if len(roundID) > maxRoundIDLen {
		http.Error(w, "invalid round_id", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &Client{conn: conn, send: make(chan []byte, 64), roundID: roundID}
	metricConnectionsTotal.Add(1)
	metricConnectionsActive.Add(1)
	defer metricConnectionsActive.Add(-1)

	lastEventID := r.URL.Query().Get("last_event_id")
	sub, backlog := s.events.SubscribeAfter(lastEventID)
	defer s.events.Unsubscribe(sub)

	go s.writeLoop(client)
	s.sendJSON(client, Hello{Type: "hello", ProtocolVersion: ProtocolVersion, RoundID: roundID})
	s.replayBacklog(client, lastEventID, backlog)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readLoop(client)
	}()
	for {
		select {
		case <-done:
			safeClose(client)
			return
		case ev, ok := <-sub:
			if !ok {
				safeClose(client)
				<-done
				return
			}
			s.deliver(client, ev)
		}
	}
}

func (s *Server) readLoop(c *Client) {
	defer func() { _ = c.conn.Close() }()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(c, msg)
	}
}

func (s *Server) writeLoop(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(c *Client, msg []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &base); err != nil {
		s.sendJSON(c, SubscribeResult{Type: "error", ProtocolVersion: ProtocolVersion, Error: "invalid_json"})
		return
	}
	switch base.Type {
	case "subscribe":
		var sub SubscribeMessage
		if err := json.Unmarshal(msg, &sub); err != nil || len(sub.RoundID) > maxRoundIDLen {
			s.sendJSON(c, SubscribeResult{Type: "subscribe_result", ProtocolVersion: ProtocolVersion, Error: "invalid_request"})
			return
		}
		c.mu.Lock()
		c.roundID = sub.RoundID
		c.mu.Unlock()
		s.sendJSON(c, SubscribeResult{Type: "subscribe_result", ProtocolVersion: ProtocolVersion, Ok: true, RoundID: sub.RoundID})
		if sub.LastEventID != "" {
			s.replay(c, sub.LastEventID)
		}
	default:
		s.sendJSON(c, SubscribeResult{Type: "error", ProtocolVersion: ProtocolVersion, Error: "unknown_type"})
	}
}

// replay sends buffered events newer than lastEventID. Without an id only the
// state of a filtered round is replayed; the unfiltered feed starts live.
func (s *Server) replay(c *Client, lastEventID string) {
	s.replayBacklog(c, lastEventID, s.events.ReplayAfter(lastEventID))
}

func (s *Server) replayBacklog(c *Client, lastEventID string, backlog []stream.Event) {
	if lastEventID == "" && c.filter() == "" {
		return
	}
	for _, ev := range backlog {
		s.deliver(c, ev)
	}
}

func (s *Server) deliver(c *Client, ev stream.Event) {
	if id := c.filter(); id != "" && ev.RoundID != id {
		return
	}
	s.sendJSON(c, RoundEvent{Type: "round_event", ProtocolVersion: ProtocolVersion, Event: ev})
}

func (s *Server) sendJSON(c *Client, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("encode websocket message failed")
		return
	}
	safeSend(c, msg)
}

// safeSend drops the message when the client is too slow to keep up.
func safeSend(c *Client, msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		log.Debug().Str("round_id", c.roundID).Msg("websocket client lagging, message dropped")
	}
}

func safeClose(c *Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
