package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/chartsync/pkg/highlight"
	"github.com/vango-dev/chartsync/pkg/hoversync"
	"github.com/vango-dev/chartsync/pkg/seriessync"
)

// Stream kinds, used as message types and metric labels.
const (
	streamHover     = "hover"
	streamSeries    = "series"
	streamHighlight = "highlight"
)

// ClientMessage is a frame sent by a stream client. Which fields apply
// depends on Type:
//
//	hover stream:     {"type":"hover","index":3} or {"type":"clear"}
//	series stream:    {"type":"update","patch":{...}} or {"type":"clear"}
//	highlight stream: {"type":"down"|"move"|"up"|"clear","label":..,"x":..,"chartX":..,"chartY":..}
type ClientMessage struct {
	Type   string          `json:"type"`
	Index  *int            `json:"index,omitempty"`
	Patch  json.RawMessage `json:"patch,omitempty"`
	Label  highlight.Label `json:"label"`
	X      *float64        `json:"x,omitempty"`
	ChartX float64         `json:"chartX"`
	ChartY float64         `json:"chartY"`
}

// ServerMessage is a frame pushed to a stream client. State holds a
// hoversync.State, seriessync.State or highlight.Range.
type ServerMessage struct {
	Type  string `json:"type"`
	State any    `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

func errorMessage(msg string) ServerMessage {
	return ServerMessage{Type: "error", Error: msg}
}

func (s *Server) handleHoverStream(w http.ResponseWriter, r *http.Request) {
	chartID := chi.URLParam(r, "chartID")
	st, ok := s.openStream(w, r, streamHover)
	if !ok {
		return
	}
	defer st.finish()

	unsubscribe := s.svc.Hover.Subscribe(chartID, func(v hoversync.State) {
		st.push(ServerMessage{Type: streamHover, State: v})
	})
	defer unsubscribe()
	st.push(ServerMessage{Type: streamHover, State: s.svc.Hover.View(chartID)})

	st.readLoop(func(msg ClientMessage) {
		switch msg.Type {
		case "hover":
			if msg.Index == nil {
				st.push(errorMessage("index is required"))
				return
			}
			s.svc.Hover.SetHover(chartID, *msg.Index)
		case "clear":
			s.svc.Hover.ClearHover(chartID)
		default:
			st.push(errorMessage("unknown message type " + msg.Type))
		}
	})
}

func (s *Server) handleSeriesStream(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	st, ok := s.openStream(w, r, streamSeries)
	if !ok {
		return
	}
	defer st.finish()

	unsubscribe := s.svc.Series.Subscribe(key, func(v seriessync.State) {
		st.push(ServerMessage{Type: streamSeries, State: v})
	})
	defer unsubscribe()
	st.push(ServerMessage{Type: streamSeries, State: s.svc.Series.State(key)})

	st.readLoop(func(msg ClientMessage) {
		switch msg.Type {
		case "update":
			patches, err := seriessync.ParsePatch(msg.Patch)
			if err != nil {
				st.push(errorMessage(err.Error()))
				return
			}
			s.svc.Series.UpdateState(key, patches...)
		case "clear":
			s.svc.Series.ClearState(key)
		default:
			st.push(errorMessage("unknown message type " + msg.Type))
		}
	})
}

func (s *Server) handleHighlightStream(w http.ResponseWriter, r *http.Request) {
	st, ok := s.openStream(w, r, streamHighlight)
	if !ok {
		return
	}
	defer st.finish()

	ctrl := s.svc.NewHighlight()
	unsubscribe := ctrl.Subscribe(func(rng highlight.Range) {
		st.push(ServerMessage{Type: streamHighlight, State: rng})
	})
	defer unsubscribe()
	st.push(ServerMessage{Type: streamHighlight, State: ctrl.Range()})

	st.readLoop(func(msg ClientMessage) {
		ev := highlight.Event{Label: msg.Label, X: msg.X, ChartX: msg.ChartX, ChartY: msg.ChartY}
		switch msg.Type {
		case "down":
			ctrl.HandlePointerDown(ev)
		case "move":
			ctrl.HandlePointerMove(ev)
		case "up":
			ctrl.HandlePointerUp(ev)
		case "clear":
			ctrl.ClearHighlight()
		default:
			st.push(errorMessage("unknown message type " + msg.Type))
		}
	})
}

// stream is one WebSocket connection. Frames are written by a single
// writer goroutine; push never blocks the store that publishes.
type stream struct {
	server *Server
	conn   *websocket.Conn
	kind   string
	logger *slog.Logger

	send chan ServerMessage
	done chan struct{}
	once sync.Once
}

func (s *Server) openStream(w http.ResponseWriter, r *http.Request, kind string) (*stream, bool) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered the request.
		s.logger.Debug("websocket upgrade failed", "stream", kind, "error", err)
		return nil, false
	}
	conn.SetReadLimit(s.config.MaxMessageSize)

	id := uuid.NewString()
	st := &stream{
		server: s,
		conn:   conn,
		kind:   kind,
		logger: s.logger.With("stream", kind, "stream_id", id, "remote", r.RemoteAddr),
		send:   make(chan ServerMessage, s.config.SendQueueSize),
		done:   make(chan struct{}),
	}
	if s.metrics != nil {
		s.metrics.StreamOpened(kind)
	}
	st.logger.Debug("stream opened")

	go st.writeLoop()
	go func() {
		select {
		case <-r.Context().Done():
			st.close()
		case <-st.done:
		}
	}()
	return st, true
}

// push queues msg. A client that cannot keep up is disconnected.
func (st *stream) push(msg ServerMessage) {
	select {
	case <-st.done:
		return
	default:
	}

	select {
	case st.send <- msg:
	case <-st.done:
	default:
		st.logger.Warn("stream send queue full, closing")
		st.close()
	}
}

// readLoop decodes client frames and hands them to handle until the
// connection fails or is closed.
func (st *stream) readLoop(handle func(ClientMessage)) {
	defer st.close()

	timeout := st.server.config.ReadTimeout
	st.conn.SetReadDeadline(time.Now().Add(timeout))
	st.conn.SetPongHandler(func(string) error {
		return st.conn.SetReadDeadline(time.Now().Add(timeout))
	})

	for {
		_, data, err := st.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				st.logger.Error("read error", "error", err)
			}
			return
		}
		st.conn.SetReadDeadline(time.Now().Add(timeout))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			st.push(errorMessage("invalid message: " + err.Error()))
			continue
		}
		handle(msg)
	}
}

func (st *stream) writeLoop() {
	ticker := time.NewTicker(st.server.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-st.send:
			st.conn.SetWriteDeadline(time.Now().Add(st.server.config.WriteTimeout))
			if err := st.conn.WriteJSON(msg); err != nil {
				st.logger.Debug("write error", "error", err)
				st.close()
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(st.server.config.WriteTimeout)
			if err := st.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				st.close()
				return
			}

		case <-st.done:
			return
		}
	}
}

// close stops the stream and closes the connection. Safe to call more
// than once and from any goroutine.
func (st *stream) close() {
	st.once.Do(func() {
		close(st.done)
		deadline := time.Now().Add(st.server.config.WriteTimeout)
		_ = st.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		st.conn.Close()
	})
}

// finish runs when the handler returns.
func (st *stream) finish() {
	st.close()
	if st.server.metrics != nil {
		st.server.metrics.StreamClosed(st.kind)
	}
	st.logger.Debug("stream closed")
}
