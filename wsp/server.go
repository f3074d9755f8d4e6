package wsp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/musewave/maestro/auth"
	"github.com/musewave/maestro/stream"
)

// Server bridges the progress broker onto WebSocket connections. It is
// an http.Handler: mount it wherever the HTTP mux lives.
type Server struct {
	broker   *stream.Broker
	resolver auth.Resolver
	conns    *ConnectionManager
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a WebSocket progress server. A nil resolver accepts
// every connection (single-tenant deployments).
func NewServer(broker *stream.Broker, resolver auth.Resolver, opts ...Option) *Server {
	s := &Server{
		broker:   broker,
		resolver: resolver,
		conns:    NewConnectionManager(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connections returns the connection manager.
func (s *Server) Connections() *ConnectionManager { return s.conns }

// ServeHTTP upgrades the request and serves the connection until the
// client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	// The connection is hijacked; the request context dies with this
	// handler, so the session runs under its own context.
	go s.serve(context.Background(), conn)
}

// wsWriter serializes concurrent writes: the frame loop and the event
// forwarder share one connection.
type wsWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *wsWriter) write(codec Codec, frame *Frame) error {
	data, err := codec.Encode(frame)
	if err != nil {
		return err
	}
	op := ws.OpText
	if codec.Name() == CodecNameMsgpack {
		op = ws.OpBinary
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return wsutil.WriteServerMessage(w.conn, op, data)
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	writer := &wsWriter{conn: conn}
	jsonCodec := &JSONCodec{}

	// The first frame must be auth, always JSON: codec negotiation has
	// not happened yet.
	data, _, err := wsutil.ReadClientData(conn)
	if err != nil {
		return
	}
	var authFrame Frame
	if err := json.Unmarshal(data, &authFrame); err != nil {
		_ = writer.write(jsonCodec, NewErrorFrame("", ErrCodeBadRequest, "invalid auth frame"))
		return
	}
	if authFrame.Method != MethodAuth {
		_ = writer.write(jsonCodec, NewErrorFrame(authFrame.ID, ErrCodeBadRequest, "first frame must be auth"))
		return
	}

	var authReq AuthRequest
	if len(authFrame.Data) > 0 {
		if err := json.Unmarshal(authFrame.Data, &authReq); err != nil {
			_ = writer.write(jsonCodec, NewErrorFrame(authFrame.ID, ErrCodeBadRequest, "invalid auth data"))
			return
		}
	}
	token := authReq.Token
	if token == "" {
		token = authFrame.Token
	}

	var cred *auth.Credential
	if s.resolver != nil {
		cred, err = s.resolver.Resolve(ctx, token)
		if err != nil {
			_ = writer.write(jsonCodec, NewErrorFrame(authFrame.ID, ErrCodeUnauthorized, "authentication failed"))
			return
		}
	}

	codec := GetCodec(authReq.Format)
	connID := "ws-" + generateFrameID()
	state := NewConnection(connID, cred, codec)
	s.conns.Add(state)
	defer func() {
		s.broker.RemoveSubscriber(connID)
		s.conns.Remove(connID)
		s.logger.Info("websocket disconnected", slog.String("conn_id", connID))
	}()

	resp, err := NewResponseFrame(authFrame.ID, AuthResponse{
		Format:    codec.Name(),
		SessionID: connID,
	})
	if err != nil {
		return
	}
	if err := writer.write(codec, resp); err != nil {
		return
	}

	s.logger.Info("websocket authenticated",
		slog.String("conn_id", connID),
		slog.String("codec", codec.Name()),
	)

	sub := s.broker.Subscribe(connID)
	go s.forwardEvents(writer, codec, sub)

	for {
		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			return // connection closed
		}
		state.Touch()

		frame, err := codec.Decode(data)
		if err != nil {
			s.writeOrWarn(writer, codec, NewErrorFrame("", ErrCodeBadRequest, "invalid frame: "+err.Error()))
			continue
		}

		if frame.Type == FramePing {
			s.writeOrWarn(writer, codec, &Frame{
				ID:        generateFrameID(),
				Type:      FramePong,
				CorrelID:  frame.ID,
				Timestamp: frame.Timestamp,
			})
			continue
		}

		if frame.Credits > 0 && frame.Method == "" {
			sub.AddCredits(int64(frame.Credits))
			continue
		}

		s.handleRequest(writer, codec, state, sub, frame)
	}
}

func (s *Server) handleRequest(writer *wsWriter, codec Codec, state *Connection, sub *stream.Subscriber, frame *Frame) {
	switch frame.Method {
	case MethodSubscribe:
		var req SubscribeRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.Channel == "" {
			s.writeOrWarn(writer, codec, NewErrorFrame(frame.ID, ErrCodeBadRequest, "channel is required"))
			return
		}
		s.broker.SubscribeTo(state.ID, req.Channel)
		state.AddSubscription(req.Channel)
		if req.Credits > 0 {
			sub.AddCredits(int64(req.Credits))
		}
		s.respondOK(writer, codec, frame, map[string]string{"channel": req.Channel})

	case MethodUnsubscribe:
		var req UnsubscribeRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.Channel == "" {
			s.writeOrWarn(writer, codec, NewErrorFrame(frame.ID, ErrCodeBadRequest, "channel is required"))
			return
		}
		s.broker.Unsubscribe(state.ID, req.Channel)
		state.RemoveSubscription(req.Channel)
		s.respondOK(writer, codec, frame, map[string]string{"channel": req.Channel})

	default:
		s.writeOrWarn(writer, codec, NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "unknown method "+frame.Method))
	}
}

func (s *Server) respondOK(writer *wsWriter, codec Codec, req *Frame, data any) {
	resp, err := NewResponseFrame(req.ID, data)
	if err != nil {
		return
	}
	s.writeOrWarn(writer, codec, resp)
}

func (s *Server) writeOrWarn(writer *wsWriter, codec Codec, frame *Frame) {
	if err := writer.write(codec, frame); err != nil {
		s.logger.Warn("websocket write failed", slog.String("error", err.Error()))
	}
}

// forwardEvents pumps broker events onto the wire until the subscriber
// channel closes or the connection dies.
func (s *Server) forwardEvents(writer *wsWriter, codec Codec, sub *stream.Subscriber) {
	for evt := range sub.C() {
		frame, err := NewEventFrame(evt.Topic, evt)
		if err != nil {
			continue
		}
		if err := writer.write(codec, frame); err != nil {
			return // connection gone
		}
	}
}
