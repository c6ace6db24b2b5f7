package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/narrator/internal/narration"
	"github.com/MrWong99/narrator/internal/observe"
)

// DefaultReadLimit is the largest accepted frame in bytes. Snapshot reports
// with many rooms or power buildings can exceed the websocket default.
const DefaultReadLimit = 1 << 20

// ObservationHandler receives every observation read from the feed.
type ObservationHandler func(ctx context.Context, obs narration.Observation)

// Server is an [http.Handler] that accepts game mod connections on a
// websocket and dispatches their messages.
type Server struct {
	keeper  *RecordKeeper
	onObs   ObservationHandler
	metrics *observe.Metrics

	originPatterns []string
	readLimit      int64
	pingInterval   time.Duration
	now            func() time.Time

	conns atomic.Int64
}

// Option configures a [Server].
type Option func(*Server)

// WithOriginPatterns allows cross-origin connections from hosts matching the
// given patterns. See websocket.AcceptOptions.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithReadLimit overrides [DefaultReadLimit].
func WithReadLimit(n int64) Option {
	return func(s *Server) { s.readLimit = n }
}

// WithPingInterval makes the server ping every connection at interval and
// drop it when a ping goes unanswered. Zero disables pings.
func WithPingInterval(interval time.Duration) Option {
	return func(s *Server) { s.pingInterval = interval }
}

// NewServer creates a feed server that stores world state in keeper and
// passes observations to onObservation.
func NewServer(keeper *RecordKeeper, onObservation ObservationHandler, opts ...Option) *Server {
	s := &Server{
		keeper:    keeper,
		onObs:     onObservation,
		readLimit: DefaultReadLimit,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Connections returns the number of connected clients.
func (s *Server) Connections() int { return int(s.conns.Load()) }

// ServeHTTP upgrades the request and reads messages until the client
// disconnects or the request context ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		slog.Warn("feed: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.readLimit)

	ctx := r.Context()
	s.conns.Add(1)
	s.metrics.FeedConnections.Add(ctx, 1)
	defer func() {
		s.conns.Add(-1)
		s.metrics.FeedConnections.Add(context.WithoutCancel(ctx), -1)
	}()
	slog.Info("feed: client connected", "remote", r.RemoteAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx, conn) })
	if s.pingInterval > 0 {
		g.Go(func() error { return s.pingLoop(gctx, conn) })
	}
	err = g.Wait()

	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		slog.Info("feed: client disconnected", "remote", r.RemoteAddr)
		conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	default:
		slog.Warn("feed: connection dropped", "remote", r.RemoteAddr, "err", err)
		conn.Close(websocket.StatusInternalError, "")
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			slog.Debug("feed: ignoring binary frame", "bytes", len(data))
			continue
		}
		if err := s.Dispatch(ctx, data); err != nil {
			slog.Warn("feed: bad message", "err", err)
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, s.pingInterval)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return fmt.Errorf("feed: ping: %w", err)
			}
		}
	}
}

// Dispatch decodes one message and applies it.
func (s *Server) Dispatch(ctx context.Context, data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.metrics.RecordFeedMessage(ctx, "invalid")
		return fmt.Errorf("feed: decode: %w", err)
	}

	switch msg.Type {
	case TypeObservation:
		if msg.Text == "" {
			s.metrics.RecordFeedMessage(ctx, "invalid")
			return errors.New("feed: observation without text")
		}
		at := msg.At
		if at.IsZero() {
			at = s.now()
		}
		s.metrics.RecordFeedMessage(ctx, msg.Type)
		if s.onObs != nil {
			s.onObs(ctx, narration.Observation{Text: msg.Text, At: at})
		}
	case TypeWindow:
		if msg.Window == nil {
			s.metrics.RecordFeedMessage(ctx, "invalid")
			return errors.New("feed: window message without window")
		}
		s.metrics.RecordFeedMessage(ctx, msg.Type)
		s.keeper.SetWindow(*msg.Window)
	case TypeSnapshot:
		if msg.Snapshot == nil {
			s.metrics.RecordFeedMessage(ctx, "invalid")
			return errors.New("feed: snapshot message without snapshot")
		}
		s.metrics.RecordFeedMessage(ctx, msg.Type)
		s.keeper.Update(*msg.Snapshot)
	default:
		s.metrics.RecordFeedMessage(ctx, "unknown")
		return fmt.Errorf("feed: unknown message type %q", msg.Type)
	}
	return nil
}
