// Package server exposes the speech-session classifier over HTTP.
//
// Routes:
//
//   - /healthz, /readyz — probes from [health.Handler].
//   - /metrics          — Prometheus scrape endpoint.
//   - /v1/stream        — WebSocket endpoint; each connection gets its own
//     session machine. The client sends one JSON object per audio frame:
//
//     {"voiced": true, "probability": 0.93}
//
//     and receives the classified state after every frame:
//
//     {"state": "SPEECH_START", "changed": true, "duration_ms": 0}
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxkit/speechstate/internal/health"
	"github.com/voxkit/speechstate/internal/observe"
	"github.com/voxkit/speechstate/internal/pipeline"
	"github.com/voxkit/speechstate/pkg/session"
	"github.com/voxkit/speechstate/pkg/vad"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Config carries everything the server needs to classify a stream.
type Config struct {
	// ListenAddr is the TCP address for the HTTP listener, e.g. ":8080".
	ListenAddr string

	// HopSize and SampleRate define the frame geometry shared by every
	// stream served by this process.
	HopSize    int
	SampleRate int

	// Session holds the debouncing thresholds applied to each stream.
	Session session.Config
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger overrides the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server serves health probes, metrics, and the classification stream.
type Server struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics
	health  *health.Handler
}

// New validates cfg by building a throwaway machine with it and returns a
// ready-to-run server. Invalid frame geometry or thresholds surface here, not
// on the first connection.
func New(cfg Config, opts ...Option) (*Server, error) {
	s := &Server{cfg: cfg, log: slog.Default(), health: health.New()}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	probe, err := session.New(cfg.HopSize, cfg.SampleRate, session.WithConfig(cfg.Session))
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	_ = probe.Close()

	return s, nil
}

// Handler returns the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	return observe.Middleware(s.metrics)(mux)
}

// Run serves HTTP until ctx is cancelled, then drains connections within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("http server listening", "addr", s.cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// decisionMessage is one client frame on /v1/stream.
type decisionMessage struct {
	Voiced      bool    `json:"voiced"`
	Probability float64 `json:"probability"`
}

// stateMessage is the server's reply to each decision.
type stateMessage struct {
	State      string  `json:"state"`
	Changed    bool    `json:"changed"`
	DurationMS float64 `json:"duration_ms"`
}

// handleStream upgrades the request to a WebSocket and runs one classification
// session for the lifetime of the connection.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	seg, err := pipeline.New(s.cfg.HopSize, s.cfg.SampleRate, s.cfg.Session,
		pipeline.WithMetrics(s.metrics),
		pipeline.WithLogger(s.log),
	)
	if err != nil {
		// New validated this configuration already, so this is a bug.
		s.log.Error("stream segmenter creation failed", "err", err)
		conn.Close(websocket.StatusInternalError, "segmenter init failed")
		return
	}
	defer seg.Close()

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(ctx, -1)

	s.log.Info("stream opened", "remote", r.RemoteAddr)
	defer s.log.Info("stream closed", "remote", r.RemoteAddr)

	prev := seg.State()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if ctx.Err() == nil {
				s.log.Debug("stream read ended", "err", err)
			}
			return
		}

		var msg decisionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.Close(websocket.StatusInvalidFramePayloadData, "malformed decision")
			return
		}

		st, err := seg.ProcessDecision(ctx, vad.Decision{Voiced: msg.Voiced, Probability: msg.Probability})
		if err != nil {
			s.log.Error("stream processing failed", "err", err)
			conn.Close(websocket.StatusInternalError, "processing failed")
			return
		}

		reply := stateMessage{
			State:      st.String(),
			Changed:    st != prev,
			DurationMS: float64(seg.StateDuration()) / float64(time.Millisecond),
		}
		prev = st

		out, err := json.Marshal(reply)
		if err != nil {
			s.log.Error("stream reply encoding failed", "err", err)
			conn.Close(websocket.StatusInternalError, "encoding failed")
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			s.log.Debug("stream write ended", "err", err)
			return
		}
	}
}
