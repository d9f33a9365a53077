package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"yinsen/internal/domain"
	"yinsen/internal/infra/middleware"
)

// TurnSubmitter queues a turn and waits for its result. The inbox
// implements it.
type TurnSubmitter interface {
	Submit(ctx context.Context, source, input string, format domain.ResponseFormat) (domain.TurnResult, error)
}

// LogReader exposes the notification and calendar logs.
type LogReader interface {
	Notifications() ([]string, error)
	CalendarEntries() ([]string, error)
}

// AgentReporter reports the agent currently holding the conversation and
// the state of every main agent.
type AgentReporter interface {
	CurrentAgent() domain.AgentIdentity
	Agents() []domain.AgentStatus
}

// Options configures the gateway.
type Options struct {
	Addr           string
	Source         string // inbox source for submitted turns
	AllowedOrigins []string
	RequestTimeout time.Duration
	RateLimit      middleware.RateLimitConfig // zero RequestsPerSecond disables
	ChartDir       string                     // served under /charts/ when set
}

// Deps are the collaborators the gateway talks to.
type Deps struct {
	Turns  TurnSubmitter
	Logs   LogReader
	Agent  AgentReporter // optional
	Bus    domain.EventBus
	Logger *slog.Logger
}

type clientConn struct {
	ws        *websocket.Conn
	sendCh    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func (c *clientConn) close() { c.closeOnce.Do(func() { close(c.done) }) }

// Server is the HTTP and WebSocket front door.
type Server struct {
	opts    Options
	deps    Deps
	logger  *slog.Logger
	metrics *Metrics
	started time.Time

	clients sync.Map // uint64 -> *clientConn
	nextID  atomic.Uint64

	mu        sync.Mutex
	httpSrv   *http.Server
	boundAddr string
	unsubs    []func()
}

// NewServer creates a gateway. Call Start to listen, or Handler to mount it.
func NewServer(opts Options, deps Deps) *Server {
	if opts.Source == "" {
		opts.Source = "http"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 3 * time.Minute
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		opts:    opts,
		deps:    deps,
		logger:  deps.Logger,
		metrics: &Metrics{},
		started: time.Now(),
	}
	if deps.Bus != nil {
		s.unsubs = append(s.unsubs,
			deps.Bus.SubscribeAll(s.broadcast),
			s.metrics.subscribe(deps.Bus),
		)
	}
	return s
}

// Handler returns the routed handler with middleware applied. ctx bounds
// the rate limiter's cleanup goroutine.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	var processText http.Handler = http.HandlerFunc(s.handleProcessText)
	if s.opts.RateLimit.RequestsPerSecond > 0 {
		processText = middleware.RateLimit(ctx, s.opts.RateLimit)(processText)
	}
	mux.Handle("POST /process-text", processText)
	mux.HandleFunc("GET /read_notification_logs", s.handleLogs(s.deps.Logs.Notifications))
	mux.HandleFunc("GET /read_calender_logs", s.handleLogs(s.deps.Logs.CalendarEntries))
	mux.HandleFunc("GET /read_calendar_logs", s.handleLogs(s.deps.Logs.CalendarEntries))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /ws", s.handleUpgrade)
	if s.opts.ChartDir != "" {
		mux.Handle("GET /charts/", http.StripPrefix("/charts/", pngOnly(http.FileServer(http.Dir(s.opts.ChartDir)))))
	}

	return middleware.Chain(mux,
		middleware.Logging(s.logger),
		middleware.SecurityHeaders,
		middleware.CORS(s.opts.AllowedOrigins),
	)
}

// Start listens on Options.Addr and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info("gateway started", "addr", s.BoundAddr())

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop closes websocket clients and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	srv := s.httpSrv
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.close()
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	if srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// BoundAddr returns the address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// broadcast forwards bus events to every websocket client. Slow clients
// lose frames rather than stall the bus.
func (s *Server) broadcast(_ context.Context, event domain.Event) {
	frame := Frame{Type: FrameTypeEvent, Event: string(event.Type), Payload: event.Payload}
	if event.Type == domain.EventTurnCompleted {
		frame = Frame{Type: FrameTypeTurn, Payload: event.Payload}
	}
	s.clients.Range(func(_, value any) bool {
		cc := value.(*clientConn)
		select {
		case cc.sendCh <- frame:
		default:
			s.logger.Warn("gateway: dropped frame for slow client", "event", string(event.Type))
		}
		return true
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{ws: ws, sendCh: make(chan Frame, 32), done: make(chan struct{})}
	s.clients.Store(connID, cc)
	s.logger.Info("gateway client connected", "conn_id", connID)

	go s.writeLoop(cc)
	s.readLoop(r.Context(), cc)

	cc.close()
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

// acceptOptions turns allowed origins (full URLs) into host patterns.
func (s *Server) acceptOptions() *websocket.AcceptOptions {
	if slices.Contains(s.opts.AllowedOrigins, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := []string{"localhost:*", "127.0.0.1:*"}
	for _, o := range s.opts.AllowedOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		// Turns are serialised by the inbox, so one goroutine per request
		// only waits.
		go s.answer(ctx, cc, frame)
	}
}

func (s *Server) answer(ctx context.Context, cc *clientConn, req Frame) {
	resp := Frame{Type: FrameTypeResponse, ID: req.ID}

	var tr TurnRequest
	if err := json.Unmarshal(req.Payload, &tr); err != nil || tr.Text == "" {
		resp.Error = "payload must be {\"text\": \"...\"}"
	} else {
		res, err := s.submit(ctx, tr)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Payload, _ = json.Marshal(res)
		}
	}

	select {
	case cc.sendCh <- resp:
	case <-cc.done:
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				cc.close()
				return
			}
		}
	}
}

func (s *Server) submit(ctx context.Context, tr TurnRequest) (domain.TurnResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	var format domain.ResponseFormat
	if tr.Format != "" {
		format = domain.ParseResponseFormat(tr.Format)
	}
	return s.deps.Turns.Submit(ctx, s.opts.Source, tr.Text, format)
}
