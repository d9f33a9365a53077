package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"yinsen/internal/domain"
)

const maxRequestBody = 64 * 1024

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleProcessText answers POST /process-text with {"output": TurnResult}.
func (s *Server) handleProcessText(w http.ResponseWriter, r *http.Request) {
	var tr TurnRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(&tr); err != nil {
		writeError(w, http.StatusBadRequest, "body must be JSON: {\"text\": \"...\"}")
		return
	}
	if strings.TrimSpace(tr.Text) == "" {
		writeError(w, http.StatusBadRequest, "'text' is required")
		return
	}

	res, err := s.submit(r.Context(), tr)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]domain.TurnResult{"output": res})
	case errors.Is(err, domain.ErrInboxClosed):
		writeError(w, http.StatusServiceUnavailable, "assistant is shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "turn timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing to write to.
	default:
		s.logger.Error("process-text failed", "error", err)
		writeError(w, http.StatusInternalServerError, "turn failed")
	}
}

// handleLogs serves a log as {"logs": [...]}. Read failures degrade to an
// empty list, the same as a missing file.
func (s *Server) handleLogs(read func() ([]string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		logs, err := read()
		if err != nil {
			s.logger.Warn("read log failed", "error", err)
		}
		if logs == nil {
			logs = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"logs": logs})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	UptimeSeconds int64  `json:"uptime_seconds"`
	CurrentAgent  string `json:"current_agent,omitempty"`
	AgentType     string `json:"agent_type,omitempty"`
	Clients       int    `json:"ws_clients"`
	Turns         int64  `json:"turns_total"`
	AgentSwitches int64  `json:"agent_switches_total"`
	ToolCalls     int64  `json:"tool_calls_total"`
	ToolErrors    int64  `json:"tool_errors_total"`

	Agents []domain.AgentStatus `json:"agents,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Clients:       s.clientCount(),
		Turns:         s.metrics.Turns.Load(),
		AgentSwitches: s.metrics.Switches.Load(),
		ToolCalls:     s.metrics.ToolCalls.Load(),
		ToolErrors:    s.metrics.ToolErrors.Load(),
	}
	if s.deps.Agent != nil {
		id := s.deps.Agent.CurrentAgent()
		resp.CurrentAgent, resp.AgentType = id.Name, string(id.Type)
		resp.Agents = s.deps.Agent.Agents()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	gauge := func(name, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %v\n", name, help, name, name, v)
	}
	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
	}

	counter("yinsen_turns_total", "Completed turns.", s.metrics.Turns.Load())
	counter("yinsen_agent_switches_total", "Agent hand-offs.", s.metrics.Switches.Load())
	counter("yinsen_tool_calls_total", "Tool dispatches.", s.metrics.ToolCalls.Load())
	counter("yinsen_tool_errors_total", "Tool dispatches that failed.", s.metrics.ToolErrors.Load())
	gauge("yinsen_ws_clients", "Connected websocket clients.", s.clientCount())
	gauge("yinsen_uptime_seconds", "Seconds since start.", int64(time.Since(s.started).Seconds()))
	gauge("go_goroutines", "Number of goroutines.", runtime.NumGoroutine())
}

func (s *Server) clientCount() int {
	n := 0
	s.clients.Range(func(_, _ any) bool { n++; return true })
	return n
}

// pngOnly restricts the chart file server to PNG files.
func pngOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(path.Ext(r.URL.Path), ".png") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Metrics counts turn activity seen on the event bus.
type Metrics struct {
	Turns      atomic.Int64
	Switches   atomic.Int64
	ToolCalls  atomic.Int64
	ToolErrors atomic.Int64
}

func (m *Metrics) subscribe(bus domain.EventBus) func() {
	unsubs := []func(){
		bus.Subscribe(domain.EventTurnCompleted, func(context.Context, domain.Event) { m.Turns.Add(1) }),
		bus.Subscribe(domain.EventAgentSwitched, func(context.Context, domain.Event) { m.Switches.Add(1) }),
		bus.Subscribe(domain.EventToolExecuted, func(_ context.Context, e domain.Event) {
			m.ToolCalls.Add(1)
			var p domain.ToolExecutedPayload
			if json.Unmarshal(e.Payload, &p) == nil && p.IsError {
				m.ToolErrors.Add(1)
			}
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
