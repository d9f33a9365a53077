package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"yinsen/internal/domain"
)

// EmailMessage is an outgoing email.
type EmailMessage struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailSendResult is the result of sending an email.
type EmailSendResult struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// EmailBackend delivers email.
type EmailBackend interface {
	Send(ctx context.Context, msg EmailMessage) (*EmailSendResult, error)
}

// OutboxBackend appends every message to a JSON-lines file instead of
// delivering it. It is the default backend for local use.
type OutboxBackend struct {
	mu   sync.Mutex
	path string
}

// NewOutboxBackend creates an outbox writing to path.
func NewOutboxBackend(path string) *OutboxBackend { return &OutboxBackend{path: path} }

type outboxRecord struct {
	ID     string       `json:"id"`
	SentAt time.Time    `json:"sent_at"`
	Email  EmailMessage `json:"email"`
}

func (o *OutboxBackend) Send(_ context.Context, msg EmailMessage) (*EmailSendResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec := outboxRecord{ID: ulid.Make().String(), SentAt: time.Now().UTC(), Email: msg}
	line, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode outbox record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(o.path), 0o755); err != nil {
		return nil, fmt.Errorf("create outbox dir: %w", err)
	}
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("write outbox: %w", err)
	}
	return &EmailSendResult{MessageID: rec.ID, Status: "queued"}, nil
}

// EmailOptions configures the email tool.
type EmailOptions struct {
	DefaultFrom     string
	MaxSendsPerHour int // 0 disables the limit
	AllowedDomains  []string
}

// EmailTool sends email on behalf of the user.
type EmailTool struct {
	backend        EmailBackend
	logs           *LogBook
	limiter        *rate.Limiter
	defaultFrom    string
	allowedDomains []string
	logger         *slog.Logger
}

// NewEmailTool creates an email tool.
func NewEmailTool(backend EmailBackend, logs *LogBook, opts EmailOptions, logger *slog.Logger) *EmailTool {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.MaxSendsPerHour > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(opts.MaxSendsPerHour)), opts.MaxSendsPerHour)
	}
	return &EmailTool{
		backend:        backend,
		logs:           logs,
		limiter:        limiter,
		defaultFrom:    opts.DefaultFrom,
		allowedDomains: opts.AllowedDomains,
		logger:         logger,
	}
}

func (t *EmailTool) Name() string { return "email" }

func (t *EmailTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["send"]},
			"to": {"type": "string"},
			"from": {"type": "string"},
			"subject": {"type": "string"},
			"content": {"type": "string"}
		},
		"required": ["action"]
	}`)
}

type sendEmailParams struct {
	To      string `json:"to" validate:"required,email"`
	From    string `json:"from" validate:"omitempty,email"`
	Subject string `json:"subject"`
	Content string `json:"content" validate:"required"`
}

func (t *EmailTool) Execute(ctx context.Context, instr domain.ToolInstructions) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.email", t.logger, instr,
		Dispatch(actionOf, ActionMap[domain.ToolInstructions]{
			"send": t.send,
		}),
	)
}

func (t *EmailTool) send(ctx context.Context, instr domain.ToolInstructions) (*domain.ToolResult, error) {
	p, err := DecodeInstructions[sendEmailParams](instr)
	if err != nil {
		return Failure(fmt.Sprintf("invalid instructions: %v", err)), nil
	}
	if msg := checkParams(p); msg != "" {
		return Failure(msg), nil
	}
	if err := t.checkDomain(p.To); err != nil {
		return Failure(err.Error()), nil
	}
	if !t.limiter.Allow() {
		return &domain.ToolResult{
			Status:  domain.ToolStatusError,
			Error:   string(domain.CodeRateLimit),
			Message: "send rate limit exceeded (max sends per hour reached)",
		}, nil
	}

	from := p.From
	if from == "" {
		from = t.defaultFrom
	}
	t.logger.Info("sending email", "to", p.To, "subject", p.Subject)
	res, err := t.backend.Send(ctx, EmailMessage{To: p.To, From: from, Subject: p.Subject, Body: p.Content})
	if err != nil {
		return nil, fmt.Errorf("send email: %w", err)
	}

	result := &domain.ToolResult{
		Status:  domain.ToolStatusSuccess,
		Message: "Email sent successfully",
		Data:    res,
	}
	if t.logs != nil {
		if err := t.logs.Notify(NoticeEmailSent); err != nil {
			t.logger.Warn("notification log not updated", "error", err)
		} else {
			result.LogsUpdated = true
		}
	}
	return result, nil
}

func (t *EmailTool) checkDomain(email string) error {
	if len(t.allowedDomains) == 0 {
		return nil
	}
	_, host, ok := strings.Cut(email, "@")
	if !ok {
		return fmt.Errorf("invalid email address %q", email)
	}
	host = strings.ToLower(host)
	for _, d := range t.allowedDomains {
		if strings.ToLower(d) == host {
			return nil
		}
	}
	return fmt.Errorf("domain %q is not in the allowed list", host)
}
