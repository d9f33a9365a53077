// Package inbox serialises user turns from several producers onto a single
// consumer. Producers enqueue into per-source FIFO channels; Run drains at
// most one request per source per polling interval and handles turns one at
// a time, so agent state never sees concurrent turns.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"

	"yinsen/internal/domain"
)

// Well-known sources.
const (
	SourceText  = "text"
	SourceVoice = "voice"
	SourceHTTP  = "http"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultQueueSize    = 32

	shutdownReply = "Shutting down"
)

var shutdownWords = map[string]struct{}{"exit": {}, "quit": {}, "shutdown": {}}

// TurnHandler processes one turn. The orchestrator implements it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, input string, format domain.ResponseFormat) domain.TurnResult
	CurrentAgent() domain.AgentIdentity
}

// Options configures an Inbox.
type Options struct {
	PollInterval time.Duration
	QueueSize    int
	Recorder     domain.TurnRecorder // optional
	Logger       *slog.Logger
}

type request struct {
	input  string
	format domain.ResponseFormat
	reply  chan domain.TurnResult // nil for Post
}

type source struct {
	name          string
	format        domain.ResponseFormat
	allowShutdown bool
	ch            chan request
}

// Inbox owns the source queues and the consumer loop.
type Inbox struct {
	handler  TurnHandler
	interval time.Duration
	size     int
	recorder domain.TurnRecorder
	logger   *slog.Logger

	mu      sync.RWMutex
	sources []*source
	byName  map[string]*source

	done     chan struct{}
	doneOnce sync.Once
}

// New creates an inbox with the text, voice and http sources registered.
// Only the local sources, text and voice, honour shutdown words; on http
// they are ordinary input.
func New(handler TurnHandler, opts Options) *Inbox {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	in := &Inbox{
		handler:  handler,
		interval: opts.PollInterval,
		size:     opts.QueueSize,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		byName:   make(map[string]*source),
		done:     make(chan struct{}),
	}
	in.Register(SourceText, domain.FormatText, true)
	in.Register(SourceVoice, domain.FormatText, true)
	in.Register(SourceHTTP, domain.FormatHTML, false)
	return in
}

// Register adds a source, or changes the settings of an existing one.
// allowShutdown makes shutdown words on this source stop the consumer loop.
// Sources are polled in registration order.
func (in *Inbox) Register(name string, format domain.ResponseFormat, allowShutdown bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if s, ok := in.byName[name]; ok {
		s.format, s.allowShutdown = format, allowShutdown
		return
	}
	s := &source{name: name, format: format, allowShutdown: allowShutdown, ch: make(chan request, in.size)}
	in.sources = append(in.sources, s)
	in.byName[name] = s
}

// Done is closed once the consumer loop has stopped.
func (in *Inbox) Done() <-chan struct{} { return in.done }

// Submit enqueues input on the named source and waits for its result. An
// empty format uses the source default.
func (in *Inbox) Submit(ctx context.Context, sourceName, input string, format domain.ResponseFormat) (domain.TurnResult, error) {
	s, err := in.source(sourceName)
	if err != nil {
		return domain.TurnResult{}, err
	}
	req := request{input: input, format: format, reply: make(chan domain.TurnResult, 1)}

	select {
	case s.ch <- req:
	case <-ctx.Done():
		return domain.TurnResult{}, ctx.Err()
	case <-in.done:
		return domain.TurnResult{}, domain.ErrInboxClosed
	}

	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return domain.TurnResult{}, ctx.Err()
	case <-in.done:
		// The loop may have answered just before stopping.
		select {
		case res := <-req.reply:
			return res, nil
		default:
			return domain.TurnResult{}, domain.ErrInboxClosed
		}
	}
}

// Post enqueues input without waiting. It fails with ErrLimitReached when the
// source queue is full.
func (in *Inbox) Post(sourceName, input string) error {
	s, err := in.source(sourceName)
	if err != nil {
		return err
	}
	select {
	case <-in.done:
		return domain.ErrInboxClosed
	default:
	}
	select {
	case s.ch <- request{input: input}:
		return nil
	default:
		return domain.NewDomainError("Inbox.Post", domain.ErrLimitReached, "queue full: "+sourceName)
	}
}

func (in *Inbox) source(name string) (*source, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	s, ok := in.byName[name]
	if !ok {
		return nil, domain.NewDomainError("Inbox", domain.ErrNotFound, "unknown source "+name)
	}
	return s, nil
}

func (in *Inbox) snapshot() []*source {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return append([]*source(nil), in.sources...)
}

// Run is the single consumer. It returns ErrShutdownRequested after a
// shutdown keyword, or ctx.Err() when ctx is cancelled.
func (in *Inbox) Run(ctx context.Context) error {
	defer in.doneOnce.Do(func() { close(in.done) })

	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()

	in.logger.Info("inbox started", "interval", in.interval)
	for {
		for _, s := range in.snapshot() {
			select {
			case req := <-s.ch:
				if err := in.process(ctx, s, req); err != nil {
					return err
				}
			default:
			}
		}

		select {
		case <-ctx.Done():
			in.logger.Info("inbox stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (in *Inbox) process(ctx context.Context, s *source, req request) error {
	// Register may change a source's settings while Run is polling.
	in.mu.RLock()
	format, allowShutdown := s.format, s.allowShutdown
	in.mu.RUnlock()
	if req.format != "" {
		format = req.format
	}

	if allowShutdown && IsShutdown(req.input) {
		id := in.handler.CurrentAgent()
		res := domain.TurnResult{
			TurnID:              ulid.Make().String(),
			FinalResponseToUser: shutdownReply,
			SummarizedResponse:  shutdownReply,
			CurrentAgentName:    id.Name,
			CurrentAgentType:    string(id.Type),
			YoutubeURLs:         []string{},
			DisplayImages:       []string{},
		}
		in.reply(req, res)
		in.logger.Info("shutdown requested", "source", s.name)
		return domain.ErrShutdownRequested
	}

	res := in.handler.HandleTurn(ctx, req.input, format)
	in.record(ctx, s.name, req.input, res)
	in.reply(req, res)
	return nil
}

func (in *Inbox) reply(req request, res domain.TurnResult) {
	if req.reply != nil {
		req.reply <- res
	}
}

func (in *Inbox) record(ctx context.Context, sourceName, input string, res domain.TurnResult) {
	if in.recorder == nil {
		return
	}
	rec := domain.TurnRecord{
		ID:            res.TurnID,
		CreatedAt:     time.Now().UTC(),
		Source:        sourceName,
		Input:         input,
		AgentType:     res.CurrentAgentType,
		AgentName:     res.CurrentAgentName,
		Branch:        res.Branch,
		ToolError:     res.ToolError,
		FinalResponse: res.FinalResponseToUser,
		Summary:       res.SummarizedResponse,
	}
	if err := in.recorder.Record(ctx, rec); err != nil {
		in.logger.Warn("turn record failed", "turn_id", res.TurnID, "error", err)
	}
}

// IsShutdown reports whether input contains exit, quit or shutdown as a
// whole word, ignoring case.
func IsShutdown(input string) bool {
	words := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, ok := shutdownWords[w]; ok {
			return true
		}
	}
	return false
}

// String describes the inbox for logs.
func (in *Inbox) String() string {
	names := make([]string, 0, len(in.snapshot()))
	for _, s := range in.snapshot() {
		names = append(names, s.name)
	}
	return fmt.Sprintf("inbox(%s)", strings.Join(names, ","))
}
