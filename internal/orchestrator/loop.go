// Package orchestrator runs the multi-turn tool-calling loop for one query.
//
// A [Loop] seeds a [conversation.State] with the user's query and alternates
// between two phases until the model answers without requesting tools:
//
//  1. AWAITING_MODEL: the whole conversation plus the tool declarations go to
//     the model. Its reply is appended as an assistant turn.
//  2. EXECUTING_TOOLS: each tool request of that turn is dispatched in order
//     and exactly one result turn is appended per request, success or not.
//
// Tool failures never abort a query; they are reported to the model as tool
// content. A failed model round-trip abandons the query with [ErrModel], and
// a configurable round cap ends runaway loops with [ErrRoundLimit].
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/mcpchat/internal/conversation"
	"github.com/MrWong99/mcpchat/internal/observe"
	"github.com/MrWong99/mcpchat/internal/tools"
	"github.com/MrWong99/mcpchat/pkg/provider/llm"
	"github.com/MrWong99/mcpchat/pkg/types"
)

// DefaultMaxRounds is the default cap on model calls per query.
const DefaultMaxRounds = 20

var (
	// ErrModel wraps any failure of a model round-trip. The query is
	// abandoned; the session may continue with the next one.
	ErrModel = errors.New("orchestrator: model call failed")

	// ErrRoundLimit is returned when the model keeps requesting tools after
	// the configured number of model calls.
	ErrRoundLimit = errors.New("orchestrator: round limit reached")

	// ErrToolsUnsupported is returned by [Loop.Validate] when tools would be
	// offered to a model that cannot call them.
	ErrToolsUnsupported = errors.New("orchestrator: model does not support tool calling")
)

// Phase is the loop's position in its state machine.
type Phase int

const (
	PhaseAwaitingModel Phase = iota
	PhaseExecutingTools
	PhaseComplete
)

// String returns the upper-case phase name used in logs.
func (p Phase) String() string {
	switch p {
	case PhaseAwaitingModel:
		return "AWAITING_MODEL"
	case PhaseExecutingTools:
		return "EXECUTING_TOOLS"
	case PhaseComplete:
		return "COMPLETE"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Answer is the outcome of a completed query.
type Answer struct {
	// Text is the model's final reply.
	Text string

	// Empty is set when the model finished without text and without tool
	// requests. It is a reportable outcome, not an error.
	Empty bool

	// Truncated is set when the backend stopped the final reply at its token
	// limit.
	Truncated bool

	// Rounds is the number of model calls the query needed.
	Rounds int

	// ToolCalls is the number of tool requests dispatched.
	ToolCalls int
}

// ToolObserver is notified of every tool request just before it is
// dispatched. args is the raw JSON argument string from the model.
type ToolObserver func(name, args string)

// Loop answers queries with a model and a tool dispatcher. A Loop holds no
// per-query state and may be reused for any number of sequential queries.
type Loop struct {
	model      llm.Provider
	dispatcher *tools.Dispatcher
	decls      []types.ToolDefinition
	caps       types.ModelCapabilities

	providerName string
	maxRounds    int
	maxTokens    int
	temperature  float64
	systemPrompt string

	observer ToolObserver
	metrics  *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Loop)

// WithMaxRounds caps the number of model calls per query. Zero disables the
// cap. Negative values are ignored. Default is [DefaultMaxRounds].
func WithMaxRounds(n int) Option {
	return func(l *Loop) {
		if n >= 0 {
			l.maxRounds = n
		}
	}
}

// WithMaxTokens sets the completion token cap sent on every model call. It
// is lowered to the model's output limit when it exceeds it.
func WithMaxTokens(n int) Option {
	return func(l *Loop) { l.maxTokens = n }
}

// WithTemperature sets the sampling temperature sent on every model call.
func WithTemperature(t float64) Option {
	return func(l *Loop) { l.temperature = t }
}

// WithSystemPrompt sets an instruction sent ahead of the conversation.
func WithSystemPrompt(s string) Option {
	return func(l *Loop) { l.systemPrompt = s }
}

// WithToolObserver registers fn to be told about each tool request.
func WithToolObserver(fn ToolObserver) Option {
	return func(l *Loop) { l.observer = fn }
}

// WithProviderName sets the provider label used on metrics.
func WithProviderName(name string) Option {
	return func(l *Loop) { l.providerName = name }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// New creates a Loop that offers the dispatcher's tool snapshot to model.
func New(model llm.Provider, d *tools.Dispatcher, opts ...Option) *Loop {
	l := &Loop{
		model:        model,
		dispatcher:   d,
		decls:        tools.ToModelDeclarations(d.Snapshot().Declarations()),
		caps:         model.Capabilities(),
		providerName: "llm",
		maxRounds:    DefaultMaxRounds,
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	if limit := l.caps.MaxOutputTokens; limit > 0 && l.maxTokens > limit {
		slog.Warn("max_tokens exceeds the model's output limit, lowering it",
			slog.Int("max_tokens", l.maxTokens),
			slog.Int("limit", limit),
		)
		l.maxTokens = limit
	}
	return l
}

// MaxTokens returns the completion token cap sent to the model.
func (l *Loop) MaxTokens() int { return l.maxTokens }

// Validate reports whether the model can work with the offered tools. It
// fails with [ErrToolsUnsupported] when the snapshot is non-empty and the
// model has no native tool calling.
func (l *Loop) Validate() error {
	if len(l.decls) > 0 && !l.caps.SupportsToolCalling {
		return fmt.Errorf("%w: %d tools offered", ErrToolsUnsupported, len(l.decls))
	}
	return nil
}

// Tools returns the declarations offered to the model.
func (l *Loop) Tools() []types.ToolDefinition {
	out := make([]types.ToolDefinition, len(l.decls))
	copy(out, l.decls)
	return out
}

// Run answers query. It returns an [Answer] once the model replies without
// tool requests. Errors wrap [ErrModel], [ErrRoundLimit], or the context's
// error when ctx is cancelled between steps.
func (l *Loop) Run(ctx context.Context, query string) (Answer, error) {
	ctx, span := observe.StartSpan(ctx, "orchestrator.query")
	defer span.End()

	start := time.Now()
	l.metrics.ActiveQueries.Add(ctx, 1)
	defer l.metrics.ActiveQueries.Add(ctx, -1)

	ans, err := l.run(ctx, query)

	l.metrics.QueryDuration.Record(ctx, time.Since(start).Seconds())
	l.metrics.RecordQuery(ctx, outcome(ans, err), ans.Rounds)
	span.SetAttributes(
		attribute.Int("query.rounds", ans.Rounds),
		attribute.Int("query.tool_calls", ans.ToolCalls),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return ans, err
}

func (l *Loop) run(ctx context.Context, query string) (Answer, error) {
	log := observe.Logger(ctx)
	state := conversation.New(query)
	phase := PhaseAwaitingModel
	var ans Answer

	for phase != PhaseComplete {
		if err := ctx.Err(); err != nil {
			return ans, fmt.Errorf("orchestrator: %w", err)
		}

		switch phase {
		case PhaseAwaitingModel:
			resp, err := l.complete(ctx, state)
			ans.Rounds++
			if err != nil {
				return ans, err
			}

			turn := conversation.AssistantFromCalls(resp.Content, resp.ToolCalls)
			if err := state.AppendAssistant(turn); err != nil {
				return ans, fmt.Errorf("orchestrator: %w", err)
			}

			if !turn.HasRequests() {
				ans.Text = resp.Content
				ans.Empty = resp.Content == ""
				ans.Truncated = resp.FinishReason == llm.FinishLength
				phase = PhaseComplete
				continue
			}

			if l.maxRounds > 0 && ans.Rounds >= l.maxRounds {
				log.Warn("round limit reached with tool requests outstanding",
					slog.Int("rounds", ans.Rounds),
					slog.Int("requests", len(turn.ToolRequests)),
				)
				return ans, fmt.Errorf("%w: %d model calls", ErrRoundLimit, ans.Rounds)
			}
			phase = PhaseExecutingTools

		case PhaseExecutingTools:
			for _, req := range state.Pending() {
				if err := ctx.Err(); err != nil {
					return ans, fmt.Errorf("orchestrator: %w", err)
				}
				if l.observer != nil {
					l.observer(req.Name, req.Arguments)
				}

				res := l.dispatcher.InvokeRaw(ctx, req.Name, req.Arguments)
				ans.ToolCalls++

				if err := state.AppendToolResult(conversation.ToolResultTurn{
					RequestID: req.ID,
					Content:   res.Text(),
					IsError:   !res.Ok(),
				}); err != nil {
					return ans, fmt.Errorf("orchestrator: %w", err)
				}
			}
			log.Debug("tool round finished", slog.Int("round", ans.Rounds), slog.Int("turns", state.Len()))
			phase = PhaseAwaitingModel
		}
	}
	return ans, nil
}

// complete performs one model round-trip with the current conversation.
func (l *Loop) complete(ctx context.Context, state *conversation.State) (*llm.CompletionResponse, error) {
	msgs, err := state.Messages()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	ctx, span := observe.StartSpan(ctx, "llm.complete",
		trace.WithAttributes(
			attribute.String("llm.provider", l.providerName),
			attribute.Int("llm.messages", len(msgs)),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := l.model.Complete(ctx, llm.CompletionRequest{
		Messages:     msgs,
		Tools:        l.decls,
		Temperature:  l.temperature,
		MaxTokens:    l.maxTokens,
		SystemPrompt: l.systemPrompt,
	})
	l.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())

	if err == nil && resp == nil {
		err = errors.New("provider returned no response")
	}
	if err != nil {
		l.metrics.RecordProviderRequest(ctx, l.providerName, "completion", "error")
		l.metrics.RecordProviderError(ctx, l.providerName, "completion")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}

	l.metrics.RecordProviderRequest(ctx, l.providerName, "completion", "ok")
	span.SetAttributes(
		attribute.String("llm.finish_reason", resp.FinishReason),
		attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
		attribute.Int("llm.usage.total_tokens", resp.Usage.TotalTokens),
	)
	return resp, nil
}

// outcome maps a finished query to its metric label.
func outcome(ans Answer, err error) string {
	switch {
	case err == nil && ans.Empty:
		return observe.OutcomeEmpty
	case err == nil:
		return observe.OutcomeAnswer
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return observe.OutcomeCancelled
	case errors.Is(err, ErrRoundLimit):
		return observe.OutcomeRoundLimit
	default:
		return observe.OutcomeModelError
	}
}
