package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/mcpchat/internal/observe"
)

// Result is the outcome of one tool invocation. Exactly one of Content or Err
// is meaningful: a nil Err means the tool succeeded.
type Result struct {
	// Content is the tool's flattened output on success.
	Content string

	// Err describes the failure: [ErrUnknownTool], [ErrMalformedArguments],
	// a [*ToolError], or a provider transport error.
	Err error

	// Duration is the wall-clock time of the provider round-trip. Zero when
	// no round-trip happened.
	Duration time.Duration
}

// Ok reports whether the invocation succeeded.
func (r Result) Ok() bool { return r.Err == nil }

// Text renders the result as the content of a tool message. Failures are
// serialized as "Error: <message>" so the model can see and react to them.
func (r Result) Text() string {
	if r.Err != nil {
		return "Error: " + r.Err.Error()
	}
	return r.Content
}

// Dispatcher executes tool requests against a provider, restricted to the
// tools in a snapshot.
//
// A Dispatcher performs no retries and keeps no cache: every accepted call is
// exactly one provider round-trip.
type Dispatcher struct {
	provider Provider
	snapshot *Snapshot
	metrics  *observe.Metrics
}

// Option is a functional option for [NewDispatcher].
type Option func(*Dispatcher)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a Dispatcher that routes calls to p for the tools in
// snap.
func NewDispatcher(p Provider, snap *Snapshot, opts ...Option) *Dispatcher {
	d := &Dispatcher{provider: p, snapshot: snap}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Snapshot returns the snapshot the dispatcher is bound to.
func (d *Dispatcher) Snapshot() *Snapshot { return d.snapshot }

// Invoke executes the named tool with decoded arguments.
//
// Names not present in the snapshot fail with [ErrUnknownTool] without
// contacting the provider. Otherwise exactly one provider call is made and
// its outcome, success or failure, is returned as a [Result]. Invoke never
// panics on provider failures and never returns them out of band.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) Result {
	ctx, span := observe.StartSpan(ctx, "tools.invoke",
		trace.WithAttributes(attribute.String("tool.name", name)),
	)
	defer span.End()

	log := observe.Logger(ctx).With(slog.String("tool", name))

	if _, ok := d.snapshot.Lookup(name); !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownTool, name)
		if hint, ok := d.snapshot.Suggest(name); ok {
			err = fmt.Errorf("%w: %q (did you mean %q?)", ErrUnknownTool, name, hint)
		}
		span.SetStatus(codes.Error, err.Error())
		d.metrics.RecordToolCall(ctx, name, "unknown")
		log.Warn("model requested unknown tool")
		return Result{Err: err}
	}

	start := time.Now()
	res, err := d.provider.CallTool(ctx, name, args)
	elapsed := time.Since(start)

	d.metrics.ToolExecutionDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("tool", name)),
	)

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.RecordToolCall(ctx, name, "error")
		d.metrics.RecordProviderError(ctx, "mcp", "tool")
		log.Warn("tool call failed", slog.Any("err", err), slog.Duration("duration", elapsed))
		return Result{Err: err, Duration: elapsed}

	case res == nil:
		err := fmt.Errorf("tools: provider returned no result for %q", name)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.RecordToolCall(ctx, name, "error")
		return Result{Err: err, Duration: elapsed}

	case res.IsError:
		terr := &ToolError{Tool: name, Message: res.Content}
		span.SetStatus(codes.Error, terr.Error())
		d.metrics.RecordToolCall(ctx, name, "tool_error")
		log.Info("tool reported an error", slog.String("message", res.Content), slog.Duration("duration", elapsed))
		return Result{Err: terr, Duration: elapsed}
	}

	d.metrics.RecordToolCall(ctx, name, "ok")
	log.Debug("tool call succeeded", slog.Duration("duration", elapsed), slog.Int("bytes", len(res.Content)))
	return Result{Content: res.Content, Duration: elapsed}
}

// InvokeRaw parses rawArgs with [ParseArguments] and invokes the tool. A
// malformed payload yields an [ErrMalformedArguments] result without a
// provider round-trip.
func (d *Dispatcher) InvokeRaw(ctx context.Context, name, rawArgs string) Result {
	if _, ok := d.snapshot.Lookup(name); !ok {
		return d.Invoke(ctx, name, nil)
	}
	args, err := ParseArguments(rawArgs)
	if err != nil {
		d.metrics.RecordToolCall(ctx, name, "malformed")
		observe.Logger(ctx).Warn("malformed tool arguments",
			slog.String("tool", name), slog.Any("err", err))
		return Result{Err: err}
	}
	return d.Invoke(ctx, name, args)
}
