// Package session implements the interactive chat session: a console prompt
// loop that hands each query to the orchestration loop and prints the result.
//
// The [Shell] owns the tool provider connection for its lifetime and releases
// it on every exit path, including quit, end of input and cancellation.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/MrWong99/mcpchat/internal/orchestrator"
)

// Runner answers a single query.
type Runner interface {
	Run(ctx context.Context, query string) (orchestrator.Answer, error)
}

// Shell drives the read-query / answer cycle.
type Shell struct {
	console *Console
	runner  Runner
	conn    io.Closer
	tools   []string
}

// NewShell creates a Shell. conn is the provider connection closed when
// [Shell.Run] returns; it may be nil. tools are the names listed in the
// startup banner.
func NewShell(console *Console, runner Runner, conn io.Closer, tools []string) *Shell {
	return &Shell{
		console: console,
		runner:  runner,
		conn:    conn,
		tools:   append([]string(nil), tools...),
	}
}

// Run loops until the user quits, input ends, or ctx is cancelled. Query
// failures and oversized input lines are printed and the loop continues. The returned error is nil for
// every normal way of ending the session.
func (s *Shell) Run(ctx context.Context) error {
	defer s.console.Close()
	if s.conn != nil {
		defer func() {
			if cerr := s.conn.Close(); cerr != nil {
				slog.Warn("session: failed to close tool provider connection", "err", cerr)
			}
		}()
	}

	s.console.ShowBanner(s.tools)

	for {
		query, err := s.console.ReadQuery(ctx)
		switch {
		case errors.Is(err, ErrQuit), ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrLineTooLong):
			slog.Warn("query discarded", "err", err)
			s.console.ShowError(err.Error())
			continue
		case err != nil:
			return err
		}

		ans, err := s.runner.Run(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("query failed", "err", err)
			s.console.ShowError(err.Error())
			continue
		}

		switch {
		case ans.Empty:
			s.console.ShowEmpty()
		default:
			s.console.ShowAnswer(ans.Text)
			if ans.Truncated {
				s.console.ShowNotice("(answer truncated at the token limit)")
			}
		}
		slog.Debug("query answered", "rounds", ans.Rounds, "tool_calls", ans.ToolCalls)
	}
}
