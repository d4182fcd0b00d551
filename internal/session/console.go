package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	// DefaultQuitWord ends the session when typed as a query.
	DefaultQuitWord = "quit"

	// DefaultMaxLineBytes is the longest query line accepted.
	DefaultMaxLineBytes = 1 << 20
)

var (
	// ErrQuit is returned by [Console.ReadQuery] when the user typed the quit
	// word or the input reached end of file.
	ErrQuit = errors.New("session: quit")

	// ErrLineTooLong is returned by [Console.ReadQuery] for a line over the
	// size limit. The line is discarded and reading may continue.
	ErrLineTooLong = errors.New("session: input line too long")
)

// Console is the line-oriented terminal boundary: one prompt per query,
// human-readable answers, tool announcements and errors.
//
// Console is used by a single goroutine. Only the background line reader runs
// concurrently with it.
type Console struct {
	in       io.Reader
	out      io.Writer
	quitWord string
	maxLine  int
	markdown *glamour.TermRenderer

	prompt lipgloss.Style
	tool   lipgloss.Style
	errs   lipgloss.Style
	notice lipgloss.Style

	startOnce sync.Once
	stopOnce  sync.Once
	lines     chan inputLine
	done      chan struct{}
	readErr   error // set before lines is closed
}

type inputLine struct {
	text    string
	tooLong bool
}

// ConsoleOption is a functional option for [NewConsole].
type ConsoleOption func(*Console) error

// WithQuitWord overrides [DefaultQuitWord]. Matching ignores case and
// surrounding whitespace.
func WithQuitWord(word string) ConsoleOption {
	return func(c *Console) error {
		word = strings.TrimSpace(word)
		if word == "" {
			return errors.New("session: quit word must not be empty")
		}
		c.quitWord = word
		return nil
	}
}

// WithMaxLineBytes overrides [DefaultMaxLineBytes].
func WithMaxLineBytes(n int) ConsoleOption {
	return func(c *Console) error {
		if n <= 0 {
			return fmt.Errorf("session: max line bytes must be positive, got %d", n)
		}
		c.maxLine = n
		return nil
	}
}

// WithMarkdown renders answers as terminal markdown wrapped at width columns.
// style is a glamour standard style name ("dark", "light", "notty", ...) or
// empty to detect it from the terminal.
func WithMarkdown(style string, width int) ConsoleOption {
	return func(c *Console) error {
		opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
		if style == "" {
			opts = append(opts, glamour.WithAutoStyle())
		} else {
			opts = append(opts, glamour.WithStandardStyle(style))
		}
		r, err := glamour.NewTermRenderer(opts...)
		if err != nil {
			return fmt.Errorf("session: markdown renderer: %w", err)
		}
		c.markdown = r
		return nil
	}
}

// NewConsole creates a Console reading queries from in and writing output to
// out. Styling adapts to out: writers that are not a colour terminal receive
// plain text.
func NewConsole(in io.Reader, out io.Writer, opts ...ConsoleOption) (*Console, error) {
	r := lipgloss.NewRenderer(out)
	c := &Console{
		in:       in,
		out:      out,
		quitWord: DefaultQuitWord,
		maxLine:  DefaultMaxLineBytes,
		prompt:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		tool:     r.NewStyle().Foreground(lipgloss.Color("241")),
		errs:     r.NewStyle().Foreground(lipgloss.Color("9")),
		notice:   r.NewStyle().Faint(true),
		lines:    make(chan inputLine),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ShowBanner prints the greeting and the tools the server offers.
func (c *Console) ShowBanner(tools []string) {
	fmt.Fprintf(c.out, "\nConnected to server with tools: [%s]\n", strings.Join(tools, ", "))
	fmt.Fprintln(c.out, c.prompt.Render("MCP Chatbot Started!"))
	fmt.Fprintf(c.out, "Type your queries or '%s' to exit.\n", c.quitWord)
}

// ReadQuery prompts for and returns the next non-empty input line, trimmed.
// It returns [ErrQuit] on the quit word or end of input, [ErrLineTooLong] for
// an oversized line, and ctx's error when ctx is cancelled while waiting.
func (c *Console) ReadQuery(ctx context.Context) (string, error) {
	c.startOnce.Do(func() { go c.readLines() })

	for {
		fmt.Fprint(c.out, "\n"+c.prompt.Render("Query:")+" ")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case in, ok := <-c.lines:
			if !ok {
				if c.readErr != nil {
					return "", fmt.Errorf("session: read input: %w", c.readErr)
				}
				return "", ErrQuit
			}
			if in.tooLong {
				return "", fmt.Errorf("%w: limit is %d bytes", ErrLineTooLong, c.maxLine)
			}
			line := strings.TrimSpace(in.text)
			if line == "" {
				continue
			}
			if strings.EqualFold(line, c.quitWord) {
				return "", ErrQuit
			}
			return line, nil
		}
	}
}

// readLines forwards input lines until EOF or a read error.
func (c *Console) readLines() {
	defer close(c.lines)
	r := bufio.NewReaderSize(c.in, 64*1024)
	for {
		text, tooLong, err := readLine(r, c.maxLine)
		if err == nil || text != "" || tooLong {
			select {
			case c.lines <- inputLine{text: text, tooLong: tooLong}:
			case <-c.done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.readErr = err
			}
			return
		}
	}
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed to its end and reported as tooLong with no text.
func readLine(r *bufio.Reader, limit int) (text string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if !tooLong {
			if len(buf)+len(chunk) > limit {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err != nil || !isPrefix {
			return string(buf), tooLong, err
		}
	}
}

// Close stops forwarding input. A read already blocked on the underlying
// reader finishes in the background.
func (c *Console) Close() {
	c.stopOnce.Do(func() { close(c.done) })
}

// ShowAnswer prints the model's final answer, rendered as markdown when
// enabled. Rendering failures fall back to the raw text.
func (c *Console) ShowAnswer(text string) {
	if c.markdown != nil {
		if rendered, err := c.markdown.Render(text); err == nil {
			fmt.Fprint(c.out, rendered)
			return
		}
	}
	fmt.Fprintf(c.out, "\n%s\n", text)
}

// ShowEmpty reports that the model finished without any content.
func (c *Console) ShowEmpty() {
	fmt.Fprintln(c.out, c.notice.Render("No content received from the model."))
}

// ShowNotice prints a dimmed informational line.
func (c *Console) ShowNotice(msg string) {
	fmt.Fprintln(c.out, c.notice.Render(msg))
}

// ShowError prints a query failure. The session continues afterwards.
func (c *Console) ShowError(msg string) {
	fmt.Fprintf(c.out, "\n%s\n", c.errs.Render("Error: "+msg))
}

// ShowToolCall announces a tool invocation before it runs.
func (c *Console) ShowToolCall(name, args string) {
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	fmt.Fprintln(c.out, c.tool.Render(fmt.Sprintf("Calling tool %s with args %s...", name, args)))
}
