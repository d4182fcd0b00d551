package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/mcpchat/internal/observe"
)

// shutdownTimeout bounds graceful shutdown of the diagnostics server.
const shutdownTimeout = 5 * time.Second

// NewMux returns the diagnostics routes wrapped in the observability
// middleware. metrics may be nil to omit /metrics.
func NewMux(h *Handler, m *observe.Metrics, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	h.Register(mux, metrics)
	return observe.Middleware(m)(mux)
}

// Serve listens on addr and serves handler until ctx is cancelled, then
// shuts down gracefully. It returns nil after a clean shutdown.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("health: listen %q: %w", addr, err)
	}
	return serve(ctx, ln, handler)
}

func serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("diagnostics server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("health: shutdown: %w", err)
	}
	return nil
}
