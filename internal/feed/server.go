package feed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxterview/voxterview/internal/health"
	"github.com/voxterview/voxterview/internal/observe"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 5 * time.Second

// Server hosts the feed WebSocket, health endpoints, and the Prometheus
// scrape endpoint on a single listener.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer builds the feed server. checkers feed the /readyz probe; metrics
// backs the request-duration middleware.
func NewServer(addr string, hub *Hub, metrics *observe.Metrics, checkers ...health.Checker) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.ServeWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           observe.Middleware(metrics)(mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then drains gracefully. A nil error
// means a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("feed server listening", "addr", s.addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return s.srv.Close()
		}
		return nil
	}
}
