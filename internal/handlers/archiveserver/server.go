// Package archiveserver serves the snapshot archive, the latest-image API and a viewer page.
package archiveserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"himawari-desktop/internal/metrics"
	"himawari-desktop/internal/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jellydator/ttlcache/v3"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const latestKey = "latest"

// ArchiveStats reports archive size for /api/status
type ArchiveStats interface {
	Stats() (days, snapshots int, sizeBytes int64)
}

// Options configures a Server
type Options struct {
	ArchiveRoot        string
	BaseURL            string // prefix of latest_url, e.g. https://earth.example.com/
	AllowedOrigins     []string
	RateLimitPerMinute int
	LatestTTL          time.Duration // how long a latest lookup is reused

	Stats      ArchiveStats       // optional
	RateLimits *ratelimit.Handler // optional
	Metrics    *metrics.Recorder  // optional
	Clock      func() time.Time
}

// Server manages the archive HTTP server
type Server struct {
	opts   Options
	latest *ttlcache.Cache[string, Latest]
	log    zerolog.Logger
}

// NewServer creates a new archive server instance. Call Close to release it.
func NewServer(opts Options, log zerolog.Logger) *Server {
	if opts.LatestTTL <= 0 {
		opts.LatestTTL = 30 * time.Second
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 120
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.BaseURL != "" && !strings.HasSuffix(opts.BaseURL, "/") {
		opts.BaseURL += "/"
	}

	latest := ttlcache.New[string, Latest](
		ttlcache.WithTTL[string, Latest](opts.LatestTTL),
		ttlcache.WithDisableTouchOnHit[string, Latest](),
	)
	go latest.Start()

	return &Server{opts: opts, latest: latest, log: log}
}

// Close stops background cache maintenance
func (s *Server) Close() {
	s.latest.Stop()
}

// Router builds the HTTP router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	allowed := s.opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))
	r.Use(httprate.LimitByIP(s.opts.RateLimitPerMinute, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method("GET", "/metrics", s.opts.Metrics.Handler())

	r.Get("/himawari/{day}/{file}", s.handleArchiveFile)

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })
		r.Get("/", s.handleViewer)
		r.Get("/api/latest", s.handleLatest)
		r.Get("/api/status", s.handleStatus)
	})

	return otelhttp.NewHandler(r, "archiveserver")
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start archive server: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve is ListenAndServe on an existing listener
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	s.log.Info().Str("addr", listener.Addr().String()).Msg("archive server started")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down archive server: %w", err)
	}
	s.log.Info().Msg("archive server stopped")
	return nil
}
