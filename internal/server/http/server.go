package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"golang.org/x/sync/semaphore"

	"github.com/ekisa-team/rfworker/internal/job"
)

// Server exposes the job handler over HTTP.
type Server struct {
	mux      *http.ServeMux
	api      huma.API
	handler  atomic.Pointer[job.Handler]
	slots    *semaphore.Weighted
	inFlight atomic.Int64
}

// NewServer creates a Server running at most maxConcurrency jobs at once.
func NewServer(handler *job.Handler, maxConcurrency int) *Server {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:   mux,
		api:   humago.New(mux, huma.DefaultConfig("rfworker", "1.0.0")),
		slots: semaphore.NewWeighted(int64(maxConcurrency)),
	}
	s.handler.Store(handler)

	NewJobHandler(s.api, s)
	NewHealthHandler(s.api, s)

	return s
}

// SetHandler swaps the job handler used by subsequent requests.
func (s *Server) SetHandler(handler *job.Handler) {
	s.handler.Store(handler)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// InFlight returns the number of jobs currently running.
func (s *Server) InFlight() int64 {
	return s.inFlight.Load()
}

// run waits for a free slot and then handles j.
func (s *Server) run(ctx context.Context, j *job.Job) (*job.Response, error) {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.slots.Release(1)

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	return s.handler.Load().Handle(ctx, j), nil
}

// ListenAndServe serves on port until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		// In-flight jobs cannot be aborted, so shutdown waits for them.
		if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}
