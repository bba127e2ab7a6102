// Package server provides the HTTP server exposing the code-generation API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/morphlabs/morphd/internal/repo"
	"github.com/morphlabs/morphd/internal/server/dto"
	"github.com/morphlabs/morphd/internal/task"
)

// serviceName appears in the health payload.
const serviceName = "morphd"

// Processor runs one code-generation request end to end. *task.Pipeline is
// the production implementation; tests substitute a stub.
type Processor interface {
	Process(ctx context.Context, req *task.Request) (*task.Result, error)
}

// Server is the HTTP server for the morphd API.
type Server struct {
	pipeline  Processor
	jwtSecret string
}

// New creates a Server around the given processor. secret is the HS256 JWT
// secret for /process; empty disables authentication.
func New(pipeline Processor, secret string) *Server {
	return &Server{pipeline: pipeline, jwtSecret: secret}
}

// Handler builds the full request handling chain: logging, CORS, request
// decompression, response compression, then the route mux. Logging wraps the
// rest so it reports compressed wire sizes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handle(s.health))
	mux.HandleFunc("POST /process", requireAuth(s.jwtSecret, handle(s.process)))

	var inner http.Handler = mux
	inner = compressMiddleware(inner)
	inner = decompressMiddleware(inner)
	inner = corsMiddleware(inner)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		inner.ServeHTTP(rw, r)
		slog.InfoContext(r.Context(), "http",
			"m", r.Method,
			"p", r.URL.Path,
			"s", rw.status,
			"d", roundDuration(time.Since(start)),
			"b", rw.size,
		)
	})
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled
// or the listener fails. Shutdown is graceful with a 5 second bound.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		// Use Background because the parent ctx is already cancelled.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx) //nolint:contextcheck // parent ctx is already cancelled at shutdown time
		shutdownCancel()
	}()
	slog.Info("listening", "addr", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-shutdownDone
		return nil
	}
	return err
}

func (s *Server) health(_ context.Context, _ *dto.EmptyReq) (*dto.HealthResp, error) {
	return &dto.HealthResp{Status: "healthy", Service: serviceName}, nil
}

// process runs the pipeline synchronously and returns the assembled result.
// Provisioning failures (unknown repository, missing branch, workspace
// allocation) are surfaced as structured 400s; agent failures come back as
// a well-formed failure result.
func (s *Server) process(ctx context.Context, req *dto.ProcessReq) (*task.Result, error) {
	result, err := s.pipeline.Process(ctx, &task.Request{
		AccessToken: req.AccessToken,
		RepoName:    req.RepoName,
		BranchName:  req.BranchName,
		Prompt:      req.Prompt,
		CallbackURL: req.CallbackURL,
		Push:        req.Push,
	})
	var pe *task.ProvisionError
	switch {
	case errors.As(err, &pe):
		if errors.Is(err, repo.ErrBranchNotFound) {
			return nil, dto.BadRequest("branch not found: " + req.BranchName)
		}
		return nil, dto.BadRequest("failed to provision workspace: " + pe.Err.Error())
	case err != nil:
		return nil, err
	}
	return result, nil
}

// corsMiddleware allows cross-origin calls from any origin and answers
// preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Content-Encoding")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code and
// response size for the request log.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter so http.NewResponseController
// can discover optional interfaces.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// roundDuration rounds d to 3 significant digits with minimum 1us precision.
func roundDuration(d time.Duration) time.Duration {
	for t := 100 * time.Second; t >= 100*time.Microsecond; t /= 10 {
		if d >= t {
			return d.Round(t / 100)
		}
	}
	return d.Round(time.Microsecond)
}
