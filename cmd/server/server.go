package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"example.com/tweetgraph/internal/logger"
	"example.com/tweetgraph/internal/metrics"
	"example.com/tweetgraph/internal/middleware"
	"example.com/tweetgraph/internal/social"
	"github.com/gorilla/mux"
)

type Server struct {
	svc       *social.Service
	jwtSecret []byte
	tokenTTL  time.Duration
}

// Options configures the HTTP listener and token issuing.
type Options struct {
	Addr        string
	TLSCertFile string
	TLSKeyFile  string
	JWTSecret   []byte
	TokenTTL    time.Duration
}

var logg = logger.New()

func NewServer(svc *social.Service, jwtSecret []byte, tokenTTL time.Duration) *Server {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Server{svc: svc, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

// routes builds the router. Mutations are bound to POST and DELETE only.
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler)

	// Public endpoints
	r.HandleFunc("/signup", s.signupHandler).Methods(http.MethodPost)
	r.HandleFunc("/login", s.loginHandler).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Protected endpoints with JWT authentication middleware
	api := r.NewRoute().Subrouter()
	api.Use(middleware.JWTAuth(s.jwtSecret))

	api.HandleFunc("/feed", s.feedHandler).Methods(http.MethodGet)

	api.HandleFunc("/tweets", s.createTweetHandler).Methods(http.MethodPost)
	api.HandleFunc("/tweets/{id}", s.getTweetHandler).Methods(http.MethodGet)
	api.HandleFunc("/tweets/{id}", s.deleteTweetHandler).Methods(http.MethodDelete)
	api.HandleFunc("/tweets/{id}/like", s.likeHandler).Methods(http.MethodPost)
	api.HandleFunc("/tweets/{id}/unlike", s.unlikeHandler).Methods(http.MethodPost)

	api.HandleFunc("/users/{username}", s.profileHandler).Methods(http.MethodGet)
	api.HandleFunc("/users/{username}/follow", s.followHandler).Methods(http.MethodPost)
	api.HandleFunc("/users/{username}/unfollow", s.unfollowHandler).Methods(http.MethodPost)
	api.HandleFunc("/users/{username}/following", s.followingHandler).Methods(http.MethodGet)
	api.HandleFunc("/users/{username}/followers", s.followersHandler).Methods(http.MethodGet)

	return logger.HTTPMiddleware(r)
}

// Run serves HTTP (or HTTPS when a certificate is configured) until ctx is
// done, then shuts down gracefully.
func Run(ctx context.Context, svc *social.Service, opts Options) error {
	s := NewServer(svc, opts.JWTSecret, opts.TokenTTL)

	srv := &http.Server{
		Addr:         opts.Addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	// --- Start server in a goroutine ---
	go func() {
		var err error
		if opts.TLSCertFile != "" && opts.TLSKeyFile != "" {
			logg.Info("server", "Starting HTTPS server on "+opts.Addr)
			err = srv.ListenAndServeTLS(opts.TLSCertFile, opts.TLSKeyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+opts.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("server", "Server stopped unexpectedly", err)
			errCh <- err
		}
		close(errCh)
	}()

	// --- Graceful shutdown ---
	select {
	case <-ctx.Done():
		logg.Info("server", "Shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
		return err
	}
	logg.Info("server", "Server stopped gracefully")
	return nil
}
