// Package server composes the asset service process: registry, blob store,
// codec, notifier, and HTTP transport.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/bridgeassets/internal/platform/timeouts"
	httpapi "github.com/louisbranch/bridgeassets/internal/services/assets/api/http"
	"github.com/louisbranch/bridgeassets/internal/services/assets/blobstore"
	"github.com/louisbranch/bridgeassets/internal/services/assets/codec"
	"github.com/louisbranch/bridgeassets/internal/services/assets/domain"
	"github.com/louisbranch/bridgeassets/internal/services/assets/notify"
	"github.com/louisbranch/bridgeassets/internal/services/assets/storage/sqlite"
)

// Config defines the inputs for the asset service process.
type Config struct {
	HTTPAddr          string
	DBPath            string
	BlobDir           string
	AuthSecret        string
	AuthIssuer        string
	CodecWorkers      int
	MaxUploadBytes    int64
	NotifyTimeout     time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the asset HTTP process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           *sqlite.Store
	notifier        *notify.Notifier
}

// NewServer opens storage and builds the HTTP server for config.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	auth, err := httpapi.NewJWTAuthenticator(config.AuthSecret, config.AuthIssuer)
	if err != nil {
		return nil, fmt.Errorf("init authenticator: %w", err)
	}
	blobs, err := blobstore.OpenDir(config.BlobDir)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	store, err := sqlite.Open(config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open asset registry: %w", err)
	}

	notifier := notify.New(config.NotifyTimeout,
		notify.NewOutboxPublisher(store),
		notify.NewLogPublisher(nil),
	)
	service := domain.NewService(store, blobs, codec.New(config.CodecWorkers), notifier)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           httpapi.NewHandler(service, auth, httpapi.Options{MaxUploadBytes: config.MaxUploadBytes}),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		store:           store,
		notifier:        notifier,
	}, nil
}

// Handler returns the HTTP handler served by s.
func (s *Server) Handler() http.Handler {
	if s == nil || s.httpServer == nil {
		return nil
	}
	return s.httpServer.Handler
}

// Run creates and serves an asset server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init assets server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve assets: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("assets server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	listener, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpAddr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until the context ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	serveErr := make(chan error, 1)
	log.Printf("assets server listening on %s", listener.Addr())
	go func() {
		serveErr <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close waits for in-flight notifications and releases storage.
func (s *Server) Close() {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.notifier.Wait(ctx); err != nil {
		log.Printf("assets: pending notifications dropped: %v", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close asset registry: %v", err)
		}
	}
}
