// Package server exposes request intake, the WhatsApp webhook, the
// heartbeat trigger and alert management over HTTP.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"gorm.io/gorm"

	"github.com/efyoos/bellhop/internal/config"
	"github.com/efyoos/bellhop/internal/dispatch"
	"github.com/efyoos/bellhop/internal/notify"
	"github.com/efyoos/bellhop/internal/staffreply"
	"github.com/efyoos/bellhop/internal/store"
)

// Heartbeater runs one dispatch sweep.
type Heartbeater interface {
	Heartbeat(ctx context.Context) (*dispatch.Report, error)
}

// ReplyHandler applies a staff button press.
type ReplyHandler interface {
	Handle(ctx context.Context, r notify.Reply) (*staffreply.Outcome, error)
}

// Opts holds the dependencies of the HTTP surface.
type Opts struct {
	DB      *gorm.DB
	Store   *store.Store
	Engine  Heartbeater
	Replies ReplyHandler
	Server  config.ServerConfig
	// VerifyToken answers the WhatsApp webhook subscription challenge.
	VerifyToken string
	// MaxRetries is stamped on new tasks.
	MaxRetries int
	Logger     *slog.Logger
	Out        io.Writer
}

func (o *Opts) validate() error {
	switch {
	case o.DB == nil:
		return fmt.Errorf("server: db is required")
	case o.Store == nil:
		return fmt.Errorf("server: store is required")
	case o.Engine == nil:
		return fmt.Errorf("server: heartbeat engine is required")
	case o.Replies == nil:
		return fmt.Errorf("server: reply handler is required")
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return nil
}

// NewHandler builds the router wrapped in CORS handling.
func NewHandler(opts Opts) (http.Handler, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, &opts)

	origins := opts.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", triggerTokenHeader},
	}).Handler(router), nil
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts Opts) error {
	handler, err := NewHandler(opts)
	if err != nil {
		return err
	}
	port := opts.Server.Port
	if port <= 0 {
		port = 8080
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Bellhop listening on http://localhost:%d\n", port)
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
