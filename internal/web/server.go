package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/wardrobe/internal/metrics"
	"github.com/hpungsan/wardrobe/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewServer creates the HTTP server for the panel UI, JSON API, event stream
// and metrics. The hub should also be set as deps.Notifier so operations
// reach websocket clients.
func NewServer(deps *ops.Deps, hub *Hub, version, bind string, port int) (*http.Server, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	h := &Handlers{
		deps:     deps,
		renderer: NewRenderer(templateSub, version, deps.Logger),
		session:  &activeSession{},
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           securityHeaders(routes(h, hub, staticSub)),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func routes(h *Handlers, hub *Hub, static fs.FS) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/panels", http.StatusFound)
	})
	mux.HandleFunc("GET /panels", h.HandlePanels)

	mux.HandleFunc("GET /api/session", h.HandleGetSession)
	mux.HandleFunc("PUT /api/session", h.HandlePutSession)
	mux.HandleFunc("POST /api/chat", h.HandleChat)

	mux.HandleFunc("GET /api/owners/{owner}", h.HandleOwner)
	mux.HandleFunc("GET /api/owners/{owner}/prompt", h.HandlePrompt)
	mux.HandleFunc("POST /api/owners/{owner}/extract", h.HandleExtract)
	mux.HandleFunc("POST /api/owners/{owner}/apply", h.HandleApply)
	mux.HandleFunc("POST /api/characters/{id}/reset", h.HandleResetCharacter)

	mux.HandleFunc("GET /api/settings", h.HandleGetSettings)
	mux.HandleFunc("PUT /api/settings", h.HandleUpdateSettings)
	mux.HandleFunc("POST /api/settings", h.HandleUpdateSettings)
	mux.HandleFunc("DELETE /api/settings", h.HandleResetSettings)
	mux.HandleFunc("POST /api/settings/fields", h.HandleAddField)
	mux.HandleFunc("DELETE /api/settings/fields/{name}", h.HandleRemoveField)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.ServeWS)
	}
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	return mux
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; connect-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and shuts it down gracefully on SIGINT/SIGTERM
// or when ctx is done.
func Run(ctx context.Context, srv *http.Server, hub *Hub, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("wardrobe UI running", zap.String("url", "http://"+srv.Addr))
	if strings.HasPrefix(srv.Addr, "0.0.0.0") || strings.HasPrefix(srv.Addr, "[::]") || strings.HasPrefix(srv.Addr, ":") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		if hub != nil {
			hub.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
