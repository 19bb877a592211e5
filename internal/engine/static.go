package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// staticAssetExts are hashed-filename assets safe to cache forever.
var staticAssetExts = map[string]bool{
	".js": true, ".css": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".svg": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".ico": true, ".webp": true, ".avif": true,
	".mp4": true, ".webm": true,
}

// StaticHandler serves a built frontend from root with single-page-app
// fallback: unknown paths get index.html so client-side routing works.
type StaticHandler struct {
	root string
}

// NewStaticHandler serves files from root.
func NewStaticHandler(root string) *StaticHandler {
	return &StaticHandler{root: root}
}

func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqPath := filepath.Clean("/" + r.URL.Path)
	full := filepath.Join(h.root, reqPath)

	info, err := os.Stat(full)
	switch {
	case err == nil && info.IsDir():
		full = filepath.Join(full, "index.html")
		if _, err := os.Stat(full); err != nil {
			h.serveIndex(w, r)
			return
		}
	case err != nil:
		h.serveIndex(w, r)
		return
	}

	if staticAssetExts[strings.ToLower(filepath.Ext(full))] {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	http.ServeFile(w, r, full)
}

func (h *StaticHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(h.root, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, index)
}

// staticRegistry runs one HTTP file server per deployed static project,
// keyed by port.
type staticRegistry struct {
	mu      sync.Mutex
	servers map[int]*http.Server
	logger  *slog.Logger
}

func newStaticRegistry(logger *slog.Logger) *staticRegistry {
	return &staticRegistry{servers: make(map[int]*http.Server), logger: logger}
}

// Serve starts (or replaces) the static server on port, rooted at dir.
func (r *staticRegistry) Serve(port int, dir string) error {
	r.Stop(port)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewStaticHandler(dir),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	r.mu.Lock()
	r.servers[port] = srv
	r.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			r.logger.Error("static server stopped", "port", port, "error", err)
		}
	}()

	// Give the listener a beat to surface bind errors.
	select {
	case err := <-errCh:
		r.Stop(port)
		return fmt.Errorf("starting static server on port %d: %w", port, err)
	case <-time.After(200 * time.Millisecond):
		return nil
	}
}

// Stop shuts down the static server on port, if one is running.
func (r *staticRegistry) Stop(port int) {
	r.mu.Lock()
	srv, ok := r.servers[port]
	if ok {
		delete(r.servers, port)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
