package server

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/bobmcallan/mfdesk/internal/common"
)

//go:embed web
var embeddedWeb embed.FS

// protectedPrefixes are SPA routes that need a session.
var protectedPrefixes = []string{"/dashboard", "/clients"}

// spaHandler serves static assets and falls back to index.html so client-side
// routes load the shell.
type spaHandler struct {
	files   fs.FS
	assets  http.Handler
	index   []byte
	modTime time.Time
}

// newSPAHandler serves staticDir when set, else the embedded shell.
func newSPAHandler(staticDir string) (*spaHandler, error) {
	var files fs.FS
	if staticDir != "" {
		files = os.DirFS(staticDir)
	} else {
		sub, err := fs.Sub(embeddedWeb, "web")
		if err != nil {
			return nil, err
		}
		files = sub
	}

	index, err := fs.ReadFile(files, "index.html")
	if err != nil {
		return nil, fmt.Errorf("spa index.html not found in %q: %w", staticDir, err)
	}

	return &spaHandler{
		files:   files,
		assets:  http.FileServer(http.FS(files)),
		index:   index,
		modTime: time.Now(),
	}, nil
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name != "" && name != "index.html" {
		if info, err := fs.Stat(h.files, name); err == nil && !info.IsDir() {
			h.assets.ServeHTTP(w, r)
			return
		}
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "index.html", h.modTime, bytes.NewReader(h.index))
}

// isProtectedPath reports whether p is /dashboard, /clients or below them.
func isProtectedPath(p string) bool {
	p = path.Clean("/" + p)
	for _, prefix := range protectedPrefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// handleSPA serves the dashboard shell. Protected routes without a session
// redirect to /auth.
func (s *Server) handleSPA(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	if isProtectedPath(r.URL.Path) {
		if _, ok := common.ResolveUserID(r.Context()); !ok {
			http.Redirect(w, r, "/auth", http.StatusFound)
			return
		}
	}
	s.spa.ServeHTTP(w, r)
}
