// Package web ships the hub dashboard inside the server binary.
package web

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// dist is replaced by the frontend build; the checked-in copy is a stub page.
//
//go:embed all:dist
var distFS embed.FS

const indexFile = "index.html"

type spa struct {
	root  fs.FS
	files http.Handler
}

// SPAHandler serves the embedded dashboard. Requests for files that exist are
// served as-is; any other path gets index.html so the client router can
// resolve it.
func SPAHandler() http.Handler {
	root, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: dist missing from embed: " + err.Error())
	}
	return &spa{root: root, files: http.FileServerFS(root)}
}

func (s *spa) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = indexFile
	}

	info, err := fs.Stat(s.root, name)
	if err == nil && !info.IsDir() {
		s.files.ServeHTTP(w, r)
		return
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "failed to read dashboard", http.StatusInternalServerError)
		return
	}

	// Client-side route: always revalidate so a new build is picked up.
	w.Header().Set("Cache-Control", "no-cache")
	index := r.Clone(r.Context())
	index.URL.Path = "/"
	http.ServeFileFS(w, index, s.root, indexFile)
}
