package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

type spaFileServer struct {
	fileServer http.Handler
	fileSystem fs.FS
}

func newSPAFileServer(fsys fs.FS) *spaFileServer {
	return &spaFileServer{
		fileServer: http.FileServer(http.FS(fsys)),
		fileSystem: fsys,
	}
}

// ServeHTTP serves embedded assets and answers any other page path with
// index.html. Missing files that look like assets stay 404s.
func (s *spaFileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" {
		name = "index.html"
	}

	if _, err := fs.Stat(s.fileSystem, name); err != nil {
		if path.Ext(name) != "" {
			http.NotFound(w, r)
			return
		}
		r.URL.Path = "/"
	}

	if r.URL.Path == "/" || strings.HasSuffix(name, ".html") {
		w.Header().Set("Cache-Control", "no-cache")
	}
	s.fileServer.ServeHTTP(w, r)
}
