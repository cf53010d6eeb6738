package server

import (
	"net/http"
	"os"
	"path/filepath"
)

// staticHandler serves the PWA files from dir: the index page, the web app
// manifest and the service worker.
//
// Only the root path and the files present in dir are served; unknown paths
// get a 404 rather than the index so API typos are not masked.
func staticHandler(dir string) http.Handler {
	fsrv := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		switch r.URL.Path {
		case "/service-worker.js":
			// Lets the worker control the whole origin.
			w.Header().Set("Service-Worker-Allowed", "/")
			w.Header().Set("Cache-Control", "no-cache")
		case "/manifest.json":
			w.Header().Set("Content-Type", "application/manifest+json")
		case "/", "/index.html":
			w.Header().Set("Cache-Control", "no-cache")
		default:
			w.Header().Set("Cache-Control", "public, max-age=3600")
		}
		if r.URL.Path != "/" {
			if fi, err := os.Stat(filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))); err != nil || fi.IsDir() {
				http.NotFound(w, r)
				return
			}
		}
		fsrv.ServeHTTP(w, r)
	})
}
