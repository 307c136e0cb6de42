package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// errPathEscape marks a request that resolved outside the web root. It is a
// security rejection (400), deliberately distinct from a missing file (404):
// a traversal attempt must never learn whether its target exists.
var errPathEscape = errors.New("requested path escapes web root")

// staticContentTypes is the fixed extension map for served assets. Anything
// not listed is application/octet-stream; the server never sniffs content.
var staticContentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".json":  "application/json",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".ico":   "image/x-icon",
	".webp":  "image/webp",
	".woff2": "font/woff2",
	".txt":   "text/plain; charset=utf-8",
}

// resolveWebPath maps a requested URL path onto a filesystem path under root.
// Pure function, no filesystem access.
//
// The requested path is forced relative (leading slashes stripped, joined as
// "./<path>") and canonicalized by filepath.Join, which collapses "..", "."
// and duplicate separators. The result is accepted only if it equals root or
// starts with root plus a separator; the separator matters, otherwise a root
// of /app/www would admit /app/wwwX. Anything else is errPathEscape.
func resolveWebPath(root, requested string) (string, error) {
	root = filepath.Clean(root)
	if requested == "" || requested == "/" {
		return filepath.Join(root, "index.html"), nil
	}

	rel := strings.TrimLeft(requested, "/")
	resolved := filepath.Join(root, "./"+rel)

	if resolved != root && !strings.HasPrefix(resolved, root+string(os.PathSeparator)) {
		return "", errPathEscape
	}
	return resolved, nil
}

// staticHandler serves UI assets from the web root through resolveWebPath.
// Registered last in the chain: everything that is not an API route or
// another registered path lands here.
func (s *Server) staticHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolved, err := resolveWebPath(s.webRoot, r.URL.Path)
		if err != nil {
			s.logger.Warn("Rejected static path", "path", r.URL.Path, "ip", getClientIP(r))
			WriteError(w, http.StatusBadRequest, "invalid path")
			return
		}

		info, err := os.Stat(resolved)
		if err == nil && info.IsDir() {
			resolved = filepath.Join(resolved, "index.html")
			info, err = os.Stat(resolved)
		}
		if err != nil || !info.Mode().IsRegular() {
			WriteError(w, http.StatusNotFound, "not found")
			return
		}

		contentType, ok := staticContentTypes[strings.ToLower(filepath.Ext(resolved))]
		if !ok {
			contentType = "application/octet-stream"
		}

		data, err := os.ReadFile(resolved)
		if err != nil {
			s.logger.Error("Failed to read static file", "path", resolved, "error", err)
			WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	})
}
