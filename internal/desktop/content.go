// Package desktop provides the rendering surfaces the window host drives:
// a wails webview window and a headless stand-in.
package desktop

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"path/filepath"
	"sync/atomic"

	"github.com/tridentframe/launcher/internal/domain"
)

const loadingPage = `<!doctype html><html><head><meta charset="utf-8"><title>Loading</title>
<style>html,body{margin:0;height:100%;background:#1e1e1e;color:#888;font:14px sans-serif;display:flex;align-items:center;justify-content:center}</style>
</head><body>Loading&hellip;</body></html>`

// ContentHandler serves whatever content source is current. Until a source
// is set it serves a blank dark loading page.
type ContentHandler struct {
	current atomic.Pointer[http.Handler]
	source  atomic.Pointer[domain.ContentSource]
}

// NewContentHandler returns a handler serving the loading page.
func NewContentHandler() *ContentHandler {
	return &ContentHandler{}
}

// Set switches to src. URLs are reverse-proxied with the Host rewritten to
// the target; files are served from their directory with the file as the
// index.
func (c *ContentHandler) Set(src domain.ContentSource) error {
	var h http.Handler
	switch src.Kind {
	case domain.ContentURL:
		target, err := url.Parse(src.Location)
		if err != nil {
			return err
		}
		h = &httputil.ReverseProxy{
			Rewrite: func(r *httputil.ProxyRequest) {
				r.SetURL(target)
				r.SetXForwarded()
			},
		}
	default:
		h = fileHandler(src.Location)
	}
	c.current.Store(&h)
	c.source.Store(&src)
	return nil
}

// Source returns the current content source, if any.
func (c *ContentHandler) Source() (domain.ContentSource, bool) {
	src := c.source.Load()
	if src == nil {
		return domain.ContentSource{}, false
	}
	return *src, true
}

func (c *ContentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h := c.current.Load(); h != nil {
		(*h).ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(loadingPage))
}

// fileHandler serves the directory holding index and maps "/" to it.
func fileHandler(index string) http.Handler {
	dir := filepath.Dir(index)
	name := filepath.Base(index)
	files := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" || r.URL.Path == "" {
			http.ServeFile(w, r, filepath.Join(dir, name))
			return
		}
		files.ServeHTTP(w, r)
	})
}
