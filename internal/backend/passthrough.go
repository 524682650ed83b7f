package backend

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// Passthrough relays out-of-scope requests to their original destination
// without retry or header rewriting.
type Passthrough struct {
	url   *url.URL
	proxy *httputil.ReverseProxy
}

// NewPassthrough creates a Passthrough to the given origin.
func NewPassthrough(u *url.URL, logger *slog.Logger) *Passthrough {
	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("Passthrough failed",
			slog.String("target", u.String()),
			slog.String("path", r.URL.Path),
			slog.Any("err", err))
		w.WriteHeader(http.StatusBadGateway)
	}

	return &Passthrough{
		url:   u,
		proxy: proxy,
	}
}

// URL returns the pass-through origin.
func (p *Passthrough) URL() *url.URL {
	return p.url
}

func (p *Passthrough) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}
