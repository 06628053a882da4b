// Package server provides the thin HTTP transport around the reactor
// pipeline, grounded in the original router.go's httprouter + rs/cors
// wiring.
package server

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// NoCache wraps a handler so every response carries headers forbidding
// intermediary caching of an auction result.
type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

// SupportCORS wraps handler to allow cross-origin SelectAd calls, which
// browsers issue from the publisher page's origin rather than the
// seller's.
func SupportCORS(handler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept", "X-Ad-Client-Type"},
	})
	return c.Handler(handler)
}

// New builds the router exposing the SelectAd endpoint.
func New(h *SelectAdHandler) *httprouter.Router {
	r := httprouter.New()
	r.POST("/v1/selectAd", h.ServeSelectAd)
	r.GET("/healthz", serveHealthz)
	return r
}

func serveHealthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
