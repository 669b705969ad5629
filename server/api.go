package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/framesearch/server/staticfiles"
	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupHttpRoutes() error {
	router := httprouter.New()

	get := func(route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, "GET", route, handle)
	}

	// The search and stats endpoints walk the store, so they get a per-IP
	// rate limit. Everything else is a point lookup.
	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	get("/api/ping", s.httpPing)
	ratelimited("POST", "/api/search", s.httpSearch, 30, time.Minute)
	ratelimited("GET", "/api/stats", s.httpStats, 30, time.Minute)
	get("/api/suggestions", s.httpSuggestions)
	get("/api/frame/:video/:frame", s.httpFrameDetails)
	get("/api/frame/:video/:frame/image", s.httpFrameImage)
	get("/api/batches", s.httpBatches)

	if s.wwwRoot != "" {
		fileServer, err := staticfiles.NewFileServer(s.Log, s.wwwRoot, []string{"/api"})
		if err != nil {
			return err
		}
		router.NotFound = fileServer
	}

	s.httpRouter = router
	return nil
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	ping := &pingJSON{
		Time: time.Now().Unix(),
	}
	www.SendJSON(w, ping)
}
