package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyclopcam/framesearch/server/blobstore"
	"github.com/cyclopcam/framesearch/server/search"
	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
)

// Server is the frame search service: a thin HTTP surface over the search
// engine, which in turn scans the blob store.
type Server struct {
	Log   logs.Log
	Store *blobstore.BlobStore

	engine     *search.Engine
	wwwRoot    string
	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
}

func NewServer(configFile string) (*Server, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	logger, err := logs.NewLog()
	if err != nil {
		return nil, err
	}
	store, err := cfg.OpenBlobStore(logger)
	if err != nil {
		return nil, err
	}
	s := &Server{
		Log:     logger,
		Store:   store,
		engine:  search.NewEngine(logger, store),
		wwwRoot: cfg.WWW,
	}
	if err := s.setupHttpRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v', shutting down", sig.String())
			s.Shutdown()
		}
	}()
}

func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown")
	signal.Stop(s.signalIn)
	close(s.signalIn)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	s.Log.Close()
}
