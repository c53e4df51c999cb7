// Package bridge connects the embedded web page to the native shell over a
// websocket. The page calls a narrow set of methods; the shell loads URLs and
// evaluates scripts in the page.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Server serves the bridge endpoint and implements the page side used by
// the shell.
type Server struct {
	addr     string
	hub      *Hub
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu         sync.RWMutex
	handler    Handler
	currentURL string

	httpServer *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewServer creates a bridge server listening on addr. Upgrades are only
// accepted from allowedOrigins; an empty list accepts any origin.
func NewServer(addr string, allowedOrigins []string, logger zerolog.Logger) *Server {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	s := &Server{
		addr:   addr,
		hub:    NewHub(logger),
		logger: logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		},
	}
	return s
}

// SetHandler binds the native side that serves page calls.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Router returns the HTTP routes of the bridge.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)
	r.HandleFunc("/bridge", s.serveWS).Methods(http.MethodGet)
	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	if s.httpServer != nil {
		return errors.New("bridge server is already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.hub.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Bridge server stopped unexpectedly")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Bridge server started")
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down and disconnects all pages.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return errors.New("bridge server is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)

	s.cancel()
	s.wg.Wait()
	s.httpServer = nil
	s.listener = nil

	s.logger.Info().Msg("Bridge server stopped")
	return err
}

// Load navigates connected pages to url. Pages connecting later are sent
// the same URL.
func (s *Server) Load(url string) error {
	s.mu.Lock()
	s.currentURL = url
	s.mu.Unlock()
	return s.push(outbound{Type: TypeLoad, URL: url})
}

// EvaluateScript runs script in every connected page.
func (s *Server) EvaluateScript(script string) error {
	return s.push(outbound{Type: TypeEvaluate, Script: script})
}

func (s *Server) push(msg outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if !s.hub.Broadcast(data) {
		return errors.New("bridge server is not running")
	}
	return nil
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Bridge upgrade failed")
		return
	}

	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, 32), remote: r.RemoteAddr}
	if !s.hub.join(client) {
		conn.Close()
		return
	}

	s.mu.RLock()
	current := s.currentURL
	s.mu.RUnlock()
	if current != "" {
		client.reply(outbound{Type: TypeLoad, URL: current})
	}

	go client.writePump()
	go client.readPump(s.dispatch)
}

func (s *Server) dispatch(c *Client, msg inbound) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h == nil {
		s.logger.Warn().Str("method", msg.Method).Msg("Bridge call without a handler")
		return
	}

	switch msg.Method {
	case MethodShowMessage, MethodShowToast:
		h.ShowMessage(msg.Text)
	case MethodRequestSignIn, MethodRequestLogin:
		h.RequestSignIn()
	case MethodNavigate:
		decision := "intercept"
		if h.HandleNavigation(msg.URL) {
			decision = "delegate"
		}
		c.reply(outbound{Type: TypeNavigation, ID: msg.ID, URL: msg.URL, Decision: decision})
	default:
		s.logger.Warn().Str("method", msg.Method).Msg("Unknown bridge method")
	}
}
