package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/room4-2/gemini-chat/chat"
	"github.com/room4-2/gemini-chat/config"
	"github.com/room4-2/gemini-chat/knowledge"
	"github.com/room4-2/gemini-chat/log"
	"github.com/room4-2/gemini-chat/session"
)

type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	upgrader   websocket.Upgrader
	sessions   *session.Manager
	chat       *chat.Service
	knowledge  *knowledge.Store
	config     *config.Config
}

func New(cfg *config.Config, sessions *session.Manager, chatService *chat.Service, kb *knowledge.Store) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		sessions:  sessions,
		chat:      chatService,
		knowledge: kb,
		config:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    64 * 1024, // 64KB for audio chunks
			WriteBufferSize:   64 * 1024,
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))
	s.routes()

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// Generation and transcription calls have no deadline of their own.
		WriteTimeout: 3 * time.Minute,
	}
	return s
}

func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ws", s.handleWebSocket)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/models", s.handleModels)
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(s.withSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/reset", s.handleReset)
			r.Get("/messages", s.handleMessages)
			r.Get("/config", s.handleGetConfig)
			r.Put("/config", s.handlePutConfig)
			r.Post("/upload", s.handleUpload)
			r.Post("/chat", s.handleChat)
			r.Post("/audio", s.handleAudio)
		})
		r.Get("/knowledge", s.handleListKnowledge)
		r.Post("/knowledge", s.handleAddKnowledge)
		r.Get("/knowledge/{name}", s.handleGetKnowledge)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins listening for connections
func (s *Server) Start() error {
	log.Infof("🚀 Chat server starting on port %d", s.config.Port)
	log.Infof("📡 WebSocket endpoint: ws://localhost:%d/ws", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("🛑 Shutting down server...")
	err := s.httpServer.Shutdown(ctx)
	s.sessions.Shutdown()
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.GetActiveSessionCount(),
	})
}
