package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"anonmsg/internal/util"
	"anonmsg/pkg/domain"
	"anonmsg/services/api/internal/app"
)

const (
	serviceName  = "api"
	maxBodyBytes = 1 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	AllowedOrigins []string
	TrustedProxies *util.TrustedProxies
}

// Server exposes the HTTP API.
type Server struct {
	app     *app.App
	router  chi.Router
	handler http.Handler
}

// New constructs the server with routes and middleware configured.
func New(cfg Config) *Server {
	s := &Server{
		app:    cfg.App,
		router: chi.NewRouter(),
	}
	s.routes()
	s.handler = util.WithRequestID(
		util.WithRequestLog(serviceName, cfg.TrustedProxies,
			util.WithSecurityHeaders(
				util.WithCORS(cfg.AllowedOrigins)(s.router))))
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.handler
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.authenticated(s.handleLogout))
		r.Get("/auth/me", s.authenticated(s.handleMe))
		r.Patch("/auth/me", s.authenticated(s.handleUpdateMe))

		r.Get("/users/{username}", s.handleProfile)

		r.Post("/messages", s.handleSendMessage)
		r.Get("/messages", s.authenticated(s.handleInbox))

		r.Get("/conversations", s.authenticated(s.handleConversations))
		r.Get("/conversations/{key}", s.authenticated(s.handleConversation))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.UserFromToken(r.Context(), token)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		next(w, r, user)
	}
}

// auth handlers
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.app.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{Message: "User created!", User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, user, err := s.app.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ domain.User) {
	token, _ := bearerToken(r)
	if err := s.app.Logout(token); err != nil {
		util.LoggerFromContext(r.Context()).Error("logout failed", "err", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.app.UpdateProfile(r.Context(), user, domain.ProfileUpdate{
		RequestTitle:   req.RequestTitle,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// profile handlers
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.app.Profile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

// message handlers
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// A missing or bad token sends anonymously.
	token, _ := bearerToken(r)
	msg, err := s.app.SendMessage(r.Context(), app.SendInput{
		RecipientUsername: req.RecipientUsername,
		Text:              req.Text,
		Link:              req.Link,
		Image:             req.Image,
		Token:             token,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, msg)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request, user domain.User) {
	msgs, err := s.app.Inbox(r.Context(), user.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, msgs)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request, user domain.User) {
	summaries, err := s.app.Conversations(r.Context(), user.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, summaries)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request, user domain.User) {
	thread, err := s.app.Conversation(r.Context(), user.ID, chi.URLParam(r, "key"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, threadResponse{
		Counterparty: thread.Counterparty,
		Messages:     thread.Messages,
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	Message string      `json:"message"`
	User    domain.User `json:"user"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type updateProfileRequest struct {
	RequestTitle   *string `json:"requestTitle"`
	ProfilePicture *string `json:"profilePicture"`
}

type sendMessageRequest struct {
	RecipientUsername string `json:"recipientUsername"`
	Text              string `json:"text"`
	Link              string `json:"link"`
	Image             string `json:"image"`
}

type threadResponse struct {
	Counterparty domain.Counterparty `json:"counterparty"`
	Messages     []domain.Message    `json:"messages"`
}

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidJSON, "invalid JSON body")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataResponse{Success: true, Data: data})
}
