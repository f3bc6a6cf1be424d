package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"collab/api/internal/authpw"
	"collab/api/internal/collab"

	"github.com/gorilla/websocket"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	wsOptions  collab.WSOptions
}

func NewHTTPServer(service *Service, corsOrigin string, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		logger:     logger,
		wsOptions: collab.WSOptions{
			WriteWait:       service.cfg.WSWriteTimeout,
			PongWait:        service.cfg.WSPongTimeout,
			MaxMessageBytes: service.cfg.WSMaxMessageBytes,
		},
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ready, checks := s.service.ReadyChecks(ctx)
		status, statusCode := "ready", http.StatusOK
		if !ready {
			status, statusCode = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ready,
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/register" {
		s.handleRegister(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login/oauth" {
		s.handleFormLogin(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		principal := Principal{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				principal = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), principal, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/auth/me" {
		principal, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, userView(principal.User))
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "users" {
		principal, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		s.handleUsers(w, r, principal, parts[2:])
		return
	}

	if len(parts) == 3 && parts[0] == "ws" && parts[1] == "projects" && r.Method == http.MethodGet {
		s.handleProjectSocket(w, r, parts[2])
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "projects" {
		principal, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		s.handleProjects(w, r, principal, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request, principal Principal, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			skip, limit, err := pageParams(r)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
				return
			}
			payload, err := s.service.ListProjects(r.Context(), principal, skip, limit, r.URL.Query().Get("search"))
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPost:
			var input ProjectInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			project, err := s.service.CreateProject(r.Context(), principal, input)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, project)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	projectID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			project, err := s.service.GetProject(r.Context(), principal, projectID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, project)
		case http.MethodPut:
			var input ProjectInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			project, err := s.service.UpdateProject(r.Context(), principal, projectID, input)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, project)
		case http.MethodDelete:
			if err := s.service.DeleteProject(r.Context(), principal, projectID); err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"message": "Project deleted successfully"})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "history" && r.Method == http.MethodGet {
		skip, limit, err := pageParams(r)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		payload, err := s.service.History(r.Context(), principal, projectID, HistoryQuery{
			Skip:  skip,
			Limit: limit,
			Text:  r.URL.Query().Get("q"),
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) >= 2 && parts[1] == "layers" {
		s.handleLayers(w, r, principal, projectID, parts[2:])
		return
	}

	if len(parts) == 2 && parts[1] == "users" && r.Method == http.MethodGet {
		payload, err := s.service.ActiveUsers(r.Context(), principal, projectID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleLayers(w http.ResponseWriter, r *http.Request, principal Principal, projectID string, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListLayers(r.Context(), principal, projectID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPost:
			var input LayerInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			layer, err := s.service.CreateLayer(r.Context(), principal, projectID, input)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, layer)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	layerID := parts[0]
	switch r.Method {
	case http.MethodPut:
		var input LayerInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		layer, err := s.service.UpdateLayer(r.Context(), principal, projectID, layerID, input)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, layer)
	case http.MethodDelete:
		if err := s.service.DeleteLayer(r.Context(), principal, projectID, layerID); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Layer deleted successfully"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, principal Principal, parts []string) {
	if len(parts) == 0 && r.Method == http.MethodGet {
		skip, limit, err := pageParams(r)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		users, err := s.service.ListUsers(r.Context(), principal, skip, limit)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
		return
	}

	if len(parts) == 1 && parts[0] == "me" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, userView(principal.User))
		case http.MethodPut:
			var body struct {
				Email    *string `json:"email"`
				Username *string `json:"username"`
				FullName *string `json:"full_name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			user, err := s.service.UpdateProfile(r.Context(), principal, authpw.ProfileUpdate{
				Email:    body.Email,
				Username: body.Username,
				FullName: body.FullName,
			})
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, user)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 1 {
		userID := parts[0]
		switch r.Method {
		case http.MethodGet:
			user, err := s.service.GetUser(r.Context(), principal, userID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, user)
		case http.MethodPut:
			var body struct {
				Email    *string `json:"email"`
				Username *string `json:"username"`
				FullName *string `json:"full_name"`
				IsActive *bool   `json:"is_active"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			user, err := s.service.UpdateUser(r.Context(), principal, userID, authpw.ProfileUpdate{
				Email:    body.Email,
				Username: body.Username,
				FullName: body.FullName,
				IsActive: body.IsActive,
			})
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, user)
		case http.MethodDelete:
			if err := s.service.DeactivateUser(r.Context(), principal, userID); err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"message": "User deleted successfully"})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleProjectSocket upgrades first so that admission failures reach the
// client as close codes rather than HTTP statuses.
func (s *HTTPServer) handleProjectSocket(w http.ResponseWriter, r *http.Request, projectID string) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = bearerToken(r)
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "project_id", projectID, "error", err)
		return
	}
	conn := collab.NewWSConn(ws, s.wsOptions)
	s.service.ServeProjectSocket(r.Context(), conn, projectID, token)
}

func (s *HTTPServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.corsOrigin == "" || s.corsOrigin == "*" {
		return true
	}
	return strings.EqualFold(origin, s.corsOrigin)
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		FullName string `json:"full_name"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, err := s.service.Register(r.Context(), authpw.RegisterRequest{
		Email:    body.Email,
		Username: body.Username,
		FullName: body.FullName,
		Password: body.Password,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// handleLogin accepts the login as "login", "username" or "email".
func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login    string `json:"login"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	login := body.Login
	for _, candidate := range []string{body.Username, body.Email} {
		if strings.TrimSpace(login) == "" {
			login = candidate
		}
	}

	session, err := s.service.Login(r.Context(), login, body.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

// handleFormLogin is the OAuth2 password-grant form variant of login.
func (s *HTTPServer) handleFormLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid form body", nil)
		return
	}
	session, err := s.service.Login(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"access_token":  session.AccessToken,
		"refresh_token": session.RefreshToken,
		"token_type":    "bearer",
		"expires_at":    session.ExpiresAt.Unix(),
		"user":          userView(session.User),
	}
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", requestID(r.Context()), "error", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated", nil)
		return Principal{}, false
	}
	principal, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if isCredentialError(err) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Could not validate credentials", nil)
			return Principal{}, false
		}
		s.logger.Error("session lookup failed", "request_id", requestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Principal{}, false
	}
	return principal, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		s.logger.Info("http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func pageParams(r *http.Request) (skip, limit int, err error) {
	query := r.URL.Query()
	if skip, err = intParam(query.Get("skip"), "skip"); err != nil {
		return 0, 0, err
	}
	if limit, err = intParam(query.Get("limit"), "limit"); err != nil {
		return 0, 0, err
	}
	return skip, limit, nil
}

func intParam(raw, name string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return value, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
