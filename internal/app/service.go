package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"collab/api/internal/auth"
	"collab/api/internal/authpw"
	"collab/api/internal/collab"
	"collab/api/internal/config"
	"collab/api/internal/rbac"
	"collab/api/internal/search"
	"collab/api/internal/store"
	"collab/api/internal/util"
)

const maxProjectNameLen = 255

// Session is the token pair handed out by login and refresh.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         store.User
}

// Principal is the caller behind a verified access token.
type Principal struct {
	Token     string
	User      store.User
	JTI       string
	ExpiresAt time.Time
}

type UserView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	FullName    string    `json:"full_name"`
	IsActive    bool      `json:"is_active"`
	IsSuperuser bool      `json:"is_superuser"`
	IsVerified  bool      `json:"is_verified"`
	CreatedAt   time.Time `json:"created_at"`
}

type ProjectView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	OwnerID     string          `json:"owner_id"`
	IsActive    bool            `json:"is_active"`
	IsPublic    bool            `json:"is_public"`
	Metadata    json.RawMessage `json:"metadata"`
	Settings    json.RawMessage `json:"settings"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type EditView struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"project_id"`
	UserID       string          `json:"user_id"`
	Action       string          `json:"action"`
	ObjectType   string          `json:"object_type"`
	ObjectID     *string         `json:"object_id"`
	Changes      json.RawMessage `json:"changes"`
	PreviousData json.RawMessage `json:"previous_data,omitempty"`
	NewData      json.RawMessage `json:"new_data,omitempty"`
	SessionID    *string         `json:"session_id"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ProjectInput struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	IsPublic    *bool           `json:"is_public"`
	Metadata    json.RawMessage `json:"metadata"`
	Settings    json.RawMessage `json:"settings"`
}

type HistoryQuery struct {
	Skip  int
	Limit int
	Text  string
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByUsername(context.Context, string) (store.User, error)
	GetUserByLogin(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) (store.User, error)
	UpdateUser(context.Context, store.User) (store.User, error)
	ListUsers(context.Context, int, int) ([]store.User, error)
	GetProject(context.Context, string) (store.Project, error)
	ListProjects(context.Context, store.ProjectFilter) ([]store.Project, int, error)
	CreateProject(context.Context, store.Project) (store.Project, error)
	UpdateProject(context.Context, store.Project) (store.Project, error)
	DeactivateProject(context.Context, string) error
	ListLayers(context.Context, string) ([]store.Layer, error)
	GetLayer(context.Context, string, string) (store.Layer, error)
	CreateLayer(context.Context, store.Layer) (store.Layer, error)
	UpdateLayer(context.Context, store.Layer) (store.Layer, error)
	DeleteLayer(context.Context, string, string) error
	AppendEditRecord(context.Context, store.EditRecord) error
	ListEditHistory(context.Context, string, int, int) ([]store.EditRecord, error)
	GetEditRecords(context.Context, []string) ([]store.EditRecord, error)
	Ping(ctx context.Context) error
}

// SessionStore keeps refresh sessions and revoked access tokens. Both the
// Postgres store and the Redis store satisfy it.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type editSearcher interface {
	Search(q search.Query) search.Response
	IndexEdit(record store.EditRecord)
	Healthy() bool
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  SessionStore
	passwords *authpw.Service
	search    editSearcher
	gateway   *collab.Gateway
	logger    *slog.Logger
	now       func() time.Time
}

// New wires the service. sessions may be nil, in which case refresh
// sessions are kept in Postgres.
func New(cfg config.Config, dataStore *store.PostgresStore, sessions SessionStore, searchService *search.Service, logger *slog.Logger) *Service {
	var searcher editSearcher
	if searchService != nil {
		searcher = searchService
	}
	return newService(cfg, dataStore, sessions, searcher, logger)
}

func newService(cfg config.Config, ds dataStore, sessions SessionStore, searcher editSearcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sessions == nil {
		if fallback, ok := ds.(SessionStore); ok {
			sessions = fallback
		}
	}
	s := &Service{
		cfg:       cfg,
		store:     ds,
		sessions:  sessions,
		passwords: authpw.NewService(ds),
		search:    searcher,
		logger:    logger,
		now:       time.Now,
	}
	s.gateway = collab.NewGateway(collab.NewRegistry(), s, sessionPersistence{s: s}, logger.With("component", "gateway"))
	return s
}

func (s *Service) Gateway() *collab.Gateway {
	return s.gateway
}

// Shutdown closes every live websocket with going-away.
func (s *Service) Shutdown() {
	s.gateway.Registry().Close()
}

func (s *Service) Register(ctx context.Context, req authpw.RegisterRequest) (UserView, error) {
	user, err := s.passwords.Register(ctx, req)
	if err != nil {
		return UserView{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return userView(user), nil
}

func (s *Service) Login(ctx context.Context, login, password string) (Session, error) {
	user, err := s.passwords.Authenticate(ctx, login, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := auth.Verify([]byte(s.cfg.JWTSecret), refreshToken, auth.KindRefresh)
	if err != nil {
		return Session{}, err
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if userID != claims.Sub {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, authpw.ErrInactiveUser
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	secret := []byte(s.cfg.JWTSecret)

	expiresAt := now.Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken(secret, auth.Claims{
		Sub:  user.ID,
		Name: user.Username,
		Kind: auth.KindAccess,
		JTI:  util.NewID("jti"),
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refreshExpires := now.Add(s.cfg.RefreshTTL)
	refresh, err := auth.IssueToken(secret, auth.Claims{
		Sub:  user.ID,
		Name: user.Username,
		Kind: auth.KindRefresh,
		JTI:  util.NewID("rft"),
		Exp:  refreshExpires.Unix(),
	})
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		AccessToken:  token,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}

// SessionFromToken resolves an access token to its active user.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Principal, error) {
	return s.authenticate(ctx, token, auth.KindAccess)
}

func (s *Service) authenticate(ctx context.Context, token string, kind auth.Kind) (Principal, error) {
	claims, err := auth.Verify([]byte(s.cfg.JWTSecret), token, kind)
	if err != nil {
		return Principal{}, err
	}
	if kind == auth.KindAccess {
		revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
		if err != nil {
			return Principal{}, err
		}
		if revoked {
			return Principal{}, auth.ErrInvalidToken
		}
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Principal{}, auth.ErrInvalidToken
		}
		return Principal{}, err
	}
	if !user.IsActive {
		return Principal{}, authpw.ErrInactiveUser
	}
	return Principal{
		Token:     token,
		User:      user,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Verify implements collab.IdentityVerifier.
func (s *Service) Verify(ctx context.Context, credential string, kind auth.Kind) (collab.Identity, error) {
	principal, err := s.authenticate(ctx, credential, kind)
	if err != nil {
		if isCredentialError(err) {
			return collab.Identity{}, fmt.Errorf("%w: %v", collab.ErrUnauthenticated, err)
		}
		return collab.Identity{}, err
	}
	return identityOf(principal.User), nil
}

func isCredentialError(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken) ||
		errors.Is(err, auth.ErrExpiredToken) ||
		errors.Is(err, auth.ErrWrongKind) ||
		errors.Is(err, authpw.ErrInactiveUser)
}

func (s *Service) Logout(ctx context.Context, principal Principal, refreshToken string) error {
	if principal.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, principal.JTI, principal.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token failed", "error", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.Warn("revoke refresh session failed", "error", err)
		}
	}
	return nil
}

var errUserNotFound = domainError(http.StatusNotFound, "NOT_FOUND", "User not found", nil)

// ListUsers is restricted to superusers.
func (s *Service) ListUsers(ctx context.Context, principal Principal, skip, limit int) ([]UserView, error) {
	if !principal.User.IsSuperuser {
		return nil, errForbidden
	}
	users, err := s.store.ListUsers(ctx, skip, limit)
	if err != nil {
		return nil, err
	}
	views := make([]UserView, 0, len(users))
	for _, user := range users {
		views = append(views, userView(user))
	}
	return views, nil
}

// GetUser lets users read their own profile; superusers may read any.
func (s *Service) GetUser(ctx context.Context, principal Principal, userID string) (UserView, error) {
	if userID != principal.User.ID && !principal.User.IsSuperuser {
		return UserView{}, errForbidden
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UserView{}, errUserNotFound
		}
		return UserView{}, err
	}
	return userView(user), nil
}

// UpdateProfile edits the caller's own account. The active flag is not
// self-service.
func (s *Service) UpdateProfile(ctx context.Context, principal Principal, update authpw.ProfileUpdate) (UserView, error) {
	update.IsActive = nil
	user, err := s.passwords.UpdateProfile(ctx, principal.User, update)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UserView{}, errUserNotFound
		}
		return UserView{}, err
	}
	return userView(user), nil
}

// UpdateUser lets a superuser edit any account, including its active flag.
func (s *Service) UpdateUser(ctx context.Context, principal Principal, userID string, update authpw.ProfileUpdate) (UserView, error) {
	if !principal.User.IsSuperuser {
		return UserView{}, errForbidden
	}
	target, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UserView{}, errUserNotFound
		}
		return UserView{}, err
	}
	user, err := s.passwords.UpdateProfile(ctx, target, update)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UserView{}, errUserNotFound
		}
		return UserView{}, err
	}
	s.logger.Info("user updated", "user_id", user.ID, "by", principal.User.ID, "is_active", user.IsActive)
	return userView(user), nil
}

var errDeleteSelf = domainError(http.StatusBadRequest, "INVALID_OPERATION", "Cannot delete yourself", nil)

// DeactivateUser is the superuser delete. The row stays because edit
// history references it; the account can no longer log in or verify.
func (s *Service) DeactivateUser(ctx context.Context, principal Principal, userID string) error {
	if !principal.User.IsSuperuser {
		return errForbidden
	}
	if userID == principal.User.ID {
		return errDeleteSelf
	}
	target, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errUserNotFound
		}
		return err
	}
	target.IsActive = false
	if _, err := s.store.UpdateUser(ctx, target); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errUserNotFound
		}
		return err
	}
	s.logger.Info("user deactivated", "user_id", userID, "by", principal.User.ID)
	return nil
}

func (s *Service) ListProjects(ctx context.Context, principal Principal, skip, limit int, query string) (map[string]any, error) {
	filter := store.ProjectFilter{ViewerID: principal.User.ID, Search: query, Skip: skip, Limit: limit}
	if principal.User.IsSuperuser {
		filter.ViewerID = ""
	}
	items, total, err := s.store.ListProjects(ctx, filter)
	if err != nil {
		return nil, err
	}
	projects := make([]ProjectView, 0, len(items))
	for _, item := range items {
		projects = append(projects, projectView(item))
	}
	return map[string]any{
		"projects": projects,
		"total":    total,
		"skip":     skip,
		"limit":    limit,
	}, nil
}

func (s *Service) CreateProject(ctx context.Context, principal Principal, input ProjectInput) (ProjectView, error) {
	name := ""
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
	}
	if err := validateProjectName(name); err != nil {
		return ProjectView{}, err
	}
	item := store.Project{
		ID:       util.NewUUID(),
		Name:     name,
		OwnerID:  principal.User.ID,
		Metadata: input.Metadata,
		Settings: input.Settings,
	}
	if input.Description != nil {
		item.Description = strings.TrimSpace(*input.Description)
	}
	if input.IsPublic != nil {
		item.IsPublic = *input.IsPublic
	}
	if err := validateJSONObject("metadata", item.Metadata); err != nil {
		return ProjectView{}, err
	}
	if err := validateJSONObject("settings", item.Settings); err != nil {
		return ProjectView{}, err
	}

	created, err := s.store.CreateProject(ctx, item)
	if err != nil {
		return ProjectView{}, err
	}
	s.logger.Info("project created", "project_id", created.ID, "owner_id", created.OwnerID)
	return projectView(created), nil
}

func (s *Service) GetProject(ctx context.Context, principal Principal, projectID string) (ProjectView, error) {
	item, err := s.authorizeProject(ctx, principal, projectID, rbac.ActionRead)
	if err != nil {
		return ProjectView{}, err
	}
	return projectView(item), nil
}

func (s *Service) UpdateProject(ctx context.Context, principal Principal, projectID string, input ProjectInput) (ProjectView, error) {
	item, err := s.authorizeProject(ctx, principal, projectID, rbac.ActionAdmin)
	if err != nil {
		return ProjectView{}, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if err := validateProjectName(name); err != nil {
			return ProjectView{}, err
		}
		item.Name = name
	}
	if input.Description != nil {
		item.Description = strings.TrimSpace(*input.Description)
	}
	if input.IsPublic != nil {
		item.IsPublic = *input.IsPublic
	}
	if input.Metadata != nil {
		if err := validateJSONObject("metadata", input.Metadata); err != nil {
			return ProjectView{}, err
		}
		item.Metadata = input.Metadata
	}
	if input.Settings != nil {
		if err := validateJSONObject("settings", input.Settings); err != nil {
			return ProjectView{}, err
		}
		item.Settings = input.Settings
	}

	updated, err := s.store.UpdateProject(ctx, item)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ProjectView{}, errProjectNotFound
		}
		return ProjectView{}, err
	}
	return projectView(updated), nil
}

// DeleteProject deactivates the project. Connected members keep their
// sessions; new connections are refused as not found.
func (s *Service) DeleteProject(ctx context.Context, principal Principal, projectID string) error {
	if _, err := s.authorizeProject(ctx, principal, projectID, rbac.ActionAdmin); err != nil {
		return err
	}
	if err := s.store.DeactivateProject(ctx, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errProjectNotFound
		}
		return err
	}
	s.logger.Info("project deactivated", "project_id", projectID, "user_id", principal.User.ID)
	return nil
}

func (s *Service) authorizeProject(ctx context.Context, principal Principal, projectID string, action rbac.Action) (store.Project, error) {
	item, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Project{}, errProjectNotFound
		}
		return store.Project{}, err
	}
	role := rbac.ProjectRole(item.OwnerID, principal.User.ID, item.IsPublic, principal.User.IsSuperuser)
	if !rbac.Can(role, action) {
		return store.Project{}, errForbidden
	}
	return item, nil
}

// History lists a project's edits newest first. A non-empty Text runs a
// search instead and returns the matching edits in rank order.
func (s *Service) History(ctx context.Context, principal Principal, projectID string, query HistoryQuery) (map[string]any, error) {
	if _, err := s.authorizeProject(ctx, principal, projectID, rbac.ActionRead); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(query.Text)
	if text == "" || s.search == nil {
		records, err := s.store.ListEditHistory(ctx, projectID, query.Skip, query.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"project_id": projectID,
			"history":    editViews(records),
			"skip":       query.Skip,
			"limit":      query.Limit,
		}, nil
	}

	resp := s.search.Search(search.Query{ProjectID: projectID, Text: text, Limit: query.Limit, Offset: query.Skip})
	ids := make([]string, 0, len(resp.Results))
	highlights := make(map[string]string, len(resp.Results))
	for _, result := range resp.Results {
		ids = append(ids, result.ID)
		if result.Snippet != "" {
			highlights[result.ID] = result.Snippet
		}
	}
	records, err := s.store.GetEditRecords(ctx, ids)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"project_id": projectID,
		"query":      resp.Query,
		"engine":     resp.Engine,
		"total":      resp.Total,
		"history":    editViews(records),
		"highlights": highlights,
	}, nil
}

// ActiveUsers reports who is connected to the project right now.
func (s *Service) ActiveUsers(ctx context.Context, principal Principal, projectID string) (map[string]any, error) {
	if _, err := s.authorizeProject(ctx, principal, projectID, rbac.ActionRead); err != nil {
		return nil, err
	}
	members := s.gateway.Registry().Members(projectID, "")
	users := make([]map[string]any, 0, len(members))
	for _, member := range members {
		users = append(users, map[string]any{
			"user_id":       member.Identity.ID,
			"user_info":     member.Identity,
			"connected_at":  member.ConnectedAt,
			"last_activity": member.LastActivity,
		})
	}
	return map[string]any{
		"project_id":   projectID,
		"active_users": users,
		"total":        len(users),
		"timestamp":    s.now().UTC(),
	}, nil
}

// ServeProjectSocket runs the collaboration protocol on an upgraded
// connection until it closes.
func (s *Service) ServeProjectSocket(ctx context.Context, conn collab.Conn, projectID, token string) {
	s.gateway.Serve(ctx, conn, projectID, token)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ReadyChecks pings every backing service. Only the database decides
// readiness; Redis and search report their state.
func (s *Service) ReadyChecks(ctx context.Context) (bool, map[string]any) {
	ready := true
	checks := map[string]any{"database": map[string]any{"status": "ok"}}
	if err := s.store.Ping(ctx); err != nil {
		ready = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if p, ok := s.sessions.(pinger); ok && any(s.sessions) != any(s.store) {
		if err := p.Ping(ctx); err != nil {
			checks["sessions"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["sessions"] = map[string]any{"status": "ok"}
		}
	}
	if s.search != nil {
		engine := search.EnginePgFTS
		if s.search.Healthy() {
			engine = search.EngineMeili
		}
		checks["search"] = map[string]any{"status": "ok", "engine": engine}
	}
	return ready, checks
}

// sessionPersistence adapts the service to collab.Persistence.
type sessionPersistence struct {
	s *Service
}

func (p sessionPersistence) GetProject(ctx context.Context, projectID string) (collab.ProjectAccess, error) {
	item, err := p.s.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return collab.ProjectAccess{}, fmt.Errorf("%w: %s", collab.ErrProjectNotFound, projectID)
		}
		return collab.ProjectAccess{}, err
	}
	return collab.ProjectAccess{ID: item.ID, OwnerID: item.OwnerID, IsPublic: item.IsPublic}, nil
}

func (p sessionPersistence) AppendEditRecord(ctx context.Context, record store.EditRecord) error {
	if err := p.s.store.AppendEditRecord(ctx, record); err != nil {
		return fmt.Errorf("%w: %v", collab.ErrPersistence, err)
	}
	if p.s.search != nil {
		p.s.search.IndexEdit(record)
	}
	return nil
}

func validationError(message string) error {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func validateProjectName(name string) error {
	if name == "" || len(name) > maxProjectNameLen {
		return validationError(fmt.Sprintf("name must be 1-%d characters", maxProjectNameLen))
	}
	return nil
}

func validateJSONObject(field string, raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return validationError(field + " must be a JSON object")
	}
	return nil
}

func identityOf(user store.User) collab.Identity {
	return collab.Identity{
		ID:       user.ID,
		Username: user.Username,
		FullName: user.FullName,
		Email:    user.Email,
	}
}

func userView(user store.User) UserView {
	return UserView{
		ID:          user.ID,
		Email:       user.Email,
		Username:    user.Username,
		FullName:    user.FullName,
		IsActive:    user.IsActive,
		IsSuperuser: user.IsSuperuser,
		IsVerified:  user.IsVerified,
		CreatedAt:   user.CreatedAt,
	}
}

func projectView(item store.Project) ProjectView {
	return ProjectView{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		OwnerID:     item.OwnerID,
		IsActive:    item.IsActive,
		IsPublic:    item.IsPublic,
		Metadata:    emptyObject(item.Metadata),
		Settings:    emptyObject(item.Settings),
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func editViews(records []store.EditRecord) []EditView {
	views := make([]EditView, 0, len(records))
	for _, record := range records {
		views = append(views, EditView{
			ID:           record.ID,
			ProjectID:    record.ProjectID,
			UserID:       record.UserID,
			Action:       record.Action,
			ObjectType:   record.ObjectType,
			ObjectID:     record.ObjectID,
			Changes:      emptyObject(record.Changes),
			PreviousData: record.PreviousData,
			NewData:      record.NewData,
			SessionID:    record.SessionID,
			CreatedAt:    record.CreatedAt,
		})
	}
	return views
}

func emptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`)
	}
	return raw
}
