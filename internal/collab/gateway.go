package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"collab/api/internal/auth"
	"collab/api/internal/store"
	"collab/api/internal/util"
)

// State is the lifecycle of one connection. There is no resume: a dropped
// connection starts again at Connecting.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthorizing
	StateJoined
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthorizing:
		return "authorizing"
	case StateJoined:
		return "joined"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrProjectNotFound = errors.New("project not found")
	ErrPersistence     = errors.New("persistence error")
)

// IdentityVerifier resolves a bearer credential. Expected failures wrap
// ErrUnauthenticated; anything else is treated as an internal fault.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string, kind auth.Kind) (Identity, error)
}

type ProjectAccess struct {
	ID       string
	OwnerID  string
	IsPublic bool
}

// Persistence is what the gateway needs from storage. GetProject reports
// a missing project with ErrProjectNotFound.
type Persistence interface {
	GetProject(ctx context.Context, projectID string) (ProjectAccess, error)
	AppendEditRecord(ctx context.Context, record store.EditRecord) error
}

// Rejection is an expected refusal to admit a connection. Cause is one of
// ErrUnauthenticated, ErrForbidden or ErrProjectNotFound.
type Rejection struct {
	Code   CloseCode
	Reason string
	Cause  error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("rejected (%d): %s", r.Code, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return r.Cause
}

type Gateway struct {
	registry *Registry
	router   *Router
	verifier IdentityVerifier
	store    Persistence
	logger   *slog.Logger
	now      func() time.Time

	onTransition func(from, to State)
}

func NewGateway(registry *Registry, verifier IdentityVerifier, persistence Persistence, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		registry: registry,
		router:   NewRouter(registry),
		verifier: verifier,
		store:    persistence,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (g *Gateway) Registry() *Registry {
	return g.registry
}

type connection struct {
	g         *Gateway
	conn      Conn
	projectID string
	identity  Identity
	state     State
	logger    *slog.Logger

	closeCode   CloseCode
	closeReason string
}

// Serve drives one connection from handshake to teardown and returns once
// the connection is closed and its departure has been announced.
func (g *Gateway) Serve(ctx context.Context, conn Conn, projectID, credential string) {
	c := &connection{
		g:         g,
		conn:      conn,
		projectID: projectID,
		state:     StateConnecting,
		logger:    g.logger.With("project_id", projectID, "conn_id", util.NewID("conn")),
		closeCode: CloseNormal,
	}

	identity, rejection, err := g.admitRecovering(ctx, c, projectID, credential)
	if err != nil {
		c.logger.Error("websocket admission failed", "error", err)
		_ = conn.Close(CloseInternalError, "internal error")
		c.transition(StateClosed)
		return
	}
	if rejection != nil {
		c.logger.Info("websocket rejected", "code", int(rejection.Code), "reason", rejection.Reason)
		_ = conn.Close(rejection.Code, rejection.Reason)
		c.transition(StateClosed)
		return
	}
	c.identity = identity
	c.logger = c.logger.With("user_id", identity.ID)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close(CloseGoingAway, "server shutting down")
	})
	defer stop()
	defer c.leave()
	defer c.recoverFault()

	c.join()
	c.loop(ctx)
}

// admitRecovering turns a panic in the verifier or the project lookup into
// an admission error so the connection still closes with CloseInternalError.
func (g *Gateway) admitRecovering(ctx context.Context, c *connection, projectID, credential string) (identity Identity, rejection *Rejection, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("websocket admission panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			identity, rejection, err = Identity{}, nil, fmt.Errorf("admission panic: %v", r)
		}
	}()
	return g.admit(ctx, c, projectID, credential)
}

func (g *Gateway) admit(ctx context.Context, c *connection, projectID, credential string) (Identity, *Rejection, error) {
	c.transition(StateAuthenticating)
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, &Rejection{Code: CloseUnauthenticated, Reason: "missing credential", Cause: ErrUnauthenticated}, nil
	}
	identity, err := g.verifier.Verify(ctx, credential, auth.KindAccess)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return Identity{}, &Rejection{Code: CloseUnauthenticated, Reason: "authentication failed", Cause: ErrUnauthenticated}, nil
		}
		return Identity{}, nil, fmt.Errorf("verify credential: %w", err)
	}

	c.transition(StateAuthorizing)
	project, err := g.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return Identity{}, &Rejection{Code: CloseProjectNotFound, Reason: "project not found", Cause: ErrProjectNotFound}, nil
		}
		return Identity{}, nil, fmt.Errorf("load project: %w", err)
	}
	if !project.IsPublic && project.OwnerID != identity.ID {
		return Identity{}, &Rejection{Code: CloseForbidden, Reason: "access denied", Cause: ErrForbidden}, nil
	}
	return identity, nil, nil
}

func (c *connection) transition(to State) {
	from := c.state
	c.state = to
	c.logger.Debug("websocket state", "from", from.String(), "to", to.String())
	if c.g.onTransition != nil {
		c.g.onTransition(from, to)
	}
}

func (c *connection) join() {
	g := c.g
	_, superseded := g.registry.Register(c.projectID, c.identity, c.conn)
	c.transition(StateJoined)
	if superseded != nil {
		c.logger.Info("websocket superseded previous connection")
		_ = superseded.Close(CloseSuperseded, "superseded by a newer connection")
	}
	c.logger.Info("websocket connected", "total_connections", g.registry.MemberCount(c.projectID))

	identity := c.identity
	g.fanout(c.projectID, Envelope{
		Type:      TypeUserJoined,
		UserID:    identity.ID,
		UserInfo:  &identity,
		Timestamp: g.now(),
	}, identity.ID)

	others := g.registry.Members(c.projectID, identity.ID)
	users := make([]ActiveUser, 0, len(others))
	for _, member := range others {
		users = append(users, ActiveUser{
			UserID:      member.Identity.ID,
			UserInfo:    member.Identity,
			ConnectedAt: member.ConnectedAt,
		})
	}
	c.reply(Envelope{Type: TypeActiveUsers, Users: users, Timestamp: g.now()})
}

func (c *connection) loop(ctx context.Context) {
	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || IsNormalClose(err) {
				c.logger.Debug("websocket read loop ended", "error", err)
			} else {
				c.logger.Info("websocket read failed", "error", err)
			}
			return
		}
		c.handle(ctx, data)
	}
}

func (c *connection) handle(ctx context.Context, data []byte) {
	g := c.g
	in, err := DecodeEnvelope(data)
	if err != nil {
		c.logger.Warn("websocket malformed message", "error", err)
		c.reply(Envelope{
			Type:      TypeError,
			Code:      "malformed_message",
			Message:   "Invalid JSON format: " + err.Error(),
			Timestamp: g.now(),
		})
		return
	}
	if !in.Known() {
		c.logger.Warn("websocket unknown message type", "type", string(in.Type))
		return
	}

	g.registry.Touch(c.projectID, c.identity.ID)

	switch in.Type {
	case TypeEdit:
		c.handleEdit(ctx, in)
	case TypeCursor:
		g.fanout(c.projectID, c.stamped(in), c.identity.ID)
	case TypePing:
		c.reply(Envelope{Type: TypePong, Timestamp: g.now()})
	}
}

// handleEdit records the edit before any peer hears about it. A failed
// append is reported to the sender only and nothing is broadcast.
func (c *connection) handleEdit(ctx context.Context, in Inbound) {
	g := c.g
	record := in.EditRecord(c.projectID, c.identity.ID, g.now())
	if err := g.store.AppendEditRecord(ctx, record); err != nil {
		c.logger.Error("websocket edit not recorded", "action", record.Action, "object_type", record.ObjectType, "error", err)
		c.reply(Envelope{
			Type:      TypeError,
			Code:      "persistence_error",
			Message:   "Failed to record edit",
			Timestamp: g.now(),
		})
		return
	}
	c.logger.Debug("websocket edit recorded", "edit_id", record.ID, "action", record.Action, "object_type", record.ObjectType)
	g.fanout(c.projectID, c.stamped(in), c.identity.ID)
}

func (c *connection) stamped(in Inbound) Envelope {
	identity := c.identity
	return Envelope{
		Type:      in.Type,
		UserID:    identity.ID,
		UserInfo:  &identity,
		Timestamp: c.g.now(),
		Fields:    in.Fields,
	}
}

func (c *connection) reply(env Envelope) {
	if err := c.g.router.SendTo(c.conn, env); err != nil {
		c.logger.Debug("websocket reply failed", "type", string(env.Type), "error", err)
	}
}

func (c *connection) recoverFault() {
	if r := recover(); r != nil {
		c.logger.Error("websocket handler panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		c.closeCode = CloseInternalError
		c.closeReason = "internal error"
	}
}

func (c *connection) leave() {
	g := c.g
	c.transition(StateClosing)
	identity, removed := g.registry.DeregisterConn(c.projectID, c.identity.ID, c.conn)
	_ = c.conn.Close(c.closeCode, c.closeReason)
	if removed {
		c.logger.Info("websocket disconnected", "remaining_connections", g.registry.MemberCount(c.projectID))
		g.announceLeft(c.projectID, identity)
	}
	c.transition(StateClosed)
}

// fanout broadcasts env and treats every failed recipient as disconnected.
func (g *Gateway) fanout(projectID string, env Envelope, exclude string) {
	failures, err := g.router.Broadcast(projectID, env, exclude)
	if err != nil {
		g.logger.Error("websocket broadcast failed", "project_id", projectID, "type", string(env.Type), "error", err)
		return
	}
	for _, failure := range failures {
		identity, removed := g.registry.DeregisterConn(projectID, failure.MemberID, failure.Conn)
		_ = failure.Conn.Close(CloseGoingAway, "delivery failed")
		if !removed {
			continue
		}
		g.logger.Info("websocket peer dropped", "project_id", projectID, "user_id", failure.MemberID, "error", failure.Err)
		g.announceLeft(projectID, identity)
	}
}

func (g *Gateway) announceLeft(projectID string, identity Identity) {
	g.fanout(projectID, Envelope{
		Type:      TypeUserLeft,
		UserID:    identity.ID,
		UserInfo:  &identity,
		Timestamp: g.now(),
	}, identity.ID)
}
