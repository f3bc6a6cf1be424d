package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const userColumns = `id, email, username, full_name, hashed_password, is_active, is_superuser, is_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.FullName,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsSuperuser,
		&user.IsVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	if !validUUID(userID) {
		return User{}, ErrNotFound
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
	if err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email))
	if err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username))
	if err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

// GetUserByLogin resolves a login that may be either a username or an email.
func (s *PostgresStore) GetUserByLogin(ctx context.Context, login string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username=$1 OR LOWER(email)=LOWER($1)
		ORDER BY (username=$1) DESC
		LIMIT 1
	`, login))
	if err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	created, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, username, full_name, hashed_password, is_active, is_superuser, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+userColumns,
		user.ID, user.Email, user.Username, user.FullName, user.PasswordHash, user.IsActive, user.IsSuperuser, user.IsVerified,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, fmt.Errorf("create user: %w", ErrDuplicate)
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// ListUsers returns one page of users, newest first.
func (s *PostgresStore) ListUsers(ctx context.Context, skip, limit int) ([]User, error) {
	limit, skip = pageBounds(limit, skip)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// UpdateUser writes the profile fields and the active flag.
func (s *PostgresStore) UpdateUser(ctx context.Context, user User) (User, error) {
	if !validUUID(user.ID) {
		return User{}, ErrNotFound
	}
	updated, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users
		SET email=$2, username=$3, full_name=$4, is_active=$5, updated_at=NOW()
		WHERE id=$1
		RETURNING `+userColumns,
		user.ID, user.Email, user.Username, user.FullName, user.IsActive,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return User{}, fmt.Errorf("update user: %w", ErrDuplicate)
		}
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// LookupRefreshSession returns the user id owning a live refresh session.
func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM refresh_sessions
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", notFound(err)
	}
	return userID, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

const projectColumns = `id, name, description, owner_id, is_active, is_public, metadata, settings, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var item Project
	var metadata, settings []byte
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.OwnerID,
		&item.IsActive,
		&item.IsPublic,
		&metadata,
		&settings,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Project{}, err
	}
	item.Metadata = json.RawMessage(metadata)
	item.Settings = json.RawMessage(settings)
	return item, nil
}

// GetProject returns an active project. Soft-deleted projects and ids that
// are not UUIDs report ErrNotFound.
func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	if !validUUID(projectID) {
		return Project{}, ErrNotFound
	}
	item, err := scanProject(s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE id=$1 AND is_active
	`, projectID))
	if err != nil {
		return Project{}, notFound(err)
	}
	return item, nil
}

// ListProjects returns one page of projects plus the unpaged total.
func (s *PostgresStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, int, error) {
	where := []string{"is_active"}
	args := make([]any, 0, 4)
	if filter.PublicOnly {
		where = append(where, "is_public")
	} else if filter.ViewerID != "" {
		args = append(args, filter.ViewerID)
		where = append(where, fmt.Sprintf("(owner_id::text=$%d OR is_public)", len(args)))
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	limit, skip := pageBounds(filter.Limit, filter.Skip)
	args = append(args, limit, skip)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM projects
		WHERE %s
		ORDER BY updated_at DESC, id
		LIMIT $%d OFFSET $%d
	`, projectColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate projects: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, item Project) (Project, error) {
	created, err := scanProject(s.db.QueryRowContext(ctx, `
		INSERT INTO projects (id, name, description, owner_id, is_public, metadata, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+projectColumns,
		item.ID, item.Name, item.Description, item.OwnerID, item.IsPublic, jsonObject(item.Metadata), jsonObject(item.Settings),
	))
	if err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, item Project) (Project, error) {
	if !validUUID(item.ID) {
		return Project{}, ErrNotFound
	}
	updated, err := scanProject(s.db.QueryRowContext(ctx, `
		UPDATE projects
		SET name=$2, description=$3, is_public=$4, metadata=$5, settings=$6, updated_at=NOW()
		WHERE id=$1 AND is_active
		RETURNING `+projectColumns,
		item.ID, item.Name, item.Description, item.IsPublic, jsonObject(item.Metadata), jsonObject(item.Settings),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, fmt.Errorf("update project: %w", err)
	}
	return updated, nil
}

// DeactivateProject soft-deletes a project. History rows are kept.
func (s *PostgresStore) DeactivateProject(ctx context.Context, projectID string) error {
	if !validUUID(projectID) {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET is_active=FALSE, updated_at=NOW() WHERE id=$1 AND is_active`, projectID)
	if err != nil {
		return fmt.Errorf("deactivate project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const layerColumns = `id, project_id, name, layer_type, is_visible, is_locked, z_index, geometry, style, properties, external_object_id, created_at, updated_at`

func scanLayer(row interface{ Scan(...any) error }) (Layer, error) {
	var item Layer
	var geometry, externalID sql.NullString
	var style, properties []byte
	err := row.Scan(
		&item.ID,
		&item.ProjectID,
		&item.Name,
		&item.LayerType,
		&item.IsVisible,
		&item.IsLocked,
		&item.ZIndex,
		&geometry,
		&style,
		&properties,
		&externalID,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Layer{}, err
	}
	if geometry.Valid {
		item.Geometry = &geometry.String
	}
	if externalID.Valid {
		item.ExternalObjectID = &externalID.String
	}
	item.Style = json.RawMessage(style)
	item.Properties = json.RawMessage(properties)
	return item, nil
}

// ListLayers returns a project's layers bottom-up by z_index, newest first
// within the same z_index.
func (s *PostgresStore) ListLayers(ctx context.Context, projectID string) ([]Layer, error) {
	if !validUUID(projectID) {
		return []Layer{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+layerColumns+`
		FROM layers
		WHERE project_id=$1
		ORDER BY z_index ASC, created_at DESC, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()

	items := make([]Layer, 0)
	for rows.Next() {
		item, err := scanLayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate layers: %w", err)
	}
	return items, nil
}

// GetLayer looks a layer up within its project.
func (s *PostgresStore) GetLayer(ctx context.Context, projectID, layerID string) (Layer, error) {
	if !validUUID(projectID) || !validUUID(layerID) {
		return Layer{}, ErrNotFound
	}
	item, err := scanLayer(s.db.QueryRowContext(ctx, `
		SELECT `+layerColumns+`
		FROM layers
		WHERE id=$1 AND project_id=$2
	`, layerID, projectID))
	if err != nil {
		return Layer{}, notFound(err)
	}
	return item, nil
}

func (s *PostgresStore) CreateLayer(ctx context.Context, item Layer) (Layer, error) {
	created, err := scanLayer(s.db.QueryRowContext(ctx, `
		INSERT INTO layers (id, project_id, name, layer_type, is_visible, is_locked, z_index, geometry, style, properties, external_object_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+layerColumns,
		item.ID, item.ProjectID, item.Name, item.LayerType, item.IsVisible, item.IsLocked, item.ZIndex,
		item.Geometry, jsonObject(item.Style), jsonObject(item.Properties), item.ExternalObjectID,
	))
	if err != nil {
		return Layer{}, fmt.Errorf("create layer: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateLayer(ctx context.Context, item Layer) (Layer, error) {
	if !validUUID(item.ID) || !validUUID(item.ProjectID) {
		return Layer{}, ErrNotFound
	}
	updated, err := scanLayer(s.db.QueryRowContext(ctx, `
		UPDATE layers
		SET name=$3, layer_type=$4, is_visible=$5, is_locked=$6, z_index=$7, geometry=$8,
			style=$9, properties=$10, external_object_id=$11, updated_at=NOW()
		WHERE id=$1 AND project_id=$2
		RETURNING `+layerColumns,
		item.ID, item.ProjectID, item.Name, item.LayerType, item.IsVisible, item.IsLocked, item.ZIndex,
		item.Geometry, jsonObject(item.Style), jsonObject(item.Properties), item.ExternalObjectID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Layer{}, ErrNotFound
		}
		return Layer{}, fmt.Errorf("update layer: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeleteLayer(ctx context.Context, projectID, layerID string) error {
	if !validUUID(projectID) || !validUUID(layerID) {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM layers WHERE id=$1 AND project_id=$2`, layerID, projectID)
	if err != nil {
		return fmt.Errorf("delete layer: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendEditRecord(ctx context.Context, record EditRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edit_history (id, project_id, user_id, action, object_type, object_id, changes, previous_data, new_data, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		record.ID,
		record.ProjectID,
		record.UserID,
		record.Action,
		record.ObjectType,
		record.ObjectID,
		nullableJSON(record.Changes),
		nullableJSON(record.PreviousData),
		nullableJSON(record.NewData),
		record.SessionID,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("append edit record: %w", err)
	}
	return nil
}

const editColumns = `id, project_id, user_id, action, object_type, object_id, changes, previous_data, new_data, session_id, created_at`

func scanEditRecord(row interface{ Scan(...any) error }) (EditRecord, error) {
	var item EditRecord
	var objectID, sessionID sql.NullString
	var changes, previous, next []byte
	err := row.Scan(
		&item.ID,
		&item.ProjectID,
		&item.UserID,
		&item.Action,
		&item.ObjectType,
		&objectID,
		&changes,
		&previous,
		&next,
		&sessionID,
		&item.CreatedAt,
	)
	if err != nil {
		return EditRecord{}, err
	}
	if objectID.Valid {
		item.ObjectID = &objectID.String
	}
	if sessionID.Valid {
		item.SessionID = &sessionID.String
	}
	item.Changes = rawOrNil(changes)
	item.PreviousData = rawOrNil(previous)
	item.NewData = rawOrNil(next)
	return item, nil
}

// ListEditHistory returns a project's edits newest first.
func (s *PostgresStore) ListEditHistory(ctx context.Context, projectID string, skip, limit int) ([]EditRecord, error) {
	limit, skip = pageBounds(limit, skip)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+editColumns+`
		FROM edit_history
		WHERE project_id=$1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, projectID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list edit history: %w", err)
	}
	defer rows.Close()

	items := make([]EditRecord, 0)
	for rows.Next() {
		item, err := scanEditRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edit record: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edit history: %w", err)
	}
	return items, nil
}

// GetEditRecords loads edits by id, preserving the order of ids.
func (s *PostgresStore) GetEditRecords(ctx context.Context, ids []string) ([]EditRecord, error) {
	if len(ids) == 0 {
		return []EditRecord{}, nil
	}
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validUUID(id) {
			valid = append(valid, id)
		}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+editColumns+`
		FROM edit_history
		WHERE id::text = ANY(string_to_array($1, ','))
	`, strings.Join(valid, ","))
	if err != nil {
		return nil, fmt.Errorf("get edit records: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]EditRecord, len(valid))
	for rows.Next() {
		item, err := scanEditRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edit record: %w", err)
		}
		byID[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edit records: %w", err)
	}

	items := make([]EditRecord, 0, len(byID))
	for _, id := range valid {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func pageBounds(limit, skip int) (int, int) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	if skip < 0 {
		skip = 0
	}
	return limit, skip
}

func validUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func jsonObject(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func rawOrNil(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
