package app

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"collab/api/internal/config"
	"collab/api/internal/search"
	"collab/api/internal/store"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeStore keeps everything in memory. It also satisfies SessionStore so
// tests exercise the Postgres-backed session path.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]store.User
	projects map[string]store.Project
	edits    []store.EditRecord
	layers   map[string]store.Layer
	refresh  map[string]string
	revoked  map[string]bool

	pingFn       func(context.Context) error
	getProjectFn func(context.Context, string) (store.Project, error)
	appendFn     func(context.Context, store.EditRecord) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]store.User{},
		projects: map[string]store.Project{},
		layers:   map[string]store.Layer{},
		refresh:  map[string]string{},
		revoked:  map[string]bool{},
	}
}

func (f *fakeStore) addUser(t *testing.T, id, username, password string) store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := store.User{
		ID:           id,
		Email:        username + "@example.com",
		Username:     username,
		FullName:     strings.ToUpper(username[:1]) + username[1:],
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.mu.Lock()
	f.users[id] = user
	f.mu.Unlock()
	return user
}

func (f *fakeStore) addProject(id, ownerID string, public bool) store.Project {
	item := store.Project{ID: id, Name: "Project " + id, OwnerID: ownerID, IsPublic: public, IsActive: true}
	f.mu.Lock()
	f.projects[id] = item
	f.mu.Unlock()
	return item
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Username == username {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) GetUserByLogin(ctx context.Context, login string) (store.User, error) {
	if user, err := f.GetUserByUsername(ctx, login); err == nil {
		return user, nil
	}
	return f.GetUserByEmail(ctx, login)
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.CreatedAt = time.Now().UTC()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, user store.User) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return store.User{}, store.ErrNotFound
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) ListUsers(_ context.Context, skip, limit int) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]store.User, 0, len(f.users))
	for _, user := range f.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	if skip > len(users) {
		skip = len(users)
	}
	users = users[skip:]
	if limit > 0 && limit < len(users) {
		users = users[:limit]
	}
	return users, nil
}

func (f *fakeStore) GetProject(ctx context.Context, projectID string) (store.Project, error) {
	if f.getProjectFn != nil {
		return f.getProjectFn(ctx, projectID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.projects[projectID]
	if !ok || !item.IsActive {
		return store.Project{}, store.ErrNotFound
	}
	return item, nil
}

func (f *fakeStore) ListProjects(_ context.Context, filter store.ProjectFilter) ([]store.Project, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Project, 0)
	for _, item := range f.projects {
		if !item.IsActive {
			continue
		}
		if filter.ViewerID != "" && item.OwnerID != filter.ViewerID && !item.IsPublic {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, len(items), nil
}

func (f *fakeStore) CreateProject(_ context.Context, item store.Project) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.IsActive = true
	f.projects[item.ID] = item
	return item, nil
}

func (f *fakeStore) UpdateProject(_ context.Context, item store.Project) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[item.ID]; !ok {
		return store.Project{}, store.ErrNotFound
	}
	f.projects[item.ID] = item
	return item, nil
}

func (f *fakeStore) DeactivateProject(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.projects[projectID]
	if !ok || !item.IsActive {
		return store.ErrNotFound
	}
	item.IsActive = false
	f.projects[projectID] = item
	return nil
}

func (f *fakeStore) ListLayers(_ context.Context, projectID string) ([]store.Layer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Layer, 0)
	for _, layer := range f.layers {
		if layer.ProjectID == projectID {
			out = append(out, layer)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ZIndex != out[j].ZIndex {
			return out[i].ZIndex < out[j].ZIndex
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeStore) GetLayer(_ context.Context, projectID, layerID string) (store.Layer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	layer, ok := f.layers[layerID]
	if !ok || layer.ProjectID != projectID {
		return store.Layer{}, store.ErrNotFound
	}
	return layer, nil
}

func (f *fakeStore) CreateLayer(_ context.Context, layer store.Layer) (store.Layer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	layer.CreatedAt = time.Now().UTC()
	layer.UpdatedAt = layer.CreatedAt
	f.layers[layer.ID] = layer
	return layer, nil
}

func (f *fakeStore) UpdateLayer(_ context.Context, layer store.Layer) (store.Layer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.layers[layer.ID]
	if !ok || existing.ProjectID != layer.ProjectID {
		return store.Layer{}, store.ErrNotFound
	}
	layer.UpdatedAt = time.Now().UTC()
	f.layers[layer.ID] = layer
	return layer, nil
}

func (f *fakeStore) DeleteLayer(_ context.Context, projectID, layerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	layer, ok := f.layers[layerID]
	if !ok || layer.ProjectID != projectID {
		return store.ErrNotFound
	}
	delete(f.layers, layerID)
	return nil
}

func (f *fakeStore) user(id string) store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id]
}

func (f *fakeStore) setUser(user store.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
}

func (f *fakeStore) AppendEditRecord(ctx context.Context, record store.EditRecord) error {
	if f.appendFn != nil {
		if err := f.appendFn(ctx, record); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, record)
	return nil
}

func (f *fakeStore) ListEditHistory(_ context.Context, projectID string, skip, limit int) ([]store.EditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.EditRecord, 0)
	for i := len(f.edits) - 1; i >= 0; i-- {
		if f.edits[i].ProjectID == projectID {
			out = append(out, f.edits[i])
		}
	}
	if skip > len(out) {
		skip = len(out)
	}
	out = out[skip:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) GetEditRecords(_ context.Context, ids []string) ([]store.EditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.EditRecord, 0, len(ids))
	for _, id := range ids {
		for _, record := range f.edits {
			if record.ID == id {
				out = append(out, record)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return "", store.ErrNotFound
	}
	return userID, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

type fakeSearcher struct {
	mu       sync.Mutex
	healthy  bool
	searchFn func(search.Query) search.Response
	indexed  []store.EditRecord
}

func (f *fakeSearcher) Search(q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(q)
	}
	return search.Response{Results: []search.Result{}, Query: q.Text, Engine: search.EnginePgFTS}
}

func (f *fakeSearcher) IndexEdit(record store.EditRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, record)
}

func (f *fakeSearcher) Healthy() bool { return f.healthy }

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		CORSOrigin: "*",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(fs *fakeStore, searcher *fakeSearcher) *Service {
	var s editSearcher
	if searcher != nil {
		s = searcher
	}
	svc := newService(testConfig(), fs, nil, s, quietLogger())
	svc.passwords = svc.passwords.WithCost(bcrypt.MinCost)
	return svc
}
