package authpw

import (
	"context"
	"errors"
	"strings"
	"testing"

	"collab/api/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockUserStore struct {
	users    map[string]store.User
	createFn func(user store.User) (store.User, error)
	lookupFn func(login string) (store.User, error)
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]store.User)}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) GetUserByLogin(ctx context.Context, login string) (store.User, error) {
	if m.lookupFn != nil {
		return m.lookupFn(login)
	}
	if user, err := m.GetUserByUsername(ctx, login); err == nil {
		return user, nil
	}
	return m.GetUserByEmail(ctx, login)
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) (store.User, error) {
	if m.createFn != nil {
		return m.createFn(user)
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *mockUserStore) UpdateUser(ctx context.Context, user store.User) (store.User, error) {
	if _, ok := m.users[user.ID]; !ok {
		return store.User{}, store.ErrNotFound
	}
	m.users[user.ID] = user
	return user, nil
}

func newTestService(m *mockUserStore) *Service {
	svc := NewService(m)
	svc.cost = bcrypt.MinCost
	return svc
}

func validRequest() RegisterRequest {
	return RegisterRequest{Email: "ada@example.com", Username: "ada", FullName: " Ada Lovelace ", Password: "analytical"}
}

func TestRegister(t *testing.T) {
	m := newMockUserStore()
	svc := newTestService(m)

	user, err := svc.Register(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.True(t, user.IsActive)
	assert.Equal(t, "Ada Lovelace", user.FullName)
	assert.NotEqual(t, "analytical", user.PasswordHash, "password stored in plain text")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("analytical")))
}

func TestRegisterRejectsTakenIdentity(t *testing.T) {
	m := newMockUserStore()
	svc := newTestService(m)
	_, err := svc.Register(context.Background(), validRequest())
	require.NoError(t, err)

	dupEmail := validRequest()
	dupEmail.Username = "someone"
	_, err = svc.Register(context.Background(), dupEmail)
	assert.ErrorIs(t, err, ErrEmailTaken)

	dupName := validRequest()
	dupName.Email = "other@example.com"
	_, err = svc.Register(context.Background(), dupName)
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(newMockUserStore())
	cases := map[string]func(r *RegisterRequest){
		"bad email":      func(r *RegisterRequest) { r.Email = "not-an-email" },
		"short username": func(r *RegisterRequest) { r.Username = "ab" },
		"short password": func(r *RegisterRequest) { r.Password = "short" },
		"long password":  func(r *RegisterRequest) { r.Password = strings.Repeat("x", 101) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			_, err := svc.Register(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRegisterDuplicateRace(t *testing.T) {
	m := newMockUserStore()
	m.createFn = func(store.User) (store.User, error) {
		return store.User{}, store.ErrDuplicate
	}
	_, err := newTestService(m).Register(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrEmailTaken, "duplicate insert maps to ErrEmailTaken")
}

func TestAuthenticate(t *testing.T) {
	m := newMockUserStore()
	svc := newTestService(m)
	_, err := svc.Register(context.Background(), validRequest())
	require.NoError(t, err)

	for _, login := range []string{"ada", "ada@example.com"} {
		user, err := svc.Authenticate(context.Background(), login, "analytical")
		require.NoError(t, err, "login %q", login)
		assert.Equal(t, "ada", user.Username)
	}

	_, err = svc.Authenticate(context.Background(), "ada", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(context.Background(), "nobody", "analytical")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "unknown login")
	_, err = svc.Authenticate(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "empty login")
}

func TestAuthenticateInactiveUser(t *testing.T) {
	m := newMockUserStore()
	svc := newTestService(m)
	user, err := svc.Register(context.Background(), validRequest())
	require.NoError(t, err)
	user.IsActive = false
	m.users[user.ID] = user

	_, err = svc.Authenticate(context.Background(), "ada", "analytical")
	assert.ErrorIs(t, err, ErrInactiveUser)
}

func TestAuthenticateStoreFailure(t *testing.T) {
	m := newMockUserStore()
	m.lookupFn = func(string) (store.User, error) { return store.User{}, errors.New("db down") }
	_, err := newTestService(m).Authenticate(context.Background(), "ada", "analytical")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateProfile(t *testing.T) {
	m := newMockUserStore()
	m.users["u1"] = store.User{ID: "u1", Email: "ada@example.com", Username: "ada", IsActive: true}
	m.users["u2"] = store.User{ID: "u2", Email: "grace@example.com", Username: "grace", IsActive: true}
	svc := newTestService(m)
	ctx := context.Background()

	name := "  Ada King "
	updated, err := svc.UpdateProfile(ctx, m.users["u1"], ProfileUpdate{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ada King", updated.FullName)
	assert.Equal(t, "ada", updated.Username)
	assert.True(t, updated.IsActive, "nil IsActive leaves the flag alone")

	taken := "GRACE@example.com"
	_, err = svc.UpdateProfile(ctx, m.users["u1"], ProfileUpdate{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailTaken)
	takenName := "grace"
	_, err = svc.UpdateProfile(ctx, m.users["u1"], ProfileUpdate{Username: &takenName})
	assert.ErrorIs(t, err, ErrUsernameTaken)
	short := "ab"
	_, err = svc.UpdateProfile(ctx, m.users["u1"], ProfileUpdate{Username: &short})
	assert.ErrorIs(t, err, ErrInvalidInput)

	same := "ADA@example.com"
	_, err = svc.UpdateProfile(ctx, m.users["u1"], ProfileUpdate{Email: &same})
	assert.NoError(t, err, "changing only the case of your own email")

	inactive := false
	updated, err = svc.UpdateProfile(ctx, m.users["u2"], ProfileUpdate{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.False(t, m.users["u2"].IsActive)
}
