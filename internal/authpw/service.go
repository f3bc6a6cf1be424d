// Package authpw registers users and checks their passwords.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"collab/api/internal/store"
	"collab/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("incorrect username/email or password")
	ErrInactiveUser       = errors.New("inactive user")
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 8
	maxPasswordLen = 100
)

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	GetUserByLogin(ctx context.Context, login string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	UpdateUser(ctx context.Context, user store.User) (store.User, error)
}

type Service struct {
	store UserStore
	cost  int
}

func NewService(userStore UserStore) *Service {
	return &Service{store: userStore, cost: bcrypt.DefaultCost}
}

// WithCost returns a copy that hashes new passwords at the given bcrypt cost.
func (s *Service) WithCost(cost int) *Service {
	return &Service{store: s.store, cost: cost}
}

type RegisterRequest struct {
	Email    string
	Username string
	FullName string
	Password string
}

func validateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil || strings.ContainsAny(email, "<> ") {
		return fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	return nil
}

func validateUsername(username string) error {
	if n := len(username); n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("%w: username must be %d-%d characters", ErrInvalidInput, minUsernameLen, maxUsernameLen)
	}
	return nil
}

func (r RegisterRequest) validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if err := validateUsername(r.Username); err != nil {
		return err
	}
	if n := len(r.Password); n < minPasswordLen || n > maxPasswordLen {
		return fmt.Errorf("%w: password must be %d-%d characters", ErrInvalidInput, minPasswordLen, maxPasswordLen)
	}
	return nil
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := req.validate(); err != nil {
		return store.User{}, err
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return store.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("check email: %w", err)
	}
	if _, err := s.store.GetUserByUsername(ctx, req.Username); err == nil {
		return store.User{}, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("check username: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, store.User{
		ID:           util.NewUUID(),
		Email:        req.Email,
		Username:     req.Username,
		FullName:     req.FullName,
		PasswordHash: string(hash),
		IsActive:     true,
	})
	if err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, store.ErrDuplicate) {
			return store.User{}, ErrEmailTaken
		}
		return store.User{}, err
	}
	return user, nil
}

// Authenticate accepts either a username or an email as login.
func (s *Service) Authenticate(ctx context.Context, login, password string) (store.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return store.User{}, ErrInactiveUser
	}
	return user, nil
}

// ProfileUpdate carries the fields a user may change on their own account.
// Nil fields are left as they are. IsActive is only set by administrators.
type ProfileUpdate struct {
	Email    *string
	Username *string
	FullName *string
	IsActive *bool
}

func (s *Service) UpdateProfile(ctx context.Context, user store.User, update ProfileUpdate) (store.User, error) {
	if update.Email != nil {
		email := strings.TrimSpace(*update.Email)
		if err := validateEmail(email); err != nil {
			return store.User{}, err
		}
		if !strings.EqualFold(email, user.Email) {
			if existing, err := s.store.GetUserByEmail(ctx, email); err == nil && existing.ID != user.ID {
				return store.User{}, ErrEmailTaken
			} else if err != nil && !errors.Is(err, store.ErrNotFound) {
				return store.User{}, fmt.Errorf("check email: %w", err)
			}
		}
		user.Email = email
	}
	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if err := validateUsername(username); err != nil {
			return store.User{}, err
		}
		if username != user.Username {
			if existing, err := s.store.GetUserByUsername(ctx, username); err == nil && existing.ID != user.ID {
				return store.User{}, ErrUsernameTaken
			} else if err != nil && !errors.Is(err, store.ErrNotFound) {
				return store.User{}, fmt.Errorf("check username: %w", err)
			}
		}
		user.Username = username
	}
	if update.FullName != nil {
		user.FullName = strings.TrimSpace(*update.FullName)
	}
	if update.IsActive != nil {
		user.IsActive = *update.IsActive
	}

	updated, err := s.store.UpdateUser(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.User{}, ErrUsernameTaken
		}
		return store.User{}, err
	}
	return updated, nil
}
