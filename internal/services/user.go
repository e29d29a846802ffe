package services

import (
	"context"
	"errors"
	"strings"

	"github.com/healthtrack/apiserver/internal/store"
	"github.com/healthtrack/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password too short")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrKeyTooShort        = errors.New("api key too short")
)

const minPasswordLen = 6

// minAPIKeyLen rejects obviously-too-short keys. This is a placeholder
// length heuristic, not key-format validation.
const minAPIKeyLen = 30

// dummyHash is compared against when the email does not exist, so that
// authentication cost does not reveal whether an account exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("healthtrack-dummy-password"), bcrypt.DefaultCost)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetAPIKey(ctx context.Context, userID, key string) error
}

// UserService encapsulates credential use-cases: registration, login, and the
// per-user upstream API key.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// CreateUser registers a new account. The plaintext password is hashed here
// and never stored or logged. Email uniqueness is enforced atomically by the
// repository; a collision surfaces as store.ErrDuplicateEmail.
func (s *UserService) CreateUser(ctx context.Context, email, password, name string) (types.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return types.User{}, ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return types.User{}, ErrWeakPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	return s.repo.Create(ctx, types.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hashed),
	})
}

// Authenticate verifies an email/password pair. When the email is unknown a
// dummy hash is still compared so the operation takes comparable time either
// way; both outcomes report ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// SetAPIKey stores or replaces the user's upstream API key. Length is
// enforced here because the client is an untrusted boundary.
func (s *UserService) SetAPIKey(ctx context.Context, userID, key string) error {
	key = strings.TrimSpace(key)
	if len(key) < minAPIKeyLen {
		return ErrKeyTooShort
	}
	return s.repo.SetAPIKey(ctx, userID, key)
}

// GetUser fetches a user by id.
func (s *UserService) GetUser(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}
