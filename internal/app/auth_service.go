package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"askcorpus/internal/model"
	"askcorpus/internal/pkg/jwtutil"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
)

const minPasswordLength = 8

// AuthService issues the identities everything else is scoped to: the
// user id carried in the JWT is the owner id that retrieval filtering,
// document access checks, and session ownership all key on.
type AuthService struct {
	users         UserStore
	jwtSecret     string
	jwtExpiration time.Duration
}

func NewAuthService(users UserStore, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		users:         users,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

type Credentials struct {
	Username string
	Email    string
	Password string
}

type AuthToken struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

func (s *AuthService) Register(input Credentials) (*AuthToken, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" || len(input.Password) < minPasswordLength {
		return nil, ErrInvalidInput
	}

	byName, err := s.users.GetByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("query user failed: %w", err)
	}
	if byName != nil {
		return nil, ErrUsernameExists
	}

	byEmail, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("query user failed: %w", err)
	}
	if byEmail != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(user); err != nil {
		return nil, fmt.Errorf("create user failed: %w", err)
	}

	return s.issueToken(user)
}

func (s *AuthService) Login(input Credentials) (*AuthToken, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.users.GetByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("query user failed: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredential
	}

	return s.issueToken(user)
}

func (s *AuthService) GetUserByID(id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	user, err := s.users.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("query user failed: %w", err)
	}
	return user, nil
}

func (s *AuthService) issueToken(user *model.User) (*AuthToken, error) {
	expiresAt := time.Now().Add(s.jwtExpiration)
	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthToken{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
