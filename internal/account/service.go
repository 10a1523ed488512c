// Package account implements registration, login and profile lookup on top
// of the user store, the password hasher and the token manager.
package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/hongminglow/aria-characters/internal/auth"
	"github.com/hongminglow/aria-characters/internal/models"
	"github.com/hongminglow/aria-characters/internal/storage"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// MaxPasswordBytes is the bcrypt input limit.
const MaxPasswordBytes = 72

var (
	// ErrInvalidInput marks malformed or missing request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned for both unknown emails and wrong
	// passwords so callers cannot tell which emails are registered.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNotFound is returned when an identity no longer resolves to a user.
	ErrNotFound = errors.New("user not found")
)

// RegisterInput carries the registration form.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

// Session is the result of a successful register or login.
type Session struct {
	User  models.User
	Token string
}

// Service coordinates account flows.
type Service struct {
	users  storage.UserStore
	hasher auth.PasswordHasher
	tokens *auth.TokenManager
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService constructs the account service.
func NewService(users storage.UserStore, hasher auth.PasswordHasher, tokens *auth.TokenManager) *Service {
	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		now:    time.Now,
	}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user and issues a token for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	email := NormalizeEmail(in.Email)
	if err := validateRegistration(email, in.Password); err != nil {
		return Session{}, err
	}

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return Session{}, ErrEmailTaken
	case !errors.Is(err, storage.ErrNotFound):
		return Session{}, oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "check email uniqueness").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	now := s.now().UTC()
	user, err := s.users.CreateUser(ctx, models.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return Session{}, ErrEmailTaken
		}
		return Session{}, oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	return s.issue(user)
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	user, lookupErr := s.users.FindByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, storage.ErrNotFound) {
		return Session{}, oops.Code("ACCOUNT_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}
	exists := lookupErr == nil

	// Unknown emails are checked against a throwaway hash so both failure
	// paths cost one hash comparison.
	target := user.PasswordHash
	if !exists {
		target = s.dummy()
	}
	valid, err := s.hasher.Verify(password, target)
	if err != nil {
		if !exists {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, oops.Code("ACCOUNT_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !exists || !valid {
		return Session{}, ErrInvalidCredentials
	}

	return s.issue(user)
}

// Me returns the caller's stored user.
func (s *Service) Me(ctx context.Context, id auth.Identity) (models.User, error) {
	user, err := s.users.FindByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, oops.Code("ACCOUNT_ME_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}
	return user, nil
}

func (s *Service) issue(user models.User) (Session, error) {
	token, err := s.tokens.Generate(user)
	if err != nil {
		return Session{}, oops.Code("ACCOUNT_TOKEN_FAILED").
			With("operation", "generate token").
			Wrap(err)
	}
	return Session{User: user, Token: token}, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		buf := make([]byte, 24)
		_, _ = rand.Read(buf)
		hash, err := s.hasher.Hash(base64.RawStdEncoding.EncodeToString(buf))
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func validateRegistration(email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: email must contain @", ErrInvalidInput)
	}
	if utf8.RuneCountInString(password) < MinPasswordLength || !utf8.ValidString(password) {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	// bcrypt only looks at the first 72 bytes.
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, MaxPasswordBytes)
	}
	return nil
}
