package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hongminglow/aria-characters/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// UserStore captures persistence operations needed by the account service.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
}

// CharacterStore persists character sheets. Every method except Create
// filters on the owner and the id together, so a character owned by someone
// else is reported as ErrNotFound.
type CharacterStore interface {
	CreateCharacter(ctx context.Context, character models.Character) error
	ListByOwner(ctx context.Context, ownerID string) ([]models.Character, error)
	GetByOwner(ctx context.Context, ownerID, id string) (models.Character, error)
	// UpdateByOwner replaces the top-level sheet keys present in patch, a JSON
	// object, and returns the stored result.
	UpdateByOwner(ctx context.Context, ownerID, id string, patch []byte, updatedAt time.Time) (models.Character, error)
	DeleteByOwner(ctx context.Context, ownerID, id string) error
}

// Store is a backend able to serve every repository plus lifecycle hooks.
type Store interface {
	UserStore
	CharacterStore
	Ping(ctx context.Context) error
	Close()
}
