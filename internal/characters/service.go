// Package characters implements the owner-scoped character sheet operations.
// Every operation takes the authenticated caller as the owner key; the store
// filters on owner and id together so foreign characters look absent.
package characters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/hongminglow/aria-characters/internal/models"
	"github.com/hongminglow/aria-characters/internal/storage"
)

var (
	// ErrNotFound covers both missing characters and characters owned by someone else.
	ErrNotFound = errors.New("character not found")
	// ErrInvalidPayload marks a body that is not a JSON object.
	ErrInvalidPayload = errors.New("invalid character payload")
)

// serverKeys are controlled by the server and dropped from client payloads.
var serverKeys = []string{"id", "_id", "__v", "owner", "user", "schemaVersion", "createdAt", "updatedAt"}

// Service exposes CRUD over characters for a single owner at a time.
type Service struct {
	store     storage.CharacterStore
	validator *Validator
	now       func() time.Time
}

// NewService constructs the character service.
func NewService(store storage.CharacterStore, validator *Validator) *Service {
	return &Service{store: store, validator: validator, now: time.Now}
}

// WithClock overrides the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create stores a new character bound to ownerID, whatever owner the payload claims.
func (s *Service) Create(ctx context.Context, ownerID string, payload []byte) (models.Character, error) {
	fields, err := s.prepare(payload)
	if err != nil {
		return models.Character{}, err
	}

	sheet, err := overlayDefaults(fields)
	if err != nil {
		return models.Character{}, err
	}

	now := s.now().UTC()
	c := models.Character{
		ID:            uuid.NewString(),
		Owner:         ownerID,
		SchemaVersion: models.CharacterSchemaVersion,
		Sheet:         sheet,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateCharacter(ctx, c); err != nil {
		return models.Character{}, oops.Code("CHARACTER_CREATE_FAILED").
			With("owner_id", ownerID).
			Wrap(err)
	}
	return c, nil
}

// List returns the owner's characters, most recent first.
func (s *Service) List(ctx context.Context, ownerID string) ([]models.Character, error) {
	list, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, oops.Code("CHARACTER_LIST_FAILED").
			With("owner_id", ownerID).
			Wrap(err)
	}
	return list, nil
}

// Get returns one character of the owner.
func (s *Service) Get(ctx context.Context, ownerID, id string) (models.Character, error) {
	if !validID(id) {
		return models.Character{}, ErrNotFound
	}
	c, err := s.store.GetByOwner(ctx, ownerID, id)
	if err != nil {
		return models.Character{}, translate(err, "get", ownerID, id)
	}
	return c, nil
}

// Update replaces the submitted top-level fields of one of the owner's
// characters. The owner is never taken from the payload.
func (s *Service) Update(ctx context.Context, ownerID, id string, payload []byte) (models.Character, error) {
	if !validID(id) {
		return models.Character{}, ErrNotFound
	}
	fields, err := s.prepare(payload)
	if err != nil {
		return models.Character{}, err
	}

	// Decoding onto defaults gives nested objects such as meta their
	// defaults for any sub-key the client left out.
	sheet, err := overlayDefaults(fields)
	if err != nil {
		return models.Character{}, err
	}
	normalized, err := toFields(sheet)
	if err != nil {
		return models.Character{}, err
	}
	patch := make(map[string]json.RawMessage, len(fields))
	for k := range fields {
		if v, ok := normalized[k]; ok {
			patch[k] = v
		}
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return models.Character{}, oops.Code("CHARACTER_UPDATE_FAILED").
			With("operation", "marshal patch").
			Wrap(err)
	}

	c, err := s.store.UpdateByOwner(ctx, ownerID, id, raw, s.now().UTC())
	if err != nil {
		return models.Character{}, translate(err, "update", ownerID, id)
	}
	return c, nil
}

// Delete removes one of the owner's characters.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	if err := s.store.DeleteByOwner(ctx, ownerID, id); err != nil {
		return translate(err, "delete", ownerID, id)
	}
	return nil
}

// prepare decodes the payload, strips server-controlled keys and validates
// what is left against the sheet schema.
func (s *Service) prepare(payload []byte) (map[string]json.RawMessage, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidPayload)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidPayload)
	}
	for _, k := range serverKeys {
		delete(fields, k)
	}

	clean, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := s.validator.Validate(clean); err != nil {
		return nil, err
	}
	return fields, nil
}

func overlayDefaults(fields map[string]json.RawMessage) (models.Sheet, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return models.Sheet{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	sheet := models.DefaultSheet()
	if err := json.Unmarshal(raw, &sheet); err != nil {
		return models.Sheet{}, &ValidationError{Details: []string{err.Error()}}
	}
	sheet.ApplyDefaults()
	return sheet, nil
}

func toFields(sheet models.Sheet) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(sheet)
	if err != nil {
		return nil, err
	}
	out := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func translate(err error, operation, ownerID, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return oops.Code("CHARACTER_" + strings.ToUpper(operation) + "_FAILED").
		With("owner_id", ownerID).
		With("id", id).
		Wrap(err)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
