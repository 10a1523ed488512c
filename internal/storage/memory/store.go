package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hongminglow/aria-characters/internal/models"
	"github.com/hongminglow/aria-characters/internal/storage"
)

// Ensure Store implements the interface.
var _ storage.Store = (*Store)(nil)

type characterEntry struct {
	seq       int64
	character models.Character
}

// Store is an in-memory implementation of storage.Store, used for local
// development and tests. It applies the same owner filtering and ordering
// rules as the Postgres store.
type Store struct {
	mu sync.RWMutex

	users      map[string]models.User
	emailIndex map[string]string
	characters map[string]*characterEntry
	seq        int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:      make(map[string]models.User),
		emailIndex: make(map[string]string),
		characters: make(map[string]*characterEntry),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

// User operations

func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emailIndex[user.Email]; ok {
		return models.User{}, storage.ErrAlreadyExists
	}
	if _, ok := s.users[user.ID]; ok {
		return models.User{}, storage.ErrAlreadyExists
	}
	s.users[user.ID] = user
	s.emailIndex[user.Email] = user.ID
	return user, nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emailIndex[email]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return user, nil
}

// DeleteUser removes a user and the characters it owns. It is not part of
// storage.Store: no route deletes accounts, and tests use it to simulate an
// account removed while one of its tokens is still valid.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.users, id)
	delete(s.emailIndex, user.Email)
	for cid, entry := range s.characters {
		if entry.character.Owner == id {
			delete(s.characters, cid)
		}
	}
	return nil
}

// Character operations

func (s *Store) CreateCharacter(_ context.Context, c models.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.characters[c.ID]; ok {
		return storage.ErrAlreadyExists
	}
	s.seq++
	s.characters[c.ID] = &characterEntry{seq: s.seq, character: clone(c)}
	return nil
}

func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]models.Character, error) {
	s.mu.RLock()
	entries := make([]*characterEntry, 0)
	for _, entry := range s.characters {
		if entry.character.Owner == ownerID {
			entries = append(entries, entry)
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.character.CreatedAt.Equal(b.character.CreatedAt) {
			return a.character.CreatedAt.After(b.character.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]models.Character, 0, len(entries))
	for _, entry := range entries {
		out = append(out, clone(entry.character))
	}
	return out, nil
}

func (s *Store) GetByOwner(_ context.Context, ownerID, id string) (models.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.characters[id]
	if !ok || entry.character.Owner != ownerID {
		return models.Character{}, storage.ErrNotFound
	}
	return clone(entry.character), nil
}

func (s *Store) UpdateByOwner(_ context.Context, ownerID, id string, patch []byte, updatedAt time.Time) (models.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.characters[id]
	if !ok || entry.character.Owner != ownerID {
		return models.Character{}, storage.ErrNotFound
	}

	merged, err := mergeSheet(entry.character.Sheet, patch)
	if err != nil {
		return models.Character{}, err
	}
	entry.character.Sheet = merged
	entry.character.UpdatedAt = updatedAt
	return clone(entry.character), nil
}

func (s *Store) DeleteByOwner(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.characters[id]
	if !ok || entry.character.Owner != ownerID {
		return storage.ErrNotFound
	}
	delete(s.characters, id)
	return nil
}

// mergeSheet replaces the top-level keys of current present in patch, the
// same semantics as jsonb concatenation.
func mergeSheet(current models.Sheet, patch []byte) (models.Sheet, error) {
	base, err := json.Marshal(current)
	if err != nil {
		return models.Sheet{}, fmt.Errorf("marshal sheet: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return models.Sheet{}, fmt.Errorf("decode sheet: %w", err)
	}
	changes := map[string]json.RawMessage{}
	if err := json.Unmarshal(patch, &changes); err != nil {
		return models.Sheet{}, fmt.Errorf("decode patch: %w", err)
	}
	for k, v := range changes {
		fields[k] = v
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return models.Sheet{}, fmt.Errorf("marshal merged sheet: %w", err)
	}
	var merged models.Sheet
	if err := json.Unmarshal(raw, &merged); err != nil {
		return models.Sheet{}, fmt.Errorf("decode merged sheet: %w", err)
	}
	merged.ApplyDefaults()
	return merged, nil
}

// clone deep-copies a character through JSON so callers cannot mutate stored state.
func clone(c models.Character) models.Character {
	raw, err := json.Marshal(c.Sheet)
	if err != nil {
		return c
	}
	var sheet models.Sheet
	if err := json.Unmarshal(raw, &sheet); err != nil {
		return c
	}
	sheet.ApplyDefaults()
	c.Sheet = sheet
	return c
}
