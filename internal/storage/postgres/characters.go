package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/hongminglow/aria-characters/internal/models"
	"github.com/hongminglow/aria-characters/internal/storage"
)

const characterColumns = `id::text, owner_id::text, schema_version, body, created_at, updated_at`

// CreateCharacter inserts a character with its owner already bound.
func (s *Store) CreateCharacter(ctx context.Context, c models.Character) error {
	body, err := json.Marshal(c.Sheet)
	if err != nil {
		return oops.Code("CHARACTER_CREATE_FAILED").
			With("operation", "marshal sheet").
			Wrap(err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO characters (id, owner_id, schema_version, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.Owner, c.SchemaVersion, body, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return oops.Code("CHARACTER_CREATE_FAILED").
			With("operation", "insert character").
			With("owner_id", c.Owner).
			Wrap(err)
	}
	return nil
}

// ListByOwner returns the owner's characters, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]models.Character, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+characterColumns+`
		FROM characters
		WHERE owner_id = $1
		ORDER BY created_at DESC, seq DESC
	`, ownerID)
	if err != nil {
		return nil, oops.Code("CHARACTER_LIST_FAILED").
			With("operation", "list characters").
			With("owner_id", ownerID).
			Wrap(err)
	}
	defer rows.Close()

	characters := make([]models.Character, 0)
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, oops.Code("CHARACTER_LIST_FAILED").
				With("operation", "scan character row").
				Wrap(err)
		}
		characters = append(characters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("CHARACTER_LIST_FAILED").
			With("operation", "iterate characters").
			Wrap(err)
	}
	return characters, nil
}

// GetByOwner fetches one character matching both id and owner.
func (s *Store) GetByOwner(ctx context.Context, ownerID, id string) (models.Character, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+characterColumns+`
		FROM characters
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)

	c, err := scanCharacter(row)
	if err != nil {
		return models.Character{}, characterLookupError(err, "get character", ownerID, id)
	}
	return c, nil
}

// UpdateByOwner merges patch into the stored body in a single statement.
func (s *Store) UpdateByOwner(ctx context.Context, ownerID, id string, patch []byte, updatedAt time.Time) (models.Character, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE characters
		SET body = body || $3::jsonb, updated_at = $4
		WHERE id = $1 AND owner_id = $2
		RETURNING `+characterColumns,
		id, ownerID, patch, updatedAt)

	c, err := scanCharacter(row)
	if err != nil {
		return models.Character{}, characterLookupError(err, "update character", ownerID, id)
	}
	return c, nil
}

// DeleteByOwner removes a character matching both id and owner.
func (s *Store) DeleteByOwner(ctx context.Context, ownerID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM characters WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return oops.Code("CHARACTER_DELETE_FAILED").
			With("operation", "delete character").
			With("owner_id", ownerID).
			With("id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("CHARACTER_NOT_FOUND").
			With("owner_id", ownerID).
			With("id", id).
			Wrap(storage.ErrNotFound)
	}
	return nil
}

func characterLookupError(err error, operation, ownerID, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("CHARACTER_NOT_FOUND").
			With("owner_id", ownerID).
			With("id", id).
			Wrap(storage.ErrNotFound)
	}
	return oops.Code("CHARACTER_QUERY_FAILED").
		With("operation", operation).
		With("owner_id", ownerID).
		With("id", id).
		Wrap(err)
}

func scanCharacter(row pgx.Row) (models.Character, error) {
	var (
		c    models.Character
		body []byte
	)
	if err := row.Scan(&c.ID, &c.Owner, &c.SchemaVersion, &body, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return models.Character{}, err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &c.Sheet); err != nil {
			return models.Character{}, err
		}
	}
	c.Sheet.ApplyDefaults()
	return c, nil
}
