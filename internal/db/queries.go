package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hpungsan/wardrobe/internal/errors"
	"github.com/hpungsan/wardrobe/internal/outfit"
)

// LoadState reads the persisted record. It returns (nil, nil) when nothing
// has been saved yet. Missing schema keys are not backfilled here.
func LoadState(ctx context.Context, db *sql.DB) (*outfit.State, error) {
	var (
		customJSON string
		autoUpdate int
		template   string
	)
	err := db.QueryRowContext(ctx, `
		SELECT custom_fields_json, auto_update, prompt_template
		FROM settings
		WHERE id = 1
	`).Scan(&customJSON, &autoUpdate, &template)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	s := &outfit.State{
		User:           outfit.OwnerState{Outfit: outfit.Record{}},
		Characters:     make(map[string]*outfit.OwnerState),
		AutoUpdate:     autoUpdate != 0,
		PromptTemplate: template,
	}
	if err := json.Unmarshal([]byte(customJSON), &s.CustomFields); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("decode custom fields: %w", err))
	}

	rows, err := db.QueryContext(ctx, `
		SELECT owner_key, kind, character_id, location, outfit_json
		FROM owners
		ORDER BY owner_key
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key, kind, location, outfitJSON string
			characterID                     sql.NullString
		)
		if err := rows.Scan(&key, &kind, &characterID, &location, &outfitJSON); err != nil {
			return nil, errors.NewInternal(err)
		}

		st := &outfit.OwnerState{Location: location}
		if err := json.Unmarshal([]byte(outfitJSON), &st.Outfit); err != nil {
			return nil, errors.NewInternal(fmt.Errorf("decode outfit for %s: %w", key, err))
		}

		switch outfit.Kind(kind) {
		case outfit.KindUser:
			s.User = *st
		case outfit.KindChar:
			if characterID.Valid && characterID.String != "" {
				s.Characters[characterID.String] = st
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return s, nil
}

// SaveState writes the whole record in one transaction: the settings row,
// every owner row, and deletion of owner rows no longer in the record.
func SaveState(ctx context.Context, db *sql.DB, s *outfit.State) (err error) {
	customJSON, err := json.Marshal(nonNil(s.CustomFields))
	if err != nil {
		return errors.NewInternal(err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().Unix()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO settings (id, custom_fields_json, auto_update, prompt_template, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			custom_fields_json = excluded.custom_fields_json,
			auto_update = excluded.auto_update,
			prompt_template = excluded.prompt_template,
			updated_at = excluded.updated_at
	`, string(customJSON), boolToInt(s.AutoUpdate), s.PromptTemplate, now)
	if err != nil {
		return errors.NewInternal(err)
	}

	// Owners absent from the record are dropped by rewriting the whole set.
	if _, err = tx.ExecContext(ctx, `DELETE FROM owners`); err != nil {
		return errors.NewInternal(err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO owners (owner_key, kind, character_id, location, outfit_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	if err = insertOwner(ctx, stmt, outfit.User, &s.User, now); err != nil {
		return err
	}
	for _, id := range s.CharacterIDs() {
		cs := s.Characters[id]
		if cs == nil {
			continue
		}
		if err = insertOwner(ctx, stmt, outfit.Character(id), cs, now); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func insertOwner(ctx context.Context, stmt *sql.Stmt, o outfit.Owner, st *outfit.OwnerState, now int64) error {
	data, err := json.Marshal(st.Outfit)
	if err != nil {
		return errors.NewInternal(err)
	}
	var characterID sql.NullString
	if o.Kind == outfit.KindChar {
		characterID = sql.NullString{String: o.CharacterID, Valid: true}
	}
	if _, err := stmt.ExecContext(ctx, o.String(), string(o.Kind), characterID, st.Location, string(data), now); err != nil {
		return errors.NewInternal(fmt.Errorf("save %s: %w", o, err))
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
