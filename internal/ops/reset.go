package ops

import (
	"context"

	"go.uber.org/zap"

	"github.com/hpungsan/wardrobe/internal/host"
	"github.com/hpungsan/wardrobe/internal/outfit"
)

// ResetCharacterInput contains parameters for the ResetCharacter operation.
type ResetCharacterInput struct {
	CharacterID string
	Session     host.Session
}

// ResetCharacter replaces a character's outfit and location with defaults and
// drops its pending suggestion. The character id defaults to the session's
// active character.
func ResetCharacter(ctx context.Context, d *Deps, input ResetCharacterInput) (*OwnerView, error) {
	owner, err := ParseOwner(OwnerInput{Kind: string(outfit.KindChar), CharacterID: input.CharacterID}, input.Session)
	if err != nil {
		return nil, err
	}

	var view OwnerView
	err = d.Store.Update(ctx, func(s *outfit.State) error {
		st := s.ResetCharacter(owner.CharacterID)
		view = buildView(owner, st, s.Schema(), host.ResolveNames(input.Session), nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if d.Board != nil {
		d.Board.Clear(owner)
	}
	d.logger().Info("character reset", zap.String("character_id", owner.CharacterID))
	d.notify(Event{Type: EventStateChanged, Owner: owner.String(), Data: view})
	return &view, nil
}
