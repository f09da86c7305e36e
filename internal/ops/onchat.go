package ops

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/wardrobe/internal/extract"
	"github.com/hpungsan/wardrobe/internal/host"
	"github.com/hpungsan/wardrobe/internal/outfit"
)

// OnChatInput carries the session after a chat update.
type OnChatInput struct {
	Session host.Session
}

// OnChatOutput lists the extractions started by a chat update. Skipped is
// true when auto-update is off.
type OnChatOutput struct {
	Skipped bool             `json:"skipped"`
	Results []*ExtractOutput `json:"results,omitempty"`
}

// OnChat reacts to a chat update. When auto-update is enabled it extracts for
// the user and, if the session has an active character, for that character,
// concurrently. Results only go to the board; nothing is applied.
func OnChat(ctx context.Context, d *Deps, input OnChatInput) (*OnChatOutput, error) {
	snap, err := d.Store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.AutoUpdate {
		return &OnChatOutput{Skipped: true}, nil
	}

	owners := []outfit.Owner{outfit.User}
	if owner, err := ParseOwner(OwnerInput{Kind: string(outfit.KindChar)}, input.Session); err == nil {
		owners = append(owners, owner)
	}

	// Baselines are prepared first so that a new character is created once,
	// before any backend call is in flight.
	reqs := make([]extract.Request, 0, len(owners))
	for _, o := range owners {
		req, err := prepare(ctx, d, o, input.Session)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}

	out := &OnChatOutput{Results: make([]*ExtractOutput, len(reqs))}
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			out.Results[i] = runExtraction(gctx, d, req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.logger().Debug("chat update handled", zap.Int("owners", len(reqs)))
	return out, nil
}
