package ops

import (
	"context"

	"go.uber.org/zap"

	"github.com/hpungsan/wardrobe/internal/errors"
	"github.com/hpungsan/wardrobe/internal/extract"
	"github.com/hpungsan/wardrobe/internal/host"
	"github.com/hpungsan/wardrobe/internal/metrics"
	"github.com/hpungsan/wardrobe/internal/outfit"
)

// ExtractInput contains parameters for the Extract operation.
type ExtractInput struct {
	Owner   OwnerInput
	Session host.Session
}

// ExtractOutput is the advisory result of one extraction. Suggestion is nil
// when there is nothing to suggest.
type ExtractOutput struct {
	Owner      string            `json:"owner"`
	Ticket     string            `json:"ticket"`
	Outcome    string            `json:"outcome"`
	Suggestion map[string]string `json:"suggestion"`
}

// Extract asks the backend for updates to one owner and posts the result to
// the board. Backend failures are not errors; only invalid input and storage
// failures are. Persisted outfit values are never changed.
func Extract(ctx context.Context, d *Deps, input ExtractInput) (*ExtractOutput, error) {
	owner, err := ParseOwner(input.Owner, input.Session)
	if err != nil {
		return nil, err
	}

	req, err := prepare(ctx, d, owner, input.Session)
	if err != nil {
		return nil, err
	}
	return runExtraction(ctx, d, req), nil
}

// prepare resolves the baseline for owner, creating a new character on
// first reference.
func prepare(ctx context.Context, d *Deps, owner outfit.Owner, session host.Session) (extract.Request, error) {
	if owner.Kind == outfit.KindChar {
		snap, err := d.Store.Snapshot(ctx)
		if err != nil {
			return extract.Request{}, err
		}
		if _, ok := snap.LookupOwner(owner); !ok {
			err := d.Store.Update(ctx, func(s *outfit.State) error {
				s.EnsureCharacter(owner.CharacterID)
				return nil
			})
			if err != nil {
				return extract.Request{}, err
			}
		}
	}

	snap, err := d.Store.Snapshot(ctx)
	if err != nil {
		return extract.Request{}, err
	}
	baseline, err := snap.Owner(owner)
	if err != nil {
		return extract.Request{}, errors.NewInvalidRequest(err.Error())
	}

	return extract.Request{
		Owner:      owner,
		Baseline:   baseline,
		Schema:     snap.Schema(),
		Session:    scopeSession(owner, session),
		Template:   snap.PromptTemplate,
		ChatWindow: d.chatWindow(),
	}, nil
}

// scopeSession drops a character card that belongs to a different character
// than the one being addressed.
func scopeSession(owner outfit.Owner, session host.Session) host.Session {
	if owner.Kind == outfit.KindChar && session.Character != nil && session.Character.ID != "" &&
		session.Character.ID != owner.CharacterID {
		session.Character = nil
	}
	return session
}

func runExtraction(ctx context.Context, d *Deps, req extract.Request) *ExtractOutput {
	board := d.Board
	if board == nil {
		board = NewBoard()
	}
	ticket := board.Issue(req.Owner)
	log := d.logger().With(zap.String("owner", req.Owner.String()), zap.String("ticket", ticket.String()))

	engine := d.Engine
	if engine == nil {
		engine = extract.NewEngine(nil, d.Logger)
	}
	res := engine.Extract(ctx, req)

	out := &ExtractOutput{
		Owner:      req.Owner.String(),
		Ticket:     ticket.String(),
		Outcome:    res.Outcome,
		Suggestion: suggestionMap(res.Suggestion),
	}

	if !board.Resolve(req.Owner, ticket, res.Suggestion) {
		log.Info("extraction superseded by a newer request")
		metrics.ExtractionsTotal.WithLabelValues(string(req.Owner.Kind), metrics.OutcomeSuperseded).Inc()
		out.Outcome = metrics.OutcomeSuperseded
		out.Suggestion = nil
		return out
	}

	if res.Suggestion != nil {
		d.notify(Event{Type: EventSuggestions, Owner: out.Owner, Data: out})
	}
	log.Debug("extraction finished", zap.String("outcome", out.Outcome))
	return out
}

// PreviewInput contains parameters for the Preview operation.
type PreviewInput struct {
	Owner   OwnerInput
	Session host.Session
}

// PreviewOutput is the prompt Extract would send.
type PreviewOutput struct {
	Owner     string `json:"owner"`
	Prompt    string `json:"prompt"`
	LineCount int    `json:"line_count"`
}

// Preview builds the extraction prompt without calling the backend or saving
// anything.
func Preview(ctx context.Context, d *Deps, input PreviewInput) (*PreviewOutput, error) {
	owner, err := ParseOwner(input.Owner, input.Session)
	if err != nil {
		return nil, err
	}

	snap, err := d.Store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	baseline, ok := snap.LookupOwner(owner)
	if !ok {
		baseline = outfit.NewOwnerState(snap.Schema())
	}

	req := extract.Request{
		Owner:      owner,
		Baseline:   baseline,
		Schema:     snap.Schema(),
		Session:    scopeSession(owner, input.Session),
		Template:   snap.PromptTemplate,
		ChatWindow: d.chatWindow(),
	}
	return &PreviewOutput{
		Owner:     owner.String(),
		Prompt:    extract.BuildPrompt(req),
		LineCount: len(snap.Schema().Keys()) + 1,
	}, nil
}
