package ops

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/wardrobe/internal/errors"
	"github.com/hpungsan/wardrobe/internal/host"
	"github.com/hpungsan/wardrobe/internal/metrics"
	"github.com/hpungsan/wardrobe/internal/outfit"
)

// ApplyInput contains parameters for the Apply operation.
type ApplyInput struct {
	Owner   OwnerInput
	Session host.Session

	// Manual holds values typed by the user, keyed by field key or label.
	Manual map[string]string

	// ManualLocation replaces the location when set.
	ManualLocation *string

	// Suggestions are explicit suggested values, keyed like Manual. The owner's
	// location sentinel key carries a location suggestion.
	Suggestions map[string]string

	// UsePending merges the owner's pending board suggestion under Suggestions.
	UsePending bool
}

// ApplyOutput reports what changed.
type ApplyOutput struct {
	OwnerView
	Changed []string `json:"changed"`
}

// Apply merges suggestions and manual edits into one owner's persisted state.
// For every schema field the suggestion wins when non-empty, else the manual
// value, else the field is left alone; the location follows the same rule.
// Unknown keys are rejected before anything is written. The pending
// suggestion seen when Apply started is cleared; one posted while Apply ran
// is kept.
func Apply(ctx context.Context, d *Deps, input ApplyInput) (*ApplyOutput, error) {
	owner, err := ParseOwner(input.Owner, input.Session)
	if err != nil {
		return nil, err
	}

	snap, err := d.Store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	schema := snap.Schema()
	locKey := outfit.LocationKey(owner.Kind)

	manual, manualLoc, err := resolveKeys(input.Manual, owner.Kind, schema)
	if err != nil {
		return nil, err
	}
	if input.ManualLocation != nil {
		loc := strings.TrimSpace(*input.ManualLocation)
		manualLoc = &loc
	}

	sugg := outfit.Suggestion{}
	var seen string
	if d.Board != nil {
		if p, ok := d.Board.Get(owner); ok {
			seen = p.Ticket
			if input.UsePending {
				for k, v := range p.Suggestion {
					sugg[k] = v
				}
			}
		}
	}
	explicit, explicitLoc, err := resolveKeys(input.Suggestions, owner.Kind, schema)
	if err != nil {
		return nil, err
	}
	for k, v := range explicit {
		sugg[k] = v
	}
	if explicitLoc != nil {
		sugg[locKey] = *explicitLoc
	}

	var changed []string
	var view OwnerView
	err = d.Store.Update(ctx, func(s *outfit.State) error {
		st, err := s.Owner(owner)
		if err != nil {
			return errors.NewInvalidRequest(err.Error())
		}

		for _, k := range schema.Keys() {
			next, ok := effective(sugg, manual, k)
			if !ok {
				continue
			}
			if next == "" {
				next = outfit.Unknown
			}
			if st.Outfit[k] != next {
				st.Outfit[k] = next
				changed = append(changed, string(k))
			}
		}

		loc, ok := effective(sugg, nil, locKey)
		if !ok && manualLoc != nil {
			loc, ok = *manualLoc, true
		}
		if ok && st.Location != loc {
			st.Location = loc
			changed = append(changed, string(locKey))
		}

		view = buildView(owner, st, schema, host.ResolveNames(input.Session), nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if d.Board != nil && seen != "" {
		d.Board.ClearTicket(owner, seen)
	}
	metrics.AppliesTotal.WithLabelValues(string(owner.Kind)).Inc()
	d.logger().Info("outfit applied", zap.String("owner", owner.String()), zap.Strings("fields", changed))
	d.notify(Event{Type: EventStateChanged, Owner: owner.String(), Data: view})

	sort.Strings(changed)
	return &ApplyOutput{OwnerView: view, Changed: changed}, nil
}

// effective picks the suggestion when it is non-empty after trimming, else
// the manual value when one was given.
func effective(sugg outfit.Suggestion, manual map[outfit.Field]string, k outfit.Field) (string, bool) {
	if v := strings.TrimSpace(sugg[k]); v != "" {
		return v, true
	}
	if v, ok := manual[k]; ok {
		return strings.TrimSpace(v), true
	}
	return "", false
}

// resolveKeys maps request keys (raw keys or labels) to schema fields. The
// owner's location key is returned separately. Any other key is rejected.
func resolveKeys(in map[string]string, kind outfit.Kind, schema outfit.Schema) (map[outfit.Field]string, *string, error) {
	out := make(map[outfit.Field]string, len(in))
	var loc *string

	// Sorted so the first unknown key reported is stable.
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, raw := range keys {
		v := in[raw]
		f := outfit.Field(strings.TrimSpace(raw))
		if f == outfit.LocationKey(kind) {
			loc = &v
			continue
		}
		if !schema.Has(f) {
			var ok bool
			f, ok = outfit.NormalizeFor(raw, kind, schema)
			if !ok {
				return nil, nil, errors.NewUnknownField(raw)
			}
			if f.IsLocation() {
				loc = &v
				continue
			}
		}
		out[f] = v
	}
	return out, loc, nil
}
