package ops

import (
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/wardrobe/internal/config"
	"github.com/hpungsan/wardrobe/internal/errors"
	"github.com/hpungsan/wardrobe/internal/extract"
	"github.com/hpungsan/wardrobe/internal/host"
	"github.com/hpungsan/wardrobe/internal/outfit"
	"github.com/hpungsan/wardrobe/internal/store"
)

// Event types published to a Notifier.
const (
	EventStateChanged = "state_changed"
	EventSuggestions  = "suggestions"
	EventSettings     = "settings_changed"
)

// Event describes a change surfaces may want to push to clients.
type Event struct {
	Type  string `json:"type"`
	Owner string `json:"owner,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Notifier receives events after successful operations. Implementations must
// not block.
type Notifier interface {
	Notify(Event)
}

// Deps bundles what operations need. Engine and Notifier may be nil.
type Deps struct {
	Store    *store.Store
	Engine   *extract.Engine
	Board    *Board
	Config   *config.Config
	Logger   *zap.Logger
	Notifier Notifier
}

func (d *Deps) notify(e Event) {
	if d.Notifier != nil {
		d.Notifier.Notify(e)
	}
}

func (d *Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Deps) chatWindow() int {
	if d.Config == nil {
		return 0
	}
	return d.Config.ChatWindow
}

// OwnerInput addresses an owner from a request.
type OwnerInput struct {
	Kind        string `json:"owner"`
	CharacterID string `json:"character_id,omitempty"`
}

// ParseOwner validates an owner address. For characters the id defaults to
// the session's active character.
func ParseOwner(in OwnerInput, session host.Session) (outfit.Owner, error) {
	kind, err := outfit.ParseKind(in.Kind)
	if err != nil {
		return outfit.Owner{}, errors.NewInvalidRequest(err.Error())
	}
	if kind == outfit.KindUser {
		return outfit.User, nil
	}

	id := strings.TrimSpace(in.CharacterID)
	if id == "" {
		id = strings.TrimSpace(session.CharacterID)
	}
	if id == "" && session.Character != nil {
		id = strings.TrimSpace(session.Character.ID)
	}
	if id == "" {
		return outfit.Owner{}, errors.NewInvalidRequest("character_id is required for owner \"char\"")
	}
	return outfit.Character(id), nil
}

// FieldView is one row of an owner's outfit.
type FieldView struct {
	Key        string  `json:"key"`
	Label      string  `json:"label"`
	Value      string  `json:"value"`
	Suggestion *string `json:"suggestion,omitempty"`
}

// OwnerView is the display form of one owner.
type OwnerView struct {
	Owner              string      `json:"owner"`
	Kind               outfit.Kind `json:"kind"`
	CharacterID        string      `json:"character_id,omitempty"`
	Name               string      `json:"name"`
	Fields             []FieldView `json:"fields"`
	LocationLabel      string      `json:"location_label"`
	Location           string      `json:"location"`
	LocationSuggestion *string     `json:"location_suggestion,omitempty"`
	Ticket             string      `json:"ticket,omitempty"`
}

// buildView renders st for owner with any pending suggestion attached.
func buildView(owner outfit.Owner, st *outfit.OwnerState, schema outfit.Schema, names host.Names, pending *Pending) OwnerView {
	v := OwnerView{
		Owner:         owner.String(),
		Kind:          owner.Kind,
		CharacterID:   owner.CharacterID,
		Name:          names.User,
		LocationLabel: outfit.LocationLabel(owner.Kind),
		Location:      st.Location,
	}
	if owner.Kind == outfit.KindChar {
		v.Name = names.Character
	}

	var sugg outfit.Suggestion
	if pending != nil {
		sugg = pending.Suggestion
		v.Ticket = pending.Ticket
	}

	for _, k := range schema.Keys() {
		fv := FieldView{Key: string(k), Label: outfit.Label(k), Value: st.Outfit[k]}
		if fv.Value == "" {
			fv.Value = outfit.Unknown
		}
		if s, ok := sugg[k]; ok {
			fv.Suggestion = &s
		}
		v.Fields = append(v.Fields, fv)
	}
	if s, ok := sugg[outfit.LocationKey(owner.Kind)]; ok {
		v.LocationSuggestion = &s
	}
	return v
}

func suggestionMap(s outfit.Suggestion) map[string]string {
	if s == nil {
		return nil
	}
	m := make(map[string]string, len(s))
	for k, v := range s {
		m[string(k)] = v
	}
	return m
}
