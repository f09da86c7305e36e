package outfit

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Kind identifies the owner class.
type Kind string

const (
	KindUser Kind = "user"
	KindChar Kind = "char"
)

// ParseKind accepts "user", "char" or "character" (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return KindUser, nil
	case "char", "character":
		return KindChar, nil
	}
	return "", fmt.Errorf("unknown owner kind %q (want user or char)", s)
}

// LocationKey returns the location sentinel key of an owner kind.
func LocationKey(k Kind) Field {
	if k == KindChar {
		return CharLocation
	}
	return UserLocation
}

// LocationLabel returns the location label of an owner kind.
func LocationLabel(k Kind) string {
	return Label(LocationKey(k))
}

// Owner addresses one tracked entity: the user, or a character by id.
type Owner struct {
	Kind        Kind
	CharacterID string
}

// User is the single user owner.
var User = Owner{Kind: KindUser}

// Character returns the owner for a character id.
func Character(id string) Owner {
	return Owner{Kind: KindChar, CharacterID: id}
}

// String renders the owner as "user" or "char:<id>".
func (o Owner) String() string {
	if o.Kind == KindChar {
		return "char:" + o.CharacterID
	}
	return string(KindUser)
}

// Validate checks that a character owner carries an id.
func (o Owner) Validate() error {
	switch o.Kind {
	case KindUser:
		return nil
	case KindChar:
		if strings.TrimSpace(o.CharacterID) == "" {
			return fmt.Errorf("character_id is required for owner %q", KindChar)
		}
		return nil
	}
	return fmt.Errorf("unknown owner kind %q", o.Kind)
}

// Record maps schema keys to values. Unknown marks a key with no value.
type Record map[Field]string

// DefaultRecord returns a record with every key of the schema set to Unknown.
func DefaultRecord(schema Schema) Record {
	r := make(Record, len(baseKeys)+len(schema.Custom))
	for _, k := range schema.Keys() {
		r[k] = Unknown
	}
	return r
}

// OwnerState is the persisted outfit and location of one owner.
type OwnerState struct {
	Outfit   Record `json:"outfit"`
	Location string `json:"location"`
}

// NewOwnerState returns schema defaults with an empty location.
func NewOwnerState(schema Schema) *OwnerState {
	return &OwnerState{Outfit: DefaultRecord(schema)}
}

// Clone returns a deep copy.
func (o *OwnerState) Clone() *OwnerState {
	if o == nil {
		return nil
	}
	return &OwnerState{Outfit: maps.Clone(o.Outfit), Location: o.Location}
}

// backfill adds every missing schema key as Unknown. It reports whether
// anything changed.
func (o *OwnerState) backfill(keys []Field) bool {
	if o.Outfit == nil {
		o.Outfit = make(Record, len(keys))
	}
	changed := false
	for _, k := range keys {
		if _, ok := o.Outfit[k]; !ok {
			o.Outfit[k] = Unknown
			changed = true
		}
	}
	return changed
}

// Suggestion holds proposed values for one owner. It is never persisted.
// Location values are keyed by the owner's location sentinel key.
type Suggestion map[Field]string

// State is the whole persisted record.
type State struct {
	User           OwnerState             `json:"user"`
	Characters     map[string]*OwnerState `json:"characters"`
	CustomFields   []string               `json:"custom_fields"`
	AutoUpdate     bool                   `json:"auto_update"`
	PromptTemplate string                 `json:"prompt_template"`
}

// NewState returns the initial record: user defaults, no characters, no
// custom fields, auto-update off and the given prompt template.
func NewState(promptTemplate string) *State {
	return &State{
		User:           *NewOwnerState(Schema{}),
		Characters:     make(map[string]*OwnerState),
		CustomFields:   []string{},
		PromptTemplate: promptTemplate,
	}
}

// Schema returns the current schema.
func (s *State) Schema() Schema {
	return Schema{Custom: slices.Clone(s.CustomFields)}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := &State{
		User:           *s.User.Clone(),
		Characters:     make(map[string]*OwnerState, len(s.Characters)),
		CustomFields:   slices.Clone(s.CustomFields),
		AutoUpdate:     s.AutoUpdate,
		PromptTemplate: s.PromptTemplate,
	}
	for id, cs := range s.Characters {
		c.Characters[id] = cs.Clone()
	}
	return c
}

// EnsureSchemaKeys backfills every schema key missing from the user and from
// every known character with Unknown. It reports whether anything changed;
// a second call on the same state always reports false.
func (s *State) EnsureSchemaKeys() bool {
	if s.Characters == nil {
		s.Characters = make(map[string]*OwnerState)
	}
	if s.CustomFields == nil {
		s.CustomFields = []string{}
	}
	keys := s.Schema().Keys()
	changed := s.User.backfill(keys)
	for id, cs := range s.Characters {
		if cs == nil {
			cs = &OwnerState{}
			s.Characters[id] = cs
			changed = true
		}
		if cs.backfill(keys) {
			changed = true
		}
	}
	return changed
}

// EnsureCharacter returns the state of character id, creating it with
// schema defaults and an empty location when it has never been seen.
func (s *State) EnsureCharacter(id string) *OwnerState {
	if s.Characters == nil {
		s.Characters = make(map[string]*OwnerState)
	}
	cs, ok := s.Characters[id]
	if !ok || cs == nil {
		cs = NewOwnerState(s.Schema())
		s.Characters[id] = cs
	}
	cs.backfill(s.Schema().Keys())
	return cs
}

// ResetCharacter replaces the outfit and location of character id with
// fresh defaults, discarding everything previously stored for it.
func (s *State) ResetCharacter(id string) *OwnerState {
	if s.Characters == nil {
		s.Characters = make(map[string]*OwnerState)
	}
	cs := NewOwnerState(s.Schema())
	s.Characters[id] = cs
	return cs
}

// Owner resolves the state of an owner, lazily creating characters.
func (s *State) Owner(o Owner) (*OwnerState, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if o.Kind == KindChar {
		return s.EnsureCharacter(o.CharacterID), nil
	}
	return &s.User, nil
}

// LookupOwner returns the owner state without creating it.
func (s *State) LookupOwner(o Owner) (*OwnerState, bool) {
	if o.Kind == KindChar {
		cs, ok := s.Characters[o.CharacterID]
		return cs, ok && cs != nil
	}
	return &s.User, true
}

// CharacterIDs returns the known character ids in sorted order.
func (s *State) CharacterIDs() []string {
	return slices.Sorted(maps.Keys(s.Characters))
}
