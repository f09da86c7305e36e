package ops

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/wardrobe/internal/errors"
	"github.com/hpungsan/wardrobe/internal/outfit"
)

// Settings is the user-editable configuration kept in the state record.
type Settings struct {
	CustomFields   []string `json:"custom_fields"`
	AutoUpdate     bool     `json:"auto_update"`
	PromptTemplate string   `json:"prompt_template"`

	// TemplateIsDefault reports whether PromptTemplate is the built-in one.
	TemplateIsDefault bool `json:"template_is_default"`
}

func (d *Deps) settingsOf(s *outfit.State) *Settings {
	fields := append([]string{}, s.CustomFields...)
	return &Settings{
		CustomFields:      fields,
		AutoUpdate:        s.AutoUpdate,
		PromptTemplate:    s.PromptTemplate,
		TemplateIsDefault: s.PromptTemplate == d.Store.DefaultTemplate(),
	}
}

// GetSettings returns the current settings.
func GetSettings(ctx context.Context, d *Deps) (*Settings, error) {
	snap, err := d.Store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return d.settingsOf(snap), nil
}

// UpdateSettingsInput contains parameters for the UpdateSettings operation.
// Nil fields are left unchanged.
type UpdateSettingsInput struct {
	// CustomFieldsCSV is a comma-separated list. It is ignored when
	// CustomFields is set.
	CustomFieldsCSV *string
	CustomFields    []string
	AutoUpdate      *bool

	// PromptTemplate set to a blank string restores the default template.
	PromptTemplate *string
}

// UpdateSettings applies a settings change. Custom field names are trimmed,
// empty names dropped and duplicates removed. New fields are backfilled into
// every owner as unknown; removed fields are deleted from every owner and
// from pending suggestions.
func UpdateSettings(ctx context.Context, d *Deps, input UpdateSettingsInput) (*Settings, error) {
	var fields []string
	hasFields := false
	switch {
	case input.CustomFields != nil:
		fields, hasFields = outfit.CleanCustomFields(input.CustomFields), true
	case input.CustomFieldsCSV != nil:
		fields, hasFields = outfit.ParseCustomFields(*input.CustomFieldsCSV), true
	}

	if !hasFields && input.AutoUpdate == nil && input.PromptTemplate == nil {
		return nil, errors.NewInvalidRequest("no settings to update")
	}

	var (
		out            *Settings
		added, removed []string
	)
	err := d.Store.Update(ctx, func(s *outfit.State) error {
		if hasFields {
			added, removed = s.SetCustomFields(fields)
		}
		if input.AutoUpdate != nil {
			s.AutoUpdate = *input.AutoUpdate
		}
		if input.PromptTemplate != nil {
			s.PromptTemplate = templateOrDefault(*input.PromptTemplate, d.Store.DefaultTemplate())
		}
		out = d.settingsOf(s)
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.dropPending(removed)
	d.logger().Info("settings updated",
		zap.Strings("added", added),
		zap.Strings("removed", removed),
		zap.Bool("auto_update", out.AutoUpdate))
	d.notify(Event{Type: EventSettings, Data: out})
	return out, nil
}

// ResetSettings restores auto-update off, no custom fields and the default
// template. Former custom fields are removed from every owner.
func ResetSettings(ctx context.Context, d *Deps) (*Settings, error) {
	var (
		out     *Settings
		removed []string
	)
	err := d.Store.Update(ctx, func(s *outfit.State) error {
		_, removed = s.SetCustomFields(nil)
		s.AutoUpdate = false
		s.PromptTemplate = d.Store.DefaultTemplate()
		out = d.settingsOf(s)
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.dropPending(removed)
	d.logger().Info("settings reset", zap.Strings("removed", removed))
	d.notify(Event{Type: EventSettings, Data: out})
	return out, nil
}

// AddField appends one custom field.
func AddField(ctx context.Context, d *Deps, name string) (*Settings, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewInvalidRequest("field name is required")
	}
	if outfit.IsReserved(name) {
		return nil, errors.NewInvalidRequest("cannot add built-in field: " + name)
	}

	var out *Settings
	err := d.Store.Update(ctx, func(s *outfit.State) error {
		s.AddCustomField(name)
		out = d.settingsOf(s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.notify(Event{Type: EventSettings, Data: out})
	return out, nil
}

// RemoveField deletes one custom field from the schema and every owner.
func RemoveField(ctx context.Context, d *Deps, name string) (*Settings, error) {
	name = strings.TrimSpace(name)

	var out *Settings
	err := d.Store.Update(ctx, func(s *outfit.State) error {
		if !s.RemoveCustomField(name) {
			return errors.NewUnknownField(name)
		}
		out = d.settingsOf(s)
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.dropPending([]string{name})
	d.notify(Event{Type: EventSettings, Data: out})
	return out, nil
}

func (d *Deps) dropPending(fields []string) {
	if d.Board == nil {
		return
	}
	for _, f := range fields {
		d.Board.DropField(outfit.Field(f))
	}
}

func templateOrDefault(tpl, def string) string {
	if strings.TrimSpace(tpl) == "" {
		return def
	}
	return tpl
}
