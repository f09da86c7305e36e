// Package prompt builds the deterministic extraction prompt for one owner.
package prompt

import (
	"strconv"
	"strings"

	"github.com/hpungsan/wardrobe/internal/host"
	"github.com/hpungsan/wardrobe/internal/outfit"
)

// DefaultChatWindow is the number of recent messages included by default.
const DefaultChatWindow = 12

const noCharInfo = "(none)"

// Context is everything a prompt is built from. It is never persisted.
type Context struct {
	Who      string
	Kind     outfit.Kind
	LocLabel string

	// Labels lists the required output labels in order, location last.
	Labels []string

	// Base holds one "<label>: <value>" line per entry of Labels.
	Base []string

	CharInfo string
	Chat     []string
}

// LineCount is the exact number of lines the model must return.
func (c Context) LineCount() int {
	return len(c.Labels)
}

// NewContext assembles a prompt context for owner from its baseline state,
// the schema, resolved names, the active character and the chat history.
// window <= 0 uses DefaultChatWindow.
func NewContext(owner outfit.Owner, st *outfit.OwnerState, schema outfit.Schema, names host.Names,
	character *host.Character, chat []host.Message, window int) Context {
	c := Context{
		Who:      names.User,
		Kind:     owner.Kind,
		LocLabel: outfit.LocationLabel(owner.Kind),
		CharInfo: noCharInfo,
	}
	if owner.Kind == outfit.KindChar {
		c.Who = names.Character
		if character != nil {
			if d := strings.TrimSpace(character.Description); d != "" {
				c.CharInfo = d
			}
		}
	}

	for _, k := range schema.Keys() {
		label := outfit.Label(k)
		value := outfit.Unknown
		if st != nil {
			if v := strings.TrimSpace(st.Outfit[k]); v != "" {
				value = v
			}
		}
		c.Labels = append(c.Labels, label)
		c.Base = append(c.Base, label+": "+value)
	}

	location := outfit.Unknown
	if st != nil && strings.TrimSpace(st.Location) != "" {
		location = strings.TrimSpace(st.Location)
	}
	c.Labels = append(c.Labels, c.LocLabel)
	c.Base = append(c.Base, c.LocLabel+": "+location)

	c.Chat = Excerpt(chat, names, window)
	return c
}

// Excerpt renders the last window eligible messages as "<speaker>: <text>".
// System messages, blank messages and messages authored by the host system
// are skipped. The speaker is always the resolved user or character name.
func Excerpt(chat []host.Message, names host.Names, window int) []string {
	if window <= 0 {
		window = DefaultChatWindow
	}

	eligible := make([]host.Message, 0, len(chat))
	for _, m := range chat {
		if m.IsSystem || strings.TrimSpace(m.Text) == "" || strings.TrimSpace(m.Name) == host.SystemName {
			continue
		}
		eligible = append(eligible, m)
	}
	if len(eligible) > window {
		eligible = eligible[len(eligible)-window:]
	}

	lines := make([]string, 0, len(eligible))
	for _, m := range eligible {
		speaker := names.Character
		if m.IsUser {
			speaker = names.User
		}
		lines = append(lines, speaker+": "+outfit.CollapseWhitespace(m.Text))
	}
	return lines
}

// Build renders the prompt: the examples block followed by template, with
// every placeholder substituted. A blank template uses DefaultTemplate.
func Build(c Context, template string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}

	fieldList := make([]string, len(c.Labels))
	for i, l := range c.Labels {
		fieldList[i] = l + ": ..."
	}

	r := strings.NewReplacer(
		"{{who}}", c.Who,
		"{{lineCount}}", strconv.Itoa(c.LineCount()),
		"{{fieldList}}", strings.Join(fieldList, "\n"),
		"{{base}}", strings.Join(c.Base, "\n"),
		"{{charInfo}}", c.CharInfo,
		"{{chat}}", strings.Join(c.Chat, "\n"),
		"{{locLabel}}", c.LocLabel,
	)
	return r.Replace(fewShot + "\n\n" + strings.TrimSpace(template))
}
