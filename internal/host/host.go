// Package host models the chat application wardrobe reads from: chat
// history, the active character card and the display names derived from them.
package host

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// SystemName is the author name the host uses for its own notices.
const SystemName = "SillyTavern System"

// Fallback display names.
const (
	DefaultUserName      = "You"
	DefaultCharacterName = "Character"
)

// Message is one chat message as exported by SillyTavern.
type Message struct {
	Name     string `json:"name"`
	IsUser   bool   `json:"is_user"`
	IsSystem bool   `json:"is_system"`
	Text     string `json:"mes"`
	SendDate string `json:"send_date,omitempty"`
}

// Character is the active character card.
type Character struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Session is everything a surface knows about the current conversation.
type Session struct {
	UserName    string     `json:"user_name,omitempty"`
	CharacterID string     `json:"character_id,omitempty"`
	Character   *Character `json:"character,omitempty"`
	Chat        []Message  `json:"chat,omitempty"`
}

// Names are the resolved display names used in prompts.
type Names struct {
	User      string `json:"user"`
	Character string `json:"character"`
}

// ResolveNames picks display names from the session. The user falls back to
// DefaultUserName; the character uses the trimmed card name, else
// DefaultCharacterName. Message author fields are never consulted.
func ResolveNames(s Session) Names {
	n := Names{User: strings.TrimSpace(s.UserName), Character: DefaultCharacterName}
	if n.User == "" {
		n.User = DefaultUserName
	}
	if s.Character != nil {
		if name := strings.TrimSpace(s.Character.Name); name != "" {
			n.Character = name
		}
	}
	return n
}

// Chat is a parsed chat export.
type Chat struct {
	UserName      string
	CharacterName string
	Messages      []Message
}

// maxLine bounds a single jsonl line; long roleplay messages can be large.
const maxLine = 4 << 20

// ReadChat parses a SillyTavern .jsonl chat export. The first line may be a
// metadata object carrying user_name and character_name; every other
// non-blank line is a message.
func ReadChat(r io.Reader) (*Chat, error) {
	chat := &Chat{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	lineNum := 0
	first := true
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			return nil, fmt.Errorf("line %d: invalid JSON", lineNum)
		}

		if first {
			first = false
			if isMetadata(line) {
				chat.UserName = gjson.Get(line, "user_name").String()
				chat.CharacterName = gjson.Get(line, "character_name").String()
				continue
			}
		}

		var m Message
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		chat.Messages = append(chat.Messages, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chat: %w", err)
	}
	return chat, nil
}

func isMetadata(line string) bool {
	if gjson.Get(line, "mes").Exists() {
		return false
	}
	return gjson.Get(line, "user_name").Exists() ||
		gjson.Get(line, "character_name").Exists() ||
		gjson.Get(line, "chat_metadata").Exists()
}

// ReadCharacterCard parses a character card in V1 ({name, description}) or
// V2 ({spec, data: {name, description}}) JSON form. id is assigned to the
// result as is.
func ReadCharacterCard(r io.Reader, id string) (*Character, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read card: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid character card JSON")
	}

	doc := gjson.ParseBytes(data)
	name := doc.Get("data.name")
	if !name.Exists() {
		name = doc.Get("name")
	}
	desc := doc.Get("data.description")
	if !desc.Exists() {
		desc = doc.Get("description")
	}

	return &Character{
		ID:          id,
		Name:        strings.TrimSpace(name.String()),
		Description: strings.TrimSpace(desc.String()),
	}, nil
}
