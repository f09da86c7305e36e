package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/wardrobe/internal/config"
	"github.com/hpungsan/wardrobe/internal/db"
	"github.com/hpungsan/wardrobe/internal/extract"
	"github.com/hpungsan/wardrobe/internal/logging"
	"github.com/hpungsan/wardrobe/internal/ops"
	"github.com/hpungsan/wardrobe/internal/prompt"
	"github.com/hpungsan/wardrobe/internal/store"
)

type fixedProvider struct{ reply string }

func (p fixedProvider) Name() string { return "fixed" }

func (p fixedProvider) Generate(context.Context, string) (string, error) { return p.reply, nil }

// setupTestDeps creates a temporary database and deps for testing.
func setupTestDeps(t *testing.T) *ops.Deps {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	return &ops.Deps{
		Store:  store.New(database, prompt.DefaultTemplate, nil),
		Engine: extract.NewEngine(fixedProvider{reply: "Headwear: beret\nCharacter location: stage"}, nil),
		Board:  ops.NewBoard(),
		Config: cfg,
	}
}

// run executes the CLI and returns what it printed.
func run(t *testing.T, deps *ops.Deps, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	defer func() { stdout = old }()

	err := newCLIApp(deps).Run(append([]string{"wardrobe"}, args...))
	return buf.String(), err
}

func mustRun(t *testing.T, deps *ops.Deps, args ...string) map[string]any {
	t.Helper()
	out, err := run(t, deps, args...)
	if err != nil {
		t.Fatalf("wardrobe %s failed: %v", strings.Join(args, " "), err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	return m
}

func fieldValue(t *testing.T, view map[string]any, key string) string {
	t.Helper()
	fields, _ := view["fields"].([]any)
	for _, f := range fields {
		m := f.(map[string]any)
		if m["key"] == key {
			return m["value"].(string)
		}
	}
	t.Fatalf("field %q not in output", key)
	return ""
}

// writeSessionFiles writes a chat export and a V2 character card.
func writeSessionFiles(t *testing.T) (chatPath, cardPath string) {
	t.Helper()
	dir := t.TempDir()

	chatPath = filepath.Join(dir, "chat.jsonl")
	chat := `{"user_name": "Alex", "character_name": "Mira", "chat_metadata": {}}
{"name": "Alex", "is_user": true, "mes": "Nice hat."}
{"name": "Mira", "is_user": false, "mes": "Mira adjusts her beret and steps onto the stage."}
`
	if err := os.WriteFile(chatPath, []byte(chat), 0o600); err != nil {
		t.Fatalf("write chat: %v", err)
	}

	cardPath = filepath.Join(dir, "mira.json")
	card := `{"spec": "chara_card_v2", "data": {"name": "Mira", "description": "A traveling bard."}}`
	if err := os.WriteFile(cardPath, []byte(card), 0o600); err != nil {
		t.Fatalf("write card: %v", err)
	}
	return chatPath, cardPath
}

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name        string
		input       []string
		expected    map[string]string
		expectError bool
	}{
		{name: "none", input: nil, expected: nil},
		{name: "single", input: []string{"headwear=cap"}, expected: map[string]string{"headwear": "cap"}},
		{name: "label key", input: []string{" Top (outer) =red coat"}, expected: map[string]string{"Top (outer)": "red coat"}},
		{name: "value with equals and commas", input: []string{"footwear=boots=tall, black"}, expected: map[string]string{"footwear": "boots=tall, black"}},
		{name: "empty value", input: []string{"headwear="}, expected: map[string]string{"headwear": ""}},
		{name: "missing equals", input: []string{"headwear"}, expectError: true},
		{name: "empty key", input: []string{"=cap"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseAssignments(tt.input)
			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, result)
			}
			for k, v := range tt.expected {
				if result[k] != v {
					t.Errorf("expected %s=%q, got %q", k, v, result[k])
				}
			}
		})
	}
}

func TestCLIApplyAndShow(t *testing.T) {
	deps := setupTestDeps(t)

	out := mustRun(t, deps, "apply", "--set", "headwear=cap, red", "--set", "Footwear=boots", "--location", "porch")
	if got := fieldValue(t, out, "headwear"); got != "cap, red" {
		t.Errorf("headwear = %q, want %q", got, "cap, red")
	}
	if out["location"] != "porch" {
		t.Errorf("location = %v, want porch", out["location"])
	}

	out = mustRun(t, deps, "show")
	if got := fieldValue(t, out, "footwear"); got != "boots" {
		t.Errorf("footwear = %q, want boots", got)
	}
	if got := fieldValue(t, out, "topwear"); got != "unknown" {
		t.Errorf("topwear = %q, want unknown", got)
	}
}

func TestCLIShowCharacterFromFiles(t *testing.T) {
	deps := setupTestDeps(t)
	chatPath, cardPath := writeSessionFiles(t)

	out := mustRun(t, deps, "show", "--owner", "char", "--chat", chatPath, "--card", cardPath)
	if out["character_id"] != "mira" {
		t.Errorf("character_id = %v, want mira (from card file name)", out["character_id"])
	}
	if out["name"] != "Mira" {
		t.Errorf("name = %v, want Mira", out["name"])
	}
	names := out["names"].(map[string]any)
	if names["user"] != "Alex" {
		t.Errorf("user name = %v, want Alex from chat metadata", names["user"])
	}
}

func TestCLIExtract(t *testing.T) {
	deps := setupTestDeps(t)
	chatPath, cardPath := writeSessionFiles(t)

	out := mustRun(t, deps, "extract", "--owner", "char", "--chat", chatPath, "--card", cardPath)
	if out["outcome"] != "ok" {
		t.Fatalf("outcome = %v, want ok", out["outcome"])
	}

	// Without --apply nothing is persisted.
	out = mustRun(t, deps, "show", "--owner", "char", "--character-id", "mira")
	if got := fieldValue(t, out, "headwear"); got != "unknown" {
		t.Errorf("headwear = %q, want unknown", got)
	}

	out = mustRun(t, deps, "extract", "--owner", "char", "--chat", chatPath, "--card", cardPath, "--apply")
	applied := out["applied"].(map[string]any)
	if got := fieldValue(t, applied, "headwear"); got != "beret" {
		t.Errorf("headwear = %q, want beret", got)
	}
	if applied["location"] != "stage" {
		t.Errorf("location = %v, want stage", applied["location"])
	}
}

func TestCLIResetCharacter(t *testing.T) {
	deps := setupTestDeps(t)

	mustRun(t, deps, "apply", "--owner", "char", "--character-id", "mira", "--set", "headwear=crown")
	out := mustRun(t, deps, "reset-character", "mira")
	if got := fieldValue(t, out, "headwear"); got != "unknown" {
		t.Errorf("headwear after reset = %q, want unknown", got)
	}
}

func TestCLISettingsAndFields(t *testing.T) {
	deps := setupTestDeps(t)

	out := mustRun(t, deps, "settings", "set", "--custom-fields", "gloves, scarf", "--auto-update")
	if out["auto_update"] != true {
		t.Error("auto_update not enabled")
	}

	mustRun(t, deps, "fields", "add", "belt")
	mustRun(t, deps, "fields", "remove", "scarf")

	out = mustRun(t, deps, "settings")
	fields, _ := out["custom_fields"].([]any)
	if len(fields) != 2 || fields[0] != "gloves" || fields[1] != "belt" {
		t.Errorf("custom_fields = %v, want [gloves belt]", out["custom_fields"])
	}

	tplPath := filepath.Join(t.TempDir(), "template.txt")
	if err := os.WriteFile(tplPath, []byte("custom {{LINES}}"), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}
	out = mustRun(t, deps, "settings", "set", "--prompt-template", tplPath)
	if out["template_is_default"] != false {
		t.Error("template should no longer be the default")
	}

	out = mustRun(t, deps, "settings", "reset")
	if out["template_is_default"] != true || out["auto_update"] != false {
		t.Errorf("reset settings = %v", out)
	}
}

func TestCLIPromptRaw(t *testing.T) {
	deps := setupTestDeps(t)
	chatPath, cardPath := writeSessionFiles(t)

	out, err := run(t, deps, "prompt", "--owner", "char", "--chat", chatPath, "--card", cardPath, "--raw")
	if err != nil {
		t.Fatalf("prompt failed: %v", err)
	}
	if !strings.Contains(out, "A traveling bard.") {
		t.Errorf("prompt missing character description:\n%s", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Error("--raw should print text, not JSON")
	}
}

func TestCLIPromptNamesCharacterFromChat(t *testing.T) {
	deps := setupTestDeps(t)
	chatPath, _ := writeSessionFiles(t)

	out, err := run(t, deps, "prompt", "--owner", "user", "--chat", chatPath, "--raw")
	if err != nil {
		t.Fatalf("prompt failed: %v", err)
	}
	if !strings.Contains(out, "Mira: Mira adjusts her beret") {
		t.Errorf("chat excerpt should use the character name from the chat:\n%s", out)
	}
	if strings.Contains(out, "Character: Mira adjusts") {
		t.Errorf("chat excerpt fell back to the default name:\n%s", out)
	}
}

func TestCLIExportImport(t *testing.T) {
	deps := setupTestDeps(t)
	mustRun(t, deps, "apply", "--set", "headwear=cap")

	path := filepath.Join(t.TempDir(), "backup.jsonl")
	out := mustRun(t, deps, "export", "--path", path)
	if out["path"] != path {
		t.Errorf("path = %v, want %s", out["path"], path)
	}

	mustRun(t, deps, "apply", "--set", "headwear=hood")
	mustRun(t, deps, "import", "--path", path)

	out = mustRun(t, deps, "show")
	if got := fieldValue(t, out, "headwear"); got != "cap" {
		t.Errorf("headwear after import = %q, want cap", got)
	}
}

func TestCLIErrorHandling(t *testing.T) {
	deps := setupTestDeps(t)

	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"invalid owner", []string{"show", "--owner", "dog"}, "[INVALID_REQUEST]"},
		{"char without id", []string{"show", "--owner", "char"}, "[INVALID_REQUEST]"},
		{"unknown field", []string{"apply", "--set", "cape=red"}, "[INVALID_REQUEST]"},
		{"bad assignment", []string{"apply", "--set", "cape"}, "[INVALID_REQUEST]"},
		{"missing chat file", []string{"show", "--chat", "/nonexistent/chat.jsonl"}, "[FILE_NOT_FOUND]"},
		{"missing import file", []string{"import", "--path", "/nonexistent/backup.jsonl"}, "[FILE_NOT_FOUND]"},
		{"fields add without name", []string{"fields", "add"}, "[INVALID_REQUEST]"},
		{"remove unknown field", []string{"fields", "remove", "cape"}, "[INVALID_REQUEST]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, deps, tt.args...)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.HasPrefix(err.Error(), tt.wantCode) {
				t.Errorf("error = %q, want prefix %s", err.Error(), tt.wantCode)
			}
		})
	}
}

func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"wardrobe"}, expected: false},
		{name: "show command", args: []string{"wardrobe", "show"}, expected: true},
		{name: "serve command", args: []string{"wardrobe", "serve"}, expected: true},
		{name: "help flag", args: []string{"wardrobe", "--help"}, expected: true},
		{name: "short version flag", args: []string{"wardrobe", "-v"}, expected: true},
		{name: "unknown arg defaults to MCP", args: []string{"wardrobe", "--unknown"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isCLIMode(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		args     []string
		expected bool
	}{
		{args: []string{"wardrobe"}, expected: false},
		{args: []string{"wardrobe", "help"}, expected: true},
		{args: []string{"wardrobe", "-h"}, expected: true},
		{args: []string{"wardrobe", "--version"}, expected: true},
		{args: []string{"wardrobe", "show"}, expected: false},
	}

	for _, tt := range tests {
		oldArgs := os.Args
		os.Args = tt.args
		result := isHelpOrVersion()
		os.Args = oldArgs

		if result != tt.expected {
			t.Errorf("isHelpOrVersion(%v) = %v, want %v", tt.args, result, tt.expected)
		}
	}
}

func TestNewDeps_WithoutBackend(t *testing.T) {
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	defer database.Close()

	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "nope"

	deps, err := newDeps(context.Background(), database, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("newDeps: %v", err)
	}
	if deps.Engine != nil {
		t.Error("engine should be nil for an unknown provider")
	}

	// The default record is written on startup.
	saved, err := db.LoadState(context.Background(), database)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if saved == nil {
		t.Error("expected the default record to be persisted")
	}
}
