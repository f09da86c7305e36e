package mcp

import "github.com/mark3labs/mcp-go/mcp"

const sessionDescription = "Current chat session: {user_name, character_id, character: {id, name, description}, " +
	"chat: [{name, is_user, is_system, mes}]}. Used for display names, the character card and the chat excerpt."

func ownerOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("owner",
			mcp.Required(),
			mcp.Enum("user", "char"),
			mcp.Description("Whose outfit: the user or a character"),
		),
		mcp.WithString("character_id",
			mcp.Description("Character id when owner is char; defaults to session.character_id"),
		),
		mcp.WithObject("session", mcp.Description(sessionDescription)),
	}
}

func withOwner(name string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append(ownerOptions(), opts...)...)
}

var getToolDef = withOwner("wardrobe_get",
	mcp.WithDescription("Show the stored outfit fields and location of one owner, with any pending suggestion."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var extractToolDef = withOwner("wardrobe_extract",
	mcp.WithDescription("Ask the text-generation backend for outfit updates from the recent chat. "+
		"Produces a pending suggestion; nothing is saved until wardrobe_apply."),
)

var applyToolDef = withOwner("wardrobe_apply",
	mcp.WithDescription("Save outfit values. For each field a non-empty suggestion wins over a manual value; "+
		"fields with neither are left unchanged."),
	mcp.WithObject("manual", mcp.Description("Manual values keyed by field key or label")),
	mcp.WithString("location", mcp.Description("Manual location; empty string clears it")),
	mcp.WithObject("suggestions", mcp.Description("Suggested values keyed by field key or label")),
	mcp.WithBoolean("use_pending", mcp.Description("Merge the owner's pending suggestion under suggestions")),
)

var resetCharacterToolDef = mcp.NewTool("wardrobe_reset_character",
	mcp.WithDescription("Reset a character's outfit and location to defaults."),
	mcp.WithString("character_id", mcp.Description("Character id; defaults to session.character_id")),
	mcp.WithObject("session", mcp.Description(sessionDescription)),
	mcp.WithDestructiveHintAnnotation(true),
)

var settingsToolDef = mcp.NewTool("wardrobe_settings",
	mcp.WithDescription("Read, update or reset settings: custom fields, auto-update and the prompt template."),
	mcp.WithString("action", mcp.Enum("get", "update", "reset"), mcp.DefaultString("get")),
	mcp.WithString("custom_fields", mcp.Description("Comma-separated custom field names (update)")),
	mcp.WithBoolean("auto_update", mcp.Description("Extract automatically after chat updates (update)")),
	mcp.WithString("prompt_template", mcp.Description("Prompt template; blank restores the default (update)")),
)

var fieldsToolDef = mcp.NewTool("wardrobe_fields",
	mcp.WithDescription("Add or remove one custom outfit field."),
	mcp.WithString("action", mcp.Required(), mcp.Enum("add", "remove")),
	mcp.WithString("name", mcp.Required(), mcp.Description("Field name, e.g. gloves")),
)

var promptToolDef = withOwner("wardrobe_prompt",
	mcp.WithDescription("Show the exact prompt wardrobe_extract would send, without calling the backend."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var suggestionsToolDef = withOwner("wardrobe_suggestions",
	mcp.WithDescription("Show the pending suggestion of one owner, if any."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var onChatToolDef = mcp.NewTool("wardrobe_on_chat",
	mcp.WithDescription("Notify a chat update. With auto-update on, extracts for the user and the active character."),
	mcp.WithObject("session", mcp.Required(), mcp.Description(sessionDescription)),
)

var exportToolDef = mcp.NewTool("wardrobe_export",
	mcp.WithDescription("Write a JSONL backup of all settings and outfits."),
	mcp.WithString("path", mcp.Description("Destination .jsonl path; default ~/.wardrobe/exports/wardrobe-<timestamp>.jsonl")),
)

var importToolDef = mcp.NewTool("wardrobe_import",
	mcp.WithDescription("Replace all settings and outfits with a JSONL backup."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Backup .jsonl path")),
	mcp.WithDestructiveHintAnnotation(true),
)
