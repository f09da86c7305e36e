package mcp

import (
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hpungsan/wardrobe/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"wardrobe_get": {
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"wardrobe_extract": {
		def:     extractToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExtract },
	},
	"wardrobe_apply": {
		def:     applyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleApply },
	},
	"wardrobe_reset_character": {
		def:     resetCharacterToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleResetCharacter },
	},
	"wardrobe_settings": {
		def:     settingsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSettings },
	},
	"wardrobe_fields": {
		def:     fieldsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFields },
	},
	"wardrobe_prompt": {
		def:     promptToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePrompt },
	},
	"wardrobe_suggestions": {
		def:     suggestionsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSuggestions },
	},
	"wardrobe_on_chat": {
		def:     onChatToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleOnChat },
	},
	"wardrobe_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"wardrobe_import": {
		def:     importToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
}

// AllToolNames returns every tool name in sorted order.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the wardrobe tools registered.
// Tools listed in deps.Config.DisabledTools are skipped.
func NewServer(deps *ops.Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"wardrobe",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	var disabled []string
	if deps.Config != nil {
		disabled = deps.Config.DisabledTools
		if unknown := ValidateDisabledTools(disabled); len(unknown) > 0 && deps.Logger != nil {
			deps.Logger.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
		}
	}

	h := NewHandlers(deps)
	for _, name := range AllToolNames() {
		if slices.Contains(disabled, name) {
			continue
		}
		entry := toolRegistry[name]
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run starts the MCP server using stdio transport.
func Run(deps *ops.Deps, version string) error {
	return server.ServeStdio(NewServer(deps, version))
}
