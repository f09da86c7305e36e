package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/wardrobe/internal/errors"
	"github.com/hpungsan/wardrobe/internal/host"
	"github.com/hpungsan/wardrobe/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps *ops.Deps
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps *ops.Deps) *Handlers {
	return &Handlers{deps: deps}
}

// Request types for each tool

// OwnerRequest addresses one owner within a session.
type OwnerRequest struct {
	Owner       string       `json:"owner"`
	CharacterID string       `json:"character_id,omitempty"`
	Session     host.Session `json:"session"`
}

func (r OwnerRequest) owner() ops.OwnerInput {
	return ops.OwnerInput{Kind: r.Owner, CharacterID: r.CharacterID}
}

// ApplyRequest represents the arguments for apply.
type ApplyRequest struct {
	OwnerRequest
	Manual      map[string]string `json:"manual,omitempty"`
	Location    *string           `json:"location,omitempty"`
	Suggestions map[string]string `json:"suggestions,omitempty"`
	UsePending  bool              `json:"use_pending,omitempty"`
}

// ResetCharacterRequest represents the arguments for reset_character.
type ResetCharacterRequest struct {
	CharacterID string       `json:"character_id,omitempty"`
	Session     host.Session `json:"session"`
}

// SettingsRequest represents the arguments for settings.
type SettingsRequest struct {
	Action         string  `json:"action,omitempty"`
	CustomFields   *string `json:"custom_fields,omitempty"`
	AutoUpdate     *bool   `json:"auto_update,omitempty"`
	PromptTemplate *string `json:"prompt_template,omitempty"`
}

// FieldsRequest represents the arguments for fields.
type FieldsRequest struct {
	Action string `json:"action"`
	Name   string `json:"name"`
}

// OnChatRequest represents the arguments for on_chat.
type OnChatRequest struct {
	Session host.Session `json:"session"`
}

// PathRequest represents the arguments for export and import.
type PathRequest struct {
	Path string `json:"path,omitempty"`
}

// SuggestionsResult is the pending suggestion of one owner.
type SuggestionsResult struct {
	Owner   string       `json:"owner"`
	Pending *ops.Pending `json:"pending"`
}

// Handler implementations

// HandleGet handles the get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[OwnerRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Get(ctx, h.deps, ops.GetInput{Owner: input.owner(), Session: input.Session})
	if err != nil {
		return h.errorResult("get", err), nil
	}
	return successResult(result)
}

// HandleExtract handles the extract tool call.
func (h *Handlers) HandleExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[OwnerRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Extract(ctx, h.deps, ops.ExtractInput{Owner: input.owner(), Session: input.Session})
	if err != nil {
		return h.errorResult("extract", err), nil
	}
	return successResult(result)
}

// HandleApply handles the apply tool call.
func (h *Handlers) HandleApply(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ApplyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Apply(ctx, h.deps, ops.ApplyInput{
		Owner:          input.owner(),
		Session:        input.Session,
		Manual:         input.Manual,
		ManualLocation: input.Location,
		Suggestions:    input.Suggestions,
		UsePending:     input.UsePending,
	})
	if err != nil {
		return h.errorResult("apply", err), nil
	}
	return successResult(result)
}

// HandleResetCharacter handles the reset_character tool call.
func (h *Handlers) HandleResetCharacter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ResetCharacterRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ResetCharacter(ctx, h.deps, ops.ResetCharacterInput{
		CharacterID: input.CharacterID,
		Session:     input.Session,
	})
	if err != nil {
		return h.errorResult("reset_character", err), nil
	}
	return successResult(result)
}

// HandleSettings handles the settings tool call.
func (h *Handlers) HandleSettings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SettingsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var result *ops.Settings
	switch strings.ToLower(strings.TrimSpace(input.Action)) {
	case "", "get":
		result, err = ops.GetSettings(ctx, h.deps)
	case "update":
		result, err = ops.UpdateSettings(ctx, h.deps, ops.UpdateSettingsInput{
			CustomFieldsCSV: input.CustomFields,
			AutoUpdate:      input.AutoUpdate,
			PromptTemplate:  input.PromptTemplate,
		})
	case "reset":
		result, err = ops.ResetSettings(ctx, h.deps)
	default:
		return errorResult(errors.NewInvalidRequest("action must be one of: get, update, reset")), nil
	}
	if err != nil {
		return h.errorResult("settings", err), nil
	}
	return successResult(result)
}

// HandleFields handles the fields tool call.
func (h *Handlers) HandleFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FieldsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var result *ops.Settings
	switch input.Action {
	case "add":
		result, err = ops.AddField(ctx, h.deps, input.Name)
	case "remove":
		result, err = ops.RemoveField(ctx, h.deps, input.Name)
	default:
		return errorResult(errors.NewInvalidRequest("action must be one of: add, remove")), nil
	}
	if err != nil {
		return h.errorResult("fields", err), nil
	}
	return successResult(result)
}

// HandlePrompt handles the prompt tool call.
func (h *Handlers) HandlePrompt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[OwnerRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Preview(ctx, h.deps, ops.PreviewInput{Owner: input.owner(), Session: input.Session})
	if err != nil {
		return h.errorResult("prompt", err), nil
	}
	return successResult(result)
}

// HandleSuggestions handles the suggestions tool call.
func (h *Handlers) HandleSuggestions(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[OwnerRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	owner, err := ops.ParseOwner(input.owner(), input.Session)
	if err != nil {
		return errorResult(err), nil
	}
	result := SuggestionsResult{Owner: owner.String()}
	if h.deps.Board != nil {
		if p, ok := h.deps.Board.Get(owner); ok {
			result.Pending = &p
		}
	}
	return successResult(result)
}

// HandleOnChat handles the on_chat tool call.
func (h *Handlers) HandleOnChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[OnChatRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.OnChat(ctx, h.deps, ops.OnChatInput{Session: input.Session})
	if err != nil {
		return h.errorResult("on_chat", err), nil
	}
	return successResult(result)
}

// HandleExport handles the export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.deps, ops.ExportInput{Path: input.Path})
	if err != nil {
		return h.errorResult("export", err), nil
	}
	return successResult(result)
}

// HandleImport handles the import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Path == "" {
		return errorResult(errors.NewInvalidRequest("path is required")), nil
	}

	result, err := ops.Import(ctx, h.deps, ops.ImportInput{Path: input.Path})
	if err != nil {
		return h.errorResult("import", err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult logs internal failures before converting them.
func (h *Handlers) errorResult(tool string, err error) *mcp.CallToolResult {
	if te := errors.As(err); te.Code == errors.ErrInternal && h.deps.Logger != nil {
		h.deps.Logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
	}
	return errorResult(err)
}

// errorResult creates an MCP error result from any error.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	te := errors.As(err)
	errorObj := map[string]any{
		"code":    te.Code,
		"message": te.Message,
		"status":  te.Status,
	}
	if te.Code == errors.ErrInternal {
		errorObj["message"] = "an internal error occurred"
	} else if te.Details != nil {
		errorObj["details"] = te.Details
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
