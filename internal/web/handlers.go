package web

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/hpungsan/wardrobe/internal/errors"
	"github.com/hpungsan/wardrobe/internal/host"
	"github.com/hpungsan/wardrobe/internal/ops"
)

// maxBody bounds request bodies; chat sessions can be large.
const maxBody = 8 << 20

// Handlers contains HTTP route handlers for the panel UI and JSON API.
type Handlers struct {
	deps     *ops.Deps
	renderer *Renderer
	session  *activeSession
}

// activeSession is the last session posted by the host. Requests that do not
// carry their own session use it.
type activeSession struct {
	mu sync.RWMutex
	s  host.Session
}

func (a *activeSession) get() host.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.s
}

func (a *activeSession) set(s host.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s = s
}

// sessionBody is embedded in request bodies that may override the active session.
type sessionBody struct {
	Session *host.Session `json:"session,omitempty"`
}

func (h *Handlers) sessionFor(b sessionBody) host.Session {
	if b.Session != nil {
		return *b.Session
	}
	return h.session.get()
}

// HandlePanels handles GET /panels (user and character outfit panels).
func (h *Handlers) HandlePanels(w http.ResponseWriter, r *http.Request) {
	session := h.session.get()
	ctx := r.Context()

	userView, err := ops.Get(ctx, h.deps, ops.GetInput{Owner: ops.OwnerInput{Kind: "user"}, Session: session})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data := PanelsPageData{
		PageData: PageData{Title: "Outfits", Version: h.renderer.version},
		User:     userView,
	}

	if _, err := ops.ParseOwner(ops.OwnerInput{Kind: "char"}, session); err == nil {
		charView, err := ops.Get(ctx, h.deps, ops.GetInput{Owner: ops.OwnerInput{Kind: "char"}, Session: session})
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		data.Character = charView
		if session.Character != nil {
			data.Description = renderMarkdown(session.Character.Description)
		}
	}

	settings, err := ops.GetSettings(ctx, h.deps)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	data.Settings = settings

	h.renderer.renderPage(w, r, "panels", data)
}

// HandleGetSession handles GET /api/session.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.session.get())
}

// HandlePutSession handles PUT /api/session and replaces the active session
// without triggering extraction.
func (h *Handlers) HandlePutSession(w http.ResponseWriter, r *http.Request) {
	var s host.Session
	if err := decodeJSON(w, r, &s); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.session.set(s)
	renderJSON(w, http.StatusOK, host.ResolveNames(s))
}

// HandleChat handles POST /api/chat when the host reports a chat update. The
// session becomes active and, with auto-update on, extraction runs.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var s host.Session
	if err := decodeJSON(w, r, &s); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.session.set(s)

	out, err := ops.OnChat(r.Context(), h.deps, ops.OnChatInput{Session: s})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleOwner handles GET /api/owners/{owner}. HTMX requests get the panel fragment.
func (h *Handlers) HandleOwner(w http.ResponseWriter, r *http.Request) {
	out, err := ops.Get(r.Context(), h.deps, ops.GetInput{Owner: ownerFrom(r), Session: h.session.get()})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if isHTMX(r) {
		h.renderer.renderBlock(w, http.StatusOK, "panels", "owner-panel", out)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandlePrompt handles GET /api/owners/{owner}/prompt and previews the extraction prompt.
func (h *Handlers) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	out, err := ops.Preview(r.Context(), h.deps, ops.PreviewInput{Owner: ownerFrom(r), Session: h.session.get()})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleExtract handles POST /api/owners/{owner}/extract.
func (h *Handlers) HandleExtract(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if hasJSONBody(r) {
		if err := decodeJSON(w, r, &body); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	}

	out, err := ops.Extract(r.Context(), h.deps, ops.ExtractInput{Owner: ownerFrom(r), Session: h.sessionFor(body)})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, out)
}

type applyBody struct {
	sessionBody
	Manual         map[string]string `json:"manual,omitempty"`
	ManualLocation *string           `json:"manual_location,omitempty"`
	Suggestions    map[string]string `json:"suggestions,omitempty"`
	UsePending     bool              `json:"use_pending,omitempty"`
}

// HandleApply handles POST /api/owners/{owner}/apply. It accepts a JSON body
// or the panel form, where inputs are named "manual.<key>" and "location".
func (h *Handlers) HandleApply(w http.ResponseWriter, r *http.Request) {
	var body applyBody
	if hasJSONBody(r) {
		if err := decodeJSON(w, r, &body); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
			return
		}
		body.Manual = map[string]string{}
		for name, values := range r.PostForm {
			if key, ok := strings.CutPrefix(name, "manual."); ok && len(values) > 0 {
				body.Manual[key] = values[0]
			}
		}
		if _, ok := r.PostForm["location"]; ok {
			loc := r.PostFormValue("location")
			body.ManualLocation = &loc
		}
		body.UsePending = r.PostFormValue("use_pending") == "true"
	}

	out, err := ops.Apply(r.Context(), h.deps, ops.ApplyInput{
		Owner:          ownerFrom(r),
		Session:        h.sessionFor(body.sessionBody),
		Manual:         body.Manual,
		ManualLocation: body.ManualLocation,
		Suggestions:    body.Suggestions,
		UsePending:     body.UsePending,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, out)
}

// HandleResetCharacter handles POST /api/characters/{id}/reset.
func (h *Handlers) HandleResetCharacter(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ResetCharacter(r.Context(), h.deps, ops.ResetCharacterInput{
		CharacterID: r.PathValue("id"),
		Session:     h.session.get(),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, out)
}

// HandleGetSettings handles GET /api/settings.
func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	out, err := ops.GetSettings(r.Context(), h.deps)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

type settingsBody struct {
	CustomFieldsCSV *string  `json:"custom_fields_csv,omitempty"`
	CustomFields    []string `json:"custom_fields,omitempty"`
	AutoUpdate      *bool    `json:"auto_update,omitempty"`
	PromptTemplate  *string  `json:"prompt_template,omitempty"`
}

// HandleUpdateSettings handles PUT /api/settings and the settings form
// (POST /api/settings). An unchecked auto_update box in the form means off.
func (h *Handlers) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	if hasJSONBody(r) {
		if err := decodeJSON(w, r, &body); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
			return
		}
		if _, ok := r.PostForm["custom_fields"]; ok {
			csv := r.PostFormValue("custom_fields")
			body.CustomFieldsCSV = &csv
		}
		if _, ok := r.PostForm["prompt_template"]; ok {
			tpl := r.PostFormValue("prompt_template")
			body.PromptTemplate = &tpl
		}
		auto := r.PostFormValue("auto_update") == "true"
		body.AutoUpdate = &auto
	}

	out, err := ops.UpdateSettings(r.Context(), h.deps, ops.UpdateSettingsInput{
		CustomFieldsCSV: body.CustomFieldsCSV,
		CustomFields:    body.CustomFields,
		AutoUpdate:      body.AutoUpdate,
		PromptTemplate:  body.PromptTemplate,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, out)
}

// HandleResetSettings handles DELETE /api/settings and restores default settings.
func (h *Handlers) HandleResetSettings(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ResetSettings(r.Context(), h.deps)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, out)
}

// HandleAddField handles POST /api/settings/fields.
func (h *Handlers) HandleAddField(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if hasJSONBody(r) {
		if err := decodeJSON(w, r, &body); err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
	} else {
		body.Name = r.PostFormValue("name")
	}

	out, err := ops.AddField(r.Context(), h.deps, body.Name)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, out)
}

// HandleRemoveField handles DELETE /api/settings/fields/{name}.
func (h *Handlers) HandleRemoveField(w http.ResponseWriter, r *http.Request) {
	out, err := ops.RemoveField(r.Context(), h.deps, r.PathValue("name"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, out)
}

// respond finishes a mutation: HTMX clients are sent back to the panels,
// JSON clients get the result, and plain form posts are redirected.
func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, data any) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", "/panels")
		w.WriteHeader(http.StatusOK)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, data)
		return
	}
	http.Redirect(w, r, "/panels", http.StatusSeeOther)
}

// ownerFrom reads the owner from the path and character_id from the query.
func ownerFrom(r *http.Request) ops.OwnerInput {
	return ops.OwnerInput{
		Kind:        r.PathValue("owner"),
		CharacterID: r.URL.Query().Get("character_id"),
	}
}

func hasJSONBody(r *http.Request) bool {
	return r.ContentLength != 0 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// decodeJSON reads a single JSON value from a size-limited body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
