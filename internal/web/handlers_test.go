package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hpungsan/wardrobe/internal/config"
	"github.com/hpungsan/wardrobe/internal/db"
	"github.com/hpungsan/wardrobe/internal/extract"
	"github.com/hpungsan/wardrobe/internal/ops"
	"github.com/hpungsan/wardrobe/internal/prompt"
	"github.com/hpungsan/wardrobe/internal/store"
)

type fixedProvider struct{ reply string }

func (p fixedProvider) Name() string { return "fixed" }

func (p fixedProvider) Generate(context.Context, string) (string, error) { return p.reply, nil }

const sessionJSON = `{
	"user_name": "Alex",
	"character_id": "mira",
	"character": {"id": "mira", "name": "Mira", "description": "A **traveling** bard. <script>alert(1)</script>"},
	"chat": [{"name": "Alex", "is_user": true, "mes": "I put on a beret and walk to the cafe."}]
}`

func setupTest(t *testing.T) (*Handlers, http.Handler) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	deps := &ops.Deps{
		Store:  store.New(database, prompt.DefaultTemplate, nil),
		Engine: extract.NewEngine(fixedProvider{reply: "Headwear: beret\nUser location: cafe"}, nil),
		Board:  ops.NewBoard(),
		Config: config.DefaultConfig(),
	}

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		t.Fatalf("template sub-FS: %v", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		t.Fatalf("static sub-FS: %v", err)
	}

	h := &Handlers{
		deps:     deps,
		renderer: NewRenderer(templateSub, "test", nil),
		session:  &activeSession{},
	}
	return h, securityHeaders(routes(h, nil, staticSub))
}

func do(t *testing.T, handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func fieldOf(t *testing.T, view map[string]any, key string) string {
	t.Helper()
	fields, _ := view["fields"].([]any)
	for _, f := range fields {
		m := f.(map[string]any)
		if m["key"] == key {
			return m["value"].(string)
		}
	}
	t.Fatalf("field %q not in view", key)
	return ""
}

func postSession(t *testing.T, handler http.Handler) {
	t.Helper()
	w := do(t, handler, jsonRequest(http.MethodPut, "/api/session", sessionJSON))
	if w.Code != http.StatusOK {
		t.Fatalf("PUT /api/session status = %d, body = %s", w.Code, w.Body.String())
	}
}

// --- Pages ---

func TestRootRedirectsToPanels(t *testing.T) {
	_, handler := setupTest(t)

	w := do(t, handler, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/panels" {
		t.Errorf("Location = %q, want /panels", loc)
	}
}

func TestHandlePanels_NoCharacter(t *testing.T) {
	_, handler := setupTest(t)

	w := do(t, handler, httptest.NewRequest(http.MethodGet, "/panels", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"<!DOCTYPE html>", `id="panel-user"`, "No active character", `id="settings"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestHandlePanels_WithCharacter(t *testing.T) {
	_, handler := setupTest(t)
	postSession(t, handler)

	w := do(t, handler, httptest.NewRequest(http.MethodGet, "/panels", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `id="panel-char"`) {
		t.Error("character panel missing")
	}
	if !strings.Contains(body, "<strong>traveling</strong>") {
		t.Error("description not rendered as markdown")
	}
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("raw HTML from the character card leaked into the page")
	}
	if !strings.Contains(body, "/api/characters/mira/reset") {
		t.Error("reset form missing")
	}
}

func TestHandlePanels_HTMXRendersContentOnly(t *testing.T) {
	_, handler := setupTest(t)

	req := httptest.NewRequest(http.MethodGet, "/panels", nil)
	req.Header.Set("HX-Request", "true")
	w := do(t, handler, req)
	if strings.Contains(w.Body.String(), "<!DOCTYPE html>") {
		t.Error("HTMX response should not include the layout")
	}
}

func TestStaticAssets(t *testing.T) {
	_, handler := setupTest(t)

	for _, path := range []string{"/static/app.css", "/static/app.js"} {
		w := do(t, handler, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, w.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, handler := setupTest(t)

	w := do(t, handler, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "wardrobe_extraction_duration_seconds") {
		t.Error("metrics output missing wardrobe histogram")
	}
}

// --- Owners ---

func TestHandleOwner(t *testing.T) {
	_, handler := setupTest(t)
	postSession(t, handler)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantName   string
	}{
		{"user", "/api/owners/user", http.StatusOK, "Alex"},
		{"active character", "/api/owners/char", http.StatusOK, "Mira"},
		{"explicit character", "/api/owners/char?character_id=other", http.StatusOK, "Mira"},
		{"bad owner", "/api/owners/dog", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.Header.Set("Accept", "application/json")
			w := do(t, handler, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
			out := decodeBody(t, w)
			if tt.wantName != "" && out["name"] != tt.wantName {
				t.Errorf("name = %v, want %s", out["name"], tt.wantName)
			}
			if tt.wantStatus == http.StatusBadRequest {
				errObj := out["error"].(map[string]any)
				if errObj["code"] != "INVALID_REQUEST" {
					t.Errorf("code = %v, want INVALID_REQUEST", errObj["code"])
				}
			}
		})
	}
}

func TestHandleOwner_HTMLErrorPage(t *testing.T) {
	_, handler := setupTest(t)

	w := do(t, handler, httptest.NewRequest(http.MethodGet, "/api/owners/dog", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), `class="error-message"`) {
		t.Error("error page missing message")
	}
}

func TestHandleOwner_HTMXFragment(t *testing.T) {
	_, handler := setupTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/owners/user", nil)
	req.Header.Set("HX-Request", "true")
	w := do(t, handler, req)
	body := w.Body.String()
	if !strings.Contains(body, `id="panel-user"`) {
		t.Error("fragment missing user panel")
	}
	if strings.Contains(body, "<!DOCTYPE html>") {
		t.Error("fragment should not include the layout")
	}
}

func TestHandleExtractThenApply(t *testing.T) {
	_, handler := setupTest(t)

	w := do(t, handler, jsonRequest(http.MethodPost, "/api/owners/user/extract", `{"session": `+sessionJSON+`}`))
	if w.Code != http.StatusOK {
		t.Fatalf("extract status = %d, body = %s", w.Code, w.Body.String())
	}
	out := decodeBody(t, w)
	if out["outcome"] != "ok" {
		t.Fatalf("outcome = %v, want ok", out["outcome"])
	}

	// Extraction is advisory.
	w = do(t, handler, jsonRequest(http.MethodGet, "/api/owners/user", ""))
	if got := fieldOf(t, decodeBody(t, w), "headwear"); got != "unknown" {
		t.Fatalf("headwear before apply = %q, want unknown", got)
	}

	w = do(t, handler, jsonRequest(http.MethodPost, "/api/owners/user/apply", `{"use_pending": true, "manual": {"Footwear": "loafers"}}`))
	if w.Code != http.StatusOK {
		t.Fatalf("apply status = %d, body = %s", w.Code, w.Body.String())
	}
	out = decodeBody(t, w)
	if got := fieldOf(t, out, "headwear"); got != "beret" {
		t.Errorf("headwear = %q, want beret", got)
	}
	if got := fieldOf(t, out, "footwear"); got != "loafers" {
		t.Errorf("footwear = %q, want loafers", got)
	}
	if out["location"] != "cafe" {
		t.Errorf("location = %v, want cafe", out["location"])
	}
}

func TestHandleApply_Form(t *testing.T) {
	_, handler := setupTest(t)

	form := url.Values{}
	form.Set("manual.headwear", "cap")
	form.Set("manual.footwear", "unknown")
	form.Set("location", "porch")
	req := httptest.NewRequest(http.MethodPost, "/api/owners/user/apply", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := do(t, handler, req)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303; body = %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/panels" {
		t.Errorf("Location = %q, want /panels", loc)
	}

	w = do(t, handler, jsonRequest(http.MethodGet, "/api/owners/user", ""))
	out := decodeBody(t, w)
	if got := fieldOf(t, out, "headwear"); got != "cap" {
		t.Errorf("headwear = %q, want cap", got)
	}
	if out["location"] != "porch" {
		t.Errorf("location = %v, want porch", out["location"])
	}
}

func TestHandleApply_HTMXRedirects(t *testing.T) {
	_, handler := setupTest(t)

	form := url.Values{"manual.headwear": {"cap"}}
	req := httptest.NewRequest(http.MethodPost, "/api/owners/user/apply", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	w := do(t, handler, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("HX-Redirect"); got != "/panels" {
		t.Errorf("HX-Redirect = %q, want /panels", got)
	}
}

func TestHandleApply_UnknownField(t *testing.T) {
	_, handler := setupTest(t)

	w := do(t, handler, jsonRequest(http.MethodPost, "/api/owners/user/apply", `{"manual": {"cape": "red"}}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	errObj := decodeBody(t, w)["error"].(map[string]any)
	details, _ := errObj["details"].(map[string]any)
	if details["field"] != "cape" {
		t.Errorf("details = %v, want field cape", errObj["details"])
	}
}

func TestHandleApply_InvalidJSON(t *testing.T) {
	_, handler := setupTest(t)

	w := do(t, handler, jsonRequest(http.MethodPost, "/api/owners/user/apply", `{"manual":`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleResetCharacter(t *testing.T) {
	_, handler := setupTest(t)
	postSession(t, handler)

	w := do(t, handler, jsonRequest(http.MethodPost, "/api/owners/char/apply", `{"manual": {"headwear": "crown"}, "manual_location": "stage"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("apply status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, handler, jsonRequest(http.MethodPost, "/api/characters/mira/reset", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d, body = %s", w.Code, w.Body.String())
	}
	out := decodeBody(t, w)
	if got := fieldOf(t, out, "headwear"); got != "unknown" {
		t.Errorf("headwear after reset = %q, want unknown", got)
	}
	if out["location"] != "" {
		t.Errorf("location after reset = %v, want empty", out["location"])
	}
}

func TestHandlePrompt(t *testing.T) {
	_, handler := setupTest(t)
	postSession(t, handler)

	w := do(t, handler, jsonRequest(http.MethodGet, "/api/owners/char/prompt", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	out := decodeBody(t, w)
	p, _ := out["prompt"].(string)
	if !strings.Contains(p, "Character location: unknown") {
		t.Errorf("prompt missing location line:\n%s", p)
	}
}

func TestHandleChat(t *testing.T) {
	_, handler := setupTest(t)

	w := do(t, handler, jsonRequest(http.MethodPost, "/api/chat", sessionJSON))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if out := decodeBody(t, w); out["skipped"] != true {
		t.Errorf("skipped = %v, want true with auto-update off", out["skipped"])
	}

	// The posted session became active.
	w = do(t, handler, jsonRequest(http.MethodGet, "/api/session", ""))
	if out := decodeBody(t, w); out["user_name"] != "Alex" {
		t.Errorf("active user_name = %v, want Alex", out["user_name"])
	}

	w = do(t, handler, jsonRequest(http.MethodPut, "/api/settings", `{"auto_update": true}`))
	if w.Code != http.StatusOK {
		t.Fatalf("settings status = %d", w.Code)
	}
	w = do(t, handler, jsonRequest(http.MethodPost, "/api/chat", sessionJSON))
	out := decodeBody(t, w)
	results, _ := out["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("results = %v, want user and character", out["results"])
	}
}

// --- Settings ---

func TestHandleSettings_JSON(t *testing.T) {
	_, handler := setupTest(t)

	w := do(t, handler, jsonRequest(http.MethodPut, "/api/settings", `{"custom_fields_csv": "gloves, scarf, gloves"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := fmt.Sprint(decodeBody(t, w)["custom_fields"]); got != "[gloves scarf]" {
		t.Errorf("custom_fields = %s, want [gloves scarf]", got)
	}

	w = do(t, handler, jsonRequest(http.MethodPost, "/api/settings/fields", `{"name": "belt"}`))
	if got := fmt.Sprint(decodeBody(t, w)["custom_fields"]); got != "[gloves scarf belt]" {
		t.Errorf("after add = %s", got)
	}

	w = do(t, handler, jsonRequest(http.MethodDelete, "/api/settings/fields/scarf", ""))
	if got := fmt.Sprint(decodeBody(t, w)["custom_fields"]); got != "[gloves belt]" {
		t.Errorf("after remove = %s", got)
	}

	w = do(t, handler, jsonRequest(http.MethodDelete, "/api/settings/fields/scarf", ""))
	if w.Code != http.StatusBadRequest {
		t.Errorf("removing a missing field status = %d, want 400", w.Code)
	}

	w = do(t, handler, jsonRequest(http.MethodDelete, "/api/settings", ""))
	out := decodeBody(t, w)
	if fields, _ := out["custom_fields"].([]any); len(fields) != 0 {
		t.Errorf("custom_fields after reset = %v, want none", out["custom_fields"])
	}
	if out["template_is_default"] != true {
		t.Error("template not restored to default")
	}
}

func TestHandleSettings_NothingToUpdate(t *testing.T) {
	_, handler := setupTest(t)

	w := do(t, handler, jsonRequest(http.MethodPut, "/api/settings", `{}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleSettings_Form(t *testing.T) {
	_, handler := setupTest(t)

	form := url.Values{}
	form.Set("custom_fields", "gloves")
	form.Set("auto_update", "true")
	req := httptest.NewRequest(http.MethodPost, "/api/settings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := do(t, handler, req)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303; body = %s", w.Code, w.Body.String())
	}

	w = do(t, handler, jsonRequest(http.MethodGet, "/api/settings", ""))
	out := decodeBody(t, w)
	if out["auto_update"] != true {
		t.Error("auto_update not enabled by form")
	}
	if got := fmt.Sprint(out["custom_fields"]); got != "[gloves]" {
		t.Errorf("custom_fields = %s, want [gloves]", got)
	}

	// An unchecked box turns auto-update off.
	form = url.Values{"custom_fields": {"gloves"}}
	req = httptest.NewRequest(http.MethodPost, "/api/settings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	do(t, handler, req)

	w = do(t, handler, jsonRequest(http.MethodGet, "/api/settings", ""))
	if decodeBody(t, w)["auto_update"] != false {
		t.Error("auto_update still on after unchecked form")
	}
}

// --- Rendering ---

func TestRenderError_InternalHidesDetails(t *testing.T) {
	h, _ := setupTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/owners/user", nil)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	h.renderer.renderError(w, req, fmt.Errorf("disk on fire"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "disk on fire") {
		t.Error("internal error message leaked to the client")
	}
	errObj := decodeBody(t, w)["error"].(map[string]any)
	if errObj["code"] != "INTERNAL" {
		t.Errorf("code = %v, want INTERNAL", errObj["code"])
	}
}

func TestRenderError_HTMXFragment(t *testing.T) {
	h, _ := setupTest(t)

	req := httptest.NewRequest(http.MethodGet, "/panels", nil)
	req.Header.Set("HX-Request", "true")
	w := httptest.NewRecorder()
	h.renderer.renderError(w, req, fmt.Errorf("boom"))

	if got := w.Body.String(); !strings.HasPrefix(got, `<div class="error-message">`) {
		t.Errorf("body = %q, want error fragment", got)
	}
}

func TestRenderMarkdown(t *testing.T) {
	got := string(renderMarkdown("A *quiet* bard."))
	if !strings.Contains(got, "<em>quiet</em>") {
		t.Errorf("renderMarkdown = %q", got)
	}
}
