package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/versebook/internal/assets"
	"github.com/starford/versebook/internal/models"
	"github.com/starford/versebook/internal/storage"
	"github.com/starford/versebook/internal/syncengine"
	"github.com/starford/versebook/internal/testutil"
	"github.com/starford/versebook/internal/verseservice"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

type testEnv struct {
	router  http.Handler
	svc     *verseservice.Service
	store   *storage.FS
	dataDir string
}

// newEnv builds the full stack over a temporary fs store.
func newEnv(t *testing.T, authToken string) testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir, storage.FSOptions{})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := syncengine.New(store, syncengine.WithLogger(logger))
	svc := verseservice.New(engine, testutil.TestDB(t), nil, assets.New(store), nil, logger)
	if _, err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Minimal SSE handler stub that blocks until the request ends.
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		<-r.Context().Done()
	})

	router := NewRouter(svc, RouterConfig{
		AuthEnabled: authToken != "",
		Token:       authToken,
		Events:      events,
		AssetDir:    store.AssetDir(),
	})
	return testEnv{router: router, svc: svc, store: store, dataDir: dir}
}

func (e testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func (e testEnv) createCategory(t *testing.T, parentID, name string) verseservice.CategoryItem {
	t.Helper()
	w := e.do(t, http.MethodPost, "/categories", map[string]string{"parent_id": parentID, "name": name})
	if w.Code != http.StatusCreated {
		t.Fatalf("create category = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[verseservice.CategoryItem](t, w)
}

func TestCategoryLifecycle(t *testing.T) {
	env := newEnv(t, "")
	faith := env.createCategory(t, "", "Faith")
	env.createCategory(t, "", "Hope")
	sub := env.createCategory(t, faith.ID, "Trust")

	w := env.do(t, http.MethodPatch, "/categories/"+sub.ID, map[string]string{"name": "Trusting God"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("rename = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/categories/reorder", map[string]int{"old_index": 1, "new_index": 0})
	if w.Code != http.StatusNoContent {
		t.Fatalf("reorder = %d, body = %s", w.Code, w.Body.String())
	}

	list := decode[struct {
		Categories []verseservice.CategoryItem `json:"categories"`
	}](t, env.do(t, http.MethodGet, "/categories", nil))
	if len(list.Categories) != 3 || list.Categories[0].Name != "Hope" {
		t.Fatalf("categories = %+v", list.Categories)
	}
	if list.Categories[2].Path != "Faith / Trusting God" {
		t.Fatalf("sub path = %q", list.Categories[2].Path)
	}

	w = env.do(t, http.MethodDelete, "/categories/"+faith.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	w = env.do(t, http.MethodDelete, "/categories/"+faith.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d, want 404", w.Code)
	}
}

func TestCreateCategoryValidation(t *testing.T) {
	env := newEnv(t, "")
	cases := []struct {
		name string
		body any
		want int
	}{
		{"empty name", map[string]string{"name": ""}, http.StatusBadRequest},
		{"unknown parent", map[string]string{"name": "X", "parent_id": "nope"}, http.StatusBadRequest},
		{"not json", "{", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/categories", tc.body)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestVerseLifecycle(t *testing.T) {
	env := newEnv(t, "")
	c := env.createCategory(t, "", "Love")

	w := env.do(t, http.MethodPost, "/categories/"+c.ID+"/verses", map[string]any{
		"reference": "1 Corinthians 13:4-7",
		"text":      "Love is patient, love is kind",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create verse = %d, body = %s", w.Code, w.Body.String())
	}
	v := decode[verseservice.VerseDetail](t, w)
	if !strings.HasSuffix(v.Link, "/1CO.13.4-7") {
		t.Errorf("link = %q", v.Link)
	}

	w = env.do(t, http.MethodPatch, "/verses/"+v.Verse.ID, map[string]any{"notes": "wedding", "images": []string{"a.png"}})
	if w.Code != http.StatusOK {
		t.Fatalf("update verse = %d, body = %s", w.Code, w.Body.String())
	}

	got := decode[verseservice.VerseDetail](t, env.do(t, http.MethodGet, "/verses/"+v.Verse.ID, nil))
	if got.Verse.Notes != "wedding" || len(got.Verse.Images) != 1 || got.CategoryPath != "Love" {
		t.Fatalf("verse = %+v", got)
	}

	w = env.do(t, http.MethodPatch, "/verses/"+v.Verse.ID, map[string]any{"reference": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank reference = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodDelete, "/categories/"+c.ID+"/verses/"+v.Verse.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete verse = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/verses/"+v.Verse.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get deleted verse = %d, want 404", w.Code)
	}
}

func TestSaveWritesDataFile(t *testing.T) {
	env := newEnv(t, "")
	c := env.createCategory(t, "", "Peace")
	env.do(t, http.MethodPost, "/categories/"+c.ID+"/verses", map[string]string{"reference": "John 14:27"})

	status := decode[syncengine.Info](t, env.do(t, http.MethodGet, "/status", nil))
	if !status.Dirty {
		t.Fatalf("status before save = %+v", status)
	}

	w := env.do(t, http.MethodPost, "/sync/save", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[SyncResponse](t, w)
	if resp.Result.Outcome != syncengine.OutcomeSaved || resp.Result.Status != syncengine.StatusClean {
		t.Fatalf("save result = %+v", resp.Result)
	}

	raw, err := os.ReadFile(filepath.Join(env.dataDir, storage.DefaultDataFile))
	if err != nil {
		t.Fatalf("data file not written: %v", err)
	}
	if !bytes.Contains(raw, []byte("John 14:27")) {
		t.Errorf("data file missing verse: %s", raw)
	}

	hist := decode[struct {
		Entries []map[string]any `json:"entries"`
	}](t, env.do(t, http.MethodGet, "/sync/history", nil))
	if len(hist.Entries) == 0 || hist.Entries[0]["op"] != "save" {
		t.Fatalf("history = %+v", hist.Entries)
	}
}

func TestConflictAndResolve(t *testing.T) {
	env := newEnv(t, "")
	env.createCategory(t, "", "Local")

	// Another writer saves a newer document behind our back.
	remote := models.New(time.Now().Add(time.Hour))
	content, err := models.Encode(remote)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.store.Save(context.Background(), content, ""); err != nil {
		t.Fatal(err)
	}

	resp := decode[SyncResponse](t, env.do(t, http.MethodPost, "/sync/pull", nil))
	if resp.Result.Outcome != syncengine.OutcomeConflict || resp.Result.Conflict == nil {
		t.Fatalf("pull result = %+v", resp.Result)
	}

	w := env.do(t, http.MethodPost, "/sync/save", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("save while conflict pending = %d, want 409", w.Code)
	}

	w = env.do(t, http.MethodPost, "/sync/resolve", map[string]string{"choice": "merge"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid choice = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/sync/resolve", map[string]string{"choice": "use_remote"})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve = %d, body = %s", w.Code, w.Body.String())
	}
	doc, err := models.Decode(env.do(t, http.MethodGet, "/document", nil).Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Categories) != 0 {
		t.Fatalf("remote document not adopted: %+v", doc.Categories)
	}

	w = env.do(t, http.MethodPost, "/sync/resolve", map[string]string{"choice": "keep_local"})
	if w.Code != http.StatusConflict {
		t.Errorf("resolve without conflict = %d, want 409", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := newEnv(t, "")
	c := env.createCategory(t, "", "Strength")
	env.do(t, http.MethodPost, "/categories/"+c.ID+"/verses", map[string]string{
		"reference": "Isaiah 40:31",
		"text":      "they shall mount up with wings as eagles",
	})

	w := env.do(t, http.MethodGet, "/search?q=eagles", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	res := decode[struct {
		Results []map[string]any `json:"results"`
	}](t, w)
	if len(res.Results) != 1 {
		t.Fatalf("results = %+v", res.Results)
	}

	if w := env.do(t, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing query = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newEnv(t, "secret")
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := newEnv(t, "secret")
	w := env.do(t, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newEnv(t, "secret")
	h := CORSMiddleware([]string{"http://localhost:5173"})(env.router)

	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow origin = %q", got)
	}
	if w.Code == http.StatusUnauthorized {
		t.Error("pre-flight must not require auth")
	}
}

// Attachment tests.

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadAndServeAttachment(t *testing.T) {
	env := newEnv(t, "")

	w := uploadFile(t, env.router, "photo.png", pngBytes)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	a := decode[assets.Asset](t, w)
	if !strings.HasSuffix(a.Name, "photo.png") || a.ContentType != "image/png" {
		t.Fatalf("asset = %+v", a)
	}

	data, err := os.ReadFile(filepath.Join(env.store.AssetDir(), a.Name))
	if err != nil {
		t.Fatalf("file not on disk: %v", err)
	}
	if !bytes.Equal(data, pngBytes) {
		t.Error("content mismatch")
	}

	w = env.do(t, http.MethodGet, "/assets/"+a.Name, nil)
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), pngBytes) {
		t.Fatalf("serve asset = %d", w.Code)
	}
}

func TestUploadAttachment_Rejected(t *testing.T) {
	env := newEnv(t, "")
	if w := uploadFile(t, env.router, "notes.txt", []byte("plain text")); w.Code != http.StatusBadRequest {
		t.Errorf("disallowed extension = %d, want 400", w.Code)
	}
	if w := uploadFile(t, env.router, "fake.png", []byte("not a png at all")); w.Code != http.StatusBadRequest {
		t.Errorf("bad magic bytes = %d, want 400", w.Code)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestUploadAttachmentFromDataURI(t *testing.T) {
	env := newEnv(t, "")
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	w := env.do(t, http.MethodPost, "/attachments", map[string]string{"source": uri, "filename": "inline.png"})
	if w.Code != http.StatusCreated {
		t.Fatalf("import = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestServeAttachment_TraversalBlocked(t *testing.T) {
	ah := NewAttachmentHandler(nil, t.TempDir())
	r := chi.NewRouter()
	r.Get("/assets/{filename}", ah.ServeFile)

	for _, name := range []string{"../secret.md", "../../etc/passwd", "nope.png"} {
		req := httptest.NewRequest(http.MethodGet, "/assets/"+name, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code == http.StatusOK {
			t.Errorf("%q should not return 200", name)
		}
	}
}

func TestStatusOf(t *testing.T) {
	env := newEnv(t, "")
	w := env.do(t, http.MethodPost, "/sync/resolve", map[string]string{"choice": "keep_local"})
	if w.Code != http.StatusConflict {
		t.Errorf("no conflict = %d, want 409", w.Code)
	}
	body := decode[SyncResponse](t, w)
	if body.Error == "" {
		t.Error("expected an error message")
	}
}
