package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"symposium/api/internal/cache"
	"symposium/api/internal/content"
	"symposium/api/internal/store"
	"symposium/api/internal/workflow"
)

func TestHealthEndpoint(t *testing.T) {
	server, _ := newFakeEnv(&fakeStore{})
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if body := decode[map[string]any](t, rr); body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestReadyEndpoint(t *testing.T) {
	cases := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantState  string
	}{
		{"healthy", nil, http.StatusOK, "ready"},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, "not_ready"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server, _ := newFakeEnv(&fakeStore{pingFn: func(context.Context) error { return tc.pingErr }})
			rr := httptest.NewRecorder()
			server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			body := decode[map[string]any](t, rr)
			if body["status"] != tc.wantState {
				t.Fatalf("expected status=%s, got %v", tc.wantState, body["status"])
			}
			checks, _ := body["checks"].(map[string]any)
			if _, ok := checks["database"]; !ok {
				t.Fatalf("expected database check, got %v", body["checks"])
			}
			if _, ok := checks["cache"]; ok {
				t.Fatal("cache check should be absent when no cache is configured")
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	server, _ := newFakeEnv(&fakeStore{})
	req := httptest.NewRequest(http.MethodOptions, "/api/feed", nil)
	req.Header.Set("Origin", "https://symposium.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _ := newFakeEnv(&fakeStore{})
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "NOT_FOUND" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestPublishHookOnlyText(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, jsonRequest(http.MethodPost, "/api/content", hookOnly))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[content.Aggregate](t, rr)
	if created.ID == "" || created.DateCreated.IsZero() {
		t.Fatalf("expected id and date, got %+v", created)
	}

	rr = env.do(t, httptest.NewRequest(http.MethodGet, "/api/content/"+created.ID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	got := decode[content.Aggregate](t, rr)
	if got.ContentType != "" {
		t.Fatalf("content type should be unset, got %q", got.ContentType)
	}
	if len(got.Full.Sections) != 1 || got.Full.Sections[0].Title != content.PlaceholderSection {
		t.Fatalf("expected placeholder section, got %+v", got.Full.Sections)
	}
	if got.Creator != content.DefaultAuthor {
		t.Fatalf("creator = %q", got.Creator)
	}
}

func TestPublishValidationError(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, jsonRequest(http.MethodPost, "/api/content", `{"discipline":"Y","complexity":11,"hook":{"medium":{"text":"hi"}}}`))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decode[map[string]any](t, rr)
	if body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("code = %v", body["code"])
	}
	details, _ := body["details"].([]any)
	if len(details) < 2 {
		t.Fatalf("expected topic and complexity errors, got %v", body["details"])
	}
}

func TestPublishInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, jsonRequest(http.MethodPost, "/api/content", `{"topic":`))
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "INVALID_BODY" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestPublishMultipartWithVideo(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/content",
		map[string]string{"content": hookOnly, "mainDuration": "90"},
		filePart{field: "mainVideo", filename: "lecture.mp4", contentType: "video/mp4", body: "frames"},
	)
	rr := env.do(t, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[content.Aggregate](t, rr)
	if got.Main.Medium.Kind != content.KindVideo || !strings.HasPrefix(got.Main.Medium.VideoURL, "https://media.test/videos/") {
		t.Fatalf("main medium = %+v", got.Main.Medium)
	}
	if got.Main.Medium.Duration != 90 {
		t.Fatalf("duration = %d", got.Main.Medium.Duration)
	}
	if got.ContentType != content.TypeMixed {
		t.Fatalf("content type = %q", got.ContentType)
	}
	if env.objects.putCount() != 1 {
		t.Fatalf("puts = %d", env.objects.putCount())
	}
}

func TestPublishMultipartRejectsBadVideoType(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/content",
		map[string]string{"content": hookOnly},
		filePart{field: "hookVideo", filename: "clip.webm", contentType: "video/webm", body: "frames"},
	)
	rr := env.do(t, req)
	if rr.Code != http.StatusUnsupportedMediaType || errorCode(t, rr) != "INVALID_MEDIA_TYPE" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
	if env.objects.putCount() != 0 {
		t.Fatal("object store should not be contacted")
	}
	page, err := env.repo.FeedPage(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatal("nothing should be persisted")
	}
}

func TestPublishMultipartRequiresContentField(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, multipartRequest(t, "/api/content", map[string]string{"other": "x"}))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPublishUploadFailure(t *testing.T) {
	env := newTestEnv(t)
	env.objects.failErr = errors.New("bucket gone")
	req := multipartRequest(t, "/api/content",
		map[string]string{"content": hookOnly},
		filePart{field: "fullVideo", filename: "full.mov", contentType: "video/quicktime", body: "frames"},
	)
	rr := env.do(t, req)
	if rr.Code != http.StatusBadGateway || errorCode(t, rr) != "UPLOAD_FAILED" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestGetContentNotFound(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/api/content/missing", nil))
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "NOT_FOUND" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestStoreUnavailable(t *testing.T) {
	server, _ := newFakeEnv(&fakeStore{feedFn: func(context.Context, int, string) (store.Page, error) {
		return store.Page{}, content.ErrUnavailable
	}})
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/feed", nil))
	if rr.Code != http.StatusServiceUnavailable || errorCode(t, rr) != "UNAVAILABLE" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestTierView(t *testing.T) {
	env := newTestEnv(t)
	created := decode[content.Aggregate](t, env.do(t, jsonRequest(http.MethodPost, "/api/content",
		`{"topic":"X","discipline":"Y","hook":{"medium":{"text":"hi"}},"main":{"medium":{"text":"body"},"keyPoints":["one",""]}}`)))

	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/api/content/"+created.ID+"/tiers/main", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	view := decode[content.View](t, rr)
	if view.Tier != content.TierMain || view.Medium.Text != "body" {
		t.Fatalf("unexpected view: %+v", view)
	}

	rr = env.do(t, httptest.NewRequest(http.MethodGet, "/api/content/"+created.ID+"/tiers/deep", nil))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown tier, got %d", rr.Code)
	}
}

func TestFeedPagination(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		if rr := env.do(t, jsonRequest(http.MethodPost, "/api/content", hookOnly)); rr.Code != http.StatusCreated {
			t.Fatalf("publish %d: %d", i, rr.Code)
		}
	}

	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/api/feed?limit=2", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	first := decode[store.Page](t, rr)
	if len(first.Items) != 2 || first.NextCursor == "" {
		t.Fatalf("unexpected first page: %d items, cursor %q", len(first.Items), first.NextCursor)
	}

	rr = env.do(t, httptest.NewRequest(http.MethodGet, "/api/feed?limit=2&cursor="+first.NextCursor, nil))
	second := decode[store.Page](t, rr)
	if len(second.Items) != 1 || second.NextCursor != "" {
		t.Fatalf("unexpected second page: %+v", second)
	}
	if second.Items[0].ID == first.Items[0].ID || second.Items[0].ID == first.Items[1].ID {
		t.Fatal("pages overlap")
	}

	rr = env.do(t, httptest.NewRequest(http.MethodGet, "/api/feed?limit=abc", nil))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad limit, got %d", rr.Code)
	}
	rr = env.do(t, httptest.NewRequest(http.MethodGet, "/api/feed?cursor=garbage", nil))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad cursor, got %d", rr.Code)
	}
}

func TestEmptyFeed(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/api/feed", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"items":[]`) {
		t.Fatalf("expected empty items array, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRespondJSON(t *testing.T) {
	env := newTestEnv(t)
	created := decode[content.Aggregate](t, env.do(t, jsonRequest(http.MethodPost, "/api/content", hookOnly)))

	rr := env.do(t, jsonRequest(http.MethodPost, "/api/content/"+created.ID+"/responses",
		`{"medium":{"text":"agreed"},"citations":[{"text":"Smith 2020","url":"https://example.org/smith"}]}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	result := decode[workflow.Result](t, rr)
	if result.ResponseID == "" || len(result.Content.Responses) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	got := result.Content.Responses[0]
	if got.ID != result.ResponseID || got.Author != content.DefaultAuthor || got.DateCreated.IsZero() {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestRespondMultipartVideo(t *testing.T) {
	env := newTestEnv(t)
	created := decode[content.Aggregate](t, env.do(t, jsonRequest(http.MethodPost, "/api/content", hookOnly)))

	req := multipartRequest(t, "/api/content/"+created.ID+"/responses",
		map[string]string{"response": `{"author":"Ada"}`, "duration": "12"},
		filePart{field: "video", filename: "reply.avi", contentType: "video/x-msvideo", body: "frames"},
	)
	rr := env.do(t, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	result := decode[workflow.Result](t, rr)
	got := result.Content.Responses[0]
	if got.Medium.Kind != content.KindVideo || got.Medium.Duration != 12 || got.Author != "Ada" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestRespondMissingParent(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, jsonRequest(http.MethodPost, "/api/content/missing/responses", `{"medium":{"text":"hello"}}`))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRespondVideoToMissingParentStoresNothing(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/content/missing/responses",
		map[string]string{"response": `{"author":"Ada"}`},
		filePart{field: "video", filename: "reply.mp4", contentType: "video/mp4", body: "frames"},
	)
	rr := env.do(t, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
	if n := env.objects.putCount(); n != 0 {
		t.Fatalf("no video should be uploaded for a missing parent, got %d", n)
	}
}

func TestRespondRefetchFailureReturnsResponseID(t *testing.T) {
	fs := &fakeStore{
		appendFn: func(context.Context, string, content.Response) (string, error) { return "resp-9", nil },
		getFn: func(context.Context, string) (content.Aggregate, error) {
			return content.Aggregate{}, content.ErrUnavailable
		},
	}
	server, _ := newFakeEnv(fs)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/content/c1/responses", `{"medium":{"text":"hi"}}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("stored response should report 201, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decode[map[string]any](t, rr)
	if body["responseId"] != "resp-9" || body["content"] != nil {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestRespondEmptyMedium(t *testing.T) {
	env := newTestEnv(t)
	created := decode[content.Aggregate](t, env.do(t, jsonRequest(http.MethodPost, "/api/content", hookOnly)))
	rr := env.do(t, jsonRequest(http.MethodPost, "/api/content/"+created.ID+"/responses", `{}`))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMediaUploadEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, multipartRequest(t, "/api/media/videos", nil,
		filePart{field: "file", filename: "a.mp4", contentType: "video/mp4", body: "frames"}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if url, _ := decode[map[string]any](t, rr)["url"].(string); !strings.HasPrefix(url, "https://media.test/videos/") {
		t.Fatalf("url = %q", url)
	}

	rr = env.do(t, multipartRequest(t, "/api/media/images", nil,
		filePart{field: "file", filename: "chart.png", contentType: "image/png", body: "png"}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, multipartRequest(t, "/api/media/videos", nil,
		filePart{field: "file", filename: "notes.txt", contentType: "text/plain", body: "words"}))
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rr.Code)
	}
	if env.objects.putCount() != 2 {
		t.Fatalf("puts = %d", env.objects.putCount())
	}

	rr = env.do(t, multipartRequest(t, "/api/media/videos", map[string]string{"nofile": "x"}))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing file, got %d", rr.Code)
	}
	rr = env.do(t, jsonRequest(http.MethodPost, "/api/media/videos", `{}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart upload, got %d", rr.Code)
	}
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.server.maxUploadBytes = 64
	rr := env.do(t, multipartRequest(t, "/api/media/videos", nil,
		filePart{field: "file", filename: "a.mp4", contentType: "video/mp4", body: strings.Repeat("x", 1024)}))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSearchEndpointWithoutIndex(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/api/search?q=tides", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"results":[]`) {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestFeedCacheInvalidatedOnPublishAndRespond(t *testing.T) {
	env := newTestEnv(t)
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache("redis://"+mr.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("redis cache: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	env.service.WithCache(rc)

	feedLen := func() int {
		return len(decode[store.Page](t, env.do(t, httptest.NewRequest(http.MethodGet, "/api/feed", nil))).Items)
	}
	if n := feedLen(); n != 0 {
		t.Fatalf("expected empty feed, got %d", n)
	}
	created := decode[content.Aggregate](t, env.do(t, jsonRequest(http.MethodPost, "/api/content", hookOnly)))
	if n := feedLen(); n != 1 {
		t.Fatalf("publish should invalidate the cached feed, got %d items", n)
	}

	// Warm the item cache, then respond and make sure the stale copy is gone.
	env.do(t, httptest.NewRequest(http.MethodGet, "/api/content/"+created.ID, nil))
	env.do(t, jsonRequest(http.MethodPost, "/api/content/"+created.ID+"/responses", `{"medium":{"text":"hi"}}`))
	got := decode[content.Aggregate](t, env.do(t, httptest.NewRequest(http.MethodGet, "/api/content/"+created.ID, nil)))
	if len(got.Responses) != 1 {
		t.Fatalf("expected fresh aggregate with 1 response, got %d", len(got.Responses))
	}

	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	checks, _ := decode[map[string]any](t, rr)["checks"].(map[string]any)
	if _, ok := checks["cache"]; !ok {
		t.Fatal("ready should report the cache check")
	}
}
