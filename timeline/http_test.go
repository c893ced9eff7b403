package timeline

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func testRouter(t *testing.T) (*Service, http.Handler) {
	t.Helper()
	s := testService(t, testConfig(t), Deps{Now: func() time.Time { return time.Unix(1700000000, 0) }})
	r := chi.NewRouter()
	s.Routes(r)
	return s, r
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var body map[string]any
	if ct := w.Header().Get("Content-Type"); ct == "application/json" {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", w.Body.String(), err)
		}
	}
	return w, body
}

func multipartUpload(t *testing.T, img []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if img != nil {
		fw, err := mw.CreateFormFile("screenshot_file", "shot.png")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(img)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/adhoc_capture", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHTTP_AdhocThenBrowse(t *testing.T) {
	_, h := testRouter(t)

	w, body := do(t, h, multipartUpload(t, pngBytes(t, 32, 32), map[string]string{
		"app_name":     "Safari",
		"window_title": "Quarterly <b>plan</b>",
		"page_url":     "https://example.com/?a=1&b=2",
	}))
	if w.Code != http.StatusOK || body["status"] != "success" {
		t.Fatalf("adhoc: %d %v", w.Code, body)
	}
	filename := body["filename"].(string)

	w, body = do(t, h, multipartUpload(t, pngBytes(t, 32, 32), nil))
	if w.Code != http.StatusOK || body["status"] != "duplicate" {
		t.Fatalf("second adhoc in the same second: %d %v", w.Code, body)
	}

	_, body = do(t, h, httptest.NewRequest(http.MethodGet, "/api/timeline", nil))
	if ts := body["timestamps"].([]any); len(ts) != 1 || ts[0].(float64) != 1700000000 {
		t.Fatalf("timeline: %v", body)
	}

	_, body = do(t, h, httptest.NewRequest(http.MethodGet, "/api/search?q=meeting+notes", nil))
	if body["count"].(float64) != 1 {
		t.Fatalf("search: %v", body)
	}
	entry := body["entries"].([]any)[0].(map[string]any)
	if entry["title"] != "Quarterly plan" || entry["page_url"] != "https://example.com/?a=1&b=2" {
		t.Errorf("entry metadata: %v", entry)
	}
	if _, ok := entry["text"]; ok {
		t.Error("search results should carry a preview, not the full text")
	}

	w, body = do(t, h, httptest.NewRequest(http.MethodGet, "/api/entries/1700000000", nil))
	if w.Code != http.StatusOK || body["text"] != "meeting notes" {
		t.Fatalf("entry: %d %v", w.Code, body)
	}

	w, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/screenshots/"+filename, nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" || w.Body.Len() == 0 {
		t.Fatalf("screenshot: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
}

func TestHTTP_Errors(t *testing.T) {
	_, h := testRouter(t)
	tests := []struct {
		name string
		req  *http.Request
		code int
	}{
		{"missing entry", httptest.NewRequest(http.MethodGet, "/api/entries/42", nil), http.StatusNotFound},
		{"bad timestamp", httptest.NewRequest(http.MethodGet, "/api/entries/yesterday", nil), http.StatusBadRequest},
		{"missing screenshot", httptest.NewRequest(http.MethodGet, "/screenshots/1700000000_0_abcd.jpg", nil), http.StatusNotFound},
		{"bad screenshot name", httptest.NewRequest(http.MethodGet, "/screenshots/a%20b.jpg", nil), http.StatusBadRequest},
		{"adhoc without file", multipartUpload(t, nil, map[string]string{"app_name": "x"}), http.StatusBadRequest},
		{"adhoc not an image", multipartUpload(t, []byte("plain text"), nil), http.StatusBadRequest},
		{"adhoc not multipart", httptest.NewRequest(http.MethodPost, "/api/adhoc_capture", nil), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(t, h, tt.req)
			if w.Code != tt.code {
				t.Fatalf("code = %d, want %d (%v)", w.Code, tt.code, body)
			}
			if body["error"] == nil {
				t.Errorf("no error message: %v", body)
			}
		})
	}
}

func TestHTTP_EmptySearch(t *testing.T) {
	_, h := testRouter(t)
	_, body := do(t, h, httptest.NewRequest(http.MethodGet, "/api/search?q=", nil))
	if body["count"].(float64) != 0 {
		t.Fatalf("empty query: %v", body)
	}
	if entries, ok := body["entries"].([]any); !ok || len(entries) != 0 {
		t.Fatalf("entries should be an empty array: %v", body["entries"])
	}
}

func TestHTTP_ToggleCapture(t *testing.T) {
	s, h := testRouter(t)

	_, body := do(t, h, httptest.NewRequest(http.MethodGet, "/api/capture_status", nil))
	if body["status"] != "active" {
		t.Fatalf("status: %v", body)
	}
	_, body = do(t, h, httptest.NewRequest(http.MethodPost, "/api/toggle_capture", nil))
	if body["status"] != "paused" || s.IsActive() {
		t.Fatalf("toggle: %v", body)
	}
	_, body = do(t, h, httptest.NewRequest(http.MethodPost, "/api/toggle_capture", nil))
	if body["status"] != "active" {
		t.Fatalf("toggle back: %v", body)
	}
}

func TestHTTP_Health(t *testing.T) {
	s, h := testRouter(t)
	s.IngestAdhoc(context.Background(), Adhoc{Image: bytes.NewReader(pngBytes(t, 8, 8))})

	w, body := do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || body["status"] != "ok" || body["entries"].(float64) != 1 {
		t.Fatalf("health: %d %v", w.Code, body)
	}
}
