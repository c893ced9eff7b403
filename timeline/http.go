package timeline

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/rewind/shield"
)

// maxUpload bounds an ad-hoc screenshot upload.
const maxUpload = 32 << 20

// Routes mounts the JSON API and screenshot serving on r.
func (s *Service) Routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/screenshots/{filename}", s.handleScreenshot)
	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Get("/timeline", s.handleTimeline)
		r.Get("/entries/{timestamp}", s.handleEntry)
		r.Get("/capture_status", s.handleStatus)
		r.Post("/toggle_capture", s.handleToggle)
		r.Post("/adhoc_capture", s.handleAdhoc)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Health(r.Context()))
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	entries, err := s.Search(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	now := s.now()
	out := make([]EntryView, len(entries))
	for i, e := range entries {
		out[i] = newEntryView(e, now, false)
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "count": len(out), "entries": out})
}

func (s *Service) handleTimeline(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Timeline(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timestamps": ts})
}

func (s *Service) handleEntry(w http.ResponseWriter, r *http.Request) {
	ts, err := strconv.ParseInt(chi.URLParam(r, "timestamp"), 10, 64)
	if err != nil {
		s.writeError(w, r, ErrInvalidInput)
		return
	}
	e, err := s.Entry(r.Context(), ts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEntryView(e, s.now(), true))
}

func (s *Service) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	data, err := s.Screenshot(chi.URLParam(r, "filename"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(data)
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": s.Status()})
}

func (s *Service) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.Toggle(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": s.Status()})
}

func (s *Service) handleAdhoc(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected multipart form"})
		return
	}
	file, _, err := r.FormFile("screenshot_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing screenshot_file"})
		return
	}
	defer file.Close()

	e, err := s.IngestAdhoc(r.Context(), Adhoc{
		Image: io.LimitReader(file, maxUpload),
		App:   r.FormValue("app_name"),
		Title: r.FormValue("window_title"),
		URL:   r.FormValue("page_url"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if e == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate", "message": "an entry already exists for this second"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "filename": e.Filename, "timestamp": e.Timestamp})
}

// writeError maps service errors to status codes. Unexpected errors are
// logged and answered with a generic message.
func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrCaptureDisabled), errors.Is(err, ErrArchiveDisabled):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		shield.GetLogger(r.Context()).Error("timeline: request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
