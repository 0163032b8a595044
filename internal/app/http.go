package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"symposium/api/internal/content"
	"symposium/api/internal/logger"
	"symposium/api/internal/search"
)

const slowRequest = 2 * time.Second

type HTTPServer struct {
	service        *Service
	corsOrigin     string
	maxUploadBytes int64
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:        service,
		corsOrigin:     corsOrigin,
		maxUploadBytes: service.cfg.MaxUploadBytes(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(accessLog)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: splitOrigins(s.corsOrigin),
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(jsonHeaders)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Head("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)
		r.Head("/ready", s.handleReady)

		r.Get("/feed", s.handleFeed)
		r.Get("/search", s.handleSearch)

		r.Post("/content", s.handleCreateContent)
		r.Get("/content/{id}", s.handleGetContent)
		r.Get("/content/{id}/tiers/{tier}", s.handleTierView)
		r.Post("/content/{id}/responses", s.handleCreateResponse)

		r.Post("/media/videos", s.handleUploadVideo)
		r.Post("/media/images", s.handleUploadImage)
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	// The cache is optional; a failing cache degrades but does not fail readiness.
	if configured, err := s.service.PingCache(ctx); configured {
		if err != nil {
			checks["cache"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["cache"] = map[string]any{"status": "ok"}
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	page, err := s.service.Feed(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), search.Query{
		Text:       r.URL.Query().Get("q"),
		Discipline: r.URL.Query().Get("discipline"),
		Limit:      limit,
		Offset:     offset,
	}))
}

func (s *HTTPServer) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	input, err := s.readPublishInput(w, r)
	defer input.cleanup()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	item, err := s.service.Publish(r.Context(), input.draft, input.videos)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) handleGetContent(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.Content(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleTierView(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.TierView(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "tier"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleCreateResponse(w http.ResponseWriter, r *http.Request) {
	input, err := s.readResponseInput(w, r)
	defer input.cleanup()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.service.Respond(r.Context(), chi.URLParam(r, "id"), input.response, input.video)
	if err != nil && result.ResponseID != "" {
		// The response is stored; only the parent re-read failed.
		logger.C(r.Context()).Warn().Err(err).Str("response_id", result.ResponseID).Msg("re-read after respond failed")
		writeJSON(w, http.StatusCreated, map[string]any{
			"responseId": result.ResponseID,
			"content":    nil,
		})
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleUploadVideo(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, s.service.UploadVideo)
}

func (s *HTTPServer) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, s.service.UploadImage)
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	log := logger.C(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", code).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("code", code).Msg("request rejected")
	}
	writeError(w, status, code, message, details)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := chimw.GetReqID(r.Context())
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))

		started := time.Now()
		writer := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		status := writer.Status()
		if status == 0 {
			status = http.StatusOK
		}
		event := logger.C(r.Context()).Info()
		if elapsed > slowRequest {
			event = logger.C(r.Context()).Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", writer.BytesWritten()).
			Dur("elapsed", elapsed).
			Msg("http request")
	})
}

func jsonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return payloadTooLarge(tooLarge.Limit)
		}
		return domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, &content.ValidationError{Fields: []content.FieldError{{
			Field:   key,
			Message: fmt.Sprintf("%s must be a non-negative integer", key),
		}}}
	}
	return value, nil
}

func payloadTooLarge(limit int64) *DomainError {
	return domainError(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
		fmt.Sprintf("request body exceeds %d bytes", limit), nil)
}
