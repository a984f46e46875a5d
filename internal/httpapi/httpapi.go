// Package httpapi implements the HTTP surface: public read endpoints,
// API-key-protected ops endpoints, and static file serving.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/moyuren/calendarsvc/internal/apperr"
	"github.com/moyuren/calendarsvc/internal/audit"
	"github.com/moyuren/calendarsvc/internal/cachecleaner"
	"github.com/moyuren/calendarsvc/internal/statestore"
)

// Server wires every HTTP dependency into a chi router.
type Server struct {
	Store      *statestore.Store
	Templates  []string
	BaseURL    string
	APIKey     string
	StaticDir  string
	Router      chi.Router
	log         zerolog.Logger
	generate    func(templateName string, trigger audit.Trigger) (string, error)
	cacheClean  func(retainDays int) (cachecleaner.Result, error)
	auditRecent func(limit int) ([]audit.Record, error)
}

// New builds a Server and its chi router. generate and cacheClean are
// plain closures rather than interfaces bound to concrete orchestrator/
// cachecleaner types, so this package stays decoupled from their exact
// signatures (Generate takes a context and Cleanup takes a business date,
// both of which the caller already has in scope).
func New(
	store *statestore.Store,
	templates []string,
	baseURL string,
	apiKey string,
	staticDir string,
	generate func(templateName string, trigger audit.Trigger) (string, error),
	cacheClean func(retainDays int) (cachecleaner.Result, error),
	auditRecent func(limit int) ([]audit.Record, error),
	log zerolog.Logger,
) *Server {
	s := &Server{
		Store: store, Templates: templates, BaseURL: baseURL, APIKey: apiKey, StaticDir: staticDir,
		generate: generate, cacheClean: cacheClean, auditRecent: auditRecent,
		log: log.With().Str("service", "httpapi").Logger(),
	}
	s.Router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/moyuren", s.handleMoyuren)
		r.Get("/templates", s.handleTemplates)

		r.Route("/ops", func(r chi.Router) {
			r.Use(s.requireAPIKey)
			r.Get("/generate", s.handleOpsGenerate)
			r.Get("/cache/clean", s.handleOpsCacheClean)
			r.Get("/audit/recent", s.handleOpsAuditRecent)
		})
	})

	fileServer := http.StripPrefix("/static/", http.FileServer(http.Dir(s.StaticDir)))
	r.Handle("/static/*", fileServer)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleMoyuren(w http.ResponseWriter, r *http.Request) {
	state, exists, err := s.Store.Load()
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeStorageReadFailed, "failed to read state", err))
		return
	}
	if !exists {
		writeError(w, apperr.New(apperr.CodeStorageNotFound, "no generation has completed yet"))
		return
	}

	entry, ok := state.Templates[statestore.DefaultTemplateName]
	if !ok || entry.Filename == "" {
		writeError(w, apperr.New(apperr.CodeStorageNotFound, "default template has no published artifact"))
		return
	}

	body := map[string]any{
		"date":              state.Public.Date,
		"updated":           state.Public.Updated,
		"updated_at_ms":     state.Public.UpdatedAtMs,
		"weekday":           state.Public.Weekday,
		"lunar_date":        state.Public.LunarDate,
		"fun_content":       state.Public.FunContent,
		"is_crazy_thursday": state.Public.IsCrazyThursday,
		"kfc_content":       state.Public.KfcContent,
		"image_url":         s.BaseURL + "/static/" + entry.Filename,
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	state, exists, err := s.Store.Load()
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeStorageReadFailed, "failed to read state", err))
		return
	}

	items := make([]map[string]any, 0, len(s.Templates))
	for _, name := range s.Templates {
		item := map[string]any{"name": name, "image_url": nil}
		if exists {
			if entry, ok := state.Templates[name]; ok && entry.Filename != "" {
				item["image_url"] = s.BaseURL + "/static/" + entry.Filename
				item["updated"] = entry.Updated
			}
		}
		items = append(items, item)
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, map[string]any{"templates": items})
}

func (s *Server) handleOpsGenerate(w http.ResponseWriter, r *http.Request) {
	templateName := r.URL.Query().Get("template")
	filename, err := s.generate(templateName, audit.TriggerManual)
	if err != nil {
		if appErr, ok := asAppErr(err); ok && appErr.Code == apperr.CodeGenerationBusy {
			w.Header().Set("Retry-After", "10")
			writeError(w, appErr)
			return
		}
		writeError(w, apperr.Wrap(apperr.CodeGenerationFailed, "generation failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filename": filename})
}

func (s *Server) handleOpsCacheClean(w http.ResponseWriter, r *http.Request) {
	keepDays := 30
	if raw := r.URL.Query().Get("keep_days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			keepDays = parsed
		}
	}

	result, err := s.cacheClean(keepDays)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeOpsCacheCleanFailed, "cache clean failed", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOpsAuditRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	records, err := s.auditRecent(limit)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeAPIInternal, "failed to read audit log", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": records})
}

// requireAPIKey enforces a constant-time bearer-token check.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, apperr.New(apperr.CodeAuthUnauthorized, "missing bearer token"))
			return
		}
		token := header[len(prefix):]
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.APIKey)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, apperr.New(apperr.CodeAuthUnauthorized, "invalid bearer token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func asAppErr(err error) (*apperr.Error, bool) {
	appErr, ok := err.(*apperr.Error)
	return appErr, ok
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err *apperr.Error) {
	writeJSON(w, apperr.HTTPStatus(err.Code), apperr.ToResponse(err.Code, err.Message, err.Detail))
}
