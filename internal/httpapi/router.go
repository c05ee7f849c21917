// Package httpapi exposes the coordination layer over REST.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/palettehq/palette/catalog"
	"github.com/palettehq/palette/docstore"
	"github.com/palettehq/palette/internal/ident"
	"github.com/palettehq/palette/searchmirror"
)

// Searcher is the mirror query contract. *searchmirror.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, kinds []string, q string, from, size int) (map[string][]searchmirror.Hit, error)
}

const defaultSearchSize = 10

type Handler struct {
	co     *catalog.Coordinator
	search Searcher
	logger *zap.SugaredLogger
}

// NewRouter builds the API router over the coordinator and the mirror.
func NewRouter(co *catalog.Coordinator, search Searcher, logger *zap.SugaredLogger) http.Handler {
	h := &Handler{co: co, search: search, logger: logger}
	r := chi.NewRouter()
	r.Use(requestLogger(logger))

	r.Get("/healthz", h.handleHealthz)
	r.Get("/v1/search", h.handleSearch)

	r.Route("/v1/{kind}", func(v chi.Router) {
		v.Get("/{id}", h.handleGet)
		v.Get("/{id}/{related}", h.handleRelations)
		v.Put("/{id}", h.handleCreate)
		v.Delete("/{id}", h.handleDelete)
	})

	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	kindName := chi.URLParam(r, "kind")
	kind, ok := h.co.Kinds().Lookup(kindName)
	if !ok {
		writeCode(w, http.StatusNotFound, "NOT_FOUND", "unknown entity kind")
		return
	}

	idOrUsername := chi.URLParam(r, "id")
	if ident.Classify(idOrUsername) == ident.KindInvalid {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{"id"}})
		return
	}

	doc, err := h.co.Get(r.Context(), kindName, idOrUsername)
	if errors.Is(err, docstore.ErrNotFound) {
		writeCode(w, http.StatusNotFound, kind.NotFoundCode(), "entity not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleRelations(w http.ResponseWriter, r *http.Request) {
	kindName := chi.URLParam(r, "kind")
	kind, ok := h.co.Kinds().Lookup(kindName)
	if !ok {
		writeCode(w, http.StatusNotFound, "NOT_FOUND", "unknown entity kind")
		return
	}
	if chi.URLParam(r, "related") != kind.Counterpart {
		writeCode(w, http.StatusNotFound, "NOT_FOUND", "unknown related kind")
		return
	}

	var fields []string
	idOrUsername := chi.URLParam(r, "id")
	if ident.Classify(idOrUsername) == ident.KindInvalid {
		fields = append(fields, "id")
	}
	typeFilter := r.URL.Query().Get("type")
	if typeFilter != "" && !ident.ValidRelationType(typeFilter) {
		fields = append(fields, "type")
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": fields})
		return
	}

	groups, err := h.co.Relations(r.Context(), kindName, idOrUsername, typeFilter)
	switch {
	case errors.Is(err, catalog.ErrSubjectNotFound):
		writeCode(w, http.StatusNotFound, kind.NotFoundCode(), "entity not found")
		return
	case err != nil:
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	kindName := chi.URLParam(r, "kind")
	kind, ok := h.co.Kinds().Lookup(kindName)
	if !ok {
		writeCode(w, http.StatusNotFound, "NOT_FOUND", "unknown entity kind")
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{"body"}})
		return
	}

	req := catalog.CreateRequest{
		Username:   chi.URLParam(r, "id"),
		Attributes: make(map[string]any, len(body)),
	}
	for k, v := range body {
		if k == "relations" {
			continue
		}
		req.Attributes[k] = v
	}
	if raw, ok := body["relations"].([]any); ok {
		for _, entry := range raw {
			m, _ := entry.(map[string]any)
			identifier, _ := m[kind.Counterpart].(string)
			relType, _ := m["type"].(string)
			req.Relations = append(req.Relations, catalog.RelationInput{
				Identifier: identifier,
				Type:       relType,
			})
		}
	}

	res, err := h.co.Create(r.Context(), kindName, req)
	if err != nil {
		var verr *catalog.ValidationError
		var rerr *catalog.RelatedNotFoundError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, map[string]any{"errors": verr.Fields})
		case errors.Is(err, catalog.ErrUsernameExists):
			writeCode(w, http.StatusBadRequest, "USERNAME_EXIST", "username already exists")
		case errors.As(err, &rerr):
			writeJSON(w, http.StatusNotFound, map[string]any{
				"code":    kind.RelatedNotFoundCode(),
				"message": "related entities not found",
				"missing": rerr.Missing,
			})
		default:
			h.internalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       res.ID,
		"username": res.Username,
		"message":  "created",
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	kindName := chi.URLParam(r, "kind")
	if _, ok := h.co.Kinds().Lookup(kindName); !ok {
		writeCode(w, http.StatusNotFound, "NOT_FOUND", "unknown entity kind")
		return
	}
	if err := h.co.Delete(r.Context(), kindName, chi.URLParam(r, "id")); err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "deleted"})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{"q"}})
		return
	}
	from := 0
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{"from"}})
			return
		}
		from = parsed
	}

	hits, err := h.search.Search(r.Context(), h.co.Kinds().Names(), q, from, defaultSearchSize)
	if err != nil {
		// The mirror is the only backend here; its failure is this
		// endpoint's failure.
		h.logger.Errorw("search failed", "q", q, "error", err)
		writeCode(w, http.StatusInternalServerError, "SEARCH_ERROR", "search unavailable")
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

// internalError hides store details from clients; the wrapped error goes to
// the log only.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Errorw("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeCode(w, http.StatusInternalServerError, "INTERNAL", "internal error")
}

func writeCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"code": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
