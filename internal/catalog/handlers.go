package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cartelera-live/cartelera/internal/auth"
	"github.com/cartelera-live/cartelera/internal/domain"
)

type scopeKey struct{}

// Handlers exposes the catalog over REST for the admin panel and the kiosk
// menu fetch. Mutations require an admin token; reads accept any valid scope.
type Handlers struct {
	svc      *Service
	resolver *auth.Resolver
	log      *zap.Logger
}

func NewHandlers(svc *Service, resolver *auth.Resolver, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{svc: svc, resolver: resolver, log: log}
}

// Routes registers the REST surface onto mux.
func (h *Handlers) Routes(mux *http.ServeMux) {
	mux.Handle("GET /api/menu", h.authed(h.getMenu))
	mux.Handle("POST /api/menu/refresh", h.admin(h.refreshMenu))
	mux.Handle("GET /api/carrusel", h.authed(h.getCarousel))
	mux.Handle("PUT /api/carrusel", h.admin(h.setCarousel))

	mux.Handle("GET /api/productos", h.admin(h.listProducts))
	mux.Handle("POST /api/productos", h.admin(h.createProduct))
	mux.Handle("PUT /api/productos/{id}", h.admin(h.updateProduct))
	mux.Handle("DELETE /api/productos/{id}", h.admin(h.deleteProduct))

	mux.Handle("GET /api/categorias", h.admin(h.listCategories))
	mux.Handle("POST /api/categorias", h.admin(h.createCategory))
	mux.Handle("PUT /api/categorias/{id}", h.admin(h.updateCategory))
}

// authed resolves the bearer token and stashes the scope in the request
// context. Tokens ride in the Authorization header; the kiosk may fall back
// to the same query parameter it uses on the WebSocket handshake.
func (h *Handlers) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		scope, err := h.resolver.Resolve(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), scopeKey{}, scope)))
	})
}

// admin additionally requires an admin-role scope.
func (h *Handlers) admin(next http.HandlerFunc) http.Handler {
	return h.authed(func(w http.ResponseWriter, r *http.Request) {
		if scopeFrom(r).Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin token required")
			return
		}
		next(w, r)
	})
}

func scopeFrom(r *http.Request) domain.Scope {
	s, _ := r.Context().Value(scopeKey{}).(domain.Scope)
	return s
}

// localFor picks the location a request operates on: the token's binding, or
// an explicit local_id query parameter for unbound admin sessions.
func localFor(r *http.Request) (int64, bool) {
	if s := scopeFrom(r); s.Bound() {
		return s.LocalID, true
	}
	id, err := strconv.ParseInt(r.URL.Query().Get("local_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handlers) getMenu(w http.ResponseWriter, r *http.Request) {
	localID, ok := localFor(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "local_id required")
		return
	}
	menu, err := h.svc.GetMenu(r.Context(), localID)
	if err != nil {
		h.fail(w, "get menu", err)
		return
	}
	writeJSON(w, http.StatusOK, menu)
}

func (h *Handlers) refreshMenu(w http.ResponseWriter, r *http.Request) {
	localID, ok := localFor(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "local_id required")
		return
	}
	menu, err := h.svc.RefreshMenu(r.Context(), localID)
	if err != nil {
		h.fail(w, "refresh menu", err)
		return
	}
	writeJSON(w, http.StatusOK, menu)
}

func (h *Handlers) getCarousel(w http.ResponseWriter, r *http.Request) {
	localID, ok := localFor(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "local_id required")
		return
	}
	cfg, err := h.svc.GetCarousel(r.Context(), localID)
	if err != nil {
		h.fail(w, "get carousel", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handlers) setCarousel(w http.ResponseWriter, r *http.Request) {
	localID, ok := localFor(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "local_id required")
		return
	}
	var in CarouselInput
	if !decodeBody(w, r, &in) {
		return
	}
	cfg, err := h.svc.SetCarousel(r.Context(), localID, in)
	if err != nil {
		h.fail(w, "set carousel", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handlers) listProducts(w http.ResponseWriter, r *http.Request) {
	localID, ok := localFor(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "local_id required")
		return
	}
	products, err := h.svc.ListProducts(r.Context(), localID)
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handlers) listCategories(w http.ResponseWriter, r *http.Request) {
	localID, ok := localFor(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "local_id required")
		return
	}
	categories, err := h.svc.ListCategories(r.Context(), localID)
	if err != nil {
		h.fail(w, "list categories", err)
		return
	}
	if categories == nil {
		categories = []Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *Handlers) createProduct(w http.ResponseWriter, r *http.Request) {
	localID, ok := localFor(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "local_id required")
		return
	}
	var in ProductInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := h.svc.CreateProduct(r.Context(), localID, in)
	if err != nil {
		h.fail(w, "create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	localID, ok := localFor(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "local_id required")
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var in ProductInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := h.svc.UpdateProduct(r.Context(), localID, id, in)
	if err != nil {
		h.fail(w, "update product", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	localID, ok := localFor(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "local_id required")
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.svc.DeleteProduct(r.Context(), localID, id); err != nil {
		h.fail(w, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) createCategory(w http.ResponseWriter, r *http.Request) {
	localID, ok := localFor(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "local_id required")
		return
	}
	var in CategoryInput
	if !decodeBody(w, r, &in) {
		return
	}
	c, err := h.svc.CreateCategory(r.Context(), localID, in)
	if err != nil {
		h.fail(w, "create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	localID, ok := localFor(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "local_id required")
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var in CategoryInput
	if !decodeBody(w, r, &in) {
		return
	}
	c, err := h.svc.UpdateCategory(r.Context(), localID, id, in)
	if err != nil {
		h.fail(w, "update category", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// fail maps service errors onto HTTP statuses.
func (h *Handlers) fail(w http.ResponseWriter, op string, err error) {
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, verr.Error())
	default:
		h.log.Error("catalog request failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
