package profiles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/memopsy/memopsy/internal/platform/httpx"
	"github.com/memopsy/memopsy/internal/rbac"
	"github.com/memopsy/memopsy/internal/shared"
)

// Handler manages profile management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers profile routes under /api/perfiles.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.P(rbac.ModuleProfiles, rbac.ActionView)))
		r.Get("/", h.listProfiles)
		r.Get("/{id}", h.getProfile)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.P(rbac.ModuleProfiles, rbac.ActionCreate)))
		r.Post("/", h.createProfile)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.P(rbac.ModuleProfiles, rbac.ActionEdit)))
		r.Put("/{id}", h.updateProfile)
		r.Patch("/{id}", h.updateProfile)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.P(rbac.ModuleProfiles, rbac.ActionDelete)))
		r.Delete("/{id}", h.deleteProfile)
	})
}

type profileRequest struct {
	Name          string  `json:"name" validate:"required,max=100"`
	Description   string  `json:"description" validate:"max=500"`
	PermissionIDs []int64 `json:"permissionIds" validate:"dive,gt=0"`
}

func (h *Handler) listProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListProfiles(r.Context())
	if err != nil {
		h.fail(w, "list profiles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"profiles": list})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	p, err := h.service.GetProfile(r.Context(), id)
	if err != nil {
		h.fail(w, "get profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) createProfile(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	p, err := h.service.CreateProfile(r.Context(), actorID(r), in)
	if err != nil {
		h.fail(w, "create profile", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	p, err := h.service.UpdateProfile(r.Context(), actorID(r), id, in)
	if err != nil {
		h.fail(w, "update profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteProfile(r.Context(), actorID(r), id); err != nil {
		h.fail(w, "delete profile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return Input{}, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "nombre obligatorio y permisos válidos")
		return Input{}, false
	}
	return Input{Name: req.Name, Description: req.Description, PermissionIDs: req.PermissionIDs}, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusOf(err) == http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) int64 {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.UserID
	}
	return 0
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "id inválido")
		return 0, false
	}
	return id, true
}
