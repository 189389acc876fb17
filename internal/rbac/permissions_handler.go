package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/memopsy/memopsy/internal/platform/httpx"
)

// Authorizer performs the handler-level permission check. shared.Authorize
// is adapted to it by the router so this package stays free of session types.
type Authorizer func(ctx context.Context, p Permission) error

// PermissionsHandler serves the permission catalog API.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *CatalogService
	authorize Authorizer
	validator *validator.Validate
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *CatalogService, authorize Authorizer) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, service: service, authorize: authorize, validator: validator.New()}
}

// MountRoutes registers permission routes under /api/permisos.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
	r.Post("/", h.createPermission)
	r.Delete("/{id}", h.deletePermission)
}

// MountCatalogRoutes registers the read-only module and action listings.
func (h *PermissionsHandler) MountCatalogRoutes(r chi.Router) {
	r.Get("/modulos", h.listModules)
	r.Get("/acciones", h.listActions)
}

type createPermissionRequest struct {
	ModuleID int64 `json:"moduleId" validate:"required,gt=0"`
	ActionID int64 `json:"actionId" validate:"required,gt=0"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, P(ModulePermissions, ActionView)) {
		return
	}
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *PermissionsHandler) createPermission(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, P(ModulePermissions, ActionCreate)) {
		return
	}
	var req createPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "moduleId y actionId son obligatorios")
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.ModuleID, req.ActionID)
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *PermissionsHandler) deletePermission(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, P(ModulePermissions, ActionDelete)) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "id inválido")
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		h.fail(w, "delete permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PermissionsHandler) listModules(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, P(ModulePermissions, ActionView)) {
		return
	}
	modules, err := h.service.ListModules(r.Context())
	if err != nil {
		h.fail(w, "list modules", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"modules": modules})
}

func (h *PermissionsHandler) listActions(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, P(ModulePermissions, ActionView)) {
		return
	}
	actions, err := h.service.ListActions(r.Context())
	if err != nil {
		h.fail(w, "list actions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (h *PermissionsHandler) allow(w http.ResponseWriter, r *http.Request, p Permission) bool {
	if err := h.authorize(r.Context(), p); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *PermissionsHandler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusOf(err) == http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
