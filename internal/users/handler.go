package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/memopsy/memopsy/internal/platform/httpx"
	"github.com/memopsy/memopsy/internal/rbac"
	"github.com/memopsy/memopsy/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers user routes under /api/usuarios.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Post("/", h.createUser)
	r.Get("/{id}", h.getUser)
	r.Put("/{id}", h.updateUser)
	r.Patch("/{id}", h.updateUser)
	r.Delete("/{id}", h.deleteUser)
}

type personRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	Surname    string `json:"surname" validate:"required,max=100"`
	NationalID string `json:"nationalId" validate:"required,max=20"`
	BirthDate  string `json:"birthDate" validate:"omitempty,datetime=2006-01-02"`
}

type createUserRequest struct {
	Email      string        `json:"email" validate:"required,email,max=254"`
	Password   string        `json:"password" validate:"required,min=8,max=128"`
	Active     *bool         `json:"active"`
	Admin      bool          `json:"admin"`
	Person     personRequest `json:"person"`
	ProfileIDs []int64       `json:"profileIds" validate:"dive,gt=0"`
}

type updateUserRequest struct {
	Active     *bool    `json:"active"`
	Admin      *bool    `json:"admin"`
	Password   *string  `json:"password" validate:"omitempty,min=8,max=128"`
	ProfileIDs *[]int64 `json:"profileIds"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, rbac.ActionView); !ok {
		return
	}
	page, perPage := shared.PageParams(r)
	list, pagination, err := h.service.ListUsers(r.Context(), r.URL.Query().Get("q"), page, perPage)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": list, "pagination": pagination})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, rbac.ActionView); !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.authorize(w, r, rbac.ActionCreate)
	if !ok {
		return
	}
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	in := CreateInput{
		Email:      req.Email,
		Password:   req.Password,
		Active:     req.Active == nil || *req.Active,
		Admin:      req.Admin,
		ProfileIDs: req.ProfileIDs,
		Person: Person{
			Name:       req.Person.Name,
			Surname:    req.Person.Surname,
			NationalID: req.Person.NationalID,
		},
	}
	if req.Person.BirthDate != "" {
		d, _ := time.Parse(time.DateOnly, req.Person.BirthDate)
		in.Person.BirthDate = &d
	}
	u, err := h.service.CreateUser(r.Context(), sess.UserID, in)
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, u)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.authorize(w, r, rbac.ActionEdit)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	u, err := h.service.UpdateUser(r.Context(), sess.UserID, id, UpdateInput{
		Active:     req.Active,
		Admin:      req.Admin,
		Password:   req.Password,
		ProfileIDs: req.ProfileIDs,
	})
	if err != nil {
		h.fail(w, "update user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.authorize(w, r, rbac.ActionDelete)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), sess.UserID, id); err != nil {
		h.fail(w, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorize runs the handler-level check for (Usuarios, action).
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, action rbac.Action) (*shared.Session, bool) {
	sess, err := shared.Authorize(r.Context(), rbac.P(rbac.ModuleUsers, action))
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	return sess, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusOf(err) == http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "id inválido")
		return 0, false
	}
	return id, true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "campo inválido: " + verrs[0].Namespace()
	}
	return "datos inválidos"
}
