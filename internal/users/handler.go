package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rashid2003/jira-payroll-automation/internal/platform/httpx"
	"github.com/rashid2003/jira-payroll-automation/internal/rbac"
	"github.com/rashid2003/jira-payroll-automation/internal/shared"
)

type userService interface {
	ListUsers(ctx context.Context) ([]User, error)
	Account(ctx context.Context, id int64) (Account, error)
	CreateUser(ctx context.Context, in CreateInput) (Account, error)
}

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service userService
	audit   shared.AuditRecorder
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service userService, audit shared.AuditRecorder, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, audit: audit, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.showUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersEdit))
		r.Post("/", h.createUser)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	account, err := h.service.Account(r.Context(), id)
	if err != nil {
		h.respondError(w, "show user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.CreateUser(r.Context(), in)
	if err != nil {
		h.respondError(w, "create user", err)
		return
	}
	if h.audit != nil {
		actor, _ := shared.ActorID(r.Context())
		if err := h.audit.Record(r.Context(), shared.AuditLog{
			ActorID:  actor,
			Action:   shared.AuditActionUserCreate,
			Entity:   "user",
			EntityID: strconv.FormatInt(account.User.ID, 10),
			Meta:     map[string]any{"role": account.Profile.Role},
		}); err != nil {
			h.logger.Warn("record user audit", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.RespondError(w, httpx.Mark(err, httpx.ErrValidation))
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, httpx.Mark(err, httpx.ErrDuplicate))
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.Mark(err, httpx.ErrNotFound))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
