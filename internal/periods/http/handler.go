// Package periodshttp exposes payroll period administration and manual
// payroll runs over HTTP.
package periodshttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/rashid2003/jira-payroll-automation/internal/automation"
	"github.com/rashid2003/jira-payroll-automation/internal/payroll"
	"github.com/rashid2003/jira-payroll-automation/internal/periods"
	"github.com/rashid2003/jira-payroll-automation/internal/platform/httpx"
	"github.com/rashid2003/jira-payroll-automation/internal/rbac"
	"github.com/rashid2003/jira-payroll-automation/internal/shared"
)

const maxImportBytes = 5 << 20

type periodService interface {
	Create(ctx context.Context, in periods.Input) (periods.Period, error)
	Get(ctx context.Context, id int64) (periods.Period, error)
	List(ctx context.Context, filter periods.Filter) ([]periods.Period, error)
	Update(ctx context.Context, id int64, in periods.Input) (periods.Period, error)
	Delete(ctx context.Context, id int64) error
	Cancel(ctx context.Context, id int64) (periods.Period, error)
	Summary(ctx context.Context, id int64) (periods.Summary, error)
	Import(ctx context.Context, rows []periods.ImportRow, lineErrs []string) periods.ImportResult
	Today() time.Time
}

type runTrigger interface {
	Run(ctx context.Context, req automation.TriggerRequest) (automation.TriggerResponse, error)
}

// Handler serves the /payroll routes.
type Handler struct {
	logger  *slog.Logger
	service periodService
	trigger runTrigger
	audit   shared.AuditRecorder
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service periodService, trigger runTrigger, audit shared.AuditRecorder, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		trigger: trigger,
		audit:   audit,
		rbac:    rbac,
		now:     time.Now,
	}
}

// MountRoutes registers payroll routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/periods", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermPayrollPeriodView)).Get("/", h.listPeriods)
		r.With(h.rbac.RequireAny(shared.PermPayrollPeriodCreate)).Post("/", h.createPeriod)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermPayrollPeriodEdit))
			r.Get("/export-csv", h.exportCSV)
			r.Post("/import-csv", h.importCSV)
		})
		r.Route("/{id}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.rbac.RequireAny(shared.PermPayrollPeriodView))
				r.Get("/", h.showPeriod)
				r.Get("/summary", h.periodSummary)
			})
			r.Group(func(r chi.Router) {
				r.Use(h.rbac.RequireAny(shared.PermPayrollPeriodEdit))
				r.Put("/", h.updatePeriod)
				r.Delete("/", h.deletePeriod)
				r.Post("/cancel", h.cancelPeriod)
			})
			r.With(
				h.rbac.RequireAny(shared.PermPayrollRun),
				httprate.LimitByIP(10, time.Minute),
			).Post("/run", h.runPeriod)
		})
	})
	r.With(h.rbac.RequireAny(shared.PermPayrollRun)).Post("/automation/sweep", h.runSweep)
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		h.respondError(w, "list periods", err)
		return
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list periods", err)
		return
	}
	today := h.service.Today()
	out := make([]periodResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toResponse(p, today))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": out})
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	period, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondError(w, "create period", err)
		return
	}
	h.record(r, shared.AuditActionPeriodCreate, period.ID, map[string]any{"date_range": period.DateRange(), "period_type": period.Type})
	httpx.JSON(w, http.StatusCreated, toResponse(period, h.service.Today()))
}

func (h *Handler) showPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(w, r)
	if !ok {
		return
	}
	period, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "show period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(period, h.service.Today()))
}

func (h *Handler) updatePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(w, r)
	if !ok {
		return
	}
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	period, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.respondError(w, "update period", err)
		return
	}
	h.record(r, shared.AuditActionPeriodUpdate, period.ID, map[string]any{"date_range": period.DateRange()})
	httpx.JSON(w, http.StatusOK, toResponse(period, h.service.Today()))
}

func (h *Handler) deletePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, "delete period", err)
		return
	}
	h.record(r, shared.AuditActionPeriodDelete, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancelPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(w, r)
	if !ok {
		return
	}
	period, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.respondError(w, "cancel period", err)
		return
	}
	h.record(r, shared.AuditActionPeriodCancel, id, nil)
	httpx.JSON(w, http.StatusOK, toResponse(period, h.service.Today()))
}

func (h *Handler) periodSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), id)
	if err != nil {
		h.respondError(w, "period summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSummaryResponse(summary))
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		h.respondError(w, "export periods", err)
		return
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, "export periods", err)
		return
	}
	filename := "payroll_periods_" + h.now().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := periods.WriteCSV(w, list, h.service.Today()); err != nil {
		h.logger.Error("write periods csv", slog.Any("error", err))
	}
}

func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "No CSV file provided")
		return
	}
	defer file.Close()
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "File must be a CSV format")
		return
	}
	rows, lineErrs, err := periods.ReadImportCSV(file)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("Error processing CSV file: %v", err))
		return
	}
	result := h.service.Import(r.Context(), rows, lineErrs)
	h.record(r, shared.AuditActionPeriodImport, 0, map[string]any{
		"filename": header.Filename,
		"created":  result.CreatedCount,
		"updated":  result.UpdatedCount,
		"errors":   result.ErrorCount,
	})
	httpx.JSON(w, http.StatusOK, result)
}

type runRequest struct {
	Force bool `json:"force"`
	Async bool `json:"async"`
}

func (h *Handler) runPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(w, r)
	if !ok {
		return
	}
	var req runRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp, err := h.trigger.Run(r.Context(), automation.TriggerRequest{PeriodID: &id, Force: req.Force, Async: req.Async})
	if err != nil {
		h.respondRunError(w, id, err)
		return
	}
	if resp.Receipt != nil {
		h.record(r, shared.AuditActionPayrollRun, id, map[string]any{"task_id": resp.Receipt.TaskID, "async": true, "force": req.Force})
		httpx.JSON(w, http.StatusAccepted, resp.Receipt)
		return
	}
	body := map[string]any{"run": resp.Run}
	if resp.Run != nil && (resp.Run.Status == automation.RunCompleted || resp.Run.Status == automation.RunAlreadyCompleted) {
		h.record(r, shared.AuditActionPayrollRun, id, map[string]any{"status": resp.Run.Status, "force": req.Force})
		if period, err := h.service.Get(r.Context(), id); err == nil {
			body["period"] = toResponse(period, h.service.Today())
		}
	}
	httpx.JSON(w, http.StatusOK, body)
}

type sweepRequest struct {
	Async bool `json:"async"`
}

func (h *Handler) runSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp, err := h.trigger.Run(r.Context(), automation.TriggerRequest{Async: req.Async})
	if err != nil {
		h.respondRunError(w, 0, err)
		return
	}
	if resp.Receipt != nil {
		httpx.JSON(w, http.StatusAccepted, resp.Receipt)
		return
	}
	httpx.JSON(w, http.StatusOK, resp.Sweep)
}

func (h *Handler) respondRunError(w http.ResponseWriter, id int64, err error) {
	switch {
	case errors.Is(err, automation.ErrAsyncUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "background processing is not configured")
	case errors.Is(err, payroll.ErrPeriodNotFound):
		httpx.RespondError(w, httpx.Mark(err, httpx.ErrNotFound))
	case errors.Is(err, httpx.ErrConflict):
		httpx.RespondError(w, err)
	case id > 0:
		h.logger.Warn("payroll run failed", slog.Int64("period_id", id), slog.Any("error", err))
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     "Payroll processing failed",
			"details":   err.Error(),
			"period_id": id,
		})
	default:
		h.logger.Error("payroll sweep failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, periods.ErrValidation):
		httpx.RespondError(w, httpx.Mark(err, httpx.ErrValidation))
	case errors.Is(err, periods.ErrNotFound):
		httpx.RespondError(w, httpx.Mark(err, httpx.ErrNotFound))
	case errors.Is(err, periods.ErrCompletedDelete), errors.Is(err, periods.ErrInvalidTransition):
		httpx.RespondError(w, httpx.Mark(err, httpx.ErrConflict))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (periods.Input, bool) {
	var req periodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return periods.Input{}, false
	}
	in, err := req.toInput()
	if err != nil {
		h.respondError(w, "decode period", err)
		return periods.Input{}, false
	}
	return in, true
}

func (h *Handler) record(r *http.Request, action string, id int64, meta map[string]any) {
	if h.audit == nil {
		return
	}
	actor, _ := shared.ActorID(r.Context())
	entityID := "import"
	if id > 0 {
		entityID = strconv.FormatInt(id, 10)
	}
	if err := h.audit.Record(r.Context(), shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   shared.AuditEntityPeriod,
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		h.logger.Warn("record period audit", slog.String("action", action), slog.Any("error", err))
	}
}

func periodID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid period id")
		return 0, false
	}
	return id, true
}
