package alert

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jwalitptl/alert-engine/internal/handler"
	"github.com/jwalitptl/alert-engine/internal/middleware"
	"github.com/jwalitptl/alert-engine/internal/model"
	alertsvc "github.com/jwalitptl/alert-engine/internal/service/alert"
	"github.com/jwalitptl/alert-engine/pkg/auth"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
)

type AlertService interface {
	CreateManualAlert(ctx context.Context, req alertsvc.ManualAlertRequest) (*model.Alert, error)
	ResolveAlert(ctx context.Context, recipientID, actorID uuid.UUID) (*model.Alert, error)
	ListOpenAlerts(ctx context.Context, userID uuid.UUID) ([]*model.Alert, error)
	ListAllAlerts(ctx context.Context, userID uuid.UUID) ([]*model.Alert, error)
	GetAlert(ctx context.Context, id uuid.UUID) (*model.Alert, error)
	AlertTypes(ctx context.Context) ([]model.AlertType, error)
}

type HistoryReader interface {
	History(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.ChangeLogEntry, error)
}

type ScanRunner interface {
	RunScanCycle(ctx context.Context, asOf time.Time) (*alertsvc.ScanResult, error)
}

type Handler struct {
	service AlertService
	history HistoryReader
	scanner ScanRunner
	auth    *middleware.AuthMiddleware
}

func NewHandler(service AlertService, history HistoryReader, scanner ScanRunner, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service: service,
		history: history,
		scanner: scanner,
		auth:    auth,
	}
}

// RegisterRoutes expects r to be behind authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	alerts := r.Group("/alerts")
	{
		alerts.POST("", h.auth.RequireRole(auth.RoleClinician, auth.RoleAdmin), h.CreateAlert)
		alerts.GET("", h.ListAlerts)
		alerts.GET("/open", h.ListOpenAlerts)
		alerts.GET("/:id", h.GetAlert)
		alerts.GET("/:id/history", h.GetAlertHistory)
	}
	r.POST("/alert-recipients/:id/resolve", h.ResolveRecipient)
	r.GET("/alert-types", h.ListAlertTypes)
	r.POST("/scans", h.auth.RequireRole(auth.RoleAdmin), h.RunScan)
}

type CreateAlertRequest struct {
	PatientID  string `json:"patient_id" binding:"required,uuid"`
	AlertType  string `json:"alert_type" binding:"required,max=64"`
	Severity   string `json:"severity" binding:"required,severity"`
	Note       string `json:"note" binding:"max=2000"`
	ContextRef string `json:"context_ref" binding:"max=128"`
}

type RunScanRequest struct {
	// AsOf defaults to now.
	AsOf *time.Time `json:"as_of"`
}

func (h *Handler) CreateAlert(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apperrors.Unauthorized(nil))
		return
	}

	var req CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	// Both already checked by the binding tags.
	patientID, _ := uuid.Parse(req.PatientID)
	severity, _ := model.ParseSeverity(req.Severity)

	alert, err := h.service.CreateManualAlert(c.Request.Context(), alertsvc.ManualAlertRequest{
		PatientID:  patientID,
		AlertType:  req.AlertType,
		Severity:   severity,
		Note:       req.Note,
		ActorID:    actor,
		ContextRef: req.ContextRef,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(alert))
}

func (h *Handler) ListAlerts(c *gin.Context) {
	h.list(c, h.service.ListAllAlerts)
}

func (h *Handler) ListOpenAlerts(c *gin.Context) {
	h.list(c, h.service.ListOpenAlerts)
}

func (h *Handler) list(c *gin.Context, fetch func(context.Context, uuid.UUID) ([]*model.Alert, error)) {
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apperrors.Unauthorized(nil))
		return
	}

	alerts, err := fetch(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(alerts))
}

func (h *Handler) GetAlert(c *gin.Context) {
	alert, ok := h.visibleAlert(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(alert))
}

func (h *Handler) GetAlertHistory(c *gin.Context) {
	alert, ok := h.visibleAlert(c)
	if !ok {
		return
	}

	entries, err := h.history.History(c.Request.Context(), model.AuditEntityAlert, alert.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}

// visibleAlert loads the alert named by :id. Callers who are neither a
// recipient nor an admin get a not-found, so alert ids are not probeable.
func (h *Handler) visibleAlert(c *gin.Context) (*model.Alert, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperrors.Validation("invalid alert id"))
		return nil, false
	}
	userID, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apperrors.Unauthorized(nil))
		return nil, false
	}

	alert, err := h.service.GetAlert(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	if c.GetString(middleware.ContextRole) != auth.RoleAdmin && !isRecipient(alert, userID) {
		_ = c.Error(apperrors.NotFound("alert", nil))
		return nil, false
	}
	return alert, true
}

func (h *Handler) ResolveRecipient(c *gin.Context) {
	recipientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperrors.Validation("invalid alert recipient id"))
		return
	}
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apperrors.Unauthorized(nil))
		return
	}

	alert, err := h.service.ResolveAlert(c.Request.Context(), recipientID, actor)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(alert))
}

func (h *Handler) ListAlertTypes(c *gin.Context) {
	types, err := h.service.AlertTypes(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(types))
}

func (h *Handler) RunScan(c *gin.Context) {
	var req RunScanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(bindError(err))
			return
		}
	}
	asOf := time.Now().UTC()
	if req.AsOf != nil {
		asOf = req.AsOf.UTC()
	}

	result, err := h.scanner.RunScanCycle(c.Request.Context(), asOf)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func isRecipient(a *model.Alert, userID uuid.UUID) bool {
	for _, r := range a.Recipients {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// bindError keeps validator errors intact for the validation middleware and
// turns anything else (malformed JSON) into a bad request.
func bindError(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		return err
	}
	return apperrors.BadRequest("invalid request body", err)
}
