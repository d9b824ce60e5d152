package api

import (
	"encoding/csv"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mzheng-dev/sportsmeet/internal/auth"
	"github.com/mzheng-dev/sportsmeet/internal/model"
	"github.com/mzheng-dev/sportsmeet/internal/service"
	"github.com/mzheng-dev/sportsmeet/pkg/logger"
)

type Handler struct {
	reg *service.RegistrationService

	healthChecker HealthChecker

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithRegistrationService(reg *service.RegistrationService) *Handler {
	h.reg = reg
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(middleware.RequestID())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/health", h.healthChecker.HealthCheck())

	studentSecurity := e.Group("", AuthMiddleware(auth.TokenTypeStudent, auth.TokenTypeAdmin))

	studentSecurity.POST("/team/create", h.CreateTeam)
	studentSecurity.POST("/team/join", h.JoinTeam)
	studentSecurity.POST("/team/switch", h.SwitchTeam)
	studentSecurity.POST("/team/leave", h.LeaveTeam)
	studentSecurity.POST("/team/rename", h.RenameTeam)
	studentSecurity.POST("/team/transferCaptain", h.TransferCaptain)
	studentSecurity.GET("/invite/resolve", h.ResolveInvite)
	studentSecurity.GET("/events", h.EventInfo)
	studentSecurity.POST("/registrations/register", h.Register)
	studentSecurity.GET("/registrations/view", h.View)
	studentSecurity.POST("/registrations/cancel", h.Cancel)

	adminSecurity := e.Group("", AuthMiddleware(auth.TokenTypeAdmin))

	adminSecurity.POST("/registrations/confirm", h.Confirm)
	adminSecurity.POST("/registrations/import", h.Import)
	adminSecurity.GET("/registrations/export", h.Export)
}

func (h *Handler) CreateTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		EventID  string `json:"event_id" validate:"required"`
		GameType string `json:"game_type" validate:"required"`
		TeamName string `json:"team_name" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	studentID := ClaimsFromContext(e).StudentID

	l.Info("creating team",
		zap.String("student_id", studentID),
		zap.String("event_id", req.EventID),
		zap.String("game_type", req.GameType))

	reg, err := h.reg.CreateOrJoinTeam(e.Request().Context(), studentID, req.EventID, req.GameType, "", req.TeamName)
	if err != nil {
		l.Error("failed to create team",
			zap.String("student_id", studentID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, reg)
}

func (h *Handler) JoinTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		InviteCode string `json:"invite_code" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	studentID := ClaimsFromContext(e).StudentID

	l.Info("joining team",
		zap.String("student_id", studentID),
		zap.String("invite_code", req.InviteCode))

	reg, err := h.reg.CreateOrJoinTeam(e.Request().Context(), studentID, "", "", req.InviteCode, "")
	if err != nil {
		l.Error("failed to join team",
			zap.String("student_id", studentID),
			zap.String("invite_code", req.InviteCode),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, reg)
}

func (h *Handler) SwitchTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		InviteCode string `json:"invite_code" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	studentID := ClaimsFromContext(e).StudentID

	l.Info("switching team",
		zap.String("student_id", studentID),
		zap.String("invite_code", req.InviteCode))

	reg, err := h.reg.SwitchTeam(e.Request().Context(), studentID, req.InviteCode)
	if err != nil {
		l.Error("failed to switch team",
			zap.String("student_id", studentID),
			zap.String("invite_code", req.InviteCode),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, reg)
}

func (h *Handler) LeaveTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		InviteCode string `json:"invite_code" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	studentID := ClaimsFromContext(e).StudentID

	l.Info("leaving team",
		zap.String("student_id", studentID),
		zap.String("invite_code", req.InviteCode))

	if err := h.reg.LeaveTeam(e.Request().Context(), studentID, req.InviteCode); err != nil {
		l.Error("failed to leave team",
			zap.String("student_id", studentID),
			zap.String("invite_code", req.InviteCode),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) RenameTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		InviteCode string `json:"invite_code" validate:"required"`
		TeamName   string `json:"team_name" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	studentID := ClaimsFromContext(e).StudentID

	if err := h.reg.RenameTeam(e.Request().Context(), studentID, req.InviteCode, req.TeamName); err != nil {
		l.Error("failed to rename team",
			zap.String("student_id", studentID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) TransferCaptain(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		InviteCode  string `json:"invite_code" validate:"required"`
		ToStudentID string `json:"to_student_id" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	studentID := ClaimsFromContext(e).StudentID

	if err := h.reg.TransferCaptain(e.Request().Context(), studentID, req.InviteCode, req.ToStudentID); err != nil {
		l.Error("failed to transfer captain",
			zap.String("student_id", studentID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) Register(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		EventID  string `json:"event_id" validate:"required"`
		GameType string `json:"game_type" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	studentID := ClaimsFromContext(e).StudentID

	reg, err := h.reg.CreateOrJoinTeam(e.Request().Context(), studentID, req.EventID, req.GameType, "", "")
	if err != nil {
		l.Error("failed to register",
			zap.String("student_id", studentID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, reg)
}

func (h *Handler) ResolveInvite(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	inviteCode := e.QueryParam("invite_code")
	studentID := ClaimsFromContext(e).StudentID

	l.Info("resolving invite", zap.String("invite_code", inviteCode))

	view, err := h.reg.ResolveInvite(e.Request().Context(), studentID, inviteCode)
	if err != nil {
		l.Error("failed to resolve invite",
			zap.String("invite_code", inviteCode),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, view)
}

func (h *Handler) EventInfo(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	eventID := e.QueryParam("event_id")

	ev, err := h.reg.EventInfo(e.Request().Context(), eventID)
	if err != nil {
		l.Error("failed to get event info",
			zap.String("event_id", eventID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, ev)
}

func (h *Handler) View(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	eventID := e.QueryParam("event_id")
	studentID := ClaimsFromContext(e).StudentID

	view, err := h.reg.View(e.Request().Context(), studentID, eventID)
	if err != nil {
		l.Error("failed to get registration view",
			zap.String("event_id", eventID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, view)
}

func (h *Handler) Cancel(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		EventID string `json:"event_id" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	studentID := ClaimsFromContext(e).StudentID

	if err := h.reg.Cancel(e.Request().Context(), studentID, req.EventID); err != nil {
		l.Error("failed to cancel registration",
			zap.String("student_id", studentID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) Confirm(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		EventID   string `json:"event_id" validate:"required"`
		StudentID string `json:"student_id" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	if err := h.reg.Confirm(e.Request().Context(), req.StudentID, req.EventID); err != nil {
		l.Error("failed to confirm registration",
			zap.String("student_id", req.StudentID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) Import(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Rows []*model.ImportRow `json:"rows" validate:"required,min=1,dive"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("importing registrations", zap.Int("rows", len(req.Rows)))

	result, err := h.reg.Import(e.Request().Context(), req.Rows)
	if err != nil {
		l.Error("failed to import registrations", zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, result)
}

func (h *Handler) Export(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	eventID := e.QueryParam("event_id")

	rows, err := h.reg.Export(e.Request().Context(), eventID)
	if err != nil {
		l.Error("failed to export registrations",
			zap.String("event_id", eventID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	if e.QueryParam("format") == "csv" {
		return h.writeCSV(e, rows)
	}

	return e.JSON(http.StatusOK, rows)
}

func (h *Handler) writeCSV(e echo.Context, rows []*model.ExportRow) error {
	e.Response().Header().Set(echo.HeaderContentType, "text/csv")
	e.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(e.Response())
	if err := w.Write([]string{"student_id", "group", "game_type", "team_name", "run_order", "captain", "invite_code", "status"}); err != nil {
		return err
	}
	for _, r := range rows {
		runOrder := ""
		if r.RunOrder > 0 {
			runOrder = strconv.Itoa(r.RunOrder)
		}
		record := []string{
			r.StudentID,
			r.Group,
			r.GameType,
			r.TeamName,
			runOrder,
			strconv.FormatBool(r.Captain),
			r.InviteCode,
			string(r.Status),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (h *Handler) decodeRequest(e echo.Context, req any) *service.Error {
	if err := e.Bind(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, "invalid request body")
	}

	if err := e.Validate(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, errors.Wrap(err, "request validation failed").Error())
	}
	return nil
}

func (h *Handler) transportError(e echo.Context, err *service.Error) error {
	response := struct {
		Error *service.Error `json:"error"`
	}{Error: err}

	switch err.Code {
	case service.ErrorCodeNotFound:
		return e.JSON(http.StatusNotFound, response)
	case service.ErrorCodeTeamFull, service.ErrorCodeDuplicateEntry:
		return e.JSON(http.StatusConflict, response)
	case service.ErrorCodeRegistrationClosed, service.ErrorCodeInvalidGameType, service.ErrorCodeInvalidBody:
		return e.JSON(http.StatusBadRequest, response)
	case service.ErrorCodeNotCaptain:
		return e.JSON(http.StatusForbidden, response)
	default:
		return e.JSON(http.StatusInternalServerError, response)
	}
}
