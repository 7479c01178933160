package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
	"github.com/xtremeprotocol/accrual-service/internal/core/ports"
)

// AdminHandler serves the privileged /api/admin surface.
type AdminHandler struct {
	admin ports.AdminService
}

func NewAdminHandler(admin ports.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// Auth exchanges the master credentials for an admin token.
//
// @Summary      Admin login
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        body  body      adminAuthRequest  true  "Master credentials"
// @Success      200   {object}  adminAuthResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /api/admin/auth [post]
func (h *AdminHandler) Auth(c echo.Context) error {
	var req adminAuthRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := h.admin.Authenticate(c.Request().Context(), req.User, req.Pass)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, adminAuthResponse{Success: true, Token: token})
}

// Users lists every account.
//
// @Summary      List accounts
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   accountResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /api/admin/users [get]
func (h *AdminHandler) Users(c echo.Context) error {
	accounts, err := h.admin.ListAccounts(c.Request().Context())
	if err != nil {
		return err
	}

	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	return c.JSON(http.StatusOK, out)
}

// GenerateCode issues a fresh one-time activation code.
//
// @Summary      Issue an activation code
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  generateCodeResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /api/admin/generate-code [post]
func (h *AdminHandler) GenerateCode(c echo.Context) error {
	code, err := h.admin.IssueCode(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, generateCodeResponse{
		Success:   true,
		Code:      code.Value,
		ExpiresAt: code.ExpiresAt,
	})
}

// UpdateUser overwrites balance, verification, tier and optionally password.
//
// @Summary      Update an account
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      updateUserRequest  true  "New account values"
// @Success      200   {object}  updateUserResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /api/admin/update-user [post]
func (h *AdminHandler) UpdateUser(c echo.Context) error {
	var req updateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	account, err := h.admin.UpdateAccount(c.Request().Context(), ports.UpdateAccountInput{
		ID:       req.ID,
		Balance:  req.Balance,
		Verified: req.IsVerified,
		Tier:     domain.Tier(req.Tier),
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updateUserResponse{Success: true, User: toAccountResponse(account)})
}

// DeleteUser removes an account.
//
// @Summary      Delete an account
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      deleteUserRequest  true  "Account to delete"
// @Success      200   {object}  successResponse
// @Failure      404   {object}  errorResponse
// @Router       /api/admin/delete-user [post]
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	var req deleteUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.admin.DeleteAccount(c.Request().Context(), req.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

// Logs returns the most recent audit events.
//
// @Summary      List audit events
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Maximum events (default 100)"
// @Success      200    {array}   auditEventResponse
// @Failure      400    {object}  errorResponse
// @Router       /api/admin/logs [get]
func (h *AdminHandler) Logs(c echo.Context) error {
	var limit int
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
	}

	events, err := h.admin.ListAuditEvents(c.Request().Context(), limit)
	if err != nil {
		return err
	}

	out := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toAuditEventResponse(e))
	}
	return c.JSON(http.StatusOK, out)
}

// ClearLogs deletes every audit event.
//
// @Summary      Clear audit events
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  successResponse
// @Router       /api/admin/clear-logs [post]
func (h *AdminHandler) ClearLogs(c echo.Context) error {
	if err := h.admin.ClearAuditEvents(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

// Stats aggregates liability across all accounts.
//
// @Summary      Liability stats
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  statsResponse
// @Router       /api/admin/stats [get]
func (h *AdminHandler) Stats(c echo.Context) error {
	stats, err := h.admin.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statsResponse{
		TotalUsers:     stats.TotalUsers,
		TotalLiability: money(stats.TotalLiability),
		TotalPaid:      money(stats.TotalPaid),
	})
}
