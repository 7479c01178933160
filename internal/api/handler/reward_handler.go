package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xtremeprotocol/accrual-service/internal/api/metrics"
	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
	"github.com/xtremeprotocol/accrual-service/internal/core/ports"
)

// IdempotencyHeader lets clients retry a withdrawal without a second debit.
const IdempotencyHeader = "Idempotency-Key"

// RewardHandler serves the accrual, activation and withdrawal endpoints.
type RewardHandler struct {
	accrual    ports.AccrualService
	activation ports.ActivationService
	withdrawal ports.WithdrawalService
}

func NewRewardHandler(
	accrual ports.AccrualService,
	activation ports.ActivationService,
	withdrawal ports.WithdrawalService,
) *RewardHandler {
	return &RewardHandler{
		accrual:    accrual,
		activation: activation,
		withdrawal: withdrawal,
	}
}

// Sync credits every whole period elapsed since the last checkpoint.
//
// @Summary      Sync accrued balance
// @Tags         rewards
// @Accept       json
// @Produce      json
// @Param        body  body      syncRequest  true  "Account to sync"
// @Success      200   {object}  syncResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /api/sync [post]
func (h *RewardHandler) Sync(c echo.Context) error {
	var req syncRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	view, err := h.accrual.Sync(c.Request().Context(), req.UserID)
	if err != nil {
		metrics.SyncsTotal.WithLabelValues("error").Inc()
		return err
	}

	if view.Periods > 0 {
		metrics.SyncsTotal.WithLabelValues("credited").Inc()
		metrics.PeriodsCreditedTotal.Add(float64(view.Periods))
	} else {
		metrics.SyncsTotal.WithLabelValues("noop").Inc()
	}

	return c.JSON(http.StatusOK, toSyncResponse(view))
}

// VerifyCode activates an account with a one-time code.
//
// @Summary      Activate an account
// @Tags         rewards
// @Accept       json
// @Produce      json
// @Param        body  body      verifyCodeRequest  true  "Code and account"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /api/verify-code [post]
func (h *RewardHandler) VerifyCode(c echo.Context) error {
	var req verifyCodeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if _, err := h.activation.Activate(c.Request().Context(), req.Code, req.UserID); err != nil {
		metrics.ActivationsTotal.WithLabelValues(activationResult(err)).Inc()
		return err
	}
	metrics.ActivationsTotal.WithLabelValues("ok").Inc()

	return c.JSON(http.StatusOK, messageResponse{
		Success: true,
		Message: "Account activated.",
	})
}

func activationResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrCodeInvalid):
		return "invalid_code"
	case errors.Is(err, domain.ErrAlreadyVerified):
		return "already_verified"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Withdraw debits the balance and appends a pending ledger entry once the
// notification has been delivered.
//
// @Summary      Request a withdrawal
// @Tags         rewards
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header    string           false  "Replays the original receipt on retry"
// @Param        body             body      withdrawRequest  true   "Withdrawal details"
// @Success      200              {object}  withdrawResponse
// @Failure      400              {object}  errorResponse
// @Failure      403              {object}  errorResponse
// @Failure      404              {object}  errorResponse
// @Failure      500              {object}  errorResponse
// @Router       /api/withdraw [post]
func (h *RewardHandler) Withdraw(c echo.Context) error {
	var req withdrawRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	receipt, err := h.withdrawal.Withdraw(c.Request().Context(), ports.WithdrawInput{
		UserID:         req.UserID,
		Destination:    req.Address,
		Amount:         req.Amount,
		IdempotencyKey: c.Request().Header.Get(IdempotencyHeader),
	})
	if err != nil {
		metrics.WithdrawalsTotal.WithLabelValues(withdrawalResult(err)).Inc()
		return err
	}

	if receipt.Replayed {
		metrics.WithdrawalsTotal.WithLabelValues("replayed").Inc()
	} else {
		metrics.WithdrawalsTotal.WithLabelValues("ok").Inc()
		metrics.WithdrawnAmountTotal.Add(receipt.Amount.InexactFloat64())
	}

	return c.JSON(http.StatusOK, withdrawResponse{
		Success:  true,
		TxID:     receipt.TxID,
		Message:  "Withdrawal request submitted.",
		Amount:   money(receipt.Amount),
		Balance:  money(receipt.Balance),
		Status:   string(receipt.Status),
		Replayed: receipt.Replayed,
	})
}

func withdrawalResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotificationFailed):
		return "notification_failed"
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrBelowMinimum),
		errors.Is(err, domain.ErrNotVerified),
		errors.Is(err, domain.ErrAccountNotFound):
		return "rejected"
	default:
		return "error"
	}
}

// Transactions lists an account's ledger entries, newest first.
//
// @Summary      List transactions
// @Tags         rewards
// @Produce      json
// @Param        userId  path      string  true  "Account id"
// @Success      200     {array}   transactionResponse
// @Failure      500     {object}  errorResponse
// @Router       /api/transactions/{userId} [get]
func (h *RewardHandler) Transactions(c echo.Context) error {
	txs, err := h.withdrawal.History(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	return c.JSON(http.StatusOK, out)
}
