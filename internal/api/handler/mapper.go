package handler

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
	"github.com/xtremeprotocol/accrual-service/internal/core/ports"
)

// Amounts leave the API as fixed two-decimal strings.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toSyncResponse(v *ports.SyncView) syncResponse {
	return syncResponse{
		Balance:         money(v.Balance),
		Progress:        v.Progress,
		NextSync:        fmt.Sprintf("%.2f", v.TimeToNext.Hours()),
		NextSyncAt:      v.NextSyncAt,
		Rate:            money(v.Rate),
		PeriodsCredited: v.Periods,
		TotalEarned:     money(v.TotalEarned),
	}
}

func toTransactionResponse(t *domain.Transaction) transactionResponse {
	return transactionResponse{
		TxID:      t.ID,
		UserID:    t.UserID,
		Type:      string(t.Type),
		Amount:    money(t.Amount),
		Address:   t.Destination,
		Status:    string(t.Status),
		Timestamp: t.CreatedAt,
	}
}

func toAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Username:       a.Username,
		Balance:        money(a.Balance),
		TotalWithdrawn: money(a.TotalWithdrawn),
		LastSync:       a.LastSyncedAt,
		IsVerified:     a.Verified,
		Tier:           string(a.Tier),
		CreatedAt:      a.CreatedAt,
	}
}

func toAuditEventResponse(e *domain.AuditEvent) auditEventResponse {
	return auditEventResponse{
		EventType: string(e.Type),
		UserID:    e.UserID,
		Details:   e.Details,
		Timestamp: e.Timestamp,
	}
}
