package domain

import "time"

type AuditEventType string

const (
	AuditUserRegister        AuditEventType = "USER_REGISTER"
	AuditUserLogin           AuditEventType = "USER_LOGIN"
	AuditAuthFailure         AuditEventType = "AUTH_FAILURE"
	AuditNodeActivated       AuditEventType = "NODE_ACTIVATED"
	AuditYieldHarvested      AuditEventType = "YIELD_HARVESTED"
	AuditWithdrawInitiated   AuditEventType = "WITHDRAW_INITIATED"
	AuditAdminLogin          AuditEventType = "ADMIN_LOGIN"
	AuditAdminAccessDenied   AuditEventType = "ADMIN_ACCESS_DENIED"
	AuditAdminCodeIssued     AuditEventType = "ADMIN_CODE_ISSUED"
	AuditAdminAccountUpdated AuditEventType = "ADMIN_ACCOUNT_UPDATED"
	AuditAdminAccountDeleted AuditEventType = "ADMIN_ACCOUNT_DELETED"
)

// SystemUserID marks audit events not tied to an account.
const SystemUserID = "SYSTEM"

// AuditEvent is an entry in the system log.
type AuditEvent struct {
	Type      AuditEventType `json:"event_type"`
	UserID    string         `json:"user_id"`
	Details   string         `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}
