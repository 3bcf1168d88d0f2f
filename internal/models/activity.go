package models

import "time"

const (
	ActionUserRegistered         = "USER_REGISTERED"
	ActionLoginOTPSent           = "LOGIN_OTP_SENT"
	ActionLoginFailed            = "LOGIN_FAILED"
	ActionAccountLocked          = "ACCOUNT_LOCKED"
	ActionUserLogin              = "USER_LOGIN"
	ActionLogout                 = "LOGOUT"
	ActionPasswordResetRequested = "PASSWORD_RESET_REQUESTED"
	ActionPasswordReset          = "PASSWORD_RESET"
	ActionPasswordChanged        = "PASSWORD_CHANGED"
	ActionFileUpload             = "FILE_UPLOAD"
	ActionFileRejected           = "FILE_REJECTED"
	ActionLinkGenerated          = "LINK_GENERATED"
	ActionFileDownloaded         = "FILE_DOWNLOADED"
	ActionAccountUpgraded        = "ACCOUNT_UPGRADED"
)

type ActivityRecord struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}
