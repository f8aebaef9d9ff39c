package twofactor

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/twofactor/pkg/qrcode"
	"github.com/dmitrymomot/twofactor/pkg/ratelimit"
)

// Method identifies how a verification succeeded.
type Method string

const (
	MethodTOTP       Method = "totp"
	MethodBackupCode Method = "backup_code"
)

// Rate limit actions. Each method has its own counter.
const (
	ActionTOTP       = "2fa_totp"
	ActionBackupCode = "2fa_backup"
)

// Action returns the rate limit action of the method.
func (m Method) Action() string {
	switch m {
	case MethodTOTP:
		return ActionTOTP
	case MethodBackupCode:
		return ActionBackupCode
	default:
		return ""
	}
}

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	return m.Action() != ""
}

// Credential is the per-user TOTP credential. Secret holds the stored form:
// base32, or ciphertext when secrets are encrypted at rest.
type Credential struct {
	UserID    string     `json:"user_id"`
	Secret    string     `json:"-"`
	Enabled   bool       `json:"enabled"`
	CreatedAt time.Time  `json:"created_at"`
	EnabledAt *time.Time `json:"enabled_at,omitempty"`
}

// BackupCode is a hashed single-use recovery code.
type BackupCode struct {
	ID        uuid.UUID  `json:"id"`
	UserID    string     `json:"user_id"`
	CodeHash  string     `json:"-"`
	IsUsed    bool       `json:"is_used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// VerificationResult is the outcome of a successful verification.
type VerificationResult struct {
	Valid          bool   `json:"valid"`
	Method         Method `json:"method,omitempty"`
	BackupCodeUsed bool   `json:"backup_code_used,omitempty"`
}

// Provisioning is returned once by Provision. BackupCodes are plaintext and are
// never stored or retrievable again.
type Provisioning struct {
	Secret      string   `json:"secret"`
	URI         string   `json:"uri"`
	BackupCodes []string `json:"backup_codes"`
}

// QRCode renders the provisioning URI as a PNG data URI.
func (p *Provisioning) QRCode(size int) (string, error) {
	return qrcode.OTPAuthDataURI(p.URI, size)
}

// BackupCodesInfo carries counts only.
type BackupCodesInfo struct {
	Total int `json:"total"`
	Used  int `json:"used"`
}

// Remaining returns the number of unused codes.
func (i BackupCodesInfo) Remaining() int {
	return max(0, i.Total-i.Used)
}

// Status describes a user's two-factor state. BackupCodes is nil unless enabled.
type Status struct {
	Enabled     bool             `json:"enabled"`
	Provisioned bool             `json:"provisioned"`
	BackupCodes *BackupCodesInfo `json:"backup_codes,omitempty"`
}

// AttemptMeta is optional request context stored with each counted attempt.
type AttemptMeta struct {
	ClientIP  string
	UserAgent string
}

func (m AttemptMeta) limiterMeta() ratelimit.Meta {
	return ratelimit.Meta{ClientIP: m.ClientIP, UserAgent: m.UserAgent}
}

// AttemptStatus reports the limiter state of one method for a user.
type AttemptStatus struct {
	Method      Method        `json:"method"`
	Attempts    int           `json:"attempts"`
	Remaining   int           `json:"remaining"`
	Locked      bool          `json:"locked"`
	LockedUntil time.Time     `json:"locked_until,omitzero"`
	RetryAfter  time.Duration `json:"retry_after,omitempty"`
}
