// Package domain contains one-time code records and the OTP service contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeEmailVerification Type = "email_verification"
	TypePhoneVerification Type = "phone_verification"
	TypePasswordReset     Type = "password_reset"
	TypeTwoFactorAuth     Type = "two_factor_auth"
	TypeOrgInvitation     Type = "org_invitation"
)

func (t Type) Valid() bool {
	switch t {
	case TypeEmailVerification, TypePhoneVerification, TypePasswordReset, TypeTwoFactorAuth, TypeOrgInvitation:
		return true
	}
	return false
}

// Reserved reports whether codes of this type are only issued by the
// service that consumes them.
func (t Type) Reserved() bool {
	return t == TypeOrgInvitation
}

type DeliveryMethod string

const (
	DeliveryEmail    DeliveryMethod = "email"
	DeliverySMS      DeliveryMethod = "sms"
	DeliveryWhatsApp DeliveryMethod = "whatsapp"
)

func (m DeliveryMethod) Valid() bool {
	switch m {
	case DeliveryEmail, DeliverySMS, DeliveryWhatsApp:
		return true
	}
	return false
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusExpired  Status = "expired"
	StatusFailed   Status = "failed"
)

// Record is a single issued code. Only a keyed hash of the code is stored.
type Record struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID         snowflake.ID      `gorm:"column:user_id;not null;index:ix_otp_user_type,priority:1" json:"user_id"`
	Type           Type              `gorm:"type:text;not null;index:ix_otp_user_type,priority:2" json:"type"`
	DeliveryMethod DeliveryMethod    `gorm:"column:delivery_method;type:text;not null" json:"delivery_method"`
	Target         string            `gorm:"type:text;not null" json:"target"`
	CodeHash       string            `gorm:"column:code_hash;type:text;not null" json:"-"`
	Status         Status            `gorm:"type:text;not null;index" json:"status"`
	Attempts       int               `gorm:"not null" json:"attempts"`
	MaxAttempts    int               `gorm:"column:max_attempts;not null" json:"max_attempts"`
	ExpiresAt      time.Time         `gorm:"column:expires_at;not null" json:"expires_at"`
	VerifiedAt     *time.Time        `gorm:"column:verified_at" json:"verified_at,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "otp_records" }
