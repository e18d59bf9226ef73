// Package domain contains the user profile as seen by the membership service.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is a profile owned by the identity provider. Only the organization
// reference is written here.
type User struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	Email     string        `gorm:"column:email;type:text;not null;uniqueIndex" json:"email"`
	Name      string        `gorm:"type:text" json:"name"`
	AvatarURL string        `gorm:"column:avatar_url;type:text" json:"avatar_url,omitempty"`
	OrgID     *snowflake.ID `gorm:"column:org_id;index" json:"org_id,omitempty"`
	OrgRole   string        `gorm:"column:org_role;type:text" json:"org_role,omitempty"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

type Repository interface {
	Get(ctx context.Context, id snowflake.ID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) error
	// SyncProfile creates the profile for id or refreshes its email.
	SyncProfile(ctx context.Context, id snowflake.ID, email string, now time.Time) error
	SetOrganization(ctx context.Context, userID snowflake.ID, orgID *snowflake.ID, orgRole string) error
}

var ErrNotFound = errors.New("user_not_found")
