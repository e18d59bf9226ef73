package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Repository persists OTP records. Lookups return (nil, nil) when nothing matches.
type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	// LatestPending returns the newest pending record for the user, optionally of one type.
	LatestPending(ctx context.Context, userID snowflake.ID, otpType *Type) (*Record, error)
	// Latest returns the newest record of any status, optionally of one type.
	Latest(ctx context.Context, userID snowflake.ID, otpType *Type) (*Record, error)
	Update(ctx context.Context, rec *Record) error
	// InvalidatePending flips pending records of (user, type) to expired, skipping excludeID when non-zero.
	InvalidatePending(ctx context.Context, userID snowflake.ID, otpType Type, excludeID snowflake.ID, now time.Time) (int64, error)
	CountCreatedSince(ctx context.Context, userID snowflake.ID, method DeliveryMethod, since time.Time) (int64, error)
	Delete(ctx context.Context, id snowflake.ID) error
	DeleteCreatedBefore(ctx context.Context, before time.Time, limit int) (int64, error)
}
