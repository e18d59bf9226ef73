package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/role"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidActor    = errors.New("invalid_actor")
	ErrInvalidArgument = errors.New("invalid_argument")
)

// Guard decides whether a user may act inside an organization. Missing
// organizations and missing memberships are reported as "not allowed";
// only storage failures surface as errors.
type Guard interface {
	Authorize(ctx context.Context, userID, orgID snowflake.ID, perm role.Permission) (bool, error)
	AuthorizeAny(ctx context.Context, userID, orgID snowflake.ID, perms ...role.Permission) (bool, error)
	AuthorizeAll(ctx context.Context, userID, orgID snowflake.ID, perms ...role.Permission) (bool, error)
	AuthorizeRole(ctx context.Context, userID, orgID snowflake.ID, r role.Role) (bool, error)
	Require(ctx context.Context, userID, orgID snowflake.ID, perm role.Permission) error
}
