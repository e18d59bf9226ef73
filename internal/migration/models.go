package migration

import (
	auditdomain "github.com/smallbiznis/membership/internal/audit/domain"
	organizationdomain "github.com/smallbiznis/membership/internal/organization/domain"
	"github.com/smallbiznis/membership/internal/organization/event"
	otpdomain "github.com/smallbiznis/membership/internal/otp/domain"
	userdomain "github.com/smallbiznis/membership/internal/user/domain"
)

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&userdomain.User{},
		&organizationdomain.Organization{},
		&organizationdomain.Member{},
		&organizationdomain.Invitation{},
		&otpdomain.Record{},
		&auditdomain.AuditLog{},
		&event.OutboxEvent{},
	}
}
