package authorization

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/membership/internal/config"
	"github.com/smallbiznis/membership/internal/role"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// NewEnforcer builds the casbin enforcer used by live permission mode. In
// snapshot mode no enforcer is created.
func NewEnforcer(cfg config.Config, db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	if cfg.AuthzPermissionMode != config.PermissionModeLive {
		return nil, nil
	}

	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

// NewMemoryEnforcer builds a live-mode enforcer that keeps policy in memory.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	for r, perms := range role.Table() {
		for _, perm := range perms {
			obj, act := splitPermission(perm)
			if _, err := enforcer.AddPolicy(roleSubject(r), obj, act); err != nil {
				return err
			}
		}
	}
	return nil
}

// splitPermission turns "member:invite" into ("member", "invite").
func splitPermission(perm role.Permission) (string, string) {
	obj, act, ok := strings.Cut(string(perm), ":")
	if !ok {
		return string(perm), "*"
	}
	return obj, act
}

func roleSubject(r role.Role) string {
	return fmt.Sprintf("role:%s", r)
}

func userSubject(userID fmt.Stringer) string {
	return fmt.Sprintf("user:%s", userID)
}

func orgDomain(orgID fmt.Stringer) string {
	return fmt.Sprintf("org:%s", orgID)
}
