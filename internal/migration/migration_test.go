package migration

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/membership/internal/config"
	"github.com/smallbiznis/membership/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	entries, err := fs.ReadDir(sub, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaCarriesUniquenessIndexes(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_membership.up.sql")
	require.NoError(t, err)
	sql := string(body)

	for _, index := range []string{
		"ux_organizations_slug",
		"ux_organizations_owner",
		"ux_org_user",
		"ux_invitations_token",
		"ux_invitations_pending_email",
	} {
		assert.Contains(t, sql, index)
	}
}

func TestApplyAutoMigratesSqlite(t *testing.T) {
	conn := db.NewTest(t)
	cfg := config.Config{DBType: "sqlite", DBAutoMigrate: true}

	require.NoError(t, Apply(context.Background(), conn, cfg, zaptest.NewLogger(t)))
	for _, table := range []string{
		"users",
		"organizations",
		"organization_members",
		"organization_invitations",
		"otp_records",
		"audit_logs",
		"outbox_events",
	} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestApplySkipsWhenAutoMigrateDisabled(t *testing.T) {
	conn := db.NewTest(t)
	cfg := config.Config{DBType: "sqlite"}

	require.NoError(t, Apply(context.Background(), conn, cfg, zaptest.NewLogger(t)))
	assert.False(t, conn.Migrator().HasTable("organizations"))
}
