package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/membership/internal/audit/domain"
	auditrepo "github.com/smallbiznis/membership/internal/audit/repository"
	auditservice "github.com/smallbiznis/membership/internal/audit/service"
	"github.com/smallbiznis/membership/internal/authorization"
	"github.com/smallbiznis/membership/internal/billing"
	"github.com/smallbiznis/membership/internal/clock"
	"github.com/smallbiznis/membership/internal/config"
	"github.com/smallbiznis/membership/internal/delivery"
	"github.com/smallbiznis/membership/internal/organization/domain"
	"github.com/smallbiznis/membership/internal/organization/event"
	"github.com/smallbiznis/membership/internal/organization/repository"
	otpdomain "github.com/smallbiznis/membership/internal/otp/domain"
	otprepo "github.com/smallbiznis/membership/internal/otp/repository"
	otpservice "github.com/smallbiznis/membership/internal/otp/service"
	"github.com/smallbiznis/membership/internal/role"
	userdomain "github.com/smallbiznis/membership/internal/user/domain"
	userrepo "github.com/smallbiznis/membership/internal/user/repository"
	"github.com/smallbiznis/membership/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type sentMessage struct {
	target string
	msg    delivery.Message
}

type capturingGateway struct {
	mu   sync.Mutex
	fail bool
	sent []sentMessage
}

func (g *capturingGateway) Send(_ context.Context, target string, msg delivery.Message, _ delivery.Channel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return false
	}
	g.sent = append(g.sent, sentMessage{target: target, msg: msg})
	return true
}

// last returns the most recent message rendered from template.
func (g *capturingGateway) last(template string) (sentMessage, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.sent) - 1; i >= 0; i-- {
		if g.sent[i].msg.Template == template {
			return g.sent[i], true
		}
	}
	return sentMessage{}, false
}

func (g *capturingGateway) count(template string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, m := range g.sent {
		if m.msg.Template == template {
			n++
		}
	}
	return n
}

type fixture struct {
	svc     domain.Service
	conn    *gorm.DB
	repo    domain.Repository
	users   userdomain.Repository
	guard   authorization.Guard
	otp     otpdomain.Service
	gateway *capturingGateway
	clock   *clock.FakeClock
	node    *snowflake.Node
}

func newFixture(t *testing.T, mutate ...func(*config.Policy)) *fixture {
	t.Helper()
	conn := db.NewTest(t,
		&domain.Organization{},
		&domain.Member{},
		&domain.Invitation{},
		&userdomain.User{},
		&otpdomain.Record{},
		&auditdomain.AuditLog{},
		&event.OutboxEvent{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	policy := config.DefaultPolicy()
	for _, fn := range mutate {
		fn(&policy)
	}
	holder := config.NewStaticPolicyHolder(policy)
	log := zaptest.NewLogger(t)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	gw := &capturingGateway{}
	cfg := config.Config{AppURL: "https://app.example.com/", OTPSecret: "secret"}

	repo := repository.NewRepository(conn)
	users := userrepo.NewRepository(conn)
	auditSvc := auditservice.NewService(auditservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	guard := authorization.NewGuard(authorization.Params{
		Log: log, Config: cfg, Repo: repo, AuditSvc: auditSvc,
	})
	otpSvc := otpservice.NewService(otpservice.Params{
		Log: log, Repo: otprepo.NewRepository(conn), Gateway: gw, Clock: clk,
		Policy: holder, GenID: node, Config: cfg,
	})

	svc := NewService(Params{
		DB:        conn,
		Log:       log,
		Repo:      repo,
		Users:     users,
		Guard:     guard,
		Otp:       otpSvc,
		Gateway:   gw,
		Plans:     billing.NewPolicyPlans(holder),
		Policy:    holder,
		Config:    cfg,
		Clock:     clk,
		GenID:     node,
		Publisher: event.NewOutboxPublisher(conn, node, clk),
		AuditSvc:  auditSvc,
	})

	return &fixture{svc: svc, conn: conn, repo: repo, users: users, guard: guard, otp: otpSvc, gateway: gw, clock: clk, node: node}
}

func (f *fixture) addUser(t *testing.T, email, name string) snowflake.ID {
	t.Helper()
	now := f.clock.Now()
	u := &userdomain.User{ID: f.node.Generate(), Email: email, Name: name, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u.ID
}

func (f *fixture) createOrg(t *testing.T, ownerID snowflake.ID, slugValue string) *domain.Organization {
	t.Helper()
	org, err := f.svc.Create(context.Background(), ownerID, domain.CreateOrganizationRequest{
		Name: "Org " + slugValue,
		Slug: slugValue,
	})
	require.NoError(t, err)
	return org
}

func (f *fixture) invite(t *testing.T, orgID, inviter snowflake.ID, email string, r role.Role) (*domain.Invitation, string) {
	t.Helper()
	inv, err := f.svc.InviteMember(context.Background(), orgID, inviter, domain.InviteRequest{Email: email, Role: r})
	require.NoError(t, err)
	require.NotEmpty(t, inv.Token)
	return inv, inv.Token
}

func (f *fixture) lastOtpCode(t *testing.T) string {
	t.Helper()
	m, ok := f.gateway.last("otp_code")
	require.True(t, ok, "no otp delivered")
	code, _ := m.msg.Data["code"].(string)
	require.NotEmpty(t, code)
	return code
}

// join runs the two-phase acceptance and returns the new member.
func (f *fixture) join(t *testing.T, userID snowflake.ID, token string) *domain.Member {
	t.Helper()
	ctx := context.Background()
	first, err := f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: userID, Token: token})
	require.NoError(t, err)
	require.True(t, first.OtpSent)

	second, err := f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: userID, Token: token, OtpCode: f.lastOtpCode(t)})
	require.NoError(t, err)
	require.NotNil(t, second.Member)
	return second.Member
}

func (f *fixture) activeMembers(t *testing.T, orgID snowflake.ID) int64 {
	t.Helper()
	n, err := f.repo.CountActiveMembers(context.Background(), orgID)
	require.NoError(t, err)
	return n
}

func (f *fixture) org(t *testing.T, orgID snowflake.ID) *domain.Organization {
	t.Helper()
	org, err := f.repo.GetOrganization(context.Background(), orgID)
	require.NoError(t, err)
	require.NotNil(t, org)
	return org
}

func (f *fixture) outbox(t *testing.T, topic string) []event.OutboxEvent {
	t.Helper()
	events, err := event.Pending(context.Background(), f.conn, topic, 100)
	require.NoError(t, err)
	return events
}

func TestCreateOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")

	org := f.createOrg(t, alice, "acme")
	assert.Equal(t, alice, org.OwnerID)
	assert.Equal(t, domain.StatusActive, org.Status)
	assert.Equal(t, "free", org.SubscriptionPlan)
	assert.Equal(t, 1, org.MemberCount)
	assert.Equal(t, 10, org.MaxMembers)
	assert.Equal(t, domain.DefaultSettings(), org.Settings.Data())

	current, err := f.svc.GetUserOrganization(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, current.Membership)
	assert.Equal(t, org.ID, current.Organization.ID)
	assert.Equal(t, role.Admin, current.Membership.Role)
	assert.ElementsMatch(t, role.Strings(role.PermissionsFor(role.Admin)), []string(current.Membership.Permissions))

	user, err := f.users.Get(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, user.OrgID)
	assert.Equal(t, org.ID, *user.OrgID)
	assert.Equal(t, "admin", user.OrgRole)

	assert.Len(t, f.outbox(t, event.OrganizationCreatedTopic), 1)

	_, err = f.svc.Create(ctx, alice, domain.CreateOrganizationRequest{Name: "Second", Slug: "second"})
	assert.ErrorIs(t, err, domain.ErrAlreadyOwner)

	bob := f.addUser(t, "bob@example.com", "Bob")
	_, err = f.svc.Create(ctx, bob, domain.CreateOrganizationRequest{Name: "Other", Slug: "acme"})
	assert.ErrorIs(t, err, domain.ErrSlugTaken)

	_, err = f.svc.GetUserOrganization(ctx, bob)
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)
}

func TestCreateOrganizationWithOwnerCreatorRole(t *testing.T) {
	f := newFixture(t, func(p *config.Policy) { p.Organization.CreatorRole = "owner" })
	alice := f.addUser(t, "alice@example.com", "Alice")
	org := f.createOrg(t, alice, "acme")

	member, err := f.repo.GetMemberByUser(context.Background(), org.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, role.Owner, member.Role)
	assert.Len(t, member.Permissions, len(role.Permissions()))
}

func TestCreateOrganizationValidation(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice@example.com", "Alice")

	cases := []struct {
		name string
		req  domain.CreateOrganizationRequest
		want error
	}{
		{"empty name", domain.CreateOrganizationRequest{Slug: "a"}, domain.ErrInvalidName},
		{"long name", domain.CreateOrganizationRequest{Name: strings.Repeat("n", 101), Slug: "a"}, domain.ErrInvalidName},
		{"empty slug", domain.CreateOrganizationRequest{Name: "A"}, domain.ErrInvalidSlug},
		{"upper slug", domain.CreateOrganizationRequest{Name: "A", Slug: "Acme"}, domain.ErrInvalidSlug},
		{"long slug", domain.CreateOrganizationRequest{Name: "A", Slug: strings.Repeat("a", 51)}, domain.ErrInvalidSlug},
		{"long description", domain.CreateOrganizationRequest{Name: "A", Slug: "a", Description: strings.Repeat("d", 501)}, domain.ErrInvalidDescription},
		{"bad website", domain.CreateOrganizationRequest{Name: "A", Slug: "a", Website: "example.com"}, domain.ErrInvalidWebsite},
		{"bad logo", domain.CreateOrganizationRequest{Name: "A", Slug: "a", Logo: "ftp://x/y.png"}, domain.ErrInvalidLogo},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), alice, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.svc.Create(context.Background(), 0, domain.CreateOrganizationRequest{Name: "A", Slug: "a"})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestSlugUniqueIndexRejectsConcurrentWriter(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice@example.com", "Alice")
	org := f.createOrg(t, alice, "acme")

	now := f.clock.Now()
	dup := &domain.Organization{
		ID:               f.node.Generate(),
		Name:             "Racer",
		Slug:             org.Slug,
		OwnerID:          f.node.Generate(),
		Status:           domain.StatusActive,
		SubscriptionPlan: "free",
		MaxMembers:       10,
		Settings:         datatypes.NewJSONType(domain.DefaultSettings()),
		Usage:            datatypes.NewJSONType(domain.Usage{}),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := f.repo.CreateOrganization(context.Background(), dup)
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err))

	var count int64
	require.NoError(t, f.conn.Model(&domain.Organization{}).Where("slug = ?", "acme").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnsureOrganizationForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.addUser(t, "jane.doe@example.com", "")

	org, err := f.svc.EnsureOrganizationForUser(ctx, jane, domain.EnsureContext{Email: "jane.doe@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "jane.doe's Club", org.Name)
	assert.Equal(t, "jane-doe", org.Slug)
	assert.Equal(t, jane, org.OwnerID)

	again, err := f.svc.EnsureOrganizationForUser(ctx, jane, domain.EnsureContext{Name: "Someone Else"})
	require.NoError(t, err)
	assert.Equal(t, org.ID, again.ID)
	assert.Equal(t, "jane.doe's Club", again.Name)

	// A second user with the same base gets a suffixed slug.
	other := f.addUser(t, "jane.doe@other.com", "")
	second, err := f.svc.EnsureOrganizationForUser(ctx, other, domain.EnsureContext{Email: "jane.doe@other.com"})
	require.NoError(t, err)
	assert.NotEqual(t, "jane-doe", second.Slug)
	assert.True(t, strings.HasPrefix(second.Slug, "jane-doe-"))
}

func TestEnsureRenamesPlaceholderOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sam := f.addUser(t, "sam@example.com", "Sam")

	_, err := f.svc.Create(ctx, sam, domain.CreateOrganizationRequest{Name: "Your Club", Slug: "club-x1"})
	require.NoError(t, err)

	org, err := f.svc.EnsureOrganizationForUser(ctx, sam, domain.EnsureContext{Name: "Sam"})
	require.NoError(t, err)
	assert.Equal(t, "Sam's Club", org.Name)
	assert.Equal(t, "sam", org.Slug)
}

func TestCreateForPlanAppliesPlanLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pat := f.addUser(t, "pat@example.com", "Pat")

	_, err := f.svc.CreateForPlan(ctx, pat, " ", domain.EnsureContext{})
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)
	_, err = f.svc.CreateForPlan(ctx, pat, "pro plan!", domain.EnsureContext{})
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)

	org, err := f.svc.CreateForPlan(ctx, pat, "Professional", domain.EnsureContext{})
	require.NoError(t, err)
	assert.Equal(t, "professional", org.SubscriptionPlan)
	assert.Equal(t, 100, org.MaxMembers)
	assert.Equal(t, "Pat's Club", org.Name)
	assert.Equal(t, "pat", org.Slug)

	_, err = f.svc.CreateForPlan(ctx, pat, "starter", domain.EnsureContext{})
	assert.ErrorIs(t, err, domain.ErrAlreadyOwner)

	// The outbox provisioner keeps the purchased limit.
	p := billing.NewProvisioner(f.conn, zaptest.NewLogger(t), billing.NewPolicyPlans(config.NewStaticPolicyHolder(config.DefaultPolicy())), f.clock)
	_, err = p.ProcessPending(ctx)
	require.NoError(t, err)
	stored, err := f.repo.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, stored.MaxMembers)
}

func TestEnsureOrganizationUsesPlanHint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kim := f.addUser(t, "kim@example.com", "")

	org, err := f.svc.EnsureOrganizationForUser(ctx, kim, domain.EnsureContext{Email: "kim@example.com", Plan: "starter"})
	require.NoError(t, err)
	assert.Equal(t, "starter", org.SubscriptionPlan)
	assert.Equal(t, 25, org.MaxMembers)

	lee := f.addUser(t, "lee@example.com", "")
	org, err = f.svc.EnsureOrganizationForUser(ctx, lee, domain.EnsureContext{Email: "lee@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "free", org.SubscriptionPlan)
	assert.Equal(t, 10, org.MaxMembers)
}

func TestInvitationRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	bob := f.addUser(t, "Bob@Example.com", "Bob")
	org := f.createOrg(t, alice, "acme")

	inv, token := f.invite(t, org.ID, alice, "BOB@example.com", role.Manager)
	assert.Equal(t, "bob@example.com", inv.Email)
	assert.Equal(t, domain.InvitationPending, inv.Status)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), inv.ExpiresAt)
	assert.Len(t, token, 24+26)

	mail, ok := f.gateway.last("invite_member")
	require.True(t, ok)
	assert.Equal(t, "bob@example.com", mail.target)
	assert.Equal(t, "https://app.example.com/invite/"+token, mail.msg.Data["accept_url"])
	assert.Equal(t, "Alice", mail.msg.Data["inviter_name"])

	first, err := f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: bob, Token: token})
	require.NoError(t, err)
	assert.True(t, first.OtpSent)
	assert.NotEmpty(t, first.OtpID)
	require.NotNil(t, first.ExpiresAt)
	assert.Equal(t, int64(1), f.activeMembers(t, org.ID))

	otpMail, ok := f.gateway.last("otp_code")
	require.True(t, ok)
	assert.Equal(t, "bob@example.com", otpMail.target)

	second, err := f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: bob, Token: token, OtpCode: f.lastOtpCode(t)})
	require.NoError(t, err)
	require.NotNil(t, second.Member)
	assert.Equal(t, role.Manager, second.Member.Role)
	assert.Equal(t, org.ID, second.OrgID)

	assert.Equal(t, int64(2), f.activeMembers(t, org.ID))
	assert.Equal(t, 2, f.org(t, org.ID).MemberCount)
	assert.Equal(t, 2, f.org(t, org.ID).Usage.Data().Members)

	stored, err := f.repo.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationAccepted, stored.Status)
	require.NotNil(t, stored.AcceptedAt)

	user, err := f.users.Get(ctx, bob)
	require.NoError(t, err)
	require.NotNil(t, user.OrgID)
	assert.Equal(t, org.ID, *user.OrgID)
	assert.Equal(t, "manager", user.OrgRole)

	assert.Len(t, f.outbox(t, event.MemberJoinedTopic), 1)

	// The token is spent.
	_, err = f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: bob, Token: token})
	assert.ErrorIs(t, err, domain.ErrInvalidInvitation)
}

func TestSinglePendingInvitationPerEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	org := f.createOrg(t, alice, "acme")

	first, _ := f.invite(t, org.ID, alice, "carol@example.com", role.Member)
	_, err := f.svc.InviteMember(ctx, org.ID, alice, domain.InviteRequest{Email: "Carol@example.com", Role: role.Viewer})
	assert.ErrorIs(t, err, domain.ErrInvitationExists)

	require.NoError(t, f.svc.CancelInvitation(ctx, org.ID, first.ID, alice))
	second, _ := f.invite(t, org.ID, alice, "carol@example.com", role.Member)

	f.clock.Advance(8 * 24 * time.Hour)
	third, _ := f.invite(t, org.ID, alice, "carol@example.com", role.Member)
	assert.NotEqual(t, second.ID, third.ID)

	stale, err := f.repo.GetInvitation(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationExpired, stale.Status)

	pending, err := f.repo.ListPendingInvitations(ctx, org.ID, "carol@example.com")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, third.ID, pending[0].ID)
}

func TestInviteRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	org := f.createOrg(t, alice, "acme")

	_, err := f.svc.InviteMember(ctx, org.ID, alice, domain.InviteRequest{Email: "not-an-email", Role: role.Member})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = f.svc.InviteMember(ctx, org.ID, alice, domain.InviteRequest{Email: "x@example.com", Role: "boss"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = f.svc.InviteMember(ctx, org.ID, alice, domain.InviteRequest{Email: "x@example.com", Role: role.Member, Message: strings.Repeat("m", 501)})
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)

	// Admin creator may not hand out the owner role.
	_, err = f.svc.InviteMember(ctx, org.ID, alice, domain.InviteRequest{Email: "x@example.com", Role: role.Owner})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	stranger := f.addUser(t, "stranger@example.com", "")
	_, err = f.svc.InviteMember(ctx, org.ID, stranger, domain.InviteRequest{Email: "x@example.com", Role: role.Member})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// Role defaults to the organization's default role; email is optional.
	noMail := false
	inv, err := f.svc.InviteMember(ctx, org.ID, alice, domain.InviteRequest{Email: "y@example.com", SendEmail: &noMail})
	require.NoError(t, err)
	assert.Equal(t, role.Member, inv.Role)
	assert.Equal(t, 0, f.gateway.count("invite_member"))

	// Existing members cannot be invited again.
	_, err = f.svc.InviteMember(ctx, org.ID, alice, domain.InviteRequest{Email: "ALICE@example.com", Role: role.Member})
	assert.ErrorIs(t, err, domain.ErrAlreadyMember)
}

func TestInviteSurvivesDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice@example.com", "Alice")
	org := f.createOrg(t, alice, "acme")

	f.gateway.fail = true
	inv, err := f.svc.InviteMember(context.Background(), org.ID, alice, domain.InviteRequest{Email: "bob@example.com", Role: role.Member})
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationPending, inv.Status)
}

func TestMemberLimit(t *testing.T) {
	f := newFixture(t, func(p *config.Policy) { p.Plans["free"] = 2 })
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	bob := f.addUser(t, "bob@example.com", "Bob")
	org := f.createOrg(t, alice, "acme")
	assert.Equal(t, 2, org.MaxMembers)

	_, token := f.invite(t, org.ID, alice, "bob@example.com", role.Member)
	f.join(t, bob, token)

	_, err := f.svc.InviteMember(ctx, org.ID, alice, domain.InviteRequest{Email: "carol@example.com", Role: role.Member})
	assert.ErrorIs(t, err, domain.ErrMemberLimitReached)
}

func TestAcceptInvitationFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	bob := f.addUser(t, "bob@example.com", "Bob")
	eve := f.addUser(t, "eve@example.com", "Eve")
	org := f.createOrg(t, alice, "acme")
	inv, token := f.invite(t, org.ID, alice, "bob@example.com", role.Member)

	_, err := f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: bob, Token: "unknown"})
	assert.ErrorIs(t, err, domain.ErrInvalidInvitation)

	_, err = f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: bob, Token: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: eve, Token: token})
	assert.ErrorIs(t, err, domain.ErrEmailMismatch)

	_, err = f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: bob, Token: token})
	require.NoError(t, err)
	_, err = f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: bob, Token: token, OtpCode: "000000x"})
	assert.ErrorIs(t, err, domain.ErrInvalidOtp)
	assert.Equal(t, int64(1), f.activeMembers(t, org.ID))

	f.clock.Advance(7*24*time.Hour + time.Second)
	_, err = f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: bob, Token: token})
	assert.ErrorIs(t, err, domain.ErrInvitationExpired)

	stored, err := f.repo.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationExpired, stored.Status)
}

func TestAcceptRejectsCodeIssuedForAnotherInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	dan := f.addUser(t, "dan@example.com", "Dan")
	bob := f.addUser(t, "bob@example.com", "Bob")
	orgA := f.createOrg(t, alice, "alpha")
	orgB := f.createOrg(t, dan, "beta")

	_, tokenA := f.invite(t, orgA.ID, alice, "bob@example.com", role.Member)
	_, tokenB := f.invite(t, orgB.ID, dan, "bob@example.com", role.Member)

	_, err := f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: bob, Token: tokenA})
	require.NoError(t, err)

	_, err = f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: bob, Token: tokenB, OtpCode: f.lastOtpCode(t)})
	assert.ErrorIs(t, err, domain.ErrOtpMismatch)
	assert.Equal(t, int64(1), f.activeMembers(t, orgB.ID))
}

func TestDeclineInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	bob := f.addUser(t, "bob@example.com", "Bob")
	eve := f.addUser(t, "eve@example.com", "Eve")
	org := f.createOrg(t, alice, "acme")
	inv, token := f.invite(t, org.ID, alice, "bob@example.com", role.Member)

	assert.ErrorIs(t, f.svc.DeclineInvitation(ctx, domain.DeclineInvitationRequest{UserID: eve, Token: token}), domain.ErrEmailMismatch)
	require.NoError(t, f.svc.DeclineInvitation(ctx, domain.DeclineInvitationRequest{UserID: bob, Token: token}))

	stored, err := f.repo.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationDeclined, stored.Status)
	require.NotNil(t, stored.DeclinedAt)

	assert.ErrorIs(t, f.svc.DeclineInvitation(ctx, domain.DeclineInvitationRequest{UserID: bob, Token: token}), domain.ErrInvalidInvitation)
	_, err = f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: bob, Token: token})
	assert.ErrorIs(t, err, domain.ErrInvalidInvitation)
}

func TestAcceptWithCredentialEmailCreatesProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	org := f.createOrg(t, alice, "acme")
	_, token := f.invite(t, org.ID, alice, "jane@example.com", role.Member)

	// No stored profile and no email on the credentials.
	ghost := f.node.Generate()
	_, err := f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: ghost, Token: token})
	assert.ErrorIs(t, err, domain.ErrEmailMismatch)

	jane := f.node.Generate()
	first, err := f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{UserID: jane, Email: "Jane@Example.com", Token: token})
	require.NoError(t, err)
	require.True(t, first.OtpSent)
	sent, ok := f.gateway.last("otp_code")
	require.True(t, ok)
	assert.Equal(t, "jane@example.com", sent.target)

	second, err := f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{
		UserID: jane, Email: "jane@example.com", Token: token, OtpCode: f.lastOtpCode(t),
	})
	require.NoError(t, err)
	require.NotNil(t, second.Member)
	assert.Equal(t, int64(2), f.activeMembers(t, org.ID))

	profile, err := f.users.Get(ctx, jane)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "jane@example.com", profile.Email)
	require.NotNil(t, profile.OrgID)
	assert.Equal(t, org.ID, *profile.OrgID)
}

func TestDeclineWithCredentialEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	org := f.createOrg(t, alice, "acme")
	inv, token := f.invite(t, org.ID, alice, "jane@example.com", role.Member)

	jane := f.node.Generate()
	err := f.svc.DeclineInvitation(ctx, domain.DeclineInvitationRequest{UserID: jane, Email: "eve@example.com", Token: token})
	assert.ErrorIs(t, err, domain.ErrEmailMismatch)

	require.NoError(t, f.svc.DeclineInvitation(ctx, domain.DeclineInvitationRequest{UserID: jane, Email: "jane@example.com", Token: token}))
	stored, err := f.repo.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationDeclined, stored.Status)
}

func TestAcceptRejectsCodeNotSentToInvitedEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	org := f.createOrg(t, alice, "acme")
	inv, token := f.invite(t, org.ID, alice, "victim@example.com", role.Admin)

	// The caller claims the invited address but has the code sent elsewhere.
	mallory := f.node.Generate()
	_, err := f.otp.Generate(ctx, otpdomain.GenerateRequest{
		UserID:         mallory,
		Type:           otpdomain.TypeOrgInvitation,
		DeliveryMethod: otpdomain.DeliveryEmail,
		Target:         "mallory@attacker.test",
		Metadata: map[string]any{
			"org_id":        org.ID.String(),
			"invitation_id": inv.ID.String(),
			"email":         "victim@example.com",
		},
	})
	require.NoError(t, err)
	sent, ok := f.gateway.last("otp_code")
	require.True(t, ok)
	assert.Equal(t, "mallory@attacker.test", sent.target)

	_, err = f.svc.AcceptInvitation(ctx, domain.AcceptInvitationRequest{
		UserID: mallory, Email: "victim@example.com", Token: token, OtpCode: f.lastOtpCode(t),
	})
	assert.ErrorIs(t, err, domain.ErrOtpMismatch)
	assert.Equal(t, int64(1), f.activeMembers(t, org.ID))

	stored, err := f.repo.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationPending, stored.Status)
}

func TestResendAndCancelInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	dan := f.addUser(t, "dan@example.com", "Dan")
	org := f.createOrg(t, alice, "acme")
	other := f.createOrg(t, dan, "other")
	inv, token := f.invite(t, org.ID, alice, "bob@example.com", role.Member)

	f.clock.Advance(time.Hour)
	resent, err := f.svc.ResendInvitation(ctx, org.ID, inv.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, token, resent.Token)
	assert.True(t, inv.ExpiresAt.Equal(resent.ExpiresAt))
	assert.Equal(t, 2, f.gateway.count("invite_member"))

	_, err = f.svc.ResendInvitation(ctx, other.ID, inv.ID, dan)
	assert.ErrorIs(t, err, domain.ErrInvitationNotFound)
	assert.ErrorIs(t, f.svc.CancelInvitation(ctx, other.ID, inv.ID, dan), domain.ErrInvitationNotFound)

	require.NoError(t, f.svc.CancelInvitation(ctx, org.ID, inv.ID, alice))
	assert.ErrorIs(t, f.svc.CancelInvitation(ctx, org.ID, inv.ID, alice), domain.ErrInvitationNotPending)
	_, err = f.svc.ResendInvitation(ctx, org.ID, inv.ID, alice)
	assert.ErrorIs(t, err, domain.ErrInvitationNotPending)

	items, err := f.svc.ListInvitations(ctx, org.ID, alice)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.InvitationCancelled, items[0].Status)
}

func TestResendRotatesTokenWhenConfigured(t *testing.T) {
	f := newFixture(t, func(p *config.Policy) { p.Organization.RotateTokenOnResend = true })
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	org := f.createOrg(t, alice, "acme")
	inv, token := f.invite(t, org.ID, alice, "bob@example.com", role.Member)

	f.clock.Advance(24 * time.Hour)
	resent, err := f.svc.ResendInvitation(ctx, org.ID, inv.ID, alice)
	require.NoError(t, err)
	assert.NotEqual(t, token, resent.Token)
	assert.True(t, f.clock.Now().Add(7*24*time.Hour).Equal(resent.ExpiresAt))

	mail, ok := f.gateway.last("invite_member")
	require.True(t, ok)
	assert.Equal(t, "https://app.example.com/invite/"+resent.Token, mail.msg.Data["accept_url"])
}

func TestRoleHierarchyGuard(t *testing.T) {
	f := newFixture(t, func(p *config.Policy) { p.Organization.CreatorRole = "owner" })
	ctx := context.Background()
	olivia := f.addUser(t, "olivia@example.com", "Olivia")
	mike := f.addUser(t, "mike@example.com", "Mike")
	org := f.createOrg(t, olivia, "acme")

	_, token := f.invite(t, org.ID, olivia, "mike@example.com", role.Manager)
	manager := f.join(t, mike, token)

	// Give the manager the update-role capability through their snapshot.
	snapshot := append(role.Strings(role.PermissionsFor(role.Manager)), string(role.MemberUpdateRole))
	require.NoError(t, f.repo.UpdateMember(ctx, manager.ID, map[string]any{"permissions": datatypes.JSONSlice[string](snapshot)}))

	_, err := f.svc.UpdateMemberRole(ctx, org.ID, manager.ID, mike, role.Owner)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	ownerMember, err := f.repo.GetMemberByUser(ctx, org.ID, olivia)
	require.NoError(t, err)

	_, err = f.svc.UpdateMemberRole(ctx, org.ID, ownerMember.ID, mike, role.Viewer)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.ErrorIs(t, f.svc.RemoveMember(ctx, org.ID, ownerMember.ID, olivia), domain.ErrOwnerSelfRemoval)

	_, err = f.svc.UpdateMemberRole(ctx, org.ID, ownerMember.ID, olivia, role.Admin)
	assert.ErrorIs(t, err, domain.ErrOwnerSelfDemotion)

	promoted, err := f.svc.UpdateMemberRole(ctx, org.ID, manager.ID, olivia, role.Owner)
	require.NoError(t, err)
	assert.Equal(t, role.Owner, promoted.Role)
}

func TestUpdateMemberRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	bob := f.addUser(t, "bob@example.com", "Bob")
	dan := f.addUser(t, "dan@example.com", "Dan")
	org := f.createOrg(t, alice, "acme")
	other := f.createOrg(t, dan, "other")

	_, token := f.invite(t, org.ID, alice, "bob@example.com", role.Manager)
	member := f.join(t, bob, token)

	updated, err := f.svc.UpdateMemberRole(ctx, org.ID, member.ID, alice, role.Finance)
	require.NoError(t, err)
	assert.Equal(t, role.Finance, updated.Role)
	assert.ElementsMatch(t, role.Strings(role.PermissionsFor(role.Finance)), []string(updated.Permissions))

	user, err := f.users.Get(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, "finance", user.OrgRole)

	// Member ids are scoped to the organization in the path.
	otherMember, err := f.repo.GetMemberByUser(ctx, other.ID, dan)
	require.NoError(t, err)
	_, err = f.svc.UpdateMemberRole(ctx, org.ID, otherMember.ID, alice, role.Viewer)
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)

	_, err = f.svc.UpdateMemberRole(ctx, org.ID, member.ID, alice, "boss")
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = f.svc.UpdateMemberRole(ctx, org.ID, member.ID, bob, role.Admin)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestRemoveMemberKeepsCountConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	bob := f.addUser(t, "bob@example.com", "Bob")
	carol := f.addUser(t, "carol@example.com", "Carol")
	org := f.createOrg(t, alice, "acme")

	_, tokenB := f.invite(t, org.ID, alice, "bob@example.com", role.Member)
	bobMember := f.join(t, bob, tokenB)
	assert.Equal(t, 2, f.org(t, org.ID).MemberCount)

	_, tokenC := f.invite(t, org.ID, alice, "carol@example.com", role.Viewer)
	f.join(t, carol, tokenC)
	assert.Equal(t, 3, f.org(t, org.ID).MemberCount)

	require.NoError(t, f.svc.RemoveMember(ctx, org.ID, bobMember.ID, alice))
	assert.Equal(t, 2, f.org(t, org.ID).MemberCount)
	assert.Equal(t, f.activeMembers(t, org.ID), int64(f.org(t, org.ID).MemberCount))

	user, err := f.users.Get(ctx, bob)
	require.NoError(t, err)
	assert.Nil(t, user.OrgID)
	assert.Empty(t, user.OrgRole)

	assert.Len(t, f.outbox(t, event.MemberRemovedTopic), 1)
	assert.ErrorIs(t, f.svc.RemoveMember(ctx, org.ID, bobMember.ID, alice), domain.ErrMemberNotFound)

	// Removed members can be invited again.
	_, tokenB2 := f.invite(t, org.ID, alice, "bob@example.com", role.Member)
	f.join(t, bob, tokenB2)
	assert.Equal(t, 3, f.org(t, org.ID).MemberCount)
}

func TestUpdateMemberStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	bob := f.addUser(t, "bob@example.com", "Bob")
	org := f.createOrg(t, alice, "acme")
	_, token := f.invite(t, org.ID, alice, "bob@example.com", role.Member)
	member := f.join(t, bob, token)

	updated, err := f.svc.UpdateMemberStatus(ctx, org.ID, member.ID, alice, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, 1, f.org(t, org.ID).MemberCount)

	allowed, err := f.guard.Authorize(ctx, bob, org.ID, role.MemberView)
	require.NoError(t, err)
	assert.False(t, allowed)

	updated, err = f.svc.UpdateMemberStatus(ctx, org.ID, member.ID, alice, true)
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.Equal(t, 2, f.org(t, org.ID).MemberCount)
}

func TestUpdateOrganizationAndSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	vic := f.addUser(t, "vic@example.com", "Vic")
	org := f.createOrg(t, alice, "acme")

	name := "Acme Rockets"
	allow := true
	updated, err := f.svc.Update(ctx, org.ID, alice, domain.UpdateOrganizationRequest{
		Name:     &name,
		Settings: &domain.UpdateSettingsRequest{AllowMemberInvites: &allow},
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Rockets", updated.Name)
	assert.Equal(t, "acme", updated.Slug)
	assert.True(t, updated.Settings.Data().AllowMemberInvites)
	assert.Equal(t, role.Member, updated.Settings.Data().DefaultRole)

	viewerRole := role.Viewer
	settings, err := f.svc.UpdateSettings(ctx, org.ID, alice, domain.UpdateSettingsRequest{
		DefaultRole: &viewerRole,
		Branding:    &domain.Branding{PrimaryColor: "#AABBCC"},
	})
	require.NoError(t, err)
	assert.True(t, settings.AllowMemberInvites)
	assert.Equal(t, role.Viewer, settings.DefaultRole)
	require.NotNil(t, settings.Branding)
	assert.Equal(t, "#AABBCC", settings.Branding.PrimaryColor)

	_, err = f.svc.UpdateSettings(ctx, org.ID, alice, domain.UpdateSettingsRequest{Branding: &domain.Branding{PrimaryColor: "blue"}})
	assert.ErrorIs(t, err, domain.ErrInvalidSettings)

	_, token := f.invite(t, org.ID, alice, "vic@example.com", "")
	viewer := f.join(t, vic, token)
	assert.Equal(t, role.Viewer, viewer.Role)

	got, err := f.svc.GetSettings(ctx, org.ID, vic)
	require.NoError(t, err)
	assert.Equal(t, role.Viewer, got.DefaultRole)

	_, err = f.svc.Update(ctx, org.ID, vic, domain.UpdateOrganizationRequest{Name: &name})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	empty := ""
	_, err = f.svc.Update(ctx, org.ID, alice, domain.UpdateOrganizationRequest{Name: &empty})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestListMembersIncludesProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser(t, "alice@example.com", "Alice")
	bob := f.addUser(t, "bob@example.com", "Bob")
	stranger := f.addUser(t, "stranger@example.com", "")
	org := f.createOrg(t, alice, "acme")

	_, token := f.invite(t, org.ID, alice, "bob@example.com", role.Member)
	f.join(t, bob, token)

	members, err := f.svc.ListMembers(ctx, org.ID, bob)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice@example.com", members[0].User.Email)
	assert.Equal(t, "Bob", members[1].User.Name)

	_, err = f.svc.ListMembers(ctx, org.ID, stranger)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.GetByID(ctx, 12345)
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)
}

func TestInvitationToken(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a, err := newInvitationToken(now)
	require.NoError(t, err)
	b, err := newInvitationToken(now)
	require.NoError(t, err)

	assert.Len(t, a, 50)
	assert.NotEqual(t, a, b)
	assert.Equal(t, strings.ToLower(a[24:]), a[24:])
	for _, c := range a[:24] {
		assert.Contains(t, tokenAlphabet, string(c))
	}
}
