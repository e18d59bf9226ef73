package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	auditdomain "github.com/smallbiznis/membership/internal/audit/domain"
	auditrepo "github.com/smallbiznis/membership/internal/audit/repository"
	auditservice "github.com/smallbiznis/membership/internal/audit/service"
	"github.com/smallbiznis/membership/internal/authorization"
	"github.com/smallbiznis/membership/internal/billing"
	"github.com/smallbiznis/membership/internal/clock"
	"github.com/smallbiznis/membership/internal/config"
	"github.com/smallbiznis/membership/internal/delivery"
	organizationdomain "github.com/smallbiznis/membership/internal/organization/domain"
	"github.com/smallbiznis/membership/internal/organization/event"
	organizationrepo "github.com/smallbiznis/membership/internal/organization/repository"
	organizationservice "github.com/smallbiznis/membership/internal/organization/service"
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
)

type recordingGateway struct {
	mu    sync.Mutex
	codes []string
}

func (g *recordingGateway) Send(_ context.Context, _ string, msg delivery.Message, _ delivery.Channel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if code, ok := msg.Data["code"].(string); ok {
		g.codes = append(g.codes, code)
	}
	return true
}

func (g *recordingGateway) lastCode(t *testing.T) string {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	require.NotEmpty(t, g.codes, "no otp delivered")
	return g.codes[len(g.codes)-1]
}

type flowFixture struct {
	*serverFixture
	orgSvc  organizationdomain.Service
	users   userdomain.Repository
	gateway *recordingGateway
	node    *snowflake.Node
}

// newFlowFixture serves the HTTP routes from real services over sqlite.
func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := db.NewTest(t,
		&organizationdomain.Organization{},
		&organizationdomain.Member{},
		&organizationdomain.Invitation{},
		&userdomain.User{},
		&otpdomain.Record{},
		&auditdomain.AuditLog{},
		&event.OutboxEvent{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	holder := config.NewStaticPolicyHolder(config.DefaultPolicy())
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{AuthJWTSecret: testSecret, AppURL: "https://app.example.com", OTPSecret: "secret"}
	gw := &recordingGateway{}

	repo := organizationrepo.NewRepository(conn)
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
	orgSvc := organizationservice.NewService(organizationservice.Params{
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

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		Log:             log,
		OrganizationSvc: orgSvc,
		OtpSvc:          otpSvc,
		AuditSvc:        auditSvc,
		Guard:           guard,
	})

	return &flowFixture{
		serverFixture: &serverFixture{engine: engine},
		orgSvc:        orgSvc,
		users:         users,
		gateway:       gw,
		node:          node,
	}
}

func TestAcceptInvitationWithoutStoredProfile(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	alice := f.node.Generate()
	org, err := f.orgSvc.Create(ctx, alice, organizationdomain.CreateOrganizationRequest{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	inv, err := f.orgSvc.InviteMember(ctx, org.ID, alice, organizationdomain.InviteRequest{Email: "jane@example.com", Role: role.Member})
	require.NoError(t, err)

	// Jane signs in for the first time; only her token knows her email.
	jane := f.node.Generate()
	token := signToken(t, testSecret, jane, "jane@example.com")
	body := `{"token":"` + inv.Token + `"}`

	rec := f.do(t, http.MethodPost, "/api/invitations/accept", body, token)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	body = `{"token":"` + inv.Token + `","otp_code":"` + f.gateway.lastCode(t) + `"}`
	rec = f.do(t, http.MethodPost, "/api/invitations/accept", body, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data organizationdomain.AcceptInvitationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Member)
	assert.Equal(t, jane, resp.Data.Member.UserID)
	assert.Equal(t, role.Member, resp.Data.Member.Role)

	profile, err := f.users.Get(ctx, jane)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "jane@example.com", profile.Email)
}

func TestDeclineInvitationWithoutStoredProfile(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	alice := f.node.Generate()
	org, err := f.orgSvc.Create(ctx, alice, organizationdomain.CreateOrganizationRequest{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	inv, err := f.orgSvc.InviteMember(ctx, org.ID, alice, organizationdomain.InviteRequest{Email: "jane@example.com", Role: role.Member})
	require.NoError(t, err)

	body := `{"token":"` + inv.Token + `"}`
	rec := f.do(t, http.MethodPost, "/api/invitations/decline", body, signToken(t, testSecret, f.node.Generate(), "eve@example.com"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/invitations/decline", body, signToken(t, testSecret, f.node.Generate(), "jane@example.com"))
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func TestGenerateOtpRejectsInvitationType(t *testing.T) {
	f := newFlowFixture(t)
	token := signToken(t, testSecret, f.node.Generate(), "mallory@example.com")

	body := `{"type":"org_invitation","delivery_method":"email","target":"mallory@attacker.test","metadata":{"org_id":"1","invitation_id":"2"}}`
	rec := f.do(t, http.MethodPost, "/api/otp/generate", body, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "reserved_otp_type", payload.Errors[0].Code)
	assert.Empty(t, f.gateway.codes)

	body = `{"type":"email_verification","delivery_method":"email","target":"mallory@example.com"}`
	rec = f.do(t, http.MethodPost, "/api/otp/generate", body, token)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestEnsureMyOrganizationUsesPlanClaim(t *testing.T) {
	f := newFlowFixture(t)
	userID := f.node.Generate()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: "pat@example.com",
		Plan:  "professional",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/organizations/me/ensure", "", signed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data organizationdomain.Organization `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "professional", resp.Data.SubscriptionPlan)
	assert.Equal(t, 100, resp.Data.MaxMembers)
	assert.Equal(t, userID, resp.Data.OwnerID)
}
