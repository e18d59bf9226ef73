package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	auditdomain "github.com/smallbiznis/membership/internal/audit/domain"
	"github.com/smallbiznis/membership/internal/authorization"
	"github.com/smallbiznis/membership/internal/config"
	organizationdomain "github.com/smallbiznis/membership/internal/organization/domain"
	otpdomain "github.com/smallbiznis/membership/internal/otp/domain"
	"github.com/smallbiznis/membership/internal/role"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

type fakeOrganizationService struct {
	organizationdomain.Service

	createFn          func(userID snowflake.ID, req organizationdomain.CreateOrganizationRequest) (*organizationdomain.Organization, error)
	getByIDFn         func(orgID snowflake.ID) (*organizationdomain.Organization, error)
	listInvitationsFn func(orgID, userID snowflake.ID) ([]organizationdomain.Invitation, error)
	acceptFn          func(req organizationdomain.AcceptInvitationRequest) (*organizationdomain.AcceptInvitationResult, error)
	removeMemberFn    func(orgID, memberID, userID snowflake.ID) error
}

func (f *fakeOrganizationService) Create(_ context.Context, userID snowflake.ID, req organizationdomain.CreateOrganizationRequest) (*organizationdomain.Organization, error) {
	return f.createFn(userID, req)
}

func (f *fakeOrganizationService) GetByID(_ context.Context, orgID snowflake.ID) (*organizationdomain.Organization, error) {
	return f.getByIDFn(orgID)
}

func (f *fakeOrganizationService) ListInvitations(_ context.Context, orgID, userID snowflake.ID) ([]organizationdomain.Invitation, error) {
	return f.listInvitationsFn(orgID, userID)
}

func (f *fakeOrganizationService) AcceptInvitation(_ context.Context, req organizationdomain.AcceptInvitationRequest) (*organizationdomain.AcceptInvitationResult, error) {
	return f.acceptFn(req)
}

func (f *fakeOrganizationService) RemoveMember(_ context.Context, orgID, memberID, userID snowflake.ID) error {
	return f.removeMemberFn(orgID, memberID, userID)
}

type fakeOtpService struct {
	otpdomain.Service

	statusFn func(userID snowflake.ID, otpType *otpdomain.Type) (*otpdomain.StatusResult, error)
	verifyFn func(req otpdomain.VerifyRequest) (*otpdomain.VerifyResult, error)
}

func (f *fakeOtpService) Status(_ context.Context, userID snowflake.ID, otpType *otpdomain.Type) (*otpdomain.StatusResult, error) {
	return f.statusFn(userID, otpType)
}

func (f *fakeOtpService) Verify(_ context.Context, req otpdomain.VerifyRequest) (*otpdomain.VerifyResult, error) {
	return f.verifyFn(req)
}

type fakeAuditService struct {
	auditdomain.Service

	listed []auditdomain.ListAuditLogRequest
}

func (f *fakeAuditService) List(_ context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.listed = append(f.listed, req)
	return auditdomain.ListAuditLogResponse{AuditLogs: []auditdomain.AuditLog{}}, nil
}

// fakeGuard allows exactly the permissions it was given.
type fakeGuard struct {
	allowed map[role.Permission]bool
}

func (g fakeGuard) Authorize(_ context.Context, _, _ snowflake.ID, perm role.Permission) (bool, error) {
	return g.allowed[perm], nil
}

func (g fakeGuard) AuthorizeAny(ctx context.Context, userID, orgID snowflake.ID, perms ...role.Permission) (bool, error) {
	for _, p := range perms {
		if g.allowed[p] {
			return true, nil
		}
	}
	return false, nil
}

func (g fakeGuard) AuthorizeAll(ctx context.Context, userID, orgID snowflake.ID, perms ...role.Permission) (bool, error) {
	for _, p := range perms {
		if !g.allowed[p] {
			return false, nil
		}
	}
	return true, nil
}

func (g fakeGuard) AuthorizeRole(context.Context, snowflake.ID, snowflake.ID, role.Role) (bool, error) {
	return false, nil
}

func (g fakeGuard) Require(ctx context.Context, userID, orgID snowflake.ID, perm role.Permission) error {
	if !g.allowed[perm] {
		return authorization.ErrForbidden
	}
	return nil
}

type serverFixture struct {
	engine *gin.Engine
	orgs   *fakeOrganizationService
	otps   *fakeOtpService
	audit  *fakeAuditService
}

func newServerFixture(t *testing.T, guard authorization.Guard) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	f := &serverFixture{
		engine: engine,
		orgs:   &fakeOrganizationService{},
		otps:   &fakeOtpService{},
		audit:  &fakeAuditService{},
	}
	if guard == nil {
		guard = fakeGuard{}
	}

	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{AuthJWTSecret: testSecret},
		Log:             zaptest.NewLogger(t),
		OrganizationSvc: f.orgs,
		OtpSvc:          f.otps,
		AuditSvc:        f.audit,
		Guard:           guard,
	})
	return f
}

func signToken(t *testing.T, secret string, userID snowflake.ID, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (f *serverFixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestAuthRequired(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/otp/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)

	rec = f.do(t, http.MethodGet, "/api/otp/status", "", signToken(t, "other-secret", 42, "a@example.com"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "42"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/api/otp/status", "", noneToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/otp/status", "", signToken(t, testSecret, 0, "a@example.com"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateOrganizationUsesTokenSubject(t *testing.T) {
	f := newServerFixture(t, nil)
	var gotUser snowflake.ID
	var gotReq organizationdomain.CreateOrganizationRequest
	f.orgs.createFn = func(userID snowflake.ID, req organizationdomain.CreateOrganizationRequest) (*organizationdomain.Organization, error) {
		gotUser, gotReq = userID, req
		return &organizationdomain.Organization{ID: 7, Name: req.Name, Slug: req.Slug, OwnerID: userID}, nil
	}

	rec := f.do(t, http.MethodPost, "/api/organizations", `{"name":"  Acme  ","slug":"acme"}`, signToken(t, testSecret, 42, "owner@example.com"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, snowflake.ID(42), gotUser)
	assert.Equal(t, "Acme", gotReq.Name)
	assert.Equal(t, "acme", gotReq.Slug)
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	f := newServerFixture(t, nil)
	token := signToken(t, testSecret, 42, "owner@example.com")

	f.orgs.createFn = func(snowflake.ID, organizationdomain.CreateOrganizationRequest) (*organizationdomain.Organization, error) {
		return nil, organizationdomain.ErrSlugTaken
	}
	rec := f.do(t, http.MethodPost, "/api/organizations", `{"name":"Acme","slug":"acme"}`, token)
	assert.Equal(t, http.StatusConflict, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "conflict", payload.Type)
	assert.Equal(t, "slug_taken", payload.Code)

	f.orgs.createFn = func(snowflake.ID, organizationdomain.CreateOrganizationRequest) (*organizationdomain.Organization, error) {
		return nil, organizationdomain.ErrInvalidName
	}
	rec = f.do(t, http.MethodPost, "/api/organizations", `{"name":""}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload = decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "name", payload.Errors[0].Field)

	rec = f.do(t, http.MethodPost, "/api/organizations", `{not json`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{organizationdomain.ErrInvitationExpired, http.StatusGone},
		{organizationdomain.ErrEmailMismatch, http.StatusForbidden},
		{organizationdomain.ErrOwnerSelfRemoval, http.StatusForbidden},
		{organizationdomain.ErrInvalidInvitation, http.StatusNotFound},
		{organizationdomain.ErrMemberLimitReached, http.StatusConflict},
		{organizationdomain.ErrConcurrentRequest, http.StatusConflict},
		{organizationdomain.ErrOtpMismatch, http.StatusBadRequest},
		{otpdomain.ErrResendCooldown, http.StatusTooManyRequests},
		{otpdomain.ErrDeliveryFailed, http.StatusBadGateway},
		{authorization.ErrForbidden, http.StatusForbidden},
		{ErrServiceUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestAcceptInvitationStatusFollowsPhase(t *testing.T) {
	f := newServerFixture(t, nil)
	token := signToken(t, testSecret, 42, "invitee@example.com")

	var got []organizationdomain.AcceptInvitationRequest
	f.orgs.acceptFn = func(req organizationdomain.AcceptInvitationRequest) (*organizationdomain.AcceptInvitationResult, error) {
		got = append(got, req)
		if req.OtpCode == "" {
			return &organizationdomain.AcceptInvitationResult{OtpSent: true, OtpID: "99"}, nil
		}
		return &organizationdomain.AcceptInvitationResult{
			OrgID:  7,
			Member: &organizationdomain.Member{ID: 5, OrgID: 7, UserID: 42, Role: role.Member},
		}, nil
	}

	rec := f.do(t, http.MethodPost, "/api/invitations/accept", `{"token":"abc"}`, token)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/invitations/accept", `{"token":"abc","otp_code":"123456"}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, got, 2)
	assert.Equal(t, snowflake.ID(42), got[1].UserID)
	assert.Equal(t, "invitee@example.com", got[1].Email)
	assert.Equal(t, "abc", got[1].Token)
	assert.Equal(t, "123456", got[1].OtpCode)
}

func TestListInvitationsHidesToken(t *testing.T) {
	f := newServerFixture(t, nil)
	f.orgs.listInvitationsFn = func(orgID, userID snowflake.ID) ([]organizationdomain.Invitation, error) {
		return []organizationdomain.Invitation{{
			ID:     3,
			OrgID:  orgID,
			Email:  "invitee@example.com",
			Role:   role.Member,
			Status: organizationdomain.InvitationPending,
			Token:  "very-secret-token",
		}}, nil
	}

	rec := f.do(t, http.MethodGet, "/api/organizations/7/invitations", "", signToken(t, testSecret, 42, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "invitee@example.com")
	assert.NotContains(t, rec.Body.String(), "very-secret-token")
}

func TestMalformedPathIDIsNotFound(t *testing.T) {
	f := newServerFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/organizations/not-a-number/invitations", "", signToken(t, testSecret, 42, ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveMember(t *testing.T) {
	f := newServerFixture(t, nil)
	f.orgs.removeMemberFn = func(orgID, memberID, userID snowflake.ID) error {
		if memberID == userID {
			return organizationdomain.ErrOwnerSelfRemoval
		}
		return nil
	}
	token := signToken(t, testSecret, 42, "")

	rec := f.do(t, http.MethodDelete, "/api/organizations/7/members/5", "", token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/organizations/7/members/42", "", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "owner_self_removal", decodeError(t, rec).Code)
}

func TestGetOrganizationChecksExistenceThenPermission(t *testing.T) {
	f := newServerFixture(t, fakeGuard{})
	f.orgs.getByIDFn = func(orgID snowflake.ID) (*organizationdomain.Organization, error) {
		if orgID == 7 {
			return &organizationdomain.Organization{ID: 7}, nil
		}
		return nil, organizationdomain.ErrOrganizationNotFound
	}
	token := signToken(t, testSecret, 42, "")

	rec := f.do(t, http.MethodGet, "/api/organizations/8", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/organizations/7", "", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	allowed := newServerFixture(t, fakeGuard{allowed: map[role.Permission]bool{role.MemberView: true}})
	allowed.orgs.getByIDFn = f.orgs.getByIDFn
	rec = allowed.do(t, http.MethodGet, "/api/organizations/7", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAuditLogs(t *testing.T) {
	token := signToken(t, testSecret, 42, "")

	denied := newServerFixture(t, fakeGuard{})
	rec := denied.do(t, http.MethodGet, "/api/organizations/7/audit-logs", "", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, denied.audit.listed)

	f := newServerFixture(t, fakeGuard{allowed: map[role.Permission]bool{role.AdminViewAnalytics: true}})
	rec = f.do(t, http.MethodGet, "/api/organizations/7/audit-logs?page_size=10&action=member.invited&start_at=2026-01-01&end_at=2026-01-31", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.audit.listed, 1)
	req := f.audit.listed[0]
	assert.Equal(t, snowflake.ID(7), req.OrgID)
	assert.Equal(t, 10, req.PageSize)
	assert.Equal(t, "member.invited", req.Action)
	require.NotNil(t, req.StartAt)
	require.NotNil(t, req.EndAt)
	assert.Equal(t, 31, req.EndAt.Day())
	assert.Equal(t, 23, req.EndAt.Hour())

	rec = f.do(t, http.MethodGet, "/api/organizations/7/audit-logs?start_at=yesterday", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOtpStatusAndVerify(t *testing.T) {
	f := newServerFixture(t, nil)
	token := signToken(t, testSecret, 42, "")

	var gotType *otpdomain.Type
	f.otps.statusFn = func(userID snowflake.ID, otpType *otpdomain.Type) (*otpdomain.StatusResult, error) {
		gotType = otpType
		return &otpdomain.StatusResult{HasActiveOtp: false, CanResend: true}, nil
	}

	rec := f.do(t, http.MethodGet, "/api/otp/status?type=email_verification", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotType)
	assert.Equal(t, otpdomain.Type("email_verification"), *gotType)

	rec = f.do(t, http.MethodGet, "/api/otp/status?type=bogus", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.otps.verifyFn = func(req otpdomain.VerifyRequest) (*otpdomain.VerifyResult, error) {
		return &otpdomain.VerifyResult{Verified: false, Message: otpdomain.MessageInvalidCode}, nil
	}
	rec = f.do(t, http.MethodPost, "/api/otp/verify", `{"code":"000000"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), otpdomain.MessageInvalidCode)
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = bearerToken("Basic abc")
	assert.False(t, ok)

	_, ok = bearerToken("Bearer   ")
	assert.False(t, ok)
}
