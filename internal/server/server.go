package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/membership/internal/audit"
	auditdomain "github.com/smallbiznis/membership/internal/audit/domain"
	"github.com/smallbiznis/membership/internal/authorization"
	"github.com/smallbiznis/membership/internal/billing"
	"github.com/smallbiznis/membership/internal/config"
	"github.com/smallbiznis/membership/internal/delivery"
	"github.com/smallbiznis/membership/internal/observability"
	obsmiddleware "github.com/smallbiznis/membership/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/membership/internal/observability/metrics"
	obstracing "github.com/smallbiznis/membership/internal/observability/tracing"
	"github.com/smallbiznis/membership/internal/organization"
	organizationdomain "github.com/smallbiznis/membership/internal/organization/domain"
	"github.com/smallbiznis/membership/internal/otp"
	otpdomain "github.com/smallbiznis/membership/internal/otp/domain"
	"github.com/smallbiznis/membership/internal/providers"
	"github.com/smallbiznis/membership/internal/ratelimit"
	"github.com/smallbiznis/membership/internal/user"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	authorization.Module,
	audit.Module,
	billing.Module,
	delivery.Module,
	providers.Module,
	organization.Module,
	otp.Module,
	ratelimit.Module,
	user.Module,
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", httpMetrics.Handler())

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	organizationSvc organizationdomain.Service
	otpSvc          otpdomain.Service
	auditSvc        auditdomain.Service
	guard           authorization.Guard
	limiter         *ratelimit.Limiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	OrganizationSvc organizationdomain.Service
	OtpSvc          otpdomain.Service
	AuditSvc        auditdomain.Service
	Guard           authorization.Guard
	Limiter         *ratelimit.Limiter  `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		organizationSvc: p.OrganizationSvc,
		otpSvc:          p.OtpSvc,
		auditSvc:        p.AuditSvc,
		guard:           p.Guard,
		limiter:         p.Limiter,
		obsMetrics:      p.ObsMetrics,
	}
	if p.Cfg.AuthJWTSecret == "" {
		svc.log.Warn("AUTH_JWT_SECRET is empty, every authenticated route will answer 401")
	}

	svc.registerAPIRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Organizations --------
	api.POST("/organizations", s.CreateOrganization)
	api.GET("/organizations/me", s.GetMyOrganization)
	api.POST("/organizations/me/ensure", s.EnsureMyOrganization)
	api.GET("/organizations/:id", s.GetOrganization)
	api.PATCH("/organizations/:id", s.UpdateOrganization)
	api.GET("/organizations/:id/settings", s.GetOrganizationSettings)
	api.PATCH("/organizations/:id/settings", s.UpdateOrganizationSettings)
	api.GET("/organizations/:id/audit-logs", s.ListAuditLogs)

	// -------- Members --------
	api.GET("/organizations/:id/members", s.ListMembers)
	api.PATCH("/organizations/:id/members/:memberId/role", s.UpdateMemberRole)
	api.PATCH("/organizations/:id/members/:memberId/status", s.UpdateMemberStatus)
	api.DELETE("/organizations/:id/members/:memberId", s.RemoveMember)

	// -------- Invitations --------
	api.GET("/organizations/:id/invitations", s.ListInvitations)
	api.POST("/organizations/:id/invitations", s.InviteMember)
	api.POST("/organizations/:id/invitations/:invitationId/resend", s.ResendInvitation)
	api.POST("/organizations/:id/invitations/:invitationId/cancel", s.CancelInvitation)
	api.POST("/invitations/accept", s.OTPRateLimit(), s.AcceptInvitation)
	api.POST("/invitations/decline", s.DeclineInvitation)

	// -------- OTP --------
	api.POST("/otp/generate", s.OTPRateLimit(), s.GenerateOtp)
	api.POST("/otp/verify", s.VerifyOtp)
	api.POST("/otp/resend", s.OTPRateLimit(), s.ResendOtp)
	api.GET("/otp/status", s.GetOtpStatus)
}
