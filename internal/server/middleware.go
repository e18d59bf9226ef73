package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	obscontext "github.com/smallbiznis/membership/internal/observability/context"
)

const (
	contextUserIDKey    = "user_id"
	contextUserEmailKey = "user_email"
	contextUserPlanKey  = "user_plan"

	actorTypeUser = "user"
)

// Claims is the bearer token payload. Subject carries the user id. Plan is
// set by the issuer once the user has paid for a subscription.
type Claims struct {
	Email string `json:"email"`
	Plan  string `json:"plan,omitempty"`
	jwt.RegisteredClaims
}

func (s *Server) AuthRequired() gin.HandlerFunc {
	secret := []byte(s.cfg.AuthJWTSecret)
	return func(c *gin.Context) {
		if len(secret) == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := parseToken(raw, secret)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := snowflake.ParseString(strings.TrimSpace(claims.Subject))
		if err != nil || userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Set(contextUserEmailKey, strings.TrimSpace(claims.Email))
		c.Set(contextUserPlanKey, strings.TrimSpace(claims.Plan))
		ctx := obscontext.WithActor(c.Request.Context(), actorTypeUser, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func parseToken(raw string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func currentUserID(c *gin.Context) (snowflake.ID, error) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, ErrUnauthorized
	}
	id, ok := value.(snowflake.ID)
	if !ok || id == 0 {
		return 0, ErrUnauthorized
	}
	return id, nil
}

func currentUserEmail(c *gin.Context) string {
	return c.GetString(contextUserEmailKey)
}

func currentUserPlan(c *gin.Context) string {
	return c.GetString(contextUserPlanKey)
}

func pathSnowflake(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, ErrNotFound
	}
	return id, nil
}

// withOrgScope tags the request context with the organization in the path.
func withOrgScope(c *gin.Context, orgID snowflake.ID) {
	ctx := obscontext.WithOrgID(c.Request.Context(), orgID.String())
	c.Request = c.Request.WithContext(ctx)
}
