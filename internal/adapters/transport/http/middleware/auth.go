package middleware

import (
	"context"

	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/app/auth/service"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/gin-gonic/gin"
)

const currentUserKey = "auth.user"

type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (model.User, error)
}

// ErrorWriter renders err and aborts the request.
type ErrorWriter func(c *gin.Context, err error)

func RequireAuth(a Authenticator, onError ErrorWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := a.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			onError(c, err)
			return
		}
		c.Set(currentUserKey, user)
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role model.Role, onError ErrorWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := CurrentUser(c)
		if err := service.RequireRole(user, role); err != nil {
			onError(c, err)
			return
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (model.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return model.User{}, false
	}
	u, ok := v.(model.User)
	return u, ok
}
