package http

import (
	"net/http"

	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/adapters/transport/http/dto"
	authErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type apiError struct {
	status  int
	code    string
	message string
}

func classify(err error) apiError {
	switch {
	case authErrors.IsCredentialMismatch(err):
		return apiError{http.StatusUnauthorized, "invalid_credentials", "invalid credentials"}
	case authErrors.IsRotationConflict(err):
		return apiError{http.StatusUnauthorized, "rotation_conflict", "refresh token was already used"}
	case authErrors.IsTokenFailure(err):
		return apiError{http.StatusUnauthorized, "invalid_token", "invalid token"}
	case authErrors.IsUnauthenticated(err):
		return apiError{http.StatusUnauthorized, "unauthenticated", "authentication required"}
	case authErrors.IsForbidden(err):
		return apiError{http.StatusForbidden, "forbidden", "forbidden"}
	case authErrors.IsConflict(err):
		return apiError{http.StatusBadRequest, "conflict", "email already registered"}
	case authErrors.IsInvalidArgument(err):
		return apiError{http.StatusBadRequest, "invalid_argument", err.Error()}
	case authErrors.IsNotFound(err):
		return apiError{http.StatusNotFound, "not_found", err.Error()}
	default:
		return apiError{http.StatusInternalServerError, "internal", "internal server error"}
	}
}

// errorWriter maps err onto a status and body and aborts the request.
// Internal failures are logged and never echoed to the client.
func errorWriter(log *zap.Logger) func(c *gin.Context, err error) {
	return func(c *gin.Context, err error) {
		e := classify(err)
		if e.status == http.StatusInternalServerError {
			_ = c.Error(err)
			log.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		}
		c.AbortWithStatusJSON(e.status, dto.ErrorResponse{Error: e.message, Code: e.code})
	}
}
