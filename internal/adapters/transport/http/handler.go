package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/adapters/transport/http/middleware"
	appsvc "github.com/Miraines/MoonyAndStarry/blog-auth/internal/app/auth/service"
	authErrors "github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/model"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	svc         appsvc.Service
	v           *validator.Validate
	log         *zap.Logger
	frontendURL string
	checks      map[string]HealthCheck
	fail        func(c *gin.Context, err error)
}

func NewHandler(
	svc appsvc.Service,
	v *validator.Validate,
	log *zap.Logger,
	frontendURL string,
	checks map[string]HealthCheck,
) *Handler {
	return &Handler{
		svc:         svc,
		v:           v,
		log:         log,
		frontendURL: frontendURL,
		checks:      checks,
		fail:        errorWriter(log),
	}
}

// bind decodes the JSON body into dst and validates it.
func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, authErrors.NewInvalidArgument("malformed request body"))
		return false
	}
	if err := h.v.Struct(dst); err != nil {
		h.fail(c, authErrors.NewInvalidArgument(err.Error()))
		return false
	}
	return true
}

func (h *Handler) Signup(c *gin.Context) {
	var body dto.SignupDTO
	if !h.bind(c, &body) {
		return
	}
	h.log.Info("/signup", zap.String("user", middleware.EmailDigest(body.Email)))

	_, pair, err := h.svc.Signup(c.Request.Context(), body.Draft())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewTokenPairResponse(pair))
}

func (h *Handler) Login(c *gin.Context) {
	var body dto.LoginDTO
	if !h.bind(c, &body) {
		return
	}
	h.log.Info("/login", zap.String("user", middleware.EmailDigest(body.Email)))

	pair, err := h.svc.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTokenPairResponse(pair))
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var body dto.RefreshDTO
	if !h.bind(c, &body) {
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), body.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTokenPairResponse(pair))
}

func (h *Handler) VerifyToken(c *gin.Context) {
	var body dto.VerifyDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, authErrors.NewInvalidArgument("malformed request body"))
		return
	}
	d := h.svc.VerifyTokens(body.AccessToken, body.RefreshToken)
	c.JSON(http.StatusOK, dto.VerifyResponse{IsValid: d.AccessValid && d.RefreshValid})
}

func (h *Handler) Me(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	c.JSON(http.StatusOK, dto.NewPublicUser(user))
}

func (h *Handler) UpdateMe(c *gin.Context) {
	var body dto.UpdateProfileDTO
	if !h.bind(c, &body) {
		return
	}
	me, _ := middleware.CurrentUser(c)
	user, err := h.svc.UpdateProfile(c.Request.Context(), me.ID, body.Patch())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPublicUser(user))
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := h.userIDParam(c)
	if !ok {
		return
	}
	user, err := h.svc.GetUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPublicUser(user))
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := h.userIDParam(c)
	if !ok {
		return
	}
	var body dto.UpdateUserDTO
	if !h.bind(c, &body) {
		return
	}
	user, err := h.svc.UpdateUser(c.Request.Context(), id, body.Patch())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPublicUser(user))
}

func (h *Handler) Logout(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	if err := h.svc.Logout(c.Request.Context(), user.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var body dto.ChangePasswordDTO
	if !h.bind(c, &body) {
		return
	}
	user, _ := middleware.CurrentUser(c)
	if err := h.svc.ChangePassword(c.Request.Context(), user.ID, body.CurrentPassword, body.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteMe(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	if err := h.svc.DeleteAccount(c.Request.Context(), user.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SetRole(c *gin.Context) {
	id, ok := h.userIDParam(c)
	if !ok {
		return
	}
	var body dto.SetRoleDTO
	if !h.bind(c, &body) {
		return
	}
	user, err := h.svc.SetRole(c.Request.Context(), id, model.Role(body.Role))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPublicUser(user))
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := h.userIDParam(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteAccount(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) FederatedLogin(c *gin.Context) {
	target, err := h.svc.FederatedLoginURL(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

// FederatedRedirect completes the provider round trip and hands the tokens to
// the front end as query parameters. Failures are reported the same way.
func (h *Handler) FederatedRedirect(c *gin.Context) {
	if providerErr := c.Query("error"); providerErr != "" {
		h.log.Info("provider denied consent", zap.String("error", providerErr))
		h.redirectFrontend(c, url.Values{"error": {"access_denied"}})
		return
	}

	_, pair, err := h.svc.FederatedCallback(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		e := classify(err)
		if e.status == http.StatusInternalServerError {
			_ = c.Error(err)
		}
		h.redirectFrontend(c, url.Values{"error": {e.code}})
		return
	}
	h.redirectFrontend(c, url.Values{
		"accessToken":  {pair.AccessToken},
		"refreshToken": {pair.RefreshToken},
	})
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failing": name})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
}

func (h *Handler) userIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		h.fail(c, authErrors.NewInvalidArgument("userId must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) redirectFrontend(c *gin.Context, params url.Values) {
	target, err := url.Parse(h.frontendURL)
	if err != nil {
		h.fail(c, errors.Join(authErrors.ErrInternal, err))
		return
	}
	q := target.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}
