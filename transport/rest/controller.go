// Package rest exposes the identity service over JSON HTTP using go-router.
package rest

import (
	"context"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// Routes holds the paths served by the controller
type Routes struct {
	Register           string
	Login              string
	Verify             string
	ResendVerification string
	ForgotPassword     string
	ResetPassword      string
	ChangePassword     string
	Me                 string
	Deactivate         string
	Reactivate         string
}

// DefaultRoutes are relative to the group the controller is mounted on
func DefaultRoutes() Routes {
	return Routes{
		Register:           "/auth/register",
		Login:              "/auth/login",
		Verify:             "/auth/verify",
		ResendVerification: "/auth/verify/resend",
		ForgotPassword:     "/auth/password/forgot",
		ResetPassword:      "/auth/password/reset",
		ChangePassword:     "/auth/password/change",
		Me:                 "/auth/me",
		Deactivate:         "/admin/accounts/:id/deactivate",
		Reactivate:         "/admin/accounts/:id/reactivate",
	}
}

// Controller maps HTTP requests to identity operations
type Controller struct {
	Service *identity.Service
	Logger  identity.Logger
	Routes  Routes
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller) *Controller

// WithLogger sets the controller logger
func WithLogger(logger identity.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithRoutes overrides the route table
func WithRoutes(routes Routes) ControllerOption {
	return func(c *Controller) *Controller {
		c.Routes = routes
		return c
	}
}

// NewController creates a controller for svc
func NewController(svc *identity.Service, opts ...ControllerOption) *Controller {
	c := &Controller{
		Service: svc,
		Logger:  identity.NopLogger(),
		Routes:  DefaultRoutes(),
	}
	for _, opt := range opts {
		c = opt(c)
	}
	if c.Service == nil {
		panic("rest: controller requires an identity service")
	}
	return c
}

// RegisterRoutes mounts the controller on app
func RegisterRoutes[T any](app router.Router[T], c *Controller) {
	authn := BearerAuth(c.Service.Tokens(), c.Logger)
	admin := RequireRole(identity.RoleAdmin, c.Logger)

	app.Post(c.Routes.Register, c.Register).SetName("identity.register")
	app.Post(c.Routes.Login, c.Login).SetName("identity.login")
	app.Post(c.Routes.Verify, c.Verify).SetName("identity.verify")
	app.Post(c.Routes.ResendVerification, c.ResendVerification).SetName("identity.verify.resend")
	app.Post(c.Routes.ForgotPassword, c.ForgotPassword).SetName("identity.password.forgot")
	app.Post(c.Routes.ResetPassword, c.ResetPassword).SetName("identity.password.reset")

	app.Post(c.Routes.ChangePassword, authn(c.ChangePassword)).SetName("identity.password.change")
	app.Get(c.Routes.Me, authn(c.Me)).SetName("identity.me")

	app.Post(c.Routes.Deactivate, authn(admin(c.Deactivate))).SetName("identity.admin.deactivate")
	app.Post(c.Routes.Reactivate, authn(admin(c.Reactivate))).SetName("identity.admin.reactivate")
}

type acceptedResponse struct {
	Status string `json:"status"`
}

var accepted = acceptedResponse{Status: "accepted"}

func (c *Controller) Register(ctx router.Context) error {
	msg := identity.RegisterMessage{}
	if err := ctx.Bind(&msg); err != nil {
		return writeError(ctx, c.Logger, identity.ValidationError(err, "malformed request body"))
	}

	res, err := c.Service.Register(ctx.Context(), msg)
	if err != nil {
		return writeError(ctx, c.Logger, err)
	}
	return ctx.JSON(router.StatusCreated, res)
}

func (c *Controller) Login(ctx router.Context) error {
	msg := identity.LoginMessage{}
	if err := ctx.Bind(&msg); err != nil {
		return writeError(ctx, c.Logger, identity.ValidationError(err, "malformed request body"))
	}

	res, err := c.Service.Login(ctx.Context(), msg)
	if err != nil {
		return writeError(ctx, c.Logger, err)
	}
	return ctx.JSON(router.StatusOK, res)
}

func (c *Controller) Verify(ctx router.Context) error {
	msg := identity.VerifyAccountMessage{}
	if err := ctx.Bind(&msg); err != nil {
		return writeError(ctx, c.Logger, identity.ValidationError(err, "malformed request body"))
	}

	res, err := c.Service.VerifyAccount(ctx.Context(), msg)
	if err != nil {
		return writeError(ctx, c.Logger, err)
	}
	return ctx.JSON(router.StatusOK, res)
}

func (c *Controller) ResendVerification(ctx router.Context) error {
	msg := identity.ResendVerificationMessage{}
	if err := ctx.Bind(&msg); err != nil {
		return writeError(ctx, c.Logger, identity.ValidationError(err, "malformed request body"))
	}

	if err := c.Service.ResendVerification(ctx.Context(), msg); err != nil {
		return writeError(ctx, c.Logger, err)
	}
	return ctx.JSON(router.StatusAccepted, accepted)
}

func (c *Controller) ForgotPassword(ctx router.Context) error {
	msg := identity.ForgotPasswordMessage{}
	if err := ctx.Bind(&msg); err != nil {
		return writeError(ctx, c.Logger, identity.ValidationError(err, "malformed request body"))
	}

	if err := c.Service.ForgotPassword(ctx.Context(), msg); err != nil {
		return writeError(ctx, c.Logger, err)
	}
	return ctx.JSON(router.StatusAccepted, accepted)
}

func (c *Controller) ResetPassword(ctx router.Context) error {
	msg := identity.ResetPasswordMessage{}
	if err := ctx.Bind(&msg); err != nil {
		return writeError(ctx, c.Logger, identity.ValidationError(err, "malformed request body"))
	}

	if err := c.Service.ResetPassword(ctx.Context(), msg); err != nil {
		return writeError(ctx, c.Logger, err)
	}
	return ctx.JSON(router.StatusOK, acceptedResponse{Status: "password_reset"})
}

// ChangePassword trusts only the session for the account id
func (c *Controller) ChangePassword(ctx router.Context) error {
	msg := identity.ChangePasswordMessage{}
	if err := ctx.Bind(&msg); err != nil {
		return writeError(ctx, c.Logger, identity.ValidationError(err, "malformed request body"))
	}

	if err := c.Service.ChangePassword(ctx.Context(), msg); err != nil {
		return writeError(ctx, c.Logger, err)
	}
	return ctx.JSON(router.StatusOK, acceptedResponse{Status: "password_changed"})
}

type meResponse struct {
	AccountID string        `json:"account_id"`
	Role      identity.Role `json:"role"`
	ExpiresAt string        `json:"expires_at"`
}

func (c *Controller) Me(ctx router.Context) error {
	claims, ok := ClaimsFromLocals(ctx)
	if !ok {
		return writeError(ctx, c.Logger, identity.ErrUnauthenticated)
	}
	return ctx.JSON(router.StatusOK, meResponse{
		AccountID: claims.UserID(),
		Role:      claims.Role(),
		ExpiresAt: claims.Expires().UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (c *Controller) Deactivate(ctx router.Context) error {
	return c.changeStatus(ctx, c.Service.DeactivateAccount)
}

func (c *Controller) Reactivate(ctx router.Context) error {
	return c.changeStatus(ctx, c.Service.ReactivateAccount)
}

type statusFn func(ctx context.Context, actor identity.ActorRef, msg identity.AccountStatusMessage) (*identity.AccountResult, error)

func (c *Controller) changeStatus(ctx router.Context, fn statusFn) error {
	id, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return writeError(ctx, c.Logger, identity.ValidationError(err, "invalid account id"))
	}

	msg := identity.AccountStatusMessage{
		AccountID: id,
		Reason:    ctx.Query("reason", ""),
	}

	claims, _ := ClaimsFromLocals(ctx)
	actor := identity.ActorRef{ID: claims.UserID(), Type: identity.ActorTypeAdmin}

	res, err := fn(ctx.Context(), actor, msg)
	if err != nil {
		return writeError(ctx, c.Logger, err)
	}
	return ctx.JSON(router.StatusOK, res)
}
