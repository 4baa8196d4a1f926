package rest

import (
	"strings"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-router"
)

// ClaimsKey is the locals key holding *identity.SessionClaims
const ClaimsKey = "identity_claims"

const bearerScheme = "Bearer"

// BearerAuth validates the Authorization header and exposes the claims both
// in locals and on the request context.
func BearerAuth(tokens *identity.TokenService, logger identity.Logger) router.MiddlewareFunc {
	if logger == nil {
		logger = identity.NopLogger()
	}
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			raw, ok := bearerToken(ctx.GetString(router.HeaderAuthorization, ""))
			if !ok {
				return writeError(ctx, logger, identity.ErrUnauthenticated)
			}

			claims, err := tokens.Validate(raw)
			if err != nil {
				return writeError(ctx, logger, err)
			}

			ctx.Locals(ClaimsKey, claims)
			ctx.SetContext(identity.WithClaimsContext(ctx.Context(), claims))
			return next(ctx)
		}
	}
}

// RequireRole rejects sessions without role. Must run after BearerAuth.
func RequireRole(role identity.Role, logger identity.Logger) router.MiddlewareFunc {
	if logger == nil {
		logger = identity.NopLogger()
	}
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			claims, ok := ClaimsFromLocals(ctx)
			if !ok {
				return writeError(ctx, logger, identity.ErrUnauthenticated)
			}
			if !claims.HasRole(role) {
				return ctx.JSON(router.StatusForbidden, ErrorBody{
					Error: ErrorDetail{Code: "FORBIDDEN", Message: "insufficient permissions"},
				})
			}
			return next(ctx)
		}
	}
}

// ClaimsFromLocals returns the claims stored by BearerAuth
func ClaimsFromLocals(ctx router.Context) (*identity.SessionClaims, bool) {
	claims, ok := ctx.Locals(ClaimsKey).(*identity.SessionClaims)
	return claims, ok && claims != nil
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerScheme)+1 {
		return "", false
	}
	if !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) || header[len(bearerScheme)] != ' ' {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerScheme)+1:])
	return token, token != ""
}
