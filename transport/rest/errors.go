package rest

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-router"
)

// ErrorBody is the JSON envelope for failed requests
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable kind and a human readable message
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusFor returns the HTTP status for a public error
func StatusFor(err *goerrors.Error) int {
	if err == nil {
		return router.StatusOK
	}
	if err.Code >= 400 && err.Code < 600 {
		return err.Code
	}
	switch err.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return router.StatusBadRequest
	case goerrors.CategoryAuth:
		return router.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return router.StatusForbidden
	case goerrors.CategoryNotFound:
		return router.StatusNotFound
	case goerrors.CategoryConflict:
		return router.StatusConflict
	default:
		return router.StatusInternalServerError
	}
}

func writeError(ctx router.Context, logger identity.Logger, err error) error {
	public := identity.PublicError(err)
	if public == identity.ErrInternal {
		logger.Error("request failed", "path", ctx.Path(), "kind", identity.KindOf(err), "error", err)
	} else {
		logger.Debug("request rejected", "path", ctx.Path(), "kind", public.TextCode)
	}

	return ctx.JSON(StatusFor(public), ErrorBody{
		Error: ErrorDetail{
			Code:    public.TextCode,
			Message: public.Message,
		},
	})
}
