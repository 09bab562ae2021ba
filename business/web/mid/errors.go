package mid

import (
	"context"
	"net/http"

	"github.com/ardanlabs/ethdelta/business/web/errs"
	"github.com/ardanlabs/ethdelta/foundation/validate"
	"github.com/ardanlabs/ethdelta/foundation/web"
	"go.uber.org/zap"
)

// Errors handles errors coming out of the call chain. It detects normal
// application errors which are used to respond to the client in a uniform way.
// Unexpected errors (status >= 500) are logged.
func Errors(log *zap.SugaredLogger) web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Run the next handler and catch any propagated error.
			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			// Log the error.
			log.Errorw("ERROR", "traceid", web.GetTraceID(ctx), "ERROR", err)

			// Build out the error response.
			var er errs.Response
			var status int
			switch {
			case validate.IsFieldErrors(err):
				fieldErrors := validate.GetFieldErrors(err)
				er = errs.Response{
					Error:   "data validation error",
					TraceID: web.GetTraceID(ctx),
					Fields:  fieldErrors.Fields(),
				}
				status = http.StatusBadRequest

			case errs.IsTrusted(err):
				reqErr := errs.GetTrusted(err)
				er = errs.Response{
					Error:   reqErr.Error(),
					TraceID: web.GetTraceID(ctx),
				}
				status = reqErr.Status

			default:
				er = errs.Response{
					Error:   http.StatusText(http.StatusInternalServerError),
					TraceID: web.GetTraceID(ctx),
				}
				status = http.StatusInternalServerError
			}

			// Respond with the error back to the client.
			if err := web.Respond(ctx, w, er, status); err != nil {
				return err
			}

			// If we receive the shutdown err we need to return it
			// back to the base handler to shut down the service.
			if web.IsShutdown(err) {
				return err
			}

			return nil
		}

		return h
	}

	return m
}
