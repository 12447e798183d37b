package instrument

import (
	"errors"
	"math/rand/v2"

	"github.com/gofiber/fiber/v2"

	"form-engine/internal/config"
)

// TraceHeader carries the trace id in and out of the service.
const TraceHeader = "X-Trace-ID"

// Middleware opens a trace and a request span around each sampled request.
// Engine spans started from c.UserContext() nest under the request span.
func Middleware(cfg config.InstrumentationConfig, rec Recorder) fiber.Handler {
	var tracer *Tracer
	if rec != nil {
		tracer = NewTracer(rec)
	}
	return func(c *fiber.Ctx) error {
		if !cfg.Enabled || tracer == nil || (cfg.SamplingRate < 1 && rand.Float64() >= cfg.SamplingRate) {
			return c.Next()
		}

		ctx := WithTrace(c.UserContext(), tracer, c.Get(TraceHeader))
		c.Set(TraceHeader, TraceID(ctx))

		ctx, span := Start(ctx, KindRequest, Attrs{})
		span.Set("route", c.Method()+" "+c.Path())
		c.SetUserContext(ctx)
		defer span.End()

		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		span.Set("status_code", status)
		if status >= fiber.StatusBadRequest {
			span.Fail(err)
		}
		return err
	}
}
