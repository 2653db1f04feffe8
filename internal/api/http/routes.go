package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/godhahn/data-project/internal/history"
	"github.com/godhahn/data-project/internal/runner"
)

var validate = validator.New()

// Trigger starts a run in the background.
type Trigger interface {
	Start(ctx context.Context) error
	Running() bool
}

// Deps are the collaborators of the HTTP surface. Metrics may be nil.
type Deps struct {
	// Context bounds runs started over HTTP; it outlives the request.
	Context context.Context
	History history.Repository
	Trigger Trigger
	Metrics http.Handler
}

// ErrorHandler renders every error as a JSON body with the matching status code.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Context == nil {
		deps.Context = context.Background()
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "noaa-extract",
			"running": deps.Trigger != nil && deps.Trigger.Running(),
		})
	})

	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/runs/latest", func(c *fiber.Ctx) error {
		sum, err := deps.History.Latest(c.UserContext())
		if err != nil {
			if errors.Is(err, history.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no runs recorded yet")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read run history")
		}
		return c.JSON(sum)
	})

	v1.Get("/runs", func(c *fiber.Ctx) error {
		var q listQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		runs, err := deps.History.List(c.UserContext(), q.Limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read run history")
		}
		return c.JSON(fiber.Map{
			"limit": q.Limit,
			"runs":  runs,
		})
	})

	v1.Post("/runs", func(c *fiber.Ctx) error {
		if deps.Trigger == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "runs cannot be triggered")
		}
		if err := deps.Trigger.Start(deps.Context); err != nil {
			if errors.Is(err, runner.ErrRunInProgress) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to start run")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	})
}

// listQuery holds query parameters for the run list endpoint.
type listQuery struct {
	Limit int `validate:"gte=1,lte=100"`
}

func (q *listQuery) bind(c *fiber.Ctx) error {
	q.Limit = 10
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("limit must be an integer")
		}
		q.Limit = n
	}
	return nil
}
