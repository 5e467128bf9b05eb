package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const problemContentType = "application/problem+json"

// correlationHeader carries the request correlation id end to end.
const correlationHeader = "X-Correlation-ID"

const correlationContextKey = "correlation_id"

// FieldProblem describes one invalid request field.
type FieldProblem struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ProblemDetail is the RFC 7807 error body returned by all endpoints.
type ProblemDetail struct {
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Detail        string         `json:"detail,omitempty"`
	Status        int            `json:"status"`
	Instance      string         `json:"instance,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Fields        []FieldProblem `json:"fields,omitempty"`
}

// correlationMiddleware assigns each request a correlation id, reusing the
// caller's X-Correlation-ID header when present, and echoes it back on the
// response.
func (c *Controller) correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id := ctx.Request().Header.Get(correlationHeader)
			if id == "" {
				id = uuid.New().String()
			}
			ctx.Set(correlationContextKey, id)
			ctx.Response().Header().Set(correlationHeader, id)
			return next(ctx)
		}
	}
}

func correlationID(ctx echo.Context) string {
	id, _ := ctx.Get(correlationContextKey).(string)
	return id
}

// HandleError writes an RFC 7807 problem response and logs the failure.
func (c *Controller) HandleError(ctx echo.Context, err error, title string, code int) error {
	problem := ProblemDetail{
		Type:          "about:blank",
		Title:         title,
		Status:        code,
		Instance:      ctx.Request().URL.Path,
		CorrelationID: correlationID(ctx),
	}
	if err != nil {
		problem.Detail = err.Error()
	}
	c.logAPIRequest(ctx, slog.LevelError, "request failed",
		"title", title,
		"status", code,
		"error", err)
	return writeProblem(ctx, problem)
}

// handleValidationError maps validator failures onto a 400 problem with
// one field descriptor per violation.
func (c *Controller) handleValidationError(ctx echo.Context, err error) error {
	problem := ProblemDetail{
		Type:          "about:blank",
		Title:         "Validation failed",
		Detail:        "one or more request fields are invalid",
		Status:        http.StatusBadRequest,
		Instance:      ctx.Request().URL.Path,
		CorrelationID: correlationID(ctx),
		Fields:        fieldProblems(err),
	}
	if c.metrics != nil && c.metrics.TimeEntry != nil {
		c.metrics.TimeEntry.RecordValidationError()
	}
	c.logAPIRequest(ctx, slog.LevelWarn, "validation failed",
		"fields", len(problem.Fields))
	return writeProblem(ctx, problem)
}

// writeProblem relies on echo leaving a pre-set Content-Type untouched
// when serializing JSON.
func writeProblem(ctx echo.Context, problem ProblemDetail) error {
	ctx.Response().Header().Set(echo.HeaderContentType, problemContentType)
	return ctx.JSON(problem.Status, problem)
}

func fieldProblems(err error) []FieldProblem {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldProblem{{Name: "request", Message: err.Error(), Code: "INVALID"}}
	}

	fields := make([]FieldProblem, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldProblem{
			Name:    fieldName(fe),
			Message: fieldMessage(fe),
			Code:    fieldCode(fe.Tag()),
		})
	}
	return fields
}

// fieldName strips the root struct name from the validator namespace; the
// remaining segments already carry JSON field names via the registered
// tag name function.
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

func fieldCode(tag string) string {
	switch tag {
	case "required":
		return "REQUIRED"
	case "min":
		return "MIN"
	case "max":
		return "MAX"
	default:
		return "INVALID"
	}
}
