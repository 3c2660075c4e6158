package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"handover/internal/http/middleware"
	"handover/internal/model"
	"handover/internal/service"
	"handover/internal/workflow"
)

// errorPayload defines the standardized error response body. Draft carries the
// current authoritative state when the failed call targeted an existing draft.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
	Draft     *model.Draft  `json:"draft,omitempty"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_TRANSITION", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return writeDraftError(c, status, code, message, nil)
}

func writeDraftError(c *fiber.Ctx, status int, code, message string, d *model.Draft) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
		Draft: d,
	}
	return c.Status(status).JSON(res)
}

// classify maps a service error to its HTTP shape. ok is false for errors that
// are not part of the domain taxonomy; those are reported as internal errors.
func classify(err error) (status int, code, message string, ok bool) {
	var (
		conflict *service.ConflictError
		rejected *workflow.TransitionError
		genErr   *service.GenerationError
	)
	switch {
	case errors.Is(err, service.ErrIdentityRequired):
		return fiber.StatusUnauthorized, "UNAUTHENTICATED", err.Error(), true
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrUnknownDomain):
		return fiber.StatusBadRequest, "VALIDATION_ERROR", err.Error(), true
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound, "NOT_FOUND", "resource not found", true
	case errors.As(err, &conflict):
		return fiber.StatusConflict, "ACTIVE_DRAFT_EXISTS", conflict.Error(), true
	case errors.Is(err, service.ErrAssemblyInProgress):
		return fiber.StatusConflict, "ASSEMBLY_IN_PROGRESS", err.Error(), true
	case errors.Is(err, service.ErrConcurrentChange):
		return fiber.StatusConflict, "CONCURRENT_CHANGE", err.Error(), true
	case errors.Is(err, service.ErrProposalDecided):
		return fiber.StatusConflict, "ALREADY_DECIDED", err.Error(), true
	case errors.Is(err, service.ErrNothingToDraft):
		return fiber.StatusUnprocessableEntity, "NOTHING_TO_DRAFT", err.Error(), true
	case errors.Is(err, service.ErrCommandItemReadOnly), errors.Is(err, service.ErrItemSuperseded):
		return fiber.StatusUnprocessableEntity, "ITEM_NOT_EDITABLE", err.Error(), true
	case errors.As(err, &rejected):
		return fiber.StatusUnprocessableEntity, "INVALID_TRANSITION", rejected.Message(), true
	case errors.As(err, &genErr):
		return fiber.StatusInternalServerError, "GENERATION_FAILED", "generation failed", true
	}
	return fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", false
}

// fail writes err with the draft state the service returned alongside it.
func fail(c *fiber.Ctx, err error, d *model.Draft) error {
	status, code, message, _ := classify(err)
	return writeDraftError(c, status, code, message, d)
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusUnauthorized:
			return writeError(c, status, "UNAUTHENTICATED", "authentication required")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
