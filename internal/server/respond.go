package server

import (
	"errors"
	"net/http"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/authflow"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/messaging"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/session"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps a component error to the HTTP status returned to the page.
// Backend 5xx answers surface as 502 since this process is a gateway to it.
func statusFor(err error) int {
	var fe *fiber.Error
	var appErr *models.AppError
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, session.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, messaging.ErrIllegalTransition), errors.Is(err, authflow.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, messaging.ErrNoConversation):
		return http.StatusNotFound
	case errors.Is(err, authflow.ErrInvalidCode), errors.Is(err, authflow.ErrMalformedToken):
		return http.StatusBadRequest
	case errors.As(err, &appErr):
		switch {
		case appErr.Status >= 500:
			return http.StatusBadGateway
		case appErr.Status > 0:
			return appErr.Status
		}
	}
	return http.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	var response models.ErrorResponse
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		response = models.ErrorResponse{Error: appErr.Message, Code: appErr.Code}
		if response.Error == "" {
			response.Error = http.StatusText(status)
		}
		if appErr.Err != nil {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = models.ErrorResponse{Error: err.Error()}
	}
	return c.Status(status).JSON(response)
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	if statusFor(err) >= http.StatusInternalServerError {
		s.log.ErrorContext(c.UserContext(), "request error", "path", c.Path(), "error", err)
	}
	return respondError(c, err)
}

func badRequest(msg string) error {
	return models.NewValidationError(msg)
}
