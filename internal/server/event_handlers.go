package server

import (
	"encoding/json"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/events"

	"github.com/gofiber/fiber/v2"
)

// publishEvent lets the page raise a named event, for instance a vendor
// profile's "message" button publishing openMessagingWidget. The body, if
// any, is the event detail.
func (s *Server) publishEvent(c *fiber.Ctx) error {
	if s.bus == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "event bus unavailable")
	}
	name := c.Params("name")
	if name == "" || name == events.Wildcard {
		return badRequest("event name is required")
	}

	e, err := events.New(name, nil)
	if err != nil {
		return err
	}
	if body := c.Body(); len(body) > 0 {
		if !json.Valid(body) {
			return badRequest("event detail must be JSON")
		}
		e.Detail = append(json.RawMessage(nil), body...)
	}
	if err := s.bus.Publish(c.UserContext(), e); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"id": e.ID})
}

// getFlags returns the feature flags evaluated for the current viewer.
func (s *Server) getFlags(c *fiber.Ctx) error {
	return c.JSON(s.flags.Snapshot(s.viewer()))
}
