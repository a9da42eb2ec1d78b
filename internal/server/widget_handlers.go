package server

import (
	"strings"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/messaging"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"

	"github.com/gofiber/fiber/v2"
)

// getInbox returns the widget snapshot. ?role= partitions the conversation
// list for another role without changing the poller; ?q= filters it.
func (s *Server) getInbox(c *fiber.Ctx) error {
	snap := s.poller.Snapshot()
	if raw := c.Query("role"); raw != "" {
		role, ok := messaging.ParseRole(raw)
		if !ok {
			return badRequest("role must be client or vendor")
		}
		snap = s.poller.SnapshotAs(role)
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		snap = snap.Filter(q)
	}
	return c.JSON(snap)
}

func (s *Server) toggleWidget(c *fiber.Ctx) error {
	s.poller.Toggle(c.UserContext())
	return c.JSON(s.poller.Snapshot())
}

func (s *Server) closeWidget(c *fiber.Ctx) error {
	s.poller.Close(c.UserContext())
	return c.JSON(s.poller.Snapshot())
}

func (s *Server) backWidget(c *fiber.Ctx) error {
	if err := s.poller.Back(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(s.poller.Snapshot())
}

func (s *Server) selectTab(c *fiber.Ctx) error {
	tab, ok := messaging.ParseTab(c.Params("tab"))
	if !ok {
		return badRequest("unknown tab")
	}
	if err := s.poller.SelectTab(c.UserContext(), tab); err != nil {
		return err
	}
	return c.JSON(s.poller.Snapshot())
}

func (s *Server) openConversation(c *fiber.Ctx) error {
	if err := s.poller.OpenConversation(c.UserContext(), models.ID(c.Params("id"))); err != nil {
		return err
	}
	return c.JSON(s.poller.Snapshot())
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	if err := s.poller.Send(c.UserContext(), req.Content); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(s.poller.Snapshot())
}

func (s *Server) setRole(c *fiber.Ctx) error {
	role, ok := messaging.ParseRole(c.Params("role"))
	if !ok {
		return badRequest("role must be client or vendor")
	}
	if err := s.poller.SetRole(role); err != nil {
		return err
	}
	return c.JSON(s.poller.Snapshot())
}

func (s *Server) listFAQs(c *fiber.Ctx) error {
	faqs, err := s.help.FAQs(c.UserContext(), messaging.FAQQuery{
		Category: c.Query("category"),
		Search:   c.Query("q"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"faqs":       faqs,
		"categories": messaging.Categories(faqs),
	})
}

type feedbackRequest struct {
	Helpful bool `json:"helpful"`
}

func (s *Server) faqFeedback(c *fiber.Ctx) error {
	var req feedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	if err := s.help.Feedback(c.UserContext(), models.ID(c.Params("id")), req.Helpful); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) submitTicket(c *fiber.Ctx) error {
	var ticket models.SupportTicket
	if err := c.BodyParser(&ticket); err != nil {
		return badRequest("invalid request body")
	}
	id, err := s.help.SubmitTicket(c.UserContext(), ticket)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"conversationId": id,
		"widget":         s.poller.Snapshot(),
	})
}
