package server

import (
	"biblio/internal/notifications"

	"github.com/gofiber/fiber/v2"
)

// GetSentEmails handles GET /api/testing/sent-emails. Registered only in the
// test profile, where the recording mailer replaces SMTP.
func (s *Server) GetSentEmails(c *fiber.Ctx) error {
	sent := []notifications.SentEmail{}
	if s.recorder != nil {
		sent = s.recorder.Sent()
	}
	return c.JSON(fiber.Map{"emails": sent, "count": len(sent)})
}

// ResetSentEmails handles DELETE /api/testing/sent-emails.
func (s *Server) ResetSentEmails(c *fiber.Ctx) error {
	if s.recorder != nil {
		s.recorder.Reset()
	}
	return c.SendStatus(fiber.StatusNoContent)
}
