package server

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"biblio/internal/eventbus"
	"biblio/internal/middleware"
	"biblio/internal/models"
	"biblio/internal/validation"
)

// resetTokenTTL bounds how long a password reset link stays redeemable.
const resetTokenTTL = time.Hour

func resetTokenKey(token string) string {
	return "pwreset:" + token
}

// ForgotPassword handles POST /api/users/forgot. The response never reveals
// whether the account exists; the mail only goes out when it does.
func (s *Server) ForgotPassword(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if !validation.ValidEmail(req.Username) {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewMissingFieldsError([]string{"username"}))
	}

	user, err := s.userRepo.GetByUsername(c.Context(), req.Username)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	if user != nil {
		token, err := generateResetToken()
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		}
		if err := s.redis.Set(c.Context(), resetTokenKey(token),
			strconv.FormatUint(uint64(user.ID), 10), resetTokenTTL).Err(); err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		}

		s.bus.Emit(c.UserContext(), eventbus.PasswordResetRequested, eventbus.PasswordResetRequestedPayload{
			UserID:    user.ID,
			Username:  user.Username,
			FirstName: user.FirstName,
			ResetLink: fmt.Sprintf("%s/reset-password/%s", s.config.BaseURL, token),
		})
	}

	return c.JSON(fiber.Map{"message": "If the account exists, a reset link has been sent"})
}

// ResetPassword handles POST /api/users/reset/:token. The token is single
// use: it is deleted before the success response goes out.
func (s *Server) ResetPassword(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if len(req.Password) < 8 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Password must be at least 8 characters"))
	}

	token := c.Params("token")
	val, err := s.redis.Get(c.Context(), resetTokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid or expired reset token"))
	}
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	userID, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(fmt.Errorf("malformed reset token entry %q", val)))
	}

	user, err := s.userRepo.GetByID(c.Context(), uint(userID))
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	user.Password = string(hash)
	if err := s.userRepo.Update(c.Context(), user); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	if err := s.redis.Del(c.Context(), resetTokenKey(token)).Err(); err != nil {
		middleware.Logger.ErrorContext(c.UserContext(), "reset token cleanup failed",
			"error", err.Error())
	}

	s.bus.Emit(c.UserContext(), eventbus.PasswordResetCompleted, eventbus.PasswordResetCompletedPayload{
		UserID:    user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
	})

	return c.JSON(fiber.Map{"message": "Password has been reset"})
}

// generateResetToken returns 32 random bytes in raw URL-safe base64.
func generateResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reset token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
