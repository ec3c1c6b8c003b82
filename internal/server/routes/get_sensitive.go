package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/leech/internal/server/middleware"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/sensitive"

	"github.com/labstack/echo/v4"
)

// GetSensitiveHandler resolves a token back to the value it stands in for.
func GetSensitiveHandler(c echo.Context) error {
	type sensitiveResponse struct {
		Message string `json:"message,omitempty"`
		Token   string `json:"token,omitempty"`
		Value   string `json:"value,omitempty"`
	}

	token := c.Param("token")
	app := c.(*middleware.AppContext).App
	value, err := app.Vault.Get(c.Request().Context(), token)
	if errors.Is(err, sensitive.ErrTokenNotFound) {
		return c.JSON(http.StatusNotFound, sensitiveResponse{
			Message: "Token not found",
		})
	}
	if err != nil {
		logger.Error("[Server] Failed to read sensitive value", "err", err)
		return c.JSON(http.StatusInternalServerError, sensitiveResponse{
			Message: "Internal server error",
		})
	}

	user := c.(*middleware.AppContext).User
	logger.Info("[Server] Sensitive value read", "user_id", user.UserID, "token", token)
	return c.JSON(http.StatusOK, sensitiveResponse{
		Token: token,
		Value: value,
	})
}
