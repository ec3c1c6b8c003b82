package middleware

import (
	"github.com/OFFIS-RIT/leech/pkg/pipeline"
	"github.com/OFFIS-RIT/leech/pkg/schema"
	"github.com/OFFIS-RIT/leech/pkg/sensitive"
	"github.com/OFFIS-RIT/leech/pkg/source"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      int64
	Role        string
	Permissions []string
}

type App struct {
	Schema    *schema.Schema
	Announcer *pipeline.Announcer
	Source    source.Driver
	Vault     sensitive.Vault
	Keyfunc   jwt.Keyfunc

	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
