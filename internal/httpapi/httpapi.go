// Package httpapi maps the account engine onto the /auth HTTP surface.
// Business errors translate to stable machine codes with 4xx statuses;
// infrastructure failures surface as 503 and are never masked as success.
package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pepe1603/sgpauth"
)

// AuthService is the slice of the engine the handlers consume. Tests
// substitute a stub.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*sgpauth.UserRecord, error)
	ConfirmVerification(ctx context.Context, code string) (*sgpauth.UserRecord, error)
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (string, *sgpauth.UserRecord, error)
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyResetCode(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type codeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resetRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type loginResponse struct {
	Token string   `json:"token"`
	Roles []string `json:"roles"`
}

// Register mounts the /auth routes on e.
func Register(e *echo.Echo, svc AuthService) {
	g := e.Group("/auth")
	g.POST("/register", registerHandler(svc))
	g.POST("/verify", verifyHandler(svc))
	g.POST("/resend-verification", resendHandler(svc))
	g.POST("/login", loginHandler(svc))
	g.POST("/request-reset", requestResetHandler(svc))
	g.POST("/verify-code", verifyCodeHandler(svc))
	g.POST("/reset-password", resetPasswordHandler(svc))
}

func registerHandler(svc AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &credentialsRequest{}
		if err := c.Bind(params); err != nil {
			return err
		}
		user, err := svc.Register(c.Request().Context(), params.Email, params.Password)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, echo.Map{"email": user.Email})
	}
}

func verifyHandler(svc AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		code := c.QueryParam("code")
		user, err := svc.ConfirmVerification(c.Request().Context(), code)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"email": user.Email, "verified": true})
	}
}

func resendHandler(svc AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		email := c.QueryParam("email")
		if err := svc.ResendVerification(c.Request().Context(), email); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusAccepted)
	}
}

func loginHandler(svc AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &credentialsRequest{}
		if err := c.Bind(params); err != nil {
			return err
		}
		token, user, err := svc.Login(c.Request().Context(), params.Email, params.Password)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, loginResponse{Token: token, Roles: user.Roles})
	}
}

func requestResetHandler(svc AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &emailRequest{}
		if err := c.Bind(params); err != nil {
			return err
		}
		if err := svc.RequestPasswordReset(c.Request().Context(), params.Email); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusAccepted)
	}
}

func verifyCodeHandler(svc AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &codeRequest{}
		if err := c.Bind(params); err != nil {
			return err
		}
		if err := svc.VerifyResetCode(c.Request().Context(), params.Email, params.Code); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"valid": true})
	}
}

func resetPasswordHandler(svc AuthService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &resetRequest{}
		if err := c.Bind(params); err != nil {
			return err
		}
		if err := svc.ResetPassword(c.Request().Context(), params.Email, params.Code, params.NewPassword); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
