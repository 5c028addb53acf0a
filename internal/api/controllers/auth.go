package controllers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/optolib/internal/app"
	"github.com/datallboy/optolib/internal/auth"
)

type AuthController struct {
	App *app.Context
}

// await blocks the request, not the provider, until the result arrives.
func (ctrl *AuthController) await(c *echo.Context, results <-chan auth.Result) error {
	select {
	case r := <-results:
		if r.Err != nil {
			return respondError(c, r.Err)
		}
		return c.JSON(http.StatusOK, r)
	case <-c.Request().Context().Done():
		return c.Request().Context().Err()
	}
}

func (ctrl *AuthController) provider(c *echo.Context) (*auth.Provider, error) {
	if ctrl.App.Auth == nil {
		return nil, c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "auth is not configured"})
	}
	return ctrl.App.Auth, nil
}

func (ctrl *AuthController) SignIn(c *echo.Context) error {
	p, err := ctrl.provider(c)
	if p == nil {
		return err
	}
	var req CredentialsRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	return ctrl.await(c, p.SignIn(req.Email, req.Password))
}

func (ctrl *AuthController) SignUp(c *echo.Context) error {
	p, err := ctrl.provider(c)
	if p == nil {
		return err
	}
	var req CredentialsRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	return ctrl.await(c, p.SignUp(req.Email, req.Password))
}

func (ctrl *AuthController) ResetPassword(c *echo.Context) error {
	p, err := ctrl.provider(c)
	if p == nil {
		return err
	}
	var req CredentialsRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	return ctrl.await(c, p.ResetPassword(req.Email))
}

func (ctrl *AuthController) SendOTP(c *echo.Context) error {
	p, err := ctrl.provider(c)
	if p == nil {
		return err
	}
	var req PhoneRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	return ctrl.await(c, p.SendOTP(req.Phone))
}

func (ctrl *AuthController) VerifyOTP(c *echo.Context) error {
	p, err := ctrl.provider(c)
	if p == nil {
		return err
	}
	var req PhoneRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	return ctrl.await(c, p.VerifyOTP(req.Phone, req.Code))
}

func (ctrl *AuthController) Refresh(c *echo.Context) error {
	p, err := ctrl.provider(c)
	if p == nil {
		return err
	}
	var req RefreshRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	return ctrl.await(c, p.Refresh(req.RefreshToken))
}

func (ctrl *AuthController) SignOut(c *echo.Context) error {
	p, err := ctrl.provider(c)
	if p == nil {
		return err
	}
	return ctrl.await(c, p.SignOut())
}

// Session reports the cached session without contacting the auth service.
func (ctrl *AuthController) Session(c *echo.Context) error {
	p, err := ctrl.provider(c)
	if p == nil {
		return err
	}
	s, err := p.Current(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}
