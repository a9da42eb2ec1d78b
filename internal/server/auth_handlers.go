package server

import (
	"github.com/bundlebooth/bdb-3.0-sub000/internal/api"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/authflow"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"

	"github.com/gofiber/fiber/v2"
)

// authResponse is the modal state plus the error of the action that was
// just attempted, if any. The banner carries the user-facing text.
type authResponse struct {
	authflow.State
	Error string `json:"error,omitempty"`
}

func (s *Server) authResult(c *fiber.Ctx, err error) error {
	resp := authResponse{State: s.auth.State()}
	if err != nil {
		resp.Error = err.Error()
		return c.Status(statusFor(err)).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *Server) authState(c *fiber.Ctx) error {
	return s.authResult(c, nil)
}

func (s *Server) authOpen(c *fiber.Ctx) error {
	s.auth.Open()
	return s.authResult(c, nil)
}

func (s *Server) authClose(c *fiber.Ctx) error {
	s.auth.Close()
	return s.authResult(c, nil)
}

func (s *Server) authShowSignup(c *fiber.Ctx) error {
	return s.authResult(c, s.auth.ShowSignup())
}

func (s *Server) authShowLogin(c *fiber.Ctx) error {
	return s.authResult(c, s.auth.ShowLogin())
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) authLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	return s.authResult(c, s.auth.SubmitLogin(c.UserContext(), req.Email, req.Password))
}

func (s *Server) authSignup(c *fiber.Ctx) error {
	var req api.Registration
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	return s.authResult(c, s.auth.SubmitSignup(c.UserContext(), req))
}

type codeRequest struct {
	Code string `json:"code"`
}

func (s *Server) authVerify(c *fiber.Ctx) error {
	var req codeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	return s.authResult(c, s.auth.VerifyCode(c.UserContext(), req.Code))
}

func (s *Server) authResend(c *fiber.Ctx) error {
	return s.authResult(c, s.auth.ResendCode(c.UserContext()))
}

type identityRequest struct {
	Credential string `json:"credential"`
}

func (s *Server) authIdentity(c *fiber.Ctx) error {
	var req identityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	return s.authResult(c, s.auth.HandleIdentityToken(c.UserContext(), req.Credential))
}

type accountTypeRequest struct {
	AccountType models.AccountType `json:"accountType"`
}

func (s *Server) authAccountType(c *fiber.Ctx) error {
	var req accountTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	return s.authResult(c, s.auth.ChooseAccountType(c.UserContext(), req.AccountType))
}
