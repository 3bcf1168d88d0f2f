package api

import (
	"net/http"
	"time"

	"securesend/internal/models"
	"securesend/internal/service"
)

type RegisterRequest struct {
	Email    string `json:"email" example:"a@x.com"`
	Password string `json:"password" example:"Str0ng!Pass99"`
}

type LoginRequest struct {
	Email    string `json:"email" example:"a@x.com"`
	Password string `json:"password" example:"Str0ng!Pass99"`
}

type VerifyOtpRequest struct {
	Email string `json:"email" example:"a@x.com"`
	Otp   string `json:"otp" example:"482913"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" example:"a@x.com"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" example:"a@x.com"`
	Otp         string `json:"otp" example:"482913"`
	NewPassword string `json:"newPassword" example:"An0ther!Pass77"`
}

type AccountResponse struct {
	ID    int64       `json:"id" example:"1"`
	Email string      `json:"email" example:"a@x.com"`
	Role  models.Role `json:"role" example:"USER"`
}

type SessionResponse struct {
	Msg       string          `json:"msg" example:"Login successful"`
	User      AccountResponse `json:"user"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type OtpChallengeResponse struct {
	Msg       string    `json:"msg" example:"OTP sent to your email."`
	Email     string    `json:"email" example:"a@x.com"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) writeSession(w http.ResponseWriter, status int, msg string, issued *service.IssuedSession) {
	s.setSessionCookie(w, issued.Token, issued.ExpiresAt)
	writeJSON(w, status, SessionResponse{
		Msg: msg,
		User: AccountResponse{
			ID:    issued.Account.ID,
			Email: issued.Account.Email,
			Role:  issued.Account.Role,
		},
		ExpiresAt: issued.ExpiresAt,
	})
}

// @Summary      Register a new account
// @Description  Creates a USER account after checking the password policy and signs the caller in.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        registerRequest  body      RegisterRequest  true  "Credentials"
// @Success      201              {object}  SessionResponse
// @Failure      400              {object}  ErrorResponse
// @Failure      429              {object}  ErrorResponse
// @Failure      500              {object}  ErrorResponse
// @Router       /auth/register [post]
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	issued, err := s.auth.Register(r.Context(), req.Email, req.Password, requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeSession(w, http.StatusCreated, "Registration successful", issued)
}

// @Summary      Login step one
// @Description  Checks the password and emails a one-time code. Repeated failures lock the account.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        loginRequest  body      LoginRequest  true  "Credentials"
// @Success      200           {object}  OtpChallengeResponse
// @Failure      400           {object}  ErrorResponse
// @Failure      401           {object}  ErrorResponse  "Invalid credentials, with attempts_left"
// @Failure      403           {object}  ErrorResponse  "Locked, with lockout_until"
// @Failure      429           {object}  ErrorResponse
// @Failure      500           {object}  ErrorResponse
// @Router       /auth/login [post]
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	challenge, err := s.auth.LoginStep1(r.Context(), req.Email, req.Password, requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OtpChallengeResponse{
		Msg:       "OTP sent to your email.",
		Email:     challenge.Email,
		ExpiresAt: challenge.ExpiresAt,
	})
}

// @Summary      Login step two
// @Description  Exchanges the emailed code for a session cookie.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        verifyOtpRequest  body      VerifyOtpRequest  true  "Email and code"
// @Success      200               {object}  SessionResponse
// @Failure      400               {object}  ErrorResponse
// @Failure      401               {object}  ErrorResponse
// @Router       /auth/verify-otp [post]
func (s *Server) VerifyOtpHandler(w http.ResponseWriter, r *http.Request) {
	var req VerifyOtpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	issued, err := s.auth.VerifyOtp(r.Context(), req.Email, req.Otp, requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeSession(w, http.StatusOK, "Login successful", issued)
}

// @Summary      Request a password reset code
// @Description  Always answers the same way so account existence is not revealed.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        forgotPasswordRequest  body      ForgotPasswordRequest  true  "Email"
// @Success      200                    {object}  MessageResponse
// @Failure      400                    {object}  ErrorResponse
// @Router       /auth/forgot-password [post]
func (s *Server) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.auth.ForgotPassword(r.Context(), req.Email, requestMeta(r)); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "If an account with that email exists, a password reset code has been sent.")
}

// @Summary      Reset password with an emailed code
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        resetPasswordRequest  body      ResetPasswordRequest  true  "Email, code and new password"
// @Success      200                   {object}  MessageResponse
// @Failure      400                   {object}  ErrorResponse
// @Failure      401                   {object}  ErrorResponse
// @Router       /auth/reset-password [post]
func (s *Server) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.auth.ResetPassword(r.Context(), req.Email, req.Otp, req.NewPassword, requestMeta(r)); err != nil {
		writeError(w, err)
		return
	}
	s.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "Password has been reset successfully. Please log in.")
}

// @Summary      Log out
// @Description  Deletes the current session if there is one and clears the cookie.
// @Tags         auth
// @Produce      json
// @Success      200  {object}  MessageResponse
// @Router       /auth/logout [post]
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), s.optionalPrincipal(r), requestMeta(r)); err != nil {
		writeError(w, err)
		return
	}
	s.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "Logged out successfully")
}
