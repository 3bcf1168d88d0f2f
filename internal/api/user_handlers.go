package api

import (
	"net/http"

	_ "securesend/internal/models"
)

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" example:"Str0ng!Pass99"`
	NewPassword     string `json:"newPassword" example:"An0ther!Pass77"`
}

// @Summary      Get current user info
// @Description  Returns the caller's profile with the effective role and upload limit.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  service.Profile
// @Failure      401  {object}  ErrorResponse
// @Router       /auth/me [get]
func (s *Server) GetCurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := s.auth.Me(r.Context(), GetPrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// @Summary      Change password
// @Description  Requires the current password. Every session of the account is terminated.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        changePasswordRequest  body      ChangePasswordRequest  true  "Current and new password"
// @Success      200                    {object}  MessageResponse
// @Failure      400                    {object}  ErrorResponse
// @Failure      401                    {object}  ErrorResponse
// @Router       /user/change-password [post]
func (s *Server) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := s.auth.ChangePassword(r.Context(), GetPrincipalFromContext(r.Context()), req.CurrentPassword, req.NewPassword, requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	s.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "Password updated successfully.")
}

// @Summary      Recent activity
// @Description  The 20 newest security events of the caller's account.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   models.ActivityRecord
// @Failure      401  {object}  ErrorResponse
// @Router       /user/activity [get]
func (s *Server) ListActivityHandler(w http.ResponseWriter, r *http.Request) {
	records, err := s.activity.List(r.Context(), GetPrincipalFromContext(r.Context()).AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
