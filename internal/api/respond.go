package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"securesend/internal/service"

	log "github.com/sirupsen/logrus"
)

type MessageResponse struct {
	Msg string `json:"msg" example:"Password updated successfully."`
}

type ErrorResponse struct {
	Msg          string     `json:"msg" example:"Invalid credentials"`
	AttemptsLeft *int       `json:"attempts_left,omitempty"`
	LockoutUntil *time.Time `json:"lockout_until,omitempty"`
	Suggestions  []string   `json:"suggestions,omitempty"`
	Threats      []string   `json:"threats,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageResponse{Msg: msg})
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuthentication:
		return http.StatusUnauthorized
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindRateExceeded:
		return http.StatusTooManyRequests
	case service.KindLocked:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a service error. Anything that is not a *service.Error
// is logged and reported as a generic server error.
func writeError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		log.WithError(err).Error("unhandled error")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Msg: service.ErrInternal.Message})
		return
	}

	status := statusFor(svcErr.Kind)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("code", svcErr.Code).Error("request failed")
	}

	writeJSON(w, status, ErrorResponse{
		Msg:          svcErr.Message,
		AttemptsLeft: svcErr.AttemptsLeft,
		LockoutUntil: svcErr.LockoutUntil,
		Suggestions:  svcErr.Suggestions,
		Threats:      svcErr.Threats,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.config.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
