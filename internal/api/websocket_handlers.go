package api

import (
	"net/http"

	"securesend/internal/websocket"

	log "github.com/sirupsen/logrus"
)

// @Summary      Live notifications
// @Description  Upgrades to a websocket that receives file_downloaded events for the caller's files. Browsers pass the token as a query parameter.
// @Tags         events
// @Param        token  query  string  false  "Session token"
// @Success      101  {string}  string  "Switching Protocols"
// @Failure      401  {object}  ErrorResponse
// @Router       /ws [get]
func (s *Server) ServeWsHandler(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.NotFound(w, r)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = tokenFromRequest(r)
	}
	principal, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		log.WithField("ip", clientIP(r)).Debug("websocket connection without a valid session")
		writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(s.wsHub, conn, principal.AccountID)
	s.wsHub.Register <- client

	go client.ReadPump()
	go client.WritePump()
}
