package api

import (
	"io"
	"net/http"

	"securesend/internal/service"

	_ "securesend/internal/models"
)

const signatureHeader = "X-Signature"

type SimulateUpgradeRequest struct {
	Plan string `json:"plan" example:"Premium" enums:"Plus,Premium,Business"`
}

type UpgradeResponse struct {
	Msg  string       `json:"msg" example:"Upgrade successful"`
	Plan service.Plan `json:"plan"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
	Applied  bool `json:"applied"`
}

// @Summary      Simulate a completed checkout
// @Description  Applies a payment for the chosen plan to the caller's account without a payment provider.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        simulateUpgradeRequest  body      SimulateUpgradeRequest  true  "Plan"
// @Success      200                     {object}  UpgradeResponse
// @Failure      400                     {object}  ErrorResponse
// @Failure      401                     {object}  ErrorResponse
// @Router       /payment/simulate-upgrade [post]
func (s *Server) SimulateUpgradeHandler(w http.ResponseWriter, r *http.Request) {
	var req SimulateUpgradeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	plan, err := s.payments.SimulateUpgrade(r.Context(), GetPrincipalFromContext(r.Context()), req.Plan, requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpgradeResponse{Msg: "Upgrade successful", Plan: *plan})
}

// @Summary      Payment provider webhook
// @Description  Accepts checkout.session.completed events signed with HMAC-SHA256 of the raw body (hex, X-Signature header). Replays are acknowledged without effect.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-Signature  header    string  true  "hex HMAC-SHA256 of the body"
// @Success      200          {object}  WebhookResponse
// @Failure      400          {object}  ErrorResponse
// @Failure      401          {object}  ErrorResponse
// @Router       /payment/webhook [post]
func (s *Server) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	applied, err := s.payments.HandleWebhook(r.Context(), body, r.Header.Get(signatureHeader), requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WebhookResponse{Received: true, Applied: applied})
}

// @Summary      List my payments
// @Tags         payments
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   models.Transaction
// @Failure      401  {object}  ErrorResponse
// @Router       /payment/transactions [get]
func (s *Server) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	transactions, err := s.payments.ListTransactions(r.Context(), GetPrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}
