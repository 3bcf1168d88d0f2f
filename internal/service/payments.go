package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"securesend/internal/database"
	"securesend/internal/models"

	"github.com/jaevor/go-nanoid"
	log "github.com/sirupsen/logrus"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"
	defaultCurrency        = "inr"
	statusCompleted        = "completed"
)

type Plan struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount"`
}

var plans = map[string]Plan{
	"Plus":     {Name: "Plus", AmountCents: 50000},
	"Premium":  {Name: "Premium", AmountCents: 100000},
	"Business": {Name: "Business", AmountCents: 200000},
}

// CheckoutEvent is a completed payment for an account. SessionID is the
// idempotency key.
type CheckoutEvent struct {
	SessionID   string
	AccountID   int64
	AmountCents int64
	Currency    string
	ProductName string
}

type PaymentConfig struct {
	WebhookSecret string
	ProDuration   time.Duration
}

type PaymentService struct {
	ledger   LedgerStore
	activity activityRecorder
	cfg      PaymentConfig
	now      func() time.Time
	newID    func() string
}

func NewPaymentService(ledger LedgerStore, activity ActivityStore, cfg PaymentConfig) (*PaymentService, error) {
	newID, err := nanoid.Standard(24)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize nanoid generator: %w", err)
	}
	s := &PaymentService{
		ledger: ledger,
		cfg:    cfg,
		now:    time.Now,
		newID:  newID,
	}
	s.activity = activityRecorder{store: activity, now: s.clock}
	return s, nil
}

func (s *PaymentService) clock() time.Time {
	return s.now().UTC()
}

// ApplyCheckout upgrades the paying account once per session id. It returns
// false when the event was already processed.
func (s *PaymentService) ApplyCheckout(ctx context.Context, ev CheckoutEvent, meta RequestMeta) (bool, error) {
	if ev.SessionID == "" || ev.AccountID <= 0 {
		return false, ErrInvalidEvent
	}
	currency := strings.ToLower(ev.Currency)
	if currency == "" {
		currency = defaultCurrency
	}

	now := s.clock()
	var proUntil *time.Time
	applied, err := s.ledger.ApplyUpgrade(ctx, database.CreateTransactionParams{
		AccountID:   ev.AccountID,
		SessionID:   ev.SessionID,
		AmountCents: ev.AmountCents,
		Currency:    currency,
		ProductName: ev.ProductName,
		Status:      statusCompleted,
		CreatedAt:   now,
	}, func(a *models.Account) error {
		start := now
		if a.ProUntil != nil && a.ProUntil.After(now) {
			start = *a.ProUntil
		}
		until := start.Add(s.cfg.ProDuration)
		a.ProUntil = &until
		if a.Role != models.RoleAdmin {
			a.Role = models.RolePro
		}
		proUntil = &until
		return nil
	})
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return false, ErrInvalidEvent.withCause(err)
		}
		return false, internal(err)
	}
	if !applied {
		log.WithField("session_id", ev.SessionID).Info("checkout already processed")
		return false, nil
	}

	details := fmt.Sprintf("Upgraded via %s (%s)", ev.ProductName, ev.SessionID)
	if proUntil != nil {
		details += " until " + proUntil.Format(time.RFC3339)
	}
	s.activity.record(ctx, ev.AccountID, models.ActionAccountUpgraded, details, meta)
	return true, nil
}

// SimulateUpgrade stands in for a hosted checkout: it applies a completed
// payment for plan without talking to a provider.
func (s *PaymentService) SimulateUpgrade(ctx context.Context, p *Principal, planName string, meta RequestMeta) (*Plan, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	plan, ok := plans[planName]
	if !ok {
		return nil, ErrInvalidPlan
	}

	_, err := s.ApplyCheckout(ctx, CheckoutEvent{
		SessionID:   "sim_" + s.newID(),
		AccountID:   p.AccountID,
		AmountCents: plan.AmountCents,
		Currency:    defaultCurrency,
		ProductName: plan.Name,
	}, meta)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID          string            `json:"id"`
			AmountTotal int64             `json:"amount_total"`
			Currency    string            `json:"currency"`
			Metadata    map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// SignPayload returns the hex HMAC-SHA256 of body under secret.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *PaymentService) verifySignature(body []byte, signature string) bool {
	if s.cfg.WebhookSecret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// HandleWebhook authenticates a provider event and applies completed
// checkouts. Other event types are acknowledged and ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string, meta RequestMeta) (bool, error) {
	if !s.verifySignature(body, signature) {
		return false, ErrInvalidSignature
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return false, ErrInvalidEvent.withCause(err)
	}
	if ev.Type != EventCheckoutCompleted {
		log.WithField("type", ev.Type).Debug("ignoring payment event")
		return false, nil
	}

	obj := ev.Data.Object
	accountID, err := strconv.ParseInt(obj.Metadata["userId"], 10, 64)
	if err != nil {
		return false, ErrInvalidEvent.withCause(err)
	}
	product := obj.Metadata["plan"]
	if product == "" {
		product = "PRO"
	}

	return s.ApplyCheckout(ctx, CheckoutEvent{
		SessionID:   obj.ID,
		AccountID:   accountID,
		AmountCents: obj.AmountTotal,
		Currency:    obj.Currency,
		ProductName: product,
	}, meta)
}

func (s *PaymentService) ListTransactions(ctx context.Context, p *Principal) ([]models.Transaction, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	transactions, err := s.ledger.ListTransactions(ctx, p.AccountID)
	if err != nil {
		return nil, internal(err)
	}
	return transactions, nil
}
