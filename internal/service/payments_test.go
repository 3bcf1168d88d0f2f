package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"securesend/internal/models"

	"github.com/stretchr/testify/require"
)

func webhookBody(sessionID string, accountID int64) []byte {
	return []byte(fmt.Sprintf(`{"type":"checkout.session.completed","data":{"object":{"id":%q,"amount_total":50000,"currency":"INR","metadata":{"userId":"%d","plan":"Plus"}}}}`,
		sessionID, accountID))
}

func TestApplyCheckout_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, testEmail)

	ev := CheckoutEvent{SessionID: "cs_test_1", AccountID: p.AccountID, AmountCents: 50000, ProductName: "Plus"}
	applied, err := f.payments.ApplyCheckout(ctx, ev, testMeta)
	require.NoError(t, err)
	require.True(t, applied)

	account, err := f.store.GetAccountByID(ctx, p.AccountID)
	require.NoError(t, err)
	require.Equal(t, models.RolePro, account.Role)
	require.NotNil(t, account.ProUntil)
	firstUntil := *account.ProUntil

	applied, err = f.payments.ApplyCheckout(ctx, ev, testMeta)
	require.NoError(t, err)
	require.False(t, applied)

	account, err = f.store.GetAccountByID(ctx, p.AccountID)
	require.NoError(t, err)
	require.Equal(t, firstUntil, *account.ProUntil)

	transactions, err := f.payments.ListTransactions(ctx, p)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	require.Equal(t, "inr", transactions[0].Currency)
	require.Equal(t, "completed", transactions[0].Status)
}

func TestApplyCheckout_ExtendsActiveSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, testEmail)
	now := f.clock.now()

	_, err := f.payments.ApplyCheckout(ctx, CheckoutEvent{SessionID: "cs_1", AccountID: p.AccountID}, testMeta)
	require.NoError(t, err)
	_, err = f.payments.ApplyCheckout(ctx, CheckoutEvent{SessionID: "cs_2", AccountID: p.AccountID}, testMeta)
	require.NoError(t, err)

	account, err := f.store.GetAccountByID(ctx, p.AccountID)
	require.NoError(t, err)
	require.Equal(t, now.Add(60*24*time.Hour), *account.ProUntil)
}

func TestApplyCheckout_AdminKeepsRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, testEmail)

	_, err := f.store.UpdateAccount(ctx, p.AccountID, func(a *models.Account) error {
		a.Role = models.RoleAdmin
		return nil
	})
	require.NoError(t, err)

	_, err = f.payments.ApplyCheckout(ctx, CheckoutEvent{SessionID: "cs_admin", AccountID: p.AccountID}, testMeta)
	require.NoError(t, err)

	account, err := f.store.GetAccountByID(ctx, p.AccountID)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, account.Role)
}

func TestApplyCheckout_InvalidEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.payments.ApplyCheckout(ctx, CheckoutEvent{AccountID: 1}, testMeta)
	requireKind(t, err, ErrInvalidEvent)

	_, err = f.payments.ApplyCheckout(ctx, CheckoutEvent{SessionID: "cs_x", AccountID: 999}, testMeta)
	requireKind(t, err, ErrInvalidEvent)
}

func TestSimulateUpgrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, testEmail)

	_, err := f.payments.SimulateUpgrade(ctx, p, "Gold", testMeta)
	requireKind(t, err, ErrInvalidPlan)

	plan, err := f.payments.SimulateUpgrade(ctx, p, "Business", testMeta)
	require.NoError(t, err)
	require.Equal(t, int64(200000), plan.AmountCents)

	transactions, err := f.payments.ListTransactions(ctx, p)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	require.Contains(t, transactions[0].SessionID, "sim_")
	require.Equal(t, "Business", transactions[0].ProductName)
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, testEmail)
	body := webhookBody("cs_live_42", p.AccountID)

	_, err := f.payments.HandleWebhook(ctx, body, "", testMeta)
	requireKind(t, err, ErrInvalidSignature)
	_, err = f.payments.HandleWebhook(ctx, body, SignPayload("wrong", body), testMeta)
	requireKind(t, err, ErrInvalidSignature)
	_, err = f.payments.HandleWebhook(ctx, body, "zz-not-hex", testMeta)
	requireKind(t, err, ErrInvalidSignature)

	applied, err := f.payments.HandleWebhook(ctx, body, SignPayload("whsec", body), testMeta)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = f.payments.HandleWebhook(ctx, body, SignPayload("whsec", body), testMeta)
	require.NoError(t, err)
	require.False(t, applied)

	other := []byte(`{"type":"payment_intent.created","data":{"object":{}}}`)
	applied, err = f.payments.HandleWebhook(ctx, other, SignPayload("whsec", other), testMeta)
	require.NoError(t, err)
	require.False(t, applied)

	broken := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_1","metadata":{}}}}`)
	_, err = f.payments.HandleWebhook(ctx, broken, SignPayload("whsec", broken), testMeta)
	requireKind(t, err, ErrInvalidEvent)
}

func TestHandleWebhook_EmptySecretRejectsEverything(t *testing.T) {
	f := newFixture(t)
	f.payments.cfg.WebhookSecret = ""
	body := webhookBody("cs_1", 1)

	_, err := f.payments.HandleWebhook(context.Background(), body, SignPayload("", body), testMeta)
	requireKind(t, err, ErrInvalidSignature)
}
