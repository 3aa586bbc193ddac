package payment

import (
	"fmt"
	"testing"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
)

const testSecret = "whsec_test_secret"

func sessionEvent(eventType, status, paymentStatus, orderID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": %q,
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"status": %q,
			"payment_status": %q,
			"client_reference_id": %q,
			"metadata": {"orderId": %q, "userId": "user-1"}
		}}
	}`, eventType, status, paymentStatus, orderID, orderID))
}

func sign(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestWebhookVerifierCompletedPaid(t *testing.T) {
	v := NewWebhookVerifier(testSecret, 0)
	payload := sessionEvent(EventSessionCompleted, "complete", "paid", "order-1")

	evt, err := v.Parse(payload, sign(t, payload, testSecret))
	require.NoError(t, err)
	assert.True(t, evt.Actionable)
	assert.Equal(t, "order-1", evt.OrderID)
	assert.Equal(t, "cs_test_1", evt.SessionID)
	assert.Equal(t, OutcomePaid, evt.Outcome)
}

func TestWebhookVerifierCarriesCustomerEmail(t *testing.T) {
	v := NewWebhookVerifier(testSecret, 0)
	payload := []byte(`{
		"id": "evt_2",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_2",
			"object": "checkout.session",
			"status": "complete",
			"payment_status": "paid",
			"metadata": {"orderId": "order-1"},
			"customer_details": {"email": "buyer@example.com"}
		}}
	}`)

	evt, err := v.Parse(payload, sign(t, payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", evt.CustomerEmail)
}

func TestWebhookVerifierRejectsBadSignature(t *testing.T) {
	v := NewWebhookVerifier(testSecret, 0)
	payload := sessionEvent(EventSessionCompleted, "complete", "paid", "order-1")

	_, err := v.Parse(payload, sign(t, payload, "whsec_someone_else"))
	assert.ErrorIs(t, err, order.ErrInvalidSignature)

	_, err = v.Parse(payload, "")
	assert.ErrorIs(t, err, order.ErrInvalidSignature)
}

func TestWebhookVerifierRejectsTamperedBody(t *testing.T) {
	v := NewWebhookVerifier(testSecret, 0)
	payload := sessionEvent(EventSessionCompleted, "open", "unpaid", "order-1")
	header := sign(t, payload, testSecret)

	forged := sessionEvent(EventSessionCompleted, "complete", "paid", "order-1")
	_, err := v.Parse(forged, header)
	assert.ErrorIs(t, err, order.ErrInvalidSignature)
}

func TestWebhookVerifierFailureEvents(t *testing.T) {
	v := NewWebhookVerifier(testSecret, 0)

	for _, typ := range []string{EventSessionExpired, EventSessionAsyncPaymentFailed} {
		payload := sessionEvent(typ, "expired", "unpaid", "order-2")
		evt, err := v.Parse(payload, sign(t, payload, testSecret))
		require.NoError(t, err, typ)
		assert.True(t, evt.Actionable, typ)
		assert.Equal(t, OutcomeOther, evt.Outcome, typ)
	}
}

func TestWebhookVerifierUnknownType(t *testing.T) {
	v := NewWebhookVerifier(testSecret, 0)
	payload := []byte(`{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	evt, err := v.Parse(payload, sign(t, payload, testSecret))
	require.NoError(t, err)
	assert.False(t, evt.Actionable)
	assert.Equal(t, "customer.created", evt.Type)
}

func TestWebhookVerifierPaymentIntentFailedIsNotActionable(t *testing.T) {
	v := NewWebhookVerifier(testSecret, 0)
	payload := []byte(`{"id":"evt_3","object":"event","type":"payment_intent.payment_failed",
		"data":{"object":{"id":"pi_1","object":"payment_intent","metadata":{"orderId":"order-3"}}}}`)

	evt, err := v.Parse(payload, sign(t, payload, testSecret))
	require.NoError(t, err)
	assert.False(t, evt.Actionable)
	assert.Equal(t, "order-3", evt.OrderID)
}
