package webhook

import (
	"encoding/json"
	"net/http"

	"tripnotify/models"

	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
)

// StripeOrderMetadataKey is the PaymentIntent/Charge metadata key carrying our order id.
const StripeOrderMetadataKey = "order_id"

// StripeVerifier checks Stripe-Signature headers with the endpoint secret.
type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

func (v *StripeVerifier) Provider() string { return ProviderStripe }

func (v *StripeVerifier) Verify(body []byte, signature string, headers http.Header) (*models.PaymentEvent, error) {
	if v.secret == "" {
		return nil, &SignatureError{Provider: ProviderStripe, Reason: "endpoint secret not configured", Err: ErrNotConfigured}
	}
	if signature == "" {
		signature = headerValue(headers, "Stripe-Signature")
	}
	if signature == "" {
		return nil, &SignatureError{Provider: ProviderStripe, Reason: "missing Stripe-Signature"}
	}
	event, err := stripewebhook.ConstructEventWithOptions(body, signature, v.secret, stripewebhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &SignatureError{Provider: ProviderStripe, Reason: "verification failed", Err: err}
	}
	if event.Data == nil {
		return nil, &PayloadError{Provider: ProviderStripe, Reason: "event has no data"}
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, &PayloadError{Provider: ProviderStripe, Reason: "bad payment intent", Err: err}
		}
		ev := &models.PaymentEvent{
			Provider:              ProviderStripe,
			OrderID:               pi.Metadata[StripeOrderMetadataKey],
			ExternalTransactionID: pi.ID,
			Amount:                float64(pi.Amount) / 100,
		}
		switch event.Type {
		case "payment_intent.succeeded":
			ev.EventType = models.PaymentEventSuccess
			if pi.AmountReceived > 0 {
				ev.Amount = float64(pi.AmountReceived) / 100
			}
		case "payment_intent.payment_failed":
			ev.EventType = models.PaymentEventFailed
		default:
			ev.EventType = models.PaymentEventCancelled
		}
		return requireOrder(ev)

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, &PayloadError{Provider: ProviderStripe, Reason: "bad charge", Err: err}
		}
		return requireOrder(&models.PaymentEvent{
			Provider:              ProviderStripe,
			OrderID:               ch.Metadata[StripeOrderMetadataKey],
			EventType:             models.PaymentEventRefund,
			ExternalTransactionID: ch.ID,
			Amount:                float64(ch.AmountRefunded) / 100,
		})
	}
	return nil, &PayloadError{Provider: ProviderStripe, Reason: "unhandled event type " + string(event.Type)}
}

func requireOrder(ev *models.PaymentEvent) (*models.PaymentEvent, error) {
	if ev.OrderID == "" || ev.ExternalTransactionID == "" {
		return nil, &PayloadError{Provider: ev.Provider, Reason: "missing " + StripeOrderMetadataKey + " metadata or object id"}
	}
	return ev, nil
}
