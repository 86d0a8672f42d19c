package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"tripnotify/models"
)

// GenericVerifier accepts callbacks signed with a shared HMAC-SHA256 secret,
// sent hex encoded in X-Webhook-Signature or X-Signature.
type GenericVerifier struct {
	secret []byte
}

func NewGenericVerifier(secret string) *GenericVerifier {
	return &GenericVerifier{secret: []byte(secret)}
}

func (v *GenericVerifier) Provider() string { return ProviderGeneric }

type genericPayload struct {
	OrderID       string                  `json:"orderId"`
	EventType     models.PaymentEventType `json:"eventType"`
	Amount        float64                 `json:"amount"`
	TransactionID string                  `json:"transactionId"`
}

func (v *GenericVerifier) Verify(body []byte, signature string, headers http.Header) (*models.PaymentEvent, error) {
	if len(v.secret) == 0 {
		return nil, &SignatureError{Provider: ProviderGeneric, Reason: "secret not configured", Err: ErrNotConfigured}
	}
	if signature == "" {
		signature = headerValue(headers, "X-Webhook-Signature", "X-Signature")
	}
	signature = strings.TrimPrefix(signature, "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return nil, &SignatureError{Provider: ProviderGeneric, Reason: "missing or malformed signature"}
	}
	if !hmac.Equal(got, SignGeneric(v.secret, body)) {
		return nil, &SignatureError{Provider: ProviderGeneric, Reason: "verification failed"}
	}

	var p genericPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &PayloadError{Provider: ProviderGeneric, Reason: "body is not JSON", Err: err}
	}
	switch p.EventType {
	case models.PaymentEventSuccess, models.PaymentEventFailed, models.PaymentEventRefund, models.PaymentEventCancelled:
	default:
		return nil, &PayloadError{Provider: ProviderGeneric, Reason: "unknown eventType " + string(p.EventType)}
	}
	if p.OrderID == "" || p.TransactionID == "" || p.Amount < 0 {
		return nil, &PayloadError{Provider: ProviderGeneric, Reason: "orderId, transactionId and a non-negative amount are required"}
	}
	return &models.PaymentEvent{
		Provider:              ProviderGeneric,
		OrderID:               p.OrderID,
		EventType:             p.EventType,
		Amount:                p.Amount,
		ExternalTransactionID: p.TransactionID,
	}, nil
}

// SignGeneric computes the raw HMAC-SHA256 of body.
func SignGeneric(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}
