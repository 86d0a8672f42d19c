package webhook

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"tripnotify/models"
)

// maxWechatSkew bounds how old a signed timestamp may be.
const maxWechatSkew = 5 * time.Minute

// WechatVerifier checks WeChat Pay API v3 callbacks and decrypts their resource.
type WechatVerifier struct {
	platformKey *rsa.PublicKey
	apiV3Key    []byte
	now         func() time.Time
}

func NewWechatVerifier(platformKey *rsa.PublicKey, apiV3Key string) *WechatVerifier {
	return &WechatVerifier{platformKey: platformKey, apiV3Key: []byte(apiV3Key), now: time.Now}
}

func (v *WechatVerifier) Provider() string { return ProviderWechat }

type wechatNotification struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		Algorithm      string `json:"algorithm"`
		Ciphertext     string `json:"ciphertext"`
		Nonce          string `json:"nonce"`
		AssociatedData string `json:"associated_data"`
	} `json:"resource"`
}

type wechatResource struct {
	OutTradeNo    string `json:"out_trade_no"`
	TransactionID string `json:"transaction_id"`
	TradeState    string `json:"trade_state"`
	RefundID      string `json:"refund_id"`
	RefundStatus  string `json:"refund_status"`
	Amount        struct {
		Total  int64 `json:"total"`
		Refund int64 `json:"refund"`
	} `json:"amount"`
}

func (v *WechatVerifier) Verify(body []byte, signature string, headers http.Header) (*models.PaymentEvent, error) {
	if v.platformKey == nil || len(v.apiV3Key) != 32 {
		return nil, &SignatureError{Provider: ProviderWechat, Reason: "platform key or APIv3 key not configured", Err: ErrNotConfigured}
	}
	if signature == "" {
		signature = headerValue(headers, "Wechatpay-Signature")
	}
	timestamp := headerValue(headers, "Wechatpay-Timestamp")
	nonce := headerValue(headers, "Wechatpay-Nonce")
	if signature == "" || timestamp == "" || nonce == "" {
		return nil, &SignatureError{Provider: ProviderWechat, Reason: "missing signature headers"}
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, &SignatureError{Provider: ProviderWechat, Reason: "bad timestamp", Err: err}
	}
	if skew := v.now().Sub(time.Unix(ts, 0)); skew > maxWechatSkew || skew < -maxWechatSkew {
		return nil, &SignatureError{Provider: ProviderWechat, Reason: "timestamp outside allowed window"}
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, &SignatureError{Provider: ProviderWechat, Reason: "signature is not base64", Err: err}
	}
	message := timestamp + "\n" + nonce + "\n" + string(body) + "\n"
	digest := sha256.Sum256([]byte(message))
	if err := rsa.VerifyPKCS1v15(v.platformKey, crypto.SHA256, digest[:], sig); err != nil {
		return nil, &SignatureError{Provider: ProviderWechat, Reason: "verification failed", Err: err}
	}

	var note wechatNotification
	if err := json.Unmarshal(body, &note); err != nil {
		return nil, &PayloadError{Provider: ProviderWechat, Reason: "body is not JSON", Err: err}
	}
	if note.Resource.Algorithm != "AEAD_AES_256_GCM" {
		return nil, &PayloadError{Provider: ProviderWechat, Reason: "unsupported algorithm " + note.Resource.Algorithm}
	}
	plain, err := decryptWechatResource(v.apiV3Key, note.Resource.Nonce, note.Resource.AssociatedData, note.Resource.Ciphertext)
	if err != nil {
		// an authentic envelope whose resource does not open is treated as forged
		return nil, &SignatureError{Provider: ProviderWechat, Reason: "resource decryption failed", Err: err}
	}

	var res wechatResource
	if err := json.Unmarshal(plain, &res); err != nil {
		return nil, &PayloadError{Provider: ProviderWechat, Reason: "resource is not JSON", Err: err}
	}
	return wechatEvent(note.EventType, res)
}

func decryptWechatResource(key []byte, nonce, associatedData, ciphertext string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(nonce))
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, []byte(nonce), data, []byte(associatedData))
}

func wechatEvent(eventType string, res wechatResource) (*models.PaymentEvent, error) {
	ev := &models.PaymentEvent{
		Provider:              ProviderWechat,
		OrderID:               res.OutTradeNo,
		ExternalTransactionID: res.TransactionID,
		Amount:                float64(res.Amount.Total) / 100,
	}
	switch {
	case eventType == "REFUND.SUCCESS":
		ev.EventType = models.PaymentEventRefund
		ev.Amount = float64(res.Amount.Refund) / 100
		if res.RefundID != "" {
			ev.ExternalTransactionID = res.RefundID
		}
	case res.TradeState == "SUCCESS":
		ev.EventType = models.PaymentEventSuccess
	case res.TradeState == "PAYERROR":
		ev.EventType = models.PaymentEventFailed
	case res.TradeState == "CLOSED" || res.TradeState == "REVOKED":
		ev.EventType = models.PaymentEventCancelled
	default:
		return nil, &PayloadError{Provider: ProviderWechat, Reason: "unhandled event " + eventType + "/" + res.TradeState}
	}
	if ev.OrderID == "" || ev.ExternalTransactionID == "" {
		return nil, &PayloadError{Provider: ProviderWechat, Reason: "out_trade_no and transaction_id are required"}
	}
	return ev, nil
}
