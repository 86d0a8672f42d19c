package webhook

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"tripnotify/models"
)

// AlipayVerifier checks RSA2 (SHA256withRSA) signed asynchronous notifications.
type AlipayVerifier struct {
	publicKey *rsa.PublicKey
}

func NewAlipayVerifier(publicKey *rsa.PublicKey) *AlipayVerifier {
	return &AlipayVerifier{publicKey: publicKey}
}

func (v *AlipayVerifier) Provider() string { return ProviderAlipay }

func (v *AlipayVerifier) Verify(body []byte, signature string, headers http.Header) (*models.PaymentEvent, error) {
	if v.publicKey == nil {
		return nil, &SignatureError{Provider: ProviderAlipay, Reason: "public key not configured", Err: ErrNotConfigured}
	}
	params, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, &PayloadError{Provider: ProviderAlipay, Reason: "body is not form encoded", Err: err}
	}

	if signature == "" {
		signature = headerValue(headers, "X-Alipay-Signature")
	}
	if signature == "" {
		signature = params.Get("sign")
	}
	if signature == "" {
		return nil, &SignatureError{Provider: ProviderAlipay, Reason: "missing sign"}
	}
	if st := params.Get("sign_type"); st != "" && st != "RSA2" {
		return nil, &SignatureError{Provider: ProviderAlipay, Reason: "unsupported sign_type " + st}
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, &SignatureError{Provider: ProviderAlipay, Reason: "sign is not base64", Err: err}
	}
	digest := sha256.Sum256([]byte(alipaySignContent(params)))
	if err := rsa.VerifyPKCS1v15(v.publicKey, crypto.SHA256, digest[:], sig); err != nil {
		return nil, &SignatureError{Provider: ProviderAlipay, Reason: "verification failed", Err: err}
	}
	return alipayEvent(params)
}

// alipaySignContent is the sorted k=v list of non-empty params without sign and sign_type.
func alipaySignContent(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" || k == "sign_type" || params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}
	return strings.Join(pairs, "&")
}

func alipayEvent(params url.Values) (*models.PaymentEvent, error) {
	ev := &models.PaymentEvent{
		Provider:              ProviderAlipay,
		OrderID:               params.Get("out_trade_no"),
		ExternalTransactionID: params.Get("trade_no"),
	}
	if ev.OrderID == "" || ev.ExternalTransactionID == "" {
		return nil, &PayloadError{Provider: ProviderAlipay, Reason: "out_trade_no and trade_no are required"}
	}

	amountField := "total_amount"
	switch status := params.Get("trade_status"); {
	case params.Get("refund_fee") != "" && params.Get("out_biz_no") != "":
		ev.EventType = models.PaymentEventRefund
		amountField = "refund_fee"
	case status == "TRADE_SUCCESS" || status == "TRADE_FINISHED":
		ev.EventType = models.PaymentEventSuccess
	case status == "TRADE_CLOSED":
		ev.EventType = models.PaymentEventCancelled
	case status == "WAIT_BUYER_PAY":
		return nil, &PayloadError{Provider: ProviderAlipay, Reason: "trade not finished"}
	default:
		return nil, &PayloadError{Provider: ProviderAlipay, Reason: "unknown trade_status " + status}
	}

	amount, err := parseAmount(params.Get(amountField))
	if err != nil {
		return nil, &PayloadError{Provider: ProviderAlipay, Reason: "bad " + amountField, Err: err}
	}
	ev.Amount = amount
	return ev, nil
}
