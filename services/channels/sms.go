package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"tripnotify/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var phoneRe = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// Gateway codes that mean "try again later".
var smsTransientCodes = map[string]bool{
	"isv.BUSINESS_LIMIT_CONTROL": true,
	"isp.SYSTEM_ERROR":           true,
	"Throttling.User":            true,
	"SignatureNonceUsed":         true,
}

// SMSConfig configures the signed SMS gateway client.
type SMSConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	SignName        string
	TemplateCode    string
	RatePerSecond   float64
}

// SMSAdapter sends through an Aliyun-style SendSms gateway.
type SMSAdapter struct {
	cfg     SMSConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
	nonce   func() string
}

func NewSMSAdapter(cfg SMSConfig, client *http.Client, logger *zap.Logger) *SMSAdapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 10
	}
	return &SMSAdapter{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:  logger,
		now:     time.Now,
		nonce:   func() string { return uuid.NewString() },
	}
}

func (a *SMSAdapter) Channel() models.Channel { return models.ChannelSMS }

type smsResponse struct {
	Code      string `json:"Code"`
	Message   string `json:"Message"`
	BizID     string `json:"BizId"`
	RequestID string `json:"RequestId"`
}

func (a *SMSAdapter) Send(ctx context.Context, n *models.Notification, title, content string, recipient models.Recipient) (Receipt, error) {
	phone := strings.TrimSpace(recipient.Phone)
	if !phoneRe.MatchString(phone) {
		return Receipt{}, permanent(models.ChannelSMS, "invalid phone number", nil)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return Receipt{}, transient(models.ChannelSMS, "rate limiter wait aborted", err)
	}

	param, err := json.Marshal(map[string]string{"title": title, "content": content})
	if err != nil {
		return Receipt{}, permanent(models.ChannelSMS, "encode template param", err)
	}

	params := map[string]string{
		"AccessKeyId":      a.cfg.AccessKeyID,
		"Action":           "SendSms",
		"Format":           "JSON",
		"PhoneNumbers":     phone,
		"RegionId":         "cn-hangzhou",
		"SignName":         a.cfg.SignName,
		"SignatureMethod":  "HMAC-SHA1",
		"SignatureNonce":   a.nonce(),
		"SignatureVersion": "1.0",
		"TemplateCode":     a.cfg.TemplateCode,
		"TemplateParam":    string(param),
		"Timestamp":        a.now().UTC().Format("2006-01-02T15:04:05Z"),
		"Version":          "2017-05-25",
		"OutId":            n.ID,
	}
	query := canonicalQuery(params)
	signature := signSMS(a.cfg.AccessKeySecret, http.MethodGet, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.cfg.Endpoint+"?Signature="+percentEncode(signature)+"&"+query, nil)
	if err != nil {
		return Receipt{}, permanent(models.ChannelSMS, "build request", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Receipt{}, transient(models.ChannelSMS, "gateway unreachable", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out smsResponse
	_ = json.Unmarshal(body, &out)

	switch {
	case transientHTTPStatus(resp.StatusCode):
		return Receipt{}, transient(models.ChannelSMS, fmt.Sprintf("gateway status %d %s", resp.StatusCode, out.Code), nil)
	case out.Code == "OK":
		a.logger.Debug("SMS accepted", zap.String("notificationId", n.ID), zap.String("bizId", out.BizID))
		return Receipt{ExternalID: out.BizID, Provider: "aliyun-sms"}, nil
	case smsTransientCodes[out.Code]:
		return Receipt{}, transient(models.ChannelSMS, out.Code+": "+out.Message, nil)
	case out.Code == "":
		return Receipt{}, permanent(models.ChannelSMS, fmt.Sprintf("unexpected gateway response (status %d)", resp.StatusCode), nil)
	default:
		return Receipt{}, permanent(models.ChannelSMS, out.Code+": "+out.Message, nil)
	}
}

// transientHTTPStatus reports statuses worth retrying whatever the body says.
func transientHTTPStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

// percentEncode is RFC 3986 encoding as the gateway's signature scheme expects.
func percentEncode(s string) string {
	enc := url.QueryEscape(s)
	enc = strings.ReplaceAll(enc, "+", "%20")
	enc = strings.ReplaceAll(enc, "*", "%2A")
	enc = strings.ReplaceAll(enc, "%7E", "~")
	return enc
}

func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, percentEncode(k)+"="+percentEncode(params[k]))
	}
	return strings.Join(parts, "&")
}

func signSMS(secret, method, canonical string) string {
	stringToSign := method + "&" + percentEncode("/") + "&" + percentEncode(canonical)
	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
