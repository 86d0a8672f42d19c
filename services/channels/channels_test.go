package channels

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"testing"
	"time"

	"tripnotify/models"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	gomail "gopkg.in/mail.v2"
)

func testNotification() *models.Notification {
	return &models.Notification{ID: "n-1", Type: models.TypeBookingConfirmed, Priority: models.PriorityHigh}
}

func TestSMSAdapterSuccess(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte(`{"Code":"OK","Message":"OK","BizId":"biz-9"}`))
	}))
	defer srv.Close()

	a := NewSMSAdapter(SMSConfig{Endpoint: srv.URL + "/", AccessKeyID: "ak", AccessKeySecret: "sk", SignName: "Trip", TemplateCode: "SMS_1"}, srv.Client(), zaptest.NewLogger(t))
	a.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	a.nonce = func() string { return "nonce-1" }

	receipt, err := a.Send(context.Background(), testNotification(), "Title", "Body", models.Recipient{Phone: "+8613800000000"})
	require.NoError(t, err)
	assert.Equal(t, "biz-9", receipt.ExternalID)
	assert.Equal(t, "SendSms", got.Get("Action"))
	assert.Equal(t, "+8613800000000", got.Get("PhoneNumbers"))
	assert.Equal(t, "2024-01-02T03:04:05Z", got.Get("Timestamp"))

	// the signature must match the canonical query without it
	params := map[string]string{}
	for k := range got {
		if k != "Signature" {
			params[k] = got.Get(k)
		}
	}
	assert.Equal(t, signSMS("sk", http.MethodGet, canonicalQuery(params)), got.Get("Signature"))
}

func TestSMSAdapterClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{"throttled code", 200, `{"Code":"isv.BUSINESS_LIMIT_CONTROL","Message":"limit"}`, false},
		{"server error", 503, `{}`, false},
		{"too many requests", 429, `{}`, false},
		{"request timeout", 408, ``, false},
		{"throttled with error body", 429, `{"Code":"Throttling.User","Message":"slow down"}`, false},
		{"bad gateway without body", 502, ``, false},
		{"forbidden without body", 403, ``, true},
		{"invalid mobile", 200, `{"Code":"isv.MOBILE_NUMBER_ILLEGAL","Message":"bad"}`, true},
		{"client error", 400, `{"Code":"InvalidParameter","Message":"bad"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewSMSAdapter(SMSConfig{Endpoint: srv.URL}, srv.Client(), zaptest.NewLogger(t))
			_, err := a.Send(context.Background(), testNotification(), "t", "c", models.Recipient{Phone: "13800000000"})
			require.Error(t, err)
			var de *DeliveryError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.permanent, de.Permanent)
			assert.Equal(t, models.ChannelSMS, de.Channel)
		})
	}
}

func TestSMSAdapterRejectsBadPhoneLocally(t *testing.T) {
	a := NewSMSAdapter(SMSConfig{Endpoint: "http://127.0.0.1:1"}, nil, zaptest.NewLogger(t))
	_, err := a.Send(context.Background(), testNotification(), "t", "c", models.Recipient{Phone: "call me"})
	assert.True(t, IsPermanent(err))
}

type fakeDialer struct {
	err  error
	sent []*gomail.Message
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestEmailAdapter(t *testing.T) {
	d := &fakeDialer{}
	a := NewEmailAdapterWithDialer("noreply@trip.test", d, zaptest.NewLogger(t))

	receipt, err := a.Send(context.Background(), testNotification(), "Subject", "<p>Hi</p>", models.Recipient{Email: "ana@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ExternalID)
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"Subject"}, d.sent[0].GetHeader("Subject"))
	assert.Equal(t, []string{"ana@example.com"}, d.sent[0].GetHeader("To"))
}

func TestEmailAdapterClassification(t *testing.T) {
	a := NewEmailAdapterWithDialer("noreply@trip.test", &fakeDialer{err: &textproto.Error{Code: 550, Msg: "no such user"}}, zaptest.NewLogger(t))
	_, err := a.Send(context.Background(), testNotification(), "s", "b", models.Recipient{Email: "ana@example.com"})
	assert.True(t, IsPermanent(err))

	a = NewEmailAdapterWithDialer("noreply@trip.test", &fakeDialer{err: &textproto.Error{Code: 421, Msg: "try later"}}, zaptest.NewLogger(t))
	_, err = a.Send(context.Background(), testNotification(), "s", "b", models.Recipient{Email: "ana@example.com"})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))

	_, err = a.Send(context.Background(), testNotification(), "s", "b", models.Recipient{Email: "not-an-address"})
	assert.True(t, IsPermanent(err))
}

type fakeFCM struct {
	msg *messaging.Message
	err error
}

func (f *fakeFCM) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.msg = m
	if f.err != nil {
		return "", f.err
	}
	return "projects/x/messages/1", nil
}

func TestPushAdapter(t *testing.T) {
	fcm := &fakeFCM{}
	a := NewPushAdapter(fcm, zaptest.NewLogger(t))

	_, err := a.Send(context.Background(), testNotification(), "t", "c", models.Recipient{})
	assert.True(t, IsPermanent(err), "missing token is permanent")
	assert.Nil(t, fcm.msg)

	receipt, err := a.Send(context.Background(), testNotification(), "t", "c", models.Recipient{DeviceToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "projects/x/messages/1", receipt.ExternalID)
	assert.Equal(t, "high", fcm.msg.Android.Priority)
	assert.Equal(t, "10", fcm.msg.APNS.Headers["apns-priority"])
	assert.Equal(t, "n-1", fcm.msg.Data["notificationId"])

	fcm.err = errors.New("boom")
	_, err = a.Send(context.Background(), testNotification(), "t", "c", models.Recipient{DeviceToken: "tok"})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestInAppAdapterNeverFails(t *testing.T) {
	receipt, err := NewInAppAdapter().Send(context.Background(), testNotification(), "", "", models.Recipient{})
	require.NoError(t, err)
	assert.Equal(t, "n-1", receipt.ExternalID)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewInAppAdapter(), nil)
	_, ok := r.Get(models.ChannelInApp)
	assert.True(t, ok)
	_, ok = r.Get(models.ChannelSMS)
	assert.False(t, ok)
}
