package webhook

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"tripnotify/models"
)

const (
	ProviderAlipay  = "alipay"
	ProviderWechat  = "wechat"
	ProviderGeneric = "generic"
	ProviderStripe  = "stripe"
)

// Verifier authenticates a raw callback and turns it into a PaymentEvent.
// Implementations fail closed: any doubt about the signature is an error.
type Verifier interface {
	Provider() string
	Verify(body []byte, signature string, headers http.Header) (*models.PaymentEvent, error)
}

// ParseRSAPublicKey accepts a PEM block or bare base64 DER, in PKIX or PKCS#1 form.
func ParseRSAPublicKey(raw string) (*rsa.PublicKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty public key")
	}
	var der []byte
	if block, _ := pem.Decode([]byte(raw)); block != nil {
		der = block.Bytes
	} else {
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("public key is neither PEM nor base64: %w", err)
		}
		der = b
	}
	if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
		rsaKey, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not RSA")
		}
		return rsaKey, nil
	}
	if cert, err := x509.ParseCertificate(der); err == nil {
		rsaKey, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("certificate key is not RSA")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PublicKey(der)
}

// parseAmount reads a decimal amount such as "88.00".
func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("amount is empty")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errors.New("amount is negative")
	}
	return v, nil
}

// headerValue returns the first non-empty header among names.
func headerValue(h http.Header, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(h.Get(n)); v != "" {
			return v
		}
	}
	return ""
}
