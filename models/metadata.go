package models

import (
	"sort"
	"strings"
)

// Metadata is the typed key-value bag attached to a notification. Values are
// stored as strings; the set of accepted keys is closed per notification type.
type Metadata map[string]string

// Known metadata keys.
const (
	MetaExternalID         = "externalId"
	MetaProvider           = "provider"
	MetaCustomerName       = "customerName"
	MetaCustomerEmail      = "customerEmail"
	MetaCustomerPhone      = "customerPhone"
	MetaConfirmationNumber = "confirmationNumber"
	MetaServiceName        = "serviceName"
	MetaServiceType        = "serviceType"
	MetaServiceDescription = "serviceDescription"
	MetaBookingDate        = "bookingDate"
	MetaBookingTime        = "bookingTime"
	MetaTotalAmount        = "totalAmount"
	MetaCurrency           = "currency"
	MetaOldStatus          = "oldStatus"
	MetaNewStatus          = "newStatus"
	MetaChangeReason       = "changeReason"
	MetaRefundAmount       = "refundAmount"
	MetaReminderOffset     = "reminderOffsetMinutes"
	MetaTransactionID      = "transactionId"
	MetaPaymentProvider    = "paymentProvider"
	MetaAnnouncementID     = "announcementId"
	MetaLink               = "link"
	MetaPromoCode          = "promoCode"
	MetaExpiresAt          = "expiresAt"
	MetaIPAddress          = "ipAddress"
	MetaDevice             = "device"
	MetaLocation           = "location"
	MetaEventTime          = "eventTime"
)

// systemMetadataKeys are written by the dispatch pipeline and accepted on every type.
var systemMetadataKeys = []string{MetaExternalID, MetaProvider}

var bookingMetadataKeys = []string{
	MetaCustomerName, MetaCustomerEmail, MetaCustomerPhone,
	MetaConfirmationNumber, MetaServiceName, MetaServiceType, MetaServiceDescription,
	MetaBookingDate, MetaBookingTime, MetaTotalAmount, MetaCurrency,
}

var statusChangeMetadataKeys = []string{MetaOldStatus, MetaNewStatus, MetaChangeReason, MetaRefundAmount}

var paymentMetadataKeys = []string{MetaTransactionID, MetaPaymentProvider}

var metadataKeysByType = map[NotificationType][]string{
	TypeBookingConfirmed:   concatKeys(bookingMetadataKeys, statusChangeMetadataKeys, paymentMetadataKeys),
	TypeOrderConfirmed:     concatKeys(bookingMetadataKeys, statusChangeMetadataKeys, paymentMetadataKeys),
	TypeOrderCancelled:     concatKeys(bookingMetadataKeys, statusChangeMetadataKeys, paymentMetadataKeys),
	TypeOrderRefunded:      concatKeys(bookingMetadataKeys, statusChangeMetadataKeys, paymentMetadataKeys),
	TypePaymentSuccess:     concatKeys(bookingMetadataKeys, statusChangeMetadataKeys, paymentMetadataKeys),
	TypePaymentFailed:      concatKeys(bookingMetadataKeys, statusChangeMetadataKeys, paymentMetadataKeys),
	TypeBookingReminder:    concatKeys(bookingMetadataKeys, []string{MetaReminderOffset}),
	TypeSystemAnnouncement: {MetaCustomerName, MetaAnnouncementID, MetaLink},
	TypePromotional:        {MetaCustomerName, MetaPromoCode, MetaLink, MetaExpiresAt},
	TypeSecurityAlert:      {MetaCustomerName, MetaIPAddress, MetaDevice, MetaLocation, MetaEventTime},
}

func concatKeys(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// AllowedMetadataKeys returns the sorted set of metadata keys accepted for t.
func AllowedMetadataKeys(t NotificationType) []string {
	keys := append(append([]string{}, systemMetadataKeys...), metadataKeysByType[t]...)
	sort.Strings(keys)
	return keys
}

// UnknownKeys returns the keys of m that are not accepted for t, sorted.
func (m Metadata) UnknownKeys(t NotificationType) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return UnknownMetadataKeys(t, keys)
}

// UnknownMetadataKeys returns the keys not accepted for t, sorted and deduplicated.
func UnknownMetadataKeys(t NotificationType, keys []string) []string {
	allowed := make(map[string]bool)
	for _, k := range AllowedMetadataKeys(t) {
		allowed[k] = true
	}
	var unknown []string
	for _, k := range keys {
		if !allowed[k] {
			allowed[k] = true
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// Vars exposes the metadata as a template variable map.
func (m Metadata) Vars() map[string]any {
	vars := make(map[string]any, len(m))
	for k, v := range m {
		vars[k] = v
	}
	return vars
}

// Clone returns a copy that can be mutated independently.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Get returns the trimmed value for key.
func (m Metadata) Get(key string) string {
	return strings.TrimSpace(m[key])
}
