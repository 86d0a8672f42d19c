package models

import "time"

// OrderStatus is the booking lifecycle state kept by the order store.
type OrderStatus string

const (
	OrderPending       OrderStatus = "PENDING"
	OrderConfirmed     OrderStatus = "CONFIRMED"
	OrderPaymentFailed OrderStatus = "PAYMENT_FAILED"
	OrderCancelled     OrderStatus = "CANCELLED"
	OrderRefunded      OrderStatus = "REFUNDED"
	OrderCompleted     OrderStatus = "COMPLETED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderPaymentFailed, OrderCancelled, OrderRefunded, OrderCompleted:
		return true
	}
	return false
}

// orderTransitions lists the statuses a payment event may move an order out of.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderConfirmed:     {OrderPending, OrderPaymentFailed},
	OrderPaymentFailed: {OrderPending},
	OrderRefunded:      {OrderConfirmed, OrderCompleted},
	OrderCancelled:     {OrderPending, OrderConfirmed, OrderPaymentFailed},
}

// OrderSourceStatuses returns the statuses from which an order may move to target.
func OrderSourceStatuses(target OrderStatus) []OrderStatus {
	return orderTransitions[target]
}

// Order is the booking as seen by the notification subsystem.
type Order struct {
	ID                   string      `bson:"id" json:"id"`
	UserID               string      `bson:"userId" json:"userId"`
	ConfirmationNumber   string      `bson:"confirmationNumber" json:"confirmationNumber"`
	ServiceName          string      `bson:"serviceName" json:"serviceName"`
	ServiceType          string      `bson:"serviceType" json:"serviceType"`
	ServiceDescription   string      `bson:"serviceDescription,omitempty" json:"serviceDescription,omitempty"`
	BookingDate          string      `bson:"bookingDate" json:"bookingDate"`
	BookingTime          string      `bson:"bookingTime,omitempty" json:"bookingTime,omitempty"`
	TotalAmount          float64     `bson:"totalAmount" json:"totalAmount"`
	Currency             string      `bson:"currency" json:"currency"`
	Status               OrderStatus `bson:"status" json:"status"`
	ContactName          string      `bson:"contactName,omitempty" json:"contactName,omitempty"`
	ContactEmail         string      `bson:"contactEmail,omitempty" json:"contactEmail,omitempty"`
	ContactPhone         string      `bson:"contactPhone,omitempty" json:"contactPhone,omitempty"`
	PaymentTransactionID string      `bson:"paymentTransactionId,omitempty" json:"paymentTransactionId,omitempty"`
	CreatedAt            time.Time   `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time   `bson:"updatedAt" json:"updatedAt"`
}
