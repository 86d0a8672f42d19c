package booking

import (
	"strconv"

	"tripnotify/models"
)

// BookingData is the common envelope every booking notification carries.
type BookingData struct {
	ConfirmationNumber string  `json:"confirmationNumber"`
	ServiceName        string  `json:"serviceName"`
	ServiceType        string  `json:"serviceType"`
	ServiceDescription string  `json:"serviceDescription,omitempty"`
	BookingDate        string  `json:"bookingDate"`
	BookingTime        string  `json:"bookingTime,omitempty"`
	TotalAmount        float64 `json:"totalAmount"`
	Currency           string  `json:"currency"`
	CustomerName       string  `json:"customerName"`
	CustomerEmail      string  `json:"customerEmail,omitempty"`
	CustomerPhone      string  `json:"customerPhone,omitempty"`
}

// newBookingData merges the order with the account profile. Contact details on
// the order win since they are what the traveller entered at checkout.
func newBookingData(o *models.Order, contact *models.UserContact) BookingData {
	d := BookingData{
		ConfirmationNumber: o.ConfirmationNumber,
		ServiceName:        o.ServiceName,
		ServiceType:        o.ServiceType,
		ServiceDescription: o.ServiceDescription,
		BookingDate:        o.BookingDate,
		BookingTime:        o.BookingTime,
		TotalAmount:        o.TotalAmount,
		Currency:           o.Currency,
		CustomerName:       o.ContactName,
		CustomerEmail:      o.ContactEmail,
		CustomerPhone:      o.ContactPhone,
	}
	if contact != nil {
		if d.CustomerName == "" {
			d.CustomerName = contact.Name
		}
		if d.CustomerEmail == "" {
			d.CustomerEmail = contact.Email
		}
		if d.CustomerPhone == "" {
			d.CustomerPhone = contact.Phone
		}
	}
	if d.CustomerName == "" {
		d.CustomerName = "Traveller"
	}
	return d
}

// Metadata flattens the envelope. Empty optional fields are left out.
func (d BookingData) Metadata() models.Metadata {
	m := models.Metadata{
		models.MetaConfirmationNumber: d.ConfirmationNumber,
		models.MetaServiceName:        d.ServiceName,
		models.MetaServiceType:        d.ServiceType,
		models.MetaBookingDate:        d.BookingDate,
		models.MetaTotalAmount:        formatAmount(d.TotalAmount),
		models.MetaCurrency:           d.Currency,
		models.MetaCustomerName:       d.CustomerName,
	}
	optional := map[string]string{
		models.MetaServiceDescription: d.ServiceDescription,
		models.MetaBookingTime:        d.BookingTime,
		models.MetaCustomerEmail:      d.CustomerEmail,
		models.MetaCustomerPhone:      d.CustomerPhone,
	}
	for k, v := range optional {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
