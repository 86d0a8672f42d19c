package models

import "time"

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// SortField is a notification timestamp usable for ordering.
type SortField string

const (
	SortByCreatedAt   SortField = "createdAt"
	SortBySentAt      SortField = "sentAt"
	SortByDeliveredAt SortField = "deliveredAt"
	SortByReadAt      SortField = "readAt"
)

func (f SortField) Valid() bool {
	switch f {
	case SortByCreatedAt, SortBySentAt, SortByDeliveredAt, SortByReadAt:
		return true
	}
	return false
}

// NotificationFilter selects and paginates notifications. Zero values mean "any".
type NotificationFilter struct {
	UserID   string             `form:"userId" json:"userId,omitempty"`
	OrderID  string             `form:"orderId" json:"orderId,omitempty"`
	Type     NotificationType   `form:"type" json:"type,omitempty"`
	Channel  Channel            `form:"channel" json:"channel,omitempty"`
	Status   NotificationStatus `form:"status" json:"status,omitempty"`
	Priority Priority           `form:"priority" json:"priority,omitempty"`
	From     *time.Time         `form:"from" time_format:"2006-01-02T15:04:05Z07:00" json:"from,omitempty"`
	To       *time.Time         `form:"to" time_format:"2006-01-02T15:04:05Z07:00" json:"to,omitempty"`
	Page     int                `form:"page" json:"page,omitempty"`
	Limit    int                `form:"limit" json:"limit,omitempty"`
	SortBy   SortField          `form:"sortBy" json:"sortBy,omitempty"`
	SortAsc  bool               `form:"asc" json:"asc,omitempty"`
}

// Normalize applies pagination and sort defaults and clamps the limit.
func (f NotificationFilter) Normalize() NotificationFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if !f.SortBy.Valid() {
		f.SortBy = SortByCreatedAt
	}
	return f
}

// Skip is the number of rows to skip for the current page.
func (f NotificationFilter) Skip() int {
	return (f.Page - 1) * f.Limit
}

// NotificationPage is one page of query results.
type NotificationPage struct {
	Items      []Notification `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// NotificationStats aggregates notification counts over a window.
type NotificationStats struct {
	Total           int64                                    `json:"total"`
	ByStatus        map[NotificationStatus]int64             `json:"byStatus"`
	ByChannel       map[Channel]int64                        `json:"byChannel"`
	ByType          map[NotificationType]int64               `json:"byType"`
	ByChannelStatus map[Channel]map[NotificationStatus]int64 `json:"byChannelStatus"`
	From            *time.Time                               `json:"from,omitempty"`
	To              *time.Time                               `json:"to,omitempty"`
}

// NewNotificationStats returns stats with all maps initialised.
func NewNotificationStats(from, to *time.Time) *NotificationStats {
	return &NotificationStats{
		ByStatus:        map[NotificationStatus]int64{},
		ByChannel:       map[Channel]int64{},
		ByType:          map[NotificationType]int64{},
		ByChannelStatus: map[Channel]map[NotificationStatus]int64{},
		From:            from,
		To:              to,
	}
}

// Add counts n notifications with the given attributes.
func (s *NotificationStats) Add(status NotificationStatus, channel Channel, typ NotificationType, n int64) {
	s.Total += n
	s.ByStatus[status] += n
	s.ByChannel[channel] += n
	s.ByType[typ] += n
	if s.ByChannelStatus[channel] == nil {
		s.ByChannelStatus[channel] = map[NotificationStatus]int64{}
	}
	s.ByChannelStatus[channel][status] += n
}
