package notificationRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"tripnotify/models"
)

// MemoryStore keeps every collection in process. It implements all four
// repository interfaces with the same conditional-update semantics as Mongo.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications map[string]*models.Notification
	templates     map[string]*models.NotificationTemplate
	configs       map[string]*models.NotificationConfig
	events        map[string]*models.ProcessedWebhookEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifications: make(map[string]*models.Notification),
		templates:     make(map[string]*models.NotificationTemplate),
		configs:       make(map[string]*models.NotificationConfig),
		events:        make(map[string]*models.ProcessedWebhookEvent),
	}
}

func cloneNotification(n *models.Notification) *models.Notification {
	c := *n
	c.Metadata = n.Metadata.Clone()
	return &c
}

func cloneTemplate(t *models.NotificationTemplate) *models.NotificationTemplate {
	c := *t
	c.Variables = append([]string(nil), t.Variables...)
	return &c
}

func (s *MemoryStore) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.notifications[n.ID]; exists {
		return ErrDuplicate
	}
	s.notifications[n.ID] = cloneNotification(n)
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneNotification(n), nil
}

func matchesFilter(n *models.Notification, f models.NotificationFilter) bool {
	switch {
	case f.UserID != "" && n.UserID != f.UserID:
		return false
	case f.OrderID != "" && n.OrderID != f.OrderID:
		return false
	case f.Type != "" && n.Type != f.Type:
		return false
	case f.Channel != "" && n.Channel != f.Channel:
		return false
	case f.Status != "" && n.Status != f.Status:
		return false
	case f.Priority != "" && n.Priority != f.Priority:
		return false
	case f.From != nil && n.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && !n.CreatedAt.Before(*f.To):
		return false
	}
	return true
}

func sortKey(n *models.Notification, field models.SortField) time.Time {
	var t *time.Time
	switch field {
	case models.SortBySentAt:
		t = n.SentAt
	case models.SortByDeliveredAt:
		t = n.DeliveredAt
	case models.SortByReadAt:
		t = n.ReadAt
	default:
		return n.CreatedAt
	}
	if t == nil {
		return time.Time{}
	}
	return *t
}

func (s *MemoryStore) Find(_ context.Context, filter models.NotificationFilter) (*models.NotificationPage, error) {
	f := filter.Normalize()

	s.mu.RLock()
	var matched []*models.Notification
	for _, n := range s.notifications {
		if matchesFilter(n, f) {
			matched = append(matched, cloneNotification(n))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := sortKey(matched[i], f.SortBy), sortKey(matched[j], f.SortBy)
		if a.Equal(b) {
			return matched[i].ID < matched[j].ID
		}
		if f.SortAsc {
			return a.Before(b)
		}
		return a.After(b)
	})

	total := int64(len(matched))
	start := f.Skip()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	items := make([]models.Notification, 0, end-start)
	for _, n := range matched[start:end] {
		items = append(items, *n)
	}
	return newPage(items, total, f), nil
}

func newPage(items []models.Notification, total int64, f models.NotificationFilter) *models.NotificationPage {
	pages := int((total + int64(f.Limit) - 1) / int64(f.Limit))
	return &models.NotificationPage{Items: items, Total: total, Page: f.Page, Limit: f.Limit, TotalPages: pages}
}

func claimable(n *models.Notification, now time.Time, lease time.Duration) bool {
	if n.Status != models.StatusPending || !n.IsDue(now) {
		return false
	}
	return n.ClaimedAt == nil || n.ClaimedAt.Before(now.Add(-lease))
}

func (s *MemoryStore) ClaimDue(_ context.Context, now time.Time, lease time.Duration, owner string, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.Notification
	for _, n := range s.notifications {
		if claimable(n, now, lease) {
			due = append(due, n)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return dueTime(due[i]).Before(dueTime(due[j]))
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]models.Notification, 0, len(due))
	for _, n := range due {
		claimedAt := now
		n.ClaimedBy = owner
		n.ClaimedAt = &claimedAt
		n.UpdatedAt = now
		out = append(out, *cloneNotification(n))
	}
	return out, nil
}

func dueTime(n *models.Notification) time.Time {
	if n.ScheduledAt != nil {
		return *n.ScheduledAt
	}
	return n.CreatedAt
}

func (s *MemoryStore) ClaimByID(_ context.Context, id string, now time.Time, lease time.Duration, owner string) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !claimable(n, now, lease) {
		return nil, ErrConflict
	}
	claimedAt := now
	n.ClaimedBy = owner
	n.ClaimedAt = &claimedAt
	n.UpdatedAt = now
	return cloneNotification(n), nil
}

func conditionHolds(n *models.Notification, cond UpdateCondition) bool {
	if cond.ClaimedBy != "" && n.ClaimedBy != cond.ClaimedBy {
		return false
	}
	if len(cond.Statuses) == 0 {
		return true
	}
	for _, st := range cond.Statuses {
		if n.Status == st {
			return true
		}
	}
	return false
}

func applyPatch(n *models.Notification, p NotificationPatch) {
	if p.Status != nil {
		n.Status = *p.Status
	}
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.RetryCount != nil {
		n.RetryCount = *p.RetryCount
	}
	if p.ScheduledAt != nil {
		t := *p.ScheduledAt
		n.ScheduledAt = &t
	}
	if p.SentAt != nil {
		t := *p.SentAt
		n.SentAt = &t
	}
	if p.DeliveredAt != nil {
		t := *p.DeliveredAt
		n.DeliveredAt = &t
	}
	if p.ReadAt != nil {
		t := *p.ReadAt
		n.ReadAt = &t
	}
	if p.ErrorMessage != nil {
		n.ErrorMessage = *p.ErrorMessage
	} else if p.ClearError {
		n.ErrorMessage = ""
	}
	if len(p.Metadata) > 0 {
		if n.Metadata == nil {
			n.Metadata = models.Metadata{}
		}
		for k, v := range p.Metadata {
			n.Metadata[k] = v
		}
	}
	if p.ReleaseClaim {
		n.ClaimedBy = ""
		n.ClaimedAt = nil
	}
	n.UpdatedAt = p.updatedAt()
}

func (s *MemoryStore) Apply(_ context.Context, id string, cond UpdateCondition, patch NotificationPatch) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !conditionHolds(n, cond) {
		return nil, ErrConflict
	}
	applyPatch(n, patch)
	return cloneNotification(n), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status models.NotificationStatus, errorMessage string, now time.Time) (*models.Notification, error) {
	cond, patch, err := statusPatch(status, errorMessage, now)
	if err != nil {
		return nil, err
	}
	n, err := s.Apply(ctx, id, cond, patch)
	if err == ErrConflict {
		return nil, ErrInvalidTransition
	}
	return n, err
}

func (s *MemoryStore) MarkRead(_ context.Context, userID string, ids []string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, id := range ids {
		n, ok := s.notifications[id]
		if !ok || n.UserID != userID || n.Channel != models.ChannelInApp || n.ReadAt != nil {
			continue
		}
		readAt := now
		n.ReadAt = &readAt
		n.UpdatedAt = now
		count++
	}
	return count, nil
}

func (s *MemoryStore) RetryFailed(_ context.Context, ids []string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, id := range ids {
		n, ok := s.notifications[id]
		if !ok || n.Status != models.StatusFailed {
			continue
		}
		scheduledAt := now
		n.Status = models.StatusPending
		n.RetryCount = 0
		n.ErrorMessage = ""
		n.ScheduledAt = &scheduledAt
		n.ClaimedBy = ""
		n.ClaimedAt = nil
		n.UpdatedAt = now
		count++
	}
	return count, nil
}

func (s *MemoryStore) Cancel(ctx context.Context, id string, now time.Time) (*models.Notification, error) {
	status := models.StatusCancelled
	return s.Apply(ctx, id, UpdateCondition{Statuses: []models.NotificationStatus{models.StatusPending}}, NotificationPatch{
		Status:       &status,
		ReleaseClaim: true,
		At:           now,
	})
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, n := range s.notifications {
		if n.Status != models.StatusPending && n.CreatedAt.Before(cutoff) {
			delete(s.notifications, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Stats(_ context.Context, from, to *time.Time) (*models.NotificationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := models.NewNotificationStats(from, to)
	f := models.NotificationFilter{From: from, To: to}
	for _, n := range s.notifications {
		if matchesFilter(n, f) {
			stats.Add(n.Status, n.Channel, n.Type, 1)
		}
	}
	return stats, nil
}

// Templates.

func (s *MemoryStore) CreateTemplate(_ context.Context, t *models.NotificationTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.templates {
		if existing.ID == t.ID || existing.Name == t.Name {
			return ErrDuplicate
		}
	}
	s.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (s *MemoryStore) UpdateTemplate(_ context.Context, t *models.NotificationTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.templates {
		if existing.ID != t.ID && existing.Name == t.Name {
			return ErrDuplicate
		}
	}
	s.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (s *MemoryStore) GetTemplate(_ context.Context, id string) (*models.NotificationTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTemplate(t), nil
}

func (s *MemoryStore) FindTemplates(_ context.Context, filter models.TemplateFilter) ([]models.NotificationTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.NotificationTemplate{}
	for _, t := range s.templates {
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.Channel != "" && t.Channel != filter.Channel {
			continue
		}
		if filter.ActiveOnly && !t.IsActive {
			continue
		}
		out = append(out, *cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) FindActiveTemplate(ctx context.Context, typ models.NotificationType, channel models.Channel) (*models.NotificationTemplate, error) {
	list, err := s.FindTemplates(ctx, models.TemplateFilter{Type: typ, Channel: channel, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// Per-user config.

func configKey(userID string, channel models.Channel) string {
	return userID + "|" + string(channel)
}

func (s *MemoryStore) GetConfigs(_ context.Context, userID string) ([]models.NotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.NotificationConfig{}
	for _, ch := range models.AllChannels {
		if c, ok := s.configs[configKey(userID, ch)]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *MemoryStore) EnsureConfig(_ context.Context, userID string, channel models.Channel, now time.Time) (*models.NotificationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := configKey(userID, channel)
	if c, ok := s.configs[key]; ok {
		out := *c
		return &out, nil
	}
	c := models.DefaultNotificationConfig(userID, channel, now)
	s.configs[key] = &c
	out := c
	return &out, nil
}

func (s *MemoryStore) UpsertConfig(_ context.Context, cfg *models.NotificationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := configKey(cfg.UserID, cfg.Channel)
	c := *cfg
	if existing, ok := s.configs[key]; ok {
		c.CreatedAt = existing.CreatedAt
	}
	s.configs[key] = &c
	return nil
}

// Webhook events.

func (s *MemoryStore) Reserve(_ context.Context, ev *models.ProcessedWebhookEvent, staleBefore time.Time) (bool, *models.ProcessedWebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, exists := s.events[ev.Key]; exists {
		if cur.Status == models.WebhookEventProcessing && cur.ReservedAt.Before(staleBefore) {
			cur.ReservedAt = ev.ReservedAt
			return true, nil, nil
		}
		held := *cur
		return false, &held, nil
	}
	c := *ev
	c.Status = models.WebhookEventProcessing
	s.events[ev.Key] = &c
	return true, nil, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[key]
	if !ok {
		return ErrNotFound
	}
	completedAt := now
	ev.Status = models.WebhookEventCompleted
	ev.CompletedAt = &completedAt
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string, reservedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev, ok := s.events[key]; ok && ev.Status == models.WebhookEventProcessing && ev.ReservedAt.Equal(reservedAt) {
		delete(s.events, key)
	}
	return nil
}

var (
	_ NotificationRepository = (*MemoryStore)(nil)
	_ TemplateRepository     = (*MemoryStore)(nil)
	_ ConfigRepository       = (*MemoryStore)(nil)
	_ WebhookEventRepository = (*MemoryStore)(nil)
)
