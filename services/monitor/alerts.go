package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tripnotify/models"

	"github.com/go-redis/redis/v8"
)

// MaxResolvedAlerts caps the resolved-alert history.
const MaxResolvedAlerts = 100

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	RuleFailureRate    = "channel_failure_rate"
	RulePendingBacklog = "pending_backlog"
)

// Alert is a rule violation. Key identifies the rule instance so the same
// condition is not raised twice while it persists.
type Alert struct {
	Key        string         `json:"key"`
	Rule       string         `json:"rule"`
	Channel    models.Channel `json:"channel,omitempty"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Value      float64        `json:"value"`
	Threshold  float64        `json:"threshold"`
	FiredAt    time.Time      `json:"firedAt"`
	ResolvedAt *time.Time     `json:"resolvedAt,omitempty"`
}

// AlertStore keeps the history of resolved alerts, newest first.
type AlertStore interface {
	AddResolved(ctx context.Context, a Alert) error
	Resolved(ctx context.Context, limit int) ([]Alert, error)
}

// MemoryAlertStore is used when Redis is not configured.
type MemoryAlertStore struct {
	mu     sync.Mutex
	alerts []Alert
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{}
}

func (s *MemoryAlertStore) AddResolved(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append([]Alert{a}, s.alerts...)
	if len(s.alerts) > MaxResolvedAlerts {
		s.alerts = s.alerts[:MaxResolvedAlerts]
	}
	return nil
}

func (s *MemoryAlertStore) Resolved(_ context.Context, limit int) ([]Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.alerts) {
		limit = len(s.alerts)
	}
	return append([]Alert(nil), s.alerts[:limit]...), nil
}

// RedisAlertStore keeps the history in a capped Redis list so it survives restarts.
type RedisAlertStore struct {
	client *redis.Client
	key    string
}

func NewRedisAlertStore(client *redis.Client, key string) *RedisAlertStore {
	if key == "" {
		key = "tripnotify:alerts:resolved"
	}
	return &RedisAlertStore{client: client, key: key}
}

func (s *RedisAlertStore) AddResolved(ctx context.Context, a Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, b)
	pipe.LTrim(ctx, s.key, 0, MaxResolvedAlerts-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store resolved alert: %w", err)
	}
	return nil
}

func (s *RedisAlertStore) Resolved(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 || limit > MaxResolvedAlerts {
		limit = MaxResolvedAlerts
	}
	raw, err := s.client.LRange(ctx, s.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read resolved alerts: %w", err)
	}
	out := make([]Alert, 0, len(raw))
	for _, r := range raw {
		var a Alert
		if err := json.Unmarshal([]byte(r), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
