// Package monitor samples delivery statistics, raises alerts and reports health.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tripnotify/models"
	"tripnotify/utils"

	"go.uber.org/zap"
)

// StatsSource provides windowed notification counts.
type StatsSource interface {
	GetStats(ctx context.Context, from, to *time.Time) (*models.NotificationStats, error)
}

// Rules are the alert thresholds.
type Rules struct {
	// FailureRateThreshold is the failed share of finished deliveries per channel.
	FailureRateThreshold    float64
	// MinSamples is the number of finished deliveries a channel needs before its rate counts.
	MinSamples              int64
	PendingBacklogThreshold int64
}

type ChannelSnapshot struct {
	Total       int64   `json:"total"`
	Sent        int64   `json:"sent"`
	Delivered   int64   `json:"delivered"`
	Failed      int64   `json:"failed"`
	Pending     int64   `json:"pending"`
	Cancelled   int64   `json:"cancelled"`
	FailureRate float64 `json:"failureRate"`
}

// Snapshot is one sample of the monitor window.
type Snapshot struct {
	TakenAt   time.Time                           `json:"takenAt"`
	Window    string                              `json:"window"`
	Total     int64                               `json:"total"`
	Pending   int64                               `json:"pending"`
	ByChannel map[models.Channel]ChannelSnapshot  `json:"byChannel"`
	ByStatus  map[models.NotificationStatus]int64 `json:"byStatus"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthReport is served on /health.
type HealthReport struct {
	Status         string             `json:"status"`
	Snapshot       *Snapshot          `json:"snapshot,omitempty"`
	ActiveAlerts   []Alert            `json:"activeAlerts"`
	ResolvedAlerts []Alert            `json:"resolvedAlerts"`
	Dependencies   utils.HealthStatus `json:"dependencies"`
}

type Monitor struct {
	stats    StatsSource
	store    AlertStore
	rules    Rules
	window   time.Duration
	interval time.Duration
	health   func() utils.HealthStatus
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	last   *Snapshot
	active map[string]Alert
}

func NewMonitor(stats StatsSource, store AlertStore, rules Rules, window, interval time.Duration, logger *zap.Logger) *Monitor {
	if store == nil {
		store = NewMemoryAlertStore()
	}
	if window <= 0 {
		window = time.Hour
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		stats:    stats,
		store:    store,
		rules:    rules,
		window:   window,
		interval: interval,
		health:   utils.GetHealthStatus,
		logger:   logger,
		now:      time.Now,
		active:   make(map[string]Alert),
	}
}

// SetClock overrides the time source.
func (m *Monitor) SetClock(now func() time.Time) { m.now = now }

// SetHealthSource overrides where dependency health is read from.
func (m *Monitor) SetHealthSource(f func() utils.HealthStatus) { m.health = f }

// Start samples on every interval until ctx is cancelled. It blocks.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.sampleAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleAndLog(ctx)
		}
	}
}

// sampleAndLog runs one sample. A panic is logged and the next tick tries again.
func (m *Monitor) sampleAndLog(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("[Monitor] Panic while sampling",
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
		}
	}()
	if _, err := m.Sample(ctx); err != nil {
		m.logger.Error("[Monitor] Sample failed", zap.Error(err))
	}
}

// Sample takes a snapshot, evaluates the rules and updates alert state.
func (m *Monitor) Sample(ctx context.Context) (*Snapshot, error) {
	to := m.now()
	from := to.Add(-m.window)
	stats, err := m.stats.GetStats(ctx, &from, &to)
	if err != nil {
		return nil, fmt.Errorf("monitor sample: %w", err)
	}
	snap := buildSnapshot(stats, m.window, to)
	exportGauges(stats)

	firing := Evaluate(snap, m.rules)
	m.reconcile(ctx, firing, to)

	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()
	return snap, nil
}

func buildSnapshot(stats *models.NotificationStats, window time.Duration, at time.Time) *Snapshot {
	snap := &Snapshot{
		TakenAt:   at,
		Window:    window.String(),
		Total:     stats.Total,
		Pending:   stats.ByStatus[models.StatusPending],
		ByChannel: make(map[models.Channel]ChannelSnapshot),
		ByStatus:  make(map[models.NotificationStatus]int64),
	}
	for s, n := range stats.ByStatus {
		snap.ByStatus[s] = n
	}
	for ch, byStatus := range stats.ByChannelStatus {
		cs := ChannelSnapshot{
			Sent:      byStatus[models.StatusSent],
			Delivered: byStatus[models.StatusDelivered],
			Failed:    byStatus[models.StatusFailed],
			Pending:   byStatus[models.StatusPending],
			Cancelled: byStatus[models.StatusCancelled],
		}
		cs.Total = cs.Sent + cs.Delivered + cs.Failed + cs.Pending + cs.Cancelled
		if finished := cs.Sent + cs.Delivered + cs.Failed; finished > 0 {
			cs.FailureRate = float64(cs.Failed) / float64(finished)
		}
		snap.ByChannel[ch] = cs
	}
	return snap
}

func exportGauges(stats *models.NotificationStats) {
	utils.WindowNotifications.Reset()
	for ch, byStatus := range stats.ByChannelStatus {
		for s, n := range byStatus {
			utils.WindowNotifications.WithLabelValues(string(ch), string(s)).Set(float64(n))
		}
	}
}

// Evaluate applies the rules to a snapshot and returns the alerts that fire,
// keyed by rule instance. FiredAt is left for the caller to fill.
func Evaluate(snap *Snapshot, rules Rules) map[string]Alert {
	firing := make(map[string]Alert)

	if rules.FailureRateThreshold > 0 {
		for ch, cs := range snap.ByChannel {
			finished := cs.Sent + cs.Delivered + cs.Failed
			if finished < rules.MinSamples || finished == 0 || cs.FailureRate < rules.FailureRateThreshold {
				continue
			}
			severity := SeverityWarning
			if cs.FailureRate >= 2*rules.FailureRateThreshold || cs.FailureRate >= 0.999 {
				severity = SeverityCritical
			}
			key := RuleFailureRate + ":" + string(ch)
			firing[key] = Alert{
				Key:       key,
				Rule:      RuleFailureRate,
				Channel:   ch,
				Severity:  severity,
				Message:   fmt.Sprintf("%s failure rate %.1f%% over %d deliveries", ch, cs.FailureRate*100, finished),
				Value:     cs.FailureRate,
				Threshold: rules.FailureRateThreshold,
			}
		}
	}

	if rules.PendingBacklogThreshold > 0 && snap.Pending >= rules.PendingBacklogThreshold {
		severity := SeverityWarning
		if snap.Pending >= 2*rules.PendingBacklogThreshold {
			severity = SeverityCritical
		}
		firing[RulePendingBacklog] = Alert{
			Key:       RulePendingBacklog,
			Rule:      RulePendingBacklog,
			Severity:  severity,
			Message:   fmt.Sprintf("%d notifications pending", snap.Pending),
			Value:     float64(snap.Pending),
			Threshold: float64(rules.PendingBacklogThreshold),
		}
	}
	return firing
}

// reconcile keeps alerts that still fire, adds new ones and moves cleared
// ones to the resolved history.
func (m *Monitor) reconcile(ctx context.Context, firing map[string]Alert, now time.Time) {
	resolved := m.updateActive(firing, now)
	for _, a := range resolved {
		m.logger.Info("[Monitor] Alert resolved", zap.String("rule", a.Rule), zap.String("key", a.Key))
		if err := m.store.AddResolved(ctx, a); err != nil {
			m.logger.Warn("[Monitor] Failed to persist resolved alert", zap.Error(err))
		}
	}
}

// updateActive swaps in the firing set and returns the alerts that cleared.
func (m *Monitor) updateActive(firing map[string]Alert, now time.Time) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var resolved []Alert
	for key, a := range m.active {
		if _, still := firing[key]; still {
			continue
		}
		resolvedAt := now
		a.ResolvedAt = &resolvedAt
		resolved = append(resolved, a)
		delete(m.active, key)
	}
	for key, a := range firing {
		if prev, ok := m.active[key]; ok {
			a.FiredAt = prev.FiredAt
		} else {
			a.FiredAt = now
			m.logger.Warn("[Monitor] Alert fired",
				zap.String("rule", a.Rule),
				zap.String("severity", string(a.Severity)),
				zap.String("message", a.Message),
			)
		}
		m.active[key] = a
	}
	utils.ActiveAlerts.Set(float64(len(m.active)))
	return resolved
}

// ActiveAlerts returns the firing alerts ordered by key.
func (m *Monitor) ActiveAlerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Alert, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Report builds the health report from the latest sample.
func (m *Monitor) Report(ctx context.Context) HealthReport {
	m.mu.RLock()
	snap := m.last
	m.mu.RUnlock()

	active := m.ActiveAlerts()
	resolved, err := m.store.Resolved(ctx, 20)
	if err != nil {
		m.logger.Warn("[Monitor] Failed to load resolved alerts", zap.Error(err))
		resolved = []Alert{}
	}
	deps := m.health()

	status := StatusHealthy
	for _, a := range active {
		if a.Severity == SeverityCritical {
			status = StatusUnhealthy
			break
		}
		status = StatusDegraded
	}
	if !deps.Healthy() {
		status = StatusUnhealthy
	}
	return HealthReport{
		Status:         status,
		Snapshot:       snap,
		ActiveAlerts:   active,
		ResolvedAlerts: resolved,
		Dependencies:   deps,
	}
}
