package notification

import (
	"context"
	"fmt"
	"time"

	notificationRepo "tripnotify/database/repository/notification"
	userRepo "tripnotify/database/repository/user"
	"tripnotify/models"
	"tripnotify/services/channels"
	"tripnotify/services/template"

	"go.uber.org/zap"
)

// NotificationService creates, delivers and administers notifications.
type NotificationService interface {
	CreateAndSendNotification(ctx context.Context, req CreateNotificationRequest) (string, error)
	Dispatch(ctx context.Context, req CreateNotificationRequest) (models.DeliveryResult, error)
	SendNotification(ctx context.Context, id string) (models.DeliveryResult, error)

	ClaimDue(ctx context.Context, limit int) ([]models.Notification, error)
	ClaimNotification(ctx context.Context, id string) (*models.Notification, error)
	ProcessClaimed(ctx context.Context, n *models.Notification) models.DeliveryResult
	DiscardClaimed(ctx context.Context, n *models.Notification, reason string) error

	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	ListNotifications(ctx context.Context, filter models.NotificationFilter) (*models.NotificationPage, error)
	CancelNotification(ctx context.Context, id string) (*models.Notification, error)
	RetryNotifications(ctx context.Context, ids []string) (int64, error)
	MarkAsRead(ctx context.Context, userID string, ids []string) (int64, error)
	UpdateStatus(ctx context.Context, id string, status models.NotificationStatus, errorMessage string) (*models.Notification, error)
	GetStats(ctx context.Context, from, to *time.Time) (*models.NotificationStats, error)
	CleanupOlderThan(ctx context.Context, days int) (int64, error)

	CreateTemplate(ctx context.Context, req TemplateRequest) (*models.NotificationTemplate, error)
	UpdateTemplate(ctx context.Context, id string, req TemplateRequest) (*models.NotificationTemplate, error)
	GetTemplate(ctx context.Context, id string) (*models.NotificationTemplate, error)
	ListTemplates(ctx context.Context, filter models.TemplateFilter) ([]models.NotificationTemplate, error)
	FindActiveTemplate(ctx context.Context, typ models.NotificationType, channel models.Channel) (*models.NotificationTemplate, error)
	ValidateTemplate(content string) template.ValidationResult

	GetUserConfigs(ctx context.Context, userID string) ([]models.NotificationConfig, error)
	UpdateUserConfig(ctx context.Context, userID string, channel models.Channel, update ConfigUpdate) (*models.NotificationConfig, error)
}

// RetryEnqueuer schedules a dispatch attempt for a notification at a given time.
type RetryEnqueuer interface {
	EnqueueDispatch(ctx context.Context, notificationID string, attempt int, at time.Time) error
}

// DefaultSendTimeout bounds a single adapter send when Config leaves it unset.
const DefaultSendTimeout = 15 * time.Second

// Config tunes delivery and retry behaviour.
type Config struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	SendTimeout    time.Duration
	// Lease is how long a claim is honoured before another worker may take over.
	Lease time.Duration
	// Owner identifies this process in claims.
	Owner string
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 30 * time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.Lease <= 0 {
		c.Lease = 2 * time.Minute
	}
	if c.Owner == "" {
		c.Owner = "tripnotify"
	}
	return c
}

// Deps groups the collaborators of DefaultNotificationService.
type Deps struct {
	Notifications notificationRepo.NotificationRepository
	Templates     notificationRepo.TemplateRepository
	Configs       notificationRepo.ConfigRepository
	Users         userRepo.UserRepository
	Adapters      *channels.Registry
	Retries       RetryEnqueuer
	Logger        *zap.Logger
}

// DefaultNotificationService is the production implementation.
type DefaultNotificationService struct {
	notifications notificationRepo.NotificationRepository
	templates     notificationRepo.TemplateRepository
	configs       notificationRepo.ConfigRepository
	users         userRepo.UserRepository
	adapters      *channels.Registry
	retries       RetryEnqueuer
	engine        *template.Engine
	cfg           Config
	logger        *zap.Logger
	now           func() time.Time
}

func NewDefaultNotificationService(deps Deps, cfg Config) (*DefaultNotificationService, error) {
	if deps.Notifications == nil || deps.Templates == nil || deps.Configs == nil {
		return nil, fmt.Errorf("notification service initialization error: repositories are required")
	}
	if deps.Users == nil || deps.Adapters == nil {
		return nil, fmt.Errorf("notification service initialization error: user store or adapters are nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultNotificationService{
		notifications: deps.Notifications,
		templates:     deps.Templates,
		configs:       deps.Configs,
		users:         deps.Users,
		adapters:      deps.Adapters,
		retries:       deps.Retries,
		engine:        template.NewEngine(),
		cfg:           cfg.withDefaults(),
		logger:        logger,
		now:           time.Now,
	}, nil
}

// SetRetryEnqueuer wires the retry queue after construction, since the queue
// worker itself needs the service.
func (s *DefaultNotificationService) SetRetryEnqueuer(r RetryEnqueuer) {
	s.retries = r
}

// SetClock overrides the time source.
func (s *DefaultNotificationService) SetClock(now func() time.Time) {
	s.now = now
}

var _ NotificationService = (*DefaultNotificationService)(nil)
