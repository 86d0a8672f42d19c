package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	DatabaseName      string `mapstructure:"DATABASE_NAME"`
	StorageDriver     string `mapstructure:"STORAGE_DRIVER"`
	Env               string `mapstructure:"ENV"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Dispatch and retry.
	NotifyMaxRetries     int           `mapstructure:"NOTIFY_MAX_RETRIES"`
	NotifyRetryBaseDelay time.Duration `mapstructure:"NOTIFY_RETRY_BASE_DELAY"`
	NotifyRetryMaxDelay  time.Duration `mapstructure:"NOTIFY_RETRY_MAX_DELAY"`
	NotifySendTimeout    time.Duration `mapstructure:"NOTIFY_SEND_TIMEOUT"`
	FanoutChannelTimeout time.Duration `mapstructure:"FANOUT_CHANNEL_TIMEOUT"`

	// Scheduler.
	SchedulerInterval    time.Duration `mapstructure:"SCHEDULER_INTERVAL"`
	SchedulerBatchSize   int           `mapstructure:"SCHEDULER_BATCH_SIZE"`
	SchedulerLease       time.Duration `mapstructure:"SCHEDULER_LEASE"`
	SchedulerConcurrency int           `mapstructure:"SCHEDULER_CONCURRENCY"`
	ReminderOffsetMins   int           `mapstructure:"REMINDER_OFFSET_MINUTES"`

	// Monitor and retention.
	MonitorInterval                time.Duration `mapstructure:"MONITOR_INTERVAL"`
	MonitorWindow                  time.Duration `mapstructure:"MONITOR_WINDOW"`
	MonitorFailureRateThreshold    float64       `mapstructure:"MONITOR_FAILURE_RATE_THRESHOLD"`
	MonitorMinSamples              int64         `mapstructure:"MONITOR_MIN_SAMPLES"`
	MonitorPendingBacklogThreshold int64         `mapstructure:"MONITOR_PENDING_BACKLOG_THRESHOLD"`
	RetentionDays                  int           `mapstructure:"RETENTION_DAYS"`
	CleanupInterval                time.Duration `mapstructure:"CLEANUP_INTERVAL"`

	// SMS gateway.
	SMSEndpoint        string  `mapstructure:"SMS_ENDPOINT"`
	SMSAccessKeyID     string  `mapstructure:"SMS_ACCESS_KEY_ID"`
	SMSAccessKeySecret string  `mapstructure:"SMS_ACCESS_KEY_SECRET"`
	SMSSignName        string  `mapstructure:"SMS_SIGN_NAME"`
	SMSTemplateCode    string  `mapstructure:"SMS_TEMPLATE_CODE"`
	SMSRatePerSecond   float64 `mapstructure:"SMS_RATE_PER_SECOND"`

	// SMTP.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// Firebase service account for push.
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`

	// Payment webhooks.
	AlipayPublicKey          string `mapstructure:"ALIPAY_PUBLIC_KEY"`
	WechatPlatformPublicKey  string `mapstructure:"WECHAT_PLATFORM_PUBLIC_KEY"`
	WechatAPIV3Key           string `mapstructure:"WECHAT_API_V3_KEY"`
	WebhookSecret            string `mapstructure:"WEBHOOK_SECRET"`
	StripeWebhookSecret      string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	WebhookNotifyChannelsRaw string `mapstructure:"WEBHOOK_NOTIFY_CHANNELS"`

	// Unfinished webhook reservations older than this may be taken over.
	WebhookReservationLease time.Duration `mapstructure:"WEBHOOK_RESERVATION_LEASE"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func setDefaults() {
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "tripnotify")
	viper.SetDefault("STORAGE_DRIVER", "mongo")
	viper.SetDefault("JWT_SECRET", "")

	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_QUEUE_DB", 1)

	viper.SetDefault("NOTIFY_MAX_RETRIES", 3)
	viper.SetDefault("NOTIFY_RETRY_BASE_DELAY", "30s")
	viper.SetDefault("NOTIFY_RETRY_MAX_DELAY", "30m")
	viper.SetDefault("NOTIFY_SEND_TIMEOUT", "15s")
	viper.SetDefault("FANOUT_CHANNEL_TIMEOUT", "20s")

	viper.SetDefault("SCHEDULER_INTERVAL", "5s")
	viper.SetDefault("SCHEDULER_BATCH_SIZE", 50)
	viper.SetDefault("SCHEDULER_LEASE", "2m")
	viper.SetDefault("SCHEDULER_CONCURRENCY", 8)
	viper.SetDefault("REMINDER_OFFSET_MINUTES", 1440)

	viper.SetDefault("MONITOR_INTERVAL", "60s")
	viper.SetDefault("MONITOR_WINDOW", "15m")
	viper.SetDefault("MONITOR_FAILURE_RATE_THRESHOLD", 0.2)
	viper.SetDefault("MONITOR_MIN_SAMPLES", 20)
	viper.SetDefault("MONITOR_PENDING_BACKLOG_THRESHOLD", 500)
	viper.SetDefault("RETENTION_DAYS", 90)
	viper.SetDefault("CLEANUP_INTERVAL", "24h")

	viper.SetDefault("SMS_ENDPOINT", "https://dysmsapi.aliyuncs.com/")
	viper.SetDefault("SMS_ACCESS_KEY_ID", "")
	viper.SetDefault("SMS_ACCESS_KEY_SECRET", "")
	viper.SetDefault("SMS_SIGN_NAME", "")
	viper.SetDefault("SMS_TEMPLATE_CODE", "")
	viper.SetDefault("SMS_RATE_PER_SECOND", 10)

	viper.SetDefault("SMTP_HOST", "localhost")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("SMTP_USERNAME", "")
	viper.SetDefault("SMTP_PASSWORD", "")
	viper.SetDefault("SMTP_FROM", "no-reply@localhost")

	viper.SetDefault("FIREBASE_CREDENTIALS_FILE", "")

	viper.SetDefault("ALIPAY_PUBLIC_KEY", "")
	viper.SetDefault("WECHAT_PLATFORM_PUBLIC_KEY", "")
	viper.SetDefault("WECHAT_API_V3_KEY", "")
	viper.SetDefault("WEBHOOK_SECRET", "")
	viper.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	viper.SetDefault("WEBHOOK_NOTIFY_CHANNELS", "IN_APP,EMAIL,SMS")
	viper.SetDefault("WEBHOOK_RESERVATION_LEASE", "2m")
}

// WebhookNotifyChannels returns the configured fan-out channel names.
func (c Config) WebhookNotifyChannels() []string {
	var out []string
	for _, part := range strings.Split(c.WebhookNotifyChannelsRaw, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

// UseMemoryStorage reports whether repositories should be kept in process.
func UseMemoryStorage() bool {
	return strings.EqualFold(AppConfig.StorageDriver, "memory")
}
