// File: database/repository/notification/settingsMongo.go
package notificationRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripnotify/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoTemplateRepo implements TemplateRepository using MongoDB.
type MongoTemplateRepo struct {
	coll *mongo.Collection
}

func NewMongoTemplateRepo(db *mongo.Database, logger *zap.Logger) *MongoTemplateRepo {
	repo := &MongoTemplateRepo{coll: db.Collection("notification_templates")}
	if err := repo.ensureIndexes(); err != nil {
		logger.Warn("failed to create template indexes", zap.Error(err))
	}
	return repo
}

func (r *MongoTemplateRepo) CreateTemplate(ctx context.Context, t *models.NotificationTemplate) error {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *MongoTemplateRepo) UpdateTemplate(ctx context.Context, t *models.NotificationTemplate) error {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"name":      t.Name,
		"type":      t.Type,
		"channel":   t.Channel,
		"title":     t.Title,
		"content":   t.Content,
		"variables": t.Variables,
		"isActive":  t.IsActive,
		"updatedAt": t.UpdatedAt,
	}}
	result, err := r.coll.UpdateOne(ctx, bson.M{"id": t.ID}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update template with id %s: %w", t.ID, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoTemplateRepo) GetTemplate(ctx context.Context, id string) (*models.NotificationTemplate, error) {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	var t models.NotificationTemplate
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch template %s: %w", id, err)
	}
	return &t, nil
}

func (r *MongoTemplateRepo) FindTemplates(ctx context.Context, filter models.TemplateFilter) ([]models.NotificationTemplate, error) {
	ctx, cancel := withTimeout(ctx, 10*time.Second)
	defer cancel()

	query := bson.M{}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.Channel != "" {
		query["channel"] = filter.Channel
	}
	if filter.ActiveOnly {
		query["isActive"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "id", Value: 1}})
	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.NotificationTemplate{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}
	return out, nil
}

func (r *MongoTemplateRepo) FindActiveTemplate(ctx context.Context, typ models.NotificationType, channel models.Channel) (*models.NotificationTemplate, error) {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	var t models.NotificationTemplate
	err := r.coll.FindOne(ctx, bson.M{"type": typ, "channel": channel, "isActive": true}, opts).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active template for %s/%s: %w", typ, channel, err)
	}
	return &t, nil
}

// MongoConfigRepo implements ConfigRepository using MongoDB.
type MongoConfigRepo struct {
	coll *mongo.Collection
}

func NewMongoConfigRepo(db *mongo.Database, logger *zap.Logger) *MongoConfigRepo {
	repo := &MongoConfigRepo{coll: db.Collection("notification_configs")}
	if err := repo.ensureIndexes(); err != nil {
		logger.Warn("failed to create notification config indexes", zap.Error(err))
	}
	return repo
}

func (r *MongoConfigRepo) GetConfigs(ctx context.Context, userID string) ([]models.NotificationConfig, error) {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := r.coll.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to query configs for user %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	out := []models.NotificationConfig{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode configs for user %s: %w", userID, err)
	}
	return out, nil
}

// EnsureConfig upserts with $setOnInsert so concurrent first reads create one row.
func (r *MongoConfigRepo) EnsureConfig(ctx context.Context, userID string, channel models.Channel, now time.Time) (*models.NotificationConfig, error) {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	def := models.DefaultNotificationConfig(userID, channel, now)
	update := bson.M{"$setOnInsert": bson.M{
		"isEnabled":   def.IsEnabled,
		"preferences": def.Preferences,
		"createdAt":   def.CreatedAt,
		"updatedAt":   def.UpdatedAt,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var cfg models.NotificationConfig
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"userId": userID, "channel": channel}, update, opts).Decode(&cfg)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// lost the upsert race; the winner's row is there now
		err = r.coll.FindOne(ctx, bson.M{"userId": userID, "channel": channel}).Decode(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to ensure config %s/%s: %w", userID, channel, err)
	}
	return &cfg, nil
}

func (r *MongoConfigRepo) UpsertConfig(ctx context.Context, cfg *models.NotificationConfig) error {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"isEnabled":   cfg.IsEnabled,
			"preferences": cfg.Preferences,
			"updatedAt":   cfg.UpdatedAt,
		},
		"$setOnInsert": bson.M{"createdAt": cfg.CreatedAt},
	}
	_, err := r.coll.UpdateOne(ctx, bson.M{"userId": cfg.UserID, "channel": cfg.Channel}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save config %s/%s: %w", cfg.UserID, cfg.Channel, err)
	}
	return nil
}

// MongoWebhookEventRepo implements WebhookEventRepository using MongoDB.
type MongoWebhookEventRepo struct {
	coll *mongo.Collection
}

func NewMongoWebhookEventRepo(db *mongo.Database, logger *zap.Logger) *MongoWebhookEventRepo {
	repo := &MongoWebhookEventRepo{coll: db.Collection("webhook_events")}
	if err := repo.ensureIndexes(); err != nil {
		logger.Warn("failed to create webhook event indexes", zap.Error(err))
	}
	return repo
}

// Reserve relies on the unique key index: the first insert wins. A loser may
// still take the key over when the holder's reservation has gone stale.
func (r *MongoWebhookEventRepo) Reserve(ctx context.Context, ev *models.ProcessedWebhookEvent, staleBefore time.Time) (bool, *models.ProcessedWebhookEvent, error) {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	doc := *ev
	doc.Status = models.WebhookEventProcessing
	_, err := r.coll.InsertOne(ctx, doc)
	if err == nil {
		return true, nil, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, nil, fmt.Errorf("failed to reserve webhook event %s: %w", ev.Key, err)
	}

	takeover := bson.M{
		"key":    ev.Key,
		"status": models.WebhookEventProcessing,
		"$or": bson.A{
			bson.M{"reservedAt": bson.M{"$lt": staleBefore}},
			bson.M{"reservedAt": bson.M{"$exists": false}},
		},
	}
	err = r.coll.FindOneAndUpdate(ctx, takeover, bson.M{"$set": bson.M{"reservedAt": ev.ReservedAt}}).Err()
	if err == nil {
		return true, nil, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil, fmt.Errorf("failed to take over webhook event %s: %w", ev.Key, err)
	}

	var held models.ProcessedWebhookEvent
	if err := r.coll.FindOne(ctx, bson.M{"key": ev.Key}).Decode(&held); err != nil {
		// released between the insert and this read; the next delivery can reserve it
		return false, nil, fmt.Errorf("failed to read webhook event %s: %w", ev.Key, err)
	}
	return false, &held, nil
}

func (r *MongoWebhookEventRepo) Complete(ctx context.Context, key string, now time.Time) error {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.coll.UpdateOne(ctx, bson.M{"key": key}, bson.M{"$set": bson.M{
		"status":      models.WebhookEventCompleted,
		"completedAt": now,
	}})
	if err != nil {
		return fmt.Errorf("failed to complete webhook event %s: %w", key, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoWebhookEventRepo) Release(ctx context.Context, key string, reservedAt time.Time) error {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.coll.DeleteOne(ctx, bson.M{"key": key, "status": models.WebhookEventProcessing, "reservedAt": reservedAt})
	if err != nil {
		return fmt.Errorf("failed to release webhook event %s: %w", key, err)
	}
	return nil
}

var (
	_ TemplateRepository     = (*MongoTemplateRepo)(nil)
	_ ConfigRepository       = (*MongoConfigRepo)(nil)
	_ WebhookEventRepository = (*MongoWebhookEventRepo)(nil)
)
