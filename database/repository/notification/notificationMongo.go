// File: database/repository/notification/notificationMongo.go
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

// MongoNotificationRepo implements NotificationRepository using MongoDB.
type MongoNotificationRepo struct {
	coll *mongo.Collection
}

// NewMongoNotificationRepo creates the repository on the "notifications" collection.
func NewMongoNotificationRepo(db *mongo.Database, logger *zap.Logger) *MongoNotificationRepo {
	repo := &MongoNotificationRepo{coll: db.Collection("notifications")}
	if err := repo.ensureIndexes(); err != nil {
		logger.Warn("failed to create notification indexes", zap.Error(err))
	}
	return repo
}

// withTimeout bounds a repository call.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

func (r *MongoNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *MongoNotificationRepo) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	var n models.Notification
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch notification %s: %w", id, err)
	}
	return &n, nil
}

func buildFilter(f models.NotificationFilter) bson.M {
	filter := bson.M{}
	if f.UserID != "" {
		filter["userId"] = f.UserID
	}
	if f.OrderID != "" {
		filter["orderId"] = f.OrderID
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if f.Channel != "" {
		filter["channel"] = f.Channel
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Priority != "" {
		filter["priority"] = f.Priority
	}
	created := bson.M{}
	if f.From != nil {
		created["$gte"] = *f.From
	}
	if f.To != nil {
		created["$lt"] = *f.To
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}
	return filter
}

func (r *MongoNotificationRepo) Find(ctx context.Context, filter models.NotificationFilter) (*models.NotificationPage, error) {
	ctx, cancel := withTimeout(ctx, 10*time.Second)
	defer cancel()

	f := filter.Normalize()
	query := buildFilter(f)

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	direction := -1
	if f.SortAsc {
		direction = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: string(f.SortBy), Value: direction}, {Key: "id", Value: 1}}).
		SetSkip(int64(f.Skip())).
		SetLimit(int64(f.Limit))

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer cursor.Close(ctx)

	items := []models.Notification{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return newPage(items, total, f), nil
}

func claimFilter(now time.Time, lease time.Duration) bson.M {
	return bson.M{
		"status": models.StatusPending,
		"$and": bson.A{
			bson.M{"$or": bson.A{
				bson.M{"scheduledAt": nil},
				bson.M{"scheduledAt": bson.M{"$lte": now}},
			}},
			bson.M{"$or": bson.A{
				bson.M{"claimedAt": nil},
				bson.M{"claimedAt": bson.M{"$lt": now.Add(-lease)}},
			}},
		},
	}
}

func claimUpdate(owner string, now time.Time) bson.M {
	return bson.M{"$set": bson.M{"claimedBy": owner, "claimedAt": now, "updatedAt": now}}
}

// ClaimDue claims one document at a time so every claim is an atomic
// conditional update that a concurrent poller cannot also win.
func (r *MongoNotificationRepo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, owner string, limit int) ([]models.Notification, error) {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "scheduledAt", Value: 1}, {Key: "createdAt", Value: 1}})

	var claimed []models.Notification
	for limit <= 0 || len(claimed) < limit {
		var n models.Notification
		err := r.coll.FindOneAndUpdate(ctx, claimFilter(now, lease), claimUpdate(owner, now), opts).Decode(&n)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return claimed, fmt.Errorf("failed to claim due notifications: %w", err)
		}
		claimed = append(claimed, n)
	}
	return claimed, nil
}

func (r *MongoNotificationRepo) ClaimByID(ctx context.Context, id string, now time.Time, lease time.Duration, owner string) (*models.Notification, error) {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := claimFilter(now, lease)
	filter["id"] = id
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var n models.Notification
	err := r.coll.FindOneAndUpdate(ctx, filter, claimUpdate(owner, now), opts).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.missOrConflict(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim notification %s: %w", id, err)
	}
	return &n, nil
}

// missOrConflict distinguishes an absent document from a failed condition.
func (r *MongoNotificationRepo) missOrConflict(ctx context.Context, id string) error {
	count, err := r.coll.CountDocuments(ctx, bson.M{"id": id}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("failed to check notification %s: %w", id, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func patchUpdate(p NotificationPatch) bson.M {
	set := bson.M{"updatedAt": p.updatedAt()}
	unset := bson.M{}

	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Content != nil {
		set["content"] = *p.Content
	}
	if p.RetryCount != nil {
		set["retryCount"] = *p.RetryCount
	}
	if p.ScheduledAt != nil {
		set["scheduledAt"] = *p.ScheduledAt
	}
	if p.SentAt != nil {
		set["sentAt"] = *p.SentAt
	}
	if p.DeliveredAt != nil {
		set["deliveredAt"] = *p.DeliveredAt
	}
	if p.ReadAt != nil {
		set["readAt"] = *p.ReadAt
	}
	if p.ErrorMessage != nil {
		set["errorMessage"] = *p.ErrorMessage
	} else if p.ClearError {
		unset["errorMessage"] = ""
	}
	for k, v := range p.Metadata {
		set["metadata."+k] = v
	}
	if p.ReleaseClaim {
		unset["claimedBy"] = ""
		unset["claimedAt"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func conditionFilter(id string, cond UpdateCondition) bson.M {
	filter := bson.M{"id": id}
	if len(cond.Statuses) > 0 {
		filter["status"] = bson.M{"$in": cond.Statuses}
	}
	if cond.ClaimedBy != "" {
		filter["claimedBy"] = cond.ClaimedBy
	}
	return filter
}

func (r *MongoNotificationRepo) Apply(ctx context.Context, id string, cond UpdateCondition, patch NotificationPatch) (*models.Notification, error) {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var n models.Notification
	err := r.coll.FindOneAndUpdate(ctx, conditionFilter(id, cond), patchUpdate(patch), opts).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.missOrConflict(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update notification %s: %w", id, err)
	}
	return &n, nil
}

func (r *MongoNotificationRepo) UpdateStatus(ctx context.Context, id string, status models.NotificationStatus, errorMessage string, now time.Time) (*models.Notification, error) {
	cond, patch, err := statusPatch(status, errorMessage, now)
	if err != nil {
		return nil, err
	}
	n, err := r.Apply(ctx, id, cond, patch)
	if errors.Is(err, ErrConflict) {
		return nil, ErrInvalidTransition
	}
	return n, err
}

func (r *MongoNotificationRepo) MarkRead(ctx context.Context, userID string, ids []string, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"userId":  userID,
		"id":      bson.M{"$in": ids},
		"channel": models.ChannelInApp,
		"readAt":  nil,
	}
	result, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"readAt": now, "updatedAt": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read for user %s: %w", userID, err)
	}
	return result.ModifiedCount, nil
}

func (r *MongoNotificationRepo) RetryFailed(ctx context.Context, ids []string, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"id": bson.M{"$in": ids}, "status": models.StatusFailed}
	update := bson.M{
		"$set": bson.M{
			"status":      models.StatusPending,
			"retryCount":  0,
			"scheduledAt": now,
			"updatedAt":   now,
		},
		"$unset": bson.M{"errorMessage": "", "claimedBy": "", "claimedAt": ""},
	}
	result, err := r.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed notifications: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *MongoNotificationRepo) Cancel(ctx context.Context, id string, now time.Time) (*models.Notification, error) {
	status := models.StatusCancelled
	return r.Apply(ctx, id, UpdateCondition{Statuses: []models.NotificationStatus{models.StatusPending}}, NotificationPatch{
		Status:       &status,
		ReleaseClaim: true,
		At:           now,
	})
}

func (r *MongoNotificationRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()

	filter := bson.M{"createdAt": bson.M{"$lt": cutoff}, "status": bson.M{"$in": retentionStatuses}}
	result, err := r.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return result.DeletedCount, nil
}

type statsRow struct {
	ID struct {
		Status  models.NotificationStatus `bson:"status"`
		Channel models.Channel            `bson:"channel"`
		Type    models.NotificationType   `bson:"type"`
	} `bson:"_id"`
	Count int64 `bson:"count"`
}

func (r *MongoNotificationRepo) Stats(ctx context.Context, from, to *time.Time) (*models.NotificationStats, error) {
	ctx, cancel := withTimeout(ctx, 15*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: buildFilter(models.NotificationFilter{From: from, To: to})}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"status": "$status", "channel": "$channel", "type": "$type"},
			"count": bson.M{"$sum": 1},
		}}},
	}
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate notification stats: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []statsRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode notification stats: %w", err)
	}
	stats := models.NewNotificationStats(from, to)
	for _, row := range rows {
		stats.Add(row.ID.Status, row.ID.Channel, row.ID.Type, row.Count)
	}
	return stats, nil
}

var _ NotificationRepository = (*MongoNotificationRepo)(nil)
