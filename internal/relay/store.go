package relay

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/models"
)

// PushSubscription is the relay's view of a registered worker. The endpoint
// is unique, so a worker re-registering after a restart overwrites its own
// row instead of accumulating duplicates.
type PushSubscription struct {
	ID             uint   `gorm:"primaryKey"`
	Endpoint       string `gorm:"uniqueIndex;size:512"`
	P256dh         string
	Auth           string
	ExpirationTime *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SubscriptionStore persists push subscriptions in Postgres.
type SubscriptionStore struct {
	db        *gorm.DB
	tableName string
}

func NewSubscriptionStore(db *gorm.DB, tableName string) (*SubscriptionStore, error) {
	if tableName == "" {
		tableName = "push_subscriptions"
	}

	if err := db.Table(tableName).AutoMigrate(&PushSubscription{}); err != nil {
		return nil, err
	}

	return &SubscriptionStore{
		db:        db,
		tableName: tableName,
	}, nil
}

// Upsert stores the subscription, replacing any previous row with the same
// endpoint.
func (s *SubscriptionStore) Upsert(ctx context.Context, rec models.SubscriptionRecord) error {
	sub := PushSubscription{
		Endpoint:       rec.Endpoint,
		P256dh:         rec.Keys.P256dh,
		Auth:           rec.Keys.Auth,
		ExpirationTime: rec.ExpirationTime,
		UpdatedAt:      time.Now(),
	}
	return s.db.WithContext(ctx).Table(s.tableName).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "expiration_time", "updated_at"}),
		}).Create(&sub).Error
}

// Count reports how many workers are currently registered.
func (s *SubscriptionStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Table(s.tableName).Model(&PushSubscription{}).Count(&n).Error
	return n, err
}
