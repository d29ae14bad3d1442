package repository

import (
	"context"

	"github.com/creatorly/creatorpay/internal/pkg/cache"
)

// queueRepository implements the QueueRepository interface. It operates on
// Redis rather than GORM; operators use it to inspect the payout queue.
type queueRepository struct{}

// NewQueueRepository creates a new queue repository instance
func NewQueueRepository() QueueRepository {
	return &queueRepository{}
}

// GetListLength returns the length of a Redis list
func (r *queueRepository) GetListLength(key string) (int64, error) {
	redisClient := cache.GetClient()
	ctx := context.Background()

	length, err := redisClient.LLen(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	return length, nil
}
