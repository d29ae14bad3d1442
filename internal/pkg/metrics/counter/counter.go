package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/creatorly/creatorpay/app/models"
	"github.com/creatorly/creatorpay/internal/pkg/cache"
	"github.com/creatorly/creatorpay/internal/pkg/database"
)

const dailyCounterPrefix = "payout:counters:daily:"

// Hash fields inside a daily counter key.
const (
	fieldItemsSucceeded = "items_succeeded"
	fieldItemsFailed    = "items_failed"
	fieldAmountPaid     = "amount_paid"
	fieldGatewayCalls   = "gateway_calls"
)

func dailyKey(t time.Time) string {
	return dailyCounterPrefix + t.UTC().Format("2006-01-02")
}

func incr(field string, delta int64) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, dailyKey(time.Now()), field, delta).Err()
}

// AddItemSucceeded records one successful payout and its amount.
func AddItemSucceeded(amountMinorUnits int64) error {
	if err := incr(fieldItemsSucceeded, 1); err != nil {
		return err
	}
	return incr(fieldAmountPaid, amountMinorUnits)
}

// AddItemFailed records one terminally failed payout.
func AddItemFailed() error {
	return incr(fieldItemsFailed, 1)
}

// AddGatewayCall records one outbound transfer call.
func AddGatewayCall() error {
	return incr(fieldGatewayCalls, 1)
}

// FlushAll drains all pending daily counters from Redis into the
// payout_daily_stats table. Each hash is atomically renamed to a temp key
// first so in-flight increments are never lost.
func FlushAll() error {
	ctx := context.Background()
	rdb := cache.GetClient()

	var keys []string
	iter := rdb.Scan(ctx, 0, dailyCounterPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.Contains(key, ":tmp:") {
			continue
		}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return err
	}

	for _, key := range keys {
		if err := flushDailyKey(key); err != nil {
			return err
		}
	}
	return nil
}

func flushDailyKey(redisKey string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	date, err := time.Parse("2006-01-02", strings.TrimPrefix(redisKey, dailyCounterPrefix))
	if err != nil {
		// Not one of ours; leave it alone.
		return nil
	}

	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no such key") || err.Error() == "redis: nil" {
			return nil
		}
		return err
	}
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	parse := func(field string) int64 {
		v, _ := strconv.ParseInt(data[field], 10, 64)
		return v
	}

	stat := models.PayoutDailyStat{
		Date:           date,
		ItemsSucceeded: parse(fieldItemsSucceeded),
		ItemsFailed:    parse(fieldItemsFailed),
		AmountPaid:     parse(fieldAmountPaid),
		GatewayCalls:   parse(fieldGatewayCalls),
	}
	if stat.ItemsSucceeded == 0 && stat.ItemsFailed == 0 && stat.AmountPaid == 0 && stat.GatewayCalls == 0 {
		return nil
	}

	db := database.GetDB()
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"items_succeeded": gorm.Expr("items_succeeded + ?", stat.ItemsSucceeded),
			"items_failed":    gorm.Expr("items_failed + ?", stat.ItemsFailed),
			"amount_paid":     gorm.Expr("amount_paid + ?", stat.AmountPaid),
			"gateway_calls":   gorm.Expr("gateway_calls + ?", stat.GatewayCalls),
		}),
	}).Create(&stat).Error
}
