package karma

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swapmeet/swapmeet/internal/exchange"
)

// Redis keys.
const (
	// karma:balance:{user_id} -> integer
	KeyBalance = "karma:balance:%s"
	// karma:dedup:{offer_id}:{user_id} -> "1"
	KeyDedup = "karma:dedup:%s:%s"
)

// TTLDedup bounds how long a credited offer is remembered.
var TTLDedup = 7 * 24 * time.Hour

// creditOnce sets the dedup key and increments the balance in one step.
var creditOnce = redis.NewScript(`
if redis.call('SET', KEYS[1], '1', 'NX', 'EX', ARGV[2]) then
  redis.call('INCRBY', KEYS[2], ARGV[1])
  return 1
end
return 0
`)

// RedisLedger keeps karma balances in Redis counters.
type RedisLedger struct {
	rdb    *redis.Client
	points Points
}

// NewRedisLedger returns a ledger backed by rdb.
func NewRedisLedger(rdb *redis.Client, points Points) *RedisLedger {
	return &RedisLedger{rdb: rdb, points: points}
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// Reward credits both parties at most once per offer.
func (l *RedisLedger) Reward(ctx context.Context, fromUser, toUser string, xc exchange.ExchangeContext) error {
	if err := l.credit(ctx, xc.OfferID, fromUser, l.points.Owner); err != nil {
		return err
	}
	return l.credit(ctx, xc.OfferID, toUser, l.points.Offeror)
}

func (l *RedisLedger) credit(ctx context.Context, offerID, userID string, points int) error {
	keys := []string{fmt.Sprintf(KeyDedup, offerID, userID), fmt.Sprintf(KeyBalance, userID)}
	if err := creditOnce.Run(ctx, l.rdb, keys, points, int(TTLDedup.Seconds())).Err(); err != nil {
		return fmt.Errorf("crediting karma to %s: %w", userID, err)
	}
	return nil
}

// Balance returns the user's total karma.
func (l *RedisLedger) Balance(ctx context.Context, userID string) (int64, error) {
	n, err := l.rdb.Get(ctx, fmt.Sprintf(KeyBalance, userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting karma balance: %w", err)
	}
	return n, nil
}
