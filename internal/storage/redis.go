package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ackinacki-farmer/internal/types"
	"github.com/redis/go-redis/v9"
)

const (
	redisStatsKey    = "ackinacki:round:stats"
	redisAccountsKey = "ackinacki:round:accounts"
)

// RedisStorage keeps round stats in one key and account rows in a hash
// keyed by account index.
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(addr string) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStorage{client: client}, nil
}

type redisStats struct {
	Stats   types.Stats `json:"stats"`
	Updated time.Time   `json:"updated"`
}

func (r *RedisStorage) Save(snap *types.Snapshot) error {
	stats, err := json.Marshal(redisStats{Stats: snap.Stats, Updated: snap.Updated})
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	fields := make(map[string]interface{}, len(snap.Accounts))
	for _, acct := range snap.Accounts {
		data, err := json.Marshal(acct)
		if err != nil {
			return fmt.Errorf("marshal account %d: %w", acct.Index, err)
		}
		fields[strconv.Itoa(acct.Index)] = data
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisStatsKey, stats, 0)
		pipe.Del(ctx, redisAccountsKey)
		if len(fields) > 0 {
			pipe.HSet(ctx, redisAccountsKey, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

func (r *RedisStorage) Load() (*types.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := r.client.Get(ctx, redisStatsKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var stats redisStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}

	rows, err := r.client.HGetAll(ctx, redisAccountsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	snap := &types.Snapshot{
		Stats:    stats.Stats,
		Updated:  stats.Updated,
		Accounts: make([]types.AccountStatus, 0, len(rows)),
	}
	for field, row := range rows {
		var acct types.AccountStatus
		if err := json.Unmarshal([]byte(row), &acct); err != nil {
			return nil, fmt.Errorf("unmarshal account %s: %w", field, err)
		}
		snap.Accounts = append(snap.Accounts, acct)
	}
	sortAccounts(snap.Accounts)

	return snap, nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
