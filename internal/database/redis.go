package database

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

// ConnectRedis connects to Redis. The same client backs the transactional
// half-message ledger, the event streams, and the group read positions, so
// the pool is sized for the blocking XREADGROUP consumers on top of the
// request-path commands.
func ConnectRedis(redisURI string) error {
	opt, err := redis.ParseURL(redisURI)
	if err != nil {
		return err
	}

	opt.PoolSize = 16
	opt.MinIdleConns = 4
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	// Stream reads block server-side for up to 5s; the read timeout must
	// sit above that or every idle consumer poll surfaces as an error.
	opt.ReadTimeout = 10 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	RedisClient = redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := RedisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	log.Println("✅ Connected to Redis")
	return nil
}

// DisconnectRedis closes the Redis connection
func DisconnectRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}
