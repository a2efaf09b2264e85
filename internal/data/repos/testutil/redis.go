package testutil

import (
	"context"
	"os"
	"strconv"
	"testing"

	goredis "github.com/redis/go-redis/v9"
)

// Redis returns a client for TEST_REDIS_ADDR and skips the test when it is unset.
// TEST_REDIS_DB selects the logical database (default 15).
func Redis(tb testing.TB) *goredis.Client {
	tb.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		tb.Skip("TEST_REDIS_ADDR not set")
	}
	db := 15
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			tb.Fatalf("TEST_REDIS_DB: %v", err)
		}
		db = n
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: os.Getenv("TEST_REDIS_PASSWORD"),
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		tb.Fatalf("ping redis %s: %v", addr, err)
	}
	tb.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
