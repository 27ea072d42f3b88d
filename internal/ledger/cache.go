package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cachePrefix  = "ledger:vouchers"
	versionField = "version"
)

// Cache stores listing pages in Redis under a per-company version that is
// bumped after every commit.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(companyID int64) string {
	return fmt.Sprintf("%s:%d:%s", cachePrefix, companyID, versionField)
}

// Version returns the company's cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context, companyID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKey(companyID)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, key, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the page key with the current version.
func (c *Cache) BuildKey(ctx context.Context, companyID int64, query string) (string, error) {
	sum := sha256.Sum256([]byte(query))
	digest := hex.EncodeToString(sum[:8])
	ver, err := c.Version(ctx, companyID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%d:%s", cachePrefix, companyID, ver, digest), nil
}

// FetchPage loads a cached page or populates it using loader. Concurrent
// misses for the same key share one load.
func (c *Cache) FetchPage(ctx context.Context, companyID int64, query string, loader func(context.Context) (VoucherPage, error)) (VoucherPage, error) {
	if loader == nil {
		return VoucherPage{}, errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.BuildKey(ctx, companyID, query)
	if err != nil {
		return VoucherPage{}, err
	}
	var page VoucherPage
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		if err := json.Unmarshal(payload, &page); err == nil {
			return page, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return VoucherPage{}, err
	}

	resultCh := c.group.DoChan(key, func() (interface{}, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return value, nil
	})
	select {
	case <-ctx.Done():
		return VoucherPage{}, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return VoucherPage{}, res.Err
		}
		return res.Val.(VoucherPage), nil
	}
}

// Invalidate bumps the company's version. Every instance reads the version
// from Redis on each fetch, so the bump is visible to all of them at once.
func (c *Cache) Invalidate(ctx context.Context, companyID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(companyID)).Err()
}
