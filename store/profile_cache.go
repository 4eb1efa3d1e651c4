package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rushteam/careerkit/core"
)

const (
	defaultProfileFetchTimeout = 2 * time.Second
	defaultProfileCacheSize    = 10000
)

// CachingProfileProvider 在任意 ProfileProvider 之前加一层短 TTL 缓存，
// 并用 singleflight 合并同一用户的并发请求，避免画像服务被同一请求的重试放大。
//
// 缓存只保存成功结果；ProfileNotFound 与其它错误不缓存。
// 合并后的调用不继承任何一个调用方的取消，只受 fetchTimeout 约束；
// 每个调用方按自己的 ctx 决定是否放弃等待。
type CachingProfileProvider struct {
	next         core.ProfileProvider
	ttl          time.Duration
	fetchTimeout time.Duration
	maxEntries   int
	now          func() time.Time
	group        singleflight.Group

	mu      sync.RWMutex
	entries map[string]profileEntry
}

type profileEntry struct {
	profile *core.UserProfile
	expires time.Time
}

// ProfileCacheOption 配置 CachingProfileProvider。
type ProfileCacheOption func(*CachingProfileProvider)

// WithFetchTimeout 设置合并调用的超时，默认 2s。
func WithFetchTimeout(d time.Duration) ProfileCacheOption {
	return func(c *CachingProfileProvider) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithMaxEntries 设置缓存条目上限，默认 10000。
func WithMaxEntries(n int) ProfileCacheOption {
	return func(c *CachingProfileProvider) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// NewCachingProfileProvider ttl <= 0 时只做请求合并，不缓存。
func NewCachingProfileProvider(next core.ProfileProvider, ttl time.Duration, opts ...ProfileCacheOption) *CachingProfileProvider {
	c := &CachingProfileProvider{
		next:         next,
		ttl:          ttl,
		fetchTimeout: defaultProfileFetchTimeout,
		maxEntries:   defaultProfileCacheSize,
		now:          time.Now,
		entries:      make(map[string]profileEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachingProfileProvider) Name() string { return "cached_" + c.next.Name() }

func (c *CachingProfileProvider) GetUserProfile(ctx context.Context, userID string) (*core.UserProfile, error) {
	if c.ttl > 0 {
		c.mu.RLock()
		e, ok := c.entries[userID]
		c.mu.RUnlock()
		if ok && c.now().Before(e.expires) {
			return e.profile, nil
		}
	}

	ch := c.group.DoChan(userID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.next.GetUserProfile(fctx, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		prof := res.Val.(*core.UserProfile)
		if c.ttl > 0 {
			c.store(userID, prof)
		}
		return prof, nil
	}
}

// store 写入缓存；达到上限时先清理过期条目，仍然满则随机淘汰一条。
func (c *CachingProfileProvider) store(userID string, prof *core.UserProfile) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		for id, e := range c.entries {
			if !now.Before(e.expires) {
				delete(c.entries, id)
			}
		}
		if _, ok := c.entries[userID]; !ok {
			for id := range c.entries {
				if len(c.entries) < c.maxEntries {
					break
				}
				delete(c.entries, id)
			}
		}
	}
	c.entries[userID] = profileEntry{profile: prof, expires: now.Add(c.ttl)}
}

// Len 返回当前缓存条目数。
func (c *CachingProfileProvider) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Invalidate 删除某个用户的缓存。
func (c *CachingProfileProvider) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
	c.group.Forget(userID)
}

func (c *CachingProfileProvider) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]profileEntry)
	c.mu.Unlock()
	return c.next.Close()
}

var _ core.ProfileProvider = (*CachingProfileProvider)(nil)
